package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Retrieval methods accepted by the chat pipeline.
const (
	MethodVector = "vector"
	MethodHybrid = "hybrid"
)

// Config represents the complete pagegenie configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Generation GenerationConfig `yaml:"generation" json:"generation"`
	Rerank     RerankConfig     `yaml:"rerank" json:"rerank"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Versions   VersionsConfig   `yaml:"versions" json:"versions"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`

	// Secrets come from the environment only.
	OpenAIAPIKey string `yaml:"-" json:"-"`
	CohereAPIKey string `yaml:"-" json:"-"`
}

// PathsConfig locates page sources and persistent state.
type PathsConfig struct {
	// PagesDir holds pages/<slug>.html and pages/<slug>/index.html. Empty disables the mirror.
	PagesDir string `yaml:"pages_dir" json:"pages_dir"`
	// DataDir holds the SQLite database, HNSW graph and Bleve index.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	LogLevel string `yaml:"log_level" json:"log_level"`
	// SSEKeepAlive is the interval between comment frames on idle chat streams.
	SSEKeepAlive time.Duration `yaml:"sse_keepalive" json:"sse_keepalive"`
	// BroadcastTimeout bounds a single viewer's reload send.
	BroadcastTimeout time.Duration `yaml:"broadcast_timeout" json:"broadcast_timeout"`
}

// RetrievalConfig configures ranking and fusion.
type RetrievalConfig struct {
	// Method is the default when a request does not name one: vector or hybrid.
	Method string `yaml:"method" json:"method"`
	// PoolSize is K, the candidate count requested from each ranker.
	PoolSize int `yaml:"pool_size" json:"pool_size"`
	// TopN truncates the fused list.
	TopN        int `yaml:"top_n" json:"top_n"`
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// LexicalBackend is sqlite (FTS5) or bleve.
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`
	// VectorIndex is auto, exact or hnsw.
	VectorIndex       string `yaml:"vector_index" json:"vector_index"`
	HNSWMaxDimensions int    `yaml:"hnsw_max_dimensions" json:"hnsw_max_dimensions"`
	HNSWM             int    `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfSearch      int    `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`
	// ContextBudgetChars caps the retrieved text placed in the prompt.
	ContextBudgetChars int `yaml:"context_budget_chars" json:"context_budget_chars"`
}

// EmbeddingsConfig configures the embedding capability.
type EmbeddingsConfig struct {
	// Provider is auto, openai or static. auto picks openai when OPENAI_API_KEY is set.
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	// Dimensions requests shortened vectors from the provider. 0 uses the model's native size.
	Dimensions        int           `yaml:"dimensions" json:"dimensions"`
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	BatchSize         int           `yaml:"batch_size" json:"batch_size"`
	CacheSize         int           `yaml:"cache_size" json:"cache_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
}

// GenerationConfig configures the text and image generation capabilities.
type GenerationConfig struct {
	Model        string        `yaml:"model" json:"model"`
	Temperature  float32       `yaml:"temperature" json:"temperature"`
	BaseURL      string        `yaml:"base_url" json:"base_url"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	ImageModel   string        `yaml:"image_model" json:"image_model"`
	ImageSize    string        `yaml:"image_size" json:"image_size"`
	ImageTimeout time.Duration `yaml:"image_timeout" json:"image_timeout"`
}

// RerankConfig configures the optional cross-encoder reranker.
type RerankConfig struct {
	// Provider is auto, none or cohere. auto picks cohere when COHERE_API_KEY is set.
	Provider     string        `yaml:"provider" json:"provider"`
	Model        string        `yaml:"model" json:"model"`
	Endpoint     string        `yaml:"endpoint" json:"endpoint"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	MaxFailures  int           `yaml:"max_failures" json:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout" json:"reset_timeout"`
}

// ChunkingConfig configures DOM and flat chunking.
type ChunkingConfig struct {
	// MinBlocks is the DOM block count below which flat chunking is used.
	MinBlocks   int `yaml:"min_blocks" json:"min_blocks"`
	FlatSize    int `yaml:"flat_size" json:"flat_size"`
	FlatOverlap int `yaml:"flat_overlap" json:"flat_overlap"`
}

// VersionsConfig configures document history.
type VersionsConfig struct {
	// MaxHistory is the number of archived versions kept per slug. 0 keeps all.
	MaxHistory int `yaml:"max_history" json:"max_history"`
}

// WatchConfig configures the pages directory watcher.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// NewConfig returns a Config with all defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			PagesDir: "pages",
			DataDir:  ".pagegenie",
		},
		Server: ServerConfig{
			Addr:             ":8000",
			LogLevel:         "info",
			SSEKeepAlive:     15 * time.Second,
			BroadcastTimeout: 2 * time.Second,
		},
		Retrieval: RetrievalConfig{
			Method:             MethodVector,
			PoolSize:           20,
			TopN:               5,
			RRFConstant:        60,
			LexicalBackend:     "sqlite",
			VectorIndex:        "auto",
			HNSWMaxDimensions:  2000,
			HNSWM:              16,
			HNSWEfSearch:       64,
			ContextBudgetChars: 12000,
		},
		Embeddings: EmbeddingsConfig{
			Provider:          "auto",
			Model:             "text-embedding-3-small",
			BatchSize:         64,
			CacheSize:         1000,
			RequestsPerSecond: 5,
			Timeout:           30 * time.Second,
		},
		Generation: GenerationConfig{
			Model:        "gpt-5",
			Temperature:  0.15,
			Timeout:      120 * time.Second,
			ImageModel:   "dall-e-3",
			ImageSize:    "1024x1024",
			ImageTimeout: 90 * time.Second,
		},
		Rerank: RerankConfig{
			Provider:     "auto",
			Model:        "rerank-english-v3.0",
			Endpoint:     "https://api.cohere.com/v1/rerank",
			Timeout:      10 * time.Second,
			MaxFailures:  3,
			ResetTimeout: 60 * time.Second,
		},
		Chunking: ChunkingConfig{
			MinBlocks:   5,
			FlatSize:    1200,
			FlatOverlap: 200,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 500 * time.Millisecond,
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
//   - $XDG_CONFIG_HOME/pagegenie/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/pagegenie/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "pagegenie", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "pagegenie", "config.yaml")
	}
	return filepath.Join(home, ".config", "pagegenie", "config.yaml")
}

// ProjectConfigPath returns the project config file in dir, preferring .yaml over .yml.
// The returned path may not exist.
func ProjectConfigPath(dir string) string {
	yamlPath := filepath.Join(dir, ".pagegenie.yaml")
	if fileExists(yamlPath) {
		return yamlPath
	}
	ymlPath := filepath.Join(dir, ".pagegenie.yml")
	if fileExists(ymlPath) {
		return ymlPath
	}
	return yamlPath
}

// Load loads configuration for the project in dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/pagegenie/config.yaml)
//  3. Project config (.pagegenie.yaml in dir)
//  4. .env in dir (never overrides variables already set)
//  5. Environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if projectPath := ProjectConfigPath(dir); fileExists(projectPath) {
		if err := cfg.loadYAML(projectPath); err != nil {
			return nil, err
		}
	}

	if envPath := filepath.Join(dir, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths(dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes path over the current values. Keys absent from the file
// keep their current value.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// resolvePaths makes relative paths relative to the project directory.
func (c *Config) resolvePaths(dir string) {
	if c.Paths.PagesDir != "" && !filepath.IsAbs(c.Paths.PagesDir) {
		c.Paths.PagesDir = filepath.Join(dir, c.Paths.PagesDir)
	}
	if c.Paths.DataDir != "" && !filepath.IsAbs(c.Paths.DataDir) {
		c.Paths.DataDir = filepath.Join(dir, c.Paths.DataDir)
	}
}

// applyEnvOverrides applies PAGEGENIE_* overrides and the model variables
// shared with other OpenAI tooling.
func (c *Config) applyEnvOverrides() {
	c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.CohereAPIKey = os.Getenv("COHERE_API_KEY")

	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.Generation.Model = v
	}
	if v := os.Getenv("EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("EMBED_DIM"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d >= 0 {
			c.Embeddings.Dimensions = d
		}
	}
	if v := os.Getenv("RERANK_MODEL"); v != "" {
		c.Rerank.Model = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Embeddings.BaseURL = v
		c.Generation.BaseURL = v
	}

	if v := os.Getenv("PAGEGENIE_PAGES_DIR"); v != "" {
		c.Paths.PagesDir = v
	}
	if v := os.Getenv("PAGEGENIE_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("PAGEGENIE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PAGEGENIE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("PAGEGENIE_RETRIEVAL_METHOD"); v != "" {
		c.Retrieval.Method = v
	}
	if v := os.Getenv("PAGEGENIE_LEXICAL_BACKEND"); v != "" {
		c.Retrieval.LexicalBackend = v
	}
	if v := os.Getenv("PAGEGENIE_VECTOR_INDEX"); v != "" {
		c.Retrieval.VectorIndex = v
	}
	if v := os.Getenv("PAGEGENIE_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Retrieval.RRFConstant = k
		}
	}
	if v := os.Getenv("PAGEGENIE_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("PAGEGENIE_RERANK_PROVIDER"); v != "" {
		c.Rerank.Provider = v
	}
	if v := os.Getenv("PAGEGENIE_WATCH"); v != "" {
		c.Watch.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
}

// EmbeddingsProvider resolves "auto" against the available credentials.
func (c *Config) EmbeddingsProvider() string {
	p := strings.ToLower(c.Embeddings.Provider)
	if p == "" || p == "auto" {
		if c.OpenAIAPIKey != "" {
			return "openai"
		}
		return "static"
	}
	return p
}

// RerankProvider resolves "auto" against the available credentials.
func (c *Config) RerankProvider() string {
	p := strings.ToLower(c.Rerank.Provider)
	if p == "" || p == "auto" {
		if c.CohereAPIKey != "" {
			return "cohere"
		}
		return "none"
	}
	return p
}

// UseHNSW reports whether the approximate index serves vectors of dims dimensions.
func (c *Config) UseHNSW(dims int) bool {
	switch strings.ToLower(c.Retrieval.VectorIndex) {
	case "hnsw":
		return true
	case "exact":
		return false
	default:
		return dims > 0 && dims <= c.Retrieval.HNSWMaxDimensions
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch c.Retrieval.Method {
	case MethodVector, MethodHybrid:
	default:
		return fmt.Errorf("retrieval.method must be 'vector' or 'hybrid', got %q", c.Retrieval.Method)
	}
	if c.Retrieval.PoolSize < 1 {
		return fmt.Errorf("retrieval.pool_size must be at least 1, got %d", c.Retrieval.PoolSize)
	}
	if c.Retrieval.TopN < 1 {
		return fmt.Errorf("retrieval.top_n must be at least 1, got %d", c.Retrieval.TopN)
	}
	if c.Retrieval.RRFConstant < 1 {
		return fmt.Errorf("retrieval.rrf_constant must be positive, got %d", c.Retrieval.RRFConstant)
	}
	if !oneOf(c.Retrieval.LexicalBackend, "sqlite", "bleve") {
		return fmt.Errorf("retrieval.lexical_backend must be 'sqlite' or 'bleve', got %q", c.Retrieval.LexicalBackend)
	}
	if !oneOf(c.Retrieval.VectorIndex, "auto", "exact", "hnsw") {
		return fmt.Errorf("retrieval.vector_index must be 'auto', 'exact' or 'hnsw', got %q", c.Retrieval.VectorIndex)
	}
	if !oneOf(c.Embeddings.Provider, "", "auto", "openai", "static") {
		return fmt.Errorf("embeddings.provider must be 'auto', 'openai' or 'static', got %q", c.Embeddings.Provider)
	}
	if !oneOf(c.Rerank.Provider, "", "auto", "none", "cohere") {
		return fmt.Errorf("rerank.provider must be 'auto', 'none' or 'cohere', got %q", c.Rerank.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize < 1 {
		return fmt.Errorf("embeddings.batch_size must be at least 1, got %d", c.Embeddings.BatchSize)
	}
	if c.Chunking.FlatSize < 1 || c.Chunking.FlatOverlap < 0 || c.Chunking.FlatOverlap >= c.Chunking.FlatSize {
		return fmt.Errorf("chunking.flat_overlap must be in [0, flat_size), got size=%d overlap=%d",
			c.Chunking.FlatSize, c.Chunking.FlatOverlap)
	}
	if c.Versions.MaxHistory < 0 {
		return fmt.Errorf("versions.max_history must be non-negative, got %d", c.Versions.MaxHistory)
	}
	for name, d := range map[string]time.Duration{
		"embeddings.timeout":       c.Embeddings.Timeout,
		"generation.timeout":       c.Generation.Timeout,
		"rerank.timeout":           c.Rerank.Timeout,
		"generation.image_timeout": c.Generation.ImageTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if !oneOf(c.Server.LogLevel, "debug", "info", "warn", "error") {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %q", c.Server.LogLevel)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
