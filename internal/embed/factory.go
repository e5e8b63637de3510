package embed

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Aman-CERP/pagegenie/internal/config"
)

// ProviderType names an embedding provider.
type ProviderType string

const (
	// ProviderOpenAI calls an OpenAI-compatible embeddings endpoint.
	ProviderOpenAI ProviderType = "openai"

	// ProviderStatic uses hash-based embeddings, offline.
	ProviderStatic ProviderType = "static"
)

// NewEmbedder builds the embedder cfg selects. OpenAI requests are paced
// by the configured rate limit. Results are cached in memory unless
// PAGEGENIE_EMBED_CACHE disables it.
func NewEmbedder(cfg *config.Config) (Embedder, error) {
	var embedder Embedder

	switch ProviderType(cfg.EmbeddingsProvider()) {
	case ProviderOpenAI:
		oe, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.Embeddings.BaseURL,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			BatchSize:  cfg.Embeddings.BatchSize,
			Timeout:    cfg.Embeddings.Timeout,
		})
		if err != nil {
			return nil, err
		}
		embedder = NewRateLimitedEmbedder(oe, cfg.Embeddings.RequestsPerSecond)
	case ProviderStatic:
		embedder = NewStaticEmbedder(cfg.Embeddings.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Embeddings.Provider)
	}

	slog.Debug("embedder_selected",
		slog.String("provider", cfg.EmbeddingsProvider()),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))

	if isCacheDisabled() {
		return embedder, nil
	}
	return NewCachedEmbedder(embedder, cfg.Embeddings.CacheSize), nil
}

func isCacheDisabled() bool {
	v := strings.ToLower(os.Getenv("PAGEGENIE_EMBED_CACHE"))
	return v == "false" || v == "0" || v == "off" || v == "disabled"
}
