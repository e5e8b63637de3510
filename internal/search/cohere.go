package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/pkg/version"
)

// Cohere reranker configuration defaults
const (
	DefaultCohereEndpoint = "https://api.cohere.com/v1/rerank"
	DefaultCohereModel    = "rerank-english-v3.0"
	DefaultRerankTimeout  = 10 * time.Second
)

// CohereConfig holds configuration for the Cohere reranker.
type CohereConfig struct {
	APIKey   string
	Endpoint string
	Model    string
	Timeout  time.Duration

	// MaxFailures consecutive failures open the circuit for ResetTimeout.
	MaxFailures  int
	ResetTimeout time.Duration

	HTTPClient *http.Client
}

// CohereReranker calls a Cohere-compatible /rerank endpoint behind a
// circuit breaker.
type CohereReranker struct {
	client  *http.Client
	config  CohereConfig
	breaker *perrors.CircuitBreaker
	mu      sync.RWMutex
	closed  bool
}

// Verify interface implementation at compile time
var _ Reranker = (*CohereReranker)(nil)

// NewCohereReranker creates a Cohere reranker. The API key is required.
func NewCohereReranker(cfg CohereConfig) (*CohereReranker, error) {
	if cfg.APIKey == "" {
		return nil, perrors.New(perrors.ErrCodeMissingAPIKey, "COHERE_API_KEY is not set", nil)
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultCohereEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultCohereModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRerankTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		}
	}

	r := &CohereReranker{
		client: client,
		config: cfg,
		breaker: perrors.NewCircuitBreaker("cohere_rerank",
			perrors.WithMaxFailures(cfg.MaxFailures),
			perrors.WithResetTimeout(cfg.ResetTimeout)),
	}

	slog.Debug("cohere_reranker_created",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("model", cfg.Model),
		slog.Duration("timeout", cfg.Timeout))

	return r, nil
}

type cohereRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n,omitempty"`
	ReturnDocuments bool     `json:"return_documents"`
}

type cohereResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores documents against query. While the circuit is open it
// fails fast without calling the endpoint.
func (r *CohereReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, fmt.Errorf("reranker is closed")
	}
	r.mu.RUnlock()

	if len(documents) == 0 {
		return []RerankResult{}, nil
	}

	results, err := perrors.CircuitExecute(r.breaker, func() ([]RerankResult, error) {
		return r.call(ctx, query, documents, topK)
	})
	if err != nil {
		return nil, perrors.UpstreamError(perrors.ErrCodeRerankFailed, "rerank failed", err)
	}
	return results, nil
}

func (r *CohereReranker) call(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	start := time.Now()
	body, err := json.Marshal(cohereRequest{
		Model:     r.config.Model,
		Query:     query,
		Documents: documents,
		TopN:      topK,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("rerank failed (status %d): %s", resp.StatusCode, string(msg))
	}

	var decoded cohereResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	results := make([]RerankResult, len(decoded.Results))
	for i, res := range decoded.Results {
		results[i] = RerankResult{Index: res.Index, Score: res.RelevanceScore}
	}

	slog.Debug("rerank_complete",
		slog.Int("doc_count", len(documents)),
		slog.Int("result_count", len(results)),
		slog.Duration("elapsed", time.Since(start)))

	return results, nil
}

// Available reports whether the circuit lets calls through.
func (r *CohereReranker) Available(_ context.Context) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.closed && r.breaker.State() != perrors.StateOpen
}

// Breaker exposes the circuit breaker state for status output.
func (r *CohereReranker) Breaker() *perrors.CircuitBreaker {
	return r.breaker
}

// Close releases resources
func (r *CohereReranker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if transport, ok := r.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}
