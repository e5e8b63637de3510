package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/pagegenie/internal/config"
	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/store"
)

// ChunkSource loads chunk contents for fused references.
type ChunkSource interface {
	ChunksByIDs(ctx context.Context, ids []int64) (map[int64]store.Chunk, error)
}

// EngineConfig configures retrieval.
type EngineConfig struct {
	PoolSize    int
	TopN        int
	RRFConstant int
}

// DefaultEngineConfig returns K=20, top-N=5, k_rrf=60.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{PoolSize: 20, TopN: DefaultTopN, RRFConstant: DefaultRRFConstant}
}

// Engine runs the rankers and fuses their lists.
type Engine struct {
	lexical *LexicalRanker
	vector  *VectorRanker
	chunks  ChunkSource
	fusion  *RRFFusion
	config  EngineConfig
}

// NewEngine creates an engine over the given indexes.
func NewEngine(lexical store.LexicalIndex, vector store.VectorIndex, chunks ChunkSource, cfg EngineConfig) *Engine {
	if cfg.PoolSize < 1 {
		cfg.PoolSize = DefaultEngineConfig().PoolSize
	}
	if cfg.TopN < 1 {
		cfg.TopN = DefaultTopN
	}
	return &Engine{
		lexical: NewLexicalRanker(lexical),
		vector:  NewVectorRanker(vector),
		chunks:  chunks,
		fusion:  NewRRFFusion(cfg.RRFConstant),
		config:  cfg,
	}
}

// Request is one retrieval.
type Request struct {
	Query  string
	Vector []float32
	Method string
	// Slug restricts both rankers to one page.
	Slug string
	// TopN overrides the configured fused list length when positive.
	TopN int
}

// Result holds the fused list and the per-ranker lists it came from.
type Result struct {
	Fused   []FusedResult
	Lexical []Candidate
	Vector  []Candidate
	Elapsed time.Duration
}

// Retrieve runs vector-only or hybrid retrieval. In hybrid mode the two
// rankers run concurrently and either failure fails the retrieval.
func (e *Engine) Retrieve(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	topN := e.config.TopN
	if req.TopN > 0 {
		topN = req.TopN
	}

	res := &Result{}
	switch strings.ToLower(req.Method) {
	case MethodVector:
		vec, err := e.vector.Rank(ctx, req.Vector, e.config.PoolSize, req.Slug)
		if err != nil {
			return nil, err
		}
		res.Vector = vec
		res.Fused = VectorOnly(vec, topN)

	case MethodHybrid:
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			lex, err := e.lexical.Rank(gctx, req.Query, e.config.PoolSize, req.Slug)
			res.Lexical = lex
			return err
		})
		g.Go(func() error {
			vec, err := e.vector.Rank(gctx, req.Vector, e.config.PoolSize, req.Slug)
			res.Vector = vec
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		res.Fused = e.fusion.Fuse(res.Lexical, res.Vector, topN)

	default:
		return nil, perrors.New(perrors.ErrCodeInvalidMethod,
			fmt.Sprintf("retrieval method must be %q or %q, got %q", MethodVector, MethodHybrid, req.Method), nil)
	}

	res.Elapsed = time.Since(start)
	slog.Debug("retrieve_complete",
		slog.String("method", req.Method),
		slog.Int("lexical", len(res.Lexical)),
		slog.Int("vector", len(res.Vector)),
		slog.Int("fused", len(res.Fused)),
		slog.Duration("elapsed", res.Elapsed))
	return res, nil
}

// Hydrate loads the chunks for results in order. A reference whose row
// was replaced since ranking is skipped.
func (e *Engine) Hydrate(ctx context.Context, results []FusedResult) ([]store.Chunk, error) {
	if len(results) == 0 {
		return []store.Chunk{}, nil
	}
	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.Ref.ID
	}
	byID, err := e.chunks.ChunksByIDs(ctx, ids)
	if err != nil {
		return nil, storeFailure("chunk lookup", err)
	}
	out := make([]store.Chunk, 0, len(results))
	for _, r := range results {
		if c, ok := byID[r.Ref.ID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// NewReranker returns the reranker cfg selects: Cohere when configured
// with a key, NoOp otherwise.
func NewReranker(cfg *config.Config) Reranker {
	if cfg.RerankProvider() != "cohere" || cfg.CohereAPIKey == "" {
		return &NoOpReranker{}
	}
	r, err := NewCohereReranker(CohereConfig{
		APIKey:       cfg.CohereAPIKey,
		Endpoint:     cfg.Rerank.Endpoint,
		Model:        cfg.Rerank.Model,
		Timeout:      cfg.Rerank.Timeout,
		MaxFailures:  cfg.Rerank.MaxFailures,
		ResetTimeout: cfg.Rerank.ResetTimeout,
	})
	if err != nil {
		slog.Warn("reranker_unavailable", slog.String("error", err.Error()))
		return &NoOpReranker{}
	}
	return r
}
