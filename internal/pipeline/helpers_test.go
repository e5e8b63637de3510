package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pagegenie/internal/search"
	"github.com/Aman-CERP/pagegenie/internal/store"
	"github.com/Aman-CERP/pagegenie/internal/versions"
)

type fakeEmbedder struct {
	err   error
	block bool
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

type fakeRetriever struct {
	chunks []store.Chunk
	err    error
	got    search.Request
}

func (f *fakeRetriever) Retrieve(_ context.Context, req search.Request) (*search.Result, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	fused := make([]search.FusedResult, len(f.chunks))
	for i, c := range f.chunks {
		fused[i] = search.FusedResult{Ref: c.ChunkRef, Score: 1 / float64(i+1)}
	}
	return &search.Result{Fused: fused}, nil
}

func (f *fakeRetriever) Hydrate(_ context.Context, fused []search.FusedResult) ([]store.Chunk, error) {
	byID := make(map[int64]store.Chunk)
	for _, c := range f.chunks {
		byID[c.ID] = c
	}
	out := make([]store.Chunk, 0, len(fused))
	for _, r := range fused {
		out = append(out, byID[r.Ref.ID])
	}
	return out, nil
}

type fakeGenerator struct {
	answer string
	err    error
	system string
	user   string
	before func()
}

func (f *fakeGenerator) Generate(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	if f.before != nil {
		f.before()
	}
	return f.answer, f.err
}

type fakeImager struct {
	prompt string
	slug   string
}

func (f *fakeImager) GenerateImage(_ context.Context, prompt, slug string) (string, error) {
	f.prompt, f.slug = prompt, slug
	return "/pages/assets/img-1.svg", nil
}

type fakeReranker struct {
	results   []search.RerankResult
	err       error
	available bool
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, _ []string, _ int) ([]search.RerankResult, error) {
	return f.results, f.err
}
func (f *fakeReranker) Available(context.Context) bool { return f.available }
func (f *fakeReranker) Close() error                   { return nil }

type fakePublisher struct {
	mu      sync.Mutex
	slug    string
	content string
	ctxErr  error
	err     error
	result  *versions.Result
}

func (f *fakePublisher) Publish(ctx context.Context, slug, content string) (*versions.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slug, f.content, f.ctxErr = slug, content, ctx.Err()
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &versions.Result{Slug: slug, Archived: "v3", Indexed: true, Mirrored: true}, nil
}

type memRuns struct {
	mu   sync.Mutex
	runs []store.RunRecord
}

func (m *memRuns) SaveRun(_ context.Context, r store.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.runs {
		if existing.ID == r.ID {
			return errors.New("duplicate run")
		}
	}
	m.runs = append(m.runs, r)
	return nil
}

type recorder struct {
	events []Event
}

func (r *recorder) sink(e Event) {
	r.events = append(r.events, e)
}

// names renders the events as "started", "phase:embedding", ...
func (r *recorder) names() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Name
		if p, ok := e.Data.(PhasePayload); ok {
			out[i] += ":" + p.Name
		}
	}
	return out
}

func (r *recorder) last() Event {
	return r.events[len(r.events)-1]
}

func pageChunks() []store.Chunk {
	return []store.Chunk{
		{ChunkRef: store.ChunkRef{ID: 11, Slug: "home", Index: 0}, Path: "head:nth-of-type(1)", Content: "<title>Home</title>"},
		{ChunkRef: store.ChunkRef{ID: 12, Slug: "home", Index: 1}, Path: "h1:nth-of-type(1)", Content: "Hello there"},
		{ChunkRef: store.ChunkRef{ID: 13, Slug: "home", Index: 2}, Path: "p:nth-of-type(1)", Content: "Welcome text"},
	}
}

type harness struct {
	embedder  *fakeEmbedder
	retriever *fakeRetriever
	generator *fakeGenerator
	imager    *fakeImager
	reranker  *fakeReranker
	publisher *fakePublisher
	runs      *memRuns
	cfg       Config
}

func newHarness() *harness {
	return &harness{
		embedder:  &fakeEmbedder{},
		retriever: &fakeRetriever{chunks: pageChunks()},
		generator: &fakeGenerator{answer: "Sure."},
		imager:    &fakeImager{},
		reranker:  &fakeReranker{},
		publisher: &fakePublisher{},
		runs:      &memRuns{},
	}
}

func (h *harness) pipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(Dependencies{
		Embedder:  h.embedder,
		Retriever: h.retriever,
		Reranker:  h.reranker,
		Generator: h.generator,
		Imager:    h.imager,
		Publisher: h.publisher,
		Runs:      h.runs,
	}, h.cfg)
	require.NoError(t, err)
	return p
}
