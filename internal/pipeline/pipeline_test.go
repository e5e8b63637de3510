package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/search"
	"github.com/Aman-CERP/pagegenie/internal/store"
	"github.com/Aman-CERP/pagegenie/internal/versions"
)

const editedPage = "<!DOCTYPE html><html><head><title>Welcome</title></head><body></body></html>"

func TestRun_EditWithoutReranker(t *testing.T) {
	// Given: a generator that returns a full document
	h := newHarness()
	h.generator.answer = "```html\n" + editedPage + "\n```"
	rec := &recorder{}

	// When: asking for an edit of "home"
	run, err := h.pipeline(t).Run(context.Background(), Request{
		Message:         "change the title to Welcome",
		PageSlug:        "home",
		RetrievalMethod: "vector",
	}, rec.sink)

	// Then: the stages run in order and the document is published
	require.NoError(t, err)
	assert.Equal(t, []string{
		"started", "phase:embedding", "phase:retrieving", "retrieved", "phase:generating", "done",
	}, rec.names())

	retrieved := rec.events[3].Data.(RetrievedPayload)
	assert.Equal(t, 3, retrieved.NumChunks)

	done := rec.last().Data.(DonePayload)
	assert.True(t, done.Saved)
	assert.Equal(t, "vector", done.RetrievalMethod)
	assert.Equal(t, "v3", done.Version)
	assert.Equal(t, run.ID, done.RunID)
	assert.NotNil(t, done.Timings.EmbedMS)
	assert.NotNil(t, done.Timings.RetrieveMS)
	assert.NotNil(t, done.Timings.GenerateMS)
	assert.Nil(t, done.Timings.RerankMS)

	assert.Equal(t, "home", h.publisher.slug)
	assert.Equal(t, editedPage, h.publisher.content)
	assert.Equal(t, "home", h.retriever.got.Slug)
	assert.Equal(t, "vector", h.retriever.got.Method)

	require.Len(t, h.runs.runs, 1)
	saved := h.runs.runs[0]
	assert.Equal(t, store.RunDone, saved.Status)
	assert.True(t, saved.Saved)
	assert.Len(t, saved.ChunkRefs, 3)
	assert.False(t, saved.FinishedAt.Before(saved.CreatedAt))
}

func TestRun_DefaultMethod(t *testing.T) {
	h := newHarness()
	h.cfg.DefaultMethod = search.MethodVector

	run, err := h.pipeline(t).Run(context.Background(), Request{Message: "hi"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "vector", run.RetrievalMethod)
	assert.Equal(t, "vector", h.retriever.got.Method)
}

func TestRun_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		code string
	}{
		{"blank message", Request{Message: "   "}, perrors.ErrCodeQueryEmpty},
		{"too long", Request{Message: strings.Repeat("é", MaxMessageRunes+1)}, perrors.ErrCodeQueryTooLong},
		{"bad slug", Request{Message: "hi", PageSlug: "../etc/passwd"}, perrors.ErrCodeInvalidSlug},
		{"bad method", Request{Message: "hi", RetrievalMethod: "keyword"}, perrors.ErrCodeInvalidMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			rec := &recorder{}

			run, err := h.pipeline(t).Run(context.Background(), tt.req, rec.sink)

			require.Error(t, err)
			assert.Equal(t, perrors.KindInvalidInput, perrors.KindOf(err))
			assert.Equal(t, []string{"started", "error"}, rec.names())
			payload := rec.last().Data.(ErrorPayload)
			assert.Equal(t, tt.code, payload.Code)
			assert.Equal(t, string(perrors.KindInvalidInput), payload.Kind)
			assert.Zero(t, h.embedder.calls)
			assert.Equal(t, store.RunFailed, run.Status)
			assert.Equal(t, store.StageTimings{}, run.Timings)
			assert.Len(t, h.runs.runs, 1)
		})
	}
}

func TestRun_MessageAtLimitIsAccepted(t *testing.T) {
	h := newHarness()

	_, err := h.pipeline(t).Run(context.Background(), Request{Message: strings.Repeat("é", MaxMessageRunes)}, nil)

	assert.NoError(t, err)
}

func TestRun_EmbeddingTimeout(t *testing.T) {
	// Given: an embedder that never answers and a short timeout
	h := newHarness()
	h.embedder.block = true
	h.cfg.EmbedTimeout = 20 * time.Millisecond
	rec := &recorder{}

	// When: running
	run, err := h.pipeline(t).Run(context.Background(), Request{Message: "hello", RetrievalMethod: "hybrid"}, rec.sink)

	// Then: exactly one upstream error, no retrieval, no timings
	require.Error(t, err)
	assert.Equal(t, perrors.KindUpstream, perrors.KindOf(err))
	assert.Equal(t, perrors.ErrCodeUpstreamTimeout, perrors.GetCode(err))
	assert.Equal(t, []string{"started", "phase:embedding", "error"}, rec.names())
	assert.Empty(t, h.retriever.got.Method)
	assert.Equal(t, store.StageTimings{}, run.Timings)
	assert.Equal(t, perrors.ErrCodeUpstreamTimeout, run.ErrorCode)
	require.Len(t, h.runs.runs, 1)
	assert.Equal(t, store.RunFailed, h.runs.runs[0].Status)
}

func TestRun_EmbeddingFailure(t *testing.T) {
	h := newHarness()
	h.embedder.err = errors.New("503 from provider")
	rec := &recorder{}

	_, err := h.pipeline(t).Run(context.Background(), Request{Message: "hello"}, rec.sink)

	assert.Equal(t, perrors.ErrCodeEmbeddingFailed, perrors.GetCode(err))
	assert.Equal(t, "error", rec.last().Name)
}

func TestRun_StoreFailure(t *testing.T) {
	h := newHarness()
	h.retriever.err = perrors.StoreError("database is locked", nil)
	rec := &recorder{}

	run, err := h.pipeline(t).Run(context.Background(), Request{Message: "hello"}, rec.sink)

	assert.Equal(t, perrors.KindStore, perrors.KindOf(err))
	assert.Equal(t, []string{"started", "phase:embedding", "phase:retrieving", "error"}, rec.names())
	assert.NotNil(t, run.Timings.EmbedMS)
	assert.Nil(t, run.Timings.RetrieveMS)
}

func TestRun_GenerationFailure(t *testing.T) {
	// Given: a failing generator
	h := newHarness()
	h.generator.err = perrors.UpstreamError(perrors.ErrCodeGenerationFailed, "generation failed", errors.New("500"))
	rec := &recorder{}

	// When: running an edit
	run, err := h.pipeline(t).Run(context.Background(), Request{Message: "hi", PageSlug: "home"}, rec.sink)

	// Then: one error event after retrieval, nothing published
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeGenerationFailed, run.ErrorCode)
	assert.Equal(t, []string{
		"started", "phase:embedding", "phase:retrieving", "retrieved", "phase:generating", "error",
	}, rec.names())
	assert.NotNil(t, run.Timings.RetrieveMS)
	assert.Nil(t, run.Timings.GenerateMS)
	assert.Empty(t, h.publisher.slug)
}

func TestRun_EmptyRetrievalStillGenerates(t *testing.T) {
	h := newHarness()
	h.retriever.chunks = nil
	h.reranker.available = true
	rec := &recorder{}

	_, err := h.pipeline(t).Run(context.Background(), Request{Message: "new page about cats", PageSlug: "cats"}, rec.sink)

	require.NoError(t, err)
	assert.Equal(t, 0, rec.events[3].Data.(RetrievedPayload).NumChunks)
	assert.NotContains(t, rec.names(), "phase:reranking")
	assert.Contains(t, h.generator.user, "Current page content (may be partial):\n\n\n")
}

func TestRun_Rerank(t *testing.T) {
	// Given: a reranker that reverses the fused order
	h := newHarness()
	h.reranker.available = true
	h.reranker.results = []search.RerankResult{{Index: 2, Score: 0.9}, {Index: 1, Score: 0.5}, {Index: 0, Score: 0.1}}
	rec := &recorder{}

	// When: running
	run, err := h.pipeline(t).Run(context.Background(), Request{Message: "hi", PageSlug: "home"}, rec.sink)

	// Then: the reranking phase runs and the prompt follows the new order
	require.NoError(t, err)
	assert.Contains(t, rec.names(), "phase:reranking")
	assert.NotNil(t, run.Timings.RerankMS)
	assert.Equal(t, []int64{13, 12, 11}, refIDs(run.ChunkRefs))
	assert.Contains(t, h.generator.user, "Welcome text\n\nHello there\n\n<title>Home</title>")
}

func TestRun_RerankMismatchKeepsFusedOrder(t *testing.T) {
	h := newHarness()
	h.reranker.available = true
	h.reranker.results = []search.RerankResult{{Index: 0, Score: 1}, {Index: 0, Score: 0.5}, {Index: 1, Score: 0.1}}

	run, err := h.pipeline(t).Run(context.Background(), Request{Message: "hi"}, nil)

	require.NoError(t, err)
	assert.Equal(t, []int64{11, 12, 13}, refIDs(run.ChunkRefs))
	assert.Equal(t, store.RunDone, run.Status)
}

func TestRun_RerankErrorIsAbsorbed(t *testing.T) {
	h := newHarness()
	h.reranker.available = true
	h.reranker.err = errors.New("cohere down")
	rec := &recorder{}

	run, err := h.pipeline(t).Run(context.Background(), Request{Message: "hi"}, rec.sink)

	require.NoError(t, err)
	assert.Equal(t, "done", rec.last().Name)
	assert.Equal(t, []int64{11, 12, 13}, refIDs(run.ChunkRefs))
}

func TestRun_NoSlugNeverPersists(t *testing.T) {
	h := newHarness()
	h.generator.answer = editedPage

	run, err := h.pipeline(t).Run(context.Background(), Request{Message: "draft a page"}, nil)

	require.NoError(t, err)
	assert.False(t, run.Saved)
	assert.Empty(t, h.publisher.slug)
	assert.Equal(t, "Task: draft a page\n\nContext:\n<title>Home</title>\n\nHello there\n\nWelcome text", h.generator.user)
}

func TestRun_PlainAnswerNeverPersists(t *testing.T) {
	h := newHarness()
	h.generator.answer = "The title is already Welcome."

	run, err := h.pipeline(t).Run(context.Background(), Request{Message: "check title", PageSlug: "home"}, nil)

	require.NoError(t, err)
	assert.False(t, run.Saved)
	assert.Empty(t, h.publisher.slug)
}

func TestRun_PersistenceFailureIsWarning(t *testing.T) {
	// Given: a publisher that cannot save
	h := newHarness()
	h.generator.answer = editedPage
	h.publisher.err = perrors.New(perrors.ErrCodeStoreWrite, "failed to save home", errors.New("disk full"))
	rec := &recorder{}

	// When: running an edit
	run, err := h.pipeline(t).Run(context.Background(), Request{Message: "edit", PageSlug: "home"}, rec.sink)

	// Then: the run is done with saved=false and a warning
	require.NoError(t, err)
	done := rec.last().Data.(DonePayload)
	assert.False(t, done.Saved)
	assert.Equal(t, editedPage, done.Answer)
	assert.Contains(t, done.Warning, perrors.ErrCodePersistenceWarning)
	assert.Contains(t, done.Warning, "disk full")
	assert.Equal(t, store.RunDone, run.Status)
}

func TestRun_StaleIndexIsWarning(t *testing.T) {
	h := newHarness()
	h.generator.answer = editedPage
	h.publisher.result = &versions.Result{
		Slug:     "home",
		Archived: "v1",
		Warnings: []string{"index is stale: embedding service down"},
	}

	run, err := h.pipeline(t).Run(context.Background(), Request{Message: "edit", PageSlug: "home"}, nil)

	require.NoError(t, err)
	assert.True(t, run.Saved)
	assert.Contains(t, run.Warning, "index is stale")
}

func TestRun_ImagePrefix(t *testing.T) {
	// Given: an image request
	h := newHarness()
	rec := &recorder{}

	// When: running
	run, err := h.pipeline(t).Run(context.Background(), Request{Message: "IMAGE: a red fox", PageSlug: "home"}, rec.sink)

	// Then: the imager answers and the generator is not called
	require.NoError(t, err)
	assert.Equal(t, "a red fox", h.imager.prompt)
	assert.Equal(t, "home", h.imager.slug)
	assert.Empty(t, h.generator.user)
	done := rec.last().Data.(DonePayload)
	assert.Equal(t, "Image generated: /pages/assets/img-1.svg", done.Answer)
	assert.False(t, done.Saved)
	assert.NotNil(t, run.Timings.GenerateMS)
}

func TestRun_ClientDisconnect(t *testing.T) {
	// Given: a client that disconnects while the answer is generated
	h := newHarness()
	h.generator.answer = editedPage
	ctx, cancel := context.WithCancel(context.Background())
	h.generator.before = cancel
	rec := &recorder{}

	// When: running an edit
	run, err := h.pipeline(t).Run(ctx, Request{Message: "edit", PageSlug: "home"}, rec.sink)

	// Then: no events after generating, but persistence completed and the run was recorded
	require.NoError(t, err)
	assert.Equal(t, "phase:generating", rec.names()[len(rec.events)-1])
	assert.Equal(t, "home", h.publisher.slug)
	assert.NoError(t, h.publisher.ctxErr)
	assert.True(t, run.Saved)
	assert.Len(t, h.runs.runs, 1)
}

func TestRun_AnswerPreview(t *testing.T) {
	h := newHarness()
	h.generator.answer = strings.Repeat("ж", PreviewRunes+50)

	run, err := h.pipeline(t).Run(context.Background(), Request{Message: "long"}, nil)

	require.NoError(t, err)
	assert.Equal(t, PreviewRunes, len([]rune(run.AnswerPreview)))
}

func TestRun_RunIDsAreUnique(t *testing.T) {
	h := newHarness()
	p := h.pipeline(t)

	a, err := p.Run(context.Background(), Request{Message: "one"}, nil)
	require.NoError(t, err)
	b, err := p.Run(context.Background(), Request{Message: "two"}, nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, h.runs.runs, 2)
}

func TestNew_RequiresCoreDependencies(t *testing.T) {
	_, err := New(Dependencies{}, Config{})
	assert.Error(t, err)
}

func refIDs(refs []store.ChunkRef) []int64 {
	ids := make([]int64, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}
