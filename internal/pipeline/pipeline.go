// Package pipeline runs one chat request through embedding, retrieval,
// optional reranking, generation and optional persistence, emitting
// progress events and recording the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	perrors "github.com/Aman-CERP/pagegenie/internal/errors"
	"github.com/Aman-CERP/pagegenie/internal/ingest"
	"github.com/Aman-CERP/pagegenie/internal/llm"
	"github.com/Aman-CERP/pagegenie/internal/search"
	"github.com/Aman-CERP/pagegenie/internal/store"
	"github.com/Aman-CERP/pagegenie/internal/versions"
)

const (
	// MaxMessageRunes bounds the request message.
	MaxMessageRunes = 16000
	// PreviewRunes is the length of the answer preview kept on a run.
	PreviewRunes = 500
	// DefaultEmbedTimeout bounds the query embedding call.
	DefaultEmbedTimeout = 30 * time.Second

	imagePrefix = "image:"
)

// Request is one chat message.
type Request struct {
	Message         string   `json:"message"`
	PageSlug        string   `json:"page_slug"`
	RetrievalMethod string   `json:"retrieval_method"`
	SelectedHTML    string   `json:"selected_html"`
	SelectedPath    []string `json:"selected_path"`
	SystemContext   string   `json:"system_context"`
}

// QueryEmbedder embeds the request message.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever ranks chunks and loads their content. *search.Engine
// implements it.
type Retriever interface {
	Retrieve(ctx context.Context, req search.Request) (*search.Result, error)
	Hydrate(ctx context.Context, results []search.FusedResult) ([]store.Chunk, error)
}

// Publisher saves a new current version of a page.
type Publisher interface {
	Publish(ctx context.Context, slug, content string) (*versions.Result, error)
}

// RunStore persists finalized runs.
type RunStore interface {
	SaveRun(ctx context.Context, r store.RunRecord) error
}

// Dependencies contains the injected dependencies for a Pipeline.
type Dependencies struct {
	Embedder  QueryEmbedder
	Retriever Retriever
	// Reranker is optional; nil or unavailable skips the reranking stage.
	Reranker  search.Reranker
	Generator llm.Generator
	// Imager serves "image:" requests. Nil fails them.
	Imager    llm.ImageGenerator
	Publisher Publisher
	Runs      RunStore
}

// Config configures a Pipeline.
type Config struct {
	DefaultMethod string
	TopN          int
	ContextBudget int
	EmbedTimeout  time.Duration
}

// Pipeline is safe for concurrent use; each Run is independent.
type Pipeline struct {
	deps Dependencies
	cfg  Config
	now  func() time.Time
}

// New creates a Pipeline.
func New(deps Dependencies, cfg Config) (*Pipeline, error) {
	if deps.Embedder == nil || deps.Retriever == nil || deps.Generator == nil {
		return nil, fmt.Errorf("embedder, retriever and generator are required")
	}
	if cfg.DefaultMethod == "" {
		cfg.DefaultMethod = search.MethodHybrid
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = DefaultContextBudget
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultEmbedTimeout
	}
	return &Pipeline{deps: deps, cfg: cfg, now: time.Now}, nil
}

// run carries one request through the stages.
type run struct {
	p      *Pipeline
	req    Request
	ctx    context.Context
	events emitter
	fsm    *machine
	rec    store.RunRecord

	vector []float32
	fused  []search.FusedResult
	chunks []store.Chunk
	answer string
}

// Run executes req. Events go to sink until the terminal done or error
// event, or until ctx is cancelled. The returned record is the one
// persisted; err is the failure that ended the run, if any.
func (p *Pipeline) Run(ctx context.Context, req Request, sink Sink) (*store.RunRecord, error) {
	r := &run{
		p:      p,
		req:    req,
		ctx:    ctx,
		events: emitter{ctx: ctx, sink: sink},
		fsm:    newMachine(),
		rec: store.RunRecord{
			ID:              uuid.NewString(),
			Question:        req.Message,
			RetrievalMethod: strings.ToLower(strings.TrimSpace(req.RetrievalMethod)),
			PageSlug:        strings.TrimSpace(req.PageSlug),
			CreatedAt:       p.now().UTC(),
		},
	}
	if r.rec.RetrievalMethod == "" {
		r.rec.RetrievalMethod = p.cfg.DefaultMethod
	}
	r.events.emit(EventStarted, StartedPayload{})

	steps := []func() error{r.validate, r.embed, r.retrieve, r.rerank, r.generate, r.persist}
	for _, step := range steps {
		if err := step(); err != nil {
			return r.fail(err)
		}
	}
	return r.finish()
}

func (r *run) enter(s State) error {
	if err := r.fsm.to(s); err != nil {
		return err
	}
	if s != StatePersisting {
		r.events.phase(s)
	}
	return nil
}

func (r *run) validate() error {
	msg := strings.TrimSpace(r.req.Message)
	if msg == "" {
		return perrors.New(perrors.ErrCodeQueryEmpty, "message is empty", nil)
	}
	if n := utf8.RuneCountInString(r.req.Message); n > MaxMessageRunes {
		return perrors.New(perrors.ErrCodeQueryTooLong,
			fmt.Sprintf("message is %d characters, limit is %d", n, MaxMessageRunes), nil)
	}
	if r.rec.PageSlug != "" && !ingest.ValidSlug(r.rec.PageSlug) {
		return perrors.New(perrors.ErrCodeInvalidSlug, fmt.Sprintf("invalid page slug %q", r.rec.PageSlug), nil)
	}
	switch r.rec.RetrievalMethod {
	case search.MethodVector, search.MethodHybrid:
	default:
		return perrors.New(perrors.ErrCodeInvalidMethod,
			fmt.Sprintf("retrieval method must be %q or %q, got %q",
				search.MethodVector, search.MethodHybrid, r.rec.RetrievalMethod), nil)
	}
	return nil
}

func (r *run) embed() error {
	if err := r.enter(StateEmbedding); err != nil {
		return err
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.ctx, r.p.cfg.EmbedTimeout)
	defer cancel()

	vec, err := r.p.deps.Embedder.Embed(ctx, strings.TrimSpace(r.req.Message))
	if err != nil {
		return upstream(ctx, perrors.ErrCodeEmbeddingFailed, "query embedding failed", err)
	}
	r.vector = vec
	r.rec.Timings.EmbedMS = store.Millis(time.Since(start))
	return nil
}

func (r *run) retrieve() error {
	if err := r.enter(StateRetrieving); err != nil {
		return err
	}
	start := time.Now()
	res, err := r.p.deps.Retriever.Retrieve(r.ctx, search.Request{
		Query:  strings.TrimSpace(r.req.Message),
		Vector: r.vector,
		Method: r.rec.RetrievalMethod,
		Slug:   r.rec.PageSlug,
		TopN:   r.p.cfg.TopN,
	})
	if err != nil {
		return err
	}
	chunks, err := r.p.deps.Retriever.Hydrate(r.ctx, res.Fused)
	if err != nil {
		return err
	}
	r.fused = res.Fused
	r.chunks = chunks
	elapsed := store.Millis(time.Since(start))
	r.rec.Timings.RetrieveMS = elapsed
	r.rec.ChunkRefs = search.Refs(res.Fused)

	r.events.emit(EventRetrieved, RetrievedPayload{
		NumChunks: len(chunks),
		Timings:   RetrieveTimings{RetrieveMS: *elapsed},
	})
	return nil
}

// rerank reorders the hydrated chunks. It never fails the run: an
// error or a result that is not a permutation keeps the fused order.
func (r *run) rerank() error {
	rr := r.p.deps.Reranker
	if rr == nil || len(r.chunks) == 0 || !rr.Available(r.ctx) {
		return nil
	}
	if err := r.enter(StateReranking); err != nil {
		return err
	}
	start := time.Now()
	defer func() { r.rec.Timings.RerankMS = store.Millis(time.Since(start)) }()

	docs := make([]string, len(r.chunks))
	for i, c := range r.chunks {
		docs[i] = c.Content
	}
	results, err := rr.Rerank(r.ctx, strings.TrimSpace(r.req.Message), docs, 0)
	if err != nil {
		if r.ctx.Err() != nil {
			return r.ctx.Err()
		}
		slog.Warn("rerank_failed", slog.String("run_id", r.rec.ID), slog.String("error", err.Error()))
		return nil
	}

	hydrated := make([]search.FusedResult, len(r.chunks))
	for i, c := range r.chunks {
		hydrated[i] = search.FusedResult{Ref: c.ChunkRef}
	}
	reordered, err := search.ApplyRerank(hydrated, results)
	if err != nil {
		slog.Warn("rerank_permutation_mismatch",
			slog.String("run_id", r.rec.ID),
			slog.Int("candidates", len(docs)),
			slog.Int("returned", len(results)),
			slog.String("error", err.Error()))
		return nil
	}

	byID := make(map[int64]store.Chunk, len(r.chunks))
	for _, c := range r.chunks {
		byID[c.ID] = c
	}
	chunks := make([]store.Chunk, len(reordered))
	for i, f := range reordered {
		chunks[i] = byID[f.Ref.ID]
	}
	r.chunks = chunks
	r.rec.ChunkRefs = search.Refs(reordered)
	return nil
}

func (r *run) generate() error {
	if err := r.enter(StateGenerating); err != nil {
		return err
	}
	start := time.Now()

	if prompt, ok := imagePrompt(r.req.Message); ok {
		if r.p.deps.Imager == nil {
			return perrors.New(perrors.ErrCodeImageFailed, "image generation is not configured", nil)
		}
		url, err := r.p.deps.Imager.GenerateImage(r.ctx, prompt, r.rec.PageSlug)
		if err != nil {
			return upstream(r.ctx, perrors.ErrCodeImageFailed, "image generation failed", err)
		}
		r.answer = "Image generated: " + url
		r.rec.Timings.GenerateMS = store.Millis(time.Since(start))
		return nil
	}

	prompt := BuildPrompt(r.req, r.chunks, r.p.cfg.ContextBudget)
	if prompt.Used < len(r.chunks) {
		slog.Debug("context_truncated",
			slog.String("run_id", r.rec.ID),
			slog.Int("chunks", len(r.chunks)),
			slog.Int("used", prompt.Used))
	}
	answer, err := r.p.deps.Generator.Generate(r.ctx, prompt.System, prompt.User)
	if err != nil {
		return upstream(r.ctx, perrors.ErrCodeGenerationFailed, "generation failed", err)
	}
	r.answer = answer
	r.rec.Timings.GenerateMS = store.Millis(time.Since(start))
	return nil
}

// persist saves the generated document as the page's new version. It runs
// to completion even if the client has gone, and its failures become a
// warning on a successful run.
func (r *run) persist() error {
	if r.rec.PageSlug == "" || !HasDocument(r.answer) || r.p.deps.Publisher == nil {
		return nil
	}
	doc, ok := ExtractDocument(r.answer)
	if !ok {
		return nil
	}
	if err := r.enter(StatePersisting); err != nil {
		return err
	}

	res, err := r.p.deps.Publisher.Publish(context.WithoutCancel(r.ctx), r.rec.PageSlug, doc)
	if err != nil {
		w := perrors.PersistenceWarning("answer was not saved: "+describe(err), err)
		r.rec.Warning = w.Error()
		slog.Warn("persist_failed", slog.String("run_id", r.rec.ID), slog.String("slug", r.rec.PageSlug),
			slog.String("error", err.Error()))
		return nil
	}
	r.rec.Saved = true
	r.rec.VersionLabel = res.Archived
	if warning := res.Warning(); warning != "" {
		r.rec.Warning = perrors.PersistenceWarning(warning, nil).Error()
	}
	return nil
}

func (r *run) finish() (*store.RunRecord, error) {
	if err := r.fsm.to(StateDone); err != nil {
		return r.fail(err)
	}
	r.rec.Status = store.RunDone
	r.rec.AnswerPreview = preview(r.answer)
	r.save()

	r.events.emit(EventDone, DonePayload{
		Answer:          r.answer,
		Saved:           r.rec.Saved,
		RetrievalMethod: r.rec.RetrievalMethod,
		Timings:         r.rec.Timings,
		Warning:         r.rec.Warning,
		Version:         r.rec.VersionLabel,
		RunID:           r.rec.ID,
	})
	slog.Info("run_complete",
		slog.String("run_id", r.rec.ID),
		slog.String("method", r.rec.RetrievalMethod),
		slog.Int("chunks", len(r.rec.ChunkRefs)),
		slog.Bool("saved", r.rec.Saved))
	return &r.rec, nil
}

func (r *run) fail(err error) (*store.RunRecord, error) {
	from := r.fsm.current()
	_ = r.fsm.to(StateFailed)
	r.rec.Status = store.RunFailed
	r.rec.ErrorCode = perrors.GetCode(err)
	r.rec.ErrorMessage = describe(err)
	r.rec.AnswerPreview = preview(r.answer)
	r.save()

	r.events.emit(EventError, ErrorPayload{
		Message: r.rec.ErrorMessage,
		Code:    r.rec.ErrorCode,
		Kind:    string(perrors.KindOf(err)),
	})
	attrs := append([]any{slog.String("run_id", r.rec.ID), slog.String("state", string(from))}, perrors.LogAttrs(err)...)
	slog.Warn("run_failed", attrs...)
	return &r.rec, err
}

// save writes the run once, detached from the request context.
func (r *run) save() {
	r.rec.FinishedAt = r.p.now().UTC()
	if r.p.deps.Runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), 5*time.Second)
	defer cancel()
	if err := r.p.deps.Runs.SaveRun(ctx, r.rec); err != nil {
		slog.Error("run_not_saved", slog.String("run_id", r.rec.ID), slog.String("error", err.Error()))
	}
}

// upstream classifies a failed external call. A call that outlived its
// own deadline is a timeout whatever the client reported.
func upstream(ctx context.Context, code, msg string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if perrors.GetCode(err) == perrors.ErrCodeUpstreamTimeout {
			return err
		}
		return perrors.New(perrors.ErrCodeUpstreamTimeout, msg+": timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if _, ok := perrors.As(err); ok {
		return err
	}
	return perrors.UpstreamError(code, msg, err)
}

// describe renders err with its cause, which PageError.Error omits.
func describe(err error) string {
	pe, ok := perrors.As(err)
	if !ok || pe.Cause == nil {
		return err.Error()
	}
	return pe.Error() + ": " + pe.Cause.Error()
}

func imagePrompt(message string) (string, bool) {
	trimmed := strings.TrimSpace(message)
	if len(trimmed) < len(imagePrefix) || !strings.EqualFold(trimmed[:len(imagePrefix)], imagePrefix) {
		return "", false
	}
	return strings.TrimSpace(trimmed[len(imagePrefix):]), true
}

func preview(answer string) string {
	if utf8.RuneCountInString(answer) <= PreviewRunes {
		return answer
	}
	return string([]rune(answer)[:PreviewRunes])
}
