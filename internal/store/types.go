// Package store persists chunks, documents, versions and run records in
// SQLite and provides the lexical and vector indexes queried by retrieval.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by any operation on a closed store or index.
var ErrClosed = errors.New("store is closed")

// ErrNotFound is returned when a document or version does not exist.
var ErrNotFound = errors.New("not found")

// ChunkRef identifies a chunk. ID is the storage row ID; (Slug, Index) is
// the chunk's identity within its document.
type ChunkRef struct {
	ID    int64  `json:"id"`
	Slug  string `json:"slug"`
	Index int    `json:"chunk_index"`
}

// String formats the ref as slug#index.
func (r ChunkRef) String() string {
	return fmt.Sprintf("%s#%d", r.Slug, r.Index)
}

// Chunk is a stored, immutable fragment of a document.
type Chunk struct {
	ChunkRef
	Path      string    `json:"path,omitempty"`
	Content   string    `json:"content"`
	Tokens    string    `json:"-"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// NewChunk is a chunk ready to be written.
type NewChunk struct {
	Index     int
	Path      string
	Content   string
	Embedding []float32
}

// Hit is one ranked result from an index.
type Hit struct {
	Ref   ChunkRef
	Score float64
}

// LexicalIndex is a full-text index over chunk token representations.
// Results are ordered by descending score, then chunk index.
type LexicalIndex interface {
	SearchLexical(ctx context.Context, query string, k int, slug string) ([]Hit, error)
}

// VectorIndex is a cosine-similarity index over chunk embeddings.
// Results are ordered by descending similarity, then chunk index.
// An empty index returns no hits and no error.
type VectorIndex interface {
	SearchVector(ctx context.Context, query []float32, k int, slug string) ([]Hit, error)
}

// SlugIndexer is an index kept outside the chunk transaction. It is told
// about a slug's new chunk set after the transaction commits.
type SlugIndexer interface {
	ReplaceSlug(ctx context.Context, slug string, chunks []Chunk) error
}

// ErrDimensionMismatch indicates a query or chunk vector of the wrong size.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'pagegenie ingest --force')", e.Expected, e.Got)
}

// StageTimings holds per-stage elapsed milliseconds. Nil means the stage did not run.
type StageTimings struct {
	EmbedMS    *float64 `json:"embed_ms,omitempty"`
	RetrieveMS *float64 `json:"retrieve_ms,omitempty"`
	RerankMS   *float64 `json:"rerank_ms,omitempty"`
	GenerateMS *float64 `json:"generate_ms,omitempty"`
}

// Millis converts d to the millisecond value used in StageTimings.
func Millis(d time.Duration) *float64 {
	ms := float64(d.Microseconds()) / 1000
	return &ms
}

// Run statuses.
const (
	RunDone   = "done"
	RunFailed = "failed"
)

// RunRecord is the audit record of one chat request.
type RunRecord struct {
	ID              string       `json:"id"`
	Question        string       `json:"question"`
	RetrievalMethod string       `json:"retrieval_method"`
	PageSlug        string       `json:"page_slug,omitempty"`
	Status          string       `json:"status"`
	ErrorCode       string       `json:"error_code,omitempty"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	Warning         string       `json:"warning,omitempty"`
	ChunkRefs       []ChunkRef   `json:"chunk_refs"`
	Timings         StageTimings `json:"timings"`
	AnswerPreview   string       `json:"answer_preview"`
	Saved           bool         `json:"saved"`
	VersionLabel    string       `json:"version_label,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	FinishedAt      time.Time    `json:"finished_at"`
}

// Version labels.
const (
	CurrentLabel  = "current"
	versionPrefix = "v"
)

// VersionLabel formats an archived version number.
func VersionLabel(n int) string {
	return fmt.Sprintf("%s%d", versionPrefix, n)
}

// VersionInfo describes one entry of a slug's history.
type VersionInfo struct {
	Label     string    `json:"label"`
	Number    int       `json:"number,omitempty"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}
