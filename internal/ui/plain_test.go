package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlainRenderer_Progress(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	r.UpdateProgress(ProgressEvent{Stage: StageDiscovering, Message: "pages"})
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing, Current: 2, Total: 5, CurrentPage: "home"})
	r.UpdateProgress(ProgressEvent{Stage: StageChunking})

	assert.Equal(t, "[FIND] pages\n[INDEX] 2/5 - home\n", buf.String())
}

func TestPlainRenderer_Errors(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	r.AddError(ErrorEvent{Page: "home", Err: errors.New("boom")})
	r.AddError(ErrorEvent{Err: errors.New("slow"), IsWarn: true})

	assert.Equal(t, "ERROR: home: boom\nWARN: slow\n", buf.String())
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: stats with a stage breakdown and an embedder
	var buf bytes.Buffer
	r := NewPlainRenderer(NewConfig(&buf))

	// When: completing
	r.Complete(CompletionStats{
		Pages:    3,
		Chunks:   12,
		Duration: 1500 * time.Millisecond,
		Errors:   1,
		Stages:   StageTimings{Chunk: time.Millisecond, Embed: time.Second, Index: 2 * time.Millisecond},
		Embedder: EmbedderInfo{Model: "text-embedding-3-small", Dimensions: 1536},
	})

	// Then: summary, breakdown and embedder lines are printed
	out := buf.String()
	assert.Contains(t, out, "Complete: 3 pages, 12 chunks indexed in 1.5s (1 errors, 0 warnings)")
	assert.Contains(t, out, "Embed:   1s (12 chunks @ 12.0/sec)")
	assert.Contains(t, out, "Embedder: text-embedding-3-small (1536 dims)")
}

func TestNewRenderer_PlainForNonTTY(t *testing.T) {
	var buf bytes.Buffer

	r := NewRenderer(NewConfig(&buf))

	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
	assert.False(t, IsTTY(&buf))
	assert.False(t, IsTTY(nil))
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestStage_Names(t *testing.T) {
	assert.Equal(t, "Embedding", StageEmbedding.String())
	assert.Equal(t, "EMBED", StageEmbedding.Icon())
	assert.Equal(t, "DONE", StageComplete.Icon())
}
