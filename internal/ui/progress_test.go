package ui

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Stats(t *testing.T) {
	// Given: a tracker in the indexing stage
	p := NewProgressTracker()
	p.SetStage(StageIndexing, 4)

	// When: progressing
	p.Update(1, "home")
	p.Update(2, "")

	// Then: the snapshot reflects progress and keeps the last page
	s := p.Stats()
	assert.Equal(t, StageIndexing, s.Stage)
	assert.Equal(t, 2, s.Current)
	assert.InDelta(t, 0.5, s.Progress, 1e-9)
	assert.Equal(t, "home", s.CurrentPage)
}

func TestProgressTracker_ProgressIsCapped(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageIndexing, 2)
	p.Update(5, "")

	assert.InDelta(t, 1.0, p.Stats().Progress, 1e-9)
	assert.Zero(t, p.Stats().ETA)
}

func TestProgressTracker_SetStageResets(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageEmbedding, 10)
	p.Update(3, "home")

	p.SetStage(StageIndexing, 2)

	s := p.Stats()
	assert.Zero(t, s.Current)
	assert.Empty(t, s.CurrentPage)
	assert.Equal(t, 2, s.Total)
}

func TestProgressTracker_ErrorsAndWarnings(t *testing.T) {
	p := NewProgressTracker()
	p.AddError(ErrorEvent{Page: "a", Err: errors.New("x")})
	p.AddError(ErrorEvent{Page: "b", Err: errors.New("y"), IsWarn: true})

	s := p.Stats()
	assert.Equal(t, 1, s.ErrorCount)
	assert.Equal(t, 1, s.WarnCount)
	errs := p.Errors()
	assert.Len(t, errs, 1)
	assert.Equal(t, "a", errs[0].Page)
}

func TestProgressTracker_Concurrent(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageIndexing, 100)

	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Update(i, "page")
			_ = p.Stats()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, p.Stats().Total)
}
