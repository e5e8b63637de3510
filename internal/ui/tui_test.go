package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestIngestModel_ViewShowsStagesAndPage(t *testing.T) {
	// Given: a model tracking the indexing stage
	tracker := NewProgressTracker()
	tracker.SetStage(StageIndexing, 4)
	tracker.Update(1, "home")
	m := newIngestModel(tracker, "pages")

	// When: rendering
	view := m.View()

	// Then: header, stage names, counts and the current page appear
	assert.Contains(t, view, "pagegenie ingest • pages")
	assert.Contains(t, view, "Discovering")
	assert.Contains(t, view, "Indexing")
	assert.Contains(t, view, "1 / 4 pages")
	assert.Contains(t, view, "home")
}

func TestIngestModel_CompleteQuits(t *testing.T) {
	m := newIngestModel(NewProgressTracker(), "")

	_, cmd := m.Update(completeMsg(CompletionStats{Pages: 2, Chunks: 9, Duration: 2 * time.Second}))

	assert.NotNil(t, cmd)
	assert.True(t, m.complete)
	view := m.View()
	assert.Contains(t, view, "Ingestion Complete")
	assert.Contains(t, view, "9")
}

func TestIngestModel_QuitKey(t *testing.T) {
	m := newIngestModel(NewProgressTracker(), "")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	assert.NotNil(t, cmd)
	assert.Equal(t, "Cancelled.\n", m.View())
}

func TestIngestModel_WindowResize(t *testing.T) {
	m := newIngestModel(NewProgressTracker(), "")

	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	assert.Equal(t, 120, m.width)
	assert.Equal(t, 100, m.progressBar.Width)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{42 * time.Second, "42s"},
		{2 * time.Minute, "2m"},
		{150 * time.Second, "2m 30s"},
		{90 * time.Minute, "1h 30m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}
