package ui

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatus() StatusInfo {
	return StatusInfo{
		DataDir:        ".pagegenie",
		PagesDir:       "pages",
		Pages:          []PageStatus{{Slug: "home", Chunks: 7, Versions: 3}},
		TotalChunks:    7,
		Runs:           2,
		DatabaseSize:   2048,
		LexicalBackend: "fts5",
		VectorIndex:    "exact",
		EmbedderModel:  "static",
		EmbedderDims:   256,
		SignatureStale: true,
		Reranker:       "none",
		Generator:      "gpt-5",
	}
}

func TestStatusRenderer_Render(t *testing.T) {
	var buf bytes.Buffer
	r := NewStatusRenderer(&buf, true)

	require.NoError(t, r.Render(sampleStatus()))

	out := buf.String()
	assert.Contains(t, out, "pagegenie status")
	assert.Contains(t, out, "home")
	assert.Contains(t, out, "Chunks: 7   Runs: 2")
	assert.Contains(t, out, "Database:  2.0 KB")
	assert.Contains(t, out, "static (256 dims)")
	assert.Contains(t, out, "ingest --force")
	assert.Contains(t, out, "Reranker:  none")
	assert.NotContains(t, out, "Bleve:")
}

func TestStatusRenderer_NoPages(t *testing.T) {
	var buf bytes.Buffer
	info := sampleStatus()
	info.Pages = nil

	require.NoError(t, NewStatusRenderer(&buf, true).Render(info))

	assert.Contains(t, buf.String(), "No pages ingested")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, NewStatusRenderer(&buf, true).RenderJSON(sampleStatus()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "fts5", decoded["lexical_backend"])
	assert.Equal(t, true, decoded["signature_stale"])
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}
