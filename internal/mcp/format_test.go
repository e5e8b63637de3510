package mcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/pagegenie/internal/search"
)

func TestFormatSearchResults(t *testing.T) {
	t.Run("no results", func(t *testing.T) {
		assert.Equal(t, `No results found for "pricing"`, FormatSearchResults("pricing", nil))
	})

	t.Run("singular and plural", func(t *testing.T) {
		one := FormatSearchResults("q", []SearchResultOutput{{Slug: "home", Content: "a"}})
		assert.Contains(t, one, "Found 1 result\n")

		two := FormatSearchResults("q", []SearchResultOutput{{Slug: "home"}, {Slug: "about", Index: 3}})
		assert.Contains(t, two, "Found 2 results")
		assert.Contains(t, two, "### 2. about#3")
	})

	t.Run("long content truncated", func(t *testing.T) {
		out := FormatSearchResults("q", []SearchResultOutput{{Slug: "home", Content: strings.Repeat("é", 1000)}})
		assert.Contains(t, out, strings.Repeat("é", maxSnippetRunes)+"…")
		assert.NotContains(t, out, strings.Repeat("é", maxSnippetRunes+1))
	})
}

func TestFormatAnswer(t *testing.T) {
	saved := FormatAnswer(AskOutput{Answer: "<html></html>", Saved: true, Version: "v2", RetrievalMethod: "vector", RunID: "r"})
	assert.Contains(t, saved, "Previous content archived as v2.")
	assert.NotContains(t, saved, "<html>")

	plain := FormatAnswer(AskOutput{Answer: "Use a shorter headline.", Warning: "answer was not saved"})
	assert.True(t, strings.HasPrefix(plain, "Use a shorter headline.\n"))
	assert.Contains(t, plain, "**Warning:** answer was not saved")
}

func TestFormatRuns_EscapesPipes(t *testing.T) {
	out := FormatRuns([]RunOutput{{ID: "r1", Status: "failed", ErrorCode: "ERR_301_UPSTREAM_TIMEOUT", Question: "a|b"}})
	assert.Contains(t, out, "failed ERR_301_UPSTREAM_TIMEOUT")
	assert.Contains(t, out, `a\|b`)
}

func TestGenerateMatchReason(t *testing.T) {
	tests := []struct {
		name string
		in   search.FusedResult
		want string
	}{
		{"lexical only", search.FusedResult{LexicalRank: 2}, "keyword rank 2"},
		{"vector only", search.FusedResult{VectorRank: 1}, "semantic rank 1"},
		{"both", search.FusedResult{LexicalRank: 1, VectorRank: 3}, "keyword rank 1, semantic rank 3; found in both keyword and semantic search"},
		{"neither", search.FusedResult{}, "matched content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, generateMatchReason(tt.in))
		})
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 5, clampLimit(0, 5, 1, 50))
	assert.Equal(t, 50, clampLimit(99, 5, 1, 50))
	assert.Equal(t, 7, clampLimit(7, 5, 1, 50))
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KB", humanSize(1536))
	assert.Equal(t, "2.0 MB", humanSize(2*1024*1024))
}
