package mcp

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/pagegenie/internal/search"
	"github.com/Aman-CERP/pagegenie/internal/store"
)

// maxSnippetRunes bounds chunk content in markdown output.
const maxSnippetRunes = 600

// FormatSearchResults formats search results as markdown.
func FormatSearchResults(query string, results []SearchResultOutput) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		fmt.Fprintf(&sb, "### %d. %s#%d (score: %.4f)\n", i+1, r.Slug, r.Index, r.Score)
		if r.Path != "" {
			fmt.Fprintf(&sb, "**Path:** `%s`\n", r.Path)
		}
		if r.MatchReason != "" {
			fmt.Fprintf(&sb, "**Why:** %s\n", r.MatchReason)
		}
		fmt.Fprintf(&sb, "\n```\n%s\n```\n\n", truncate(r.Content, maxSnippetRunes))
	}
	return sb.String()
}

// FormatAnswer formats an ask result as markdown. A full document is
// not repeated when it was saved; the caller can read it from the page.
func FormatAnswer(out AskOutput) string {
	var sb strings.Builder
	if out.Saved {
		sb.WriteString("Page updated.")
		if out.Version != "" {
			fmt.Fprintf(&sb, " Previous content archived as %s.", out.Version)
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString(out.Answer)
		sb.WriteString("\n")
	}
	if out.Warning != "" {
		fmt.Fprintf(&sb, "\n**Warning:** %s\n", out.Warning)
	}
	fmt.Fprintf(&sb, "\n_method: %s · run: %s_\n", out.RetrievalMethod, out.RunID)
	return sb.String()
}

// FormatVersions formats a page history as a markdown list.
func FormatVersions(out ListVersionsOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Versions of %s\n\n", out.Slug)
	for _, v := range out.Versions {
		fmt.Fprintf(&sb, "- **%s** (%s, %s)\n", v.Label, humanSize(int64(v.Size)), v.CreatedAt)
	}
	return sb.String()
}

// FormatRuns formats recent runs as a markdown table.
func FormatRuns(runs []RunOutput) string {
	if len(runs) == 0 {
		return "No runs recorded yet."
	}
	var sb strings.Builder
	sb.WriteString("| Run | Status | Method | Page | Question |\n|---|---|---|---|---|\n")
	for _, r := range runs {
		status := r.Status
		if r.ErrorCode != "" {
			status += " " + r.ErrorCode
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n",
			r.ID, status, r.RetrievalMethod, r.PageSlug,
			strings.ReplaceAll(truncate(r.Question, 80), "|", "\\|"))
	}
	return sb.String()
}

// ToSearchResultOutput converts a fused result and its chunk to the
// output format.
func ToSearchResultOutput(r search.FusedResult, c store.Chunk) SearchResultOutput {
	return SearchResultOutput{
		Slug:        c.Slug,
		Index:       c.Index,
		Path:        c.Path,
		Content:     c.Content,
		Score:       r.Score,
		LexicalRank: r.LexicalRank,
		VectorRank:  r.VectorRank,
		InBothLists: r.InBothLists(),
		MatchReason: generateMatchReason(r),
	}
}

// generateMatchReason explains which rankers placed the result.
func generateMatchReason(r search.FusedResult) string {
	var parts []string
	if r.LexicalRank > 0 {
		parts = append(parts, fmt.Sprintf("keyword rank %d", r.LexicalRank))
	}
	if r.VectorRank > 0 {
		parts = append(parts, fmt.Sprintf("semantic rank %d", r.VectorRank))
	}
	if len(parts) == 0 {
		return "matched content"
	}
	reason := strings.Join(parts, ", ")
	if r.InBothLists() {
		reason += "; found in both keyword and semantic search"
	}
	return reason
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

// toTimingsOutput flattens stage timings; stages that did not run stay zero.
func toTimingsOutput(t store.StageTimings) TimingsOutput {
	deref := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}
	return TimingsOutput{
		EmbedMS:    deref(t.EmbedMS),
		RetrieveMS: deref(t.RetrieveMS),
		RerankMS:   deref(t.RerankMS),
		GenerateMS: deref(t.GenerateMS),
	}
}

// ToRunOutput converts a stored run to the output format.
func ToRunOutput(r store.RunRecord) RunOutput {
	chunks := make([]string, len(r.ChunkRefs))
	for i, ref := range r.ChunkRefs {
		chunks[i] = ref.String()
	}
	return RunOutput{
		ID:              r.ID,
		Question:        r.Question,
		RetrievalMethod: r.RetrievalMethod,
		PageSlug:        r.PageSlug,
		Status:          r.Status,
		ErrorCode:       r.ErrorCode,
		ErrorMessage:    r.ErrorMessage,
		Warning:         r.Warning,
		Chunks:          chunks,
		Timings:         toTimingsOutput(r.Timings),
		Saved:           r.Saved,
		VersionLabel:    r.VersionLabel,
		CreatedAt:       r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// humanSize formats bytes as a human-readable string.
func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
	)

	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
