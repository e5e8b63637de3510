package mcp

// AskInput defines the input schema for the ask tool.
type AskInput struct {
	Message         string `json:"message" jsonschema:"the question or edit instruction"`
	PageSlug        string `json:"page_slug,omitempty" jsonschema:"page to edit or scope retrieval to"`
	RetrievalMethod string `json:"retrieval_method,omitempty" jsonschema:"vector or hybrid, default from config"`
	SelectedHTML    string `json:"selected_html,omitempty" jsonschema:"outer HTML of the element the edit should focus on"`
	SystemContext   string `json:"system_context,omitempty" jsonschema:"replaces the default system context"`
}

// AskOutput defines the output schema for the ask tool.
type AskOutput struct {
	Answer          string        `json:"answer" jsonschema:"generated answer or full page document"`
	Saved           bool          `json:"saved" jsonschema:"true if the answer replaced the page's current version"`
	RetrievalMethod string        `json:"retrieval_method"`
	Version         string        `json:"version,omitempty" jsonschema:"label the previous current version was archived as"`
	Warning         string        `json:"warning,omitempty" jsonschema:"persistence problem that did not fail the run"`
	RunID           string        `json:"run_id"`
	Timings         TimingsOutput `json:"timings"`
}

// TimingsOutput holds stage durations in milliseconds. Zero means the
// stage did not run.
type TimingsOutput struct {
	EmbedMS    float64 `json:"embed_ms,omitempty"`
	RetrieveMS float64 `json:"retrieve_ms,omitempty"`
	RerankMS   float64 `json:"rerank_ms,omitempty"`
	GenerateMS float64 `json:"generate_ms,omitempty"`
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query  string `json:"query" jsonschema:"the search query to execute"`
	Method string `json:"method,omitempty" jsonschema:"vector or hybrid, default hybrid"`
	Slug   string `json:"slug,omitempty" jsonschema:"restrict results to one page"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"list of search results, best first"`
}

// SearchResultOutput is one fused result with the ranks that produced it.
type SearchResultOutput struct {
	Slug        string  `json:"slug"`
	Index       int     `json:"index" jsonschema:"chunk position within the page"`
	Path        string  `json:"path,omitempty" jsonschema:"structural DOM path of the chunk"`
	Content     string  `json:"content"`
	Score       float64 `json:"score" jsonschema:"fused score"`
	LexicalRank int     `json:"lexical_rank,omitempty"`
	VectorRank  int     `json:"vector_rank,omitempty"`
	InBothLists bool    `json:"in_both_lists,omitempty" jsonschema:"true if both rankers returned the chunk"`
	MatchReason string  `json:"match_reason,omitempty" jsonschema:"human-readable explanation of why this result matched"`
}

// ListVersionsInput defines the input schema for the list_versions tool.
type ListVersionsInput struct {
	Slug string `json:"slug" jsonschema:"page slug"`
}

// ListVersionsOutput defines the output schema for the list_versions tool.
type ListVersionsOutput struct {
	Slug     string          `json:"slug"`
	Versions []VersionOutput `json:"versions" jsonschema:"current first, then archived versions newest first"`
}

// VersionOutput describes one stored version.
type VersionOutput struct {
	Label     string `json:"label"`
	Size      int    `json:"size" jsonschema:"content length in bytes"`
	CreatedAt string `json:"created_at" jsonschema:"RFC 3339 timestamp"`
}

// ListRunsInput defines the input schema for the list_runs tool.
type ListRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of runs, default 20"`
}

// ListRunsOutput defines the output schema for the list_runs tool.
type ListRunsOutput struct {
	Runs []RunOutput `json:"runs" jsonschema:"finalized runs, newest first"`
}

// RunOutput summarizes one finalized run.
type RunOutput struct {
	ID              string        `json:"id"`
	Question        string        `json:"question"`
	RetrievalMethod string        `json:"retrieval_method"`
	PageSlug        string        `json:"page_slug,omitempty"`
	Status          string        `json:"status" jsonschema:"done or failed"`
	ErrorCode       string        `json:"error_code,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	Warning         string        `json:"warning,omitempty"`
	Chunks          []string      `json:"chunks" jsonschema:"retrieved chunks as slug#index"`
	Timings         TimingsOutput `json:"timings"`
	Saved           bool          `json:"saved"`
	VersionLabel    string        `json:"version_label,omitempty"`
	CreatedAt       string        `json:"created_at" jsonschema:"RFC 3339 timestamp"`
}
