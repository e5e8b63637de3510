package ui

import (
	"encoding/json"
	"fmt"
	"io"
)

// PageStatus is one page's index state.
type PageStatus struct {
	Slug     string `json:"slug"`
	Chunks   int    `json:"chunks"`
	Versions int    `json:"versions"`
}

// StatusInfo contains store and capability health.
type StatusInfo struct {
	DataDir     string       `json:"data_dir"`
	PagesDir    string       `json:"pages_dir"`
	Pages       []PageStatus `json:"pages"`
	TotalChunks int          `json:"total_chunks"`
	Runs        int          `json:"runs"`

	// Storage sizes (in bytes)
	DatabaseSize int64 `json:"database_size"`
	LexicalSize  int64 `json:"lexical_size"`

	LexicalBackend string `json:"lexical_backend"`
	VectorIndex    string `json:"vector_index"`
	EmbedderModel  string `json:"embedder_model"`
	EmbedderDims   int    `json:"embedder_dims"`
	// SignatureStale means stored vectors came from another embedder.
	SignatureStale bool   `json:"signature_stale"`
	Reranker       string `json:"reranker"`
	Generator      string `json:"generator"`
}

// StatusRenderer displays store status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("pagegenie status"))

	_, _ = fmt.Fprintf(r.out, "  Data:   %s\n", info.DataDir)
	_, _ = fmt.Fprintf(r.out, "  Pages:  %s\n\n", info.PagesDir)

	if len(info.Pages) == 0 {
		_, _ = fmt.Fprintln(r.out, "  No pages ingested. Run 'pagegenie ingest'.")
	} else {
		_, _ = fmt.Fprintf(r.out, "  %-32s %8s %9s\n", "SLUG", "CHUNKS", "VERSIONS")
		for _, p := range info.Pages {
			_, _ = fmt.Fprintf(r.out, "  %-32s %8d %9d\n", p.Slug, p.Chunks, p.Versions)
		}
	}
	_, _ = fmt.Fprintf(r.out, "\n  Chunks: %d   Runs: %d\n\n", info.TotalChunks, info.Runs)

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Database:  %s\n", FormatBytes(info.DatabaseSize))
	if info.LexicalSize > 0 {
		_, _ = fmt.Fprintf(r.out, "    Bleve:     %s\n", FormatBytes(info.LexicalSize))
	}
	_, _ = fmt.Fprintf(r.out, "    Lexical:   %s\n", info.LexicalBackend)
	_, _ = fmt.Fprintf(r.out, "    Vectors:   %s\n\n", info.VectorIndex)

	embedder := fmt.Sprintf("%s (%d dims)", info.EmbedderModel, info.EmbedderDims)
	if info.SignatureStale {
		embedder += " " + r.styles.Warning.Render("stale, run 'pagegenie ingest --force'")
	}
	_, _ = fmt.Fprintf(r.out, "  Embedder:  %s\n", embedder)
	_, _ = fmt.Fprintf(r.out, "  Reranker:  %s\n", r.renderState(info.Reranker))
	_, _ = fmt.Fprintf(r.out, "  Generator: %s\n", r.renderState(info.Generator))
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderState(state string) string {
	switch state {
	case "none", "unavailable":
		return r.styles.Warning.Render(state)
	case "":
		return "n/a"
	default:
		return r.styles.Success.Render(state)
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
