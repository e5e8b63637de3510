package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// StageTime is one named stage duration in milliseconds.
type StageTime struct {
	Name string
	MS   float64
}

// AskSummary is what the ask command shows when a run completes.
type AskSummary struct {
	Answer  string
	Saved   bool
	Method  string
	Version string
	Warning string
	RunID   string
	Timings []StageTime
}

// AskPrinter writes the progress of one ask run as it streams, one line
// per stage, followed by the answer.
type AskPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	styles Styles
}

// NewAskPrinter creates a printer writing to out.
func NewAskPrinter(out io.Writer, noColor bool) *AskPrinter {
	return &AskPrinter{out: out, styles: GetStyles(noColor)}
}

// Phase reports entry into a stage.
func (p *AskPrinter) Phase(name string) {
	p.printf("%s %s\n", p.styles.Stage.Render("›"), p.styles.Label.Render(name))
}

// Retrieved reports the retrieval result.
func (p *AskPrinter) Retrieved(numChunks int, retrieveMS float64) {
	p.printf("  %s\n", p.styles.Dim.Render(fmt.Sprintf("%d chunks in %.0fms", numChunks, retrieveMS)))
}

// Error reports the terminal failure.
func (p *AskPrinter) Error(code, message string) {
	line := message
	if code != "" && !strings.Contains(message, code) {
		line = fmt.Sprintf("[%s] %s", code, message)
	}
	p.printf("%s %s\n", p.styles.Error.Render("✗"), line)
}

// Done prints the answer followed by a one-line summary.
func (p *AskPrinter) Done(s AskSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, _ = fmt.Fprintf(p.out, "\n%s\n\n", strings.TrimRight(s.Answer, "\n"))

	parts := []string{s.Method}
	for _, t := range s.Timings {
		parts = append(parts, fmt.Sprintf("%s %.0fms", t.Name, t.MS))
	}
	_, _ = fmt.Fprintln(p.out, p.styles.Dim.Render(strings.Join(parts, " · ")))

	if s.Saved {
		saved := "saved as current"
		if s.Version != "" {
			saved += ", previous archived as " + s.Version
		}
		_, _ = fmt.Fprintf(p.out, "%s %s\n", p.styles.Success.Render("✓"), saved)
	}
	if s.Warning != "" {
		_, _ = fmt.Fprintf(p.out, "%s %s\n", p.styles.Warning.Render("⚠"), s.Warning)
	}
	if s.RunID != "" {
		_, _ = fmt.Fprintf(p.out, "%s\n", p.styles.Dim.Render("run "+s.RunID))
	}
}

func (p *AskPrinter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, format, args...)
}
