package llm

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="1024" height="1024" viewBox="0 0 1024 1024">
  <defs>
    <linearGradient id="g" x1="0" y1="0" x2="1" y2="1">
      <stop offset="0%%" stop-color="#4f46e5"/>
      <stop offset="100%%" stop-color="#06b6d4"/>
    </linearGradient>
  </defs>
  <rect width="1024" height="1024" fill="url(#g)"/>
  <circle cx="512" cy="480" r="220" fill="rgba(255,255,255,0.15)"/>
  <text x="512" y="760" font-size="36" font-family="system-ui, sans-serif" text-anchor="middle" fill="#ffffff">%s</text>
  <text x="24" y="50" font-size="20" font-family="monospace" fill="#ffffff" opacity="0.7">placeholder</text>
</svg>
`

// PlaceholderImager writes an SVG card showing the prompt into the page's
// assets directory. It stands in for image generation without credentials.
type PlaceholderImager struct {
	pagesDir string
	now      func() time.Time
}

// NewPlaceholderImager writes under pagesDir.
func NewPlaceholderImager(pagesDir string) *PlaceholderImager {
	return &PlaceholderImager{pagesDir: pagesDir, now: time.Now}
}

// GenerateImage writes pages/<slug>/assets/img-<ts>.svg (pages/assets when
// slug is empty) and returns its URL path.
func (p *PlaceholderImager) GenerateImage(_ context.Context, prompt, slug string) (string, error) {
	rel := "assets"
	if slug != "" {
		rel = filepath.Join(slug, "assets")
	}
	dir := filepath.Join(p.pagesDir, rel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create asset directory: %w", err)
	}

	label := strings.TrimSpace(prompt)
	if utf8.RuneCountInString(label) > 200 {
		label = string([]rune(label)[:200])
	}
	name := fmt.Sprintf("img-%s.svg", p.now().UTC().Format("20060102T150405.000"))
	if err := os.WriteFile(filepath.Join(dir, name), []byte(fmt.Sprintf(placeholderSVG, html.EscapeString(label))), 0o644); err != nil {
		return "", fmt.Errorf("failed to write placeholder image: %w", err)
	}
	return "/pages/" + filepath.ToSlash(filepath.Join(rel, name)), nil
}
