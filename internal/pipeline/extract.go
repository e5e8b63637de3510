package pipeline

import (
	"regexp"
	"strings"
)

var (
	htmlMarker = regexp.MustCompile(`(?i)<html`)
	docStart   = regexp.MustCompile(`(?i)<!doctype html|<html`)
	docEnd     = regexp.MustCompile(`(?i)</html\s*>`)
	fenceLine  = regexp.MustCompile("(?m)^[ \t]*```[A-Za-z0-9_-]*[ \t]*\r?\n?")
)

// HasDocument reports whether answer contains an opening html tag.
func HasDocument(answer string) bool {
	return htmlMarker.MatchString(answer)
}

// ExtractDocument returns the HTML document inside answer: from the first
// doctype or html tag through the last closing html tag, with markdown
// code fences removed. A document missing its closing tag runs to the end
// of the answer. ok is false when answer holds no document.
func ExtractDocument(answer string) (doc string, ok bool) {
	text := fenceLine.ReplaceAllString(answer, "")
	start := docStart.FindStringIndex(text)
	if start == nil {
		return "", false
	}
	text = text[start[0]:]

	if ends := docEnd.FindAllStringIndex(text, -1); len(ends) > 0 {
		text = text[:ends[len(ends)-1][1]]
	}
	return strings.TrimSpace(text), true
}
