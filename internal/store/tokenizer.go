package store

import (
	"regexp"
	"strings"
	"unicode"
)

// tokenRegex matches runs of letters and digits (underscores kept for the
// identifier split below).
var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// EnglishStopWords are dropped from token representations and queries.
var EnglishStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "can", "do", "does",
	"for", "from", "has", "have", "how", "in", "into", "is", "it", "its", "me",
	"my", "of", "on", "or", "our", "please", "should", "so", "that", "the",
	"their", "then", "there", "these", "this", "to", "was", "we", "what", "when",
	"where", "which", "will", "with", "you", "your",
}

var defaultStopWords = BuildStopWordMap(EnglishStopWords)

// Tokenize produces the lexical token representation of text: lowercase
// tokens of at least two characters with identifiers such as "heroBanner"
// or "nav_item" split into words and stop words removed. Stemming is left
// to the index analyzer.
func Tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range SplitIdentifier(word) {
			lower := strings.ToLower(t)
			if len([]rune(lower)) < 2 {
				continue
			}
			if _, stop := defaultStopWords[lower]; stop {
				continue
			}
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

// SplitIdentifier splits snake_case and camelCase words.
func SplitIdentifier(token string) []string {
	if !strings.Contains(token, "_") {
		return SplitCamelCase(token)
	}
	var result []string
	for _, part := range strings.Split(token, "_") {
		if part != "" {
			result = append(result, SplitCamelCase(part)...)
		}
	}
	return result
}

// SplitCamelCase splits camelCase and PascalCase identifiers.
//   - "heroBanner" -> ["hero", "Banner"]
//   - "CTAButton" -> ["CTA", "Button"]
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevIsLower || nextIsLower) && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a lookup set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// ftsQuery turns free text into an FTS5 MATCH expression that ORs the
// quoted, deduplicated tokens. Quoting keeps user punctuation out of the
// FTS5 query grammar. Returns "" when no token survives.
func ftsQuery(text string) string {
	seen := make(map[string]struct{})
	var terms []string
	for _, tok := range Tokenize(text) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, `"`+strings.ReplaceAll(tok, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " OR ")
}
