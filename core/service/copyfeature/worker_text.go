// Package copyfeature extracts structural and linguistic features from email copy.
//
// Every function here is pure and safe on empty input: blank text yields the
// zeroed feature set, never an error or NaN.
package copyfeature

import (
	"html"
	"math"
	"regexp"
	"strings"
)

// =============================================================================
// HTML stripping
// =============================================================================

var (
	scriptStyle   = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	blockBreak    = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|h[1-6]|tr|ul|ol)>`)
	listItem      = regexp.MustCompile(`(?i)<li[^>]*>`)
	htmlTag       = regexp.MustCompile(`(?s)<[^>]*>`)
	hrefAttr      = regexp.MustCompile(`(?i)href\s*=\s*["']([^"']+)["']`)
	inlineSpaces  = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	manyNewlines  = regexp.MustCompile(`\n{3,}`)
	spaceNewlines = regexp.MustCompile(` *\n *`)
)

// StripHTML converts an HTML body to plain text, keeping paragraph and list
// breaks as newlines.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = scriptStyle.ReplaceAllString(s, "")
	s = listItem.ReplaceAllString(s, "\n- ")
	s = blockBreak.ReplaceAllString(s, "\n\n")
	s = htmlTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = inlineSpaces.ReplaceAllString(s, " ")
	s = spaceNewlines.ReplaceAllString(s, "\n")
	s = manyNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// hrefs returns link targets present only in markup.
func hrefs(raw string) []string {
	var out []string
	for _, m := range hrefAttr.FindAllStringSubmatch(raw, -1) {
		out = append(out, m[1])
	}
	return out
}

// =============================================================================
// Tokenizing
// =============================================================================

var (
	wordPattern      = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'’]*`)
	sentenceEnd      = regexp.MustCompile(`[.!?…]+(\s+|$)`)
	tokenPattern     = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)
	vowelGroup       = regexp.MustCompile(`[aeiouy]+`)
	paragraphDivider = regexp.MustCompile(`\n\s*\n`)
)

// Words returns the word tokens of s. Personalization tokens count as words.
func Words(s string) []string {
	return wordPattern.FindAllString(s, -1)
}

// Sentences splits on terminal punctuation; fragments without words are dropped.
func Sentences(s string) []string {
	var out []string
	for _, part := range sentenceEnd.Split(s, -1) {
		if len(Words(part)) > 0 {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return out
}

// Paragraphs splits on blank lines.
func Paragraphs(s string) []string {
	var out []string
	for _, p := range paragraphDivider.Split(s, -1) {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

// Syllables estimates by counting vowel groups, dropping a silent final e.
func Syllables(word string) int {
	w := strings.ToLower(word)
	n := len(vowelGroup.FindAllString(w, -1))
	if n > 1 && strings.HasSuffix(w, "e") && !strings.HasSuffix(w, "le") && !strings.HasSuffix(w, "ee") {
		n--
	}
	if n < 1 {
		n = 1
	}
	return n
}

// PersonalizationTokens returns the names inside {{...}} tokens.
func PersonalizationTokens(s string) []string {
	var out []string
	for _, m := range tokenPattern.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	return out
}

func round2(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return math.Round(f*100) / 100
}
