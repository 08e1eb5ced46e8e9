package copyfeature

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"outreach_worker/core/domain"
)

// =============================================================================
// Subject Features
// =============================================================================

const (
	maxUrgencyScore = 100

	// a mostly-uppercase subject still reads as all caps
	allCapsLetterRatio = 0.7
	allCapsMinLetters  = 4
)

// AnalyzeSubject computes the subject-line features.
func AnalyzeSubject(subject string) domain.SubjectFeatures {
	s := strings.TrimSpace(subject)
	tokens := PersonalizationTokens(s)
	caps := Capitalization(s)

	return domain.SubjectFeatures{
		Length:               utf8.RuneCountInString(s),
		WordCount:            len(strings.Fields(s)),
		Punctuation:          TerminalPunctuation(s),
		Capitalization:       caps,
		PersonalizationCount: len(tokens),
		PersonalizationType:  ClassifyTokens(tokens),
		FirstWord:            ClassifyFirstWord(s),
		UrgencyScore:         UrgencyScore(s, caps),
	}
}

// TerminalPunctuation classifies how the subject ends.
func TerminalPunctuation(s string) domain.PunctuationClass {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasSuffix(s, "...") || strings.HasSuffix(s, "…"):
		return domain.PunctuationEllipsis
	case strings.HasSuffix(s, "?"):
		return domain.PunctuationQuestion
	case strings.HasSuffix(s, "!"):
		return domain.PunctuationExclamation
	case strings.HasSuffix(s, "."):
		return domain.PunctuationPeriod
	default:
		return domain.PunctuationNone
	}
}

// Capitalization compares the text against case-transformed copies of itself,
// ignoring personalization tokens.
func Capitalization(s string) domain.CapitalizationStyle {
	s = strings.TrimSpace(tokenPattern.ReplaceAllString(s, ""))
	upper, lower := strings.ToUpper(s), strings.ToLower(s)
	if upper == lower {
		// no cased letters
		return domain.CapsNormal
	}

	switch s {
	case upper:
		return domain.CapsAllCaps
	case lower:
		return domain.CapsAllLower
	case sentenceCase(s):
		return domain.CapsSentenceCase
	case titleCase(s):
		return domain.CapsTitleCase
	}

	letters, uppers := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		}
	}
	if letters >= allCapsMinLetters && float64(uppers)/float64(letters) >= allCapsLetterRatio {
		return domain.CapsAllCaps
	}
	return domain.CapsNormal
}

func sentenceCase(s string) string {
	lower := []rune(strings.ToLower(s))
	for i, r := range lower {
		if unicode.IsLetter(r) {
			lower[i] = unicode.ToUpper(r)
			break
		}
	}
	return string(lower)
}

func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	start := true
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			start = true
			b.WriteRune(r)
		case start && unicode.IsLetter(r):
			b.WriteRune(unicode.ToUpper(r))
			start = false
		default:
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				start = false
			}
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// ClassifyTokens returns the kind of the personalization tokens: name, company,
// other, mixed when kinds differ, or none.
func ClassifyTokens(tokens []string) domain.TokenType {
	if len(tokens) == 0 {
		return domain.TokenNone
	}
	kinds := map[domain.TokenType]struct{}{}
	for _, t := range tokens {
		name := strings.ToLower(t)
		switch {
		case strings.Contains(name, "name"):
			kinds[domain.TokenName] = struct{}{}
		case strings.Contains(name, "company"):
			kinds[domain.TokenCompany] = struct{}{}
		default:
			kinds[domain.TokenOther] = struct{}{}
		}
	}
	if len(kinds) > 1 {
		return domain.TokenMixed
	}
	for k := range kinds {
		return k
	}
	return domain.TokenNone
}

var (
	greetingWords = map[string]bool{"hi": true, "hello": true, "hey": true, "dear": true, "greetings": true, "howdy": true, "yo": true}
	reFwdWords    = map[string]bool{"re": true, "fw": true, "fwd": true}
	questionWords = map[string]bool{
		"who": true, "what": true, "when": true, "where": true, "why": true, "how": true, "which": true,
		"can": true, "could": true, "would": true, "should": true, "is": true, "are": true,
		"do": true, "does": true, "did": true, "will": true, "have": true,
	}
)

// ClassifyFirstWord buckets the first word by closed lookup.
func ClassifyFirstWord(s string) domain.FirstWordCategory {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return domain.FirstWordOther
	}
	first := fields[0]
	if strings.HasPrefix(first, "{{") {
		return domain.FirstWordPersonalization
	}
	w := strings.ToLower(strings.TrimFunc(first, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '$'
	}))
	switch {
	case w == "":
		return domain.FirstWordOther
	case reFwdWords[w]:
		return domain.FirstWordReFwd
	case greetingWords[w]:
		return domain.FirstWordGreeting
	case questionWords[w]:
		return domain.FirstWordQuestion
	case unicode.IsDigit([]rune(w)[0]) || w[0] == '$':
		return domain.FirstWordNumeric
	default:
		return domain.FirstWordOther
	}
}

// =============================================================================
// Urgency / spam score
// =============================================================================

type penalty struct {
	pattern *regexp.Regexp
	points  int
}

var urgencyPenalties = []penalty{
	{regexp.MustCompile(`\bfree\b`), 20},
	{regexp.MustCompile(`\bact now\b`), 25},
	{regexp.MustCompile(`\burgent\b`), 20},
	{regexp.MustCompile(`\blimited time\b`), 20},
	{regexp.MustCompile(`\blast chance\b`), 20},
	{regexp.MustCompile(`\bquote\b`), 10},
	{regexp.MustCompile(`\bclick here\b`), 20},
	{regexp.MustCompile(`\bguarantee`), 15},
	{regexp.MustCompile(`\basap\b`), 15},
	{regexp.MustCompile(`\bdon'?t miss\b`), 15},
	{regexp.MustCompile(`\bexpires?\b`), 15},
	{regexp.MustCompile(`\brisk[- ]free\b`), 15},
	{regexp.MustCompile(`100%`), 15},
	{regexp.MustCompile(`!!`), 15},
	{regexp.MustCompile(`\$`), 10},
}

const (
	emojiPenalty   = 10
	allCapsPenalty = 30
)

// UrgencyScore sums fixed penalties, capped at 100.
func UrgencyScore(s string, caps domain.CapitalizationStyle) int {
	lower := strings.ToLower(s)
	score := 0
	for _, p := range urgencyPenalties {
		if p.pattern.MatchString(lower) {
			score += p.points
		}
	}
	if hasEmoji(s) {
		score += emojiPenalty
	}
	if caps == domain.CapsAllCaps {
		score += allCapsPenalty
	}
	if score > maxUrgencyScore {
		score = maxUrgencyScore
	}
	return score
}

func hasEmoji(s string) bool {
	for _, r := range s {
		switch {
		case r >= 0x1F300 && r <= 0x1FAFF,
			r >= 0x2600 && r <= 0x27BF,
			r >= 0x1F1E6 && r <= 0x1F1FF:
			return true
		}
	}
	return false
}
