package copyfeature

import (
	"math"
	"net/url"
	"regexp"
	"strings"

	"outreach_worker/core/domain"
)

// =============================================================================
// Body Features
// =============================================================================

var (
	bulletLine = regexp.MustCompile(`(?m)^\s*([-*•·▪‣◦–]|\d{1,2}[.)])\s+\S`)
	urlPattern = regexp.MustCompile(`(?i)\b(https?://[^\s<>"')\]]+|www\.[^\s<>"')\]]+)`)
	questions  = regexp.MustCompile(`\?+`)
)

// CalendarHosts are scheduling providers recognized as calendar links.
var CalendarHosts = []string{
	"calendly.com", "cal.com", "chilipiper.com", "meetings.hubspot.com", "savvycal.com",
	"youcanbook.me", "acuityscheduling.com", "calendar.google.com", "zcal.co", "tidycal.com",
}

// AnalyzeBody computes the body features from raw (possibly HTML) text.
func AnalyzeBody(body string) domain.BodyFeatures {
	text := StripHTML(body)
	f := domain.BodyFeatures{
		CTAType:     domain.CTANone,
		CTAPosition: domain.CTAPositionNone,
		CTAStrength: domain.CTAStrengthNone,
		Tone:        domain.ToneProfessional,
		OpeningLine: domain.OpeningOther,
	}
	if text == "" {
		return f
	}

	words := Words(text)
	sentences := Sentences(text)
	tokens := PersonalizationTokens(text)
	links := Links(body, text)

	f.ParagraphCount = len(Paragraphs(text))
	f.SentenceCount = len(sentences)
	f.WordCount = len(words)
	f.QuestionCount = len(questions.FindAllString(text, -1))
	f.BulletCount = len(bulletLine.FindAllString(text, -1))
	f.HasBullets = f.BulletCount > 0
	f.LinkCount = len(links)
	f.HasLinks = f.LinkCount > 0
	f.HasCalendarLink = HasCalendarLink(links, text)
	f.CTAType, f.CTAPosition = DetectCTA(text, f.HasCalendarLink)
	f.CTAStrength = StrengthOf(f.CTAType)
	f.Tone = DetectTone(text)
	f.ReadingGrade = ReadingGrade(words, len(sentences))
	f.YouIRatio = YouIRatio(words)
	f.PersonalizationCount = len(tokens)
	if f.WordCount > 0 {
		f.PersonalizationDensity = round2(float64(len(tokens)) / float64(f.WordCount) * 100)
	}
	f.OpeningLine = ClassifyOpeningLine(text)
	return f
}

// Links returns the distinct link targets from markup and visible text.
func Links(raw, text string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(u string) {
		u = strings.TrimRight(strings.TrimSpace(u), ".,;:!?")
		if u == "" || seen[u] || strings.HasPrefix(strings.ToLower(u), "mailto:") {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	for _, h := range hrefs(raw) {
		add(h)
	}
	for _, u := range urlPattern.FindAllString(text, -1) {
		add(u)
	}
	return out
}

// HasCalendarLink matches link hosts, then the text, against CalendarHosts.
func HasCalendarLink(links []string, text string) bool {
	for _, l := range links {
		if isCalendarHost(linkHost(l)) {
			return true
		}
	}
	lower := strings.ToLower(text)
	for _, h := range CalendarHosts {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

func linkHost(link string) string {
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func isCalendarHost(host string) bool {
	if host == "" {
		return false
	}
	host = strings.TrimPrefix(host, "www.")
	for _, h := range CalendarHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// =============================================================================
// CTA
// =============================================================================

type ctaRule struct {
	Type    domain.CTAType
	Pattern *regexp.Regexp
}

var day = `(monday|tuesday|wednesday|thursday|friday|tomorrow|morning|afternoon|this week|next week)`

// CTARules are mutually exclusive and evaluated in order; first match wins.
var CTARules = []ctaRule{
	{domain.CTAChoice, regexp.MustCompile(`\b` + day + `\s+or\s+` + day + `\b|\bwhich (time|day|option) works( better| best)?\b|\beither [^.?!]{1,40} or\b`)},
	{domain.CTADirect, regexp.MustCompile(`\b(reply (yes|with|back)|let me know (if|when|what)|can you (send|share|confirm|intro)|please (reply|confirm|send|book|respond)|sign up|get started|buy now)\b`)},
	{domain.CTAMeeting, regexp.MustCompile(`\b(\d+|fifteen|twenty|thirty|quick)[- ]?(min|mins|minute|minutes)\b|\b(hop|jump|get) on a (quick )?(call|zoom)\b|\bbook (a|some) time\b|\b(schedule|set up) a (call|meeting|demo|chat)\b|\bmy calendar\b|\bcalendly\b`)},
	{domain.CTASoft, regexp.MustCompile(`\b(open to|worth a (quick )?(chat|conversation|look)|interested in (learning|hearing|seeing)|would it make sense|any interest|curious (if|whether)|would you be open|make sense to|thoughts\?)`)},
	{domain.CTAValueFirst, regexp.MustCompile(`\b(happy to send|can send (over|you)|want me to send|free (guide|report|audit|trial|resource)|case study|i put together|i've attached|attached (is|a|the))\b`)},
}

// DetectCTA returns the first matching CTA type and its position by thirds of
// the text. A scheduling link stands in for the meeting rule.
func DetectCTA(text string, hasCalendarLink bool) (domain.CTAType, domain.CTAPosition) {
	lower := strings.ToLower(text)
	for _, r := range CTARules {
		loc := r.Pattern.FindStringIndex(lower)
		if loc == nil && r.Type == domain.CTAMeeting && hasCalendarLink {
			return domain.CTAMeeting, calendarPosition(lower)
		}
		if loc == nil {
			continue
		}
		return r.Type, positionOf(loc[0], len(lower))
	}
	return domain.CTANone, domain.CTAPositionNone
}

// calendarPosition places the first visible scheduling host; a link that only
// lives in markup counts as the closing ask.
func calendarPosition(lower string) domain.CTAPosition {
	first := -1
	for _, h := range CalendarHosts {
		if i := strings.Index(lower, h); i >= 0 && (first < 0 || i < first) {
			first = i
		}
	}
	if first < 0 {
		return domain.CTAPositionEnd
	}
	return positionOf(first, len(lower))
}

func positionOf(offset, length int) domain.CTAPosition {
	if length == 0 {
		return domain.CTAPositionNone
	}
	ratio := float64(offset) / float64(length)
	switch {
	case ratio < 1.0/3:
		return domain.CTAPositionEarly
	case ratio < 2.0/3:
		return domain.CTAPositionMiddle
	default:
		return domain.CTAPositionEnd
	}
}

// StrengthOf derives CTA strength from its type.
func StrengthOf(t domain.CTAType) domain.CTAStrength {
	switch t {
	case domain.CTAChoice, domain.CTADirect:
		return domain.CTAStrengthStrong
	case domain.CTAMeeting, domain.CTAValueFirst:
		return domain.CTAStrengthMedium
	case domain.CTASoft:
		return domain.CTAStrengthWeak
	default:
		return domain.CTAStrengthNone
	}
}

// =============================================================================
// Tone
// =============================================================================

var toneBuckets = []struct {
	tone    domain.Tone
	pattern *regexp.Regexp
}{
	{domain.ToneCasual, regexp.MustCompile(`\b(hey|awesome|cool|super|gonna|wanna|btw|lol|totally|stoked)\b|:\)`)},
	{domain.ToneFormal, regexp.MustCompile(`\b(dear|sincerely|regards|furthermore|therefore|hereby|kindly|respectfully|pursuant|i hope this (email|message) finds you)\b`)},
	{domain.ToneDirect, regexp.MustCompile(`\b(bottom line|straight to the point|i'll be brief|simply put|here's the deal|no fluff|cut to the chase|quick question)\b`)},
}

// DetectTone picks the bucket with the most keyword hits. Ties and no hits are
// professional.
func DetectTone(text string) domain.Tone {
	lower := strings.ToLower(text)
	best, bestHits, tie := domain.ToneProfessional, 0, false
	for _, b := range toneBuckets {
		hits := len(b.pattern.FindAllString(lower, -1))
		switch {
		case hits > bestHits:
			best, bestHits, tie = b.tone, hits, false
		case hits == bestHits && hits > 0:
			tie = true
		}
	}
	if bestHits == 0 || tie {
		return domain.ToneProfessional
	}
	return best
}

// =============================================================================
// Readability and pronouns
// =============================================================================

// ReadingGrade is a simplified Flesch-Kincaid grade, floored at 0.
func ReadingGrade(words []string, sentenceCount int) float64 {
	if len(words) == 0 || sentenceCount == 0 {
		return 0
	}
	syllables := 0
	for _, w := range words {
		syllables += Syllables(w)
	}
	grade := 0.39*(float64(len(words))/float64(sentenceCount)) +
		11.8*(float64(syllables)/float64(len(words))) - 15.59
	return round2(math.Max(0, grade))
}

var (
	youWords = map[string]bool{"you": true, "your": true, "yours": true, "yourself": true, "you're": true, "you've": true, "you'll": true, "you'd": true}
	iWords   = map[string]bool{"i": true, "me": true, "my": true, "mine": true, "myself": true, "i'm": true, "i've": true, "i'll": true, "i'd": true}
)

// YouIRatio is you-words per I-word; with no I-words it is the you-word count.
func YouIRatio(words []string) float64 {
	you, i := 0, 0
	for _, w := range words {
		lw := strings.ReplaceAll(strings.ToLower(w), "’", "'")
		switch {
		case youWords[lw]:
			you++
		case iWords[lw]:
			i++
		}
	}
	if i == 0 {
		return float64(you)
	}
	return round2(float64(you) / float64(i))
}

// =============================================================================
// Opening line
// =============================================================================

var (
	salutation = regexp.MustCompile(`(?i)^(hi|hey|hello|dear|greetings|good (morning|afternoon|evening))\b([^!?\n]{0,40}[,:!]|\s*\w{0,20})$`)

	openingRules = []struct {
		kind    domain.OpeningLine
		pattern *regexp.Regexp
	}{
		{domain.OpeningGreeting, regexp.MustCompile(`(?i)^(hi|hey|hello|greetings)\b|\bhope (you|this|all|your)\b|\bhappy (monday|tuesday|wednesday|thursday|friday|new year)\b`)},
		{domain.OpeningQuestion, regexp.MustCompile(`\?\s*$`)},
		{domain.OpeningCompliment, regexp.MustCompile(`(?i)\b(congrats|congratulations|loved your|love your|great work|impressed|enjoyed your|really liked|kudos)\b`)},
		{domain.OpeningObservation, regexp.MustCompile(`(?i)\b(i noticed|noticed that|i saw|saw that|came across|looks like|i see that|i read)\b`)},
		{domain.OpeningDirectIntro, regexp.MustCompile(`(?i)^(i'm|i am|my name is|this is|i work|i lead|i run|we help|we're|we are|i'm reaching out|reaching out)\b`)},
		{domain.OpeningPersonalization, regexp.MustCompile(`\{\{[^{}]*\}\}`)},
	}
)

// ClassifyOpeningLine classifies the first sentence after an optional salutation.
func ClassifyOpeningLine(text string) domain.OpeningLine {
	line := openingSentence(text)
	if line == "" {
		return domain.OpeningOther
	}
	for _, r := range openingRules {
		if r.pattern.MatchString(line) {
			return r.kind
		}
	}
	return domain.OpeningOther
}

func openingSentence(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i < len(lines) && salutation.MatchString(strings.TrimSpace(lines[i])) {
		i++
	}
	rest := strings.TrimSpace(strings.Join(lines[min(i, len(lines)):], "\n"))
	if rest == "" {
		return ""
	}
	loc := sentenceEnd.FindStringIndex(rest)
	if loc == nil {
		return firstLine(rest)
	}
	// keep the terminal punctuation so questions are recognizable
	end := loc[1]
	return strings.TrimSpace(firstLine(rest[:end]))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
