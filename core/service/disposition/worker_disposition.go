// Package disposition maps raw dialer outcome labels onto a normalized category
// and the connection/meeting/voicemail/bad-data facets.
//
// Classification is deterministic and total: every (label, duration) pair yields
// a result, possibly with all facets false. No AI is involved.
package disposition

import (
	"regexp"
	"strings"

	"outreach_worker/core/domain"
)

// DefaultConnectionThreshold is the call length, in seconds, above which a call
// counts as a connection regardless of its label.
const DefaultConnectionThreshold = 60

// CategoryUnknown is used when the label is empty.
const CategoryUnknown = "unknown"

// Facets are the four boolean disposition flags.
type Facets struct {
	Connection bool
	Meeting    bool
	Voicemail  bool
	BadData    bool
}

var (
	none       = Facets{}
	connection = Facets{Connection: true}
	meeting    = Facets{Connection: true, Meeting: true}
	voicemail  = Facets{Voicemail: true}
	badData    = Facets{BadData: true}
)

// =============================================================================
// Label normalization
// =============================================================================

var (
	voicemailDropPattern = regexp.MustCompile(`^voicemail drop \(or\) spoke for \d+ (seconds?|secs?) only$`)
	durationSuffix       = regexp.MustCompile(`\s*[-–:]\s*\d+(\.\d+)?\s*(seconds?|secs?|minutes?|mins?)\s*$`)
	spaces               = regexp.MustCompile(`\s+`)
)

var aliases = map[string]string{
	"gatekeeper": "receptionist",
	"connection": "send email",
}

// NormalizeLabel lower-cases the label, strips a trailing duration annotation
// and applies the legacy alias rewrites.
func NormalizeLabel(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = spaces.ReplaceAllString(s, " ")
	if voicemailDropPattern.MatchString(s) {
		return "voicemail"
	}
	s = strings.TrimSpace(durationSuffix.ReplaceAllString(s, ""))
	if alias, ok := aliases[s]; ok {
		return alias
	}
	return s
}

// =============================================================================
// Static table and fuzzy fallbacks
// =============================================================================

var table = map[string]Facets{
	"voicemail":             voicemail,
	"left voicemail":        voicemail,
	"voicemail left":        voicemail,
	"no answer":             none,
	"busy":                  none,
	"receptionist":          connection,
	"hung up":               connection,
	"not interested":        connection,
	"not qualified":         connection,
	"interested":            connection,
	"send email":            connection,
	"referral":              connection,
	"callback":              meeting,
	"call back":             meeting,
	"meeting booked":        meeting,
	"meeting scheduled":     meeting,
	"positive outcome":      meeting,
	"wrong number":          badData,
	"bad number":            badData,
	"do not call":           badData,
	"disconnected":          badData,
	"number not in service": badData,
}

type fallbackRule struct {
	name     string
	keywords []string
	facets   Facets
}

func (r fallbackRule) matches(label string) bool {
	for _, k := range r.keywords {
		if strings.Contains(label, k) {
			return true
		}
	}
	return false
}

// Evaluated top-down, first match wins.
var fallbacks = []fallbackRule{
	{"voicemail", []string{"voicemail", "voice mail"}, voicemail},
	{"meeting", []string{"callback", "call back", "meeting"}, meeting},
	{"positive", []string{"positive"}, meeting},
	{"negative", []string{"negative", "not qualified", "not interested"}, connection},
	{"bad_data", []string{"bad", "wrong", "do not call"}, badData},
	{"connection", []string{"receptionist", "hung up"}, connection},
}

// Lookup returns the facets for a normalized label from the static table, then
// the fuzzy fallbacks. ok is false when nothing matched.
func Lookup(normalized string) (Facets, bool) {
	if f, ok := table[normalized]; ok {
		return f, true
	}
	for _, rule := range fallbacks {
		if rule.matches(normalized) {
			return rule.facets, true
		}
	}
	return none, false
}

// =============================================================================
// Classifier
// =============================================================================

// Classifier applies the label lookup and the duration override.
type Classifier struct {
	threshold int
}

type Option func(*Classifier)

// WithConnectionThreshold overrides DefaultConnectionThreshold. Non-positive
// values are ignored.
func WithConnectionThreshold(seconds int) Option {
	return func(c *Classifier) {
		if seconds > 0 {
			c.threshold = seconds
		}
	}
}

func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{threshold: DefaultConnectionThreshold}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Threshold returns the duration override in seconds.
func (c *Classifier) Threshold() int {
	return c.threshold
}

// Classify returns the disposition for a raw label and a duration in seconds.
func (c *Classifier) Classify(label string, durationSeconds int) domain.Disposition {
	normalized := NormalizeLabel(label)
	facets, _ := Lookup(normalized)

	if !facets.Connection && durationSeconds > c.threshold {
		facets.Connection = true
	}

	category := normalized
	if category == "" {
		category = CategoryUnknown
	}
	return domain.Disposition{
		Category:     category,
		IsConnection: facets.Connection,
		IsMeeting:    facets.Meeting,
		IsVoicemail:  facets.Voicemail,
		IsBadData:    facets.BadData,
	}
}

// Apply classifies the record in place.
func (c *Classifier) Apply(rec *domain.CallRecord) {
	rec.ApplyDisposition(c.Classify(rec.RawOutcome, rec.Duration()))
}
