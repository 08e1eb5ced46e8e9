// Package reply classifies inbound email replies into intent categories.
//
// The rule tier is always available. The AI tier is an accuracy enhancement:
// any failure there is answered by the rule tier.
package reply

import (
	"regexp"
	"strings"

	"outreach_worker/core/domain"
)

// =============================================================================
// Rule Tier
// =============================================================================

// Rule is one (predicate, result) pair of the cascade.
type Rule struct {
	Name       string
	Category   domain.ReplyCategory
	Confidence float64
	Match      func(text, subject string) bool
}

const (
	neutralConfidence  = 0.3
	maxQuestionLength  = 200
	questionConfidence = 0.6
)

var (
	oooWord         = regexp.MustCompile(`\bo\.?o\.?o\b`)
	meetingDuration = regexp.MustCompile(`\b(\d+|five|ten|fifteen|twenty|thirty|few)\s*-?\s*(min|mins|minutes)\b`)
	weekdayWorks    = regexp.MustCompile(`\b(monday|tuesday|wednesday|thursday|friday|tomorrow)\b.*\b(work|works|good|free|available)\b`)
	negatedInterest = regexp.MustCompile(`\b(not|no longer|isn't|aren't|am not|are not|never)\s+(really\s+|very\s+)?interested\b`)
	interestedWord  = regexp.MustCompile(`\binterested\b`)
	passWord        = regexp.MustCompile(`\b(we'll|will|i'll|going to|gonna)\s+pass\b`)
)

var (
	oooPhrases = []string{
		"out of office", "out of the office", "automatic reply", "auto-reply", "autoreply",
		"on vacation", "on holiday", "on leave", "parental leave", "maternity leave",
		"away from my desk", "limited access to email", "currently away", "i am away",
		"i'm away", "will be back on", "returning on", "i will return",
	}
	unsubscribePhrases = []string{
		"unsubscribe", "remove me", "take me off", "opt out", "opt-out", "stop emailing",
		"stop contacting", "do not contact", "don't contact", "do not email", "don't email me",
		"remove my email", "no more emails", "off your list", "from your list",
	}
	hostilePhrases = []string{
		"fuck", "f*ck", "wtf", "stop spamming", "this is spam", "scam", "harass",
		"reporting you", "report you", "leave me alone", "go away", "piss off",
		"idiot", "how did you get my", "never contact",
	}
	meetingPhrases = []string{
		"schedule a call", "schedule a meeting", "schedule time", "set up a call", "set up a meeting",
		"set up a time", "book a call", "book a time", "book a meeting", "hop on a call",
		"jump on a call", "grab a call", "get on a call", "let's meet", "lets meet",
		"calendar invite", "send me an invite", "send an invite", "send over an invite",
		"what time works", "when are you free", "when works", "let's chat", "lets chat",
		"let's talk", "lets talk", "happy to chat", "happy to meet", "my calendar", "calendly",
	}
	interestedPhrases = []string{
		"sounds good", "sounds great", "sounds interesting", "tell me more", "learn more",
		"send me more", "send more info", "more information", "more details", "i'd love to",
		"would love to", "yes please", "let's do it", "count me in", "keen to", "i'm in",
		"we're open to", "open to it", "worth exploring",
	}
	referralPhrases = []string{
		"reach out to", "contact my colleague", "speak with", "better person", "right person",
		"in charge of", "handles this", "responsible for", "cc'ing", "cc'd", "looping in",
		"forwarding this to", "forwarded to", "i've copied", "i have copied",
	}
	notNowPhrases = []string{
		"not right now", "not now", "not at this time", "not at the moment", "maybe later",
		"circle back", "follow up in", "reach out in", "next quarter", "next year",
		"in a few months", "bad timing", "bad time", "not a priority", "revisit",
		"check back", "later this year", "too busy",
	}
	notInterestedPhrases = []string{
		"no thanks", "no thank you", "not a fit", "not a good fit", "we're good",
		"we are good", "all set", "no need", "not looking", "already have",
		"already use", "already using", "not for us", "decline", "not relevant",
	}
)

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// DefaultRules is the cascade, most specific first. First match wins.
var DefaultRules = []Rule{
	{
		Name: "out_of_office", Category: domain.ReplyOutOfOffice, Confidence: 0.95,
		Match: func(text, subject string) bool {
			return containsAny(text, oooPhrases) || containsAny(subject, oooPhrases) ||
				oooWord.MatchString(text) || oooWord.MatchString(subject)
		},
	},
	{
		Name: "unsubscribe", Category: domain.ReplyUnsubscribe, Confidence: 0.95,
		Match: func(text, _ string) bool { return containsAny(text, unsubscribePhrases) },
	},
	{
		Name: "hostile", Category: domain.ReplyNegativeHostile, Confidence: 0.9,
		Match: func(text, _ string) bool { return containsAny(text, hostilePhrases) },
	},
	{
		Name: "meeting_request", Category: domain.ReplyMeetingRequest, Confidence: 0.85,
		Match: func(text, _ string) bool {
			return meetingDuration.MatchString(text) || containsAny(text, meetingPhrases) ||
				weekdayWorks.MatchString(text)
		},
	},
	{
		Name: "interested", Category: domain.ReplyInterested, Confidence: 0.75,
		Match: func(text, _ string) bool {
			if negatedInterest.MatchString(text) {
				return false
			}
			return interestedWord.MatchString(text) || containsAny(text, interestedPhrases)
		},
	},
	{
		Name: "referral", Category: domain.ReplyReferral, Confidence: 0.7,
		Match: func(text, _ string) bool { return containsAny(text, referralPhrases) },
	},
	{
		Name: "not_now", Category: domain.ReplyNotNow, Confidence: 0.7,
		Match: func(text, _ string) bool { return containsAny(text, notNowPhrases) },
	},
	{
		Name: "not_interested", Category: domain.ReplyNotInterested, Confidence: 0.8,
		Match: func(text, _ string) bool {
			return negatedInterest.MatchString(text) || containsAny(text, notInterestedPhrases) ||
				passWord.MatchString(text)
		},
	},
	{
		Name: "question", Category: domain.ReplyQuestion, Confidence: questionConfidence,
		Match: func(text, _ string) bool {
			return strings.Contains(text, "?") && len(text) < maxQuestionLength
		},
	},
}

// RuleClassifier is the deterministic keyword/phrase tier.
type RuleClassifier struct {
	rules []Rule
}

// NewRuleClassifier uses DefaultRules unless rules are given.
func NewRuleClassifier(rules ...Rule) *RuleClassifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &RuleClassifier{rules: rules}
}

// Classify never fails. Unmatched text is neutral with low confidence.
func (c *RuleClassifier) Classify(text, subject string) domain.ReplyClassification {
	t := strings.ToLower(strings.TrimSpace(text))
	s := strings.ToLower(strings.TrimSpace(subject))
	for _, rule := range c.rules {
		if rule.Match(t, s) {
			return domain.NewReplyClassification(rule.Category, rule.Confidence, "matched rule: "+rule.Name, domain.TierRules)
		}
	}
	return domain.NewReplyClassification(domain.ReplyNeutral, neutralConfidence, "no rule matched", domain.TierRules)
}
