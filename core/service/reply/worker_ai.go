package reply

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"outreach_worker/core/domain"
	"outreach_worker/core/port/out"
)

// =============================================================================
// AI Tier
// =============================================================================

// DefaultTemperature keeps the completion close to deterministic.
const DefaultTemperature = 0.1

const maxPromptText = 4000

var (
	// ErrInvalidResponse covers unparsable JSON and unknown categories.
	ErrInvalidResponse = errors.New("invalid classification response")
)

// AIClassifier asks a completion service for a strict-JSON classification.
type AIClassifier struct {
	completion  out.CompletionService
	temperature float64
}

func NewAIClassifier(completion out.CompletionService, temperature float64) *AIClassifier {
	if temperature < 0 || temperature > 1 {
		temperature = DefaultTemperature
	}
	return &AIClassifier{completion: completion, temperature: temperature}
}

type aiResponse struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classify returns an error on any failure; callers fall back to the rule tier.
func (c *AIClassifier) Classify(ctx context.Context, text, subject string) (domain.ReplyClassification, error) {
	if c.completion == nil {
		return domain.ReplyClassification{}, out.ErrCompletionUnavailable
	}
	raw, err := c.completion.Complete(ctx, BuildPrompt(text, subject), c.temperature)
	if err != nil {
		return domain.ReplyClassification{}, err
	}
	return ParseResponse(raw)
}

// truncateText cuts s to at most n bytes without splitting a rune.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// BuildPrompt restates the closed category set and the is_positive rule.
func BuildPrompt(text, subject string) string {
	text = truncateText(text, maxPromptText)
	names := make([]string, len(domain.ReplyCategories))
	for i, c := range domain.ReplyCategories {
		names[i] = string(c)
	}

	var b strings.Builder
	b.WriteString("You classify replies to sales outreach emails.\n")
	b.WriteString("Choose exactly one category from: ")
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(".\n")
	b.WriteString("is_positive is true only for meeting_request and interested.\n")
	b.WriteString("Respond with strict JSON only, no prose and no code fences:\n")
	b.WriteString(`{"category": "<category>", "is_positive": <bool>, "confidence": <0..1>, "reasoning": "<one sentence>"}`)
	b.WriteString("\n\n")
	if subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", subject)
	}
	fmt.Fprintf(&b, "Reply:\n%s\n", text)
	return b.String()
}

// ParseResponse accepts the JSON object, optionally wrapped in a code fence.
// Sentiment and is_positive are always derived from the category.
func ParseResponse(raw string) (domain.ReplyClassification, error) {
	body := stripFences(raw)
	if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var resp aiResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return domain.ReplyClassification{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	category, ok := domain.ParseReplyCategory(resp.Category)
	if !ok {
		return domain.ReplyClassification{}, fmt.Errorf("%w: unknown category %q", ErrInvalidResponse, resp.Category)
	}
	return domain.NewReplyClassification(category, resp.Confidence, strings.TrimSpace(resp.Reasoning), domain.TierAI), nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
