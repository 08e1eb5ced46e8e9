package reply

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"outreach_worker/core/domain"
	"outreach_worker/core/port/out"
	"outreach_worker/pkg/logger"
	"outreach_worker/pkg/metrics"
)

// ErrEmptyText marks a record with no usable text. It is skipped, not retried.
var ErrEmptyText = errors.New("reply has no usable text")

// DefaultRetryPause is the wait after a 429 before the single retry.
const DefaultRetryPause = 5 * time.Second

// Outcome is the tagged result of a two-tier classification. Fallback holds the
// AI error when the rule tier answered in its place.
type Outcome struct {
	Classification domain.ReplyClassification
	Fallback       error
}

// FellBack reports whether the AI tier failed and rules answered.
func (o Outcome) FellBack() bool {
	return o.Fallback != nil
}

// Classifier runs the AI tier when configured and the rule tier otherwise.
type Classifier struct {
	rules      *RuleClassifier
	ai         *AIClassifier
	limiter    *rate.Limiter
	retryPause time.Duration
	now        func() time.Time
	log        zerolog.Logger
	metrics    *metrics.SyncMetrics
}

type Option func(*Classifier)

// WithAI enables the AI tier.
func WithAI(ai *AIClassifier) Option {
	return func(c *Classifier) { c.ai = ai }
}

// WithCallDelay paces AI calls to one per delay.
func WithCallDelay(delay time.Duration) Option {
	return func(c *Classifier) {
		if delay > 0 {
			c.limiter = rate.NewLimiter(rate.Every(delay), 1)
		}
	}
}

// WithRetryPause sets the pause before retrying a rate-limited call.
func WithRetryPause(d time.Duration) Option {
	return func(c *Classifier) { c.retryPause = d }
}

// WithClock overrides the classification timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

func NewClassifier(rules *RuleClassifier, opts ...Option) *Classifier {
	if rules == nil {
		rules = NewRuleClassifier()
	}
	c := &Classifier{
		rules:      rules,
		retryPause: DefaultRetryPause,
		now:        time.Now,
		log:        logger.Component("reply_classifier"),
		metrics:    metrics.Sync(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AIEnabled reports whether the AI tier is configured.
func (c *Classifier) AIEnabled() bool {
	return c.ai != nil
}

// Classify returns ErrEmptyText for blank replies. Otherwise it always produces a
// classification: AI failures are answered by the rule tier.
func (c *Classifier) Classify(ctx context.Context, text, subject string) (Outcome, error) {
	if isBlank(text) {
		return Outcome{}, ErrEmptyText
	}

	if c.ai == nil {
		return c.fromRules(text, subject, nil), nil
	}

	cls, err := c.classifyAI(ctx, text, subject)
	if err != nil {
		c.metrics.AIFallbacks.WithLabelValues(fallbackReason(err)).Inc()
		c.log.Debug().Err(err).Msg("AI classification failed, using rules")
		return c.fromRules(text, subject, err), nil
	}
	cls.ClassifiedAt = c.now()
	c.metrics.Classifications.WithLabelValues(string(domain.TierAI)).Inc()
	return Outcome{Classification: cls}, nil
}

func (c *Classifier) fromRules(text, subject string, fallback error) Outcome {
	cls := c.rules.Classify(text, subject)
	cls.ClassifiedAt = c.now()
	c.metrics.Classifications.WithLabelValues(string(domain.TierRules)).Inc()
	return Outcome{Classification: cls, Fallback: fallback}
}

// classifyAI paces the call and retries once after a 429.
func (c *Classifier) classifyAI(ctx context.Context, text, subject string) (domain.ReplyClassification, error) {
	if err := c.wait(ctx); err != nil {
		return domain.ReplyClassification{}, err
	}
	cls, err := c.ai.Classify(ctx, text, subject)
	if !errors.Is(err, out.ErrRateLimited) {
		return cls, err
	}

	c.log.Warn().Dur("pause", c.retryPause).Msg("AI rate limited, retrying once")
	if err := sleep(ctx, c.retryPause); err != nil {
		return domain.ReplyClassification{}, err
	}
	if err := c.wait(ctx); err != nil {
		return domain.ReplyClassification{}, err
	}
	return c.ai.Classify(ctx, text, subject)
}

func (c *Classifier) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, out.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, out.ErrCompletionUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// =============================================================================
// Batch
// =============================================================================

// BatchItem is the result for one record of a batch.
type BatchItem struct {
	Record  *domain.EmailActivityRecord
	Outcome Outcome
	Err     error // ErrEmptyText or nil
}

// ClassifyBatch classifies records in order, pacing AI calls.
func (c *Classifier) ClassifyBatch(ctx context.Context, records []*domain.EmailActivityRecord) []BatchItem {
	items := make([]BatchItem, 0, len(records))
	for _, rec := range records {
		o, err := c.Classify(ctx, rec.ReplyText, rec.Subject)
		items = append(items, BatchItem{Record: rec, Outcome: o, Err: err})
	}
	return items
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
