// Package resilience builds the circuit breakers that guard external calls.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"outreach_worker/pkg/logger"
)

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	Name                string
	MaxRequests         uint32        // requests allowed while half-open
	Interval            time.Duration // closed-state counter reset
	Timeout             time.Duration // open-state duration before half-open
	ConsecutiveFailures uint32        // trips when exceeded
	MinRequests         uint32        // minimum volume for the ratio rule
	FailureRatio        float64       // trips at or above this ratio

	// Ignore reports errors that say nothing about the remote's health.
	Ignore func(err error) bool
}

// DefaultBreakerConfig trips after more than 5 consecutive failures or a 60%
// failure ratio over at least 10 requests.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                name,
		MaxRequests:         3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		MinRequests:         10,
		FailureRatio:        0.6,
	}
}

// NewBreaker returns a breaker that logs its state changes. Caller cancellation
// never counts as a failure.
func NewBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures > cfg.ConsecutiveFailures {
				return true
			}
			if counts.Requests < cfg.MinRequests || counts.Requests == 0 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return cfg.Ignore != nil && cfg.Ignore(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	})
}

// IsOpen reports whether err is a breaker rejection rather than a call failure.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
