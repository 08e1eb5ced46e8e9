package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestBreakerTripsOnConsecutiveFailures(t *testing.T) {
	cb := NewBreaker(DefaultBreakerConfig("test"))
	boom := errors.New("boom")

	for i := 0; i < 6; i++ {
		_, err := cb.Execute(func() (any, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.Execute(func() (any, error) { return nil, nil })
	assert.True(t, IsOpen(err))
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	cb := NewBreaker(DefaultBreakerConfig("test"))
	for i := 0; i < 20; i++ {
		_, _ = cb.Execute(func() (any, error) { return nil, context.Canceled })
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestBreakerIgnoreHook(t *testing.T) {
	clientErr := errors.New("400 bad request")
	cfg := DefaultBreakerConfig("test")
	cfg.Ignore = func(err error) bool { return errors.Is(err, clientErr) }
	cb := NewBreaker(cfg)

	for i := 0; i < 20; i++ {
		_, _ = cb.Execute(func() (any, error) { return nil, clientErr })
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.False(t, IsOpen(clientErr))
}
