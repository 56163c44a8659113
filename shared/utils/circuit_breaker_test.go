package utils

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	ctx := context.Background()
	cb := NewCircuitBreaker("ses", 3, time.Minute, quietLogger())
	fail := func(context.Context) error { return errBoom }

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	cb := NewCircuitBreaker("ses", 1, time.Minute, quietLogger())
	cb.now = func() time.Time { return now }

	assert.ErrorIs(t, cb.Execute(ctx, func(context.Context) error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	cb := NewCircuitBreaker("ses", 2, time.Minute, quietLogger())
	cb.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return errBoom })
	}
	now = now.Add(2 * time.Minute)

	assert.ErrorIs(t, cb.Execute(ctx, func(context.Context) error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerIgnoresCancelledCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cb := NewCircuitBreaker("ses", 1, time.Minute, quietLogger())

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	ctx := context.Background()
	cb := NewCircuitBreaker("ses", 2, time.Minute, quietLogger())

	_ = cb.Execute(ctx, func(context.Context) error { return errBoom })
	assert.NoError(t, cb.Execute(ctx, func(context.Context) error { return nil }))
	_ = cb.Execute(ctx, func(context.Context) error { return errBoom })

	assert.Equal(t, StateClosed, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}
