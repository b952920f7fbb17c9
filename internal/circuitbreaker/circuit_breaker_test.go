package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSend = errors.New("send failed")
var errConfig = errors.New("missing key")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(&Config{
		Name:        "test",
		MaxFailures: maxFailures,
		Cooldown:    time.Minute,
		Counts:      func(err error) bool { return !errors.Is(err, errConfig) },
	})
	cb.now = clock.now
	cb.lastStateChange = clock.now()
	return cb, clock
}

func fail(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail(errSend)), errSend)
		assert.Equal(t, StateClosed, cb.GetState())
	}

	assert.ErrorIs(t, cb.Execute(ctx, fail(errSend)), errSend)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsStreak(t *testing.T) {
	cb, _ := newTestBreaker(2)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail(errSend))
	require.NoError(t, cb.Execute(ctx, fail(nil)))
	_ = cb.Execute(ctx, fail(errSend))

	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 1, cb.GetStats().ConsecutiveFails)
}

func TestCircuitBreaker_UncountedErrorsDoNotOpen(t *testing.T) {
	cb, _ := newTestBreaker(1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail(errConfig)), errConfig)
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail(errSend))
	require.Equal(t, StateOpen, cb.GetState())

	clock.advance(59 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, fail(nil)), ErrCircuitOpen)

	clock.advance(2 * time.Second)
	require.NoError(t, cb.Execute(ctx, fail(nil)))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail(errSend))
	clock.advance(2 * time.Minute)

	assert.ErrorIs(t, cb.Execute(ctx, fail(errSend)), errSend)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, fail(nil)), ErrCircuitOpen)
}

func TestCircuitBreaker_DisabledWithZeroMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(0)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = cb.Execute(ctx, fail(errSend))
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(1)
	_ = cb.Execute(context.Background(), fail(errSend))
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.NoError(t, cb.Execute(context.Background(), fail(nil)))
}
