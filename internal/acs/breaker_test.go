package acs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_Transitions(t *testing.T) {
	now := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	assert.Equal(t, BreakerClosed, b.State())

	for i := 0; i < 2; i++ {
		assert.NoError(t, b.Allow())
		b.Record(false)
	}
	assert.Equal(t, BreakerOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())
	b.Record(true)
	assert.Equal(t, BreakerHalfOpen, b.State())

	assert.NoError(t, b.Allow())
	b.Record(true)
	assert.Equal(t, BreakerClosed, b.State())
	assert.Equal(t, int64(1), b.Stats().Trips)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }

	assert.NoError(t, b.Allow())
	b.Record(false)
	now = now.Add(2 * time.Second)

	assert.NoError(t, b.Allow())
	b.Record(false)
	assert.Equal(t, BreakerOpen, b.State())
	assert.Equal(t, int64(2), b.Stats().Trips)
}

func TestBreaker_HalfOpenProbeBudget(t *testing.T) {
	now := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }

	_ = b.Allow()
	b.Record(false)
	now = now.Add(2 * time.Second)

	for i := 0; i < 3; i++ {
		assert.NoError(t, b.Allow())
	}
	assert.ErrorIs(t, b.Allow(), ErrTooManyRequests)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	_ = b.Allow()
	b.Record(false)
	_ = b.Allow()
	b.Record(true)
	_ = b.Allow()
	b.Record(false)
	assert.Equal(t, BreakerClosed, b.State())
}
