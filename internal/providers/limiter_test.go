package providers

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/nightshift/internal/domain"
)

func TestLimiterDailyBudget(t *testing.T) {
	l := NewLimiter(1000, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Equal(t, 0, l.Remaining())

	err := l.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateExceeded)
}

func TestLimiterDailyRollover(t *testing.T) {
	l := NewLimiter(1000, 2)
	ctx := context.Background()

	day := time.Date(2026, 8, 24, 23, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return day }

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.ErrorIs(t, l.Acquire(ctx), domain.ErrRateExceeded)

	day = day.Add(2 * time.Hour) // past UTC midnight
	assert.Equal(t, 2, l.Remaining())
	require.NoError(t, l.Acquire(ctx))
}

func TestLimiterNoDailyCap(t *testing.T) {
	// Zero per-day means unlimited, matching the provider declaration
	// format.
	l := NewLimiter(1000, 0)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.Equal(t, math.MaxInt, l.Remaining())
}

func TestLimiterNoMinuteCap(t *testing.T) {
	l := NewLimiter(0, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.ErrorIs(t, l.Acquire(ctx), domain.ErrRateExceeded)
}

func TestLimiterCancelledWaitRefunds(t *testing.T) {
	// Burst of 1, so the second acquire has to wait on the minute bucket.
	l := NewLimiter(1, 10)

	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx)
	require.Error(t, err)

	// The claimed daily call was given back.
	assert.Equal(t, 9, l.Remaining())
}
