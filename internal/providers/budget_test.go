package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetReserveFloor(t *testing.T) {
	b := NewBudget(10, 0.2)

	for i := 0; i < 8; i++ {
		require.True(t, b.TryCharge(1, false))
	}
	assert.False(t, b.TryCharge(1, false), "ordinary charges stop at the floor")
	assert.Equal(t, 0, b.RemainingUnreserved())

	// Reserve-class charges spend the rest.
	assert.True(t, b.TryCharge(1, true))
	assert.True(t, b.TryCharge(1, true))
	assert.False(t, b.TryCharge(1, true))
	assert.Equal(t, 0, b.Remaining())
}

func TestBudgetRefund(t *testing.T) {
	b := NewBudget(10, 0)

	require.True(t, b.TryCharge(3, false))
	b.Refund(1)
	assert.Equal(t, 2, b.Used())
	assert.Equal(t, 8, b.Remaining())

	// Refunds never push the spend below zero.
	b.Refund(5)
	assert.Equal(t, 0, b.Used())
}

func TestBudgetDailyRollover(t *testing.T) {
	b := NewBudget(10, 0.2)

	day := time.Date(2026, 8, 24, 23, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return day }

	for i := 0; i < 8; i++ {
		require.True(t, b.TryCharge(1, false))
	}
	require.False(t, b.TryCharge(1, false))

	day = day.Add(2 * time.Hour) // past UTC midnight
	assert.Equal(t, 10, b.Remaining())
	assert.Equal(t, 8, b.RemainingUnreserved())
	assert.True(t, b.TryCharge(1, false))
}
