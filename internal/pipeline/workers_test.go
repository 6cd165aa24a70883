package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPoolProcessesAll(t *testing.T) {
	tickers := []string{"A", "B", "C", "D", "E"}
	var calls atomic.Int32

	out := runPool(context.Background(), 3, tickers, time.Second, func(_ context.Context, _ string) error {
		calls.Add(1)
		return nil
	})

	assert.Equal(t, int32(5), calls.Load())
	assert.Len(t, out.Processed, 5)
	assert.Empty(t, out.Deferred)
	assert.Empty(t, out.Failed)
}

func TestRunPoolCollectsFailures(t *testing.T) {
	boom := errors.New("boom")
	out := runPool(context.Background(), 2, []string{"A", "B", "C"}, time.Second, func(_ context.Context, ticker string) error {
		if ticker == "B" {
			return boom
		}
		return nil
	})

	assert.Len(t, out.Processed, 2)
	require.Len(t, out.Failed, 1)
	assert.ErrorIs(t, out.Failed["B"], boom)
	assert.ErrorIs(t, out.FirstError(), boom)
}

func TestRunPoolStallWindsDown(t *testing.T) {
	// One worker, so tickers run in order. The first stalls past the
	// threshold; the rest must never be scheduled.
	tickers := []string{"STUCK", "B", "C"}
	var started atomic.Int32

	out := runPool(context.Background(), 1, tickers, 20*time.Millisecond, func(ctx context.Context, ticker string) error {
		started.Add(1)
		if ticker == "STUCK" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	assert.Equal(t, int32(1), started.Load())
	assert.Empty(t, out.Processed)
	assert.ElementsMatch(t, []string{"STUCK", "B", "C"}, out.Deferred)
}

func TestRunPoolParentCancelDefers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	out := runPool(ctx, 2, []string{"A", "B"}, time.Second, func(_ context.Context, _ string) error {
		calls.Add(1)
		return nil
	})

	assert.Equal(t, int32(0), calls.Load())
	assert.ElementsMatch(t, []string{"A", "B"}, out.Deferred)
}
