package providers

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/aristath/nightshift/internal/domain"
)

// Limiter enforces one provider's per-minute and per-day call limits.
//
// The minute bucket is a token bucket that callers wait on; the daily
// counter is decremented with a CAS loop before the HTTP call goes out, so
// two workers can never both spend the last call of the day.
type Limiter struct {
	minute *rate.Limiter
	perDay int64

	mu        sync.Mutex
	day       string
	remaining atomic.Int64

	now func() time.Time
}

// NewLimiter builds a limiter allowing perMinute calls per minute (with a
// burst of the same size) and perDay calls per UTC day. A zero or negative
// limit means unlimited.
func NewLimiter(perMinute, perDay int) *Limiter {
	minute := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		minute = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
	}
	l := &Limiter{
		minute: minute,
		perDay: int64(perDay),
		now:    time.Now,
	}
	l.day = l.now().UTC().Format("2006-01-02")
	l.remaining.Store(l.perDay)
	return l
}

// Acquire blocks until a minute token is available, then claims one daily
// call. Returns ErrRateExceeded without blocking when the daily budget is
// spent, and the context error if the wait is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.perDay > 0 {
		l.rollover()

		for {
			rem := l.remaining.Load()
			if rem <= 0 {
				return fmt.Errorf("daily limit %d reached: %w", l.perDay, domain.ErrRateExceeded)
			}
			if l.remaining.CompareAndSwap(rem, rem-1) {
				break
			}
		}
	}

	if err := l.minute.Wait(ctx); err != nil {
		// Give the claimed call back; the request never went out.
		if l.perDay > 0 {
			l.remaining.Add(1)
		}
		return fmt.Errorf("rate wait cancelled: %w", err)
	}
	return nil
}

// Remaining returns the daily calls left. Limiters with no daily cap
// report math.MaxInt.
func (l *Limiter) Remaining() int {
	if l.perDay <= 0 {
		return math.MaxInt
	}
	l.rollover()
	rem := l.remaining.Load()
	if rem < 0 {
		return 0
	}
	return int(rem)
}

// rollover resets the daily counter when the UTC date changes.
func (l *Limiter) rollover() {
	today := l.now().UTC().Format("2006-01-02")
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.day != today {
		l.day = today
		l.remaining.Store(l.perDay)
	}
}
