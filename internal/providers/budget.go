package providers

import (
	"sync"
	"time"
)

// Budget is the global daily API call budget shared by all providers.
//
// A slice of the budget (the reserve) is held back for backfill work:
// ordinary charges stop at the reserve floor, reserve-class charges may
// spend all the way to zero. Charges happen before the HTTP call; a charge
// is only refunded when the request was aborted before going out. The
// spend clears when the UTC date changes, so the long-lived process starts
// every run with a fresh budget.
type Budget struct {
	mu      sync.Mutex
	total   int
	reserve int
	used    int
	day     string

	now func() time.Time
}

// NewBudget creates a budget of total calls with reservePct (0..1) held
// back for reserve-class charges.
func NewBudget(total int, reservePct float64) *Budget {
	b := &Budget{
		total:   total,
		reserve: int(float64(total) * reservePct),
		now:     time.Now,
	}
	b.day = b.now().UTC().Format("2006-01-02")
	return b
}

// TryCharge claims n calls. Non-reserve charges fail once spending would
// cross into the reserve slice.
func (b *Budget) TryCharge(n int, useReserve bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	ceiling := b.total
	if !useReserve {
		ceiling = b.total - b.reserve
	}
	if b.used+n > ceiling {
		return false
	}
	b.used += n
	return true
}

// Refund gives back n claimed calls when the request never went out.
func (b *Budget) Refund(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	b.used -= n
	if b.used < 0 {
		b.used = 0
	}
}

// Remaining returns calls left including the reserve.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.total - b.used
}

// RemainingUnreserved returns calls left outside the reserve slice.
func (b *Budget) RemainingUnreserved() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()

	rem := b.total - b.reserve - b.used
	if rem < 0 {
		return 0
	}
	return rem
}

// Used returns calls charged so far today.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.used
}

// rollover clears the spend when the UTC date changes. Callers hold mu.
func (b *Budget) rollover() {
	today := b.now().UTC().Format("2006-01-02")
	if b.day != today {
		b.day = today
		b.used = 0
	}
}
