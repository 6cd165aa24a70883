package fundamentals

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// EarningsCalendarJob refreshes the upcoming earnings calendar on a
// schedule independent of the nightly run, so the priority queue sees
// events before they happen.
type EarningsCalendarJob struct {
	proc    *Processor
	timeout time.Duration
	log     zerolog.Logger
}

// NewEarningsCalendarJob creates the calendar sync job.
func NewEarningsCalendarJob(proc *Processor, log zerolog.Logger) *EarningsCalendarJob {
	return &EarningsCalendarJob{
		proc:    proc,
		timeout: 5 * time.Minute,
		log:     log.With().Str("job", "earnings_calendar_sync").Logger(),
	}
}

// Run executes one calendar sync.
func (j *EarningsCalendarJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.proc.SyncEarningsCalendar(ctx)
	if err != nil {
		return err
	}
	j.log.Info().Int("events", n).Msg("Earnings calendar sync completed")
	return nil
}

// Name returns the job name for the scheduler.
func (j *EarningsCalendarJob) Name() string {
	return "earnings_calendar_sync"
}
