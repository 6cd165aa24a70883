package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Report condenses one run into the summary row and the final log line.
type Report struct {
	RunID          string
	TradingDay     time.Time
	Status         string
	TotalProcessed int
	TotalFailed    int
	TotalDeferred  int
	Phases         []PhaseStats
}

func (o *Orchestrator) buildReport(rc *runCtx, status string) *Report {
	o.mu.Lock()
	phases := append([]PhaseStats(nil), o.status.Phases...)
	o.mu.Unlock()

	r := &Report{
		RunID:      rc.runID,
		TradingDay: rc.tradingDay,
		Status:     status,
		Phases:     phases,
	}
	for _, p := range phases {
		r.TotalProcessed += p.Processed
		r.TotalFailed += p.Failed
		r.TotalDeferred += p.Deferred
	}
	return r
}

// Line renders the one-line run summary stored in the update log.
func (r *Report) Line() string {
	parts := make([]string, 0, len(r.Phases)+1)
	for _, p := range r.Phases {
		part := fmt.Sprintf("%s=%d", p.Name, p.Processed)
		if p.Failed > 0 {
			part += fmt.Sprintf("/%d failed", p.Failed)
		}
		if p.Deferred > 0 {
			part += fmt.Sprintf("/%d deferred", p.Deferred)
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return "no phases executed"
	}
	return strings.Join(parts, ", ")
}
