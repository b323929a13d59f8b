// Package maintenance schedules a reserved log-compaction hook point.
// It performs no compaction: the spec explicitly leaves compaction out
// of scope, but a cron-driven tick is wired in so the hook has a home
// when compaction is eventually implemented, rather than bolted on as
// an afterthought.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

const defaultSchedule = "0 3 * * *"

// Scheduler ticks a cron expression and invokes a no-op compaction hook
// on each match.
type Scheduler struct {
	expr string
	gron gronx.Gronx
	log  *slog.Logger
}

// NewScheduler builds a Scheduler for the given cron expression;
// passing an empty string selects the default schedule.
func NewScheduler(expr string, log *slog.Logger) *Scheduler {
	if expr == "" {
		expr = defaultSchedule
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{expr: expr, gron: gronx.New(), log: log}
}

// Run polls once a minute and fires the compaction hook whenever expr
// matches, until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := s.gron.IsDue(s.expr)
			if err != nil {
				s.log.Warn("maintenance: invalid cron expression", "expr", s.expr, "err", err)
				continue
			}
			if due {
				s.compactionHook()
			}
		}
	}
}

// compactionHook is the reserved extension point: a future log
// compaction pass would start here. It currently only logs.
func (s *Scheduler) compactionHook() {
	s.log.Info("maintenance: compaction hook fired (no-op)")
}
