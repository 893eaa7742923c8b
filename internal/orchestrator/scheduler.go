package orchestrator

import (
	"context"
	"time"

	"github.com/GreengageDB/greengage-exporter/internal/log"
)

// Scheduler ticks Scrape on a fixed interval, skipping a tick entirely if the previous one is
// still running rather than piling up concurrent cycles.
type Scheduler struct {
	orch     *Orchestrator
	interval time.Duration
}

// NewScheduler builds a Scheduler driving orch at the given interval.
func NewScheduler(orch *Orchestrator, interval time.Duration) *Scheduler {
	return &Scheduler{orch: orch, interval: interval}
}

// Run blocks, ticking Scrape until ctx is cancelled. A panic inside a single scrape is recovered
// and logged so the scheduler loop itself never dies.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Infof("scheduler: stopping, context cancelled")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("scheduler: recovered panic during scrape: %v", r)
		}
	}()
	s.orch.Scrape(ctx)
}
