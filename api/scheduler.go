/*
scheduler.go - Automated sweep scheduler

PURPOSE:
  Runs a full sweep on a fixed interval so reminders, invoices, late alerts
  and room statuses stay current without anyone pressing a button.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Sweeps immediately on start, then on every tick
  - A tick that finds another run in progress is skipped, not queued
  - Sweep history is kept by the coordinator's run log

CONFIGURATION:
  - Interval: How often to sweep (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSweepScheduler(coordinator, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunSweep endpoint (manual sweep)
  - sweep/coordinator.go: Run lock
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/parsonage-engine/property"
	"github.com/warp/parsonage-engine/sweep"
)

// Sweeper is the part of the coordinator the scheduler drives.
type Sweeper interface {
	RunSweep(ctx context.Context, scope sweep.Scope) (*sweep.SweepReport, error)
}

// SweepScheduler runs periodic sweeps.
type SweepScheduler struct {
	Sweeper  Sweeper
	Logger   *zap.Logger
	Interval time.Duration
	Enabled  bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweepScheduler creates a new scheduler.
func NewSweepScheduler(s Sweeper, logger *zap.Logger) *SweepScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepScheduler{
		Sweeper:  s,
		Logger:   logger.Named("scheduler"),
		Interval: 1 * time.Hour,
		Enabled:  true,
	}
}

// Start begins the scheduler.
func (ss *SweepScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		ss.Logger.Info("disabled, not starting")
		return
	}
	if ss.ticker != nil {
		return
	}

	ss.ticker = time.NewTicker(ss.Interval)
	ss.stop = make(chan struct{})
	ss.wg.Add(1)

	go ss.run(ss.ticker.C, ss.stop)

	ss.Logger.Info("started", zap.Duration("interval", ss.Interval))
}

// Stop stops the scheduler and waits for an in-flight sweep to finish.
func (ss *SweepScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		ss.ticker = nil
		ss.Logger.Info("stopped")
	}
}

func (ss *SweepScheduler) run(tick <-chan time.Time, stop <-chan struct{}) {
	defer ss.wg.Done()

	// Run immediately on start
	ss.RunNow()

	for {
		select {
		case <-tick:
			ss.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow performs one scheduled sweep. Returns the report, or nil when the
// tick was skipped.
func (ss *SweepScheduler) RunNow() *sweep.SweepReport {
	report, err := ss.Sweeper.RunSweep(context.Background(), sweep.ScopeAll)
	switch {
	case errors.Is(err, property.ErrRunAlreadyInProgress):
		ss.Logger.Info("skipped, another run in progress")
		return nil
	case err != nil:
		ss.Logger.Error("scheduled sweep failed", zap.Error(err))
	}
	return report
}

// NextRunTime returns when the next scheduled sweep will occur.
func (ss *SweepScheduler) NextRunTime() time.Time {
	return time.Now().Add(ss.Interval)
}
