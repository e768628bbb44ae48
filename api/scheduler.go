/*
scheduler.go - Automated recurring-posting scheduler

PURPOSE:
  Periodically finds owners with due recurring rules and runs the
  generator for each of them.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - One owner failing does not stop the others
  - Idempotency lives in the generator (source keys), so overlapping
    runs or a manual /api/recurring/run at the same time are harmless

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRecurringScheduler(generator, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunRules endpoint (manual run)
  - ledger/recurring.go: Generator
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/logging"
)

// RecurringScheduler runs due recurring rules for every owner.
type RecurringScheduler struct {
	Generator     *ledger.Generator
	Logger        logging.Logger
	CheckInterval time.Duration
	Enabled       bool

	Now func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// lastTick is the wall-clock time the current pass was scheduled for.
	// Guarded by tickMu, not mu: Stop holds mu while waiting on a pass.
	tickMu   sync.Mutex
	lastTick time.Time
}

// SchedulerSummary reports one pass over all owners.
type SchedulerSummary struct {
	Owners    int
	Generated int
	Failed    int
}

// NewRecurringScheduler creates a new scheduler.
func NewRecurringScheduler(gen *ledger.Generator, log logging.Logger) *RecurringScheduler {
	if log == nil {
		log = logging.Nop()
	}
	return &RecurringScheduler{
		Generator:     gen,
		Logger:        log.With("component", "scheduler"),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (rs *RecurringScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	ctx := context.Background()
	if !rs.Enabled {
		rs.Logger.Info(ctx, "scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.stop = make(chan struct{})
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.setLastTick(time.Now())
	rs.wg.Add(1)

	go rs.run(ctx, rs.ticker.C, rs.stop)

	rs.Logger.Info(ctx, "scheduler started",
		"interval", rs.CheckInterval.String(),
		"next_run", rs.NextRunTime().Format(time.RFC3339),
	)
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (rs *RecurringScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.setLastTick(time.Time{})
		rs.Logger.Info(context.Background(), "scheduler stopped")
	}
}

func (rs *RecurringScheduler) run(ctx context.Context, tick <-chan time.Time, stop <-chan struct{}) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndProcess(ctx)

	for {
		select {
		case t := <-tick:
			rs.setLastTick(t)
			rs.checkAndProcess(ctx)
		case <-stop:
			return
		}
	}
}

func (rs *RecurringScheduler) checkAndProcess(ctx context.Context) SchedulerSummary {
	var summary SchedulerSummary
	now := time.Now()
	if rs.Now != nil {
		now = rs.Now()
	}

	owners, err := rs.Generator.OwnersWithDueRules(ctx, now)
	if err != nil {
		rs.Logger.Error(ctx, "listing owners with due rules", "error", err)
		return summary
	}

	for _, owner := range owners {
		if ctx.Err() != nil {
			return summary
		}
		summary.Owners++

		result, err := rs.Generator.RunDue(ctx, owner, now)
		summary.Generated += result.Generated
		summary.Failed += result.Failed
		if err != nil {
			rs.Logger.Error(ctx, "recurring run failed", "owner", string(owner), "error", err)
		}
	}

	if summary.Generated > 0 || summary.Failed > 0 {
		rs.Logger.Info(ctx, "scheduler pass completed",
			"owners", summary.Owners,
			"generated", summary.Generated,
			"failed", summary.Failed,
			"next_run", rs.NextRunTime().Format(time.RFC3339),
		)
	}
	return summary
}

// RunNow triggers an immediate pass (for testing/admin).
func (rs *RecurringScheduler) RunNow(ctx context.Context) SchedulerSummary {
	return rs.checkAndProcess(ctx)
}

// NextRunTime returns when the ticker fires next, or the zero time when the
// scheduler is not running.
func (rs *RecurringScheduler) NextRunTime() time.Time {
	rs.tickMu.Lock()
	defer rs.tickMu.Unlock()
	if rs.lastTick.IsZero() {
		return time.Time{}
	}
	return rs.lastTick.Add(rs.CheckInterval)
}

func (rs *RecurringScheduler) setLastTick(t time.Time) {
	rs.tickMu.Lock()
	rs.lastTick = t
	rs.tickMu.Unlock()
}
