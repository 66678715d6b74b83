/*
scheduler.go - Month rollover scheduler

PURPOSE:
  Checks periodically whether a new month has started and, once per month,
  hands the previous month's full snapshot to a Reporter.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - First check runs shortly after Start (StartupDelay), then every tick
  - The fire decision lives in State, owned by this instance
  - Reporter errors and panics are logged and counted; the loop keeps going
  - Nothing is reset or deleted: new months simply key new rollup rows

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - StartupDelay: Delay before the first check (default: 5 seconds)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := rollover.NewScheduler(core.Queries, publisher, clock, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - state.go: Fire rule
  - report/deliver.go: Publisher, the Reporter that renders and delivers the snapshot
  - api/handlers.go: TriggerRollover endpoint (manual run)
*/
package rollover

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/duty-ledger/duty"
)

const (
	DefaultCheckInterval = time.Hour
	DefaultStartupDelay  = 5 * time.Second
	defaultRunTimeout    = 2 * time.Minute
)

// Run is one rollover delivery.
type Run struct {
	ID          string
	Snapshot    duty.Snapshot
	GeneratedAt time.Time
	Forced      bool
}

// SnapshotSource yields the month that has just ended. duty.Queries implements it.
type SnapshotSource interface {
	PreviousMonthSnapshot(ctx context.Context) (duty.Snapshot, error)
}

// Reporter turns a run into a report and delivers it.
type Reporter interface {
	Deliver(ctx context.Context, run Run) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, run Run) error

func (f ReporterFunc) Deliver(ctx context.Context, run Run) error { return f(ctx, run) }

// Observer is told how each run ended.
type Observer interface {
	RolloverCompleted(rows int)
	RolloverFailed()
}

// Scheduler handles automated month rollover.
type Scheduler struct {
	Source        SnapshotSource
	Reporter      Reporter
	Clock         duty.Clock
	CheckInterval time.Duration
	StartupDelay  time.Duration
	Enabled       bool
	Logger        *zap.Logger
	Observer      Observer

	state   State
	stateMu sync.Mutex
	lastRun *Run

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a new scheduler seeded with the current month.
func NewScheduler(source SnapshotSource, reporter Reporter, clock duty.Clock, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Source:        source,
		Reporter:      reporter,
		Clock:         clock,
		CheckInterval: DefaultCheckInterval,
		StartupDelay:  DefaultStartupDelay,
		Enabled:       true,
		Logger:        logger,
		state:         NewState(clock.Current()),
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("rollover scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run()

	s.Logger.Info("rollover scheduler started",
		zap.Duration("check_interval", s.CheckInterval),
		zap.Duration("startup_delay", s.StartupDelay))
}

// Stop stops the scheduler and waits for an in-flight check.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info("rollover scheduler stopped")
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	startup := time.NewTimer(s.StartupDelay)
	defer startup.Stop()

	for {
		select {
		case <-startup.C:
			s.RunNow()
		case <-s.ticker.C:
			s.RunNow()
		case <-s.stop:
			return
		}
	}
}

// RunNow performs one check against the current time.
func (s *Scheduler) RunNow() bool {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()
	return s.Check(ctx, s.Clock.Current())
}

// Check applies the fire rule at now and runs the rollover if it fires.
func (s *Scheduler) Check(ctx context.Context, now time.Time) bool {
	s.stateMu.Lock()
	fire := s.state.Observe(now)
	s.stateMu.Unlock()

	s.Logger.Debug("rollover check", zap.Time("now", now), zap.Bool("fire", fire))
	if !fire {
		return false
	}

	// Errors are already logged and counted; the flag stays set either way.
	_, _ = s.execute(ctx, false)
	return true
}

// TriggerNow delivers the previous month's report immediately, without
// touching the fire state.
func (s *Scheduler) TriggerNow(ctx context.Context) (Run, error) {
	return s.execute(ctx, true)
}

// State returns a copy of the current fire state.
func (s *Scheduler) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// LastRun returns the most recent successful run, if any.
func (s *Scheduler) LastRun() (Run, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.lastRun == nil {
		return Run{}, false
	}
	return *s.lastRun, true
}

// GetNextRunTime returns when the next scheduled check will occur.
func (s *Scheduler) GetNextRunTime() time.Time {
	return s.Clock.Current().Add(s.CheckInterval)
}

func (s *Scheduler) execute(ctx context.Context, forced bool) (run Run, err error) {
	run = Run{ID: uuid.NewString(), GeneratedAt: s.Clock.Current(), Forced: forced}
	log := s.Logger.With(zap.String("run_id", run.ID), zap.Bool("forced", forced))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rollover panicked: %v", r)
		}
		if err != nil {
			log.Error("rollover failed", zap.Error(err))
			if s.Observer != nil {
				s.Observer.RolloverFailed()
			}
			return
		}
		if s.Observer != nil {
			s.Observer.RolloverCompleted(len(run.Snapshot.Rows))
		}
	}()

	snapshot, err := s.Source.PreviousMonthSnapshot(ctx)
	if err != nil {
		return run, fmt.Errorf("load previous month: %w", err)
	}
	run.Snapshot = snapshot

	if err := s.Reporter.Deliver(ctx, run); err != nil {
		return run, fmt.Errorf("deliver report for %s: %w", snapshot.Key, err)
	}

	s.stateMu.Lock()
	last := run
	s.lastRun = &last
	s.stateMu.Unlock()

	log.Info("rollover delivered",
		zap.String("month", snapshot.Key.String()),
		zap.Int("rows", len(snapshot.Rows)))
	return run, nil
}
