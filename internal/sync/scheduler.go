package sync

import (
	"context"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/shelfmark/shelfsync/internal/ledger"
)

// Scheduler fires automatic run cycles on the configured interval. The
// interval setting is re-read before every arm, so a settings change applies
// without a restart.
type Scheduler struct {
	coord *Coordinator
	store *ledger.Store
	wg    stdsync.WaitGroup

	// every overrides the configured interval in tests.
	every time.Duration
}

func NewScheduler(coord *Coordinator, store *ledger.Store) *Scheduler {
	return &Scheduler{coord: coord, store: store}
}

// Start launches the timer loop. Cancel ctx to stop it; an in-flight run is
// not interrupted (fire-and-forget teardown).
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		slog.Info("scheduler start", "interval", s.interval())

		// A timer, not a ticker: a run slower than the interval must not
		// queue a backlog of pending ticks.
		timer := time.NewTimer(s.interval())
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("scheduler stop")
				return
			case <-timer.C:
				s.tick(ctx)
				timer.Reset(s.interval())
			}
		}
	}()
}

// Wait blocks until the timer loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// tick runs one automatic cycle, unless the configured mode is manual, in
// which case the tick is a no-op and no run is recorded.
func (s *Scheduler) tick(ctx context.Context) {
	if mode := s.store.Mode(); mode != ledger.ModeAutomatic {
		slog.Debug("scheduler tick skipped", "mode", mode)
		return
	}
	s.coord.RunCycle(ctx, ledger.ModeAutomatic, false)
}

func (s *Scheduler) interval() time.Duration {
	if s.every > 0 {
		return s.every
	}
	return time.Duration(s.store.IntervalMinutes()) * time.Minute
}
