// Package scheduler runs the indexer on a timer, accelerated by
// filesystem change notifications, and serializes refreshes against
// concurrent on-demand requests from internal/facade. Grounded on
// original_source/main.go's initialize_server/periodic_scan startup and
// background-task semantics, with the ticker/done-channel idiom from
// other_examples/a6c2e83e_brianly1003-cdev__internal-adapters-repository-indexer.go.go's
// reconciliationLoop, plus an fsnotify-driven accelerant (internal/watcher)
// the original didn't have.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"textindex/internal/indexer"
	"textindex/internal/watcher"
)

// Scheduler owns the indexer's refresh cadence: an initial synchronous
// pass, then periodic ticks, accelerated by filesystem events when a
// Watcher is attached.
type Scheduler struct {
	ix  *indexer.Indexer
	log *slog.Logger

	interval time.Duration
	watch    *watcher.Watcher

	mu      sync.Mutex // serializes Refresh calls against the background loop
	running bool

	cancel context.CancelFunc
	done   chan struct{}

	lastResult indexer.RefreshResult
}

// New returns a Scheduler for ix that ticks every interval. If w is
// non-nil, a filesystem event also triggers an immediate refresh.
func New(ix *indexer.Indexer, interval time.Duration, w *watcher.Watcher, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{ix: ix, log: log, interval: interval, watch: w}
}

// Start performs an initial synchronous refresh, then launches the
// background ticker loop. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.log.Info("running initial index refresh")
	s.Refresh(loopCtx, "", false)

	go s.loop(loopCtx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var events <-chan struct{}
	if s.watch != nil {
		events = s.watch.Events
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.log.Debug("periodic refresh tick")
			s.Refresh(ctx, "", false)
		case <-events:
			s.log.Debug("filesystem change detected, refreshing early")
			s.Refresh(ctx, "", false)
			ticker.Reset(s.interval)
		}
	}
}

// Refresh runs one indexing pass, holding the scheduler's mutex so it
// never overlaps with the background loop's own tick. Safe to call
// on-demand from internal/facade while the loop is running.
func (s *Scheduler) Refresh(ctx context.Context, specificFile string, force bool) indexer.RefreshResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := s.ix.Refresh(ctx, specificFile, force)
	s.lastResult = result
	if !result.Success {
		s.log.Warn("refresh completed with errors", "errors", result.Errors)
	}
	if result.ChangeType != "" {
		s.log.Info("refresh finished", "change_type", result.ChangeType, "files_processed", result.FilesProcessed)
	}
	return result
}

// LastResult returns the outcome of the most recent refresh, or a zero
// value if none has run yet.
func (s *Scheduler) LastResult() indexer.RefreshResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// Stop cancels the background loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
}
