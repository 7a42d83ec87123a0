package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Interval submits a task every Every
type Interval struct {
	Task  string
	Every time.Duration
}

// Trigger submits tasks to a scheduler on fixed intervals
type Trigger struct {
	scheduler *Scheduler
	intervals []Interval
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewTrigger creates a trigger. Intervals that are not positive are ignored.
func NewTrigger(scheduler *Scheduler, logger *zap.Logger, intervals ...Interval) *Trigger {
	kept := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Every > 0 {
			kept = append(kept, iv)
		}
	}
	return &Trigger{scheduler: scheduler, intervals: kept, logger: logger}
}

// Start starts one ticker per interval
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	for _, iv := range t.intervals {
		t.wg.Add(1)
		go t.runLoop(ctx, iv)
		t.logger.Info("Task scheduled",
			zap.String("task", iv.Task),
			zap.Duration("every", iv.Every),
		)
	}
	return nil
}

// Stop stops the tickers
func (t *Trigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Trigger) runLoop(ctx context.Context, iv Interval) {
	defer t.wg.Done()

	ticker := time.NewTicker(iv.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := t.scheduler.Submit(iv.Task)
			switch {
			case err == nil:
			case errors.Is(err, ErrSchedulerNotRunning):
				return
			default:
				t.logger.Warn("Failed to submit scheduled task",
					zap.String("task", iv.Task),
					zap.Error(err),
				)
			}
		}
	}
}
