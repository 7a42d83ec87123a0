package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/openground/backend/internal/domain/listing"
)

// Task names
const (
	TaskFlushViews  = "flush-listing-views"
	TaskSweepTyping = "sweep-typing-flags"
)

// ViewFlushTask moves buffered listing views into the listings table
type ViewFlushTask struct {
	buffer listing.ViewBuffer
	writer listing.ViewCountWriter
	logger *zap.Logger
}

// NewViewFlushTask creates the view flush task
func NewViewFlushTask(buffer listing.ViewBuffer, writer listing.ViewCountWriter, logger *zap.Logger) *ViewFlushTask {
	return &ViewFlushTask{buffer: buffer, writer: writer, logger: logger}
}

// Name implements Task
func (t *ViewFlushTask) Name() string { return TaskFlushViews }

// Run drains the buffer and writes the counts. When the write fails the
// counts go back into the buffer so the next run picks them up.
func (t *ViewFlushTask) Run(ctx context.Context) error {
	counts, err := t.buffer.Drain(ctx)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		return nil
	}

	if err := t.writer.AddViewCounts(ctx, counts); err != nil {
		// ctx may be the reason the write failed
		restoreErr := t.buffer.Restore(context.WithoutCancel(ctx), counts)
		if restoreErr != nil {
			t.logger.Error("Lost buffered listing views",
				zap.Int("listings", len(counts)),
				zap.Error(restoreErr),
			)
		}
		return errors.Join(fmt.Errorf("write view counts: %w", err), restoreErr)
	}

	t.logger.Debug("Flushed listing views", zap.Int("listings", len(counts)))
	return nil
}

// Sweeper removes expired entries and reports how many went
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// TypingSweepTask clears expired typing flags from a process-local store
type TypingSweepTask struct {
	store  Sweeper
	logger *zap.Logger
}

// NewTypingSweepTask creates the typing sweep task
func NewTypingSweepTask(store Sweeper, logger *zap.Logger) *TypingSweepTask {
	return &TypingSweepTask{store: store, logger: logger}
}

// Name implements Task
func (t *TypingSweepTask) Name() string { return TaskSweepTyping }

// Run implements Task
func (t *TypingSweepTask) Run(ctx context.Context) error {
	n, err := t.store.Sweep(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		t.logger.Debug("Swept typing flags", zap.Int("removed", n))
	}
	return nil
}
