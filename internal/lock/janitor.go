package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"checklist/api/internal/logging"
	"github.com/robfig/cron/v3"
)

// Janitor prunes idle KeyedMutex entries on a cron schedule so the lock table
// does not grow with every session ever touched.
type Janitor struct {
	cron   *cron.Cron
	locks  *KeyedMutex
	idle   time.Duration
	logger *slog.Logger
}

// NewJanitor validates schedule (standard cron or descriptors such as
// "@every 5m") and registers the prune job. Call Start to run it.
func NewJanitor(locks *KeyedMutex, schedule string, idle time.Duration, logger *slog.Logger) (*Janitor, error) {
	j := &Janitor{
		cron:   cron.New(),
		locks:  locks,
		idle:   idle,
		logger: logging.OrDiscard(logger),
	}
	if _, err := j.cron.AddFunc(schedule, func() { j.RunOnce() }); err != nil {
		return nil, fmt.Errorf("schedule lock janitor %q: %w", schedule, err)
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running prune to finish or ctx to
// be done.
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce prunes immediately and returns the number of entries removed.
func (j *Janitor) RunOnce() int {
	removed := j.locks.Prune(j.idle)
	j.logger.Debug("pruned idle session locks", "removed", removed, "remaining", j.locks.Len())
	return removed
}
