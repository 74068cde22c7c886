package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

// Starter is the part of the orchestrator the scheduler drives.
type Starter interface {
	Start(ctx context.Context, kind domain.RunKind, limits domain.Limits, triggeredBy domain.Trigger) (*domain.Run, error)
}

// Scheduler starts a run of one kind at a fixed interval. A tick that finds a
// run already active is skipped.
type Scheduler struct {
	starter  Starter
	kind     domain.RunKind
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a scheduler. A non-positive interval disables it.
func NewScheduler(starter Starter, kind domain.RunKind, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{starter: starter, kind: kind, interval: interval, logger: logger.With("component", "scheduler")}
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	run, err := s.starter.Start(ctx, s.kind, domain.Limits{}, domain.TriggerCron)
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		s.logger.Info("scheduled run skipped", "active_run_id", conflict.ActiveRunID)
	case err != nil:
		s.logger.Warn("scheduled run failed to start", "error", err)
	default:
		s.logger.Info("scheduled run started", "run_id", run.RunID, "kind", s.kind)
	}
}
