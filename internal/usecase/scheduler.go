package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"DailyDigest/internal/domain"
)

// Scheduler fires the orchestrator once per day at a configured hour/minute
// in a fixed-offset timezone. Overlapping triggers are logged skips, never a
// queued second run.
type Scheduler struct {
	hour   int
	minute int
	loc    *time.Location
	orch   *Orchestrator
	logger *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
}

// NewScheduler wires the daily trigger with the pipeline orchestrator.
func NewScheduler(hour, minute int, loc *time.Location, orch *Orchestrator, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{hour: hour, minute: minute, loc: loc, orch: orch, logger: logger}
}

// Start launches the trigger loop. It returns immediately; the loop runs
// until Stop or context cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})

	go func(stop chan struct{}) {
		for {
			next := nextTrigger(time.Now().In(s.loc), s.hour, s.minute)
			timer := time.NewTimer(time.Until(next))
			select {
			case <-timer.C:
				s.Trigger(ctx)
			case <-ctx.Done():
				timer.Stop()
				return
			case <-stop:
				timer.Stop()
				return
			}
		}
	}(s.stop)

	return nil
}

// Trigger invokes StartRun exactly once. If a run is already active the
// trigger is a no-op that logs a skip.
func (s *Scheduler) Trigger(ctx context.Context) {
	result, err := s.orch.StartRun(ctx, false)
	if err != nil {
		if errors.Is(err, domain.ErrRunActive) {
			s.log("trigger skipped, run already active", "active", s.orch.ActiveRunID())
			return
		}
		s.log("scheduled run failed to start", "error", err)
		return
	}
	s.log("scheduled run finished", "run", result.RunID, "status", string(result.Status))
}

// Stop halts the trigger loop.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	s.stop = nil
	return nil
}

// nextTrigger returns the next instant the clock reads hour:minute in now's
// location, strictly after now.
func nextTrigger(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *Scheduler) log(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}
}
