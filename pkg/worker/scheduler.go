// Package worker runs periodic ledger maintenance on an RRULE schedule.
package worker

import (
	"context"
	"time"

	"github.com/mcclellann/tuitionLedger/pkg/ledger"
	"github.com/pkg/errors"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"
)

// Sweeper is the maintenance job the scheduler drives.
type Sweeper interface {
	SweepOverdue(ctx context.Context) (*ledger.SweepResult, error)
}

// Scheduler runs a Sweeper at each occurrence of a recurrence rule.
type Scheduler struct {
	rule   *rrule.RRule
	job    Sweeper
	logger *zap.Logger
	now    func() time.Time
}

// NewScheduler parses rule (RFC 5545 RRULE, e.g. "FREQ=DAILY;BYHOUR=1")
// with occurrences anchored at local midnight of the day it is created.
func NewScheduler(rule string, job Sweeper, logger *zap.Logger) (*Scheduler, error) {
	return newScheduler(rule, job, logger, time.Now)
}

func newScheduler(rule string, job Sweeper, logger *zap.Logger, now func() time.Time) (*Scheduler, error) {
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, errors.Wrapf(err, "worker: parse rrule %q", rule)
	}
	t := now()
	r.DTStart(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()))
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{rule: r, job: job, logger: logger, now: now}, nil
}

// NextRun returns the first occurrence strictly after t, or the zero time
// when the rule is exhausted.
func (s *Scheduler) NextRun(t time.Time) time.Time {
	return s.rule.After(t, false)
}

// RunOnce runs the job immediately.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := s.now()
	res, err := s.job.SweepOverdue(ctx)
	if err != nil {
		s.logger.Error("overdue sweep failed", zap.Error(err))
		return err
	}
	s.logger.Info("overdue sweep ran",
		zap.Int("flipped", res.Flipped),
		zap.Int("students", len(res.Students)),
		zap.Duration("took", s.now().Sub(start)),
	)
	return nil
}

// Run sleeps until each occurrence and runs the job, until ctx is done or
// the rule has no further occurrences. A failed run does not stop the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := s.NextRun(s.now())
		if next.IsZero() {
			s.logger.Info("schedule exhausted")
			return nil
		}
		s.logger.Debug("next sweep scheduled", zap.Time("at", next))

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		_ = s.RunOnce(ctx)
	}
}
