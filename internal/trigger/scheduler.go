package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hidrobio/price-monitor/internal/config"
)

// Scheduler fires the trigger once a day at a configured local wall-clock
// time.
type Scheduler struct {
	trg        *Trigger
	hour       int
	minute     int
	loc        *time.Location
	runOnStart bool

	now func() time.Time
}

// NewScheduler parses the schedule configuration. Time is "HH:MM" in the
// configured IANA timezone.
func NewScheduler(trg *Trigger, cfg config.ScheduleConfig) (*Scheduler, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(cfg.Time, "%d:%d", &hour, &minute); err != nil {
		return nil, eris.Wrapf(err, "trigger: parse schedule time %q", cfg.Time)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, eris.Errorf("trigger: schedule time %q out of range", cfg.Time)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "trigger: load timezone %q", cfg.Timezone)
	}

	return &Scheduler{
		trg:        trg,
		hour:       hour,
		minute:     minute,
		loc:        loc,
		runOnStart: cfg.RunOnStart,
		now:        time.Now,
	}, nil
}

// Run blocks until ctx is done, firing the trigger at each scheduled time.
// A skipped or failed run never stops the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.runOnStart {
		s.fire(ctx)
	}

	for {
		next := s.nextFire(s.now())
		zap.L().Info("trigger: next scheduled run", zap.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	if _, err := s.trg.TryRun(ctx); err != nil {
		zap.L().Warn("trigger: scheduled run not executed", zap.Error(err))
	}
}

// nextFire returns the next occurrence of the configured wall-clock time
// strictly after now.
func (s *Scheduler) nextFire(now time.Time) time.Time {
	now = now.In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
