// Package trigger owns the two run entry points: the daily wall-clock
// scheduler and the on-demand HTTP server. Both go through the same
// debounced Trigger so overlapping or rapid-fire runs are rejected at the
// boundary instead of inside the pipeline.
package trigger

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hidrobio/price-monitor/internal/model"
)

// RunFunc executes one monitoring run.
type RunFunc func(ctx context.Context) (*model.RunReport, error)

var (
	// ErrRateLimited is returned when a run was requested before the
	// minimum interval elapsed.
	ErrRateLimited = eris.New("trigger: minimum interval not elapsed")

	// ErrRunInProgress is returned when a run is already executing.
	ErrRunInProgress = eris.New("trigger: run already in progress")
)

// Trigger debounces run requests. A token refills once per minimum
// interval with burst 1; a second guard rejects requests while a run is
// still executing.
type Trigger struct {
	run     RunFunc
	limiter *rate.Limiter
	running atomic.Bool
}

// New creates a Trigger. The first request is always admitted.
func New(run RunFunc, minInterval time.Duration) *Trigger {
	return &Trigger{
		run:     run,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// TryRun executes a run if admitted. Rejections return ErrRateLimited or
// ErrRunInProgress without consuming the caller's time.
func (t *Trigger) TryRun(ctx context.Context) (*model.RunReport, error) {
	if !t.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer t.running.Store(false)

	if !t.limiter.Allow() {
		return nil, ErrRateLimited
	}

	return t.run(ctx)
}

// TryRunAsync starts a run in the background if admitted. The admission
// decision is synchronous; the run itself is not.
func (t *Trigger) TryRunAsync(ctx context.Context) error {
	if t.running.Load() {
		return ErrRunInProgress
	}
	if !t.limiter.Allow() {
		return ErrRateLimited
	}
	if !t.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}

	go func() {
		defer t.running.Store(false)
		if _, err := t.run(ctx); err != nil {
			zap.L().Error("trigger: run failed", zap.Error(err))
		}
	}()
	return nil
}
