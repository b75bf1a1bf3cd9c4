// Package monitoring watches the freshness of collected data. The report
// alerts cover per-product anomalies inside a run; the watchdog covers the
// case where runs stop happening or stop producing data at all.
package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hidrobio/price-monitor/internal/model"
	"github.com/hidrobio/price-monitor/internal/store"
)

// Snapshot holds a point-in-time view of data freshness.
type Snapshot struct {
	LastReportDate    string    `json:"last_report_date,omitempty"`
	LastReportAge     string    `json:"last_report_age,omitempty"`
	ReportStale       bool      `json:"report_stale"`
	ObservationsToday int       `json:"observations_today"`
	DegradedLastRun   bool      `json:"degraded_last_run"`
	CollectedAt       time.Time `json:"collected_at"`
}

// Watchdog periodically checks the store and logs when the data has gone
// stale. It sits beside the scheduler in serve mode.
type Watchdog struct {
	store    store.Store
	maxAge   time.Duration
	interval time.Duration

	now func() time.Time
}

// NewWatchdog creates a Watchdog. maxAge is how old the latest report may be
// before it counts as stale; a daily schedule wants a little over 24h.
func NewWatchdog(st store.Store, maxAge, interval time.Duration) *Watchdog {
	if maxAge <= 0 {
		maxAge = 26 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Watchdog{store: st, maxAge: maxAge, interval: interval, now: time.Now}
}

// Run blocks until ctx is done, checking freshness on each tick.
func (w *Watchdog) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.watchdog"))
	log.Info("starting freshness watchdog",
		zap.Duration("interval", w.interval),
		zap.Duration("max_report_age", w.maxAge),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("freshness watchdog stopped")
			return
		case <-ticker.C:
			snap, err := w.Collect(ctx)
			if err != nil {
				log.Error("monitoring: freshness check failed", zap.Error(err))
				continue
			}
			w.report(log, snap)
		}
	}
}

// Collect builds a freshness snapshot from the store.
func (w *Watchdog) Collect(ctx context.Context) (*Snapshot, error) {
	now := w.now()
	snap := &Snapshot{CollectedAt: now.UTC()}

	latest, err := w.store.LatestReport(ctx)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		snap.ReportStale = true
		return snap, nil
	}

	snap.LastReportDate = latest.Date
	snap.DegradedLastRun = latest.Degraded

	age := now.UTC().Sub(latest.GeneratedAt)
	snap.LastReportAge = age.Round(time.Minute).String()
	snap.ReportStale = age > w.maxAge

	today, err := w.store.ObservationsForDate(ctx, model.DateKey(now), "")
	if err != nil {
		return nil, err
	}
	snap.ObservationsToday = len(today)

	return snap, nil
}

func (w *Watchdog) report(log *zap.Logger, snap *Snapshot) {
	if snap.ReportStale {
		msg := "no report has ever been generated"
		if snap.LastReportDate != "" {
			msg = fmt.Sprintf("latest report (%s) is %s old", snap.LastReportDate, snap.LastReportAge)
		}
		log.Warn("monitoring: stale data", zap.String("detail", msg))
		return
	}
	log.Debug("monitoring: data fresh",
		zap.String("last_report", snap.LastReportDate),
		zap.Int("observations_today", snap.ObservationsToday),
		zap.Bool("degraded", snap.DegradedLastRun),
	)
}
