// Package store persists price observations, generated reports and alerts.
// Two backends are provided: SQLite for single-machine deployments and
// PostgreSQL for shared installations.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/hidrobio/price-monitor/internal/model"
)

// Store defines the persistence interface for the monitoring pipeline.
type Store interface {
	// Observations
	SaveObservation(ctx context.Context, obs model.PriceObservation) error
	SaveObservations(ctx context.Context, obs []model.PriceObservation) (int, error)
	ObservationsForDate(ctx context.Context, date, productID string) ([]model.PriceObservation, error)
	ObservationsSince(ctx context.Context, productID, fromDate string) ([]model.PriceObservation, error)
	MedianForDate(ctx context.Context, productID, date string) (*int64, error)
	DailyAverages(ctx context.Context, productID, fromDate, toDate string) ([]model.DailyPrice, error)
	PreviousPrice(ctx context.Context, sourceID, productID, beforeDate string) (*int64, error)

	// Reports
	SaveReport(ctx context.Context, report *model.RunReport) error
	LatestReport(ctx context.Context) (*model.RunReport, error)
	ReportForDate(ctx context.Context, date string) (*model.RunReport, error)

	// Alerts
	SaveAlerts(ctx context.Context, alerts []model.Alert) error
	AlertsForDate(ctx context.Context, date string) ([]model.Alert, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open constructs a Store for the given driver. The sqlite driver treats dsn
// as a file path; postgres treats it as a connection string.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "sqlite", "":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
