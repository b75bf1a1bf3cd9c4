package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/hidrobio/price-monitor/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS observations (
	date       TEXT NOT NULL,
	source_id  TEXT NOT NULL,
	product_id TEXT NOT NULL,
	raw_name   TEXT NOT NULL,
	price      INTEGER NOT NULL,
	unit       TEXT NOT NULL DEFAULT 'kg',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (date, source_id, product_id, raw_name)
);

CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	date       TEXT NOT NULL,
	report     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY,
	date       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	product_id TEXT,
	source_id  TEXT,
	message    TEXT NOT NULL,
	severity   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_observations_product_date ON observations(product_id, date);
CREATE INDEX IF NOT EXISTS idx_observations_source ON observations(source_id, product_id, date);
CREATE INDEX IF NOT EXISTS idx_reports_date ON reports(date);
CREATE INDEX IF NOT EXISTS idx_alerts_date ON alerts(date);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveObservation upserts a single observation. Re-saving the same
// (date, source, product, raw name) key overwrites the price in place,
// so a re-run of the same day never duplicates rows.
func (s *SQLiteStore) SaveObservation(ctx context.Context, obs model.PriceObservation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO observations (date, source_id, product_id, raw_name, price, unit, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (date, source_id, product_id, raw_name)
		 DO UPDATE SET price = excluded.price, unit = excluded.unit`,
		obs.Date, obs.SourceID, obs.ProductID, obs.RawName, obs.Price, obs.Unit, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save observation %s/%s", obs.SourceID, obs.ProductID)
}

// SaveObservations upserts a batch and returns the number attempted.
func (s *SQLiteStore) SaveObservations(ctx context.Context, obs []model.PriceObservation) (int, error) {
	for i, o := range obs {
		if err := s.SaveObservation(ctx, o); err != nil {
			return i, err
		}
	}
	return len(obs), nil
}

func (s *SQLiteStore) ObservationsForDate(ctx context.Context, date, productID string) ([]model.PriceObservation, error) {
	query := `SELECT date, source_id, product_id, raw_name, price, unit FROM observations WHERE date = ?`
	args := []any{date}
	if productID != "" {
		query += ` AND product_id = ?`
		args = append(args, productID)
	}
	query += ` ORDER BY price ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: observations for date")
	}
	defer rows.Close()
	return scanObservations(rows)
}

func (s *SQLiteStore) ObservationsSince(ctx context.Context, productID, fromDate string) ([]model.PriceObservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, source_id, product_id, raw_name, price, unit FROM observations
		 WHERE product_id = ? AND date >= ?
		 ORDER BY date DESC, price ASC`,
		productID, fromDate,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: observations since")
	}
	defer rows.Close()
	return scanObservations(rows)
}

// MedianForDate returns the median price for a product on a day, computed
// over the cheapest listing per source, or nil when no observations exist.
func (s *SQLiteStore) MedianForDate(ctx context.Context, productID, date string) (*int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT MIN(price) AS price FROM observations WHERE product_id = ? AND date = ?
		 GROUP BY source_id ORDER BY price ASC`,
		productID, date,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: median for date")
	}
	defer rows.Close()

	var prices []int64
	for rows.Next() {
		var p int64
		if err := rows.Scan(&p); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price")
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: median iterate")
	}
	return medianOf(prices), nil
}

func (s *SQLiteStore) DailyAverages(ctx context.Context, productID, fromDate, toDate string) ([]model.DailyPrice, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, CAST(ROUND(AVG(price)) AS INTEGER) FROM observations
		 WHERE product_id = ? AND date >= ? AND date <= ?
		 GROUP BY date ORDER BY date ASC`,
		productID, fromDate, toDate,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: daily averages")
	}
	defer rows.Close()

	var daily []model.DailyPrice
	for rows.Next() {
		var d model.DailyPrice
		if err := rows.Scan(&d.Date, &d.Price); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan daily price")
		}
		daily = append(daily, d)
	}
	return daily, eris.Wrap(rows.Err(), "sqlite: daily averages iterate")
}

// PreviousPrice returns the most recent price a source listed for a product
// before the given date, or nil when the source has no history.
func (s *SQLiteStore) PreviousPrice(ctx context.Context, sourceID, productID, beforeDate string) (*int64, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT price FROM observations
		 WHERE source_id = ? AND product_id = ? AND date < ?
		 ORDER BY date DESC, price ASC LIMIT 1`,
		sourceID, productID, beforeDate,
	)
	var p int64
	err := row.Scan(&p)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: previous price")
	}
	return &p, nil
}

func (s *SQLiteStore) SaveReport(ctx context.Context, report *model.RunReport) error {
	if report.RunID == "" {
		report.RunID = uuid.New().String()
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, date, report, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET report = excluded.report`,
		report.RunID, report.Date, string(reportJSON), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save report %s", report.Date)
}

func (s *SQLiteStore) LatestReport(ctx context.Context) (*model.RunReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT report FROM reports ORDER BY created_at DESC, date DESC LIMIT 1`,
	)
	return scanReport(row)
}

func (s *SQLiteStore) ReportForDate(ctx context.Context, date string) (*model.RunReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT report FROM reports WHERE date = ? ORDER BY created_at DESC LIMIT 1`,
		date,
	)
	return scanReport(row)
}

func (s *SQLiteStore) SaveAlerts(ctx context.Context, alerts []model.Alert) error {
	for _, a := range alerts {
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO alerts (id, date, kind, product_id, source_id, message, severity, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO NOTHING`,
			a.ID, a.Date, string(a.Kind), a.ProductID, a.SourceID, a.Message, a.Severity, a.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save alert %s", a.Kind)
		}
	}
	return nil
}

func (s *SQLiteStore) AlertsForDate(ctx context.Context, date string) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, kind, product_id, source_id, message, severity, created_at
		 FROM alerts WHERE date = ? ORDER BY created_at ASC`,
		date,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: alerts for date")
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var kind string
		if err := rows.Scan(&a.ID, &a.Date, &kind, &a.ProductID, &a.SourceID, &a.Message, &a.Severity, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		a.Kind = model.AlertKind(kind)
		alerts = append(alerts, a)
	}
	return alerts, eris.Wrap(rows.Err(), "sqlite: alerts iterate")
}

// helpers

// medianOf returns the median of sorted prices; even counts average the two
// middle values. Nil for an empty slice.
func medianOf(sorted []int64) *int64 {
	n := len(sorted)
	if n == 0 {
		return nil
	}
	var m int64
	if n%2 == 1 {
		m = sorted[n/2]
	} else {
		m = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return &m
}

type scannable interface {
	Scan(dest ...any) error
}

func scanReport(row scannable) (*model.RunReport, error) {
	var reportJSON string
	err := row.Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan report")
	}
	var r model.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal report")
	}
	return &r, nil
}

func scanObservations(rows *sql.Rows) ([]model.PriceObservation, error) {
	var obs []model.PriceObservation
	for rows.Next() {
		var o model.PriceObservation
		if err := rows.Scan(&o.Date, &o.SourceID, &o.ProductID, &o.RawName, &o.Price, &o.Unit); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		obs = append(obs, o)
	}
	return obs, eris.Wrap(rows.Err(), "sqlite: observations iterate")
}
