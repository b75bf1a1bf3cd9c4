package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/hidrobio/price-monitor/internal/db"
	"github.com/hidrobio/price-monitor/internal/model"
)

// pgxPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool pgxPool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"upsert_observation": `INSERT INTO observations (date, source_id, product_id, raw_name, price, unit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (date, source_id, product_id, raw_name)
		DO UPDATE SET price = excluded.price, unit = excluded.unit`,
	"median_prices":  `SELECT price FROM observations WHERE product_id = $1 AND date = $2 ORDER BY price ASC`,
	"previous_price": `SELECT price FROM observations WHERE source_id = $1 AND product_id = $2 AND date < $3 ORDER BY date DESC, price ASC LIMIT 1`,
	"insert_report":  `INSERT INTO reports (id, date, report, created_at) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO UPDATE SET report = excluded.report`,
	"insert_alert": `INSERT INTO alerts (id, date, kind, product_id, source_id, message, severity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO NOTHING`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS observations (
	date       TEXT NOT NULL,
	source_id  TEXT NOT NULL,
	product_id TEXT NOT NULL,
	raw_name   TEXT NOT NULL,
	price      BIGINT NOT NULL,
	unit       TEXT NOT NULL DEFAULT 'kg',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (date, source_id, product_id, raw_name)
);

CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	date       TEXT NOT NULL,
	report     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS alerts (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	date       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	product_id TEXT,
	source_id  TEXT,
	message    TEXT NOT NULL,
	severity   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_observations_product_date ON observations(product_id, date);
CREATE INDEX IF NOT EXISTS idx_observations_source ON observations(source_id, product_id, date);
CREATE INDEX IF NOT EXISTS idx_reports_date ON reports(date);
CREATE INDEX IF NOT EXISTS idx_alerts_date ON alerts(date);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveObservation(ctx context.Context, obs model.PriceObservation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO observations (date, source_id, product_id, raw_name, price, unit, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (date, source_id, product_id, raw_name)
		 DO UPDATE SET price = excluded.price, unit = excluded.unit`,
		obs.Date, obs.SourceID, obs.ProductID, obs.RawName, obs.Price, obs.Unit, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save observation %s/%s", obs.SourceID, obs.ProductID)
}

// SaveObservations bulk-upserts a scrape batch in one transaction.
func (s *PostgresStore) SaveObservations(ctx context.Context, obs []model.PriceObservation) (int, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, len(obs))
	for i, o := range obs {
		rows[i] = []any{o.Date, o.SourceID, o.ProductID, o.RawName, o.Price, o.Unit, now}
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "observations",
		Columns:      []string{"date", "source_id", "product_id", "raw_name", "price", "unit", "created_at"},
		ConflictKeys: []string{"date", "source_id", "product_id", "raw_name"},
		UpdateCols:   []string{"price", "unit"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save observations")
	}
	return int(n), nil
}

func (s *PostgresStore) ObservationsForDate(ctx context.Context, date, productID string) ([]model.PriceObservation, error) {
	query := `SELECT date, source_id, product_id, raw_name, price, unit FROM observations WHERE date = $1`
	args := []any{date}
	if productID != "" {
		query += ` AND product_id = $2`
		args = append(args, productID)
	}
	query += ` ORDER BY price ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: observations for date")
	}
	defer rows.Close()
	return scanPgObservations(rows)
}

func (s *PostgresStore) ObservationsSince(ctx context.Context, productID, fromDate string) ([]model.PriceObservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date, source_id, product_id, raw_name, price, unit FROM observations
		 WHERE product_id = $1 AND date >= $2
		 ORDER BY date DESC, price ASC`,
		productID, fromDate,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: observations since")
	}
	defer rows.Close()
	return scanPgObservations(rows)
}

func (s *PostgresStore) MedianForDate(ctx context.Context, productID, date string) (*int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT MIN(price) AS price FROM observations WHERE product_id = $1 AND date = $2
		 GROUP BY source_id ORDER BY price ASC`,
		productID, date,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: median for date")
	}
	defer rows.Close()

	var prices []int64
	for rows.Next() {
		var p int64
		if err := rows.Scan(&p); err != nil {
			return nil, eris.Wrap(err, "postgres: scan price")
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: median iterate")
	}
	return medianOf(prices), nil
}

func (s *PostgresStore) DailyAverages(ctx context.Context, productID, fromDate, toDate string) ([]model.DailyPrice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date, ROUND(AVG(price))::bigint FROM observations
		 WHERE product_id = $1 AND date >= $2 AND date <= $3
		 GROUP BY date ORDER BY date ASC`,
		productID, fromDate, toDate,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: daily averages")
	}
	defer rows.Close()

	var daily []model.DailyPrice
	for rows.Next() {
		var d model.DailyPrice
		if err := rows.Scan(&d.Date, &d.Price); err != nil {
			return nil, eris.Wrap(err, "postgres: scan daily price")
		}
		daily = append(daily, d)
	}
	return daily, eris.Wrap(rows.Err(), "postgres: daily averages iterate")
}

func (s *PostgresStore) PreviousPrice(ctx context.Context, sourceID, productID, beforeDate string) (*int64, error) {
	var p int64
	err := s.pool.QueryRow(ctx,
		`SELECT price FROM observations
		 WHERE source_id = $1 AND product_id = $2 AND date < $3
		 ORDER BY date DESC, price ASC LIMIT 1`,
		sourceID, productID, beforeDate,
	).Scan(&p)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: previous price")
	}
	return &p, nil
}

func (s *PostgresStore) SaveReport(ctx context.Context, report *model.RunReport) error {
	if report.RunID == "" {
		report.RunID = uuid.New().String()
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports (id, date, report, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET report = excluded.report`,
		report.RunID, report.Date, reportJSON, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save report %s", report.Date)
}

func (s *PostgresStore) LatestReport(ctx context.Context) (*model.RunReport, error) {
	return s.queryReport(ctx,
		`SELECT report FROM reports ORDER BY created_at DESC, date DESC LIMIT 1`,
	)
}

func (s *PostgresStore) ReportForDate(ctx context.Context, date string) (*model.RunReport, error) {
	return s.queryReport(ctx,
		`SELECT report FROM reports WHERE date = $1 ORDER BY created_at DESC LIMIT 1`,
		date,
	)
}

func (s *PostgresStore) queryReport(ctx context.Context, query string, args ...any) (*model.RunReport, error) {
	var reportJSON []byte
	err := s.pool.QueryRow(ctx, query, args...).Scan(&reportJSON)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query report")
	}
	var r model.RunReport
	if err := json.Unmarshal(reportJSON, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal report")
	}
	return &r, nil
}

func (s *PostgresStore) SaveAlerts(ctx context.Context, alerts []model.Alert) error {
	for _, a := range alerts {
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		_, err := s.pool.Exec(ctx,
			`INSERT INTO alerts (id, date, kind, product_id, source_id, message, severity, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO NOTHING`,
			a.ID, a.Date, string(a.Kind), a.ProductID, a.SourceID, a.Message, a.Severity, a.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: save alert %s", a.Kind)
		}
	}
	return nil
}

func (s *PostgresStore) AlertsForDate(ctx context.Context, date string) ([]model.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, date, kind, product_id, source_id, message, severity, created_at
		 FROM alerts WHERE date = $1 ORDER BY created_at ASC`,
		date,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: alerts for date")
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var kind string
		if err := rows.Scan(&a.ID, &a.Date, &kind, &a.ProductID, &a.SourceID, &a.Message, &a.Severity, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		a.Kind = model.AlertKind(kind)
		alerts = append(alerts, a)
	}
	return alerts, eris.Wrap(rows.Err(), "postgres: alerts iterate")
}

func scanPgObservations(rows pgx.Rows) ([]model.PriceObservation, error) {
	var obs []model.PriceObservation
	for rows.Next() {
		var o model.PriceObservation
		if err := rows.Scan(&o.Date, &o.SourceID, &o.ProductID, &o.RawName, &o.Price, &o.Unit); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		obs = append(obs, o)
	}
	return obs, eris.Wrap(rows.Err(), "postgres: observations iterate")
}
