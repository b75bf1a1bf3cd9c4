package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidrobio/price-monitor/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func obs(date, source, product, rawName string, price int64) model.PriceObservation {
	return model.PriceObservation{
		Date:      date,
		SourceID:  source,
		ProductID: product,
		RawName:   rawName,
		Price:     price,
		Unit:      "kg",
	}
}

// --- Observations ---

func TestSQLite_SaveObservation_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	o := obs("2026-08-31", "stock", "tomate", "Tomate Ensalada", 17950)
	require.NoError(t, st.SaveObservation(ctx, o))

	// Same key again with a corrected price: overwrite, not duplicate.
	o.Price = 18500
	require.NoError(t, st.SaveObservation(ctx, o))

	got, err := st.ObservationsForDate(ctx, "2026-08-31", "tomate")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(18500), got[0].Price)
}

func TestSQLite_ObservationsForDate_SortedByPrice(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-31", "superseis", "tomate", "Tomate x kg", 14000)))
	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-31", "stock", "tomate", "Tomate Ensalada", 12000)))
	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-31", "casarica", "tomate", "Tomate", 13000)))
	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-30", "stock", "tomate", "Tomate Ensalada", 11000)))

	got, err := st.ObservationsForDate(ctx, "2026-08-31", "tomate")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(12000), got[0].Price)
	assert.Equal(t, int64(13000), got[1].Price)
	assert.Equal(t, int64(14000), got[2].Price)
}

func TestSQLite_ObservationsForDate_AllProducts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-31", "stock", "tomate", "Tomate", 12000)))
	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-31", "stock", "locote-rojo", "Locote Rojo", 22000)))

	got, err := st.ObservationsForDate(ctx, "2026-08-31", "")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLite_SaveObservations_Batch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	batch := []model.PriceObservation{
		obs("2026-08-31", "stock", "tomate", "Tomate", 12000),
		obs("2026-08-31", "stock", "tomate", "Tomate Perita", 13500),
	}
	n, err := st.SaveObservations(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// --- Median ---

func TestSQLite_MedianForDate_OddCount(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-31", "stock", "tomate", "a", 10000)))
	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-31", "superseis", "tomate", "b", 12000)))
	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-31", "casarica", "tomate", "c", 14000)))

	m, err := st.MedianForDate(ctx, "tomate", "2026-08-31")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, int64(12000), *m)
}

func TestSQLite_MedianForDate_EvenCount(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-31", "stock", "tomate", "a", 10000)))
	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-31", "superseis", "tomate", "b", 14000)))

	m, err := st.MedianForDate(ctx, "tomate", "2026-08-31")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, int64(12000), *m)
}

func TestSQLite_MedianForDate_CheapestPerSource(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Two listings from the same source must count once, at the lower price.
	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-31", "stock", "tomate", "Tomate Santa Cruz", 10000)))
	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-31", "stock", "tomate", "Tomate Santa Cruz Extra", 16000)))
	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-31", "superseis", "tomate", "Tomate x kg", 14000)))

	m, err := st.MedianForDate(ctx, "tomate", "2026-08-31")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, int64(12000), *m)
}

func TestSQLite_MedianForDate_NoData(t *testing.T) {
	st := newTestSQLiteStore(t)

	m, err := st.MedianForDate(context.Background(), "tomate", "2026-08-31")
	require.NoError(t, err)
	assert.Nil(t, m)
}

// --- History ---

func TestSQLite_PreviousPrice(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-28", "stock", "tomate", "Tomate", 11000)))
	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-30", "stock", "tomate", "Tomate", 11500)))
	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-31", "stock", "tomate", "Tomate", 13000)))

	p, err := st.PreviousPrice(ctx, "stock", "tomate", "2026-08-31")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(11500), *p)
}

func TestSQLite_PreviousPrice_NoHistory(t *testing.T) {
	st := newTestSQLiteStore(t)

	p, err := st.PreviousPrice(context.Background(), "stock", "tomate", "2026-08-31")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSQLite_DailyAverages(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-30", "stock", "tomate", "a", 10000)))
	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-30", "superseis", "tomate", "b", 12000)))
	require.NoError(t, st.SaveObservation(ctx, obs("2026-08-31", "stock", "tomate", "a", 14000)))

	daily, err := st.DailyAverages(ctx, "tomate", "2026-08-24", "2026-08-31")
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "2026-08-30", daily[0].Date)
	assert.Equal(t, int64(11000), daily[0].Price)
	assert.Equal(t, "2026-08-31", daily[1].Date)
	assert.Equal(t, int64(14000), daily[1].Price)
}

// --- Reports ---

func TestSQLite_Report_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	report := &model.RunReport{
		Date:             "2026-08-31",
		GeneratedAt:      time.Now().UTC(),
		ExecutiveSummary: "mercado estable",
		ObservationCount: 12,
	}
	require.NoError(t, st.SaveReport(ctx, report))
	assert.NotEmpty(t, report.RunID)

	latest, err := st.LatestReport(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, report.RunID, latest.RunID)
	assert.Equal(t, "mercado estable", latest.ExecutiveSummary)

	byDate, err := st.ReportForDate(ctx, "2026-08-31")
	require.NoError(t, err)
	require.NotNil(t, byDate)
	assert.Equal(t, 12, byDate.ObservationCount)
}

func TestSQLite_LatestReport_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	latest, err := st.LatestReport(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

// --- Alerts ---

func TestSQLite_Alerts_SaveAndQuery(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	alerts := []model.Alert{
		{
			Date:      "2026-08-31",
			Kind:      model.AlertFloorViolation,
			ProductID: "tomate",
			Message:   "segment mayorista: computed price 9000 below floor 13000, clamped",
			Severity:  model.SeverityWarning,
			CreatedAt: time.Now().UTC(),
		},
		{
			Date:      "2026-08-31",
			Kind:      model.AlertPriceMove,
			ProductID: "tomate",
			SourceID:  "stock",
			Message:   "price moved -18.5% day over day",
			Severity:  model.SeverityInfo,
			CreatedAt: time.Now().UTC().Add(time.Second),
		},
	}
	require.NoError(t, st.SaveAlerts(ctx, alerts))

	got, err := st.AlertsForDate(ctx, "2026-08-31")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.AlertFloorViolation, got[0].Kind)
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, "stock", got[1].SourceID)
}

func TestSQLite_AlertsForDate_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.AlertsForDate(context.Background(), "2026-08-31")
	require.NoError(t, err)
	assert.Empty(t, got)
}
