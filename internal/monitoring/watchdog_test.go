package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidrobio/price-monitor/internal/model"
	"github.com/hidrobio/price-monitor/internal/store"
)

func newWatchdogFixture(t *testing.T) (*Watchdog, store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "prices.db"), nil)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	return NewWatchdog(st, 26*time.Hour, time.Hour), st
}

func TestCollect_NoReportsIsStale(t *testing.T) {
	w, _ := newWatchdogFixture(t)

	snap, err := w.Collect(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.ReportStale)
	assert.Empty(t, snap.LastReportDate)
}

func TestCollect_FreshReport(t *testing.T) {
	w, st := newWatchdogFixture(t)

	date := model.DateKey(time.Now())
	require.NoError(t, st.SaveReport(context.Background(), &model.RunReport{
		RunID: "run-1", Date: date, GeneratedAt: time.Now().UTC().Add(-2 * time.Hour),
	}))
	require.NoError(t, st.SaveObservation(context.Background(), model.PriceObservation{
		Date: date, SourceID: "stock", ProductID: "tomate", RawName: "Tomate", Price: 12000, Unit: "kg",
	}))

	snap, err := w.Collect(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.ReportStale)
	assert.Equal(t, date, snap.LastReportDate)
	assert.Equal(t, 1, snap.ObservationsToday)
}

func TestCollect_OldReportIsStale(t *testing.T) {
	w, st := newWatchdogFixture(t)

	require.NoError(t, st.SaveReport(context.Background(), &model.RunReport{
		RunID: "run-old", Date: "2026-08-28", GeneratedAt: time.Now().UTC().Add(-72 * time.Hour),
	}))

	snap, err := w.Collect(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.ReportStale)
	assert.Equal(t, "2026-08-28", snap.LastReportDate)
}

func TestCollect_DegradedFlagCarried(t *testing.T) {
	w, st := newWatchdogFixture(t)

	require.NoError(t, st.SaveReport(context.Background(), &model.RunReport{
		RunID: "run-d", Date: model.DateKey(time.Now()), GeneratedAt: time.Now().UTC(), Degraded: true,
	}))

	snap, err := w.Collect(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.DegradedLastRun)
}
