package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidrobio/price-monitor/internal/catalog"
	"github.com/hidrobio/price-monitor/internal/config"
	"github.com/hidrobio/price-monitor/internal/model"
	"github.com/hidrobio/price-monitor/internal/store"
)

const storefrontHTML = `<html><body>
<div class="product-item">
  <h3>Tomate Ensalada</h3>
  <span class="price">Gs. 12.500</span>
</div>
<div class="product-item">
  <h3>Tomate Perita</h3>
  <span class="price">Gs. 14.000</span>
</div>
<div class="product-item">
  <h3>Locote Rojo</h3>
  <span class="price">Gs. 18.000</span>
</div>
<div class="product-item">
  <h3>Salsa de tomate en lata</h3>
  <span class="price">Gs. 6.000</span>
</div>
</body></html>`

func testCatalog(searchURL string) *catalog.Catalog {
	return &catalog.Catalog{
		Products: []model.ProductDefinition{
			{
				ID:             "tomate",
				CanonicalName:  "Tomate",
				Aliases:        []string{"tomate"},
				SearchTerms:    []string{"tomate"},
				Unit:           "kg",
				ProductionCost: 8000,
				AbsoluteFloor:  10000,
			},
			{
				ID:             "locote-rojo",
				CanonicalName:  "Locote Rojo",
				Aliases:        []string{"locote rojo"},
				SearchTerms:    []string{"locote"},
				Unit:           "kg",
				ProductionCost: 9000,
				AbsoluteFloor:  11000,
			},
			{
				ID:             "zanahoria",
				CanonicalName:  "Zanahoria",
				Aliases:        []string{"zanahoria"},
				SearchTerms:    []string{"zanahoria"},
				Unit:           "kg",
				ProductionCost: 5000,
				AbsoluteFloor:  6500,
			},
		},
		Segments: []model.SegmentPolicy{
			{ID: "directo", Name: "Venta directa", Rank: 2, MinPct: 0.75, TargetPct: 0.85, MaxPct: 0.95, MinMargin: 0.30},
			{ID: "mayorista", Name: "Mayorista", Rank: 1, MinPct: 0.55, TargetPct: 0.65, MaxPct: 0.75, MinMargin: 0.15},
		},
		Sources: []catalog.SourceDefinition{
			{ID: "tienda", Name: "Tienda", Kind: "generic", BaseURL: "http://tienda.example", SearchURL: searchURL, Enabled: true},
			{ID: "apagada", Name: "Apagada", Kind: "generic", SearchURL: "http://unused.invalid/?q=%s", Enabled: false},
		},
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Source: config.SourceConfig{
			TimeoutSecs:    5,
			MaxConcurrent:  2,
			RetryAttempts:  1,
			MaxPagesPerCat: 2,
		},
		Reasoner: config.ReasonerConfig{Enabled: false},
		Alerts:   config.AlertsConfig{PriceMoveThresholdPct: 15},
		Trend:    config.TrendConfig{WindowDays: 7},
		Report:   config.ReportConfig{OutputDir: t.TempDir()},
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "prices.db"), nil)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRun_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, storefrontHTML)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	st := newTestStore(t)
	runner := New(cfg, testCatalog(srv.URL+"/?q=%s"), st, nil)

	rep, err := runner.Run(context.Background())
	require.NoError(t, err)

	// The processed listing is filtered and zanahoria is never listed.
	require.Len(t, rep.Products, 3)
	byID := make(map[string]model.ProductReport)
	for _, p := range rep.Products {
		byID[p.ProductID] = p
	}

	tomate := byID["tomate"]
	require.NotNil(t, tomate.Snapshot)
	// Both listings came from the same source, so only the cheaper one
	// enters the statistics.
	assert.Equal(t, int64(12500), tomate.Snapshot.Median)
	assert.Equal(t, 1, tomate.Snapshot.ObservationCount)
	assert.Equal(t, int64(12500), tomate.Prices[0].Price)
	require.NotEmpty(t, tomate.Recommendations)
	assert.Equal(t, "directo", tomate.Recommendations[0].SegmentID)

	locote := byID["locote-rojo"]
	require.NotNil(t, locote.Snapshot)
	assert.Equal(t, 1, locote.Snapshot.ObservationCount)

	assert.True(t, byID["zanahoria"].NoData)
	assert.Nil(t, byID["zanahoria"].Snapshot)

	// Persisted side effects.
	latest, err := st.LatestReport(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, rep.RunID, latest.RunID)

	date := model.DateKey(time.Now())
	obs, err := st.ObservationsForDate(context.Background(), date, "tomate")
	require.NoError(t, err)
	assert.Len(t, obs, 2)

	// Artifacts on disk.
	_, err = os.Stat(filepath.Join(cfg.Report.OutputDir, "reporte-precios-"+date+".json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.Report.OutputDir, "reporte-precios-"+date+".xlsx"))
	require.NoError(t, err)
}

func TestRun_MedianIsCheapestPerSource(t *testing.T) {
	tienda := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, storefrontHTML)
	}))
	defer tienda.Close()
	otra := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><div class="product-item">
<h3>Tomate Liso</h3><span class="price">Gs. 20.000</span>
</div></body></html>`)
	}))
	defer otra.Close()

	cfg := testConfig(t)
	st := newTestStore(t)
	cat := testCatalog(tienda.URL + "/?q=%s")
	cat.Sources = append(cat.Sources, catalog.SourceDefinition{
		ID: "otra", Name: "Otra", Kind: "generic",
		BaseURL: "http://otra.example", SearchURL: otra.URL + "/?q=%s", Enabled: true,
	})
	runner := New(cfg, cat, st, nil)

	rep, err := runner.Run(context.Background())
	require.NoError(t, err)

	for _, p := range rep.Products {
		if p.ProductID != "tomate" {
			continue
		}
		require.NotNil(t, p.Snapshot)
		// tienda's 14000 variant is shadowed by its 12500 one; the median
		// averages 12500 (tienda) and 20000 (otra), not all three listings.
		assert.Equal(t, int64(16250), p.Snapshot.Median)
		assert.Equal(t, 2, p.Snapshot.ObservationCount)
		return
	}
	t.Fatal("tomate missing from report")
}

func TestRun_SourceDownIsTolerated(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.TimeoutSecs = 1
	st := newTestStore(t)
	runner := New(cfg, testCatalog("http://127.0.0.1:1/?q=%s"), st, nil)

	rep, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, rep.ObservationCount)
	for _, p := range rep.Products {
		assert.True(t, p.NoData, p.ProductID)
	}
}

func TestRun_PriceMoveAlert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, storefrontHTML)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	st := newTestStore(t)
	runner := New(cfg, testCatalog(srv.URL+"/?q=%s"), st, nil)

	// Yesterday tomate sold for 20000 at the same source; today's 12500 is a
	// -37.5% move, past the 15% threshold.
	yesterday := model.DateKey(time.Now().AddDate(0, 0, -1))
	require.NoError(t, st.SaveObservation(context.Background(), model.PriceObservation{
		Date: yesterday, SourceID: "tienda", ProductID: "tomate", RawName: "Tomate Ensalada", Price: 20000, Unit: "kg",
	}))

	rep, err := runner.Run(context.Background())
	require.NoError(t, err)

	var move *model.Alert
	for i, a := range rep.Alerts {
		if a.Kind == model.AlertPriceMove && a.ProductID == "tomate" {
			move = &rep.Alerts[i]
		}
	}
	require.NotNil(t, move, "expected a price-move alert")
	assert.Equal(t, "tienda", move.SourceID)
	assert.Contains(t, move.Message, "-37.5%")

	stored, err := st.AlertsForDate(context.Background(), model.DateKey(time.Now()))
	require.NoError(t, err)
	assert.NotEmpty(t, stored)
}

func TestRun_WeekOverWeek(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, storefrontHTML)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	st := newTestStore(t)
	runner := New(cfg, testCatalog(srv.URL+"/?q=%s"), st, nil)

	weekAgo := model.DateKey(time.Now().AddDate(0, 0, -7))
	require.NoError(t, st.SaveObservation(context.Background(), model.PriceObservation{
		Date: weekAgo, SourceID: "tienda", ProductID: "tomate", RawName: "Tomate", Price: 10000, Unit: "kg",
	}))

	rep, err := runner.Run(context.Background())
	require.NoError(t, err)

	for _, p := range rep.Products {
		if p.ProductID != "tomate" {
			continue
		}
		require.NotNil(t, p.Snapshot.WeekChangePct)
		assert.InDelta(t, 0.25, *p.Snapshot.WeekChangePct, 0.001) // 10000 -> 12500
		return
	}
	t.Fatal("tomate missing from report")
}

func TestQueriesFor(t *testing.T) {
	runner := New(testConfig(t), testCatalog("http://x/?q=%s"), nil, nil)

	search := runner.queriesFor(catalog.SourceDefinition{ID: "s", Kind: "generic"})
	assert.Equal(t, []string{"tomate", "locote", "zanahoria"}, search)

	browse := runner.queriesFor(catalog.SourceDefinition{ID: "c", Kind: "casarica", Categories: []string{"frutas", "verduras"}})
	assert.Equal(t, []string{"frutas", "verduras"}, browse)

	vision := runner.queriesFor(catalog.SourceDefinition{ID: "v", Kind: "vision"})
	assert.Equal(t, []string{""}, vision)
}
