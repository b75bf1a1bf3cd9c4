// Package pipeline orchestrates one monitoring run: collect raw prices from
// every enabled source, match and persist them, derive snapshots and
// recommendations, optionally refine through the reasoner, and emit the
// report artifacts.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hidrobio/price-monitor/internal/banding"
	"github.com/hidrobio/price-monitor/internal/catalog"
	"github.com/hidrobio/price-monitor/internal/config"
	"github.com/hidrobio/price-monitor/internal/model"
	"github.com/hidrobio/price-monitor/internal/normalize"
	"github.com/hidrobio/price-monitor/internal/reasoner"
	"github.com/hidrobio/price-monitor/internal/report"
	"github.com/hidrobio/price-monitor/internal/source"
	"github.com/hidrobio/price-monitor/internal/store"
	"github.com/hidrobio/price-monitor/pkg/anthropic"
)

// Runner wires the catalog, the store and the Anthropic client into the
// run phases. client may be nil when the reasoner is disabled and no vision
// source is enabled.
type Runner struct {
	cfg    *config.Config
	cat    *catalog.Catalog
	store  store.Store
	client anthropic.Client

	now func() time.Time
}

// New creates a Runner.
func New(cfg *config.Config, cat *catalog.Catalog, st store.Store, client anthropic.Client) *Runner {
	return &Runner{
		cfg:    cfg,
		cat:    cat,
		store:  st,
		client: client,
		now:    time.Now,
	}
}

// Run executes a full monitoring run for today and returns the assembled
// report. Store failures are fatal; individual source failures are not.
func (r *Runner) Run(ctx context.Context) (*model.RunReport, error) {
	runID := uuid.New().String()
	date := model.DateKey(r.now())
	log := zap.L().With(zap.String("run_id", runID), zap.String("date", date))
	runStart := time.Now()
	log.Info("pipeline: starting run")

	// Phase 1: collect.
	start := time.Now()
	bySource := r.collect(ctx)
	collected := 0
	for _, recs := range bySource {
		collected += len(recs)
	}
	log.Info("pipeline: collect complete",
		zap.Int("sources", len(bySource)),
		zap.Int("records", collected),
		zap.Duration("duration", time.Since(start)),
	)

	// Phase 2: match and persist.
	start = time.Now()
	saved, err := r.persist(ctx, date, bySource)
	if err != nil {
		return nil, err
	}
	log.Info("pipeline: persist complete",
		zap.Int("observations", saved),
		zap.Duration("duration", time.Since(start)),
	)

	// Phase 3: analyze.
	start = time.Now()
	data, alerts, err := r.analyze(ctx, date)
	if err != nil {
		return nil, err
	}
	log.Info("pipeline: analyze complete",
		zap.Int("products", len(data)),
		zap.Int("alerts", len(alerts)),
		zap.Duration("duration", time.Since(start)),
	)

	// Phase 4: reason (optional).
	var summary, weekly string
	degraded := false
	if r.cfg.Reasoner.Enabled && r.client != nil {
		start = time.Now()
		out := r.reason(ctx, date, data)
		summary = out.ExecutiveSummary
		weekly = out.WeeklyRecommendation
		degraded = out.Degraded
		alerts = append(alerts, out.Alerts...)
		for i := range data {
			if recs, ok := out.Recommendations[data[i].Product.ID]; ok {
				data[i].Recommendations = recs
			}
		}
		log.Info("pipeline: reason complete",
			zap.Bool("degraded", degraded),
			zap.Duration("duration", time.Since(start)),
		)
	}

	// Phase 5: report.
	start = time.Now()
	rep := report.Assemble(runID, date, data, alerts, summary, weekly, degraded)
	if err := r.store.SaveReport(ctx, rep); err != nil {
		return nil, eris.Wrap(err, "pipeline: save report")
	}
	if len(alerts) > 0 {
		if err := r.store.SaveAlerts(ctx, alerts); err != nil {
			return nil, eris.Wrap(err, "pipeline: save alerts")
		}
	}
	jsonPath, err := report.WriteJSON(rep, r.cfg.Report.OutputDir)
	if err != nil {
		return nil, err
	}
	xlsxPath, err := report.WriteXLSX(rep, r.cfg.Report.OutputDir)
	if err != nil {
		return nil, err
	}
	log.Info("pipeline: report complete",
		zap.String("json", jsonPath),
		zap.String("xlsx", xlsxPath),
		zap.Duration("duration", time.Since(start)),
	)

	log.Info("pipeline: run complete",
		zap.Int("observations", rep.ObservationCount),
		zap.Int("alerts", len(rep.Alerts)),
		zap.Bool("degraded", rep.Degraded),
		zap.Duration("duration", time.Since(runStart)),
	)
	return rep, nil
}

// collect fans out over every enabled source. Each source failure is logged
// and tolerated; the run continues with whatever came back.
func (r *Runner) collect(ctx context.Context) map[string][]model.RawPriceRecord {
	opts := source.Options{
		Timeout:       time.Duration(r.cfg.Source.TimeoutSecs) * time.Second,
		UserAgent:     r.cfg.Source.UserAgent,
		RetryAttempts: r.cfg.Source.RetryAttempts,
		MaxPages:      r.cfg.Source.MaxPagesPerCat,
	}

	var mu sync.Mutex
	results := make(map[string][]model.RawPriceRecord)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Source.MaxConcurrent)

	for _, def := range r.cat.Sources {
		if !def.Enabled {
			continue
		}
		adapter, err := source.New(def, opts, r.client, r.cfg.Anthropic.VisionModel)
		if err != nil {
			zap.L().Warn("pipeline: skipping source",
				zap.String("source", def.ID), zap.Error(err))
			continue
		}

		for _, query := range r.queriesFor(def) {
			g.Go(func() error {
				records := source.Search(gctx, adapter, query)
				if len(records) == 0 {
					return nil
				}
				mu.Lock()
				results[def.ID] = append(results[def.ID], records...)
				mu.Unlock()
				return nil
			})
		}
	}

	// Search never returns an error, so Wait only reflects ctx cancellation.
	_ = g.Wait()
	return results
}

// queriesFor decides what to ask a source for. Vision sources read a fixed
// image, browse-style sources walk their configured categories, search-style
// sources get the union of every product's search terms.
func (r *Runner) queriesFor(def catalog.SourceDefinition) []string {
	if def.Kind == "vision" {
		return []string{""}
	}
	if len(def.Categories) > 0 {
		return def.Categories
	}

	seen := make(map[string]bool)
	var queries []string
	for _, p := range r.cat.Products {
		for _, term := range p.SearchTerms {
			if seen[term] {
				continue
			}
			seen[term] = true
			queries = append(queries, term)
		}
	}
	return queries
}

// persist matches raw records against the product catalog and saves the
// matched ones. Unmatched listings are expected noise and only counted.
func (r *Runner) persist(ctx context.Context, date string, bySource map[string][]model.RawPriceRecord) (int, error) {
	var observations []model.PriceObservation
	unmatched := 0

	for sourceID, records := range bySource {
		for _, rec := range records {
			productID, ok := normalize.MatchProduct(rec.RawName, r.cat.Products)
			if !ok {
				unmatched++
				continue
			}
			observations = append(observations, model.PriceObservation{
				Date:      date,
				SourceID:  sourceID,
				ProductID: productID,
				RawName:   rec.RawName,
				Price:     rec.Price,
				Unit:      rec.Unit,
			})
		}
	}

	saved, err := r.store.SaveObservations(ctx, observations)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: persist observations")
	}
	if unmatched > 0 {
		zap.L().Debug("pipeline: unmatched listings dropped", zap.Int("count", unmatched))
	}
	return saved, nil
}

// analyze derives the snapshot, trend, recommendations and alerts for every
// catalog product. Products with no same-day observations are carried
// through as no-data entries.
func (r *Runner) analyze(ctx context.Context, date string) ([]report.ProductData, []model.Alert, error) {
	day, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "pipeline: parse date %s", date)
	}
	weekAgo := day.AddDate(0, 0, -7).Format(model.DateLayout)
	windowStart := day.AddDate(0, 0, -r.cfg.Trend.WindowDays).Format(model.DateLayout)

	var data []report.ProductData
	var alerts []model.Alert

	for _, p := range r.cat.Products {
		obs, err := r.store.ObservationsForDate(ctx, date, p.ID)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "pipeline: observations for %s", p.ID)
		}
		if len(obs) == 0 {
			data = append(data, report.ProductData{Product: p})
			continue
		}

		// One source listing several matching variants must count once in
		// the statistics, so collapse to the cheapest listing per source.
		cheapest := cheapestPerSource(obs)
		prices := make([]int64, 0, len(cheapest))
		for _, price := range cheapest {
			prices = append(prices, price)
		}
		snap := banding.ComputeSnapshot(p.ID, date, prices)

		prevMedian, err := r.store.MedianForDate(ctx, p.ID, weekAgo)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "pipeline: median for %s", p.ID)
		}
		snap.WeekChangePct = banding.WeekOverWeek(&snap.Median, prevMedian)

		daily, err := r.store.DailyAverages(ctx, p.ID, windowStart, date)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "pipeline: daily averages for %s", p.ID)
		}
		trend := banding.Trend(daily)

		recs, bandAlerts := banding.BandPrices(snap, p, r.cat.Segments)
		alerts = append(alerts, bandAlerts...)

		moveAlerts, err := r.detectMoves(ctx, date, p.ID, cheapest)
		if err != nil {
			return nil, nil, err
		}
		alerts = append(alerts, moveAlerts...)

		data = append(data, report.ProductData{
			Product:         p,
			Observations:    obs,
			Snapshot:        snap,
			Trend:           &trend,
			Recommendations: recs,
		})
	}

	return data, alerts, nil
}

// cheapestPerSource collapses same-day listings to the lowest price per
// source.
func cheapestPerSource(obs []model.PriceObservation) map[string]int64 {
	cheapest := make(map[string]int64, len(obs))
	for _, o := range obs {
		if cur, ok := cheapest[o.SourceID]; !ok || o.Price < cur {
			cheapest[o.SourceID] = o.Price
		}
	}
	return cheapest
}

// detectMoves compares each source's cheapest listing today against that
// source's most recent prior price.
func (r *Runner) detectMoves(ctx context.Context, date, productID string, cheapest map[string]int64) ([]model.Alert, error) {
	var alerts []model.Alert
	for sourceID, price := range cheapest {
		prev, err := r.store.PreviousPrice(ctx, sourceID, productID, date)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: previous price for %s at %s", productID, sourceID)
		}
		if prev == nil {
			continue
		}
		pct, moved := banding.DetectPriceMove(*prev, price, r.cfg.Alerts.PriceMoveThresholdPct)
		if !moved {
			continue
		}
		msg := fmt.Sprintf("price moved %+.1f%% at %s (%d -> %d Gs)", pct, sourceID, *prev, price)
		alerts = append(alerts, banding.NewAlert(date, model.AlertPriceMove, productID, sourceID, msg, model.SeverityWarning))
	}
	return alerts, nil
}

// reason runs the advisory refinement over the products that produced data.
func (r *Runner) reason(ctx context.Context, date string, data []report.ProductData) reasoner.Output {
	in := reasoner.Input{
		Date:     date,
		Segments: r.cat.Segments,
	}
	for _, d := range data {
		if d.Snapshot == nil {
			continue
		}
		var trend model.Trend
		if d.Trend != nil {
			trend = *d.Trend
		}
		in.Products = append(in.Products, reasoner.ProductInput{
			Product:  d.Product,
			Snapshot: d.Snapshot,
			Trend:    trend,
			Computed: d.Recommendations,
		})
	}

	rz := reasoner.New(r.client, reasoner.Config{
		Model:     r.cfg.Anthropic.Model,
		MaxTokens: r.cfg.Anthropic.MaxTokens,
		Timeout:   time.Duration(r.cfg.Reasoner.TimeoutSecs) * time.Second,
		Context:   r.cfg.Reasoner.Context,
	})
	return rz.Analyze(ctx, in)
}
