// Package report assembles the per-run output artifact and renders it to
// disk as JSON and XLSX.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/hidrobio/price-monitor/internal/model"
)

// ProductData carries one product's run results into assembly.
type ProductData struct {
	Product         model.ProductDefinition
	Observations    []model.PriceObservation
	Snapshot        *model.MarketSnapshot
	Trend           *model.Trend
	Recommendations []model.Recommendation
}

// Assemble builds the run report. Products with no observations are kept
// with NoData set, so an empty day per product is visible rather than
// silently missing. Alerts ride in their own top-level field and the report
// consumers render them first.
func Assemble(runID, date string, data []ProductData, alerts []model.Alert, summary, weekly string, degraded bool) *model.RunReport {
	report := &model.RunReport{
		RunID:                runID,
		Date:                 date,
		GeneratedAt:          time.Now().UTC(),
		Alerts:               alerts,
		ExecutiveSummary:     summary,
		WeeklyRecommendation: weekly,
		Degraded:             degraded,
	}

	for _, d := range data {
		pr := model.ProductReport{
			ProductID: d.Product.ID,
			Name:      d.Product.CanonicalName,
		}
		if len(d.Observations) == 0 {
			pr.NoData = true
			report.Products = append(report.Products, pr)
			continue
		}

		report.ObservationCount += len(d.Observations)
		pr.Snapshot = d.Snapshot
		pr.Trend = d.Trend
		pr.Prices = lowestPerSource(d.Observations)
		pr.Recommendations = d.Recommendations
		report.Products = append(report.Products, pr)
	}

	return report
}

// lowestPerSource keeps each source's cheapest listing for the product and
// returns them cheapest first. A source often lists several matching
// products (loose, tray, premium); the cheapest comparable one is the
// market signal.
func lowestPerSource(observations []model.PriceObservation) []model.SourcePrice {
	bySource := make(map[string]model.SourcePrice)
	for _, o := range observations {
		cur, ok := bySource[o.SourceID]
		if !ok || o.Price < cur.Price {
			bySource[o.SourceID] = model.SourcePrice{
				SourceID: o.SourceID,
				RawName:  o.RawName,
				Price:    o.Price,
			}
		}
	}

	prices := make([]model.SourcePrice, 0, len(bySource))
	for _, p := range bySource {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool {
		if prices[i].Price != prices[j].Price {
			return prices[i].Price < prices[j].Price
		}
		return prices[i].SourceID < prices[j].SourceID
	})
	return prices
}

// WriteJSON writes the report artifact to outputDir as
// reporte-precios-<date>.json, creating the directory if needed.
func WriteJSON(report *model.RunReport, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", eris.Wrap(err, "report: create output dir")
	}

	path := filepath.Join(outputDir, "reporte-precios-"+report.Date+".json")
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "report: marshal")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrap(err, "report: write json")
	}
	return path, nil
}
