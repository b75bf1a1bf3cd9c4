// Package banding derives segmented price recommendations from same-day
// market observations. All functions are pure and never fail: invalid input
// degrades to "no recommendation" and anomalies come back as alerts, so one
// bad product cannot abort the rest of the batch.
package banding

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hidrobio/price-monitor/internal/model"
)

// Median computes the statistical median of a price set. For an even count
// the two middle values are averaged. Returns 0 for an empty set.
func Median(prices []int64) int64 {
	n := len(prices)
	if n == 0 {
		return 0
	}
	sorted := make([]int64, n)
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// ComputeSnapshot summarizes same-day prices for one product. Returns nil for
// an empty price set: absence of data is not an anomaly, the product is
// simply skipped for this run.
func ComputeSnapshot(productID, date string, prices []int64) *model.MarketSnapshot {
	if len(prices) == 0 {
		return nil
	}

	min, max := prices[0], prices[0]
	for _, p := range prices[1:] {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}

	return &model.MarketSnapshot{
		ProductID:        productID,
		Date:             date,
		Median:           Median(prices),
		Min:              min,
		Max:              max,
		ObservationCount: len(prices),
	}
}

// BandPrices derives one recommendation per segment from a market snapshot.
//
// Each segment's raw price is round(median × targetPct), clamped to the
// larger of the product's absolute floor and its minimum-margin price. A
// clamp emits a floor-violation alert. Because clamping can invert the
// ordering between segments with different margin floors, a corrective pass
// then walks segments from lowest to highest rank and raises any price that
// fell below a lower-ranked segment's, with a monotonicity alert when it
// fires. Post conditions: every price ≥ the absolute floor, and prices are
// non-decreasing in segment rank.
//
// Segments may arrive in any order; recommendations come back sorted by
// descending rank (premium first).
func BandPrices(snap *model.MarketSnapshot, product model.ProductDefinition, segments []model.SegmentPolicy) ([]model.Recommendation, []model.Alert) {
	if snap == nil || snap.Median <= 0 || len(segments) == 0 {
		return nil, nil
	}

	ordered := make([]model.SegmentPolicy, len(segments))
	copy(ordered, segments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	var alerts []model.Alert
	recs := make([]model.Recommendation, len(ordered))

	for i, seg := range ordered {
		raw := int64(math.Round(float64(snap.Median) * seg.TargetPct))
		floor := Floor(product, seg)

		price := raw
		floored := false
		if price < floor {
			price = floor
			floored = true
			alerts = append(alerts, NewAlert(snap.Date, model.AlertFloorViolation, product.ID, "",
				fmt.Sprintf("segment %s: computed price %d below floor %d, clamped", seg.ID, raw, floor),
				model.SeverityWarning))
		}

		recs[i] = model.Recommendation{
			ProductID: product.ID,
			SegmentID: seg.ID,
			Price:     price,
			Floored:   floored,
		}
	}

	// Premium segments first in the output.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}

	// Corrective pass: rank ordering must survive clamping.
	alerts = append(alerts, EnforceRankOrder(snap.Date, product, recs)...)

	for i := range recs {
		recs[i].MarginPct = marginPct(recs[i].Price, product.ProductionCost)
	}

	return recs, alerts
}

// EnforceRankOrder re-applies the rank invariant to a recommendation set
// ordered premium-first: any price below a lower-ranked segment's is raised
// to it, with a monotonicity alert. Runs after clamping in BandPrices and
// again after advisory prices are merged over the computed set.
func EnforceRankOrder(date string, product model.ProductDefinition, recs []model.Recommendation) []model.Alert {
	var alerts []model.Alert
	highWater := int64(0)
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Price < highWater {
			alerts = append(alerts, NewAlert(date, model.AlertMonotonicityViolation, product.ID, "",
				fmt.Sprintf("segment %s: price %d below lower-ranked segment price %d, raised",
					recs[i].SegmentID, recs[i].Price, highWater),
				model.SeverityHigh))
			recs[i].Price = highWater
			recs[i].Floored = true
			recs[i].MarginPct = marginPct(recs[i].Price, product.ProductionCost)
		}
		if recs[i].Price > highWater {
			highWater = recs[i].Price
		}
	}
	return alerts
}

// Floor returns the effective minimum price for a product in a segment: the
// larger of the product's absolute floor and its minimum-margin price.
func Floor(product model.ProductDefinition, seg model.SegmentPolicy) int64 {
	floor := product.AbsoluteFloor
	if marginFloor := int64(math.Ceil(float64(product.ProductionCost) * (1 + seg.MinMargin))); marginFloor > floor {
		floor = marginFloor
	}
	return floor
}

func marginPct(price, cost int64) float64 {
	if cost <= 0 {
		return 0
	}
	return float64(price-cost) / float64(cost)
}

// WeekOverWeek computes the relative change between today's median and the
// median seven days ago. Returns nil when either input is missing: "no data"
// must stay distinguishable from "no change".
func WeekOverWeek(today, weekAgo *int64) *float64 {
	if today == nil || weekAgo == nil || *weekAgo == 0 {
		return nil
	}
	change := float64(*today-*weekAgo) / float64(*weekAgo)
	return &change
}

// stableBandPct is the half-width of the band treated as "no movement".
const stableBandPct = 2.0

// Trend classifies price movement across a window of daily prices, oldest
// first. Fewer than two points is insufficient data.
func Trend(daily []model.DailyPrice) model.Trend {
	if len(daily) < 2 {
		return model.Trend{Direction: model.TrendInsufficient}
	}

	first := daily[0].Price
	last := daily[len(daily)-1].Price
	if first == 0 {
		return model.Trend{Direction: model.TrendInsufficient}
	}

	changePct := float64(last-first) / float64(first) * 100

	dir := model.TrendStable
	switch {
	case changePct > stableBandPct:
		dir = model.TrendUp
	case changePct < -stableBandPct:
		dir = model.TrendDown
	}

	return model.Trend{
		Direction:  dir,
		ChangePct:  math.Round(changePct*10) / 10,
		FirstPrice: first,
		LastPrice:  last,
	}
}

// DetectPriceMove reports whether a source's price moved at least
// thresholdPct percent against its previous observation. Returns the signed
// percent change.
func DetectPriceMove(previous, current int64, thresholdPct float64) (float64, bool) {
	if previous <= 0 || current <= 0 {
		return 0, false
	}
	changePct := float64(current-previous) / float64(previous) * 100
	return changePct, math.Abs(changePct) >= thresholdPct
}

// NewAlert builds a domain alert; shared by the banding engine, the
// reasoner and the pipeline.
func NewAlert(date string, kind model.AlertKind, productID, sourceID, msg, severity string) model.Alert {
	return model.Alert{
		ID:        uuid.New().String(),
		Date:      date,
		Kind:      kind,
		ProductID: productID,
		SourceID:  sourceID,
		Message:   msg,
		Severity:  severity,
		CreatedAt: time.Now().UTC(),
	}
}
