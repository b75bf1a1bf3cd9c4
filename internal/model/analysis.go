package model

// MarketSnapshot summarizes same-day observations for one product across
// sources. Derived per run, never mutated.
type MarketSnapshot struct {
	ProductID        string   `json:"product_id"`
	Date             string   `json:"date"`
	Median           int64    `json:"median"`
	Min              int64    `json:"min"`
	Max              int64    `json:"max"`
	ObservationCount int      `json:"observation_count"`
	WeekChangePct    *float64 `json:"week_change_pct,omitempty"` // nil = no historical median
}

// Recommendation is a per-segment price derived from a MarketSnapshot and a
// SegmentPolicy, clamped to the product's absolute floor.
type Recommendation struct {
	ProductID string  `json:"product_id"`
	SegmentID string  `json:"segment_id"`
	Price     int64   `json:"price"` // Guaraníes
	MarginPct float64 `json:"margin_pct"`
	Floored   bool    `json:"floored,omitempty"`
	Rationale string  `json:"rationale,omitempty"` // set only by the reasoner
}

// TrendDirection classifies a windowed price movement.
type TrendDirection string

const (
	TrendUp           TrendDirection = "up"
	TrendDown         TrendDirection = "down"
	TrendStable       TrendDirection = "stable"
	TrendInsufficient TrendDirection = "insufficient_data"
)

// Trend describes price movement over a lookback window.
type Trend struct {
	Direction  TrendDirection `json:"direction"`
	ChangePct  float64        `json:"change_pct"`
	FirstPrice int64          `json:"first_price,omitempty"`
	LastPrice  int64          `json:"last_price,omitempty"`
}

// DailyPrice is one day's aggregated price, used for trend computation.
type DailyPrice struct {
	Date  string `json:"date"`
	Price int64  `json:"price"`
}
