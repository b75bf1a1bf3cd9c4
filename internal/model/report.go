package model

import "time"

// SourcePrice is one source's observed price for a product, used in report
// listings.
type SourcePrice struct {
	SourceID string `json:"source_id"`
	RawName  string `json:"raw_name"`
	Price    int64  `json:"price"`
}

// ProductReport holds everything the report shows for one product. A product
// with no same-day observations appears with NoData set and nothing else, so
// "no data" stays distinguishable from "no recommendations".
type ProductReport struct {
	ProductID       string           `json:"product_id"`
	Name            string           `json:"name"`
	NoData          bool             `json:"no_data,omitempty"`
	Snapshot        *MarketSnapshot  `json:"snapshot,omitempty"`
	Prices          []SourcePrice    `json:"prices,omitempty"` // ascending by price
	Trend           *Trend           `json:"trend,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
}

// RunReport is the complete output artifact of one pipeline run.
type RunReport struct {
	RunID                string          `json:"run_id"`
	Date                 string          `json:"date"`
	GeneratedAt          time.Time       `json:"generated_at"`
	Alerts               []Alert         `json:"alerts,omitempty"`
	Products             []ProductReport `json:"products"`
	ExecutiveSummary     string          `json:"executive_summary,omitempty"`
	WeeklyRecommendation string          `json:"weekly_recommendation,omitempty"`
	Degraded             bool            `json:"degraded,omitempty"` // reasoner fell back to computed-only
	ObservationCount     int             `json:"observation_count"`
}

// HasRecommendations reports whether any product produced at least one
// recommendation this run.
func (r *RunReport) HasRecommendations() bool {
	for _, p := range r.Products {
		if len(p.Recommendations) > 0 {
			return true
		}
	}
	return false
}
