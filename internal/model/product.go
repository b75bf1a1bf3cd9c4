package model

// ProductDefinition is static reference data for one monitored product.
// Loaded once at startup from the catalog; immutable during a run.
type ProductDefinition struct {
	ID              string   `json:"id" yaml:"id"`
	CanonicalName   string   `json:"canonical_name" yaml:"canonical_name"`
	Aliases         []string `json:"aliases" yaml:"aliases"`
	SearchTerms     []string `json:"search_terms" yaml:"search_terms"`
	Unit            string   `json:"unit" yaml:"unit"`
	ProductionCost  int64    `json:"production_cost" yaml:"production_cost"`
	AbsoluteFloor   int64    `json:"absolute_floor" yaml:"absolute_floor"`
	MedianReference int64    `json:"median_reference" yaml:"median_reference"`
}

// SegmentPolicy is one customer-tier pricing band expressed as fractions of
// the market median. Segments are ordered by Rank: a higher rank means a
// higher fraction of the median.
type SegmentPolicy struct {
	ID        string  `json:"id" yaml:"id"`
	Name      string  `json:"name" yaml:"name"`
	Rank      int     `json:"rank" yaml:"rank"`
	MinPct    float64 `json:"min_pct" yaml:"min_pct"`
	TargetPct float64 `json:"target_pct" yaml:"target_pct"`
	MaxPct    float64 `json:"max_pct" yaml:"max_pct"`
	MinMargin float64 `json:"min_margin" yaml:"min_margin"`
}
