package model

import "time"

// AlertKind identifies the anomaly class an Alert records.
type AlertKind string

const (
	AlertFloorViolation        AlertKind = "floor-violation"
	AlertMonotonicityViolation AlertKind = "monotonicity-violation"
	AlertPriceMove             AlertKind = "price-move"
	AlertReasonerDegraded      AlertKind = "reasoner-degraded"
	AlertReasonerNote          AlertKind = "reasoner-note"
)

// Alert severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityHigh    = "high"
)

// Alert is an append-only record of an invariant violation or anomaly
// detected during a run. Alerts never abort a run; they are persisted and
// surfaced at the top of the report.
type Alert struct {
	ID        string    `json:"id"`
	Date      string    `json:"date"`
	Kind      AlertKind `json:"kind"`
	ProductID string    `json:"product_id,omitempty"`
	SourceID  string    `json:"source_id,omitempty"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}
