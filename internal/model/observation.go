package model

import "time"

// DateLayout is the canonical day key used across the store and reports.
const DateLayout = "2006-01-02"

// DateKey formats a timestamp as the canonical day key.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// RawPriceRecord is a single listing as scraped from a source, before
// normalization or product matching.
type RawPriceRecord struct {
	RawName string `json:"raw_name"`
	Price   int64  `json:"price"` // Guaraníes
	Unit    string `json:"unit"`
	URL     string `json:"url,omitempty"`
}

// PriceObservation is an immutable observed price fact. At most one
// observation exists per (date, source, product, raw name) key; re-ingestion
// overwrites in place.
type PriceObservation struct {
	Date      string `json:"date"`
	SourceID  string `json:"source_id"`
	ProductID string `json:"product_id"`
	RawName   string `json:"raw_name"`
	Price     int64  `json:"price"` // Guaraníes, per base unit
	Unit      string `json:"unit"`
}
