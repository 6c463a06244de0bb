package models

import "time"

// MaxGraphPoints bounds a price snapshot to the most recent N candles.
const MaxGraphPoints = 14

// PricePoint is a single candle on an asset's chart.
type PricePoint struct {
	Timestamp     string  `json:"timestamp"`
	Price         float64 `json:"price"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Open          float64 `json:"open"`
	PreviousClose float64 `json:"previous_close"`
}

// PriceSnapshot is a bounded, oldest-first candle history for one asset,
// published by the price feed and consumed read-only.
type PriceSnapshot struct {
	Symbol    string       `json:"symbol"`
	Class     AssetClass   `json:"class"`
	Points    []PricePoint `json:"points"`
	FetchedAt time.Time    `json:"fetched_at"`
}
