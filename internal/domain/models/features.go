package models

import "time"

// NeutralRSI is the value RSI degrades to when it cannot be computed.
const NeutralRSI = 50.0

// FeatureSet holds metrics derived from a window of MarketRecords.
// It is recomputed every decision cycle and never mutated after creation.
// Valid is false when the window held fewer records than the analyzer
// requires; downstream components must not act on an invalid set.
type FeatureSet struct {
	Symbol    string
	Timestamp time.Time
	Records   int
	Valid     bool

	SpreadMean   float64
	SpreadStdDev float64
	Velocity     float64 // (last - first) / count, price units per record

	OrderFlowDelta  float64 // net signed volume from aggressor inference
	CumulativeDelta float64
	Imbalance       float64 // delta normalized by total volume, [-1, 1]

	Volatility float64 // stddev of consecutive price diffs
	EMAFast    float64
	EMASlow    float64
	RSI        float64 // [0, 100], NeutralRSI when unavailable
	ATR        float64
	Momentum   float64 // last close minus close N periods back

	LastPrice float64
	MidPrice  float64
}
