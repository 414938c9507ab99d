package models

import "time"

// MarketRecord is a single top-of-book update. Immutable once created.
type MarketRecord struct {
	Symbol    string
	Timestamp time.Time
	Bid       float64
	Ask       float64
	Last      float64
	Volume    float64
	Spread    float64
}

// NewMarketRecord builds a record and derives the spread from bid/ask.
func NewMarketRecord(symbol string, ts time.Time, bid, ask, last, volume float64) MarketRecord {
	return MarketRecord{
		Symbol:    symbol,
		Timestamp: ts,
		Bid:       bid,
		Ask:       ask,
		Last:      last,
		Volume:    volume,
		Spread:    ask - bid,
	}
}

// Mid returns the mid-price derived from bid/ask, falling back to last
// when the book side is missing.
func (r MarketRecord) Mid() float64 {
	if r.Bid > 0 && r.Ask > 0 {
		return (r.Bid + r.Ask) / 2
	}
	return r.Last
}

// Bar represents an aggregated OHLCV record used for backtesting.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}
