package models

import "time"

// OrderRequest is what the execution coordinator submits to the venue.
type OrderRequest struct {
	BotID      string
	Symbol     string
	Direction  Direction
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Comment    string
}

// OrderResult is the venue's response to a submission. A non-success
// result carries the venue error code and a human-readable reason.
type OrderResult struct {
	Success     bool
	FilledPrice float64
	ErrorCode   int
	Reason      string
}

// SymbolInfo describes venue contract terms for a symbol.
type SymbolInfo struct {
	Symbol          string
	ContractSize    float64
	Point           float64 // minimum price increment
	MinLot          float64
	MaxLot          float64
	LotStep         float64
	MinStopDistance float64 // minimum SL/TP distance in price units
}

// AccountInfo is a snapshot of venue account state.
type AccountInfo struct {
	Balance    float64
	Equity     float64
	FreeMargin float64
}

// Deal is a historical closed deal returned by the venue.
type Deal struct {
	Symbol string
	Time   time.Time
	Volume float64
	Profit float64
}
