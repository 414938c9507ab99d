package models

import "time"

// BacktestResult aggregates a completed simulated run. A cancelled run
// never produces one; callers distinguish cancellation by error.
type BacktestResult struct {
	Symbol         string
	Bars           int
	Trades         int
	Wins           int
	Losses         int
	WinRate        float64 // percent
	NetProfit      float64
	GrossProfit    float64
	GrossLoss      float64
	ProfitFactor   float64 // +Inf if no losses and profit > 0, 0 if no trades
	Sharpe         float64
	Sortino        float64
	Calmar         float64
	MaxDrawdown    float64 // percent of peak equity
	FinalBalance   float64
	StartedAt      time.Time
	FinishedAt     time.Time

	// Populated only when ML arbitration was supplied.
	MLAgreementRate float64
	MLAvgConfidence float64
	MLPredictions   int

	TradeLog []TradeRecord
}

// BacktestProgress reports replay advancement; Done is monotonically
// increasing for a given run.
type BacktestProgress struct {
	RunID string
	Done  int
	Total int
}
