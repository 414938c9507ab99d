package models

import "time"

// TradingState is the gate's circuit-breaker state machine.
type TradingState string

const (
	TradingEnabled     TradingState = "TRADING_ENABLED"
	CircuitBroken      TradingState = "CIRCUIT_BROKEN"
	TargetProfitPaused TradingState = "TARGET_PROFIT_PAUSED"
)

// RiskLevel classifies current account risk.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskState tracks one bot identity's daily counters and breaker flags.
// In-memory only; reset at local calendar-date rollover with the peak
// reseeded from the current account balance, not zero.
type RiskState struct {
	BotID string
	Date  time.Time // start of the local trading day the counters belong to

	DailyPnL    float64
	DailyTrades int
	DailyVolume float64

	PeakBalance      float64
	Drawdown         float64 // percent, never negative
	MaxDrawdownToday float64 // running max, non-decreasing within a day

	CircuitBroken bool
	CircuitReason string

	TargetPaused bool
	PausedDate   time.Time // day the target-profit pause was entered
}

// State derives the gate state from the breaker flags.
func (s RiskState) State() TradingState {
	switch {
	case s.CircuitBroken:
		return CircuitBroken
	case s.TargetPaused:
		return TargetProfitPaused
	default:
		return TradingEnabled
	}
}

// RiskMetrics is a copy-on-read snapshot exported to telemetry readers.
type RiskMetrics struct {
	BotID            string
	Timestamp        time.Time
	Balance          float64
	Equity           float64
	DailyPnL         float64
	DailyTrades      int
	DailyVolume      float64
	PeakBalance      float64
	Drawdown         float64
	MaxDrawdownToday float64
	OpenPositions    int
	State            TradingState
	Level            RiskLevel
	BreakerReason    string
}
