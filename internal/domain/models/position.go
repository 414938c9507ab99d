package models

import "time"

// PositionState is the lifecycle stage of a bot's position on a symbol.
// Transitions are FLAT -> OPEN -> FLAT, with a transient CLOSING while a
// close order is in flight. OPEN -> OPEN never happens.
type PositionState string

const (
	PositionFlat    PositionState = "FLAT"
	PositionOpen    PositionState = "OPEN"
	PositionClosing PositionState = "CLOSING"
)

// Position is an open holding owned by one bot identity. At most one
// open Position exists per (bot, symbol) pair.
type Position struct {
	BotID      string
	Symbol     string
	Direction  Direction
	Volume     float64
	EntryPrice float64
	OpenTime   time.Time
}

// FloatingPnL returns unrealized profit at the given price, in account
// currency, using the symbol's contract size.
func (p Position) FloatingPnL(price, contractSize float64) float64 {
	switch p.Direction {
	case DirectionBuy:
		return (price - p.EntryPrice) * p.Volume * contractSize
	case DirectionSell:
		return (p.EntryPrice - price) * p.Volume * contractSize
	default:
		return 0
	}
}

// TradeRecord is an append-only closed-trade entry produced by the
// execution coordinator or the backtester on close.
type TradeRecord struct {
	BotID      string
	Symbol     string
	Direction  Direction
	Volume     float64
	EntryPrice float64
	ExitPrice  float64
	Profit     float64
	OpenTime   time.Time
	CloseTime  time.Time
	Reason     string
}

// Duration returns how long the trade was held.
func (t TradeRecord) Duration() time.Duration {
	return t.CloseTime.Sub(t.OpenTime)
}
