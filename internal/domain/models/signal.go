package models

import "time"

// Direction is the side of a proposal or position.
type Direction string

const (
	DirectionNone  Direction = ""
	DirectionBuy   Direction = "BUY"
	DirectionSell  Direction = "SELL"
	DirectionClose Direction = "CLOSE"
)

// Opposite returns the reverse trading side. CLOSE has no opposite.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionBuy:
		return DirectionSell
	case DirectionSell:
		return DirectionBuy
	default:
		return DirectionNone
	}
}

// SignalProposal is a directional trade proposal produced by the
// synthesizer. It is produced once, consumed once, then discarded.
type SignalProposal struct {
	Symbol     string
	Direction  Direction
	Strength   float64 // [0, 1]
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Volume     float64 // set only for CLOSE (full open volume)
	Reasons    []string
	Timestamp  time.Time
}

// Prediction is the output of the external ML arbitration capability.
type Prediction struct {
	Direction  Direction
	Confidence float64 // [0, 1]
}
