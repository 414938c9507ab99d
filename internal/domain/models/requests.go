package models

// Requests for the control-plane HTTP endpoints. Defined in domain for
// consistency and reuse.

type BacktestRequest struct {
	Symbol         string  `query:"symbol" json:"symbol" validate:"required"`
	From           string  `query:"from" json:"from" validate:"required"`
	To             string  `query:"to" json:"to" validate:"required"`
	TF             string  `query:"tf" json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	InitialBalance float64 `query:"balance" json:"balance" default:"10000" validate:"gt=0"`
	Slippage       float64 `query:"slippage" json:"slippage" default:"0" validate:"gte=0"`
	Commission     float64 `query:"commission" json:"commission" default:"0" validate:"gte=0"`
}

type BacktestStatusRequest struct {
	ID string `param:"id" json:"id" validate:"required"`
}

type RiskMetricsRequest struct {
	Bot string `query:"bot" json:"bot" default:"default"`
}

type PositionsRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
}

type BarsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	From   string `query:"from" json:"from" validate:"required"`
	To     string `query:"to" json:"to" validate:"required"`
	TF     string `query:"tf" json:"tf" default:"1m" validate:"oneof=1s 1m 5m"`
	Limit  int    `query:"limit" json:"limit" default:"10000" validate:"gte=0,lte=50000"`
}
