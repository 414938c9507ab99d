package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	proposals   *prometheus.CounterVec
	riskBlocks  *prometheus.CounterVec
	orders      *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	equity      *prometheus.GaugeVec
	drawdown    *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		proposals: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_proposals_total",
				Help: "Total number of signal proposals emitted",
			},
			[]string{"symbol", "direction"},
		),
		riskBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_risk_blocks_total",
				Help: "Total number of proposals rejected by the risk gate",
			},
			[]string{"reason"},
		),
		orders: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_orders_total",
				Help: "Total number of order submissions by result",
			},
			[]string{"result"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepilot_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradepilot_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		equity: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradepilot_account_equity",
				Help: "Last observed account equity",
			},
			[]string{"bot_id"},
		),
		drawdown: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradepilot_drawdown_percent",
				Help: "Current drawdown from the session equity peak",
			},
			[]string{"bot_id"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradepilot_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordProposal records an emitted signal proposal.
func (r *Recorder) RecordProposal(symbol, direction string) {
	r.proposals.WithLabelValues(symbol, direction).Inc()
}

// RecordRiskBlock records a proposal rejected by the risk gate.
func (r *Recorder) RecordRiskBlock(reason string) {
	r.riskBlocks.WithLabelValues(reason).Inc()
}

// RecordOrder records the result of an order submission.
func (r *Recorder) RecordOrder(result string) {
	r.orders.WithLabelValues(result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordEquity records the current account equity.
func (r *Recorder) RecordEquity(botID string, equity float64) {
	r.equity.WithLabelValues(botID).Set(equity)
}

// RecordDrawdown records the current drawdown percentage.
func (r *Recorder) RecordDrawdown(botID string, pct float64) {
	r.drawdown.WithLabelValues(botID).Set(pct)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
