package usecase

import (
	"context"
	"encoding/json"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	pkgkafka "TradePilot/pkg/kafka"
)

// TicksArchiver consumes the Kafka ticks topic, persists raw records
// and folds them into bars for the backtest store.
type TicksArchiver struct {
	topic    string
	store    domrepo.RecordStore
	bars     domrepo.BarWriter
	builders []*BarBuilder
	metrics  domrepo.Metrics
}

func NewTicksArchiver(topic string, store domrepo.RecordStore, bars domrepo.BarWriter,
	metrics domrepo.Metrics, tfs ...domrepo.Timeframe) *TicksArchiver {
	if len(tfs) == 0 {
		tfs = []domrepo.Timeframe{domrepo.TF1s, domrepo.TF1m, domrepo.TF5m}
	}
	builders := make([]*BarBuilder, 0, len(tfs))
	for _, tf := range tfs {
		builders = append(builders, NewBarBuilder(tf))
	}
	return &TicksArchiver{topic: topic, store: store, bars: bars, builders: builders, metrics: metrics}
}

func (h *TicksArchiver) Topic() string { return h.topic }

// incoming message schema: {symbol, t, b, a, p, v}, t in ms
func (h *TicksArchiver) Handle(ctx context.Context, raw []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		B      float64 `json:"b"`
		A      float64 `json:"a"`
		P      float64 `json:"p"`
		V      float64 `json:"v"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.Symbol == "" {
		h.metrics.RecordError("consumer_empty_symbol")
		return nil
	}
	rec := models.NewMarketRecord(m.Symbol, time.UnixMilli(m.T), m.B, m.A, m.P, m.V)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(rec.Timestamp).Seconds())

	start := time.Now()
	if err := h.store.Store(ctx, &rec); err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())

	for _, b := range h.builders {
		if done := b.Add(&rec); done != nil {
			if err := h.bars.StoreBars(ctx, b.Timeframe(), []models.Bar{*done}); err != nil {
				h.metrics.RecordError("bar_store")
				return err
			}
		}
	}
	return nil
}

// FlushBars persists partial buckets, called on shutdown.
func (h *TicksArchiver) FlushBars(ctx context.Context) error {
	for _, b := range h.builders {
		bars := b.Flush()
		if len(bars) == 0 {
			continue
		}
		if err := h.bars.StoreBars(ctx, b.Timeframe(), bars); err != nil {
			return err
		}
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*TicksArchiver)(nil)
