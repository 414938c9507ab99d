package repository

import (
	"context"
	"time"

	"TradePilot/internal/domain/models"
)

// Timeframe represents bar resolution buckets.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// Duration returns the bar period for the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1s:
		return time.Second
	case TF5m:
		return 5 * time.Minute
	default:
		return time.Minute
	}
}

// NormalizeTimeframe converts a raw string to a valid timeframe (or the
// 1m default).
func NormalizeTimeframe(s string) Timeframe {
	switch Timeframe(s) {
	case TF1s, TF1m, TF5m:
		return Timeframe(s)
	default:
		return TF1m
	}
}

// BarStore provides read-only access to historical bars for backtesting.
type BarStore interface {
	GetBars(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Bar, error)
	GetLatestNBars(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Bar, error)
}

// BarWriter persists aggregated bars produced by the archival pipeline.
type BarWriter interface {
	StoreBars(ctx context.Context, tf Timeframe, bars []models.Bar) error
}

// RecordPublisher ships raw market records to the archival bus.
type RecordPublisher interface {
	Publish(ctx context.Context, rec *models.MarketRecord) error
	PublishBatch(ctx context.Context, recs []*models.MarketRecord) error
	Close() error
}

// RecordStore persists raw market records.
type RecordStore interface {
	Store(ctx context.Context, rec *models.MarketRecord) error
	StoreBatch(ctx context.Context, recs []*models.MarketRecord) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.MarketRecord, error)
	Health(ctx context.Context) error
}
