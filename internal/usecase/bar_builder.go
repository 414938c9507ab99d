package usecase

import (
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	drepo "TradePilot/internal/domain/repository"
)

// BarBuilder aggregates raw records into OHLCV bars for one timeframe.
// A bar is emitted when the first record of the next bucket arrives, so
// only completed bars ever reach the store.
type BarBuilder struct {
	tf drepo.Timeframe

	mu      sync.Mutex
	current map[string]*models.Bar
}

func NewBarBuilder(tf drepo.Timeframe) *BarBuilder {
	return &BarBuilder{tf: tf, current: make(map[string]*models.Bar)}
}

func (b *BarBuilder) Timeframe() drepo.Timeframe { return b.tf }

// Add folds a record into the in-progress bar and returns the completed
// bar for the previous bucket, if this record opened a new one.
func (b *BarBuilder) Add(rec *models.MarketRecord) *models.Bar {
	price := rec.Mid()
	if price <= 0 {
		return nil
	}
	bucket := rec.Timestamp.Truncate(b.tf.Duration())

	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.current[rec.Symbol]
	if cur == nil {
		b.current[rec.Symbol] = newBar(rec.Symbol, bucket, price, rec.Volume)
		return nil
	}
	if bucket.After(cur.Timestamp) {
		done := *cur
		b.current[rec.Symbol] = newBar(rec.Symbol, bucket, price, rec.Volume)
		return &done
	}
	if bucket.Before(cur.Timestamp) {
		// late record from a closed bucket, drop it
		return nil
	}
	cur.Close = price
	if price > cur.High {
		cur.High = price
	}
	if price < cur.Low {
		cur.Low = price
	}
	cur.Volume += rec.Volume
	return nil
}

// Flush returns all in-progress bars and resets the builder. Used on
// shutdown so partial buckets are not lost.
func (b *BarBuilder) Flush() []models.Bar {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Bar, 0, len(b.current))
	for _, bar := range b.current {
		out = append(out, *bar)
	}
	b.current = make(map[string]*models.Bar)
	return out
}

func newBar(symbol string, ts time.Time, price, volume float64) *models.Bar {
	return &models.Bar{
		Symbol:    symbol,
		Timestamp: ts,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    volume,
	}
}
