package usecase

import (
	"context"
	"fmt"
	"time"

	"TradePilot/internal/domain/models"
	drepo "TradePilot/internal/domain/repository"
)

// RecordProcessor routes market records to the configured archival
// backend: the Kafka ticks topic, ClickHouse directly, or both.
type RecordProcessor struct {
	pub     drepo.RecordPublisher
	store   drepo.RecordStore
	metrics drepo.Metrics
	backend string
}

// NewRecordProcessor creates a processor for the given backend
// ("kafka", "clickhouse" or "both").
func NewRecordProcessor(pub drepo.RecordPublisher, store drepo.RecordStore,
	metrics drepo.Metrics, backend string) *RecordProcessor {
	return &RecordProcessor{pub: pub, store: store, metrics: metrics, backend: backend}
}

// Process archives a single record.
func (p *RecordProcessor) Process(ctx context.Context, rec *models.MarketRecord) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}
	start := time.Now()
	var err error
	switch p.backend {
	case "kafka":
		err = p.pub.Publish(ctx, rec)
	case "clickhouse":
		err = p.store.Store(ctx, rec)
	case "both":
		if err = p.pub.Publish(ctx, rec); err == nil {
			err = p.store.Store(ctx, rec)
		}
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.metrics.RecordError("archive")
		return fmt.Errorf("archive record: %w", err)
	}
	p.metrics.RecordLatency("archive", time.Since(start).Seconds())
	return nil
}

// ProcessBatch archives records in one round trip per backend.
func (p *RecordProcessor) ProcessBatch(ctx context.Context, recs []*models.MarketRecord) error {
	if len(recs) == 0 {
		return nil
	}
	start := time.Now()
	var err error
	switch p.backend {
	case "kafka":
		err = p.pub.PublishBatch(ctx, recs)
	case "clickhouse":
		err = p.store.StoreBatch(ctx, recs)
	case "both":
		if err = p.pub.PublishBatch(ctx, recs); err == nil {
			err = p.store.StoreBatch(ctx, recs)
		}
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}
	if err != nil {
		p.metrics.RecordError("archive_batch")
		return fmt.Errorf("archive batch: %w", err)
	}
	p.metrics.RecordLatency("archive_batch", time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (p *RecordProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
}
