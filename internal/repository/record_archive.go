package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/repository"
	pkgkafka "TradePilot/pkg/kafka"
)

// KafkaRecordPublisher ships raw market records to the ticks topic,
// keyed by symbol so per-symbol ordering survives partitioning.
type KafkaRecordPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaRecordPublisher(producer *pkgkafka.Producer, topic string) repository.RecordPublisher {
	return &KafkaRecordPublisher{producer: producer, topic: topic}
}

func recordPayload(rec *models.MarketRecord) map[string]interface{} {
	return map[string]interface{}{
		"symbol": rec.Symbol,
		"t":      rec.Timestamp.UnixMilli(),
		"b":      rec.Bid,
		"a":      rec.Ask,
		"p":      rec.Last,
		"v":      rec.Volume,
	}
}

func (p *KafkaRecordPublisher) Publish(ctx context.Context, rec *models.MarketRecord) error {
	return p.producer.Publish(ctx, p.topic, []byte(rec.Symbol), recordPayload(rec))
}

func (p *KafkaRecordPublisher) PublishBatch(ctx context.Context, recs []*models.MarketRecord) error {
	if len(recs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(recs))
	for i, rec := range recs {
		msgs[i] = pkgkafka.Message{Key: []byte(rec.Symbol), Value: recordPayload(rec)}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaRecordPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// ClickHouseRecordStore persists raw records into the ticks table.
type ClickHouseRecordStore struct {
	db    *sql.DB
	table string
}

func NewClickHouseRecordStore(db *sql.DB, table string) repository.RecordStore {
	return &ClickHouseRecordStore{db: db, table: table}
}

// RecordSchema returns the DDL for the raw ticks table.
func RecordSchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts DateTime64(3),
		symbol String,
		bid Float64,
		ask Float64,
		last Float64,
		volume Float64
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMMDD(ts)
	ORDER BY (symbol, ts)
	TTL toDateTime(ts) + INTERVAL 30 DAY`, table)
}

func (s *ClickHouseRecordStore) Store(ctx context.Context, rec *models.MarketRecord) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, bid, ask, last, volume) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q, rec.Timestamp, rec.Symbol, rec.Bid, rec.Ask, rec.Last, rec.Volume)
	if err != nil {
		return fmt.Errorf("record store: %w", err)
	}
	return nil
}

func (s *ClickHouseRecordStore) StoreBatch(ctx context.Context, recs []*models.MarketRecord) error {
	if len(recs) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(recs); start += chunkSize {
		end := start + chunkSize
		if end > len(recs) {
			end = len(recs)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, rec := range recs[start:end] {
			if rec == nil || rec.Symbol == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, rec.Timestamp, rec.Symbol, rec.Bid, rec.Ask, rec.Last, rec.Volume)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, bid, ask, last, volume) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("record store batch: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseRecordStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.MarketRecord, error) {
	q := fmt.Sprintf("SELECT ts, symbol, bid, ask, last, volume FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("record query: %w", err)
	}
	defer rows.Close()

	var out []*models.MarketRecord
	for rows.Next() {
		var rec models.MarketRecord
		if err := rows.Scan(&rec.Timestamp, &rec.Symbol, &rec.Bid, &rec.Ask, &rec.Last, &rec.Volume); err != nil {
			return nil, err
		}
		rec.Spread = rec.Ask - rec.Bid
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *ClickHouseRecordStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
