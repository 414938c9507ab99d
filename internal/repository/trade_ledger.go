package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/repository"
)

// ClickHouseLedger implements TradeLedger on ClickHouse. Appends are
// plain inserts into an append-only table; DailyVolume serves the risk
// gate's restart reseed.
type ClickHouseLedger struct {
	db    *sql.DB
	table string
}

// NewClickHouseLedger creates the ledger over an existing connection.
func NewClickHouseLedger(db *sql.DB, table string) repository.TradeLedger {
	return &ClickHouseLedger{db: db, table: table}
}

// LedgerSchema returns the DDL for the trades table, applied by the
// clickhouse client at startup.
func LedgerSchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		open_time DateTime64(3),
		close_time DateTime64(3),
		bot_id String,
		symbol String,
		direction LowCardinality(String),
		volume Float64,
		entry_price Float64,
		exit_price Float64,
		profit Float64,
		reason LowCardinality(String)
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(close_time)
	ORDER BY (bot_id, close_time)`, table)
}

func (l *ClickHouseLedger) Append(ctx context.Context, rec models.TradeRecord) error {
	q := fmt.Sprintf("INSERT INTO %s (open_time, close_time, bot_id, symbol, direction, volume, entry_price, exit_price, profit, reason) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", l.table)
	_, err := l.db.ExecContext(ctx, q,
		rec.OpenTime, rec.CloseTime, rec.BotID, rec.Symbol, string(rec.Direction),
		rec.Volume, rec.EntryPrice, rec.ExitPrice, rec.Profit, rec.Reason)
	if err != nil {
		return fmt.Errorf("ledger append: %w", err)
	}
	return nil
}

func (l *ClickHouseLedger) AppendBatch(ctx context.Context, recs []models.TradeRecord) error {
	if len(recs) == 0 {
		return nil
	}
	const chunkSize = 1000
	for start := 0; start < len(recs); start += chunkSize {
		end := start + chunkSize
		if end > len(recs) {
			end = len(recs)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*10)
		for _, rec := range recs[start:end] {
			if rec.Symbol == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				rec.OpenTime, rec.CloseTime, rec.BotID, rec.Symbol, string(rec.Direction),
				rec.Volume, rec.EntryPrice, rec.ExitPrice, rec.Profit, rec.Reason)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (open_time, close_time, bot_id, symbol, direction, volume, entry_price, exit_price, profit, reason) VALUES %s",
			l.table, strings.Join(values, ","))
		if _, err := l.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("ledger append batch: %w", err)
		}
	}
	return nil
}

// DailyVolume sums the lots a bot already traded on the given local
// day. Missing data reads as zero; the caller treats the value as a
// floor, never a replacement, for the live counter.
func (l *ClickHouseLedger) DailyVolume(ctx context.Context, botID string, day time.Time) (float64, error) {
	q := fmt.Sprintf("SELECT sum(volume) FROM %s WHERE bot_id = ? AND toDate(close_time) = toDate(?)", l.table)
	var total sql.NullFloat64
	if err := l.db.QueryRowContext(ctx, q, botID, day).Scan(&total); err != nil {
		return 0, fmt.Errorf("ledger daily volume: %w", err)
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Float64, nil
}

func (l *ClickHouseLedger) Health(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

func (l *ClickHouseLedger) Close() error {
	return nil // connection owned by pkg/clickhouse
}
