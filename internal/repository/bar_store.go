package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/repository"
)

// ClickHouseBarStore serves historical bars for backtests and persists
// the bars the archival pipeline aggregates. One table per deployment,
// timeframe is a column.
type ClickHouseBarStore struct {
	db    *sql.DB
	table string
}

func NewClickHouseBarStore(db *sql.DB, table string) *ClickHouseBarStore {
	return &ClickHouseBarStore{db: db, table: table}
}

var (
	_ repository.BarStore  = (*ClickHouseBarStore)(nil)
	_ repository.BarWriter = (*ClickHouseBarStore)(nil)
)

// BarSchema returns the DDL for the bars table.
func BarSchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts DateTime64(3),
		symbol String,
		timeframe LowCardinality(String),
		open Float64,
		high Float64,
		low Float64,
		close Float64,
		volume Float64
	) ENGINE = ReplacingMergeTree()
	PARTITION BY toYYYYMM(ts)
	ORDER BY (symbol, timeframe, ts)`, table)
}

func (s *ClickHouseBarStore) GetBars(ctx context.Context, symbol string, from, to time.Time, tf repository.Timeframe) ([]models.Bar, error) {
	q := fmt.Sprintf("SELECT ts, open, high, low, close, volume FROM %s WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts <= ? ORDER BY ts ASC", s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), from, to)
	if err != nil {
		return nil, fmt.Errorf("bars query: %w", err)
	}
	defer rows.Close()
	return scanBars(rows, symbol)
}

// GetLatestNBars returns the newest n bars in chronological order.
func (s *ClickHouseBarStore) GetLatestNBars(ctx context.Context, symbol string, n int, tf repository.Timeframe) ([]models.Bar, error) {
	q := fmt.Sprintf("SELECT ts, open, high, low, close, volume FROM %s WHERE symbol = ? AND timeframe = ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), n)
	if err != nil {
		return nil, fmt.Errorf("latest bars query: %w", err)
	}
	defer rows.Close()
	bars, err := scanBars(rows, symbol)
	if err != nil {
		return nil, err
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

func (s *ClickHouseBarStore) StoreBars(ctx context.Context, tf repository.Timeframe, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(bars); start += chunkSize {
		end := start + chunkSize
		if end > len(bars) {
			end = len(bars)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, b := range bars[start:end] {
			if b.Symbol == "" || b.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, b.Timestamp, b.Symbol, string(tf),
				b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, timeframe, open, high, low, close, volume) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("bars insert: %w", err)
		}
	}
	return nil
}

func scanBars(rows *sql.Rows, symbol string) ([]models.Bar, error) {
	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Symbol = symbol
		bars = append(bars, b)
	}
	return bars, rows.Err()
}
