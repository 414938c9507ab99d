package repository

import (
	"context"
	"time"

	"TradePilot/internal/domain/models"
)

// MarketStream delivers live MarketRecords from a feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.MarketRecord, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Venue is the trading venue adapter. Every call is fallible and
// potentially latent; callers bound it with a context deadline and
// treat nil or empty results as missing data, never as a crash.
type Venue interface {
	GetTick(ctx context.Context, symbol string) (*models.MarketRecord, error)
	GetSymbolInfo(ctx context.Context, symbol string) (*models.SymbolInfo, error)
	SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error)
	CloseOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error)
	GetOpenPositions(ctx context.Context, symbol string) ([]models.Position, error)
	GetAccountInfo(ctx context.Context) (*models.AccountInfo, error)
	GetHistoryDeals(ctx context.Context, from, to time.Time) ([]models.Deal, error)
}

// TradeLedger appends closed trades and serves best-effort readback of
// aggregated daily volume after a restart.
type TradeLedger interface {
	Append(ctx context.Context, rec models.TradeRecord) error
	AppendBatch(ctx context.Context, recs []models.TradeRecord) error
	DailyVolume(ctx context.Context, botID string, day time.Time) (float64, error)
	Health(ctx context.Context) error
	Close() error
}

// Notifier delivers fire-and-forget trade events. Delivery failure must
// never block trading.
type Notifier interface {
	PositionOpened(pos models.Position, account models.AccountInfo)
	PositionClosed(rec models.TradeRecord, account models.AccountInfo)
	AllCleared(botID string, reason string)
}

// Metrics records operational telemetry.
type Metrics interface {
	RecordProposal(symbol string, direction string)
	RecordRiskBlock(reason string)
	RecordOrder(result string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordEquity(botID string, equity float64)
	RecordDrawdown(botID string, pct float64)
	RecordLatency(op string, seconds float64)
}
