package exec

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/risk"
)

type stubVenue struct {
	mu        sync.Mutex
	tick      *models.MarketRecord
	info      models.SymbolInfo
	account   models.AccountInfo
	positions []models.Position

	submitResult *models.OrderResult
	submits      int
	closes       int
}

func (v *stubVenue) GetTick(_ context.Context, _ string) (*models.MarketRecord, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tick, nil
}

func (v *stubVenue) GetSymbolInfo(_ context.Context, _ string) (*models.SymbolInfo, error) {
	info := v.info
	return &info, nil
}

func (v *stubVenue) SubmitOrder(_ context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.submits++
	if v.submitResult != nil {
		return v.submitResult, nil
	}
	return &models.OrderResult{Success: true, FilledPrice: req.Price}, nil
}

func (v *stubVenue) CloseOrder(_ context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closes++
	price := v.tick.Bid
	if req.Direction == models.DirectionBuy { // closing a short
		price = v.tick.Ask
	}
	return &models.OrderResult{Success: true, FilledPrice: price}, nil
}

func (v *stubVenue) GetOpenPositions(_ context.Context, _ string) ([]models.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.positions, nil
}

func (v *stubVenue) GetAccountInfo(_ context.Context) (*models.AccountInfo, error) {
	acct := v.account
	return &acct, nil
}

func (v *stubVenue) GetHistoryDeals(_ context.Context, _, _ time.Time) ([]models.Deal, error) {
	return nil, nil
}

type stubLedger struct {
	mu      sync.Mutex
	records []models.TradeRecord
}

func (l *stubLedger) Append(_ context.Context, rec models.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *stubLedger) AppendBatch(_ context.Context, recs []models.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, recs...)
	return nil
}

func (l *stubLedger) DailyVolume(_ context.Context, _ string, _ time.Time) (float64, error) {
	return 0, nil
}

func (l *stubLedger) Health(_ context.Context) error { return nil }
func (l *stubLedger) Close() error                   { return nil }

func (l *stubLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func newVenue() *stubVenue {
	return &stubVenue{
		tick: &models.MarketRecord{Symbol: "EURUSD", Bid: 1.0999, Ask: 1.1001, Last: 1.1},
		info: models.SymbolInfo{Symbol: "EURUSD", ContractSize: 100000, Point: 0.0001,
			MinLot: 0.01, MaxLot: 10, LotStep: 0.01, MinStopDistance: 0.0005},
		account: models.AccountInfo{Balance: 1000, Equity: 1000, FreeMargin: 1000},
	}
}

func newCoordinator(v *stubVenue, l *stubLedger, cfg Config, opts ...Option) *Coordinator {
	if cfg.BotID == "" {
		cfg.BotID = "b1"
	}
	if cfg.Symbol == "" {
		cfg.Symbol = "EURUSD"
	}
	gate := risk.NewGate(risk.DefaultLimits(), time.UTC)
	return New(cfg, v, gate, l, nil, nil, nil, opts...)
}

func buyProposal() *models.SignalProposal {
	return &models.SignalProposal{Symbol: "EURUSD", Direction: models.DirectionBuy,
		Strength: 0.8, Entry: 1.1000, StopLoss: 1.0950, TakeProfit: 1.1100}
}

func TestOpenThenCloseYieldsOneTradeRecord(t *testing.T) {
	v := newVenue()
	l := &stubLedger{}
	c := newCoordinator(v, l, Config{})

	if reason, err := c.HandleProposal(context.Background(), buyProposal()); err != nil || reason != "" {
		t.Fatalf("open failed: reason=%q err=%v", reason, err)
	}
	if c.State() != models.PositionOpen {
		t.Fatalf("expected OPEN, got %s", c.State())
	}

	closeP := &models.SignalProposal{Symbol: "EURUSD", Direction: models.DirectionClose, Volume: 0.02}
	if reason, err := c.HandleProposal(context.Background(), closeP); err != nil || reason != "" {
		t.Fatalf("close failed: reason=%q err=%v", reason, err)
	}
	if c.State() != models.PositionFlat {
		t.Fatalf("expected FLAT after close, got %s", c.State())
	}
	if l.count() != 1 {
		t.Fatalf("a closed position must yield exactly one TradeRecord, got %d", l.count())
	}
	if c.Position() != nil {
		t.Fatalf("expected no position after close")
	}
}

func TestVenueMinimumStopDistanceRejected(t *testing.T) {
	v := newVenue()
	v.info.MinStopDistance = 0.0010 // 10 pips
	l := &stubLedger{}
	c := newCoordinator(v, l, Config{})

	p := buyProposal()
	p.StopLoss = 1.0995 // 5 pips
	reason, err := c.HandleProposal(context.Background(), p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reason, "below venue minimum") {
		t.Fatalf("expected minimum-distance rejection, got %q", reason)
	}
	if c.State() != models.PositionFlat {
		t.Fatalf("rejected order must not open a position")
	}
	if v.submits != 0 {
		t.Fatalf("order must be rejected before submission, submits=%d", v.submits)
	}
}

func TestVenueRejectionSurfacedNoRetry(t *testing.T) {
	v := newVenue()
	v.submitResult = &models.OrderResult{Success: false, ErrorCode: 10016, Reason: "invalid stops"}
	c := newCoordinator(v, &stubLedger{}, Config{})

	reason, err := c.HandleProposal(context.Background(), buyProposal())
	if err != nil {
		t.Fatalf("venue rejection is not an error: %v", err)
	}
	if !strings.Contains(reason, "invalid stops") {
		t.Fatalf("expected venue reason surfaced, got %q", reason)
	}
	if v.submits != 1 {
		t.Fatalf("expected exactly one submission (no retry), got %d", v.submits)
	}
	if c.State() != models.PositionFlat {
		t.Fatalf("expected FLAT after rejection")
	}
}

func TestCooldownDropsProposals(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := &now
	v := newVenue()
	c := newCoordinator(v, &stubLedger{}, Config{Cooldown: 30 * time.Second},
		WithClock(func() time.Time { return *clock }))

	if reason, _ := c.HandleProposal(context.Background(), buyProposal()); reason != "" {
		t.Fatalf("first proposal should pass: %q", reason)
	}
	// a second proposal inside the interval is dropped regardless of strength
	now = now.Add(10 * time.Second)
	p := &models.SignalProposal{Symbol: "EURUSD", Direction: models.DirectionClose, Volume: 0.02, Strength: 1.0}
	reason, _ := c.HandleProposal(context.Background(), p)
	if reason != "cooldown active" {
		t.Fatalf("expected cooldown drop, got %q", reason)
	}
	if c.State() != models.PositionOpen {
		t.Fatalf("state must be unchanged by a dropped proposal")
	}
}

func TestReconcileSilentlyFlattens(t *testing.T) {
	v := newVenue()
	l := &stubLedger{}
	c := newCoordinator(v, l, Config{})

	if reason, _ := c.HandleProposal(context.Background(), buyProposal()); reason != "" {
		t.Fatalf("open failed: %q", reason)
	}
	// venue reports no open positions: a remote SL/TP fill happened
	v.positions = nil
	c.Reconcile(context.Background())
	if c.State() != models.PositionFlat {
		t.Fatalf("expected FLAT after reconciliation, got %s", c.State())
	}
	if l.count() != 0 {
		t.Fatalf("reconciliation must not double-book a TradeRecord, got %d", l.count())
	}
}

func TestReconcileKeepsMatchingPosition(t *testing.T) {
	v := newVenue()
	c := newCoordinator(v, &stubLedger{}, Config{})
	if reason, _ := c.HandleProposal(context.Background(), buyProposal()); reason != "" {
		t.Fatalf("open failed: %q", reason)
	}
	v.positions = []models.Position{{BotID: "b1", Symbol: "EURUSD", Direction: models.DirectionBuy, Volume: 0.02}}
	c.Reconcile(context.Background())
	if c.State() != models.PositionOpen {
		t.Fatalf("matching venue position must keep local state OPEN")
	}
}

func TestFloatingLossAutoClose(t *testing.T) {
	v := newVenue()
	l := &stubLedger{}
	c := newCoordinator(v, l, Config{FloatingLossLimit: 10})

	if reason, _ := c.HandleProposal(context.Background(), buyProposal()); reason != "" {
		t.Fatalf("open failed: %q", reason)
	}
	// adverse move: long filled at 1.1000, bid collapses
	v.mu.Lock()
	v.tick = &models.MarketRecord{Symbol: "EURUSD", Bid: 1.0900, Ask: 1.0902, Last: 1.0901}
	v.mu.Unlock()

	if err := c.ManageOpen(context.Background()); err != nil {
		t.Fatalf("manage: %v", err)
	}
	if c.State() != models.PositionFlat {
		t.Fatalf("expected auto-close to flatten, got %s", c.State())
	}
	if l.count() != 1 {
		t.Fatalf("expected one TradeRecord, got %d", l.count())
	}
	if l.records[0].Reason != ReasonFloatingLoss {
		t.Fatalf("expected reason %q, got %q", ReasonFloatingLoss, l.records[0].Reason)
	}
	if l.records[0].Profit >= 0 {
		t.Fatalf("expected a loss, got %v", l.records[0].Profit)
	}
}

func TestEntryWhileOpenIgnored(t *testing.T) {
	v := newVenue()
	c := newCoordinator(v, &stubLedger{}, Config{})
	if reason, _ := c.HandleProposal(context.Background(), buyProposal()); reason != "" {
		t.Fatalf("open failed: %q", reason)
	}
	reason, _ := c.HandleProposal(context.Background(), buyProposal())
	if reason != "position already open" {
		t.Fatalf("expected duplicate entry to be ignored, got %q", reason)
	}
	if v.submits != 1 {
		t.Fatalf("second entry must not reach the venue")
	}
}
