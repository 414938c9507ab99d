package engine

import (
	"context"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/exec"
	"TradePilot/internal/features"
	"TradePilot/internal/risk"
	"TradePilot/internal/signal"
)

type stubStream struct {
	recCh  chan *models.MarketRecord
	errCh  chan error
	closed chan struct{}
}

func newStubStream() *stubStream {
	return &stubStream{
		recCh:  make(chan *models.MarketRecord, 16),
		errCh:  make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (s *stubStream) Connect(context.Context) error   { return nil }
func (s *stubStream) Subscribe(context.Context) error { return nil }
func (s *stubStream) Read(context.Context) (<-chan *models.MarketRecord, <-chan error) {
	return s.recCh, s.errCh
}
func (s *stubStream) Reconnect(context.Context) error { return nil }
func (s *stubStream) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}
func (s *stubStream) IsConnected() bool { return true }

type stubVenue struct {
	info models.SymbolInfo
}

func (v *stubVenue) GetTick(context.Context, string) (*models.MarketRecord, error) {
	return nil, nil
}
func (v *stubVenue) GetSymbolInfo(context.Context, string) (*models.SymbolInfo, error) {
	info := v.info
	return &info, nil
}
func (v *stubVenue) SubmitOrder(context.Context, models.OrderRequest) (*models.OrderResult, error) {
	return &models.OrderResult{Success: true}, nil
}
func (v *stubVenue) CloseOrder(context.Context, models.OrderRequest) (*models.OrderResult, error) {
	return &models.OrderResult{Success: true}, nil
}
func (v *stubVenue) GetOpenPositions(context.Context, string) ([]models.Position, error) {
	return nil, nil
}
func (v *stubVenue) GetAccountInfo(context.Context) (*models.AccountInfo, error) {
	return &models.AccountInfo{Balance: 1000, Equity: 1000}, nil
}
func (v *stubVenue) GetHistoryDeals(context.Context, time.Time, time.Time) ([]models.Deal, error) {
	return nil, nil
}

type stubMetrics struct {
	cycles int
}

func (m *stubMetrics) RecordProposal(string, string) {}
func (m *stubMetrics) RecordRiskBlock(string)        {}
func (m *stubMetrics) RecordOrder(string)            {}
func (m *stubMetrics) RecordError(string)            {}

func (m *stubMetrics) RecordLastPrice(string, float64) {}
func (m *stubMetrics) RecordEquity(string, float64)    {}
func (m *stubMetrics) RecordDrawdown(string, float64)  {}

func (m *stubMetrics) RecordLatency(op string, _ float64) {
	if op == "decision_cycle" {
		m.cycles++
	}
}

func testEngine(cfg Config) (*Engine, *stubStream) {
	stream := newStubStream()
	venue := &stubVenue{info: models.SymbolInfo{
		Symbol: "EURUSD", ContractSize: 100000, Point: 0.0001,
		MinLot: 0.01, MaxLot: 10, LotStep: 0.01, MinStopDistance: 0.0005,
	}}
	if cfg.Symbol == "" {
		cfg.Symbol = "EURUSD"
	}
	analyzer := features.NewAnalyzer(features.Config{})
	sig := signal.DefaultConfig()
	sig.VelocityRef = 0.001
	synth := signal.New(sig, nil, nil)
	gate := risk.NewGate(risk.DefaultLimits(), time.UTC)
	coord := exec.New(exec.Config{BotID: "b1", Symbol: "EURUSD"},
		venue, gate, nil, nil, nil, nil)
	return New(cfg, stream, venue, analyzer, synth, coord, nil, nil), stream
}

func pushRising(e *Engine, n int) {
	ts := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		mid := 1.1 + float64(i)*0.001
		e.window.Push(models.NewMarketRecord("EURUSD", ts.Add(time.Duration(i)*time.Second),
			mid-0.0001, mid+0.0001, mid, 1.0))
	}
}

func TestDecideDropsNewestWhenQueueFull(t *testing.T) {
	e, _ := testEngine(Config{QueueSize: 2})
	e.refreshInfo(context.Background())
	pushRising(e, 120)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			e.decide(context.Background())
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("decide blocked on a full queue")
	}
	if got := len(e.proposals); got != 2 {
		t.Fatalf("queue depth = %d, want capped at 2", got)
	}
}

func TestDecideSkipsWithoutSymbolInfo(t *testing.T) {
	e, _ := testEngine(Config{QueueSize: 2})
	pushRising(e, 120)
	e.decide(context.Background())
	if len(e.proposals) != 0 {
		t.Fatal("decision ran without venue contract terms")
	}
}

func TestDecideShortWindowNoProposal(t *testing.T) {
	e, _ := testEngine(Config{QueueSize: 2})
	e.refreshInfo(context.Background())
	pushRising(e, 10)
	e.decide(context.Background())
	if len(e.proposals) != 0 {
		t.Fatalf("proposal emitted from a %d-record window", e.window.Len())
	}
}

func TestDecideInvalidWindowSkipsSynthesis(t *testing.T) {
	stream := newStubStream()
	venue := &stubVenue{info: models.SymbolInfo{
		Symbol: "EURUSD", ContractSize: 100000, Point: 0.0001,
		MinLot: 0.01, MaxLot: 10, LotStep: 0.01, MinStopDistance: 0.0005,
	}}
	analyzer := features.NewAnalyzer(features.Config{})
	sig := signal.DefaultConfig()
	sig.VelocityRef = 0.001
	synth := signal.New(sig, nil, nil)
	gate := risk.NewGate(risk.DefaultLimits(), time.UTC)
	coord := exec.New(exec.Config{BotID: "b1", Symbol: "EURUSD"},
		venue, gate, nil, nil, nil, nil)
	m := &stubMetrics{}
	e := New(Config{Symbol: "EURUSD", QueueSize: 2}, stream, venue, analyzer, synth, coord, m, nil)
	e.refreshInfo(context.Background())

	pushRising(e, 10)
	e.decide(context.Background())
	if m.cycles != 0 {
		t.Fatalf("synthesis ran on an invalid feature window: %d cycles", m.cycles)
	}

	pushRising(e, 120)
	e.decide(context.Background())
	if m.cycles != 1 {
		t.Fatalf("expected one decision cycle on a full window, got %d", m.cycles)
	}
}

func TestStartIngestsAndStops(t *testing.T) {
	e, stream := testEngine(Config{
		DecisionInterval: 10 * time.Millisecond,
		ManageInterval:   10 * time.Millisecond,
	})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	rec := models.NewMarketRecord("EURUSD", time.Now(), 1.0999, 1.1001, 1.1, 1.0)
	for i := 0; i < 5; i++ {
		stream.recCh <- &rec
	}
	deadline := time.Now().Add(2 * time.Second)
	for e.window.Len() < 5 {
		if time.Now().After(deadline) {
			t.Fatalf("ingestion stalled at %d records", e.window.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := e.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	select {
	case <-stream.closed:
	default:
		t.Fatal("stream left open after stop")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	e, _ := testEngine(Config{})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
