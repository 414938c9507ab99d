package usecase

import (
	"context"
	"testing"
	"time"

	"TradePilot/internal/backtest"
	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	"TradePilot/internal/features"
	"TradePilot/internal/risk"
	"TradePilot/internal/signal"
)

type memQueue struct {
	published []struct {
		msgType string
		payload interface{}
	}
	failNext bool
}

func (q *memQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	if q.failNext {
		q.failNext = false
		return context.DeadlineExceeded
	}
	q.published = append(q.published, struct {
		msgType string
		payload interface{}
	}{msgType, payload})
	return nil
}

type memBars struct {
	bars []models.Bar
}

func (s *memBars) GetBars(_ context.Context, _ string, _, _ time.Time, _ domrepo.Timeframe) ([]models.Bar, error) {
	return s.bars, nil
}

func (s *memBars) GetLatestNBars(_ context.Context, _ string, n int, _ domrepo.Timeframe) ([]models.Bar, error) {
	if n > len(s.bars) {
		n = len(s.bars)
	}
	return s.bars[len(s.bars)-n:], nil
}

func baseConfig() backtest.Config {
	return backtest.Config{
		Info: models.SymbolInfo{Symbol: "EURUSD", ContractSize: 100000, Point: 0.0001,
			MinLot: 0.01, MaxLot: 10, LotStep: 0.01, MinStopDistance: 0.0005},
		Analyzer: features.DefaultConfig(),
		Signal:   signal.DefaultConfig(),
		Limits:   risk.DefaultLimits(),
	}
}

func TestSubmitEnqueuesJob(t *testing.T) {
	q := &memQueue{}
	m := NewBacktestManager(q, &memBars{}, nil, baseConfig(), nil)

	id, err := m.Submit(context.Background(), models.BacktestRequest{
		Symbol: "EURUSD", From: "2025-03-01T00:00:00Z", To: "2025-03-02T00:00:00Z",
		TF: "1m", InitialBalance: 10000})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(q.published) != 1 || q.published[0].msgType != BacktestJobType {
		t.Fatalf("published = %+v", q.published)
	}
	state, ok := m.Status(id)
	if !ok || state.Status != RunQueued {
		t.Fatalf("state = %+v ok=%v", state, ok)
	}
}

func TestSubmitRejectsBadRange(t *testing.T) {
	m := NewBacktestManager(&memQueue{}, &memBars{}, nil, baseConfig(), nil)
	if _, err := m.Submit(context.Background(), models.BacktestRequest{
		Symbol: "EURUSD", From: "2025-03-02T00:00:00Z", To: "2025-03-01T00:00:00Z"}); err == nil {
		t.Fatal("inverted range accepted")
	}
	if _, err := m.Submit(context.Background(), models.BacktestRequest{
		Symbol: "EURUSD", From: "not-a-time", To: "2025-03-01T00:00:00Z"}); err == nil {
		t.Fatal("unparseable from accepted")
	}
}

func TestSubmitRollsBackOnQueueFailure(t *testing.T) {
	q := &memQueue{failNext: true}
	m := NewBacktestManager(q, &memBars{}, nil, baseConfig(), nil)
	id, err := m.Submit(context.Background(), models.BacktestRequest{
		Symbol: "EURUSD", From: "2025-03-01T00:00:00Z", To: "2025-03-02T00:00:00Z"})
	if err == nil {
		t.Fatal("queue failure not surfaced")
	}
	if _, ok := m.Status(id); ok {
		t.Fatal("failed submission left a tracked run")
	}
}

func TestHandleRunsShortDatasetToZeroResult(t *testing.T) {
	q := &memQueue{}
	bars := &memBars{}
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		bars.bars = append(bars.bars, models.Bar{Symbol: "EURUSD",
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Open:      1.1, High: 1.1, Low: 1.1, Close: 1.1, Volume: 1})
	}
	m := NewBacktestManager(q, bars, nil, baseConfig(), nil)
	id, err := m.Submit(context.Background(), models.BacktestRequest{
		Symbol: "EURUSD", From: "2025-03-01T00:00:00Z", To: "2025-03-02T00:00:00Z",
		InitialBalance: 5000})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	job := BacktestJob{RunID: id, Symbol: "EURUSD",
		From: ts.Unix(), To: ts.Add(24 * time.Hour).Unix(),
		Timeframe: "1m", InitialBalance: 5000}
	if err := m.Handle(context.Background(), job); err != nil {
		t.Fatalf("handle: %v", err)
	}

	state, _ := m.Status(id)
	if state.Status != RunDone {
		t.Fatalf("status = %s, want done", state.Status)
	}
	if state.Result == nil || state.Result.Trades != 0 {
		t.Fatalf("result = %+v", state.Result)
	}
	if state.Result.FinalBalance != 5000 {
		t.Fatalf("final balance = %v", state.Result.FinalBalance)
	}
}

func TestCancelQueuedRunSkipsExecution(t *testing.T) {
	q := &memQueue{}
	m := NewBacktestManager(q, &memBars{}, nil, baseConfig(), nil)
	id, err := m.Submit(context.Background(), models.BacktestRequest{
		Symbol: "EURUSD", From: "2025-03-01T00:00:00Z", To: "2025-03-02T00:00:00Z"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !m.Cancel(id) {
		t.Fatal("cancel of known run returned false")
	}
	if err := m.Handle(context.Background(), BacktestJob{RunID: id, Symbol: "EURUSD",
		Timeframe: "1m"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	state, _ := m.Status(id)
	if state.Status != RunCancelled {
		t.Fatalf("status = %s, want cancelled", state.Status)
	}
	if state.Result != nil {
		t.Fatal("cancelled run produced a result")
	}
}

func TestCancelUnknownRun(t *testing.T) {
	m := NewBacktestManager(&memQueue{}, &memBars{}, nil, baseConfig(), nil)
	if m.Cancel("nope") {
		t.Fatal("cancel of unknown run returned true")
	}
}
