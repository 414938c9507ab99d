package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/features"
	"TradePilot/internal/risk"
	"TradePilot/internal/signal"
)

func trendingBars(n int, start, step float64) []models.Bar {
	bars := make([]models.Bar, n)
	ts := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	price := start
	for i := range bars {
		bars[i] = models.Bar{
			Symbol:    "EURUSD",
			Timestamp: ts.Add(time.Duration(i) * time.Second),
			Open:      price,
			High:      price + step,
			Low:       price,
			Close:     price + step,
			Volume:    100,
		}
		price += step
	}
	return bars
}

func testConfig() Config {
	sig := signal.DefaultConfig()
	sig.VelocityRef = 0.001
	return Config{
		Symbol:         "EURUSD",
		InitialBalance: 1000,
		Info: models.SymbolInfo{
			Symbol:          "EURUSD",
			ContractSize:    100000,
			Point:           0.0001,
			MinLot:          0.01,
			MaxLot:          100,
			LotStep:         0.01,
			MinStopDistance: 0.0005,
		},
		Analyzer: features.DefaultConfig(),
		Signal:   sig,
		Limits:   risk.DefaultLimits(),
	}
}

func TestRunTooFewBarsYieldsZeroResult(t *testing.T) {
	bt := New(testConfig(), nil, nil)
	res, err := bt.Run(context.Background(), trendingBars(10, 1.0, 0.001))
	if err != nil {
		t.Fatalf("expected zero-valued result, got error %v", err)
	}
	if res.Trades != 0 || res.Wins != 0 || res.Losses != 0 {
		t.Fatalf("expected no trades, got %d", res.Trades)
	}
	if res.ProfitFactor != 0 || res.WinRate != 0 {
		t.Fatalf("expected zero statistics, got pf=%v winrate=%v", res.ProfitFactor, res.WinRate)
	}
	if res.FinalBalance != 1000 {
		t.Fatalf("balance changed without trades: %v", res.FinalBalance)
	}
}

func TestRunTrendingMarketTrades(t *testing.T) {
	bt := New(testConfig(), nil, nil)
	res, err := bt.Run(context.Background(), trendingBars(250, 1.0, 0.001))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Trades == 0 {
		t.Fatal("expected trades on a trending market")
	}
	if res.Losses != 0 {
		t.Fatalf("uniform uptrend produced %d losing trades", res.Losses)
	}
	if res.WinRate != 100 {
		t.Fatalf("win rate = %v, want 100", res.WinRate)
	}
	if !math.IsInf(res.ProfitFactor, 1) {
		t.Fatalf("profit without losses should report +Inf profit factor, got %v", res.ProfitFactor)
	}
	if res.NetProfit <= 0 || res.FinalBalance <= 1000 {
		t.Fatalf("net profit = %v, final balance = %v", res.NetProfit, res.FinalBalance)
	}
	if len(res.TradeLog) != res.Trades {
		t.Fatalf("trade log has %d entries for %d trades", len(res.TradeLog), res.Trades)
	}
	for _, tr := range res.TradeLog {
		if tr.Direction != models.DirectionBuy {
			t.Fatalf("uptrend opened a %s trade", tr.Direction)
		}
	}
}

func TestRunDailyLimitResetsAcrossSimulatedDays(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.DailyTradeLimit = 1

	// Two trading days of continuous uptrend. The second day carries on
	// from the first day's prices but its timestamps are 24h later.
	day1 := trendingBars(250, 1.0, 0.001)
	day2 := trendingBars(250, 1.0+250*0.001, 0.001)
	for i := range day2 {
		day2[i].Timestamp = day2[i].Timestamp.Add(24 * time.Hour)
	}
	bars := append(day1, day2...)

	bt := New(cfg, nil, nil)
	res, err := bt.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Trades < 2 {
		t.Fatalf("daily trade limit did not reset at the day boundary: %d trades over two days", res.Trades)
	}
	if res.Trades > 2 {
		t.Fatalf("daily trade limit exceeded: %d trades with a limit of 1 per day", res.Trades)
	}
}

func TestRunNoTradesBeforeWarmup(t *testing.T) {
	cfg := testConfig()
	cfg.WarmupBars = 150
	bt := New(cfg, nil, nil)
	res, err := bt.Run(context.Background(), trendingBars(150, 1.0, 0.001))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Trades != 0 {
		t.Fatalf("trades opened inside the warm-up window: %d", res.Trades)
	}
}

func TestRunCancelled(t *testing.T) {
	bt := New(testConfig(), nil, nil)
	bt.Cancel()
	res, err := bt.Run(context.Background(), trendingBars(250, 1.0, 0.001))
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if res != nil {
		t.Fatal("cancelled run must not produce statistics")
	}
}

func TestRunContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bt := New(testConfig(), nil, nil)
	if _, err := bt.Run(ctx, trendingBars(250, 1.0, 0.001)); !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestRunProgressMonotonic(t *testing.T) {
	bt := New(testConfig(), nil, nil)
	var seen []int
	bt.OnProgress("run-1", func(p models.BacktestProgress) {
		if p.RunID != "run-1" {
			t.Fatalf("run id = %q", p.RunID)
		}
		seen = append(seen, p.Done)
	})
	bars := trendingBars(120, 1.0, 0.001)
	if _, err := bt.Run(context.Background(), bars); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(seen) == 0 {
		t.Fatal("no progress reported")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress went backwards: %d after %d", seen[i], seen[i-1])
		}
	}
	if last := seen[len(seen)-1]; last != len(bars) {
		t.Fatalf("final progress = %d, want %d", last, len(bars))
	}
}

type fixedPredictor struct {
	dir  models.Direction
	conf float64
}

func (p fixedPredictor) IsReady() bool { return true }

func (p fixedPredictor) Predict(ctx context.Context, fs models.FeatureSet) (models.Prediction, error) {
	return models.Prediction{Direction: p.dir, Confidence: p.conf}, nil
}

func TestRunTracksMLAgreement(t *testing.T) {
	cfg := testConfig()
	cfg.Signal.MLEnabled = true
	bt := New(cfg, fixedPredictor{dir: models.DirectionBuy, conf: 0.9}, nil)
	res, err := bt.Run(context.Background(), trendingBars(250, 1.0, 0.001))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.MLPredictions == 0 {
		t.Fatal("expected recorded predictions")
	}
	if res.MLAgreementRate != 100 {
		t.Fatalf("BUY predictions on a strict uptrend should agree every bar, got %v", res.MLAgreementRate)
	}
	if math.Abs(res.MLAvgConfidence-0.9) > 1e-9 {
		t.Fatalf("average confidence = %v, want 0.9", res.MLAvgConfidence)
	}
}

func TestProfitFactorConventions(t *testing.T) {
	if pf := profitFactor(0, 0, 0); pf != 0 {
		t.Fatalf("no trades: pf = %v, want 0", pf)
	}
	if pf := profitFactor(50, 0, 3); !math.IsInf(pf, 1) {
		t.Fatalf("no losses: pf = %v, want +Inf", pf)
	}
	if pf := profitFactor(0, 0, 2); pf != 0 {
		t.Fatalf("all flat trades: pf = %v, want 0", pf)
	}
	if pf := profitFactor(60, 30, 5); pf != 2 {
		t.Fatalf("pf = %v, want 2", pf)
	}
}

func TestMaxDrawdown(t *testing.T) {
	dd := maxDrawdown([]float64{100, 120, 90, 110, 80})
	want := (120.0 - 80.0) / 120.0 * 100
	if math.Abs(dd-want) > 1e-9 {
		t.Fatalf("drawdown = %v, want %v", dd, want)
	}
	if dd := maxDrawdown([]float64{100, 110, 120}); dd != 0 {
		t.Fatalf("rising curve drawdown = %v, want 0", dd)
	}
}
