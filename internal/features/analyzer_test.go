package features

import (
	"math"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
)

func risingWindow(n int, start, step, spread float64) []models.MarketRecord {
	ts := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	out := make([]models.MarketRecord, 0, n)
	for i := 0; i < n; i++ {
		mid := start + float64(i)*step
		out = append(out, models.NewMarketRecord("EURUSD", ts.Add(time.Duration(i)*time.Second),
			mid-spread/2, mid+spread/2, mid, 1.0))
	}
	return out
}

func TestAnalyzeShortWindowInvalid(t *testing.T) {
	a := NewAnalyzer(Config{})
	fs := a.Analyze(risingWindow(99, 1.1, 0.0001, 0.0002))
	if fs.Valid {
		t.Fatalf("expected invalid feature set for 99 records")
	}
	if fs.Records != 99 {
		t.Fatalf("unexpected record count %d", fs.Records)
	}
	if fs.RSI != models.NeutralRSI {
		t.Fatalf("expected neutral RSI on invalid set, got %v", fs.RSI)
	}
}

func TestAnalyzeRisingWindow(t *testing.T) {
	a := NewAnalyzer(Config{})
	fs := a.Analyze(risingWindow(150, 1.1, 0.01, 0.001))
	if !fs.Valid {
		t.Fatalf("expected valid feature set")
	}
	if fs.Velocity <= 0 {
		t.Fatalf("expected positive velocity on rising prices, got %v", fs.Velocity)
	}
	if fs.OrderFlowDelta <= 0 {
		t.Fatalf("expected positive order-flow delta, got %v", fs.OrderFlowDelta)
	}
	if fs.EMAFast <= fs.EMASlow {
		t.Fatalf("expected fast EMA above slow EMA in uptrend: %v vs %v", fs.EMAFast, fs.EMASlow)
	}
	if fs.Momentum <= 0 {
		t.Fatalf("expected positive momentum, got %v", fs.Momentum)
	}
	if math.Abs(fs.SpreadMean-0.001) > 1e-9 {
		t.Fatalf("unexpected spread mean %v", fs.SpreadMean)
	}
}

func TestRSIBounds(t *testing.T) {
	a := NewAnalyzer(Config{})
	up := a.Analyze(risingWindow(150, 1.0, 0.01, 0.0002))
	if up.RSI < 0 || up.RSI > 100 {
		t.Fatalf("RSI out of bounds: %v", up.RSI)
	}
	if up.RSI < 99 {
		t.Fatalf("all-gains window should saturate RSI, got %v", up.RSI)
	}
	down := a.Analyze(risingWindow(150, 3.0, -0.01, 0.0002))
	if down.RSI < 0 || down.RSI > 100 {
		t.Fatalf("RSI out of bounds: %v", down.RSI)
	}
	if down.RSI > 1 {
		t.Fatalf("all-losses window should floor RSI, got %v", down.RSI)
	}
}

func TestVolatilityAndATRNonNegative(t *testing.T) {
	a := NewAnalyzer(Config{})
	// alternating prices
	recs := risingWindow(150, 1.2, 0, 0.0002)
	for i := range recs {
		if i%2 == 0 {
			recs[i].Bid += 0.002
			recs[i].Ask += 0.002
			recs[i].Last += 0.002
		}
	}
	fs := a.Analyze(recs)
	if fs.Volatility < 0 {
		t.Fatalf("negative volatility %v", fs.Volatility)
	}
	if fs.ATR < 0 {
		t.Fatalf("negative ATR %v", fs.ATR)
	}
	if fs.Volatility == 0 {
		t.Fatalf("expected nonzero volatility on alternating prices")
	}
}

func TestConstantPricesDegrade(t *testing.T) {
	a := NewAnalyzer(Config{})
	fs := a.Analyze(risingWindow(120, 1.5, 0, 0.0004))
	if !fs.Valid {
		t.Fatalf("expected valid set")
	}
	if fs.Volatility != 0 || fs.ATR != 0 || fs.Momentum != 0 {
		t.Fatalf("flat window should produce zero volatility/ATR/momentum: %+v", fs)
	}
	// zero loss and zero gain: epsilon guard keeps RSI defined
	if fs.RSI < 0 || fs.RSI > 100 {
		t.Fatalf("RSI out of bounds on flat window: %v", fs.RSI)
	}
}

func TestAnalyzeBarsMatchesRecordPath(t *testing.T) {
	a := NewAnalyzer(Config{})
	ts := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, 120)
	for i := range bars {
		c := 100.0 + float64(i)*0.5
		bars[i] = models.Bar{Symbol: "XAUUSD", Timestamp: ts.Add(time.Duration(i) * time.Minute),
			Open: c - 0.2, High: c + 0.3, Low: c - 0.4, Close: c, Volume: 10}
	}
	fs := a.AnalyzeBars(bars)
	if !fs.Valid {
		t.Fatalf("expected valid set from 120 bars")
	}
	if fs.SpreadMean != 0 {
		t.Fatalf("bars carry no book, spread mean should be zero, got %v", fs.SpreadMean)
	}
	if fs.Velocity <= 0 || fs.Momentum <= 0 {
		t.Fatalf("rising closes should give positive velocity/momentum: %+v", fs)
	}
}
