package usecase

import (
	"testing"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
)

func rec(ts time.Time, mid, vol float64) *models.MarketRecord {
	r := models.NewMarketRecord("EURUSD", ts, mid-0.0001, mid+0.0001, mid, vol)
	return &r
}

func TestBarBuilderAggregatesBucket(t *testing.T) {
	b := NewBarBuilder(domrepo.TF1m)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	if done := b.Add(rec(base, 1.10, 1)); done != nil {
		t.Fatal("first record completed a bar")
	}
	b.Add(rec(base.Add(10*time.Second), 1.12, 2))
	b.Add(rec(base.Add(20*time.Second), 1.09, 3))
	b.Add(rec(base.Add(30*time.Second), 1.11, 4))

	done := b.Add(rec(base.Add(61*time.Second), 1.115, 1))
	if done == nil {
		t.Fatal("next bucket did not close the previous bar")
	}
	if done.Open != 1.10 || done.Close != 1.11 {
		t.Fatalf("open/close = %v/%v", done.Open, done.Close)
	}
	if done.High != 1.12 || done.Low != 1.09 {
		t.Fatalf("high/low = %v/%v", done.High, done.Low)
	}
	if done.Volume != 10 {
		t.Fatalf("volume = %v, want 10", done.Volume)
	}
	if !done.Timestamp.Equal(base) {
		t.Fatalf("bucket = %v, want %v", done.Timestamp, base)
	}
}

func TestBarBuilderDropsLateRecords(t *testing.T) {
	b := NewBarBuilder(domrepo.TF1m)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	b.Add(rec(base.Add(2*time.Minute), 1.10, 1))
	if done := b.Add(rec(base, 1.50, 1)); done != nil {
		t.Fatal("late record closed a bar")
	}
	bars := b.Flush()
	if len(bars) != 1 || bars[0].High != 1.10 {
		t.Fatalf("late record leaked into the open bar: %+v", bars)
	}
}

func TestBarBuilderFlushReturnsPartials(t *testing.T) {
	b := NewBarBuilder(domrepo.TF1s)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	b.Add(rec(base, 1.10, 1))
	b.Add(rec(base.Add(200*time.Millisecond), 1.11, 1))

	bars := b.Flush()
	if len(bars) != 1 {
		t.Fatalf("flush returned %d bars", len(bars))
	}
	if bars[0].Close != 1.11 {
		t.Fatalf("close = %v", bars[0].Close)
	}
	if again := b.Flush(); len(again) != 0 {
		t.Fatal("second flush returned bars")
	}
}

func TestBarBuilderPerSymbolBuckets(t *testing.T) {
	b := NewBarBuilder(domrepo.TF1m)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	b.Add(rec(base, 1.10, 1))
	other := models.NewMarketRecord("GBPUSD", base, 1.2999, 1.3001, 1.3, 1)
	b.Add(&other)

	bars := b.Flush()
	if len(bars) != 2 {
		t.Fatalf("expected one open bar per symbol, got %d", len(bars))
	}
}
