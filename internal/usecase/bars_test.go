package usecase

import (
	"context"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	pkgcache "TradePilot/pkg/cache"
)

type countingBars struct {
	memBars
	calls int
}

func (s *countingBars) GetBars(ctx context.Context, sym string, from, to time.Time, tf domrepo.Timeframe) ([]models.Bar, error) {
	s.calls++
	return s.memBars.GetBars(ctx, sym, from, to, tf)
}

func flatBars(n int) []models.Bar {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	for i := range bars {
		bars[i] = models.Bar{Symbol: "EURUSD", Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open: 1.1, High: 1.1, Low: 1.1, Close: 1.1, Volume: 10}
	}
	return bars
}

func TestGetBarsRequiresSymbol(t *testing.T) {
	uc := NewBarsUseCase(&memBars{}, nil)
	if _, err := uc.GetBars(context.Background(), GetBarsParams{}); err == nil {
		t.Fatal("expected error for empty symbol")
	}
}

func TestGetBarsRejectsInvertedRange(t *testing.T) {
	uc := NewBarsUseCase(&memBars{}, nil)
	now := time.Now()
	_, err := uc.GetBars(context.Background(), GetBarsParams{
		Symbol: "EURUSD", From: now, To: now.Add(-time.Hour),
	})
	if err == nil {
		t.Fatal("expected error for from after to")
	}
}

func TestGetBarsAppliesLimit(t *testing.T) {
	store := &memBars{bars: flatBars(20)}
	uc := NewBarsUseCase(store, nil)
	res, err := uc.GetBars(context.Background(), GetBarsParams{
		Symbol: "EURUSD",
		From:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		Limit:  5,
	})
	if err != nil {
		t.Fatalf("GetBars: %v", err)
	}
	if res.Count != 5 || len(res.Bars) != 5 {
		t.Fatalf("expected 5 bars, got count=%d len=%d", res.Count, len(res.Bars))
	}
}

func TestGetBarsAlignsRangeToTimeframe(t *testing.T) {
	store := &countingBars{memBars: memBars{bars: flatBars(3)}}
	uc := NewBarsUseCase(store, pkgcache.NewMemoryCache())

	// Ragged sub-minute offsets snap to minute boundaries, so both
	// queries resolve to the same range and share a cache entry.
	first, err := uc.GetBars(context.Background(), GetBarsParams{
		Symbol:    "EURUSD",
		From:      time.Date(2026, 3, 2, 0, 0, 17, 0, time.UTC),
		To:        time.Date(2026, 3, 3, 0, 0, 41, 0, time.UTC),
		Timeframe: domrepo.TF1m,
	})
	if err != nil {
		t.Fatalf("first GetBars: %v", err)
	}
	if first.From.Second() != 0 || first.To.Second() != 0 {
		t.Fatalf("range not aligned: from=%v to=%v", first.From, first.To)
	}
	if _, err := uc.GetBars(context.Background(), GetBarsParams{
		Symbol:    "EURUSD",
		From:      time.Date(2026, 3, 2, 0, 0, 3, 0, time.UTC),
		To:        time.Date(2026, 3, 3, 0, 0, 55, 0, time.UTC),
		Timeframe: domrepo.TF1m,
	}); err != nil {
		t.Fatalf("second GetBars: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("aligned queries should share a cache entry, got %d store queries", store.calls)
	}
}

func TestGetBarsServesSecondCallFromCache(t *testing.T) {
	store := &countingBars{memBars: memBars{bars: flatBars(3)}}
	uc := NewBarsUseCase(store, pkgcache.NewMemoryCache())

	p := GetBarsParams{
		Symbol: "EURUSD",
		From:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
	}
	first, err := uc.GetBars(context.Background(), p)
	if err != nil {
		t.Fatalf("first GetBars: %v", err)
	}
	second, err := uc.GetBars(context.Background(), p)
	if err != nil {
		t.Fatalf("second GetBars: %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected one store query, got %d", store.calls)
	}
	if second.Count != first.Count || len(second.Bars) != len(first.Bars) {
		t.Fatalf("cached result differs: %d vs %d bars", len(second.Bars), len(first.Bars))
	}
}
