package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	pkgcache "TradePilot/pkg/cache"
	"TradePilot/pkg/util"
)

const barsCacheTTL = 15 * time.Second

// BarsUseCase serves historical bar queries for the control-plane API.
// Responses are cached briefly since closed bars are immutable.
type BarsUseCase struct {
	store domrepo.BarStore
	cache pkgcache.Service
}

func NewBarsUseCase(store domrepo.BarStore, cache pkgcache.Service) *BarsUseCase {
	return &BarsUseCase{store: store, cache: cache}
}

type GetBarsParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Limit     int
}

type GetBarsResult struct {
	Symbol    string
	Timeframe string
	From      time.Time
	To        time.Time
	Count     int
	Bars      []models.Bar
}

func (uc *BarsUseCase) GetBars(ctx context.Context, p GetBarsParams) (*GetBarsResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 {
		p.Limit = 10000
	}
	if p.Limit > 50000 {
		p.Limit = 50000
	}

	// Ranges snap to timeframe boundaries so equivalent queries share a
	// cache entry.
	p.From, p.To = util.AlignFromTo(p.From, p.To, string(p.Timeframe))

	key := fmt.Sprintf("bars:%s:%s:%d:%d:%d", p.Symbol, p.Timeframe, p.From.Unix(), p.To.Unix(), p.Limit)
	if uc.cache != nil {
		var raw string
		if err := uc.cache.Get(ctx, key, &raw); err == nil {
			var cached GetBarsResult
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return &cached, nil
			}
		}
	}

	bars, err := uc.store.GetBars(ctx, p.Symbol, p.From, p.To, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}
	if len(bars) > p.Limit {
		bars = bars[:p.Limit]
	}

	res := &GetBarsResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		From:      p.From,
		To:        p.To,
		Count:     len(bars),
		Bars:      bars,
	}

	if uc.cache != nil {
		if raw, err := json.Marshal(res); err == nil {
			_ = uc.cache.Set(ctx, key, string(raw), barsCacheTTL)
		}
	}
	return res, nil
}
