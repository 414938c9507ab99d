package venue

import (
	"context"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	drepo "TradePilot/internal/domain/repository"
)

// Paper is an in-memory venue for dry runs. It fills immediately at
// the current book with configurable slippage and keeps account state
// consistent with realized trade results. SetTick drives its view of
// the market, typically from the same stream the engine ingests.
type Paper struct {
	mu       sync.Mutex
	tick     map[string]models.MarketRecord
	info     map[string]models.SymbolInfo
	balance  float64
	slippage float64
	open     []models.Position
	deals    []models.Deal
}

// NewPaper creates a paper venue with the given starting balance.
func NewPaper(balance, slippage float64, infos ...models.SymbolInfo) *Paper {
	p := &Paper{
		tick:     make(map[string]models.MarketRecord),
		info:     make(map[string]models.SymbolInfo),
		balance:  balance,
		slippage: slippage,
	}
	for _, info := range infos {
		p.info[info.Symbol] = info
	}
	return p
}

var _ drepo.Venue = (*Paper)(nil)

// SetTick updates the simulated book for a symbol.
func (p *Paper) SetTick(rec models.MarketRecord) {
	p.mu.Lock()
	p.tick[rec.Symbol] = rec
	p.mu.Unlock()
}

func (p *Paper) GetTick(_ context.Context, symbol string) (*models.MarketRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.tick[symbol]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (p *Paper) GetSymbolInfo(_ context.Context, symbol string) (*models.SymbolInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	info, ok := p.info[symbol]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// SubmitOrder fills market orders at the touch plus slippage. Orders
// for symbols without a tick are rejected, not queued.
func (p *Paper) SubmitOrder(_ context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.tick[req.Symbol]
	if !ok {
		return &models.OrderResult{Success: false, Reason: "no market data"}, nil
	}
	if req.Volume <= 0 {
		return &models.OrderResult{Success: false, Reason: "invalid volume"}, nil
	}
	fill := rec.Ask + p.slippage
	if req.Direction == models.DirectionSell {
		fill = rec.Bid - p.slippage
	}
	p.open = append(p.open, models.Position{
		BotID:      req.BotID,
		Symbol:     req.Symbol,
		Direction:  req.Direction,
		Volume:     req.Volume,
		EntryPrice: fill,
		OpenTime:   rec.Timestamp,
	})
	return &models.OrderResult{Success: true, FilledPrice: fill}, nil
}

// CloseOrder closes the oldest matching position at the opposite touch.
func (p *Paper) CloseOrder(_ context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.tick[req.Symbol]
	if !ok {
		return &models.OrderResult{Success: false, Reason: "no market data"}, nil
	}
	for i, pos := range p.open {
		if pos.BotID != req.BotID || pos.Symbol != req.Symbol {
			continue
		}
		fill := rec.Bid - p.slippage
		if pos.Direction == models.DirectionSell {
			fill = rec.Ask + p.slippage
		}
		contract := p.info[req.Symbol].ContractSize
		if contract <= 0 {
			contract = 1
		}
		profit := pos.FloatingPnL(fill, contract)
		p.balance += profit
		p.deals = append(p.deals, models.Deal{
			Symbol: pos.Symbol,
			Time:   rec.Timestamp,
			Volume: pos.Volume,
			Profit: profit,
		})
		p.open = append(p.open[:i], p.open[i+1:]...)
		return &models.OrderResult{Success: true, FilledPrice: fill}, nil
	}
	return &models.OrderResult{Success: false, Reason: "position not found"}, nil
}

func (p *Paper) GetOpenPositions(_ context.Context, symbol string) ([]models.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Position, 0, len(p.open))
	for _, pos := range p.open {
		if symbol == "" || pos.Symbol == symbol {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (p *Paper) GetAccountInfo(_ context.Context) (*models.AccountInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	equity := p.balance
	for _, pos := range p.open {
		rec, ok := p.tick[pos.Symbol]
		if !ok {
			continue
		}
		price := rec.Bid
		if pos.Direction == models.DirectionSell {
			price = rec.Ask
		}
		contract := p.info[pos.Symbol].ContractSize
		if contract <= 0 {
			contract = 1
		}
		equity += pos.FloatingPnL(price, contract)
	}
	return &models.AccountInfo{
		Balance:    p.balance,
		Equity:     equity,
		FreeMargin: equity,
	}, nil
}

func (p *Paper) GetHistoryDeals(_ context.Context, from, to time.Time) ([]models.Deal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Deal, 0, len(p.deals))
	for _, d := range p.deals {
		if d.Time.Before(from) || d.Time.After(to) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
