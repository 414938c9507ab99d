package venue

import (
	"context"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
)

func eurusd() models.SymbolInfo {
	return models.SymbolInfo{Symbol: "EURUSD", ContractSize: 100000, Point: 0.0001,
		MinLot: 0.01, MaxLot: 10, LotStep: 0.01, MinStopDistance: 0.0005}
}

func TestPaperRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(1000, 0, eurusd())
	p.SetTick(models.NewMarketRecord("EURUSD", time.Now(), 1.0999, 1.1001, 1.1, 1))

	res, err := p.SubmitOrder(ctx, models.OrderRequest{
		BotID: "b1", Symbol: "EURUSD", Direction: models.DirectionBuy, Volume: 0.1})
	if err != nil || !res.Success {
		t.Fatalf("submit: res=%+v err=%v", res, err)
	}
	if res.FilledPrice != 1.1001 {
		t.Fatalf("long fill = %v, want ask 1.1001", res.FilledPrice)
	}

	open, _ := p.GetOpenPositions(ctx, "EURUSD")
	if len(open) != 1 {
		t.Fatalf("open positions = %d", len(open))
	}

	p.SetTick(models.NewMarketRecord("EURUSD", time.Now(), 1.1019, 1.1021, 1.102, 1))
	res, err = p.CloseOrder(ctx, models.OrderRequest{
		BotID: "b1", Symbol: "EURUSD", Direction: models.DirectionSell, Volume: 0.1})
	if err != nil || !res.Success {
		t.Fatalf("close: res=%+v err=%v", res, err)
	}
	if res.FilledPrice != 1.1019 {
		t.Fatalf("close fill = %v, want bid 1.1019", res.FilledPrice)
	}

	acct, _ := p.GetAccountInfo(ctx)
	wantProfit := (1.1019 - 1.1001) * 0.1 * 100000
	if diff := acct.Balance - (1000 + wantProfit); diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("balance = %v, want %v", acct.Balance, 1000+wantProfit)
	}
	if open, _ := p.GetOpenPositions(ctx, "EURUSD"); len(open) != 0 {
		t.Fatalf("position left open after close")
	}
}

func TestPaperRejectsWithoutMarketData(t *testing.T) {
	p := NewPaper(1000, 0, eurusd())
	res, err := p.SubmitOrder(context.Background(), models.OrderRequest{
		BotID: "b1", Symbol: "EURUSD", Direction: models.DirectionBuy, Volume: 0.1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Reason != "no market data" {
		t.Fatalf("res = %+v", res)
	}
}

func TestPaperSlippageWorksAgainstTaker(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(1000, 0.0002, eurusd())
	p.SetTick(models.NewMarketRecord("EURUSD", time.Now(), 1.0999, 1.1001, 1.1, 1))

	res, _ := p.SubmitOrder(ctx, models.OrderRequest{
		BotID: "b1", Symbol: "EURUSD", Direction: models.DirectionBuy, Volume: 0.1})
	if res.FilledPrice <= 1.1001 {
		t.Fatalf("long entry fill %v not worse than ask", res.FilledPrice)
	}
	res, _ = p.CloseOrder(ctx, models.OrderRequest{
		BotID: "b1", Symbol: "EURUSD", Direction: models.DirectionSell, Volume: 0.1})
	if res.FilledPrice >= 1.0999 {
		t.Fatalf("long exit fill %v not worse than bid", res.FilledPrice)
	}
}

func TestPaperEquityMarksOpenPositions(t *testing.T) {
	ctx := context.Background()
	p := NewPaper(1000, 0, eurusd())
	p.SetTick(models.NewMarketRecord("EURUSD", time.Now(), 1.0999, 1.1001, 1.1, 1))
	if _, err := p.SubmitOrder(ctx, models.OrderRequest{
		BotID: "b1", Symbol: "EURUSD", Direction: models.DirectionBuy, Volume: 0.1}); err != nil {
		t.Fatal(err)
	}
	p.SetTick(models.NewMarketRecord("EURUSD", time.Now(), 1.1011, 1.1013, 1.1012, 1))

	acct, _ := p.GetAccountInfo(ctx)
	if acct.Balance != 1000 {
		t.Fatalf("balance moved before close: %v", acct.Balance)
	}
	want := 1000 + (1.1011-1.1001)*0.1*100000
	if diff := acct.Equity - want; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("equity = %v, want %v", acct.Equity, want)
	}
}
