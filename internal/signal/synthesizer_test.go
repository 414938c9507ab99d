package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/features"
)

type stubPredictor struct {
	ready      bool
	prediction models.Prediction
	err        error
	calls      int
}

func (p *stubPredictor) IsReady() bool { return p.ready }

func (p *stubPredictor) Predict(_ context.Context, _ models.FeatureSet) (models.Prediction, error) {
	p.calls++
	return p.prediction, p.err
}

func risingFeatures(n int, step, spread float64) models.FeatureSet {
	ts := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	recs := make([]models.MarketRecord, 0, n)
	for i := 0; i < n; i++ {
		mid := 1.1 + float64(i)*step
		recs = append(recs, models.NewMarketRecord("EURUSD", ts.Add(time.Duration(i)*time.Second),
			mid-spread/2, mid+spread/2, mid, 1.0))
	}
	return features.NewAnalyzer(features.Config{}).Analyze(recs)
}

func testInfo() models.SymbolInfo {
	return models.SymbolInfo{Symbol: "EURUSD", ContractSize: 100000, Point: 0.0001,
		MinLot: 0.01, MaxLot: 10, LotStep: 0.01, MinStopDistance: 0.0010}
}

func TestRisingWindowYieldsBuy(t *testing.T) {
	s := New(DefaultConfig(), nil, nil)
	fs := risingFeatures(150, 0.01, 0.001)
	p := s.Synthesize(context.Background(), fs, nil, testInfo())
	if p == nil {
		t.Fatalf("expected proposal")
	}
	if p.Direction != models.DirectionBuy {
		t.Fatalf("expected BUY, got %s", p.Direction)
	}
	if p.Strength < 0.3 {
		t.Fatalf("expected strength >= 0.3, got %v", p.Strength)
	}
	if p.StopLoss >= p.Entry || p.TakeProfit <= p.Entry {
		t.Fatalf("bad levels: entry=%v sl=%v tp=%v", p.Entry, p.StopLoss, p.TakeProfit)
	}
}

func TestInvalidFeaturesNoProposal(t *testing.T) {
	s := New(DefaultConfig(), nil, nil)
	p := s.Synthesize(context.Background(), models.FeatureSet{Valid: false}, nil, testInfo())
	if p != nil {
		t.Fatalf("invalid feature set must never produce a proposal")
	}
}

func TestWideSpreadRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSpread = 0.0005
	s := New(cfg, nil, nil)
	fs := risingFeatures(150, 0.01, 0.001)
	if p := s.Synthesize(context.Background(), fs, nil, testInfo()); p != nil {
		t.Fatalf("expected spread rejection, got %+v", p)
	}
}

func TestMLDisabledPredictorNeverInvoked(t *testing.T) {
	pred := &stubPredictor{ready: true, prediction: models.Prediction{Direction: models.DirectionSell, Confidence: 1}}
	cfg := DefaultConfig()
	cfg.MLEnabled = false
	s := New(cfg, pred, nil)
	_ = s.Synthesize(context.Background(), risingFeatures(150, 0.01, 0.001), nil, testInfo())
	if pred.calls != 0 {
		t.Fatalf("predictor invoked %d times with arbitration disabled", pred.calls)
	}
}

func TestMLNotReadyFailsClosed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MLEnabled = true
	s := New(cfg, &stubPredictor{ready: false}, nil)
	fs := risingFeatures(150, 0.01, 0.001)
	if p := s.Synthesize(context.Background(), fs, nil, testInfo()); p != nil {
		t.Fatalf("enabled-but-unready arbitration must emit no proposal, got %+v", p)
	}
}

func TestMLAgreementBoosts(t *testing.T) {
	cfg := DefaultConfig()
	base := New(cfg, nil, nil)
	fs := risingFeatures(150, 0.01, 0.001)
	plain := base.Synthesize(context.Background(), fs, nil, testInfo())

	cfg.MLEnabled = true
	boosted := New(cfg, &stubPredictor{ready: true,
		prediction: models.Prediction{Direction: models.DirectionBuy, Confidence: 0.9}}, nil)
	p := boosted.Synthesize(context.Background(), fs, nil, testInfo())
	if p == nil || plain == nil {
		t.Fatalf("expected proposals")
	}
	if p.Strength <= plain.Strength && plain.Strength < 1 {
		t.Fatalf("agreement should boost strength: %v vs %v", p.Strength, plain.Strength)
	}
}

func TestMLDisagreementNeverFlips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MLEnabled = true
	s := New(cfg, &stubPredictor{ready: true,
		prediction: models.Prediction{Direction: models.DirectionSell, Confidence: 0.9}}, nil)
	fs := risingFeatures(150, 0.01, 0.001)
	p := s.Synthesize(context.Background(), fs, nil, testInfo())
	if p != nil && p.Direction == models.DirectionSell {
		t.Fatalf("disagreement flipped direction")
	}
}

func TestMLErrorTreatedAsDisagreement(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MLEnabled = true
	s := New(cfg, &stubPredictor{ready: true, err: errors.New("model timeout")}, nil)
	fs := risingFeatures(150, 0.01, 0.001)
	// must not panic or propagate; direction preserved if still strong enough
	p := s.Synthesize(context.Background(), fs, nil, testInfo())
	if p != nil && p.Direction != models.DirectionBuy {
		t.Fatalf("error arbitration must not change technical direction, got %s", p.Direction)
	}
}

func TestMLSoloDirection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MLEnabled = true
	// flat market: no technical direction
	s := New(cfg, &stubPredictor{ready: true,
		prediction: models.Prediction{Direction: models.DirectionSell, Confidence: 0.8}}, nil)
	fs := risingFeatures(150, 0, 0.001)
	p := s.Synthesize(context.Background(), fs, nil, testInfo())
	if p == nil {
		t.Fatalf("expected ML-only proposal")
	}
	if p.Direction != models.DirectionSell {
		t.Fatalf("expected SELL from model, got %s", p.Direction)
	}
	want := 0.8 * arbSoloFactor
	if p.Strength < want-1e-9 || p.Strength > want+1e-9 {
		t.Fatalf("expected strength %.3f, got %v", want, p.Strength)
	}
}

// reversalFeatures is a confirmed full-scale BUY: the delta leg passes
// the EMA/RSI/momentum filters and the velocity leg reinforces it, so
// combined strength exceeds the reversal threshold.
func reversalFeatures() models.FeatureSet {
	return models.FeatureSet{
		Symbol:         "EURUSD",
		Timestamp:      time.Date(2025, 3, 10, 9, 2, 30, 0, time.UTC),
		Records:        150,
		Valid:          true,
		SpreadMean:     0.001,
		Velocity:       0.005,
		OrderFlowDelta: 25,
		Imbalance:      0.8,
		Volatility:     0.001,
		EMAFast:        1.2510,
		EMASlow:        1.2480,
		RSI:            62,
		Momentum:       0.003,
		LastPrice:      1.2520,
		MidPrice:       1.2520,
	}
}

func TestReversalConvertsToClose(t *testing.T) {
	s := New(DefaultConfig(), nil, nil)
	fs := reversalFeatures() // strong BUY against an open SELL
	open := &models.Position{BotID: "b1", Symbol: "EURUSD", Direction: models.DirectionSell,
		Volume: 0.5, EntryPrice: 1.2}
	p := s.Synthesize(context.Background(), fs, open, testInfo())
	if p == nil {
		t.Fatalf("expected proposal")
	}
	if p.Direction != models.DirectionClose {
		t.Fatalf("expected CLOSE on strong reversal, got %s", p.Direction)
	}
	if p.Volume != open.Volume {
		t.Fatalf("close must cover full open volume: %v vs %v", p.Volume, open.Volume)
	}
}

// noisyRisingFeatures rises with uneven steps so consecutive diffs have
// nonzero variance.
func noisyRisingFeatures(n int) models.FeatureSet {
	ts := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	recs := make([]models.MarketRecord, 0, n)
	mid := 1.1
	for i := 0; i < n; i++ {
		step := 0.012
		if i%2 == 0 {
			step = 0.008
		}
		mid += step
		recs = append(recs, models.NewMarketRecord("EURUSD", ts.Add(time.Duration(i)*time.Second),
			mid-0.0005, mid+0.0005, mid, 1.0))
	}
	return features.NewAnalyzer(features.Config{}).Analyze(recs)
}

func TestVolatilityPenaltyHalvesStrength(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VolatilityCap = 1e-9 // force the penalty
	cfg.MinStrength = 0
	s := New(cfg, nil, nil)
	recs := noisyRisingFeatures(150)

	cfgNo := DefaultConfig()
	cfgNo.MinStrength = 0
	plain := New(cfgNo, nil, nil).Synthesize(context.Background(), recs, nil, testInfo())
	halved := s.Synthesize(context.Background(), recs, nil, testInfo())
	if plain == nil || halved == nil {
		t.Fatalf("expected proposals")
	}
	if halved.Strength > plain.Strength/2+1e-9 {
		t.Fatalf("expected halved strength: %v vs %v", halved.Strength, plain.Strength)
	}
	if halved.Direction != plain.Direction {
		t.Fatalf("penalty must not flip direction")
	}
}

func TestStopLossGuardrails(t *testing.T) {
	s := New(DefaultConfig(), nil, nil)
	fs := risingFeatures(150, 0.01, 0.001)
	info := testInfo()
	info.MinStopDistance = 0.05 // dominates
	p := s.Synthesize(context.Background(), fs, nil, info)
	if p == nil {
		t.Fatalf("expected proposal")
	}
	dist := p.Entry - p.StopLoss
	want := info.MinStopDistance * slVenueMinMult
	if dist < want-1e-9 {
		t.Fatalf("SL distance %v below venue guardrail %v", dist, want)
	}
}
