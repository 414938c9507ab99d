package backtest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"TradePilot/internal/domain/models"
	domsvc "TradePilot/internal/domain/service"
	"TradePilot/internal/features"
	"TradePilot/internal/risk"
	"TradePilot/internal/signal"
	xlogger "TradePilot/pkg/logger"
)

// ErrCancelled is returned when a run was aborted mid-replay. A
// cancelled run produces no statistics; callers must treat it as
// distinct from a completed run.
var ErrCancelled = errors.New("backtest cancelled")

// defaultWarmup is the number of bars consumed before any trading.
const defaultWarmup = 50

// Config drives one simulated run.
type Config struct {
	Symbol         string
	InitialBalance float64
	WarmupBars     int     // 0 means the 50-bar default
	Slippage       float64 // price units, applied in the unfavorable direction
	Commission     float64 // account currency, charged once on entry and once on exit

	FloatingLossLimit    float64 // account currency; 0 disables
	FloatingProfitTarget float64
	MaxTradeBars         int // 0 disables

	Info     models.SymbolInfo // venue contract terms for the simulated fills
	Analyzer features.Config
	Signal   signal.Config
	Limits   risk.Limits
}

// Backtester replays the live decision chain over historical bars with
// a simulated fill model. It is single-threaded relative to its own
// feed; Cancel and the progress callback are safe to use from another
// goroutine.
type Backtester struct {
	cfg      Config
	analyzer *features.Analyzer
	synth    *signal.Synthesizer
	pred     *recordingPredictor
	logger   *xlogger.Logger

	cancelled atomic.Bool
	progress  func(models.BacktestProgress)
	runID     string

	agreeHits  int
	agreeTotal int
	confSum    float64
}

// New builds a backtester. predictor may be nil; when supplied, ML
// arbitration runs exactly as live and agreement statistics are kept.
func New(cfg Config, predictor domsvc.Predictor, logger *xlogger.Logger) *Backtester {
	if cfg.WarmupBars <= 0 {
		cfg.WarmupBars = defaultWarmup
	}
	if cfg.Info.ContractSize <= 0 {
		cfg.Info.ContractSize = cfg.Limits.ContractSize
	}
	b := &Backtester{cfg: cfg, analyzer: features.NewAnalyzer(cfg.Analyzer), logger: logger}
	if predictor != nil {
		b.pred = &recordingPredictor{inner: predictor}
	}
	var synthPred domsvc.Predictor
	if b.pred != nil {
		synthPred = b.pred
	}
	b.synth = signal.New(cfg.Signal, synthPred, logger)
	return b
}

// OnProgress registers a callback invoked with monotonically increasing
// Done counts. The callback runs on the replay goroutine.
func (b *Backtester) OnProgress(id string, fn func(models.BacktestProgress)) {
	b.runID = id
	b.progress = fn
}

// Cancel aborts the run at the next bar boundary.
func (b *Backtester) Cancel() { b.cancelled.Store(true) }

type simPosition struct {
	direction models.Direction
	volume    float64
	entry     float64
	stopLoss  float64
	takeProf  float64
	openBar   int
	openTime  time.Time
}

// Run replays the decision chain over bars. Too few bars for the
// warm-up yields a defined zero-valued result, never an error.
func (b *Backtester) Run(ctx context.Context, bars []models.Bar) (*models.BacktestResult, error) {
	started := time.Now()

	// The gate's day rollover follows simulated time, so daily limits
	// reset at bar-timestamp day boundaries rather than wall-clock ones.
	var simNow time.Time
	gate := risk.NewGate(b.cfg.Limits, time.UTC, risk.WithClock(func() time.Time { return simNow }))

	result := &models.BacktestResult{
		Symbol:       b.cfg.Symbol,
		Bars:         len(bars),
		FinalBalance: b.cfg.InitialBalance,
		StartedAt:    started,
	}

	balance := b.cfg.InitialBalance
	var pos *simPosition
	var trades []models.TradeRecord
	equity := make([]float64, 0, len(bars))
	windowSize := b.analyzerWindow()

	for i := range bars {
		if b.cancelled.Load() {
			return nil, ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return nil, ErrCancelled
		}
		b.report(i+1, len(bars))

		bar := bars[i]
		simNow = bar.Timestamp
		floating := 0.0
		if pos != nil {
			floating = b.floatingPnL(pos, bar.Close)
		}
		equity = append(equity, balance+floating)

		if i < b.cfg.WarmupBars {
			continue
		}

		// exits are evaluated against this bar's close only
		if pos != nil {
			if reason := b.exitReason(pos, bar, i, floating); reason != "" {
				rec := b.close(pos, bar, reason)
				balance += rec.Profit
				gate.OnTradeClosed("backtest", rec.Profit)
				trades = append(trades, rec)
				pos = nil
			}
			continue
		}

		lo := i - windowSize + 1
		if lo < 0 {
			lo = 0
		}
		fs := b.analyzer.AnalyzeBars(bars[lo : i+1])
		if !fs.Valid {
			continue
		}

		proposal := b.synth.Synthesize(ctx, fs, nil, b.cfg.Info)
		b.trackPrediction(bars, i)
		if proposal == nil || proposal.Direction == models.DirectionClose {
			continue
		}
		allowed, _ := gate.Validate("backtest", *proposal, risk.AccountSnapshot{
			Balance: balance, Equity: balance})
		if !allowed {
			continue
		}
		volume := gate.CalculatePositionSize(balance, proposal.Entry, proposal.StopLoss, proposal.Strength)
		if volume <= 0 {
			continue
		}

		fill := bar.Close + b.cfg.Slippage
		stop := proposal.StopLoss
		take := proposal.TakeProfit
		if proposal.Direction == models.DirectionSell {
			fill = bar.Close - b.cfg.Slippage
		}
		pos = &simPosition{
			direction: proposal.Direction,
			volume:    volume,
			entry:     fill,
			stopLoss:  stop,
			takeProf:  take,
			openBar:   i,
			openTime:  bar.Timestamp,
		}
		gate.OnOrderSubmitted("backtest", volume)
	}

	// a position still open at the end is closed on the last bar
	if pos != nil && len(bars) > 0 {
		rec := b.close(pos, bars[len(bars)-1], "end_of_data")
		balance += rec.Profit
		trades = append(trades, rec)
		equity = append(equity, balance)
	}

	b.summarize(result, trades, equity, balance)
	result.FinishedAt = time.Now()
	return result, nil
}

func (b *Backtester) analyzerWindow() int {
	n := b.cfg.Analyzer.MinRecords
	if n <= 0 {
		n = features.DefaultConfig().MinRecords
	}
	return n
}

func (b *Backtester) floatingPnL(p *simPosition, price float64) float64 {
	if p.direction == models.DirectionSell {
		return (p.entry - price) * p.volume * b.cfg.Info.ContractSize
	}
	return (price - p.entry) * p.volume * b.cfg.Info.ContractSize
}

// exitReason evaluates stop, target and risk exits at the bar close.
func (b *Backtester) exitReason(p *simPosition, bar models.Bar, i int, floating float64) string {
	if p.stopLoss > 0 {
		if (p.direction == models.DirectionBuy && bar.Close <= p.stopLoss) ||
			(p.direction == models.DirectionSell && bar.Close >= p.stopLoss) {
			return "stop_loss"
		}
	}
	if p.takeProf > 0 {
		if (p.direction == models.DirectionBuy && bar.Close >= p.takeProf) ||
			(p.direction == models.DirectionSell && bar.Close <= p.takeProf) {
			return "take_profit"
		}
	}
	if b.cfg.FloatingLossLimit > 0 && floating <= -b.cfg.FloatingLossLimit {
		return "floating_loss"
	}
	if b.cfg.FloatingProfitTarget > 0 && floating >= b.cfg.FloatingProfitTarget {
		return "floating_profit"
	}
	if b.cfg.MaxTradeBars > 0 && i-p.openBar >= b.cfg.MaxTradeBars {
		return "max_duration"
	}
	return ""
}

// close fills at the bar close shifted against the position and charges
// commission for both sides of the round trip.
func (b *Backtester) close(p *simPosition, bar models.Bar, reason string) models.TradeRecord {
	exit := bar.Close - b.cfg.Slippage
	if p.direction == models.DirectionSell {
		exit = bar.Close + b.cfg.Slippage
	}
	profit := b.floatingPnL(p, exit) - 2*b.cfg.Commission
	return models.TradeRecord{
		BotID:      "backtest",
		Symbol:     b.cfg.Symbol,
		Direction:  p.direction,
		Volume:     p.volume,
		EntryPrice: p.entry,
		ExitPrice:  exit,
		Profit:     profit,
		OpenTime:   p.openTime,
		CloseTime:  bar.Timestamp,
		Reason:     reason,
	}
}

func (b *Backtester) report(done, total int) {
	if b.progress == nil {
		return
	}
	b.progress(models.BacktestProgress{RunID: b.runID, Done: done, Total: total})
}

// recordingPredictor watches the predictions the synthesizer consumes
// so agreement statistics do not require a second model call per bar.
type recordingPredictor struct {
	inner domsvc.Predictor

	mu      sync.Mutex
	last    *models.Prediction
	history []models.Prediction
}

func (r *recordingPredictor) IsReady() bool { return r.inner.IsReady() }

func (r *recordingPredictor) Predict(ctx context.Context, fs models.FeatureSet) (models.Prediction, error) {
	p, err := r.inner.Predict(ctx, fs)
	r.mu.Lock()
	if err == nil {
		cp := p
		r.last = &cp
		r.history = append(r.history, p)
	} else {
		r.last = nil
	}
	r.mu.Unlock()
	return p, err
}

func (r *recordingPredictor) take() *models.Prediction {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.last
	r.last = nil
	return p
}

// trackPrediction scores the cycle's prediction, if any, against the
// next bar's close direction.
func (b *Backtester) trackPrediction(bars []models.Bar, i int) {
	if b.pred == nil || i+1 >= len(bars) {
		return
	}
	p := b.pred.take()
	if p == nil || p.Direction == models.DirectionNone {
		return
	}
	up := bars[i+1].Close > bars[i].Close
	agreed := (up && p.Direction == models.DirectionBuy) || (!up && p.Direction == models.DirectionSell)
	b.agreeTotal++
	if agreed {
		b.agreeHits++
	}
	b.confSum += p.Confidence
}
