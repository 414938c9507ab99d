package features

import (
	"math"

	"TradePilot/internal/domain/models"
)

// epsilon guards divisions where average loss or total volume is zero.
const epsilon = 1e-10

// Config holds indicator periods for the analyzer.
type Config struct {
	MinRecords     int // window size required before features are valid
	EMAFastPeriod  int
	EMASlowPeriod  int
	RSIPeriod      int
	ATRPeriod      int
	MomentumPeriod int
}

// DefaultConfig returns the standard indicator periods.
func DefaultConfig() Config {
	return Config{
		MinRecords:     100,
		EMAFastPeriod:  12,
		EMASlowPeriod:  26,
		RSIPeriod:      14,
		ATRPeriod:      14,
		MomentumPeriod: 10,
	}
}

// Analyzer converts a bounded window of market records into a feature
// set. It holds no mutable state; Analyze is a pure function of its
// input and is safe to share between the live path and the backtester.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer creates an analyzer, filling zero config fields with
// defaults.
func NewAnalyzer(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.MinRecords <= 0 {
		cfg.MinRecords = def.MinRecords
	}
	if cfg.EMAFastPeriod <= 0 {
		cfg.EMAFastPeriod = def.EMAFastPeriod
	}
	if cfg.EMASlowPeriod <= 0 {
		cfg.EMASlowPeriod = def.EMASlowPeriod
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = def.RSIPeriod
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = def.ATRPeriod
	}
	if cfg.MomentumPeriod <= 0 {
		cfg.MomentumPeriod = def.MomentumPeriod
	}
	return &Analyzer{cfg: cfg}
}

// Analyze computes the feature set for a window of records. Fewer
// records than the configured minimum yield an invalid set and no
// downstream call. Indicators that cannot be computed on the available
// data degrade to defined neutral values instead of erroring.
func (a *Analyzer) Analyze(records []models.MarketRecord) models.FeatureSet {
	fs := models.FeatureSet{Records: len(records), RSI: models.NeutralRSI}
	if len(records) < a.cfg.MinRecords {
		return fs
	}

	last := records[len(records)-1]
	fs.Symbol = last.Symbol
	fs.Timestamp = last.Timestamp
	fs.Valid = true
	fs.LastPrice = last.Last
	fs.MidPrice = last.Mid()

	prices := make([]float64, len(records))
	spreads := make([]float64, len(records))
	for i, r := range records {
		prices[i] = r.Mid()
		spreads[i] = r.Spread
	}

	fs.SpreadMean, fs.SpreadStdDev = meanStdDev(spreads)
	fs.Velocity = (prices[len(prices)-1] - prices[0]) / float64(len(prices))
	fs.OrderFlowDelta, fs.CumulativeDelta, fs.Imbalance = orderFlow(records)
	fs.Volatility = diffStdDev(prices)
	fs.EMAFast = ema(prices, a.cfg.EMAFastPeriod)
	fs.EMASlow = ema(prices, a.cfg.EMASlowPeriod)
	fs.RSI = rsi(prices, a.cfg.RSIPeriod)
	fs.ATR = atr(prices, a.cfg.ATRPeriod)
	fs.Momentum = momentum(prices, a.cfg.MomentumPeriod)
	return fs
}

// AnalyzeBars adapts historical bars onto the record path so the
// backtester reuses the exact same feature math as live trading. Bars
// carry no book, so bid and ask collapse onto the close.
func (a *Analyzer) AnalyzeBars(bars []models.Bar) models.FeatureSet {
	records := make([]models.MarketRecord, len(bars))
	for i, b := range bars {
		records[i] = models.MarketRecord{
			Symbol:    b.Symbol,
			Timestamp: b.Timestamp,
			Bid:       b.Close,
			Ask:       b.Close,
			Last:      b.Close,
			Volume:    b.Volume,
		}
	}
	return a.Analyze(records)
}

// orderFlow infers aggressor side per record: price up means buy
// volume, price down means sell volume, ties broken by last trade price
// versus mid.
func orderFlow(records []models.MarketRecord) (delta, cumulative, imbalance float64) {
	var buyVol, sellVol float64
	for i := 1; i < len(records); i++ {
		cur, prev := records[i], records[i-1]
		switch {
		case cur.Mid() > prev.Mid():
			buyVol += cur.Volume
		case cur.Mid() < prev.Mid():
			sellVol += cur.Volume
		case cur.Last > cur.Mid():
			buyVol += cur.Volume
		case cur.Last < cur.Mid():
			sellVol += cur.Volume
		}
	}
	delta = buyVol - sellVol
	cumulative = delta
	total := buyVol + sellVol
	imbalance = delta / math.Max(total, epsilon)
	if total == 0 {
		imbalance = 0
	}
	return delta, cumulative, imbalance
}

func meanStdDev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var varsum float64
	for _, x := range xs {
		d := x - mean
		varsum += d * d
	}
	return mean, math.Sqrt(varsum / float64(len(xs)))
}

// diffStdDev is the standard deviation of consecutive price diffs.
func diffStdDev(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	diffs := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		diffs = append(diffs, prices[i]-prices[i-1])
	}
	_, sd := meanStdDev(diffs)
	return sd
}

// ema seeds from a simple average of the first period values, then
// applies the standard smoothing factor 2/(n+1).
func ema(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if len(prices) < period {
		m, _ := meanStdDev(prices)
		return m
	}
	var seed float64
	for _, p := range prices[:period] {
		seed += p
	}
	out := seed / float64(period)
	k := 2.0 / (float64(period) + 1)
	for _, p := range prices[period:] {
		out = p*k + out*(1-k)
	}
	return out
}

// rsi uses average gain / average loss over the period with an epsilon
// guard against zero-loss division. Always within [0, 100].
func rsi(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return models.NeutralRSI
	}
	var gain, loss float64
	for i := len(prices) - period; i < len(prices); i++ {
		d := prices[i] - prices[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	rs := avgGain / math.Max(avgLoss, epsilon)
	v := 100 - 100/(1+rs)
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return v
}

// atr over tick records is the mean absolute price change per period.
// Bars collapse to the same definition through AnalyzeBars, keeping the
// live and replay paths on one formula.
func atr(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 0
	}
	var sum float64
	for i := len(prices) - period; i < len(prices); i++ {
		sum += math.Abs(prices[i] - prices[i-1])
	}
	return sum / float64(period)
}

func momentum(prices []float64, period int) float64 {
	if len(prices) < period+1 {
		return 0
	}
	return prices[len(prices)-1] - prices[len(prices)-1-period]
}
