package backtest

import (
	"math"

	"TradePilot/internal/domain/models"
)

// summarize fills the result block from the trade log and the per-bar
// equity curve. A run with zero trades yields zero-valued statistics.
func (b *Backtester) summarize(r *models.BacktestResult, trades []models.TradeRecord, equity []float64, balance float64) {
	r.Trades = len(trades)
	r.TradeLog = trades
	r.FinalBalance = balance
	r.NetProfit = balance - b.cfg.InitialBalance

	for _, t := range trades {
		if t.Profit >= 0 {
			r.Wins++
			r.GrossProfit += t.Profit
		} else {
			r.Losses++
			r.GrossLoss += -t.Profit
		}
	}
	if r.Trades > 0 {
		r.WinRate = float64(r.Wins) / float64(r.Trades) * 100
	}
	r.ProfitFactor = profitFactor(r.GrossProfit, r.GrossLoss, r.Trades)
	r.MaxDrawdown = maxDrawdown(equity)
	r.Sharpe = sharpe(equity)
	r.Sortino = sortino(equity)
	if r.MaxDrawdown > 0 {
		r.Calmar = (r.NetProfit / b.cfg.InitialBalance * 100) / r.MaxDrawdown
	}

	if b.agreeTotal > 0 {
		r.MLPredictions = b.agreeTotal
		r.MLAgreementRate = float64(b.agreeHits) / float64(b.agreeTotal) * 100
		r.MLAvgConfidence = b.confSum / float64(b.agreeTotal)
	}
}

// profitFactor follows the usual reporting conventions: no trades is 0,
// profit without any loss is +Inf.
func profitFactor(grossProfit, grossLoss float64, trades int) float64 {
	if trades == 0 {
		return 0
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// maxDrawdown is the largest peak-to-trough decline of the equity
// curve, in percent of the peak.
func maxDrawdown(equity []float64) float64 {
	peak, worst := math.Inf(-1), 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := (peak - e) / peak * 100; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func returns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		out = append(out, (equity[i]-equity[i-1])/equity[i-1])
	}
	return out
}

// sharpe is the mean over the standard deviation of per-bar returns,
// without annualization.
func sharpe(equity []float64) float64 {
	rs := returns(equity)
	if len(rs) < 2 {
		return 0
	}
	mean, sd := meanStdDev(rs)
	if sd == 0 {
		return 0
	}
	return mean / sd
}

// sortino penalizes downside deviation only.
func sortino(equity []float64) float64 {
	rs := returns(equity)
	if len(rs) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rs {
		mean += r
	}
	mean /= float64(len(rs))

	downSq, n := 0.0, 0
	for _, r := range rs {
		if r < 0 {
			downSq += r * r
			n++
		}
	}
	if n == 0 {
		if mean > 0 {
			return math.Inf(1)
		}
		return 0
	}
	dd := math.Sqrt(downSq / float64(len(rs)))
	if dd == 0 {
		return 0
	}
	return mean / dd
}

func meanStdDev(xs []float64) (float64, float64) {
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	varSum := 0.0
	for _, x := range xs {
		d := x - mean
		varSum += d * d
	}
	return mean, math.Sqrt(varSum / float64(len(xs)))
}
