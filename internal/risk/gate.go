package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	"TradePilot/pkg/util"
	xlogger "TradePilot/pkg/logger"
)

// target-profit pauses resume at this local hour on a later calendar
// date, tied to the session open rather than midnight rollover.
const resumeHour = 6

// Limits defines static risk controls for one bot identity.
type Limits struct {
	DailyLossLimit    float64 // account currency, positive number
	DailyTradeLimit   int
	DailyVolumeLimit  float64 // lots
	MaxOpenPositions  int
	MinVolume         float64 // lot bounds for a single order
	MaxVolume         float64
	FloatingLossLimit float64 // account currency, positive number
	DrawdownLimit     float64 // percent of peak balance
	DailyProfitTarget float64 // account currency; 0 disables the pause

	RiskFraction    float64 // balance fraction risked per trade
	ContractSize    float64 // units per lot for sizing
	MinLot          float64
	MaxPositionSize float64 // lots
	LotStep         float64
}

// DefaultLimits returns conservative production settings.
func DefaultLimits() Limits {
	return Limits{
		DailyLossLimit:    40,
		DailyTradeLimit:   20,
		DailyVolumeLimit:  5,
		MaxOpenPositions:  1,
		MinVolume:         0.01,
		MaxVolume:         1,
		FloatingLossLimit: 25,
		DrawdownLimit:     10,
		DailyProfitTarget: 0,
		RiskFraction:      0.01,
		ContractSize:      100000,
		MinLot:            0.01,
		MaxPositionSize:   1,
		LotStep:           0.01,
	}
}

// AccountSnapshot is the account view a validation runs against.
type AccountSnapshot struct {
	Balance       float64
	Equity        float64
	FloatingPnL   float64
	OpenPositions int
}

// Gate is the sole authority turning a proposal into an order. It owns
// per-bot daily counters, drives the circuit-breaker state machine and
// computes position sizing. All methods are safe for concurrent use;
// exported snapshots are copies.
type Gate struct {
	mu      sync.Mutex
	limits  Limits
	loc     *time.Location
	now     func() time.Time
	states  map[string]*models.RiskState
	metrics domrepo.Metrics
	logger  *xlogger.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock injects a clock, used by tests to cross day boundaries.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithMetrics attaches a telemetry recorder.
func WithMetrics(m domrepo.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(l *xlogger.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// NewGate creates a gate with the given limits. loc is the local
// timezone for calendar-date rollover; nil means time.Local.
func NewGate(limits Limits, loc *time.Location, opts ...Option) *Gate {
	if loc == nil {
		loc = time.Local
	}
	g := &Gate{
		limits: limits,
		loc:    loc,
		now:    time.Now,
		states: make(map[string]*models.RiskState),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// state returns the bot's state, creating and seeding it on first use.
// Callers hold g.mu.
func (g *Gate) state(botID string, balance float64) *models.RiskState {
	s, ok := g.states[botID]
	if !ok {
		s = &models.RiskState{
			BotID:       botID,
			Date:        util.StartOfDay(g.loc, g.now()),
			PeakBalance: balance,
		}
		g.states[botID] = s
	}
	return s
}

// rollover resets daily state when the local calendar date has changed
// since the counters were last anchored. The peak is reseeded from the
// current balance, not zero. The target-profit pause is cleared
// separately: only at or after the resume hour on a later date.
// Callers hold g.mu.
func (g *Gate) rollover(s *models.RiskState, balance float64) {
	now := g.now()
	if !util.SameLocalDay(g.loc, s.Date, now) {
		s.Date = util.StartOfDay(g.loc, now)
		s.DailyPnL = 0
		s.DailyTrades = 0
		s.DailyVolume = 0
		s.PeakBalance = balance
		s.Drawdown = 0
		s.MaxDrawdownToday = 0
		s.CircuitBroken = false
		s.CircuitReason = ""
		if g.logger != nil {
			g.logger.Info("risk state rolled over", xlogger.String("bot", s.BotID))
		}
	}
	if s.TargetPaused && util.LaterLocalDay(g.loc, s.PausedDate, now) && now.In(g.loc).Hour() >= resumeHour {
		s.TargetPaused = false
		s.PausedDate = time.Time{}
		if g.logger != nil {
			g.logger.Info("target-profit pause resumed", xlogger.String("bot", s.BotID))
		}
	}
}

// updateDrawdown refreshes peak balance and drawdown figures.
// Drawdown is never negative and the daily max never decreases within
// a day. Callers hold g.mu.
func (g *Gate) updateDrawdown(s *models.RiskState, balance float64) {
	if balance > s.PeakBalance {
		s.PeakBalance = balance
	}
	if s.PeakBalance > 0 {
		s.Drawdown = math.Max(0, (s.PeakBalance-balance)/s.PeakBalance*100)
	} else {
		s.Drawdown = 0
	}
	if s.Drawdown > s.MaxDrawdownToday {
		s.MaxDrawdownToday = s.Drawdown
	}
}

func (g *Gate) trip(s *models.RiskState, reason string) {
	s.CircuitBroken = true
	s.CircuitReason = reason
	if g.logger != nil {
		g.logger.Warn("circuit breaker tripped",
			xlogger.String("bot", s.BotID), xlogger.String("reason", reason))
	}
	if g.metrics != nil {
		g.metrics.RecordError("circuit_tripped")
	}
}

// TripManually opens the circuit for a bot until the next date rollover.
func (g *Gate) TripManually(botID, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trip(g.state(botID, 0), "Manual: "+reason)
}

// Validate runs the layered checks in order, short-circuiting on the
// first failure. It returns whether the proposal may proceed and a
// human-readable reason when it may not. A block is a terminal
// decision, not an error.
func (g *Gate) Validate(botID string, p models.SignalProposal, acct AccountSnapshot) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.state(botID, acct.Balance)
	g.rollover(s, acct.Balance)

	// closing reduces exposure and is never blocked by entry limits
	if p.Direction == models.DirectionClose {
		return true, ""
	}

	// target-profit pause considers realized plus floating PnL
	if g.limits.DailyProfitTarget > 0 && !s.TargetPaused &&
		s.DailyPnL+acct.FloatingPnL >= g.limits.DailyProfitTarget {
		s.TargetPaused = true
		s.PausedDate = util.StartOfDay(g.loc, g.now())
		if g.logger != nil {
			g.logger.Info("daily profit target reached, pausing entries",
				xlogger.String("bot", botID))
		}
	}

	if s.CircuitBroken {
		return g.block("circuit", fmt.Sprintf("Circuit breaker active: %s", s.CircuitReason))
	}
	if s.TargetPaused {
		return g.block("target_pause", "Daily profit target reached, entries paused")
	}
	if g.limits.DailyLossLimit > 0 && s.DailyPnL <= -g.limits.DailyLossLimit {
		g.trip(s, fmt.Sprintf("Daily loss limit reached: %.2f", s.DailyPnL))
		return g.block("daily_loss", s.CircuitReason)
	}
	if g.limits.DailyTradeLimit > 0 && s.DailyTrades >= g.limits.DailyTradeLimit {
		return g.block("trade_count", fmt.Sprintf("Daily trade limit reached: %d", s.DailyTrades))
	}
	if g.limits.DailyVolumeLimit > 0 && s.DailyVolume >= g.limits.DailyVolumeLimit {
		return g.block("daily_volume", fmt.Sprintf("Daily volume limit reached: %.2f lots", s.DailyVolume))
	}
	if g.limits.MaxOpenPositions > 0 && acct.OpenPositions >= g.limits.MaxOpenPositions {
		return g.block("open_positions", fmt.Sprintf("Open position limit reached: %d", acct.OpenPositions))
	}
	if p.Volume > 0 {
		if p.Volume < g.limits.MinVolume {
			return g.block("volume_bounds", fmt.Sprintf("Volume %.2f below minimum %.2f", p.Volume, g.limits.MinVolume))
		}
		if g.limits.MaxVolume > 0 && p.Volume > g.limits.MaxVolume {
			return g.block("volume_bounds", fmt.Sprintf("Volume %.2f above maximum %.2f", p.Volume, g.limits.MaxVolume))
		}
	}
	if g.limits.FloatingLossLimit > 0 && acct.FloatingPnL <= -g.limits.FloatingLossLimit {
		return g.block("floating_loss", fmt.Sprintf("Floating loss limit reached: %.2f", acct.FloatingPnL))
	}
	g.updateDrawdown(s, acct.Balance)
	if g.limits.DrawdownLimit > 0 && s.Drawdown >= g.limits.DrawdownLimit {
		g.trip(s, fmt.Sprintf("Drawdown limit reached: %.2f%%", s.Drawdown))
		return g.block("drawdown", s.CircuitReason)
	}
	return true, ""
}

func (g *Gate) block(kind, reason string) (bool, string) {
	if g.metrics != nil {
		g.metrics.RecordRiskBlock(kind)
	}
	return false, reason
}

// GetRiskMetrics rolls daily state over, refreshes drawdown from the
// current balance and returns a copy-on-read snapshot. Calling it twice
// with unchanged inputs in the same instant yields identical output.
func (g *Gate) GetRiskMetrics(botID string, acct AccountSnapshot) models.RiskMetrics {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.state(botID, acct.Balance)
	g.rollover(s, acct.Balance)
	g.updateDrawdown(s, acct.Balance)
	if g.limits.DrawdownLimit > 0 && s.Drawdown >= g.limits.DrawdownLimit && !s.CircuitBroken {
		g.trip(s, fmt.Sprintf("Drawdown limit reached: %.2f%%", s.Drawdown))
	}

	m := models.RiskMetrics{
		BotID:            botID,
		Timestamp:        g.now(),
		Balance:          acct.Balance,
		Equity:           acct.Equity,
		DailyPnL:         s.DailyPnL,
		DailyTrades:      s.DailyTrades,
		DailyVolume:      s.DailyVolume,
		PeakBalance:      s.PeakBalance,
		Drawdown:         s.Drawdown,
		MaxDrawdownToday: s.MaxDrawdownToday,
		OpenPositions:    acct.OpenPositions,
		State:            s.State(),
		BreakerReason:    s.CircuitReason,
	}
	m.Level = g.level(s)
	if g.metrics != nil {
		g.metrics.RecordEquity(botID, acct.Equity)
		g.metrics.RecordDrawdown(botID, s.Drawdown)
	}
	return m
}

// level maps drawdown and daily-loss ratios to a risk level. A broken
// circuit is always CRITICAL. Callers hold g.mu.
func (g *Gate) level(s *models.RiskState) models.RiskLevel {
	if s.CircuitBroken {
		return models.RiskCritical
	}
	var ratio float64
	if g.limits.DrawdownLimit > 0 {
		ratio = s.Drawdown / g.limits.DrawdownLimit
	}
	if g.limits.DailyLossLimit > 0 && s.DailyPnL < 0 {
		ratio = math.Max(ratio, -s.DailyPnL/g.limits.DailyLossLimit)
	}
	switch {
	case ratio >= 1:
		return models.RiskCritical
	case ratio >= 0.75:
		return models.RiskHigh
	case ratio >= 0.4:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// CalculatePositionSize derives order volume from the balance fraction
// at risk and the stop distance, scales it by confidence, clamps it to
// the lot bounds and rounds down to the lot step.
func (g *Gate) CalculatePositionSize(balance, entry, stopLoss, confidence float64) float64 {
	dist := math.Abs(entry - stopLoss)
	if dist <= 0 || balance <= 0 || g.limits.ContractSize <= 0 {
		return 0
	}
	vol := balance * g.limits.RiskFraction / (dist * g.limits.ContractSize)
	if confidence > 0 {
		vol *= confidence
	}
	if g.limits.MaxPositionSize > 0 && vol > g.limits.MaxPositionSize {
		vol = g.limits.MaxPositionSize
	}
	if vol < g.limits.MinLot {
		vol = g.limits.MinLot
	}
	if g.limits.LotStep > 0 {
		// small bias keeps exact multiples from flooring a step down
		vol = math.Floor(vol/g.limits.LotStep+1e-9) * g.limits.LotStep
		if vol < g.limits.MinLot {
			vol = g.limits.MinLot
		}
	}
	return vol
}

// OnTradeClosed folds a realized result into the bot's daily PnL.
// Volume was already counted when the entry was submitted.
func (g *Gate) OnTradeClosed(botID string, profit float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.state(botID, 0)
	s.DailyPnL += profit
}

// OnOrderSubmitted counts an accepted entry against the daily limits.
func (g *Gate) OnOrderSubmitted(botID string, volume float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.state(botID, 0)
	s.DailyTrades++
	s.DailyVolume += volume
}

// SeedDailyVolume restores today's traded volume from the ledger after
// a restart. Best effort; never overrides a larger live counter.
func (g *Gate) SeedDailyVolume(botID string, volume float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.state(botID, 0)
	if volume > s.DailyVolume {
		s.DailyVolume = volume
	}
}

// Snapshot returns a copy of the bot's current risk state.
func (g *Gate) Snapshot(botID string) models.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.state(botID, 0)
}
