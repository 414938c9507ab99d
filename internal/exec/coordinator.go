package exec

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	"TradePilot/internal/risk"
	xlogger "TradePilot/pkg/logger"
)

// Close reasons recorded on TradeRecords.
const (
	ReasonSignalClose    = "signal_close"
	ReasonFloatingLoss   = "floating_loss"
	ReasonFloatingProfit = "floating_profit"
	ReasonDailyTarget    = "daily_target"
	ReasonSessionEnd     = "session_end"
	ReasonMaxDuration    = "max_duration"
)

// Config holds execution settings for one bot on one symbol.
type Config struct {
	BotID  string
	Symbol string

	// proposals inside this interval of the last submission are dropped
	// regardless of strength
	Cooldown time.Duration

	FloatingLossLimit    float64 // account currency, positive; 0 disables
	FloatingProfitTarget float64
	DailyProfitTarget    float64
	MaxTradeDuration     time.Duration
	SessionEndHour       int // local hour; 0 disables

	VenueTimeout time.Duration
}

// Coordinator owns the position lifecycle for one (bot, symbol) pair:
// FLAT -> OPEN -> FLAT, with a transient CLOSING while a close order is
// in flight. It submits approved proposals to the venue and reconciles
// local state against venue truth.
type Coordinator struct {
	cfg      Config
	venue    domrepo.Venue
	gate     *risk.Gate
	ledger   domrepo.TradeLedger
	notifier domrepo.Notifier
	metrics  domrepo.Metrics
	logger   *xlogger.Logger
	now      func() time.Time

	mu         sync.Mutex
	state      models.PositionState
	position   *models.Position
	lastSubmit time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a coordinator in the FLAT state.
func New(cfg Config, venue domrepo.Venue, gate *risk.Gate, ledger domrepo.TradeLedger,
	notifier domrepo.Notifier, metrics domrepo.Metrics, logger *xlogger.Logger, opts ...Option) *Coordinator {
	if cfg.VenueTimeout <= 0 {
		cfg.VenueTimeout = 3 * time.Second
	}
	c := &Coordinator{
		cfg:      cfg,
		venue:    venue,
		gate:     gate,
		ledger:   ledger,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
		state:    models.PositionFlat,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() models.PositionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Position returns a copy of the open position, or nil when flat.
func (c *Coordinator) Position() *models.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.position == nil {
		return nil
	}
	p := *c.position
	return &p
}

// HandleProposal drives the lifecycle from an approved-synthesis
// proposal. It returns a human-readable reason when the proposal was
// not acted on; a dropped or blocked proposal is not an error.
func (c *Coordinator) HandleProposal(ctx context.Context, p *models.SignalProposal) (string, error) {
	if p == nil {
		return "no proposal", nil
	}

	c.mu.Lock()
	if !c.lastSubmit.IsZero() && c.cfg.Cooldown > 0 && c.now().Sub(c.lastSubmit) < c.cfg.Cooldown {
		c.mu.Unlock()
		return "cooldown active", nil
	}
	state := c.state
	c.mu.Unlock()

	switch {
	case p.Direction == models.DirectionClose && state == models.PositionOpen:
		return c.closePosition(ctx, ReasonSignalClose)
	case p.Direction == models.DirectionClose:
		return "nothing to close", nil
	case state != models.PositionFlat:
		return "position already open", nil
	default:
		return c.openPosition(ctx, p)
	}
}

// openPosition validates against the gate, sizes the order and submits
// it. Any venue rejection keeps the state FLAT and surfaces the reason;
// there is no automatic retry since a blind retry risks duplicate fills.
func (c *Coordinator) openPosition(ctx context.Context, p *models.SignalProposal) (string, error) {
	vctx, cancel := context.WithTimeout(ctx, c.cfg.VenueTimeout)
	defer cancel()

	acct, err := c.venue.GetAccountInfo(vctx)
	if err != nil || acct == nil {
		c.recordError("account_info")
		return "account info unavailable", nil
	}
	info, err := c.venue.GetSymbolInfo(vctx, p.Symbol)
	if err != nil || info == nil {
		c.recordError("symbol_info")
		return "symbol info unavailable", nil
	}

	floating := c.floatingPnL(p.Entry, info.ContractSize)
	allowed, reason := c.gate.Validate(c.cfg.BotID, *p, risk.AccountSnapshot{
		Balance:       acct.Balance,
		Equity:        acct.Equity,
		FloatingPnL:   floating,
		OpenPositions: c.openCount(),
	})
	if !allowed {
		return reason, nil
	}

	// the venue minimum stop distance is enforced by rejection, never by
	// silently widening the stop
	dist := math.Abs(p.Entry - p.StopLoss)
	if p.StopLoss > 0 && info.MinStopDistance > 0 && dist < info.MinStopDistance {
		c.recordOrder("rejected")
		return fmt.Sprintf("stop distance %.5f below venue minimum %.5f", dist, info.MinStopDistance), nil
	}

	volume := c.gate.CalculatePositionSize(acct.Balance, p.Entry, p.StopLoss, p.Strength)
	if volume <= 0 {
		return "computed volume is zero", nil
	}

	req := models.OrderRequest{
		BotID:      c.cfg.BotID,
		Symbol:     p.Symbol,
		Direction:  p.Direction,
		Volume:     volume,
		Price:      p.Entry,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Comment:    fmt.Sprintf("strength=%.2f", p.Strength),
	}

	res, err := c.venue.SubmitOrder(vctx, req)
	if err != nil {
		c.recordError("submit")
		return "", fmt.Errorf("submit order: %w", err)
	}
	if res == nil || !res.Success {
		c.recordOrder("rejected")
		reason := "venue rejected order"
		if res != nil && res.Reason != "" {
			reason = fmt.Sprintf("venue rejected order: %s (code %d)", res.Reason, res.ErrorCode)
		}
		if c.logger != nil {
			c.logger.Warn("order rejected", xlogger.String("symbol", p.Symbol), xlogger.String("reason", reason))
		}
		return reason, nil
	}

	pos := models.Position{
		BotID:      c.cfg.BotID,
		Symbol:     p.Symbol,
		Direction:  p.Direction,
		Volume:     volume,
		EntryPrice: res.FilledPrice,
		OpenTime:   c.now(),
	}

	c.mu.Lock()
	c.state = models.PositionOpen
	c.position = &pos
	c.lastSubmit = c.now()
	c.mu.Unlock()

	c.gate.OnOrderSubmitted(c.cfg.BotID, volume)
	c.recordOrder("filled")
	if c.notifier != nil {
		c.notifier.PositionOpened(pos, *acct)
	}
	if c.logger != nil {
		c.logger.Info("position opened",
			xlogger.String("symbol", pos.Symbol),
			xlogger.String("direction", string(pos.Direction)),
			xlogger.Any("volume", pos.Volume),
			xlogger.Any("price", pos.EntryPrice))
	}
	return "", nil
}

// ManageOpen runs the per-cycle auto-close checks against the current
// tick while a position is open.
func (c *Coordinator) ManageOpen(ctx context.Context) error {
	c.mu.Lock()
	if c.state != models.PositionOpen || c.position == nil {
		c.mu.Unlock()
		return nil
	}
	pos := *c.position
	c.mu.Unlock()

	vctx, cancel := context.WithTimeout(ctx, c.cfg.VenueTimeout)
	defer cancel()

	tick, err := c.venue.GetTick(vctx, pos.Symbol)
	if err != nil || tick == nil {
		c.recordError("tick")
		return nil // no data, skip the cycle
	}
	info, err := c.venue.GetSymbolInfo(vctx, pos.Symbol)
	if err != nil || info == nil {
		c.recordError("symbol_info")
		return nil
	}

	price := tick.Bid
	if pos.Direction == models.DirectionSell {
		price = tick.Ask
	}
	floating := pos.FloatingPnL(price, info.ContractSize)

	if reason := c.autoCloseReason(pos, floating); reason != "" {
		_, err := c.closePosition(ctx, reason)
		return err
	}
	return nil
}

func (c *Coordinator) autoCloseReason(pos models.Position, floating float64) string {
	if c.cfg.FloatingLossLimit > 0 && floating <= -c.cfg.FloatingLossLimit {
		return ReasonFloatingLoss
	}
	if c.cfg.FloatingProfitTarget > 0 && floating >= c.cfg.FloatingProfitTarget {
		return ReasonFloatingProfit
	}
	if c.cfg.DailyProfitTarget > 0 {
		if st := c.gate.Snapshot(c.cfg.BotID); st.DailyPnL+floating >= c.cfg.DailyProfitTarget {
			return ReasonDailyTarget
		}
	}
	if c.cfg.MaxTradeDuration > 0 && c.now().Sub(pos.OpenTime) >= c.cfg.MaxTradeDuration {
		return ReasonMaxDuration
	}
	if c.cfg.SessionEndHour > 0 && c.now().Hour() >= c.cfg.SessionEndHour {
		return ReasonSessionEnd
	}
	return ""
}

// closePosition submits a close for the full open volume. A confirmed
// close appends exactly one TradeRecord, updates risk counters and
// returns the state to FLAT.
func (c *Coordinator) closePosition(ctx context.Context, reason string) (string, error) {
	c.mu.Lock()
	if c.state != models.PositionOpen || c.position == nil {
		c.mu.Unlock()
		return "nothing to close", nil
	}
	pos := *c.position
	c.state = models.PositionClosing
	c.mu.Unlock()

	vctx, cancel := context.WithTimeout(ctx, c.cfg.VenueTimeout)
	defer cancel()

	res, err := c.venue.CloseOrder(vctx, models.OrderRequest{
		BotID:     pos.BotID,
		Symbol:    pos.Symbol,
		Direction: pos.Direction.Opposite(),
		Volume:    pos.Volume,
		Comment:   reason,
	})
	if err != nil || res == nil || !res.Success {
		// close failed: the position is still open at the venue
		c.mu.Lock()
		c.state = models.PositionOpen
		c.mu.Unlock()
		c.recordError("close")
		if err != nil {
			return "", fmt.Errorf("close order: %w", err)
		}
		return fmt.Sprintf("venue rejected close (code %d)", res.ErrorCode), nil
	}

	info, _ := c.venue.GetSymbolInfo(vctx, pos.Symbol)
	contract := 100000.0
	if info != nil && info.ContractSize > 0 {
		contract = info.ContractSize
	}
	profit := pos.FloatingPnL(res.FilledPrice, contract)

	rec := models.TradeRecord{
		BotID:      pos.BotID,
		Symbol:     pos.Symbol,
		Direction:  pos.Direction,
		Volume:     pos.Volume,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  res.FilledPrice,
		Profit:     profit,
		OpenTime:   pos.OpenTime,
		CloseTime:  c.now(),
		Reason:     reason,
	}

	c.mu.Lock()
	c.state = models.PositionFlat
	c.position = nil
	c.lastSubmit = c.now()
	c.mu.Unlock()

	c.gate.OnTradeClosed(pos.BotID, profit)
	c.recordOrder("closed")
	if c.ledger != nil {
		if err := c.ledger.Append(ctx, rec); err != nil {
			c.recordError("ledger")
			if c.logger != nil {
				c.logger.Warn("ledger append failed", xlogger.Error(err))
			}
		}
	}
	if c.notifier != nil {
		acct, _ := c.venue.GetAccountInfo(vctx)
		if acct == nil {
			acct = &models.AccountInfo{}
		}
		c.notifier.PositionClosed(rec, *acct)
	}
	if c.logger != nil {
		c.logger.Info("position closed",
			xlogger.String("symbol", rec.Symbol),
			xlogger.String("reason", reason),
			xlogger.Any("profit", rec.Profit))
	}
	return "", nil
}

// Reconcile compares local state against venue truth. When the venue no
// longer shows a matching open position (a remote SL/TP fill, for
// example) the local state silently resets to FLAT without a
// TradeRecord: the venue already booked the close and double-booking
// would corrupt daily PnL.
func (c *Coordinator) Reconcile(ctx context.Context) {
	c.mu.Lock()
	if c.state != models.PositionOpen || c.position == nil {
		c.mu.Unlock()
		return
	}
	symbol := c.position.Symbol
	c.mu.Unlock()

	vctx, cancel := context.WithTimeout(ctx, c.cfg.VenueTimeout)
	defer cancel()

	remote, err := c.venue.GetOpenPositions(vctx, symbol)
	if err != nil {
		c.recordError("reconcile")
		return // venue unavailable; keep local state
	}
	for _, r := range remote {
		if r.BotID == c.cfg.BotID && r.Symbol == symbol {
			return // still open at the venue
		}
	}

	c.mu.Lock()
	c.state = models.PositionFlat
	c.position = nil
	c.mu.Unlock()
	if c.logger != nil {
		c.logger.Info("position reconciled to flat", xlogger.String("symbol", symbol))
	}
}

func (c *Coordinator) openCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == models.PositionOpen {
		return 1
	}
	return 0
}

func (c *Coordinator) floatingPnL(price, contract float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != models.PositionOpen || c.position == nil {
		return 0
	}
	return c.position.FloatingPnL(price, contract)
}

func (c *Coordinator) recordError(kind string) {
	if c.metrics != nil {
		c.metrics.RecordError(kind)
	}
}

func (c *Coordinator) recordOrder(result string) {
	if c.metrics != nil {
		c.metrics.RecordOrder(result)
	}
}
