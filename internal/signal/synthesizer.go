package signal

import (
	"context"
	"fmt"
	"math"

	"TradePilot/internal/domain/models"
	domsvc "TradePilot/internal/domain/service"
	"TradePilot/internal/service/ratelimit"
	xlogger "TradePilot/pkg/logger"
)

// Arbitration constants observed in production tuning. Agreement and
// disagreement move strength by confidence*arbWeight; an ML-only
// proposal requires confidence above arbSoloConfidence and enters at
// confidence*arbSoloFactor.
const (
	arbWeight         = 0.4
	arbSoloConfidence = 0.6
	arbSoloFactor     = 0.8

	// an opposite-direction proposal this strong closes the open position
	reversalStrength = 0.6

	// SL guardrail multipliers
	slSpreadMult   = 5.0
	slVenueMinMult = 1.2

	maxVelocityWeight = 0.4
)

// Config holds synthesis thresholds and weights.
type Config struct {
	MaxSpread      float64 // mean spread above this rejects the cycle
	DeltaThreshold float64 // order-flow delta magnitude to set a direction
	DeltaWeight    float64 // strength contribution of the delta leg
	VelocityWeight float64 // strength contribution of the velocity leg, capped at 0.4
	VelocityRef    float64 // velocity magnitude treated as full-scale
	VolatilityCap  float64 // above this, total strength is halved
	MinStrength    float64 // proposals below this are dropped
	RSIOverbought  float64
	RSIOversold    float64

	SLVolatilityMult float64 // volatility-derived SL distance multiplier
	TPMode           string  // "rr" or "currency"
	TPRiskReward     float64 // TP distance as a multiple of SL distance
	TPCurrency       float64 // fixed currency target, converted via contract size

	MLEnabled bool
}

// DefaultConfig returns production-calibrated synthesis settings.
func DefaultConfig() Config {
	return Config{
		MaxSpread:        0.01,
		DeltaThreshold:   10,
		DeltaWeight:      0.5,
		VelocityWeight:   0.4,
		VelocityRef:      0.005,
		VolatilityCap:    0.02,
		MinStrength:      0.3,
		RSIOverbought:    70,
		RSIOversold:      30,
		SLVolatilityMult: 20,
		TPMode:           "rr",
		TPRiskReward:     2.0,
	}
}

// Synthesizer fuses a feature set, optionally arbitrated by an external
// predictive model, into at most one directional proposal per cycle.
type Synthesizer struct {
	cfg       Config
	predictor domsvc.Predictor
	logger    *xlogger.Logger
	diag      *ratelimit.Limiter
}

// New creates a synthesizer. predictor may be a no-op implementation;
// it is consulted only when cfg.MLEnabled is set.
func New(cfg Config, predictor domsvc.Predictor, logger *xlogger.Logger) *Synthesizer {
	if cfg.VelocityWeight > maxVelocityWeight {
		cfg.VelocityWeight = maxVelocityWeight
	}
	return &Synthesizer{cfg: cfg, predictor: predictor, logger: logger, diag: ratelimit.New()}
}

// Synthesize produces at most one proposal for the cycle, or nil.
// open is the currently open position for the symbol, or nil when flat.
// info supplies venue contract terms for the SL/TP guardrails.
func (s *Synthesizer) Synthesize(ctx context.Context, fs models.FeatureSet, open *models.Position, info models.SymbolInfo) *models.SignalProposal {
	if !fs.Valid {
		return nil
	}

	// 1. Spread gate.
	if fs.SpreadMean > s.cfg.MaxSpread {
		s.diagnose(fs.Symbol, fmt.Sprintf("spread %.5f above max %.5f", fs.SpreadMean, s.cfg.MaxSpread))
		return nil
	}

	direction, strength, reasons := s.technical(fs)

	// 5. ML arbitration. Enabled but not ready fails the cycle closed.
	if s.cfg.MLEnabled {
		if s.predictor == nil || !s.predictor.IsReady() {
			s.diagnose(fs.Symbol, "arbitration enabled but model not ready")
			return nil
		}
		direction, strength, reasons = s.arbitrate(ctx, fs, direction, strength, reasons)
	}

	if direction == models.DirectionNone {
		s.diagnose(fs.Symbol, "no direction")
		return nil
	}
	if strength > 1 {
		strength = 1
	}

	// 6. Strong opposite-direction proposal converts to a full close.
	if open != nil && open.Direction != models.DirectionNone &&
		direction == open.Direction.Opposite() && strength > reversalStrength {
		return &models.SignalProposal{
			Symbol:    fs.Symbol,
			Direction: models.DirectionClose,
			Strength:  strength,
			Volume:    open.Volume,
			Reasons:   append(reasons, "reversal"),
			Timestamp: fs.Timestamp,
		}
	}

	// 8. Weak signals are dropped with rate-limited diagnostics only.
	if strength < s.cfg.MinStrength {
		s.diagnose(fs.Symbol, fmt.Sprintf("strength %.3f below minimum %.3f", strength, s.cfg.MinStrength))
		return nil
	}

	// 7. Entry and SL/TP guardrails.
	entry, stop, take := s.levels(fs, info, direction)
	return &models.SignalProposal{
		Symbol:     fs.Symbol,
		Direction:  direction,
		Strength:   strength,
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: take,
		Reasons:    reasons,
		Timestamp:  fs.Timestamp,
	}
}

// technical evaluates steps 2-4: order-flow with confirmation filters,
// the velocity leg, and the volatility confidence penalty.
func (s *Synthesizer) technical(fs models.FeatureSet) (models.Direction, float64, []string) {
	var direction models.Direction
	var strength float64
	var reasons []string

	// 2. Order-flow delta with EMA/RSI/momentum confirmation.
	if math.Abs(fs.OrderFlowDelta) >= s.cfg.DeltaThreshold {
		scale := math.Min(math.Abs(fs.OrderFlowDelta)/(s.cfg.DeltaThreshold*2), 1)
		switch {
		case fs.OrderFlowDelta > 0 && fs.EMAFast > fs.EMASlow && fs.RSI < s.cfg.RSIOverbought && fs.Momentum > 0:
			direction = models.DirectionBuy
			strength += s.cfg.DeltaWeight * scale
			reasons = append(reasons, "orderflow_buy")
		case fs.OrderFlowDelta < 0 && fs.EMAFast < fs.EMASlow && fs.RSI > s.cfg.RSIOversold && fs.Momentum < 0:
			direction = models.DirectionSell
			strength += s.cfg.DeltaWeight * scale
			reasons = append(reasons, "orderflow_sell")
		default:
			s.diagnose(fs.Symbol, "orderflow delta unconfirmed, filters rejected")
		}
	}

	// 3. Velocity leg reinforces or seeds the direction.
	if s.cfg.VelocityRef > 0 && fs.Velocity != 0 {
		velDir := models.DirectionBuy
		if fs.Velocity < 0 {
			velDir = models.DirectionSell
		}
		contribution := s.cfg.VelocityWeight * math.Min(math.Abs(fs.Velocity)/s.cfg.VelocityRef, 1)
		switch direction {
		case models.DirectionNone:
			direction = velDir
			strength += contribution
			reasons = append(reasons, "velocity_seed")
		case velDir:
			strength += contribution
			reasons = append(reasons, "velocity_confirm")
		}
	}

	// 4. Volatility penalizes confidence, never flips direction.
	if s.cfg.VolatilityCap > 0 && fs.Volatility > s.cfg.VolatilityCap {
		strength *= 0.5
		reasons = append(reasons, "volatility_penalty")
	}
	return direction, strength, reasons
}

// arbitrate applies the external model's verdict. Errors degrade to a
// disagreement with neutral confidence and are never propagated.
func (s *Synthesizer) arbitrate(ctx context.Context, fs models.FeatureSet, direction models.Direction, strength float64, reasons []string) (models.Direction, float64, []string) {
	pred, err := s.predictor.Predict(ctx, fs)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("arbitration failed, treated as disagreement",
				xlogger.String("symbol", fs.Symbol), xlogger.Error(err))
		}
		pred = models.Prediction{Direction: models.DirectionNone, Confidence: 0.5}
	}

	switch {
	case direction != models.DirectionNone && pred.Direction == direction:
		strength += pred.Confidence * arbWeight
		reasons = append(reasons, "ml_agree")
	case direction != models.DirectionNone:
		// disagreement (or failure) dampens but never flips
		strength -= pred.Confidence * arbWeight
		if strength < 0 {
			strength = 0
		}
		reasons = append(reasons, "ml_disagree")
	case pred.Direction != models.DirectionNone && pred.Confidence > arbSoloConfidence:
		direction = pred.Direction
		strength = pred.Confidence * arbSoloFactor
		reasons = append(reasons, "ml_solo")
	}
	return direction, strength, reasons
}

// levels computes entry plus SL/TP distances per the configured mode.
// The SL distance never undercuts five spreads or 1.2x the venue
// minimum distance.
func (s *Synthesizer) levels(fs models.FeatureSet, info models.SymbolInfo, direction models.Direction) (entry, stop, take float64) {
	half := fs.SpreadMean / 2
	if direction == models.DirectionBuy {
		entry = fs.MidPrice + half
	} else {
		entry = fs.MidPrice - half
	}

	slDist := fs.Volatility * s.cfg.SLVolatilityMult
	slDist = math.Max(slDist, fs.SpreadMean*slSpreadMult)
	slDist = math.Max(slDist, info.MinStopDistance*slVenueMinMult)

	var tpDist float64
	if s.cfg.TPMode == "currency" && s.cfg.TPCurrency > 0 && info.ContractSize > 0 {
		// fixed currency target per reference lot
		tpDist = s.cfg.TPCurrency / info.ContractSize
	} else {
		rr := s.cfg.TPRiskReward
		if rr <= 0 {
			rr = 2.0
		}
		tpDist = slDist * rr
	}

	if direction == models.DirectionBuy {
		return entry, entry - slDist, entry + tpDist
	}
	return entry, entry + slDist, entry - tpDist
}

// diagnose logs dropped-cycle detail at most a few times per minute per
// symbol so a quiet market does not flood the log.
func (s *Synthesizer) diagnose(symbol, msg string) {
	if s.logger == nil {
		return
	}
	if !s.diag.Allow("diag:"+symbol, 3, 0.1) {
		return
	}
	s.logger.Debug("no proposal", xlogger.String("symbol", symbol), xlogger.String("reason", msg))
}
