package risk

import (
	"strings"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func entryProposal() models.SignalProposal {
	return models.SignalProposal{Symbol: "EURUSD", Direction: models.DirectionBuy, Strength: 0.8,
		Entry: 1.1, StopLoss: 1.095, TakeProfit: 1.11}
}

func TestDailyLossLimitTripsCircuit(t *testing.T) {
	g := NewGate(DefaultLimits(), time.UTC)
	g.OnTradeClosed("b1", -40)

	ok, reason := g.Validate("b1", entryProposal(), AccountSnapshot{Balance: 960})
	if ok {
		t.Fatalf("expected block at exactly -40 against a 40 limit")
	}
	if reason != "Daily loss limit reached: -40.00" {
		t.Fatalf("unexpected reason %q", reason)
	}
	m := g.GetRiskMetrics("b1", AccountSnapshot{Balance: 960})
	if m.State != models.CircuitBroken {
		t.Fatalf("expected CIRCUIT_BROKEN, got %s", m.State)
	}
	if m.Level != models.RiskCritical {
		t.Fatalf("broken circuit must map to CRITICAL, got %s", m.Level)
	}
}

func TestCircuitIsOneWayUntilRollover(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := &now
	g := NewGate(DefaultLimits(), time.UTC, WithClock(func() time.Time { return *clock }))
	g.TripManually("b1", "operator halt")

	if ok, _ := g.Validate("b1", entryProposal(), AccountSnapshot{Balance: 1000}); ok {
		t.Fatalf("tripped circuit must block entries")
	}
	// later same day: still broken
	now = now.Add(6 * time.Hour)
	if ok, _ := g.Validate("b1", entryProposal(), AccountSnapshot{Balance: 1000}); ok {
		t.Fatalf("circuit must stay open within the same day")
	}
	// next calendar date: trading resumes, counters reset
	now = time.Date(2025, 3, 11, 0, 5, 0, 0, time.UTC)
	if ok, reason := g.Validate("b1", entryProposal(), AccountSnapshot{Balance: 1000}); !ok {
		t.Fatalf("expected reset after rollover, blocked with %q", reason)
	}
}

func TestTargetPauseResumesAtSixOnLaterDay(t *testing.T) {
	limits := DefaultLimits()
	limits.DailyProfitTarget = 10
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	clock := &now
	g := NewGate(limits, time.UTC, WithClock(func() time.Time { return *clock }))

	// realized + floating crosses the target
	g.OnTradeClosed("b1", 8)
	ok, reason := g.Validate("b1", entryProposal(), AccountSnapshot{Balance: 1008, FloatingPnL: 2.01})
	if ok {
		t.Fatalf("expected target-profit pause")
	}
	if !strings.Contains(reason, "profit target") {
		t.Fatalf("unexpected reason %q", reason)
	}
	if g.Snapshot("b1").State() != models.TargetProfitPaused {
		t.Fatalf("expected TARGET_PROFIT_PAUSED state")
	}

	// midnight rollover alone does not resume
	now = time.Date(2025, 3, 11, 0, 30, 0, 0, time.UTC)
	if ok, _ := g.Validate("b1", entryProposal(), AccountSnapshot{Balance: 1008}); ok {
		t.Fatalf("pause must survive midnight rollover")
	}
	// 05:59 next day: still paused
	now = time.Date(2025, 3, 11, 5, 59, 0, 0, time.UTC)
	if ok, _ := g.Validate("b1", entryProposal(), AccountSnapshot{Balance: 1008}); ok {
		t.Fatalf("pause must hold before the resume hour")
	}
	// 06:00 next day: entries allowed again
	now = time.Date(2025, 3, 11, 6, 0, 0, 0, time.UTC)
	if ok, reason := g.Validate("b1", entryProposal(), AccountSnapshot{Balance: 1008}); !ok {
		t.Fatalf("expected resume at 06:00 on a later date, blocked with %q", reason)
	}
}

func TestCloseProposalsAlwaysAllowed(t *testing.T) {
	g := NewGate(DefaultLimits(), time.UTC)
	g.TripManually("b1", "halt")
	p := models.SignalProposal{Symbol: "EURUSD", Direction: models.DirectionClose, Volume: 0.1}
	if ok, reason := g.Validate("b1", p, AccountSnapshot{Balance: 1000}); !ok {
		t.Fatalf("close must pass a tripped circuit, blocked with %q", reason)
	}
}

func TestDrawdownNeverNegativeAndMonotone(t *testing.T) {
	g := NewGate(DefaultLimits(), time.UTC)

	m := g.GetRiskMetrics("b1", AccountSnapshot{Balance: 1000, Equity: 1000})
	if m.Drawdown != 0 {
		t.Fatalf("balance above peak must give zero drawdown, got %v", m.Drawdown)
	}
	m = g.GetRiskMetrics("b1", AccountSnapshot{Balance: 950, Equity: 950})
	if m.Drawdown < 0 {
		t.Fatalf("negative drawdown %v", m.Drawdown)
	}
	first := m.MaxDrawdownToday
	// recovery: current drawdown shrinks, daily max must not
	m = g.GetRiskMetrics("b1", AccountSnapshot{Balance: 990, Equity: 990})
	if m.MaxDrawdownToday < first {
		t.Fatalf("max drawdown today decreased: %v -> %v", first, m.MaxDrawdownToday)
	}
	if m.Drawdown > first {
		t.Fatalf("drawdown should have recovered, got %v", m.Drawdown)
	}
}

func TestGetRiskMetricsIdempotent(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	g := NewGate(DefaultLimits(), time.UTC, WithClock(fixedClock(now)))
	acct := AccountSnapshot{Balance: 950, Equity: 948, OpenPositions: 1}
	a := g.GetRiskMetrics("b1", acct)
	b := g.GetRiskMetrics("b1", acct)
	if a != b {
		t.Fatalf("metrics not idempotent:\n%+v\n%+v", a, b)
	}
}

func TestRolloverReseedsPeakFromBalance(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := &now
	g := NewGate(DefaultLimits(), time.UTC, WithClock(func() time.Time { return *clock }))

	g.GetRiskMetrics("b1", AccountSnapshot{Balance: 1000})
	g.GetRiskMetrics("b1", AccountSnapshot{Balance: 940}) // 6% drawdown
	now = now.Add(24 * time.Hour)
	m := g.GetRiskMetrics("b1", AccountSnapshot{Balance: 940})
	if m.PeakBalance != 940 {
		t.Fatalf("peak must reseed from current balance, got %v", m.PeakBalance)
	}
	if m.Drawdown != 0 || m.MaxDrawdownToday != 0 {
		t.Fatalf("drawdown must reset on rollover: %+v", m)
	}
}

func TestValidateOrderShortCircuits(t *testing.T) {
	limits := DefaultLimits()
	limits.DailyTradeLimit = 1
	g := NewGate(limits, time.UTC)
	g.OnOrderSubmitted("b1", 0.1)
	// both trade count and floating loss are breached; trade count is
	// checked first
	ok, reason := g.Validate("b1", entryProposal(), AccountSnapshot{Balance: 1000, FloatingPnL: -100})
	if ok {
		t.Fatalf("expected block")
	}
	if !strings.Contains(reason, "trade limit") {
		t.Fatalf("expected trade-count reason first, got %q", reason)
	}
}

func TestFloatingLossBlocks(t *testing.T) {
	g := NewGate(DefaultLimits(), time.UTC)
	ok, reason := g.Validate("b1", entryProposal(), AccountSnapshot{Balance: 1000, FloatingPnL: -25})
	if ok {
		t.Fatalf("expected floating-loss block")
	}
	if !strings.Contains(reason, "Floating loss") {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestPositionSizing(t *testing.T) {
	limits := DefaultLimits()
	limits.RiskFraction = 0.01
	limits.ContractSize = 100000
	limits.MaxPositionSize = 0.5
	g := NewGate(limits, time.UTC)

	// 1000 * 0.01 / (0.0050 * 100000) = 0.02 lots
	vol := g.CalculatePositionSize(1000, 1.1000, 1.0950, 1.0)
	if vol != 0.02 {
		t.Fatalf("expected 0.02 lots, got %v", vol)
	}
	// confidence scales down, clamped up to the minimum lot
	vol = g.CalculatePositionSize(1000, 1.1000, 1.0950, 0.1)
	if vol != limits.MinLot {
		t.Fatalf("expected min lot, got %v", vol)
	}
	// huge balance clamps to the maximum position size
	vol = g.CalculatePositionSize(10_000_000, 1.1000, 1.0950, 1.0)
	if vol != limits.MaxPositionSize {
		t.Fatalf("expected max position size, got %v", vol)
	}
	// zero stop distance yields no volume
	if v := g.CalculatePositionSize(1000, 1.1, 1.1, 1.0); v != 0 {
		t.Fatalf("expected zero volume on zero distance, got %v", v)
	}
}

func TestSeedDailyVolumeBestEffort(t *testing.T) {
	g := NewGate(DefaultLimits(), time.UTC)
	g.OnOrderSubmitted("b1", 2.0)
	g.SeedDailyVolume("b1", 1.0) // smaller than live counter, ignored
	if got := g.Snapshot("b1").DailyVolume; got != 2.0 {
		t.Fatalf("seed must not shrink the live counter, got %v", got)
	}
	g.SeedDailyVolume("b1", 3.5)
	if got := g.Snapshot("b1").DailyVolume; got != 3.5 {
		t.Fatalf("expected seeded volume 3.5, got %v", got)
	}
}
