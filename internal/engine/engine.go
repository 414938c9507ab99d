package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	"TradePilot/internal/exec"
	"TradePilot/internal/features"
	"TradePilot/internal/signal"
	xlogger "TradePilot/pkg/logger"
)

// ErrShutdownTimeout is returned when the worker goroutines did not
// drain within the configured grace period. Open positions are left to
// the venue; the engine never force-closes on shutdown.
var ErrShutdownTimeout = errors.New("engine shutdown timed out")

// Config tunes the three pipeline roles.
type Config struct {
	Symbol            string
	WindowSize        int           // record window, default 600
	DecisionInterval  time.Duration // default 100ms
	QueueSize         int           // proposal queue, default 64
	ManageInterval    time.Duration // open-position checks, default 1s
	ReconcileInterval time.Duration // venue state reconciliation, default 30s
	InfoRefresh       time.Duration // symbol contract terms refresh, default 5m
	ShutdownTimeout   time.Duration // worker join bound, default 5s
}

func (c *Config) fillDefaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = 600
	}
	if c.DecisionInterval <= 0 {
		c.DecisionInterval = 100 * time.Millisecond
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.ManageInterval <= 0 {
		c.ManageInterval = time.Second
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = 30 * time.Second
	}
	if c.InfoRefresh <= 0 {
		c.InfoRefresh = 5 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// Engine runs the live trading pipeline in three roles: ingestion
// fills the record window from the stream, the decision loop turns
// window snapshots into proposals, and the execution loop applies them
// through the coordinator. Roles talk only through the window and a
// bounded proposal queue, so a stalled venue call never blocks
// ingestion.
type Engine struct {
	cfg      Config
	stream   domrepo.MarketStream
	venue    domrepo.Venue
	analyzer *features.Analyzer
	synth    *signal.Synthesizer
	coord    *exec.Coordinator
	metrics  domrepo.Metrics
	logger   *xlogger.Logger

	window    *RecordWindow
	proposals chan *models.SignalProposal

	infoMu sync.Mutex
	info   *models.SymbolInfo

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(cfg Config, stream domrepo.MarketStream, venue domrepo.Venue,
	analyzer *features.Analyzer, synth *signal.Synthesizer, coord *exec.Coordinator,
	metrics domrepo.Metrics, logger *xlogger.Logger) *Engine {
	cfg.fillDefaults()
	return &Engine{
		cfg:       cfg,
		stream:    stream,
		venue:     venue,
		analyzer:  analyzer,
		synth:     synth,
		coord:     coord,
		metrics:   metrics,
		logger:    logger,
		window:    NewRecordWindow(cfg.WindowSize),
		proposals: make(chan *models.SignalProposal, cfg.QueueSize),
		stopCh:    make(chan struct{}),
	}
}

// Start connects the stream and launches the three roles. It returns
// once the pipeline is running.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.stream.Connect(ctx); err != nil {
		return err
	}
	if err := e.stream.Subscribe(ctx); err != nil {
		return err
	}
	e.refreshInfo(ctx)

	recCh, errCh := e.stream.Read(ctx)
	e.wg.Add(3)
	go e.ingestLoop(ctx, recCh, errCh)
	go e.decisionLoop(ctx)
	go e.executionLoop(ctx)

	if e.logger != nil {
		e.logger.Info("engine started", xlogger.String("symbol", e.cfg.Symbol))
	}
	return nil
}

// Stop asks the roles to drain and waits up to the shutdown timeout.
// Positions stay open; the risk gate picks them back up on restart via
// venue reconciliation.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() { close(e.stopCh) })
	_ = e.stream.Close()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(e.cfg.ShutdownTimeout):
		if e.metrics != nil {
			e.metrics.RecordError("engine_shutdown_timeout")
		}
		return ErrShutdownTimeout
	}
}

func (e *Engine) ingestLoop(ctx context.Context, recCh <-chan *models.MarketRecord, errCh <-chan error) {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err == nil {
				continue
			}
			if e.metrics != nil {
				e.metrics.RecordError("stream")
			}
			if rerr := e.stream.Reconnect(ctx); rerr != nil && e.logger != nil {
				e.logger.Warn("stream reconnect failed", xlogger.Error(rerr))
			}
		case rec := <-recCh:
			if rec == nil {
				continue
			}
			e.window.Push(*rec)
			if e.metrics != nil {
				e.metrics.RecordLastPrice(rec.Symbol, rec.Mid())
			}
		}
	}
}

func (e *Engine) decisionLoop(ctx context.Context) {
	defer e.wg.Done()
	decide := time.NewTicker(e.cfg.DecisionInterval)
	refresh := time.NewTicker(e.cfg.InfoRefresh)
	defer decide.Stop()
	defer refresh.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-refresh.C:
			e.refreshInfo(ctx)
		case <-decide.C:
			e.decide(ctx)
		}
	}
}

func (e *Engine) decide(ctx context.Context) {
	info := e.symbolInfo()
	if info == nil {
		return
	}
	started := time.Now()
	fs := e.analyzer.Analyze(e.window.Snapshot())
	if !fs.Valid {
		return
	}
	proposal := e.synth.Synthesize(ctx, fs, e.coord.Position(), *info)
	if e.metrics != nil {
		e.metrics.RecordLatency("decision_cycle", time.Since(started).Seconds())
	}
	if proposal == nil {
		return
	}
	// bounded queue: when execution lags, the newest proposal is dropped
	select {
	case e.proposals <- proposal:
		if e.metrics != nil {
			e.metrics.RecordProposal(proposal.Symbol, string(proposal.Direction))
		}
	default:
		if e.metrics != nil {
			e.metrics.RecordError("proposal_queue_full")
		}
	}
}

func (e *Engine) executionLoop(ctx context.Context) {
	defer e.wg.Done()
	manage := time.NewTicker(e.cfg.ManageInterval)
	reconcile := time.NewTicker(e.cfg.ReconcileInterval)
	defer manage.Stop()
	defer reconcile.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case p := <-e.proposals:
			if p == nil {
				continue
			}
			if reason, err := e.coord.HandleProposal(ctx, p); err != nil && e.logger != nil {
				e.logger.Warn("proposal failed",
					xlogger.String("reason", reason), xlogger.Error(err))
			}
		case <-manage.C:
			if err := e.coord.ManageOpen(ctx); err != nil && e.logger != nil {
				e.logger.Warn("manage cycle failed", xlogger.Error(err))
			}
		case <-reconcile.C:
			e.coord.Reconcile(ctx)
		}
	}
}

func (e *Engine) refreshInfo(ctx context.Context) {
	info, err := e.venue.GetSymbolInfo(ctx, e.cfg.Symbol)
	if err != nil || info == nil {
		if e.metrics != nil {
			e.metrics.RecordError("symbol_info")
		}
		return
	}
	e.infoMu.Lock()
	e.info = info
	e.infoMu.Unlock()
}

func (e *Engine) symbolInfo() *models.SymbolInfo {
	e.infoMu.Lock()
	defer e.infoMu.Unlock()
	return e.info
}
