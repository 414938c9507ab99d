package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"TradePilot/internal/backtest"
	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
	domsvc "TradePilot/internal/domain/service"
	xlogger "TradePilot/pkg/logger"
	"TradePilot/pkg/queue"
	xutil "TradePilot/pkg/util"
)

// BacktestJobType is the queue message type for backtest runs.
const BacktestJobType = "backtest.run"

// BacktestJob is the queued payload for one run.
type BacktestJob struct {
	RunID          string  `json:"run_id"`
	Symbol         string  `json:"symbol"`
	From           int64   `json:"from"` // unix seconds
	To             int64   `json:"to"`
	Timeframe      string  `json:"timeframe"`
	InitialBalance float64 `json:"initial_balance"`
	Slippage       float64 `json:"slippage"`
	Commission     float64 `json:"commission"`
}

// RunStatus is the lifecycle of one queued backtest.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunDone      RunStatus = "done"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// RunState is the externally visible snapshot of a run.
type RunState struct {
	ID       string                  `json:"id"`
	Status   RunStatus               `json:"status"`
	Progress models.BacktestProgress `json:"progress"`
	Result   *models.BacktestResult  `json:"result,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

type run struct {
	state RunState
	bt    *backtest.Backtester
}

// BacktestManager enqueues runs on the job queue, executes them as a
// queue worker, and tracks their state for the status endpoint.
type BacktestManager struct {
	queue     queue.QueueService
	bars      domrepo.BarStore
	predictor domsvc.Predictor
	base      backtest.Config
	logger    *xlogger.Logger

	mu   sync.Mutex
	runs map[string]*run
}

func NewBacktestManager(q queue.QueueService, bars domrepo.BarStore,
	predictor domsvc.Predictor, base backtest.Config, logger *xlogger.Logger) *BacktestManager {
	return &BacktestManager{
		queue:     q,
		bars:      bars,
		predictor: predictor,
		base:      base,
		logger:    logger,
		runs:      make(map[string]*run),
	}
}

// Submit validates the request and enqueues the run. The returned id
// is immediately queryable.
func (m *BacktestManager) Submit(ctx context.Context, req models.BacktestRequest) (string, error) {
	from, ok := xutil.ParseTime(req.From)
	if !ok {
		return "", fmt.Errorf("invalid from time: %q", req.From)
	}
	to, ok := xutil.ParseTime(req.To)
	if !ok {
		return "", fmt.Errorf("invalid to time: %q", req.To)
	}
	if !from.Before(to) {
		return "", fmt.Errorf("from must precede to")
	}

	id := uuid.NewString()
	job := BacktestJob{
		RunID:          id,
		Symbol:         req.Symbol,
		From:           from.Unix(),
		To:             to.Unix(),
		Timeframe:      string(domrepo.NormalizeTimeframe(req.TF)),
		InitialBalance: req.InitialBalance,
		Slippage:       req.Slippage,
		Commission:     req.Commission,
	}

	m.mu.Lock()
	m.runs[id] = &run{state: RunState{ID: id, Status: RunQueued}}
	m.mu.Unlock()

	if err := m.queue.PublishMessage(ctx, BacktestJobType, job); err != nil {
		m.mu.Lock()
		delete(m.runs, id)
		m.mu.Unlock()
		return "", fmt.Errorf("enqueue backtest: %w", err)
	}
	return id, nil
}

// Status returns the run snapshot, or false when the id is unknown.
func (m *BacktestManager) Status(id string) (RunState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return RunState{}, false
	}
	return r.state, true
}

// Cancel flags a queued or running backtest for cancellation.
func (m *BacktestManager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return false
	}
	switch r.state.Status {
	case RunQueued:
		r.state.Status = RunCancelled
	case RunRunning:
		if r.bt != nil {
			r.bt.Cancel()
		}
	}
	return true
}

// Name implements queue.Job.
func (m *BacktestManager) Name() string { return "backtest_runner" }

// Type implements queue.Job.
func (m *BacktestManager) Type() string { return BacktestJobType }

// Handle implements queue.Job: it loads bars and executes the run.
func (m *BacktestManager) Handle(ctx context.Context, payload interface{}) error {
	job, err := queue.ParsePayload[BacktestJob](payload)
	if err != nil {
		return fmt.Errorf("parse backtest job: %w", err)
	}
	if m.abortIfCancelled(job.RunID) {
		return nil
	}

	tf := domrepo.NormalizeTimeframe(job.Timeframe)
	bars, err := m.bars.GetBars(ctx, job.Symbol,
		time.Unix(job.From, 0).UTC(), time.Unix(job.To, 0).UTC(), tf)
	if err != nil {
		m.finish(job.RunID, nil, fmt.Errorf("load bars: %w", err))
		return nil
	}

	cfg := m.base
	cfg.Symbol = job.Symbol
	cfg.InitialBalance = job.InitialBalance
	cfg.Slippage = job.Slippage
	cfg.Commission = job.Commission

	bt := backtest.New(cfg, m.predictor, m.logger)
	bt.OnProgress(job.RunID, func(p models.BacktestProgress) { m.progress(job.RunID, p) })

	m.mu.Lock()
	if r, ok := m.runs[job.RunID]; ok {
		r.bt = bt
		r.state.Status = RunRunning
	}
	m.mu.Unlock()

	result, err := bt.Run(ctx, bars)
	m.finish(job.RunID, result, err)
	return nil
}

func (m *BacktestManager) abortIfCancelled(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	return ok && r.state.Status == RunCancelled
}

func (m *BacktestManager) progress(id string, p models.BacktestProgress) {
	m.mu.Lock()
	if r, ok := m.runs[id]; ok {
		r.state.Progress = p
	}
	m.mu.Unlock()
}

func (m *BacktestManager) finish(id string, result *models.BacktestResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return
	}
	switch {
	case errors.Is(err, backtest.ErrCancelled):
		r.state.Status = RunCancelled
	case err != nil:
		r.state.Status = RunFailed
		r.state.Error = err.Error()
	default:
		r.state.Status = RunDone
		r.state.Result = result
	}
	r.bt = nil
}
