package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradePilot/internal/domain/models"
	domrepo "TradePilot/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, rec *models.MarketRecord) error
}

// RecordPipeline sits between the venue stream and the archive
// backend. It validates, throttles per symbol, and buffers when the
// downstream is unavailable.
type RecordPipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.MarketRecord
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted time
}

type PipelineOption func(*RecordPipeline)

// WithMaxRPS sets the max records per second per symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RecordPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RecordPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewRecordPipeline creates a new pipeline.
func NewRecordPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RecordPipeline {
	p := &RecordPipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   50,
		bufSize:  1000,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.MarketRecord, p.bufSize)
	return p
}

// Start launches background flushing of buffered records.
func (p *RecordPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case rec := <-p.bufCh:
				if rec == nil {
					continue
				}
				if err := p.proc.Process(ctx, rec); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- rec:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *RecordPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards to downstream, buffering
// on errors.
func (p *RecordPipeline) Process(ctx context.Context, rec *models.MarketRecord) error {
	start := time.Now()
	if err := validateRecord(rec); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(rec.Symbol, start) {
		// throttled; record and drop silently
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, rec); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- rec:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateRecord(rec *models.MarketRecord) error {
	if rec == nil {
		return fmt.Errorf("record nil")
	}
	if rec.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if rec.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if rec.Bid < 0 || rec.Ask < 0 || rec.Last < 0 || rec.Volume < 0 {
		return fmt.Errorf("negative price/volume")
	}
	if rec.Bid > 0 && rec.Ask > 0 && rec.Ask < rec.Bid {
		return fmt.Errorf("crossed book")
	}
	return nil
}

func (p *RecordPipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[symbol]
	if last.IsZero() {
		p.lastSeen[symbol] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
