package usecase

import (
	"context"

	"TradePilot/internal/domain/models"
	drepo "TradePilot/internal/domain/repository"
	mid "TradePilot/internal/middleware"
)

// RecordCollector runs the archival side: it reads the venue stream
// and pushes every record through the archive pipeline. It is
// independent of the trading engine so a collector deployment can run
// without a bot attached.
type RecordCollector struct {
	stream  drepo.MarketStream
	proc    *RecordProcessor
	metrics drepo.Metrics
	pipe    *mid.RecordPipeline
}

func NewRecordCollector(stream drepo.MarketStream, proc *RecordProcessor,
	metrics drepo.Metrics, pipe *mid.RecordPipeline) *RecordCollector {
	return &RecordCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected reports stream health.
func (c *RecordCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *RecordCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	recCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, recCh, errCh)
	return nil
}

func (c *RecordCollector) consume(ctx context.Context, recCh <-chan *models.MarketRecord, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case rec := <-recCh:
			if rec == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, rec)
			} else {
				_ = c.proc.Process(ctx, rec)
			}
			c.metrics.RecordLastPrice(rec.Symbol, rec.Mid())
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *RecordCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
