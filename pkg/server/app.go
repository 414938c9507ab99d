package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TradePilot/internal/engine"
	"TradePilot/internal/handler/api"
	"TradePilot/internal/usecase"
	pkgch "TradePilot/pkg/clickhouse"
	"TradePilot/pkg/config"
	xhttp "TradePilot/pkg/http"
	pkgkafka "TradePilot/pkg/kafka"
	applogger "TradePilot/pkg/logger"
	"TradePilot/pkg/queue"
)

// Components holds everything the DI layer assembles. Which of them
// actually run depends on the configured mode.
type Components struct {
	Engine      *engine.Engine
	Collector   *usecase.RecordCollector
	RecordProc  *usecase.RecordProcessor
	Consumer    *pkgkafka.Consumer
	Archiver    *usecase.TicksArchiver
	Queue       *queue.RedisQueue
	BacktestMgr *usecase.BacktestManager
	Handler     *api.ControlHandler
	ClickHouse  *pkgch.Client
	Producer    *pkgkafka.Producer
}

// App encapsulates the application lifecycle for one mode:
// trader runs the live decision engine plus the control-plane API,
// collector streams market records into the archive backends, and
// archiver folds the Kafka tick feed into ClickHouse tables.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	comp       Components
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, lgr *applogger.Logger, comp Components) *App {
	return &App{cfg: cfg, logger: lgr, comp: comp}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.comp.Handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestMetrics(a.logger, 500*time.Millisecond),
	)
	if err := a.httpServer.Start(); err != nil {
		return err
	}

	switch a.cfg.Mode {
	case "trader":
		if err := a.startTrader(ctx); err != nil {
			return err
		}
	case "collector":
		if err := a.startCollector(ctx); err != nil {
			return err
		}
	case "archiver":
		if err := a.startArchiver(); err != nil {
			return err
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown(ctx)
}

func (a *App) startTrader(ctx context.Context) error {
	a.comp.Queue.RegisterJob(a.comp.BacktestMgr)
	if err := a.comp.Queue.Start(); err != nil {
		return err
	}
	a.comp.Queue.StartRetryProcessor()

	// aggregated error logs go to the events topic as deduplicated digests
	if a.cfg.Kafka.EventsTopic != "" {
		a.logger.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          a.cfg.Kafka.EventsTopic,
			Publisher:      a.comp.Queue,
		})
	}

	if err := a.comp.Engine.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("trading engine started",
		applogger.String("symbol", a.cfg.Trading.Symbol),
		applogger.String("bot_id", a.cfg.Trading.BotID))
	return nil
}

func (a *App) startCollector(ctx context.Context) error {
	if err := a.comp.Collector.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("record collector started",
		applogger.Strings("symbols", a.cfg.Venue.Symbols),
		applogger.String("backend", a.cfg.Archive.Backend))
	return nil
}

func (a *App) startArchiver() error {
	a.comp.Consumer.WithConsumerHook(pkgkafka.NoopHook{})
	a.comp.Consumer.RegisterHandler(a.comp.Archiver)
	if err := a.comp.Consumer.Start(); err != nil {
		return err
	}
	a.logger.Info("ticks archiver started",
		applogger.String("topic", a.cfg.Kafka.TicksTopic))
	return nil
}

// shutdown stops all started services in reverse dependency order.
// Open positions are never force-closed here; the engine only joins
// its workers within the configured bound.
func (a *App) shutdown(ctx context.Context) error {
	switch a.cfg.Mode {
	case "trader":
		if err := a.comp.Engine.Stop(); err != nil {
			a.logger.Warn("engine stop", applogger.Error(err))
		}
		a.logger.RemoveCollector()
		if err := a.comp.Queue.Stop(ctx); err != nil {
			a.logger.Warn("queue stop", applogger.Error(err))
		}
	case "collector":
		if err := a.comp.Collector.Shutdown(ctx); err != nil {
			a.logger.Warn("collector stop", applogger.Error(err))
		}
		a.comp.RecordProc.Close()
	case "archiver":
		if err := a.comp.Consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop", applogger.Error(err))
		}
		if err := a.comp.Archiver.FlushBars(ctx); err != nil {
			a.logger.Warn("bar flush", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", applogger.Error(err))
	}

	if a.comp.Producer != nil {
		if err := a.comp.Producer.Close(); err != nil {
			a.logger.Warn("kafka producer close", applogger.Error(err))
		}
	}
	if a.comp.ClickHouse != nil {
		if err := a.comp.ClickHouse.Close(); err != nil {
			a.logger.Warn("clickhouse close", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}
