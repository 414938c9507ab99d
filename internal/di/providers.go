package di

import (
	"context"
	"fmt"
	"time"

	"TradePilot/internal/backtest"
	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/repository"
	domsvc "TradePilot/internal/domain/service"
	"TradePilot/internal/engine"
	"TradePilot/internal/exec"
	"TradePilot/internal/features"
	"TradePilot/internal/handler/api"
	mid "TradePilot/internal/middleware"
	internalrepo "TradePilot/internal/repository"
	"TradePilot/internal/risk"
	icache "TradePilot/internal/service/cache"
	"TradePilot/internal/service/notify"
	"TradePilot/internal/service/predictor"
	"TradePilot/internal/service/venue"
	"TradePilot/internal/signal"
	"TradePilot/internal/usecase"
	pkgcache "TradePilot/pkg/cache"
	pkgch "TradePilot/pkg/clickhouse"
	"TradePilot/pkg/config"
	pkgkafka "TradePilot/pkg/kafka"
	"TradePilot/pkg/logger"
	"TradePilot/pkg/metrics"
	"TradePilot/pkg/queue"
	"TradePilot/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	level := "info"
	format := "console"
	if cfg.Environment == "production" {
		format = "json"
	}
	return logger.New(&logger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and applies the schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		internalrepo.LedgerSchema(db + "." + cfg.ClickHouse.TradesTable),
		internalrepo.BarSchema(db + "." + cfg.ClickHouse.BarsTable),
		internalrepo.RecordSchema(db + "." + cfg.ClickHouse.TicksTable),
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer for the ticks topic.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRedisClient creates the shared Redis client.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideQueue creates the Redis job queue used for backtest runs.
func ProvideQueue(lgr *logger.Logger, cfg *config.Config, client *redis.Client) *queue.RedisQueue {
	var opts []queue.RedisQueueOption
	if cfg.Redis.Queue.KeyPrefix != "" {
		opts = append(opts, queue.WithKeyPrefix(cfg.Redis.Queue.KeyPrefix))
	}
	return queue.NewRedisQueue(lgr, &queue.QueueConfig{
		Workers:    cfg.Redis.Queue.Workers,
		QueueSize:  cfg.Redis.Queue.QueueSize,
		RetryLimit: cfg.Redis.Queue.RetryLimit,
		RetryDelay: cfg.Redis.Queue.RetryDelay,
	}, client, queue.ModeProducerConsumer, opts...)
}

// ProvideQueueService exposes the queue's publish side.
func ProvideQueueService(q *queue.RedisQueue) queue.QueueService {
	return q
}

// ProvideMarketStream creates the venue WebSocket stream.
func ProvideMarketStream(cfg *config.Config) repository.MarketStream {
	return venue.NewStream(
		cfg.Venue.APIKey,
		cfg.Venue.WebSocketURL,
		cfg.Venue.Symbols,
		cfg.Venue.ReconnectDelay,
		cfg.Venue.PingInterval,
	)
}

// ProvideVenue creates the order venue: a paper simulator or the REST
// gateway, depending on configuration.
func ProvideVenue(cfg *config.Config) repository.Venue {
	if cfg.Venue.Paper {
		return venue.NewPaper(cfg.Venue.PaperBalance, cfg.Venue.PaperSlippage,
			defaultSymbolInfo(cfg.Trading.Symbol))
	}
	var c icache.BytesCache = icache.NewTTLCache()
	if cfg.Redis.Addr != "" {
		c = icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return venue.NewHTTP(cfg.Venue.RestURL, cfg.Venue.APIKey, cfg.Venue.Timeout, c)
}

// ProvidePredictor creates the ML arbitration client, or a refusing
// stub when arbitration is disabled.
func ProvidePredictor(cfg *config.Config) domsvc.Predictor {
	if !cfg.Predictor.Enabled {
		return predictor.Noop{}
	}
	return predictor.NewHTTP(cfg.Predictor.URL, cfg.Predictor.Timeout, cfg.Predictor.Attempts)
}

// ProvideNotifier creates the Kafka trade-event notifier.
func ProvideNotifier(producer *pkgkafka.Producer, cfg *config.Config, lgr *logger.Logger) repository.Notifier {
	return notify.NewKafka(producer, cfg.Kafka.EventsTopic, lgr)
}

// ProvideLedger creates the ClickHouse trade ledger.
func ProvideLedger(ch *pkgch.Client, cfg *config.Config) repository.TradeLedger {
	return internalrepo.NewClickHouseLedger(ch.DB(), cfg.ClickHouse.Database+"."+cfg.ClickHouse.TradesTable)
}

// ProvideBarStore creates the ClickHouse bar store.
func ProvideBarStore(ch *pkgch.Client, cfg *config.Config) *internalrepo.ClickHouseBarStore {
	return internalrepo.NewClickHouseBarStore(ch.DB(), cfg.ClickHouse.Database+"."+cfg.ClickHouse.BarsTable)
}

// ProvideBarReader exposes the bar store's query side.
func ProvideBarReader(s *internalrepo.ClickHouseBarStore) repository.BarStore { return s }

// ProvideBarWriter exposes the bar store's write side.
func ProvideBarWriter(s *internalrepo.ClickHouseBarStore) repository.BarWriter { return s }

// ProvideRecordStore creates the ClickHouse raw record store.
func ProvideRecordStore(ch *pkgch.Client, cfg *config.Config) repository.RecordStore {
	return internalrepo.NewClickHouseRecordStore(ch.DB(), cfg.ClickHouse.Database+"."+cfg.ClickHouse.TicksTable)
}

// ProvideRecordPublisher creates the Kafka record publisher.
func ProvideRecordPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.RecordPublisher {
	return internalrepo.NewKafkaRecordPublisher(producer, cfg.Kafka.TicksTopic)
}

// ProvideGate creates the risk gate from configured limits. Config
// values override the conservative defaults only when set.
func ProvideGate(cfg *config.Config) (*risk.Gate, error) {
	loc := time.UTC
	if tz := cfg.Trading.Risk.Timezone; tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("risk timezone: %w", err)
		}
	}
	return risk.NewGate(riskLimits(cfg), loc), nil
}

func riskLimits(cfg *config.Config) risk.Limits {
	limits := risk.DefaultLimits()
	r := cfg.Trading.Risk
	if r.DailyLossLimit > 0 {
		limits.DailyLossLimit = r.DailyLossLimit
	}
	if r.DailyTradeLimit > 0 {
		limits.DailyTradeLimit = r.DailyTradeLimit
	}
	if r.DailyVolumeLimit > 0 {
		limits.DailyVolumeLimit = r.DailyVolumeLimit
	}
	if r.MaxOpenPositions > 0 {
		limits.MaxOpenPositions = r.MaxOpenPositions
	}
	if r.MinVolume > 0 {
		limits.MinVolume = r.MinVolume
	}
	if r.MaxVolume > 0 {
		limits.MaxVolume = r.MaxVolume
	}
	if r.FloatingLossLimit > 0 {
		limits.FloatingLossLimit = r.FloatingLossLimit
	}
	if r.DrawdownLimit > 0 {
		limits.DrawdownLimit = r.DrawdownLimit
	}
	if r.DailyProfitTarget > 0 {
		limits.DailyProfitTarget = r.DailyProfitTarget
	}
	if r.RiskFraction > 0 {
		limits.RiskFraction = r.RiskFraction
	}
	if r.MaxPositionSize > 0 {
		limits.MaxPositionSize = r.MaxPositionSize
	}
	return limits
}

// ProvideAnalyzer creates the microstructure feature analyzer.
func ProvideAnalyzer(cfg *config.Config) *features.Analyzer {
	return features.NewAnalyzer(analyzerConfig(cfg))
}

func analyzerConfig(cfg *config.Config) features.Config {
	fc := features.DefaultConfig()
	f := cfg.Trading.Features
	if f.MinRecords > 0 {
		fc.MinRecords = f.MinRecords
	}
	if f.EMAFastPeriod > 0 {
		fc.EMAFastPeriod = f.EMAFastPeriod
	}
	if f.EMASlowPeriod > 0 {
		fc.EMASlowPeriod = f.EMASlowPeriod
	}
	if f.RSIPeriod > 0 {
		fc.RSIPeriod = f.RSIPeriod
	}
	if f.ATRPeriod > 0 {
		fc.ATRPeriod = f.ATRPeriod
	}
	if f.MomentumPeriod > 0 {
		fc.MomentumPeriod = f.MomentumPeriod
	}
	return fc
}

func signalConfig(cfg *config.Config) signal.Config {
	sc := signal.DefaultConfig()
	s := cfg.Trading.Signal
	if s.MaxSpread > 0 {
		sc.MaxSpread = s.MaxSpread
	}
	if s.DeltaThreshold > 0 {
		sc.DeltaThreshold = s.DeltaThreshold
	}
	if s.DeltaWeight > 0 {
		sc.DeltaWeight = s.DeltaWeight
	}
	if s.VelocityWeight > 0 {
		sc.VelocityWeight = s.VelocityWeight
	}
	if s.VelocityRef > 0 {
		sc.VelocityRef = s.VelocityRef
	}
	if s.VolatilityCap > 0 {
		sc.VolatilityCap = s.VolatilityCap
	}
	if s.MinStrength > 0 {
		sc.MinStrength = s.MinStrength
	}
	if s.RSIOverbought > 0 {
		sc.RSIOverbought = s.RSIOverbought
	}
	if s.RSIOversold > 0 {
		sc.RSIOversold = s.RSIOversold
	}
	if s.SLVolatilityMult > 0 {
		sc.SLVolatilityMult = s.SLVolatilityMult
	}
	if s.TPMode != "" {
		sc.TPMode = s.TPMode
	}
	if s.TPRiskReward > 0 {
		sc.TPRiskReward = s.TPRiskReward
	}
	if s.TPCurrency > 0 {
		sc.TPCurrency = s.TPCurrency
	}
	sc.MLEnabled = cfg.Predictor.Enabled
	return sc
}

// ProvideSynthesizer creates the signal synthesizer.
func ProvideSynthesizer(cfg *config.Config, pred domsvc.Predictor, lgr *logger.Logger) *signal.Synthesizer {
	return signal.New(signalConfig(cfg), pred, lgr)
}

// ProvideCoordinator creates the execution coordinator.
func ProvideCoordinator(
	cfg *config.Config,
	v repository.Venue,
	gate *risk.Gate,
	ledger repository.TradeLedger,
	notifier repository.Notifier,
	m repository.Metrics,
	lgr *logger.Logger,
) *exec.Coordinator {
	e := cfg.Trading.Exec
	return exec.New(exec.Config{
		BotID:                cfg.Trading.BotID,
		Symbol:               cfg.Trading.Symbol,
		Cooldown:             e.Cooldown,
		FloatingLossLimit:    e.FloatingLossLimit,
		FloatingProfitTarget: e.FloatingProfitTarget,
		DailyProfitTarget:    cfg.Trading.Risk.DailyProfitTarget,
		MaxTradeDuration:     e.MaxTradeDuration,
		SessionEndHour:       e.SessionEndHour,
		VenueTimeout:         cfg.Venue.Timeout,
	}, v, gate, ledger, notifier, m, lgr)
}

// ProvideEngine creates the live decision engine.
func ProvideEngine(
	cfg *config.Config,
	stream repository.MarketStream,
	v repository.Venue,
	analyzer *features.Analyzer,
	synth *signal.Synthesizer,
	coord *exec.Coordinator,
	m repository.Metrics,
	lgr *logger.Logger,
) *engine.Engine {
	ec := cfg.Trading.Engine
	return engine.New(engine.Config{
		Symbol:            cfg.Trading.Symbol,
		WindowSize:        ec.WindowSize,
		DecisionInterval:  ec.DecisionInterval,
		QueueSize:         ec.QueueSize,
		ManageInterval:    ec.ManageInterval,
		ReconcileInterval: ec.ReconcileInterval,
		ShutdownTimeout:   ec.ShutdownTimeout,
	}, stream, v, analyzer, synth, coord, m, lgr)
}

// ProvideRecordProcessor creates the archival record processor.
func ProvideRecordProcessor(
	pub repository.RecordPublisher,
	store repository.RecordStore,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.RecordProcessor {
	return usecase.NewRecordProcessor(pub, store, m, cfg.Archive.Backend)
}

// ProvideRecordCollector creates the stream-to-archive collector with
// its validation and throttling pipeline.
func ProvideRecordCollector(
	stream repository.MarketStream,
	proc *usecase.RecordProcessor,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.RecordCollector {
	pipe := mid.NewRecordPipeline(proc, m,
		mid.WithMaxRPS(cfg.Archive.MaxRPS),
		mid.WithBufferSize(cfg.Archive.BufferSize),
	)
	return usecase.NewRecordCollector(stream, proc, m, pipe)
}

// ProvideTicksArchiver creates the Kafka-to-ClickHouse archiver.
func ProvideTicksArchiver(
	store repository.RecordStore,
	bars repository.BarWriter,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.TicksArchiver {
	return usecase.NewTicksArchiver(cfg.Kafka.TicksTopic, store, bars, m)
}

func defaultSymbolInfo(symbol string) models.SymbolInfo {
	return models.SymbolInfo{
		Symbol:          symbol,
		ContractSize:    100000,
		Point:           0.00001,
		MinLot:          0.01,
		MaxLot:          100,
		LotStep:         0.01,
		MinStopDistance: 0.0001,
	}
}

// ProvideBacktestConfig builds the base simulation settings shared by
// every queued run. Per-run request fields override it in the worker.
func ProvideBacktestConfig(cfg *config.Config) backtest.Config {
	e := cfg.Trading.Exec
	// duration limit expressed in bars at the default 1m timeframe
	maxBars := 0
	if e.MaxTradeDuration > 0 {
		maxBars = int(e.MaxTradeDuration / time.Minute)
	}
	return backtest.Config{
		Symbol:               cfg.Trading.Symbol,
		WarmupBars:           cfg.Backtest.WarmupBars,
		FloatingLossLimit:    e.FloatingLossLimit,
		FloatingProfitTarget: e.FloatingProfitTarget,
		MaxTradeBars:         maxBars,
		Info:                 defaultSymbolInfo(cfg.Trading.Symbol),
		Analyzer:             analyzerConfig(cfg),
		Signal:               signalConfig(cfg),
		Limits:               riskLimits(cfg),
	}
}

// ProvideBacktestManager creates the backtest run manager.
func ProvideBacktestManager(
	q queue.QueueService,
	bars repository.BarStore,
	pred domsvc.Predictor,
	base backtest.Config,
	lgr *logger.Logger,
) *usecase.BacktestManager {
	return usecase.NewBacktestManager(q, bars, pred, base, lgr)
}

// ProvideCacheService creates the in-process response cache.
func ProvideCacheService() pkgcache.Service {
	return pkgcache.NewMemoryCache()
}

// ProvideBarsUseCase creates the historical bars query use case.
func ProvideBarsUseCase(bars repository.BarStore, c pkgcache.Service) *usecase.BarsUseCase {
	return usecase.NewBarsUseCase(bars, c)
}

// ProvideControlHandler creates the control-plane HTTP handler.
func ProvideControlHandler(
	lgr *logger.Logger,
	gate *risk.Gate,
	v repository.Venue,
	ledger repository.TradeLedger,
	bars *usecase.BarsUseCase,
	mgr *usecase.BacktestManager,
) *api.ControlHandler {
	return api.NewControlHandler(lgr, gate, v, ledger, bars, mgr)
}

// ProvideApp assembles the application for the configured mode.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	eng *engine.Engine,
	collector *usecase.RecordCollector,
	proc *usecase.RecordProcessor,
	consumer *pkgkafka.Consumer,
	archiver *usecase.TicksArchiver,
	q *queue.RedisQueue,
	mgr *usecase.BacktestManager,
	handler *api.ControlHandler,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
) *server.App {
	return server.New(cfg, lgr, server.Components{
		Engine:      eng,
		Collector:   collector,
		RecordProc:  proc,
		Consumer:    consumer,
		Archiver:    archiver,
		Queue:       q,
		BacktestMgr: mgr,
		Handler:     handler,
		ClickHouse:  ch,
		Producer:    producer,
	})
}
