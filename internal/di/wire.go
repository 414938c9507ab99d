//go:build wireinject
// +build wireinject

package di

import (
	"TradePilot/pkg/config"
	"TradePilot/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,
		ProvideQueue,
		ProvideQueueService,

		// Venue and external services
		ProvideMarketStream,
		ProvideVenue,
		ProvidePredictor,
		ProvideNotifier,

		// Repositories
		ProvideLedger,
		ProvideBarStore,
		ProvideBarReader,
		ProvideBarWriter,
		ProvideRecordStore,
		ProvideRecordPublisher,

		// Decision chain
		ProvideGate,
		ProvideAnalyzer,
		ProvideSynthesizer,
		ProvideCoordinator,
		ProvideEngine,

		// Archival chain
		ProvideRecordProcessor,
		ProvideRecordCollector,
		ProvideTicksArchiver,

		// Backtesting and control plane
		ProvideBacktestConfig,
		ProvideBacktestManager,
		ProvideCacheService,
		ProvideBarsUseCase,
		ProvideControlHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
