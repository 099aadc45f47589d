package main

import (
	"log"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"offerwall/pkg/config"
	"offerwall/pkg/db"
	"offerwall/pkg/gen"
	"offerwall/pkg/hashistack/secretmanager"
	"offerwall/pkg/logger"
	"offerwall/pkg/otelcol"
	"offerwall/pkg/profiling"
	"offerwall/pkg/redis"
	"offerwall/pkg/sequence"
	"offerwall/pkg/task"
	"offerwall/services/attempt"
	"offerwall/services/callback"
	"offerwall/services/ledger"
	"offerwall/services/offer"
	"offerwall/services/payout"
	"offerwall/services/settlement"
	"offerwall/services/user"
)

// The worker replays unfinished postbacks and picks up requested payouts.
// It shares the API's database and redis but serves no HTTP routes.
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		profiling.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		task.Client,
		task.Server,
		fx.Provide(
			user.NewDirectory,
			offer.NewCatalog,
			attempt.NewTracker,
			ledger.NewService,
			settlement.NewEngine,
		),
		callback.Worker,
		callback.Sweeper,
		payout.Worker,
		fx.Invoke(func(trace.TracerProvider) {}),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
