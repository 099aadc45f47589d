package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"offerwall/pkg/config"
	"offerwall/pkg/db"
	"offerwall/pkg/gen"
	"offerwall/pkg/hashistack/secretmanager"
	"offerwall/pkg/health"
	"offerwall/pkg/httpapi"
	"offerwall/pkg/logger"
	"offerwall/pkg/otelcol"
	"offerwall/pkg/profiling"
	"offerwall/pkg/redis"
	"offerwall/pkg/sequence"
	"offerwall/pkg/server"
	"offerwall/pkg/task"
	"offerwall/services/attempt"
	"offerwall/services/callback"
	"offerwall/services/ledger"
	"offerwall/services/migrate"
	"offerwall/services/offer"
	"offerwall/services/payout"
	"offerwall/services/settlement"
	"offerwall/services/user"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		profiling.Module,
		otelcol.Module,
		db.Module,
		migrate.Module,
		redis.Module,
		gen.Module,
		sequence.Module,
		task.Client,
		health.Module,
		httpapi.Module,
		user.Module,
		offer.Module,
		attempt.Module,
		ledger.Module,
		settlement.Module,
		callback.Module,
		payout.Module,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: logger}
	}
	return fxevent.NopLogger
})
