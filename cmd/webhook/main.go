package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"aura-payments/pkg/config"
	"aura-payments/pkg/db"
	"aura-payments/pkg/gen"
	"aura-payments/pkg/hashistack/secretmanager"
	"aura-payments/pkg/health"
	"aura-payments/pkg/logger"
	"aura-payments/pkg/otelcol"
	"aura-payments/pkg/paystack"
	"aura-payments/pkg/profiling"
	"aura-payments/pkg/ratelimit"
	"aura-payments/pkg/redis"
	"aura-payments/pkg/server"
	"aura-payments/pkg/task"
	"aura-payments/services/audit"
	"aura-payments/services/commerce"
	"aura-payments/services/deadletter"
	"aura-payments/services/dispute"
	"aura-payments/services/refund"
	jobs "aura-payments/services/task"
	"aura-payments/services/webhook"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		gen.Module,
		task.Client,
		paystack.Module,
		health.Module,
		ratelimit.Module,
		audit.Module,
		commerce.Module,
		deadletter.Module,
		deadletter.Gateway,
		refund.Module,
		refund.Gateway,
		dispute.Module,
		jobs.Module,
		jobs.Gateway,
		webhook.Module,
		webhook.Gateway,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
