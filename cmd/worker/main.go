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
	"aura-payments/pkg/logger"
	"aura-payments/pkg/minio"
	"aura-payments/pkg/otelcol"
	"aura-payments/pkg/paystack"
	"aura-payments/pkg/profiling"
	"aura-payments/pkg/server"
	"aura-payments/pkg/task"
	"aura-payments/services/commerce"
	"aura-payments/services/deadletter"
	"aura-payments/services/dispute"
	"aura-payments/services/finance"
	"aura-payments/services/refund"
	"aura-payments/services/sla"
	jobs "aura-payments/services/task"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		gen.Module,
		minio.Client,
		paystack.Module,
		task.Client,
		task.Server,
		commerce.Module,
		deadletter.Module,
		refund.Module,
		dispute.Module,
		dispute.Archiving,
		finance.Module,
		sla.Module,
		jobs.Module,
		jobs.Worker,
		server.ProvideGRPCServer,
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
