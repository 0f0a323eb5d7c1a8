package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"aura-payments/pkg/config"
	"aura-payments/pkg/db"
	"aura-payments/pkg/hashistack/secretmanager"
	"aura-payments/pkg/logger"
	"aura-payments/services/bootstrap"
)

func main() {
	app := fx.New(
		secretmanager.Module,
		config.Module,
		logger.Module,
		db.Module,
		bootstrap.Module,
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
