package deadletter

import (
	"aura-payments/pkg/server"

	"go.uber.org/fx"
)

var Module = fx.Module("deadletter.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("deadletter.gateway",
	fx.Provide(server.AsAdminRoute(NewHandler)),
)
