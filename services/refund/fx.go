package refund

import (
	"aura-payments/pkg/server"

	"go.uber.org/fx"
)

var Module = fx.Module("refund.service",
	fx.Provide(
		NewRepository,
		NewService,
	),
)

var Gateway = fx.Module("refund.gateway",
	fx.Provide(server.AsAdminRoute(NewHandler)),
)
