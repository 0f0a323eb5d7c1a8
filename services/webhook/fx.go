package webhook

import (
	"aura-payments/pkg/server"

	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("webhook.gateway",
	fx.Provide(server.AsRoute(NewHandler)),
)
