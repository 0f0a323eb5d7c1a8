package sla

import "go.uber.org/fx"

var Module = fx.Module("sla.service",
	fx.Provide(NewService),
)
