package commerce

import "go.uber.org/fx"

var Module = fx.Module("commerce.repository",
	fx.Provide(NewRepository),
)
