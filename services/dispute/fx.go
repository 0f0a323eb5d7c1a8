package dispute

import (
	"aura-payments/pkg/minio"

	"go.uber.org/fx"
)

var Module = fx.Module("dispute.service",
	fx.Provide(
		NewRepository,
		NewService,
	),
)

// Archiving stores evidence packages in the object store.
var Archiving = fx.Module("dispute.archive",
	fx.Provide(func(s *minio.Store) Archive { return s }),
)
