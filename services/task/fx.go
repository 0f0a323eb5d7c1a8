package task

import (
	"aura-payments/pkg/server"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("task.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("task.gateway",
	fx.Provide(server.AsAdminRoute(NewHandler)),
)

// Worker binds the runners to the queue, exposes the jobs RPC and starts
// the scheduler.
var Worker = fx.Module("task.worker",
	fx.Invoke(
		func(svc *Service, mux *asynq.ServeMux) { svc.Register(mux) },
		RegisterJobsServer,
		StartScheduler,
	),
)
