package task

import (
	"context"

	"aura-payments/pkg/config"
	"aura-payments/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Schedule is one periodic task and its cron spec.
type Schedule struct {
	Name        string
	Cron        string
	Description string
}

// Schedules derives the cron table from the worker config.
func Schedules(w config.Workers) []Schedule {
	w.ApplyDefaults()
	return []Schedule{
		{Name: taskname.RefundReconcile, Cron: w.Refund.Cron, Description: "Replay refund dead letters and resubmit pending refunds."},
		{Name: taskname.DisputeReconcile, Cron: w.Dispute.Cron, Description: "Submit dispute evidence and escalate stale disputes."},
		{Name: taskname.FinanceReconcile, Cron: w.Finance.Cron, Description: "Book yesterday's ledger entries and propose supplier settlements."},
		{Name: taskname.SupplierSLAScore, Cron: w.SLA.Cron, Description: "Score supplier fulfilment over the rolling window."},
	}
}

// SyncTasks upserts the Task registry so operators can see what runs when.
func (s *Service) SyncTasks(ctx context.Context, schedules []Schedule) error {
	for _, sc := range schedules {
		existing, err := s.tasks.FindOne(ctx, &Task{Name: sc.Name})
		if err != nil {
			return err
		}
		if existing == nil {
			if err := s.tasks.Create(ctx, &Task{
				ID:          s.node.Generate().String(),
				Name:        sc.Name,
				Description: sc.Description,
				Schedule:    sc.Cron,
				IsActive:    true,
			}); err != nil {
				return err
			}
			continue
		}
		if existing.Schedule != sc.Cron || existing.Description != sc.Description {
			if err := s.tasks.Update(ctx, existing.ID, map[string]any{
				"schedule":    sc.Cron,
				"description": sc.Description,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

type SchedulerParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	Redis     asynq.RedisClientOpt
	Service   *Service
}

// StartScheduler registers every active task on an asynq scheduler bound
// to the fx lifecycle.
func StartScheduler(p SchedulerParams) error {
	scheduler := asynq.NewScheduler(p.Redis, &asynq.SchedulerOpts{
		Location: p.Config.Location(),
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				zap.L().Warn("[Scheduler] enqueue skipped", zap.Error(err))
				return
			}
			zap.L().Info("[Scheduler] enqueued", zap.String("task", info.Type), zap.String("queue_task_id", info.ID))
		},
	})

	schedules := Schedules(p.Config.Workers)
	for _, sc := range schedules {
		entryID, err := scheduler.Register(sc.Cron, asynq.NewTask(sc.Name, nil), taskOptions(p.Service.cfg.LeaseTTL)...)
		if err != nil {
			zap.L().Error("[Scheduler] invalid schedule", zap.String("task", sc.Name), zap.String("cron", sc.Cron), zap.Error(err))
			return err
		}
		zap.L().Info("[Scheduler] registered", zap.String("task", sc.Name), zap.String("cron", sc.Cron), zap.String("entry_id", entryID))
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := p.Service.SyncTasks(ctx, schedules); err != nil {
				zap.L().Warn("[Scheduler] task registry not synced", zap.Error(err))
			}
			return scheduler.Start()
		},
		OnStop: func(ctx context.Context) error {
			scheduler.Shutdown()
			zap.L().Info("[Scheduler] stopped")
			return nil
		},
	})
	return nil
}
