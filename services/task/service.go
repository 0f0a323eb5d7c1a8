package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aura-payments/pkg/config"
	"aura-payments/pkg/db/option"
	"aura-payments/pkg/db/pagination"
	"aura-payments/pkg/errutil"
	"aura-payments/pkg/repository"
	pkgtask "aura-payments/pkg/task"
	"aura-payments/pkg/taskname"
	"aura-payments/services/dispute"
	"aura-payments/services/finance"
	"aura-payments/services/refund"
	"aura-payments/services/sla"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "job_runs_total",
	Help: "Periodic job runs by task and final status.",
}, []string{"task", "status"})

// Runner executes one run of a task and returns its summary.
type Runner func(ctx context.Context, payload []byte) (any, error)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	now  func() time.Time
	cfg  config.Workers

	jobs     repository.Repository[Job]
	tasks    repository.Repository[Task]
	runners  map[string]Runner
	enqueuer pkgtask.Enqueuer
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Enqueuer pkgtask.Enqueuer `optional:"true"`

	Refunds  *refund.Service  `optional:"true"`
	Disputes *dispute.Service `optional:"true"`
	Finance  *finance.Service `optional:"true"`
	SLA      *sla.Service     `optional:"true"`
}

func NewService(p Params) *Service {
	workers := p.Config.Workers
	workers.ApplyDefaults()

	s := &Service{
		db:       p.DB,
		node:     p.Node,
		now:      time.Now,
		cfg:      workers,
		jobs:     repository.ProvideStore[Job](p.DB),
		tasks:    repository.ProvideStore[Task](p.DB),
		runners:  map[string]Runner{},
		enqueuer: p.Enqueuer,
	}

	if p.Refunds != nil {
		s.runners[taskname.RefundReconcile] = func(ctx context.Context, _ []byte) (any, error) {
			return p.Refunds.Reconcile(ctx)
		}
	}
	if p.Disputes != nil {
		s.runners[taskname.DisputeReconcile] = func(ctx context.Context, _ []byte) (any, error) {
			return p.Disputes.Reconcile(ctx)
		}
	}
	if p.Finance != nil {
		s.runners[taskname.FinanceReconcile] = func(ctx context.Context, payload []byte) (any, error) {
			var req FinancePayload
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &req); err != nil {
					return nil, fmt.Errorf("%w: %v", asynq.SkipRetry, err)
				}
			}
			if req.Date != "" {
				return p.Finance.ReconcileDay(ctx, req.Date)
			}
			return p.Finance.Reconcile(ctx)
		}
	}
	if p.SLA != nil {
		s.runners[taskname.SupplierSLAScore] = func(ctx context.Context, _ []byte) (any, error) {
			return p.SLA.Score(ctx)
		}
	}
	return s
}

// FinancePayload optionally pins a finance run to one past day.
type FinancePayload struct {
	Date string `json:"date,omitempty"`
}

// Register binds every available runner to the asynq mux.
func (s *Service) Register(mux *asynq.ServeMux) {
	for name := range s.runners {
		mux.HandleFunc(name, s.Handle)
	}
}

func (s *Service) Handle(ctx context.Context, t *asynq.Task) error {
	_, err := s.Run(ctx, t.Type(), t.Payload())
	return err
}

// Run executes one task run and records it as a Job.
func (s *Service) Run(ctx context.Context, name string, payload []byte) (*Job, error) {
	runner, ok := s.runners[name]
	if !ok {
		return nil, errutil.NotFound("unknown task", nil, errutil.WithDetails(errutil.Detail{Field: "name", Message: name}))
	}

	started := s.now()
	job := &Job{
		ID:        s.node.Generate().String(),
		TaskName:  name,
		Status:    JobRunning,
		StartedAt: &started,
	}
	if id, ok := asynq.GetTaskID(ctx); ok {
		job.QueueTaskID = id
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	zap.L().Info("[Job] started", zap.String("task", name), zap.String("job_id", job.ID))

	result, runErr := runner(ctx, payload)

	completed := s.now()
	job.CompletedAt = &completed
	job.Status = JobSuccess
	if runErr != nil {
		job.Status = JobFailed
		job.ErrorMsg = runErr.Error()
	}
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			job.Metadata = datatypes.JSON(b)
		}
	}

	updates := map[string]any{
		"status":       job.Status,
		"error_msg":    job.ErrorMsg,
		"completed_at": completed,
		"metadata":     job.Metadata,
	}
	if err := s.jobs.Update(ctx, job.ID, updates); err != nil {
		zap.L().Error("[Job] failed to record completion", zap.String("job_id", job.ID), zap.Error(err))
	}
	jobRuns.WithLabelValues(name, string(job.Status)).Inc()

	if runErr != nil {
		zap.L().Error("[Job] failed", zap.String("task", name), zap.String("job_id", job.ID), zap.Error(runErr))
		return job, runErr
	}
	zap.L().Info("[Job] finished",
		zap.String("task", name),
		zap.String("job_id", job.ID),
		zap.Duration("duration", completed.Sub(started)),
	)
	return job, nil
}

// Trigger enqueues an out-of-schedule run. A run already queued for the
// same task is a conflict.
func (s *Service) Trigger(ctx context.Context, name string, payload []byte) (*asynq.TaskInfo, error) {
	if !known(name) {
		return nil, errutil.NotFound("unknown task", nil, errutil.WithDetails(errutil.Detail{Field: "name", Message: name}))
	}
	if s.enqueuer == nil {
		return nil, errutil.New(errutil.StatusServiceUnavailable, "task queue not configured")
	}

	info, err := s.enqueuer.Enqueue(ctx, asynq.NewTask(name, payload), taskOptions(s.cfg.LeaseTTL)...)
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil, errutil.Conflict("task already queued", err)
	}
	if err != nil {
		return nil, err
	}

	zap.L().Info("[Job] triggered", zap.String("task", name), zap.String("queue_task_id", info.ID))
	return info, nil
}

// Jobs lists run records, optionally for a single task.
func (s *Service) Jobs(ctx context.Context, name string, page pagination.Pagination) ([]*Job, *pagination.PageInfo, error) {
	jobs, err := s.jobs.Find(ctx, &Job{TaskName: name}, option.ApplyPagination(page))
	if err != nil {
		return nil, nil, err
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 250 {
		limit = 250
	}
	info := pagination.BuildCursorPageInfo(jobs, int32(limit), func(j *Job) string {
		c, _ := pagination.EncodeCursor(pagination.Cursor{ID: j.ID})
		return c
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, info, nil
}

// taskOptions keeps at most one queued run per task for the lease window.
func taskOptions(ttl time.Duration) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(pkgtask.QueueDefault),
		asynq.Unique(ttl),
		asynq.MaxRetry(3),
		asynq.Timeout(ttl),
	}
}

func known(name string) bool {
	for _, n := range taskname.All {
		if n == name {
			return true
		}
	}
	return false
}
