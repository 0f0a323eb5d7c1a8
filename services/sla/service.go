package sla

import (
	"context"
	"sync"
	"time"

	"aura-payments/pkg/config"
	"aura-payments/pkg/db/option"
	"aura-payments/pkg/repository"
	"aura-payments/services/commerce"
	"aura-payments/services/dispute"
	"aura-payments/services/refund"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	now      func() time.Time
	cfg      config.Workers
	commerce commerce.Repository
	metrics  repository.Repository[SupplierMetric]
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Commerce commerce.Repository
}

func NewService(p Params) *Service {
	workers := p.Config.Workers
	workers.ApplyDefaults()

	return &Service{
		db:       p.DB,
		node:     p.Node,
		now:      time.Now,
		cfg:      workers,
		commerce: p.Commerce,
		metrics:  repository.ProvideStore[SupplierMetric](p.DB),
	}
}

type Summary struct {
	Suppliers int            `json:"suppliers"`
	Grades    map[string]int `json:"grades"`
}

// Score appends a metric snapshot for every supplier with orders in the
// rolling window ending now.
func (s *Service) Score(ctx context.Context) (*Summary, error) {
	end := s.now()
	start := end.Add(-s.cfg.SLA.Window)

	suppliers, err := s.commerce.SupplierNamesSince(ctx, start)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Grades: map[string]int{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SLA.Concurrency)
	for _, name := range suppliers {
		g.Go(func() error {
			m, err := s.scoreSupplier(gctx, name, start, end)
			if err != nil {
				zap.L().Error("[SLA] failed to score supplier", zap.String("supplier", name), zap.Error(err))
				return err
			}

			mu.Lock()
			summary.Suppliers++
			summary.Grades[m.Grade]++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	zap.L().Info("[SLA] supplier scoring finished", zap.Int("suppliers", summary.Suppliers), zap.Any("grades", summary.Grades))
	return summary, nil
}

func (s *Service) scoreSupplier(ctx context.Context, supplier string, start, end time.Time) (*SupplierMetric, error) {
	orders, err := s.commerce.SupplierOrdersSince(ctx, supplier, start)
	if err != nil {
		return nil, err
	}

	counts := Counts{Total: len(orders)}
	orderIDs := make([]string, 0, len(orders))
	for i := range orders {
		so := &orders[i]
		orderIDs = append(orderIDs, so.OrderID)

		switch so.Status {
		case commerce.SupplierOrderDelivered:
			counts.Delivered++
			if so.LastStatusUpdate != nil && so.LastStatusUpdate.Sub(so.CreatedAt) <= s.cfg.SLA.OnTimeAfter {
				counts.OnTime++
			}
		case commerce.SupplierOrderCancelled:
			counts.Cancelled++
		}
	}

	if counts.Returned, err = s.countFullRefunds(ctx, orderIDs); err != nil {
		return nil, err
	}
	if counts.Disputed, err = s.countDisputed(ctx, orderIDs); err != nil {
		return nil, err
	}

	rates := counts.Rates()
	score := rates.Score()
	m := &SupplierMetric{
		ID:                 s.node.Generate().String(),
		SupplierName:       supplier,
		WindowStart:        start,
		WindowEnd:          end,
		TotalOrders:        counts.Total,
		FulfillmentRate:    rates.Fulfillment,
		OnTimeDeliveryRate: rates.OnTime,
		CancellationRate:   rates.Cancellation,
		ReturnRate:         rates.Return,
		SatisfactionScore:  rates.Satisfaction,
		Score:              score,
		Grade:              Grade(score),
		CalculatedAt:       end,
	}
	if err := s.metrics.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// countFullRefunds counts orders with a completed refund covering the
// whole grand total.
func (s *Service) countFullRefunds(ctx context.Context, orderIDs []string) (int, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}

	var n int64
	err := s.db.WithContext(ctx).
		Table("refunds AS r").
		Joins("JOIN orders AS o ON o.id = r.order_id").
		Where("r.status = ? AND r.amount >= o.grand_total AND r.order_id IN ?", refund.StatusCompleted, orderIDs).
		Distinct("r.order_id").
		Count(&n).Error
	return int(n), err
}

func (s *Service) countDisputed(ctx context.Context, orderIDs []string) (int, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}

	var n int64
	err := s.db.WithContext(ctx).Model(&dispute.Dispute{}).
		Where("order_id IN ?", orderIDs).
		Distinct("order_id").
		Count(&n).Error
	return int(n), err
}

// History returns the snapshots of supplier, newest first.
func (s *Service) History(ctx context.Context, supplier string) ([]*SupplierMetric, error) {
	return s.metrics.Find(ctx, &SupplierMetric{SupplierName: supplier},
		option.WithSortBy(option.QuerySortBy{SortBy: "calculated_at", OrderBy: "desc"}),
	)
}
