package bootstrap

import (
	"context"
	"fmt"

	"aura-payments/services/audit"
	"aura-payments/services/commerce"
	"aura-payments/services/deadletter"
	"aura-payments/services/dispute"
	"aura-payments/services/finance"
	"aura-payments/services/refund"
	"aura-payments/services/sla"
	"aura-payments/services/task"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB}
}

// Models lists every table the pipeline owns.
func Models() []any {
	models := []any{
		&audit.InboundEvent{},
		&deadletter.Entry{},
		&refund.Refund{},
	}
	models = append(models, commerce.Models()...)
	models = append(models, dispute.Models()...)
	models = append(models, finance.Models()...)
	models = append(models, sla.Models()...)
	models = append(models, task.Models()...)
	return models
}

// Migrate creates or alters tables and indexes to match the models.
func (s *Service) Migrate(ctx context.Context) error {
	models := Models()
	if err := s.db.WithContext(ctx).AutoMigrate(models...); err != nil {
		zap.L().Error("[bootstrap] schema migration failed", zap.Error(err))
		return fmt.Errorf("auto migrate: %w", err)
	}

	zap.L().Info("[bootstrap] schema migrated", zap.Int("tables", len(models)))
	return nil
}
