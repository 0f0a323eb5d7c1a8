package finance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"aura-payments/pkg/config"
	"aura-payments/pkg/db"
	"aura-payments/pkg/repository"
	"aura-payments/services/commerce"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	now   func() time.Time
	loc   *time.Location
	rates Rates

	commerce    commerce.Repository
	ledger      repository.Repository[LedgerEntry]
	settlements repository.Repository[SupplierSettlement]
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
		db:   p.DB,
		node: p.Node,
		now:  time.Now,
		loc:  p.Config.Location(),
		rates: Rates{
			Processor: workers.Finance.ProcessorFee,
			Platform:  workers.Finance.PlatformFee,
		},
		commerce:    p.Commerce,
		ledger:      repository.ProvideStore[LedgerEntry](p.DB),
		settlements: repository.ProvideStore[SupplierSettlement](p.DB),
	}
}

// Period is the half-open day [Start, End) a run reconciles.
type Period struct {
	Start time.Time
	End   time.Time
}

// Yesterday returns the calendar day before at in loc.
func Yesterday(at time.Time, loc *time.Location) Period {
	local := at.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Period{Start: today.AddDate(0, 0, -1), End: today}
}

// Day parses a YYYY-MM-DD date into its calendar day in loc.
func Day(date string, loc *time.Location) (Period, error) {
	start, err := time.ParseInLocation(time.DateOnly, date, loc)
	if err != nil {
		return Period{}, err
	}
	return Period{Start: start, End: start.AddDate(0, 0, 1)}, nil
}

type Summary struct {
	PeriodStart      time.Time `json:"period_start"`
	Orders           int       `json:"orders"`
	OrdersSkipped    int       `json:"orders_skipped"`
	LedgerEntries    int       `json:"ledger_entries"`
	Settlements      int       `json:"settlements"`
	SettlementsExist int       `json:"settlements_existing"`
}

// Reconcile books the ledger and proposes settlements for the day before
// the current time.
func (s *Service) Reconcile(ctx context.Context) (*Summary, error) {
	return s.ReconcilePeriod(ctx, Yesterday(s.now(), s.loc))
}

// ReconcileDay backfills one past day given as YYYY-MM-DD.
func (s *Service) ReconcileDay(ctx context.Context, date string) (*Summary, error) {
	p, err := Day(date, s.loc)
	if err != nil {
		return nil, err
	}
	return s.ReconcilePeriod(ctx, p)
}

func (s *Service) ReconcilePeriod(ctx context.Context, p Period) (*Summary, error) {
	summary := &Summary{PeriodStart: p.Start}

	if err := s.bookLedger(ctx, p, summary); err != nil {
		return summary, fmt.Errorf("book ledger: %w", err)
	}
	if err := s.proposeSettlements(ctx, p, summary); err != nil {
		return summary, fmt.Errorf("propose settlements: %w", err)
	}

	zap.L().Info("[Finance] reconciliation finished",
		zap.Time("period_start", p.Start),
		zap.Int("orders", summary.Orders),
		zap.Int("orders_skipped", summary.OrdersSkipped),
		zap.Int("ledger_entries", summary.LedgerEntries),
		zap.Int("settlements", summary.Settlements),
	)
	return summary, nil
}

func (s *Service) bookLedger(ctx context.Context, p Period, summary *Summary) error {
	orders, err := s.commerce.PaidOrdersBetween(ctx, p.Start, p.End)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	supplierOrders, err := s.commerce.SupplierOrdersByOrders(ctx, ids)
	if err != nil {
		return err
	}

	costs := make(map[string]float64, len(orders))
	for i := range supplierOrders {
		costs[supplierOrders[i].OrderID] += supplierOrders[i].Payable()
	}

	for _, o := range orders {
		booked, err := s.ledger.Count(ctx, &LedgerEntry{OrderID: o.ID})
		if err != nil {
			return err
		}
		if booked > 0 {
			summary.OrdersSkipped++
			continue
		}

		b := Compute(o.GrandTotal, costs[o.ID], s.rates)
		entries := make([]*LedgerEntry, 0, 4)
		for _, line := range b.Lines() {
			entries = append(entries, &LedgerEntry{
				ID:          s.node.Generate().String(),
				EntryDate:   p.Start,
				EntryType:   line.Type,
				Amount:      line.Amount,
				Category:    line.Category,
				OrderID:     o.ID,
				Description: fmt.Sprintf("%s for order %s", line.Type, o.Reference),
			})
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.ledger.WithTrx(tx).BatchCreate(ctx, entries)
		})
		if db.IsUniqueViolation(err) {
			summary.OrdersSkipped++
			continue
		}
		if err != nil {
			return err
		}

		summary.Orders++
		summary.LedgerEntries += len(entries)
	}
	return nil
}

func (s *Service) proposeSettlements(ctx context.Context, p Period, summary *Summary) error {
	delivered, err := s.commerce.DeliveredSupplierOrdersBetween(ctx, p.Start, p.End)
	if err != nil {
		return err
	}

	type total struct {
		amount float64
		count  int
	}
	bySupplier := make(map[string]*total)
	for i := range delivered {
		so := &delivered[i]
		t, ok := bySupplier[so.SupplierName]
		if !ok {
			t = &total{}
			bySupplier[so.SupplierName] = t
		}
		t.amount += so.Payable()
		t.count++
	}

	suppliers := make([]string, 0, len(bySupplier))
	for name := range bySupplier {
		suppliers = append(suppliers, name)
	}
	sort.Strings(suppliers)

	for _, name := range suppliers {
		existing, err := s.settlements.FindOne(ctx, &SupplierSettlement{SupplierName: name, PeriodStart: p.Start})
		if err != nil {
			return err
		}
		if existing != nil {
			summary.SettlementsExist++
			continue
		}

		t := bySupplier[name]
		err = s.settlements.Create(ctx, &SupplierSettlement{
			ID:           s.node.Generate().String(),
			SupplierName: name,
			PeriodStart:  p.Start,
			PeriodEnd:    p.End,
			TotalAmount:  round2(t.amount),
			OrderCount:   t.count,
			Status:       SettlementProposed,
		})
		if db.IsUniqueViolation(err) {
			summary.SettlementsExist++
			continue
		}
		if err != nil {
			return err
		}
		summary.Settlements++
	}
	return nil
}

func (s *Service) Entries(ctx context.Context, orderID string) ([]*LedgerEntry, error) {
	return s.ledger.Find(ctx, &LedgerEntry{OrderID: orderID})
}
