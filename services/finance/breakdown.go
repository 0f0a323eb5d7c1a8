package finance

import "math"

// Rates are the fractional fees applied to each order.
type Rates struct {
	Processor float64
	Platform  float64
}

// Breakdown is the money split of one paid order. Every field is rounded
// to two decimals when computed.
type Breakdown struct {
	GrandTotal   float64
	SupplierCost float64
	PaystackFee  float64
	GrossProfit  float64
	PlatformFee  float64
	NetRevenue   float64
	AuraNet      float64
}

func Compute(grandTotal, supplierCost float64, r Rates) Breakdown {
	b := Breakdown{
		GrandTotal:   round2(grandTotal),
		SupplierCost: round2(supplierCost),
	}
	b.PaystackFee = round2(b.GrandTotal * r.Processor)
	b.GrossProfit = round2(b.GrandTotal - b.SupplierCost)
	b.PlatformFee = round2(b.GrossProfit * r.Platform)
	b.NetRevenue = round2(b.GrandTotal - b.PaystackFee - b.PlatformFee)
	b.AuraNet = round2(b.NetRevenue - b.SupplierCost)
	return b
}

// Line is one ledger line before it is persisted.
type Line struct {
	Type     EntryType
	Category Category
	Amount   float64
}

// Lines returns the signed ledger lines, omitting zero components.
func (b Breakdown) Lines() []Line {
	all := []Line{
		{Type: EntryAuraNet, Category: CategoryRevenue, Amount: b.AuraNet},
		{Type: EntryPaystackFee, Category: CategoryExpense, Amount: -b.PaystackFee},
		{Type: EntryPlatformFee, Category: CategoryRevenue, Amount: b.PlatformFee},
		{Type: EntrySupplierPayout, Category: CategoryExpense, Amount: -b.SupplierCost},
	}

	out := make([]Line, 0, len(all))
	for _, l := range all {
		if l.Amount == 0 {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Retained is what the platform keeps from the order: the revenue lines,
// which always equal grand_total - supplier_cost - paystack_fee.
func (b Breakdown) Retained() float64 {
	var sum float64
	for _, l := range b.Lines() {
		if l.Category == CategoryRevenue {
			sum += l.Amount
		}
	}
	return round2(sum)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
