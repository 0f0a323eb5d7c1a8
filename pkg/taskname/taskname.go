package taskname

const (
	// Refund tasks
	RefundReconcile = "refund:reconcile"

	// Dispute tasks
	DisputeReconcile = "dispute:reconcile"

	// Finance tasks
	FinanceReconcile = "finance:reconcile"

	// Supplier tasks
	SupplierSLAScore = "supplier:sla:score"
)

// All lists the periodic tasks in scheduling order.
var All = []string{
	RefundReconcile,
	DisputeReconcile,
	FinanceReconcile,
	SupplierSLAScore,
}
