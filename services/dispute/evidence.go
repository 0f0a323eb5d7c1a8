package dispute

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"aura-payments/services/commerce"
)

// Package is the evidence gathered for one submission.
type Package struct {
	Dispute     *Dispute
	Order       *commerce.Order
	Items       []commerce.OrderItem
	Transaction *commerce.Transaction
	// Prior is evidence attached by people, never the worker's own packages.
	Prior []Evidence

	// checksum of the last package the worker archived, if any
	archived string
}

// Render produces the plain-text evidence document sent to the provider
// and archived alongside the dispute.
func (p *Package) Render(at time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Dispute %s (provider reference %s)\n", p.Dispute.ID, p.Dispute.ProviderReference)
	fmt.Fprintf(&b, "Prepared at %s\n\n", at.UTC().Format(time.RFC3339))
	b.WriteString(p.body())
	return b.String()
}

// Checksum identifies the package content, independent of when it was
// prepared.
func (p *Package) Checksum() string {
	sum := sha256.Sum256([]byte(p.Dispute.ID + "\n" + p.body()))
	return hex.EncodeToString(sum[:])
}

// Changed reports whether the content differs from the last archived package.
func (p *Package) Changed() bool {
	return p.archived != p.Checksum()
}

func (p *Package) body() string {
	var b strings.Builder

	if p.Order == nil {
		b.WriteString("Order: not found\n")
	} else {
		o := p.Order
		fmt.Fprintf(&b, "Order %s\n", o.Reference)
		fmt.Fprintf(&b, "  status: %s\n", o.Status)
		fmt.Fprintf(&b, "  customer: %s\n", o.CustomerEmail)
		fmt.Fprintf(&b, "  total: %.2f %s\n", o.GrandTotal, o.Currency)
		if o.PaidAt != nil {
			fmt.Fprintf(&b, "  paid at: %s\n", o.PaidAt.UTC().Format(time.RFC3339))
		}
	}

	if len(p.Items) > 0 {
		b.WriteString("\nItems\n")
		for _, it := range p.Items {
			fmt.Fprintf(&b, "  - %s x%d @ %.2f\n", it.ProductName, it.Quantity, it.UnitPrice)
		}
	}

	if p.Transaction != nil {
		t := p.Transaction
		fmt.Fprintf(&b, "\nTransaction %s\n", t.ProviderReference)
		fmt.Fprintf(&b, "  status: %s\n", t.Status)
		fmt.Fprintf(&b, "  amount: %.2f %s\n", t.Amount, t.Currency)
	}

	if len(p.Prior) > 0 {
		b.WriteString("\nPreviously submitted evidence\n")
		for _, ev := range p.Prior {
			fmt.Fprintf(&b, "  - %s: %s (%s)\n", ev.UploadedAt.UTC().Format(time.RFC3339), ev.Description, ev.FileReference)
		}
	}

	return b.String()
}

func (p *Package) CustomerEmail() string {
	if p.Order == nil {
		return ""
	}
	return p.Order.CustomerEmail
}
