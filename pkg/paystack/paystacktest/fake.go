// Package paystacktest provides an in-process Provider for tests.
package paystacktest

import (
	"context"
	"encoding/json"
	"sync"

	"aura-payments/pkg/paystack"
)

type EvidenceCall struct {
	DisputeID string
	Evidence  paystack.Evidence
}

// Provider records every call and answers through the optional function
// fields. Unset fields succeed with status=true.
type Provider struct {
	RefundFn   func(ctx context.Context, req paystack.RefundRequest) (*paystack.Response, error)
	EvidenceFn func(ctx context.Context, disputeID string, ev paystack.Evidence) (*paystack.Response, error)

	mu            sync.Mutex
	refundCalls   []paystack.RefundRequest
	evidenceCalls []EvidenceCall
}

func (p *Provider) Refund(ctx context.Context, req paystack.RefundRequest) (*paystack.Response, error) {
	p.mu.Lock()
	p.refundCalls = append(p.refundCalls, req)
	p.mu.Unlock()

	if p.RefundFn != nil {
		return p.RefundFn(ctx, req)
	}
	return OK(), nil
}

func (p *Provider) SubmitDisputeEvidence(ctx context.Context, disputeID string, ev paystack.Evidence) (*paystack.Response, error) {
	p.mu.Lock()
	p.evidenceCalls = append(p.evidenceCalls, EvidenceCall{DisputeID: disputeID, Evidence: ev})
	p.mu.Unlock()

	if p.EvidenceFn != nil {
		return p.EvidenceFn(ctx, disputeID, ev)
	}
	return OK(), nil
}

func (p *Provider) RefundCalls() []paystack.RefundRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]paystack.RefundRequest(nil), p.refundCalls...)
}

func (p *Provider) EvidenceCalls() []EvidenceCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]EvidenceCall(nil), p.evidenceCalls...)
}

// OK is a successful provider envelope.
func OK() *paystack.Response {
	raw := json.RawMessage(`{"status":true,"message":"ok","data":{}}`)
	return &paystack.Response{Status: true, Message: "ok", Data: json.RawMessage(`{}`), Raw: raw}
}

var _ paystack.Provider = (*Provider)(nil)
