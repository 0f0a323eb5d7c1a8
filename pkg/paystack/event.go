package paystack

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// EventKind is the closed set of event families the pipeline handles.
type EventKind string

const (
	KindUnknown        EventKind = "unknown"
	KindPaymentSuccess EventKind = "payment_success"
	KindPaymentFailure EventKind = "payment_failure"
	KindRefund         EventKind = "refund"
	KindDispute        EventKind = "dispute"
)

// Known event names.
const (
	EventChargeSuccess        = "charge.success"
	EventChargeFailed         = "charge.failed"
	EventRefundPending        = "refund.pending"
	EventRefundProcessing     = "refund.processing"
	EventRefundProcessed      = "refund.processed"
	EventRefundFailed         = "refund.failed"
	EventChargeDisputeCreate  = "charge.dispute.create"
	EventChargeDisputeRemind  = "charge.dispute.remind"
	EventChargeDisputeResolve = "charge.dispute.resolve"
)

var eventKinds = map[string]EventKind{
	EventChargeSuccess:        KindPaymentSuccess,
	EventChargeFailed:         KindPaymentFailure,
	EventRefundPending:        KindRefund,
	EventRefundProcessing:     KindRefund,
	EventRefundProcessed:      KindRefund,
	EventRefundFailed:         KindRefund,
	EventChargeDisputeCreate:  KindDispute,
	EventChargeDisputeRemind:  KindDispute,
	EventChargeDisputeResolve: KindDispute,
}

// KindOf maps an event name onto its kind. Names outside the table are
// KindUnknown.
func KindOf(event string) EventKind {
	if k, ok := eventKinds[strings.ToLower(strings.TrimSpace(event))]; ok {
		return k
	}
	return KindUnknown
}

var ErrMalformedEvent = errors.New("paystack: malformed event")

// Envelope is the webhook body: {event, data}.
type Envelope struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

// EventData keeps the raw data object next to the fields the pipeline reads.
type EventData struct {
	ID                   FlexID      `json:"id"`
	Reference            string      `json:"reference"`
	TransactionReference string      `json:"transaction_reference"`
	Amount               json.Number `json:"amount"`
	Currency             string      `json:"currency"`
	Status               string      `json:"status"`
	Resolution           string      `json:"resolution"`
	Customer             struct {
		Email string `json:"email"`
	} `json:"customer"`
	Transaction struct {
		ID        FlexID      `json:"id"`
		Reference string      `json:"reference"`
		Amount    json.Number `json:"amount"`
	} `json:"transaction"`
	Raw json.RawMessage `json:"-"`
}

func (d *EventData) UnmarshalJSON(b []byte) error {
	type alias EventData
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*d = EventData(a)
	d.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// FlexID accepts identifiers sent either as JSON strings or numbers.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string {
	return string(f)
}

func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
	}
	return &env, nil
}

func (e *Envelope) Kind() EventKind {
	return KindOf(e.Event)
}

// EventID is the provider's identifier for this event, falling back to
// event name plus reference when the payload carries no id.
func (e *Envelope) EventID() string {
	if id := e.Data.ID.String(); id != "" {
		return e.Event + ":" + id
	}
	if ref := e.Data.OrderReference(); ref != "" {
		return e.Event + ":" + ref
	}
	return ""
}

// OrderReference is the charge reference the event is about.
func (d *EventData) OrderReference() string {
	switch {
	case d.TransactionReference != "":
		return d.TransactionReference
	case d.Transaction.Reference != "":
		return d.Transaction.Reference
	default:
		return d.Reference
	}
}

// MinorAmount returns the event amount in minor units, preferring the
// top-level amount over the nested transaction amount.
func (d *EventData) MinorAmount() int64 {
	for _, n := range []json.Number{d.Amount, d.Transaction.Amount} {
		if n == "" {
			continue
		}
		if v, err := n.Int64(); err == nil {
			return v
		}
		if f, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return int64(f)
		}
	}
	return 0
}
