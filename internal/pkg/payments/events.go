package payments

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v74"
)

// EventKind is the closed set of provider event kinds this system acts on.
// Everything else decodes to EventUnknown and is acknowledged without effect,
// so new provider event types never fail delivery.
type EventKind string

const (
	EventCheckoutCompleted   EventKind = "checkout_completed"
	EventInvoicePaid         EventKind = "invoice_paid"
	EventSubscriptionDeleted EventKind = "subscription_deleted"
	EventUnknown             EventKind = "unknown"
)

// Event is the typed decoding of one provider webhook delivery. Exactly one
// of the payload pointers matching Kind is non-nil.
type Event struct {
	ID   string
	Type string
	Kind EventKind

	CheckoutCompleted   *CheckoutCompletedPayload
	InvoicePaid         *InvoicePaidPayload
	SubscriptionDeleted *SubscriptionDeletedPayload
}

// CheckoutCompletedPayload carries the fields used from a completed checkout
// session. Metadata holds the userId/planId/billingCycle correlation values
// this system attached when creating the session.
type CheckoutCompletedPayload struct {
	SessionID      string
	Mode           string
	SubscriptionID string
	Metadata       map[string]string
}

// InvoicePaidPayload carries the subscription reference and the new period
// end from a successful recurring invoice.
type InvoicePaidPayload struct {
	SubscriptionID string
	PeriodEnd      time.Time
}

// SubscriptionDeletedPayload carries the provider id of a cancelled
// subscription.
type SubscriptionDeletedPayload struct {
	SubscriptionID string
}

// DecodeEvent maps a verified provider event onto the closed event union.
// Decoding touches only the fields this system consumes.
func DecodeEvent(ev *stripe.Event) (*Event, error) {
	out := &Event{
		ID:   ev.ID,
		Type: string(ev.Type),
		Kind: EventUnknown,
	}

	switch ev.Type {
	case "checkout.session.completed":
		var session struct {
			ID           string            `json:"id"`
			Mode         string            `json:"mode"`
			Subscription string            `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		}
		if err := json.Unmarshal(ev.Data.Raw, &session); err != nil {
			return nil, err
		}
		out.Kind = EventCheckoutCompleted
		out.CheckoutCompleted = &CheckoutCompletedPayload{
			SessionID:      session.ID,
			Mode:           session.Mode,
			SubscriptionID: session.Subscription,
			Metadata:       session.Metadata,
		}

	case "invoice.payment_succeeded":
		var invoice struct {
			Subscription string `json:"subscription"`
			PeriodEnd    int64  `json:"period_end"`
		}
		if err := json.Unmarshal(ev.Data.Raw, &invoice); err != nil {
			return nil, err
		}
		out.Kind = EventInvoicePaid
		out.InvoicePaid = &InvoicePaidPayload{
			SubscriptionID: invoice.Subscription,
			PeriodEnd:      time.Unix(invoice.PeriodEnd, 0),
		}

	case "customer.subscription.deleted":
		var sub struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, err
		}
		out.Kind = EventSubscriptionDeleted
		out.SubscriptionDeleted = &SubscriptionDeletedPayload{SubscriptionID: sub.ID}
	}

	return out, nil
}
