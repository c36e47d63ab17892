package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/nkoenig/assetvault/app/models"
	"github.com/nkoenig/assetvault/app/repository"
	"github.com/nkoenig/assetvault/internal/pkg/subscription"
	"github.com/stripe/stripe-go/v74/webhook"
	"gorm.io/gorm"
)

// ErrInvalidSignature is returned when a webhook payload fails signature
// verification. The handler must reject the delivery without storing or
// applying anything.
var ErrInvalidSignature = errors.New("webhook signature verification failed")

// ErrInvalidBillingCycle is returned when a checkout requests a billing
// cycle outside the known enum.
var ErrInvalidBillingCycle = errors.New("invalid billing cycle")

// Metadata keys attached to checkout sessions and read back from
// checkout.session.completed events.
const (
	metaUserID       = "userId"
	metaPlanID       = "planId"
	metaBillingCycle = "billingCycle"
)

// Config carries the provider credentials and redirect targets.
type Config struct {
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Currency      string
}

// WebhookOutcome reports what a delivery did. Duplicate and ignored
// deliveries are acknowledged successes, not errors.
type WebhookOutcome struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
	Applied   bool   `json:"applied"`
	Note      string `json:"note,omitempty"`
}

// Service reconciles provider webhook events into the subscription ledger
// and creates checkout sessions for plan purchases.
type Service struct {
	provider Provider
	events   repository.WebhookEventRepository
	plans    repository.PlanRepository
	users    repository.UserRepository
	ledger   *subscription.Ledger
	cfg      Config
}

// NewService creates a payment service.
func NewService(provider Provider, events repository.WebhookEventRepository, plans repository.PlanRepository, users repository.UserRepository, ledger *subscription.Ledger, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &Service{
		provider: provider,
		events:   events,
		plans:    plans,
		users:    users,
		ledger:   ledger,
		cfg:      cfg,
	}
}

// CreateCheckoutSession creates a provider-hosted checkout for the given
// user, plan and billing cycle. An empty cycle falls back to the plan's
// default. The session carries userId/planId/billingCycle metadata so the
// completed-checkout webhook can be correlated back.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID, planID uint, billingCycle string) (*CheckoutSession, error) {
	plan, err := s.plans.GetByID(planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscription.ErrPlanNotFound
		}
		return nil, err
	}
	if !plan.IsActive {
		return nil, subscription.ErrPlanNotFound
	}

	if billingCycle == "" {
		billingCycle = plan.BillingCycle
	}
	if !models.IsValidBillingCycle(billingCycle) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBillingCycle, billingCycle)
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscription.ErrUserNotFound
		}
		return nil, err
	}

	return s.provider.CreateCheckoutSession(ctx, CheckoutInput{
		PlanName:      plan.Name,
		AmountCents:   PriceCents(plan.BasePrice, billingCycle, plan.YearlyDiscount),
		Currency:      s.cfg.Currency,
		Interval:      ProviderInterval(billingCycle),
		CustomerEmail: user.Email,
		SuccessURL:    s.cfg.SuccessURL,
		CancelURL:     s.cfg.CancelURL,
		Metadata: map[string]string{
			metaUserID:       strconv.FormatUint(uint64(userID), 10),
			metaPlanID:       strconv.FormatUint(uint64(planID), 10),
			metaBillingCycle: billingCycle,
		},
	})
}

// CancelProviderSubscription cancels the subscription at the provider. The
// local record is deactivated later by the customer.subscription.deleted
// webhook, so a failure here leaves the ledger untouched.
func (s *Service) CancelProviderSubscription(ctx context.Context, externalID string) error {
	return s.provider.CancelSubscription(ctx, externalID)
}

// HandleWebhook verifies, deduplicates and applies one webhook delivery.
// Every delivery with a valid signature is stored; effects are applied at
// most once per provider event id. A non-nil error means the provider should
// retry the delivery, anything else is an acknowledgement.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookOutcome, error) {
	// Accounts pinned to a different Stripe API version still deliver valid
	// events; only the signature decides whether a delivery is trusted.
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	record := &models.PaymentWebhookEvent{
		Provider:        models.PaymentProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	}
	created, stored, err := s.events.CreateIfNotExists(record)
	if err != nil {
		return nil, err
	}

	outcome := &WebhookOutcome{EventID: event.ID, EventType: string(event.Type)}

	// A fully processed duplicate is acknowledged without re-applying. A
	// stored but unprocessed row means an earlier attempt failed midway; the
	// redelivery runs the apply path again, which is safe because every
	// effect is idempotent.
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		outcome.Duplicate = true
		return outcome, nil
	}

	decoded, err := DecodeEvent(&event)
	if err != nil {
		// Malformed payload from the provider; retrying cannot fix it.
		log.Printf("payments: undecodable %s event %s: %v", event.Type, event.ID, err)
		if markErr := s.events.MarkProcessed(stored.ID, err.Error()); markErr != nil {
			return nil, markErr
		}
		outcome.Note = "payload could not be decoded"
		return outcome, nil
	}

	applied, note, err := s.apply(ctx, decoded)
	if err != nil {
		if markErr := s.events.MarkProcessed(stored.ID, err.Error()); markErr != nil {
			log.Printf("payments: failed to record processing error for event %s: %v", event.ID, markErr)
		}
		return nil, err
	}

	if err := s.events.MarkProcessed(stored.ID, ""); err != nil {
		return nil, err
	}
	outcome.Applied = applied
	outcome.Note = note
	return outcome, nil
}

// apply dispatches a decoded event to the ledger. It returns an error only
// for transient failures that a redelivery could resolve; permanent problems
// such as unknown references are logged and acknowledged.
func (s *Service) apply(ctx context.Context, ev *Event) (bool, string, error) {
	switch ev.Kind {
	case EventCheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, ev)
	case EventInvoicePaid:
		return s.applyInvoicePaid(ctx, ev)
	case EventSubscriptionDeleted:
		return s.applySubscriptionDeleted(ctx, ev)
	default:
		return false, "event type not handled", nil
	}
}

func (s *Service) applyCheckoutCompleted(ctx context.Context, ev *Event) (bool, string, error) {
	p := ev.CheckoutCompleted
	if p.Mode != "" && p.Mode != "subscription" {
		return false, "non-subscription checkout", nil
	}
	if p.SubscriptionID == "" {
		log.Printf("payments: checkout session %s completed without a subscription reference", p.SessionID)
		return false, "no subscription on session", nil
	}

	userID, uerr := parseIDMeta(p.Metadata, metaUserID)
	planID, perr := parseIDMeta(p.Metadata, metaPlanID)
	if uerr != nil || perr != nil {
		log.Printf("payments: checkout session %s carries unusable metadata %v", p.SessionID, p.Metadata)
		return false, "malformed session metadata", nil
	}

	start, end, err := s.provider.SubscriptionPeriod(ctx, p.SubscriptionID)
	if err != nil {
		return false, "", fmt.Errorf("fetch subscription period for %s: %w", p.SubscriptionID, err)
	}

	_, createdSub, err := s.ledger.AssignWithPeriod(ctx, userID, planID, start, end, p.SubscriptionID)
	if err != nil {
		if errors.Is(err, subscription.ErrPlanNotFound) || errors.Is(err, subscription.ErrUserNotFound) {
			log.Printf("payments: checkout session %s references missing records: %v", p.SessionID, err)
			return false, err.Error(), nil
		}
		return false, "", err
	}
	if !createdSub {
		return false, "subscription already registered", nil
	}
	return true, "", nil
}

func (s *Service) applyInvoicePaid(ctx context.Context, ev *Event) (bool, string, error) {
	p := ev.InvoicePaid
	if p.SubscriptionID == "" {
		return false, "invoice without subscription", nil
	}
	found, err := s.ledger.RenewByExternalID(ctx, p.SubscriptionID, p.PeriodEnd)
	if err != nil {
		return false, "", err
	}
	if !found {
		log.Printf("payments: invoice paid for unknown subscription %s", p.SubscriptionID)
		return false, "unknown subscription", nil
	}
	return true, "", nil
}

func (s *Service) applySubscriptionDeleted(ctx context.Context, ev *Event) (bool, string, error) {
	p := ev.SubscriptionDeleted
	found, err := s.ledger.DeactivateByExternalID(ctx, p.SubscriptionID)
	if err != nil {
		return false, "", err
	}
	if !found {
		log.Printf("payments: deletion of unknown subscription %s", p.SubscriptionID)
		return false, "unknown subscription", nil
	}
	return true, "", nil
}

func parseIDMeta(meta map[string]string, key string) (uint, error) {
	raw, ok := meta[key]
	if !ok || raw == "" {
		return 0, fmt.Errorf("metadata key %s missing", key)
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("metadata key %s invalid: %q", key, raw)
	}
	return uint(id), nil
}
