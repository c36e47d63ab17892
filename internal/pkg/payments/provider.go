package payments

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/price"
	"github.com/stripe/stripe-go/v74/subscription"
)

// providerTimeout bounds every outbound provider call.
const providerTimeout = 10 * time.Second

// CheckoutInput describes the hosted checkout session to create.
type CheckoutInput struct {
	PlanName      string
	AmountCents   int64
	Currency      string
	Interval      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutSession is the provider-hosted payment page the client is sent to.
type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"checkout_url"`
}

// Provider abstracts the payment provider API so reconciliation and checkout
// can be exercised against a stub.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error)
	SubscriptionPeriod(ctx context.Context, subscriptionID string) (start, end time.Time, err error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

type stripeProvider struct{}

// NewStripeProvider configures the Stripe client with the given secret key
// and returns a Provider backed by it.
func NewStripeProvider(secretKey string) Provider {
	stripe.Key = secretKey
	return &stripeProvider{}
}

func (p *stripeProvider) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	priceParams := &stripe.PriceParams{
		Params:     stripe.Params{Context: ctx},
		UnitAmount: stripe.Int64(in.AmountCents),
		Currency:   stripe.String(in.Currency),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(in.Interval),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(in.PlanName),
		},
	}
	pr, err := price.New(priceParams)
	if err != nil {
		return nil, err
	}

	sessionParams := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
		Mode:   stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(pr.ID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	if in.CustomerEmail != "" {
		sessionParams.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	for k, v := range in.Metadata {
		sessionParams.AddMetadata(k, v)
	}

	sess, err := session.New(sessionParams)
	if err != nil {
		return nil, err
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (p *stripeProvider) SubscriptionPeriod(ctx context.Context, subscriptionID string) (time.Time, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	s, err := subscription.Get(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return time.Unix(s.CurrentPeriodStart, 0), time.Unix(s.CurrentPeriodEnd, 0), nil
}

func (p *stripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	_, err := subscription.Cancel(subscriptionID, &stripe.SubscriptionCancelParams{
		Params: stripe.Params{Context: ctx},
	})
	return err
}
