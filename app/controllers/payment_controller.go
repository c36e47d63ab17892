package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nkoenig/assetvault/internal/pkg/middleware"
	"github.com/nkoenig/assetvault/internal/pkg/payments"
	"github.com/nkoenig/assetvault/internal/pkg/subscription"
)

type checkoutRequest struct {
	PlanID       uint   `json:"plan_id"`
	BillingCycle string `json:"billing_cycle"`
}

// HandleCreateCheckout creates a provider-hosted checkout session for the
// caller and the requested plan.
func HandleCreateCheckout(c *fiber.Ctx) error {
	if services.Payments == nil {
		return jsonError(c, fiber.StatusServiceUnavailable, "service_unavailable", "Payments are not configured")
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil || req.PlanID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "plan_id is required")
	}

	userID := middleware.CurrentUserID(c)
	session, err := services.Payments.CreateCheckoutSession(c.Context(), userID, req.PlanID, req.BillingCycle)
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrPlanNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "Plan not found")
		case errors.Is(err, subscription.ErrUserNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		case errors.Is(err, payments.ErrInvalidBillingCycle):
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid billing cycle")
		default:
			log.Errorf("checkout session creation failed: %v", err)
			return internalError(c, "Failed to create checkout session")
		}
	}
	return c.JSON(session)
}

// HandleStripeWebhook receives provider webhook deliveries. The raw body is
// passed to signature verification untouched; any parsing before that would
// break the signature. A non-2xx response makes the provider redeliver.
func HandleStripeWebhook(c *fiber.Ctx) error {
	if services.Payments == nil {
		return jsonError(c, fiber.StatusServiceUnavailable, "service_unavailable", "Payments are not configured")
	}

	payload := c.Body()
	signature := c.Get("Stripe-Signature")

	outcome, err := services.Payments.HandleWebhook(c.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid webhook signature")
		}
		log.Errorf("webhook processing failed: %v", err)
		return internalError(c, "Webhook processing failed")
	}
	return c.JSON(outcome)
}
