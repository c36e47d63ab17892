package controllers

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nkoenig/assetvault/internal/pkg/middleware"
	"github.com/nkoenig/assetvault/internal/pkg/subscription"
)

type assignPlanRequest struct {
	UserID    uint       `json:"user_id"`
	PlanID    uint       `json:"plan_id"`
	StartDate *time.Time `json:"start_date"`
}

type renewRequest struct {
	EndDate time.Time `json:"end_date"`
}

// HandleAssignPlan grants a plan to a user. Admin only; purchases go through
// checkout instead.
func HandleAssignPlan(c *fiber.Ctx) error {
	var req assignPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if req.UserID == 0 || req.PlanID == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "user_id and plan_id are required")
	}

	sub, err := services.Ledger.Assign(c.Context(), req.UserID, req.PlanID, req.StartDate)
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrPlanNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", err.Error())
		case errors.Is(err, subscription.ErrUserNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", err.Error())
		default:
			return internalError(c, "Failed to assign plan")
		}
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

// HandleGetMySubscription returns the caller's active subscription, or an
// empty body with has_subscription=false when none exists.
func HandleGetMySubscription(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)
	sub, err := services.Ledger.GetActive(c.Context(), userID)
	if err != nil {
		return internalError(c, "Failed to load subscription")
	}
	if sub == nil {
		return c.JSON(fiber.Map{"has_subscription": false})
	}
	return c.JSON(fiber.Map{"has_subscription": true, "subscription": sub})
}

// HandleGetMySubscriptionHistory returns all of the caller's subscriptions,
// newest first.
func HandleGetMySubscriptionHistory(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)
	subs, err := services.Ledger.History(c.Context(), userID)
	if err != nil {
		return internalError(c, "Failed to load subscription history")
	}
	return c.JSON(fiber.Map{"subscriptions": subs})
}

// HandleCancelSubscription deactivates a subscription. Users may cancel
// their own; admins may cancel any. Provider-backed subscriptions are also
// cancelled upstream so no further invoices arrive.
func HandleCancelSubscription(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid subscription id")
	}

	user, ok := middleware.CurrentUser(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing authentication")
	}

	existing, err := services.Ledger.Get(c.Context(), uint(id))
	if err != nil {
		if errors.Is(err, subscription.ErrSubscriptionNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Subscription not found")
		}
		return internalError(c, "Failed to load subscription")
	}
	if existing.UserID != user.ID && !user.IsAdmin() {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "Cannot cancel another user's subscription")
	}

	sub, err := services.Ledger.Cancel(c.Context(), uint(id))
	if err != nil {
		return internalError(c, "Failed to cancel subscription")
	}

	if sub.ExternalSubscriptionID != nil && services.Payments != nil {
		if err := services.Payments.CancelProviderSubscription(c.Context(), *sub.ExternalSubscriptionID); err != nil {
			log.Printf("provider cancellation failed for subscription %d: %v", sub.ID, err)
		}
	}
	return c.JSON(sub)
}

// HandleRenewSubscription moves a subscription's end date forward. Admin
// only; stale dates are ignored.
func HandleRenewSubscription(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid subscription id")
	}

	var req renewRequest
	if err := c.BodyParser(&req); err != nil || req.EndDate.IsZero() {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "end_date is required")
	}

	sub, err := services.Ledger.Renew(c.Context(), uint(id), req.EndDate)
	if err != nil {
		if errors.Is(err, subscription.ErrSubscriptionNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Subscription not found")
		}
		return internalError(c, "Failed to renew subscription")
	}
	return c.JSON(sub)
}

// HandleListSubscriptions returns a page of all subscription records. Admin
// only.
func HandleListSubscriptions(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	subs, total, err := services.Ledger.List(c.Context(), page, limit)
	if err != nil {
		return internalError(c, "Failed to list subscriptions")
	}
	return c.JSON(fiber.Map{"subscriptions": subs, "total": total, "page": page})
}
