package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/nkoenig/assetvault/internal/pkg/middleware"
	"github.com/nkoenig/assetvault/internal/pkg/plancatalog"
)

func planIDParam(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid plan id")
	}
	return uint(id), nil
}

// HandleListPlans returns the plan catalog. Admins may pass
// include_inactive=true to also see deactivated plans.
func HandleListPlans(c *fiber.Ctx) error {
	includeInactive := false
	if c.Query("include_inactive") == "true" {
		if isAdmin, ok := c.Locals(middleware.KeyIsAdmin).(bool); ok && isAdmin {
			includeInactive = true
		}
	}

	plans, err := services.Plans.List(c.Context(), includeInactive)
	if err != nil {
		return internalError(c, "Failed to load plans")
	}
	return c.JSON(fiber.Map{"plans": plans})
}

// HandleGetPlan returns a single plan by id.
func HandleGetPlan(c *fiber.Ctx) error {
	id, err := planIDParam(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	plan, err := services.Plans.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, plancatalog.ErrPlanNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Plan not found")
		}
		return internalError(c, "Failed to load plan")
	}
	return c.JSON(plan)
}

// HandleCreatePlan creates a new subscription plan. Admin only.
func HandleCreatePlan(c *fiber.Ctx) error {
	var input plancatalog.CreatePlanInput
	if err := c.BodyParser(&input); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	plan, err := services.Plans.Create(c.Context(), input)
	if err != nil {
		if isValidationError(err) {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", validationMessage(err))
		}
		return internalError(c, "Failed to create plan")
	}
	return c.Status(fiber.StatusCreated).JSON(plan)
}

// HandleUpdatePlan applies a partial update to a plan. Admin only.
func HandleUpdatePlan(c *fiber.Ctx) error {
	id, err := planIDParam(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	var input plancatalog.UpdatePlanInput
	if err := c.BodyParser(&input); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	plan, err := services.Plans.Update(c.Context(), id, input)
	if err != nil {
		switch {
		case errors.Is(err, plancatalog.ErrPlanNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "Plan not found")
		case isValidationError(err):
			return jsonError(c, fiber.StatusBadRequest, "bad_request", validationMessage(err))
		default:
			return internalError(c, "Failed to update plan")
		}
	}
	return c.JSON(plan)
}

// HandleDeactivatePlan soft-disables a plan. Admin only.
func HandleDeactivatePlan(c *fiber.Ctx) error {
	id, err := planIDParam(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	plan, err := services.Plans.Deactivate(c.Context(), id)
	if err != nil {
		if errors.Is(err, plancatalog.ErrPlanNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Plan not found")
		}
		return internalError(c, "Failed to deactivate plan")
	}
	return c.JSON(plan)
}

// HandleDeletePlan removes an unreferenced plan. Admin only.
func HandleDeletePlan(c *fiber.Ctx) error {
	id, err := planIDParam(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	if err := services.Plans.Delete(c.Context(), id); err != nil {
		switch {
		case errors.Is(err, plancatalog.ErrPlanNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "Plan not found")
		case errors.Is(err, plancatalog.ErrPlanInUse):
			return jsonError(c, fiber.StatusConflict, "conflict", err.Error())
		default:
			return internalError(c, "Failed to delete plan")
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}
