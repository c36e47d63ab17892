package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nkoenig/assetvault/internal/pkg/middleware"
)

// HandleDashboard returns the admin overview with usage and revenue figures.
func HandleDashboard(c *fiber.Ctx) error {
	stats, err := services.Analytics.Dashboard(c.Context())
	if err != nil {
		return internalError(c, "Failed to load dashboard")
	}
	return c.JSON(stats)
}

// HandleMyStats returns usage figures for the authenticated user.
func HandleMyStats(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)
	stats, err := services.Analytics.UserStats(c.Context(), userID)
	if err != nil {
		return internalError(c, "Failed to load user statistics")
	}
	return c.JSON(stats)
}
