package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/nkoenig/assetvault/app/controllers"
	"github.com/nkoenig/assetvault/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	v1 := api.Group("/v1")

	// Plan catalog browsing is public.
	v1.Get("/plans", controllers.HandleListPlans)
	v1.Get("/plans/:id", controllers.HandleGetPlan)

	authed := v1.Group("", middleware.APIKeyAuth())
	authed.Get("/subscriptions/me", controllers.HandleGetMySubscription)
	authed.Get("/subscriptions/history", controllers.HandleGetMySubscriptionHistory)
	authed.Delete("/subscriptions/:id", controllers.HandleCancelSubscription)
	authed.Post("/assets/:id/download", controllers.HandleDownloadAsset)
	authed.Get("/quota", controllers.HandleQuotaStatus)
	authed.Get("/downloads", controllers.HandleDownloadHistory)
	authed.Post("/payments/checkout", controllers.HandleCreateCheckout)
	authed.Get("/me/stats", controllers.HandleMyStats)

	admin := authed.Group("/admin", middleware.RequireAdmin)
	admin.Get("/plans", controllers.HandleListPlans)
	admin.Post("/plans", controllers.HandleCreatePlan)
	admin.Put("/plans/:id", controllers.HandleUpdatePlan)
	admin.Post("/plans/:id/deactivate", controllers.HandleDeactivatePlan)
	admin.Delete("/plans/:id", controllers.HandleDeletePlan)
	admin.Post("/subscriptions", controllers.HandleAssignPlan)
	admin.Get("/subscriptions", controllers.HandleListSubscriptions)
	admin.Post("/subscriptions/:id/renew", controllers.HandleRenewSubscription)
	admin.Get("/dashboard", controllers.HandleDashboard)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
