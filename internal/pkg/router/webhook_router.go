package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nkoenig/assetvault/app/controllers"
)

// WebhookRouter serves provider callbacks. These routes authenticate via
// payload signatures, not API keys.
type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhooks/stripe", controllers.HandleStripeWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}
