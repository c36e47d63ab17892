package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/nkoenig/assetvault/internal/pkg/analytics"
	"github.com/nkoenig/assetvault/internal/pkg/assetstorage"
	"github.com/nkoenig/assetvault/internal/pkg/payments"
	"github.com/nkoenig/assetvault/internal/pkg/plancatalog"
	"github.com/nkoenig/assetvault/internal/pkg/quota"
	"github.com/nkoenig/assetvault/internal/pkg/subscription"
)

// Services bundles everything the HTTP handlers depend on.
type Services struct {
	Plans     *plancatalog.Service
	Ledger    *subscription.Ledger
	Quota     *quota.Enforcer
	Payments  *payments.Service
	Analytics *analytics.Service
	Storage   *assetstorage.Client
}

var services *Services

// Setup wires the handlers to their services. Must be called before any
// route is registered.
func Setup(s *Services) {
	services = s
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

func internalError(c *fiber.Ctx, message string) error {
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", message)
}

// validationMessage flattens a validator error into a readable message, or
// returns the error text unchanged for other error types.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return "Invalid value for field " + first.Field()
	}
	return err.Error()
}

func isValidationError(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}
