package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/nkoenig/assetvault/app/controllers"
	"github.com/nkoenig/assetvault/app/repository"
	"github.com/nkoenig/assetvault/internal/pkg/activitylog"
	"github.com/nkoenig/assetvault/internal/pkg/analytics"
	"github.com/nkoenig/assetvault/internal/pkg/assetstorage"
	"github.com/nkoenig/assetvault/internal/pkg/cache"
	"github.com/nkoenig/assetvault/internal/pkg/database"
	"github.com/nkoenig/assetvault/internal/pkg/env"
	"github.com/nkoenig/assetvault/internal/pkg/payments"
	"github.com/nkoenig/assetvault/internal/pkg/plancatalog"
	"github.com/nkoenig/assetvault/internal/pkg/quota"
	"github.com/nkoenig/assetvault/internal/pkg/router"
	"github.com/nkoenig/assetvault/internal/pkg/subscription"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	activity := activitylog.NewService(repos.Activity)
	ledger := subscription.NewLedger(repos.Subscription, repos.Plan, repos.User, activity)
	plans := plancatalog.NewService(repos.Plan, repos.Subscription, cache.NewStore())
	enforcer := quota.NewEnforcer(repos.User, repos.Asset, repos.Download, ledger, activity)
	stats := analytics.NewService(repos.User, repos.Asset, repos.Download, repos.Subscription, repos.Activity, env.GetEnv("PAYMENT_CURRENCY", "usd"))

	var paymentSvc *payments.Service
	if secretKey := env.GetEnv("STRIPE_SECRET_KEY", ""); secretKey != "" {
		provider := payments.NewStripeProvider(secretKey)
		paymentSvc = payments.NewService(provider, repos.WebhookEvent, repos.Plan, repos.User, ledger, payments.Config{
			WebhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:    env.GetEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
			CancelURL:     env.GetEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
			Currency:      env.GetEnv("PAYMENT_CURRENCY", "usd"),
		})
	} else {
		log.Print("STRIPE_SECRET_KEY not set, payment routes are disabled")
	}

	var storage *assetstorage.Client
	storageCfg := assetstorage.LoadConfig()
	if storageCfg.IsEnabled() {
		var err error
		storage, err = assetstorage.NewClient(storageCfg)
		if err != nil {
			log.Printf("asset storage unavailable: %v", err)
		}
	}

	controllers.Setup(&controllers.Services{
		Plans:     plans,
		Ledger:    ledger,
		Quota:     enforcer,
		Payments:  paymentSvc,
		Analytics: stats,
		Storage:   storage,
	})

	app := fiber.New(fiber.Config{
		AppName: "AssetVault",
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	router.InstallRouter(app)

	return app
}
