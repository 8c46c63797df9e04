// Package routes wires the handlers onto a fiber app.
package routes

import (
	"time"

	"walletledger/internal/handlers"
	"walletledger/internal/middleware"
	"walletledger/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps holds everything SetupRoutes mounts.
type Deps struct {
	Auth     *middleware.AuthMiddleware
	Accounts *handlers.AccountHandler
	Wallets  *handlers.WalletHandler
	Transfer *handlers.TransferHandler
	Bills    *handlers.BillHandler
	Payments *handlers.PaymentHandler
	Admin    *handlers.AdminHandler
	Webhooks *handlers.WebhookHandler
	Health   *handlers.HealthHandler

	// Gatherer backs /metrics. Nil means the default registry.
	Gatherer    prometheus.Gatherer
	CORSOrigins string
	// AccessLog disables the request logger when false; tests keep it off.
	AccessLog bool
}

// New returns a fiber app with the middleware stack and routes installed.
func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "walletledger",
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: d.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
	}))
	if d.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}

	SetupRoutes(app, d)
	return app
}

func rateLimit(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
			})
		},
	})
}

// SetupRoutes mounts the public, customer and staff routes.
func SetupRoutes(app *fiber.App, d Deps) {
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/health", d.Health.Check)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Providers retry on non-2xx, so webhooks sit outside auth and limits.
	app.Post("/webhooks/:source", d.Webhooks.Receive)

	api := app.Group("/api")
	api.Post("/accounts", rateLimit(5), d.Accounts.OpenAccount)
	api.Get("/bills", d.Bills.Categories)

	protected := api.Group("", d.Auth.Handler)
	setupCustomerRoutes(protected, d)

	admin := protected.Group("/admin", middleware.StaffOnly)
	setupAdminRoutes(admin, d)
}

func setupCustomerRoutes(router fiber.Router, d Deps) {
	read := middleware.HasPermission(models.PermissionWalletRead)
	write := middleware.HasPermission(models.PermissionWalletWrite)

	router.Get("/wallet", read, d.Wallets.GetWallet)
	router.Get("/wallet/transactions", read, d.Wallets.History)
	router.Get("/transactions/:reference", middleware.HasPermission(models.PermissionTransactionRead), d.Wallets.GetTransaction)

	router.Post("/transfers", write, d.Transfer.Transfer)
	router.Post("/withdrawals", write, d.Transfer.Withdraw)
	router.Post("/bills/:category", write, d.Bills.Purchase)

	router.Post("/payments", write, d.Payments.Initiate)
	router.Get("/payments/:reference", read, d.Payments.Get)

	router.Put("/pin", write, d.Accounts.ChangePin)
}

func setupAdminRoutes(router fiber.Router, d Deps) {
	approve := middleware.HasPermission(models.PermissionWithdrawalApprove)

	router.Get("/withdrawals/pending", approve, d.Admin.PendingWithdrawals)
	router.Post("/withdrawals/:reference/approve", approve, d.Admin.Approve)
	router.Post("/withdrawals/:reference/reject", approve, d.Admin.Reject)

	transactions := router.Group("/transactions")
	transactions.Get("/", middleware.HasPermission(models.PermissionTransactionAudit), d.Admin.ListTransactions)
	transactions.Get("/flagged", approve, d.Admin.Flagged)
	transactions.Post("/:reference/reverse", middleware.HasPermission(models.PermissionTransactionReverse), d.Admin.Reverse)

	wallets := router.Group("/wallets")
	wallets.Post("/:id/freeze", middleware.HasPermission(models.PermissionWalletFreeze), d.Admin.Freeze)
	wallets.Post("/:id/unfreeze", middleware.HasPermission(models.PermissionWalletFreeze), d.Admin.Unfreeze)
	wallets.Post("/:id/credit", middleware.HasPermission(models.PermissionLedgerCredit), d.Admin.Credit)
}
