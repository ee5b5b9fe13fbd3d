package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/example/paybridge/internal/config"
	"github.com/example/paybridge/internal/handlers"
	"github.com/example/paybridge/internal/middleware"
	"github.com/example/paybridge/internal/repository"
	"github.com/example/paybridge/internal/services"
	"github.com/example/paybridge/internal/utils"
)

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Config    *config.Config
	Payments  *services.PaymentService
	Directory repository.Directory
	Logger    *zap.Logger
	// AccessLog enables the fiber request logger.
	AccessLog bool
}

// NewApp builds the fiber app with the shared middleware and error handler.
func NewApp(deps Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Paybridge",
		ErrorHandler: utils.ErrorHandler(deps.Config.IsProduction(), deps.Logger),
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: !deps.Config.IsProduction()}))
	if deps.AccessLog {
		app.Use(logger.New())
	}

	Register(app, deps)
	return app
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, deps Dependencies) {
	authHandler := handlers.NewAuthHandler(deps.Directory, deps.Config)
	paymentHandler := handlers.NewPaymentHandler(deps.Payments, deps.Logger)
	callbackHandler := handlers.NewCallbackHandler(deps.Payments, deps.Logger)

	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true})
	})

	auth := api.Group("/auth")
	auth.Post("/login", authHandler.Login)

	// Gateway-facing routes are unauthenticated; payloads are verified by hash.
	payments := api.Group("/payments")
	payments.Get("/success", callbackHandler.SuccessRedirect)
	payments.Post("/success", callbackHandler.SuccessRedirect)
	payments.Get("/failure", callbackHandler.FailureRedirect)
	payments.Post("/failure", callbackHandler.FailureRedirect)
	payments.Post("/webhook/easebuzz-response", callbackHandler.EasebuzzWebhook)
	payments.Post("/webhook/upigateway-response", callbackHandler.UPIWebhook)

	// Protected routes
	protected := api.Group("/payments", middleware.AuthMiddleware(deps.Config.JWTSecret))
	protected.Post("/", paymentHandler.CreatePayment)
	protected.Get("/", middleware.AdminOnly(), paymentHandler.ListPayments)
	protected.Get("/:transactionId", paymentHandler.GetPayment)
	protected.Get("/:transactionId/status", paymentHandler.CheckStatus)
	protected.Post("/:transactionId/retrieve", middleware.AdminOnly(), paymentHandler.RetrieveDetails)
}
