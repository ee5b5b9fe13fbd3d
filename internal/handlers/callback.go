package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/paybridge/internal/gateway"
	"github.com/example/paybridge/internal/models"
	"github.com/example/paybridge/internal/services"
	"github.com/example/paybridge/internal/utils"
)

// CallbackHandler serves the unauthenticated gateway endpoints: browser
// redirects and server-to-server webhooks.
type CallbackHandler struct {
	payments *services.PaymentService
	logger   *zap.Logger
}

// NewCallbackHandler constructs a CallbackHandler.
func NewCallbackHandler(payments *services.PaymentService, logger *zap.Logger) *CallbackHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallbackHandler{payments: payments, logger: logger.With(zap.String("handler", "callbacks"))}
}

// SuccessRedirect handles the customer returning from the gateway.
func (h *CallbackHandler) SuccessRedirect(c *fiber.Ctx) error {
	return h.redirect(c, "")
}

// FailureRedirect handles the failure return. A payload without a status is
// treated as a failure.
func (h *CallbackHandler) FailureRedirect(c *fiber.Ctx) error {
	return h.redirect(c, "failure")
}

func (h *CallbackHandler) redirect(c *fiber.Ctx, defaultStatus string) error {
	raw, err := readPayload(c)
	if err != nil {
		return err
	}
	payload := flatten(raw)
	if defaultStatus != "" && payload["status"] == "" {
		payload["status"] = defaultStatus
	}

	res, err := h.payments.Reconcile(c.UserContext(), services.ReconcileInput{
		Source:  services.SourceRedirect,
		Payload: payload,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": res.Transaction.Status == models.StatusSuccess,
		"message": statusMessage(res.Transaction.Status),
		"data":    transactionView(res.Transaction),
	})
}

// EasebuzzWebhook receives hosted-checkout server notifications.
func (h *CallbackHandler) EasebuzzWebhook(c *fiber.Ctx) error {
	return h.webhook(c, gateway.Easebuzz)
}

// UPIWebhook receives UPI gateway server notifications.
func (h *CallbackHandler) UPIWebhook(c *fiber.Ctx) error {
	return h.webhook(c, gateway.UPI)
}

// webhook always answers 200 so the gateway does not retry, unless the
// failure is ours to fix.
func (h *CallbackHandler) webhook(c *fiber.Ctx, name gateway.Name) error {
	raw, err := readPayload(c)
	if err != nil {
		return c.JSON(fiber.Map{"success": false, "message": err.Error()})
	}

	res, err := h.payments.Reconcile(c.UserContext(), services.ReconcileInput{
		Source:  services.SourceCallback,
		Gateway: string(name),
		Payload: flatten(raw),
	})
	if err != nil {
		code, message := utils.StatusFor(err)
		if code == fiber.StatusInternalServerError {
			h.logger.Error("webhook processing failed", zap.String("gateway", string(name)), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		h.logger.Warn("webhook rejected",
			zap.String("gateway", string(name)),
			zap.Int("status", code),
			zap.Error(err))
		return c.JSON(fiber.Map{"success": false, "message": message})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Webhook processed",
		"data":    transactionView(res.Transaction),
	})
}
