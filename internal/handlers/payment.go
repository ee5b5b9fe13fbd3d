package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/paybridge/internal/middleware"
	"github.com/example/paybridge/internal/models"
	"github.com/example/paybridge/internal/repository"
	"github.com/example/paybridge/internal/services"
	"github.com/example/paybridge/internal/utils"
)

// PaymentHandler serves the authenticated payment endpoints.
type PaymentHandler struct {
	payments *services.PaymentService
	logger   *zap.Logger
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(payments *services.PaymentService, logger *zap.Logger) *PaymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{payments: payments, logger: logger.With(zap.String("handler", "payments"))}
}

// CreatePayment opens a payment with the selected gateway.
func (h *PaymentHandler) CreatePayment(c *fiber.Ctx) error {
	raw, err := readPayload(c)
	if err != nil {
		return err
	}

	res, err := h.payments.CreatePayment(c.UserContext(), middleware.CurrentRequestor(c), raw)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"order_id":    res.Transaction.TransactionID,
			"payment_url": res.PaymentURL,
			"gateway":     res.Transaction.Gateway,
		},
	})
}

// GetPayment returns a stored transaction without contacting the gateway.
func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	txn, err := h.payments.GetTransaction(c.UserContext(), middleware.CurrentRequestor(c), c.Params("transactionId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    transactionView(txn),
	})
}

// CheckStatus polls the gateway and reconciles the stored status.
func (h *PaymentHandler) CheckStatus(c *fiber.Ctx) error {
	res, err := h.payments.CheckStatus(c.UserContext(), middleware.CurrentRequestor(c), c.Params("transactionId"))
	if err != nil {
		return err
	}

	data := transactionView(res.Transaction)
	data["verified"] = res.Verified
	return c.JSON(fiber.Map{
		"success": true,
		"message": defaultMessage(res.Message, statusMessage(res.Transaction.Status)),
		"data":    data,
	})
}

// RetrieveDetails runs a manual dashboard lookup. Admin only.
func (h *PaymentHandler) RetrieveDetails(c *fiber.Ctx) error {
	raw, err := readPayload(c)
	if err != nil {
		return err
	}
	date, err := parseDate(flatten(raw)["date"])
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "date must be YYYY-MM-DD or DD-MM-YYYY")
	}

	res, err := h.payments.RetrieveDetails(c.UserContext(), c.Params("transactionId"), date)
	if err != nil {
		return err
	}

	data := transactionView(res.Transaction)
	data["detail"] = res.Detail
	return c.JSON(fiber.Map{
		"success": res.Detail != nil,
		"message": defaultMessage(res.Message, statusMessage(res.Transaction.Status)),
		"data":    data,
	})
}

// ListPayments returns transactions with pagination and filters. Admin only.
func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	filter := repository.ListFilter{
		Status:  models.TransactionStatus(c.Query("status")),
		Gateway: c.Query("gateway"),
		Limit:   pg.Limit,
		Offset:  pg.Offset,
	}
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid user_id")
		}
		filter.UserID = &id
	}

	txns, total, err := h.payments.ListTransactions(c.UserContext(), filter)
	if err != nil {
		return err
	}

	data := make([]fiber.Map, 0, len(txns))
	for i := range txns {
		data = append(data, transactionView(&txns[i]))
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       data,
		"pagination": pg.Meta(total),
	})
}

var dateLayouts = []string{"2006-01-02", "02-01-2006"}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func defaultMessage(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
