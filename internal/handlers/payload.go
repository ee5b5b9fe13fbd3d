package handlers

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/paybridge/internal/models"
)

// readPayload merges query parameters with a JSON, urlencoded or multipart
// body. Body fields win over query fields.
func readPayload(c *fiber.Ctx) (map[string]any, error) {
	out := map[string]any{}
	c.Request().URI().QueryArgs().VisitAll(func(k, v []byte) {
		out[string(k)] = string(v)
	})

	if len(bytes.TrimSpace(c.Body())) == 0 {
		return out, nil
	}

	ctype := strings.ToLower(c.Get(fiber.HeaderContentType))
	switch {
	case strings.HasPrefix(ctype, fiber.MIMEApplicationJSON):
		// Numbers keep their wire text; signatures cover "100.50", not 100.5.
		dec := json.NewDecoder(bytes.NewReader(c.Body()))
		dec.UseNumber()
		var body map[string]any
		if err := dec.Decode(&body); err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
		}
		for k, v := range body {
			out[k] = v
		}
	case strings.HasPrefix(ctype, fiber.MIMEMultipartForm):
		form, err := c.MultipartForm()
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "invalid form body")
		}
		for k, values := range form.Value {
			if len(values) > 0 {
				out[k] = values[0]
			}
		}
	default:
		c.Request().PostArgs().VisitAll(func(k, v []byte) {
			out[string(k)] = string(v)
		})
	}
	return out, nil
}

// flatten turns a decoded payload into the string map gateways sign over.
func flatten(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case nil:
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		default:
			if data, err := json.Marshal(t); err == nil {
				out[k] = string(data)
			}
		}
	}
	return out
}

// transactionView is the client-facing shape of a transaction.
func transactionView(txn *models.Transaction) fiber.Map {
	var gatewayID any
	if txn.GatewayTransactionID != nil {
		gatewayID = *txn.GatewayTransactionID
	}
	return fiber.Map{
		"transactionId":        txn.TransactionID,
		"status":               txn.Status,
		"amount":               txn.Amount.StringFixed(2),
		"currency":             txn.Currency,
		"gateway":              txn.Gateway,
		"gatewayTransactionId": gatewayID,
		"createdAt":            txn.CreatedAt,
		"updatedAt":            txn.UpdatedAt,
	}
}

func statusMessage(status models.TransactionStatus) string {
	switch status {
	case models.StatusSuccess:
		return "Payment successful"
	case models.StatusFailed:
		return "Payment failed"
	case models.StatusCancelled:
		return "Payment cancelled"
	}
	return "Payment pending"
}
