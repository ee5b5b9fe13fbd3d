package utils

import (
	"errors"
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/paybridge/internal/gateway"
	"github.com/example/paybridge/internal/services"
)

// StatusFor maps a domain error onto an HTTP status and a client message.
func StatusFor(err error) (int, string) {
	var fiberErr *fiber.Error
	var validation *gateway.ValidationError
	var gwErr *services.GatewayError

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiberErr.Message
	case errors.As(err, &validation):
		return fiber.StatusBadRequest, validation.Error()
	case errors.Is(err, services.ErrGatewayMismatch):
		return fiber.StatusConflict, err.Error()
	case errors.Is(err, services.ErrInvalidCredentials):
		return fiber.StatusUnauthorized, err.Error()
	case gateway.IsVerificationError(err):
		return fiber.StatusUnauthorized, err.Error()
	case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrGatewayNotAllowed):
		return fiber.StatusForbidden, err.Error()
	case errors.Is(err, services.ErrTransactionNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.As(err, &gwErr):
		return fiber.StatusBadGateway, gwErr.Error()
	case errors.Is(err, services.ErrNoGatewayAvailable):
		return fiber.StatusServiceUnavailable, err.Error()
	case gateway.IsConfigError(err):
		return fiber.StatusInternalServerError, err.Error()
	}
	return fiber.StatusInternalServerError, "internal server error"
}

// ErrorHandler renders every returned error as {success:false, message}.
// Outside production the raw error and a stack are attached.
func ErrorHandler(production bool, logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		code, message := StatusFor(err)
		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", code),
				zap.Error(err))
		}

		body := fiber.Map{
			"success": false,
			"message": message,
		}
		if !production {
			body["error"] = err.Error()
			if code >= fiber.StatusInternalServerError {
				body["stack"] = string(debug.Stack())
			}
		}
		return c.Status(code).JSON(body)
	}
}
