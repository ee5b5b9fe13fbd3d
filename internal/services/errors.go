package services

import (
	"errors"
	"fmt"

	"github.com/example/paybridge/internal/gateway"
)

var (
	ErrNoGatewayAvailable  = errors.New("no payment gateway available")
	ErrGatewayNotAllowed   = errors.New("payment gateway is not allowed for this user")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrForbidden           = errors.New("access to this transaction is forbidden")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrGatewayMismatch     = errors.New("transaction belongs to another gateway")
)

// GatewayError carries an upstream failure with the gateway's own message.
type GatewayError struct {
	Gateway string
	Message string
	Raw     map[string]any
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Gateway, e.Message)
}

func invalidField(field, msg string) error {
	return &gateway.ValidationError{Field: field, Message: msg}
}
