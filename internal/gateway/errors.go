package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials means the adapter was built without its key material.
	ErrMissingCredentials = errors.New("gateway credentials are not configured")
	// ErrGatewayNotRegistered means the requested gateway is absent from the registry.
	ErrGatewayNotRegistered = errors.New("gateway is not registered")

	// ErrHashMissing is reported when an inbound payload carries no hash.
	ErrHashMissing = errors.New("callback hash is missing")
	// ErrHashMismatch is reported when the inbound hash does not match.
	ErrHashMismatch = errors.New("callback hash mismatch")
)

// ValidationError rejects a request before any outbound call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationError(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// IsConfigError reports configuration failures that must not be retried.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrMissingCredentials) || errors.Is(err, ErrGatewayNotRegistered)
}

// IsVerificationError reports a missing or mismatched callback hash.
func IsVerificationError(err error) bool {
	return errors.Is(err, ErrHashMissing) || errors.Is(err, ErrHashMismatch)
}
