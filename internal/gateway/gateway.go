// Package gateway speaks the wire formats of the upstream payment gateways and
// normalizes them into one request/result model.
package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/paybridge/internal/models"
)

// Name identifies a registered gateway.
type Name string

const (
	Easebuzz Name = models.GatewayEasebuzz
	UPI      Name = models.GatewayUPI
)

// ParseName maps user-facing spellings onto a gateway Name.
func ParseName(s string) (Name, bool) {
	switch normalizeToken(s) {
	case "easebuzz", "hostedcheckout", "gatewaya":
		return Easebuzz, true
	case "upi", "upigateway", "gatewayb":
		return UPI, true
	}
	return "", false
}

// Outbound call timeouts.
const (
	CreateTimeout = 30 * time.Second
	StatusTimeout = 15 * time.Second
)

// VerificationPolicy decides what happens when an inbound hash is missing or wrong.
type VerificationPolicy int

const (
	// PolicyStrict rejects callbacks whose hash is missing or invalid.
	PolicyStrict VerificationPolicy = iota
	// PolicyPermissive logs a warning and processes the callback anyway.
	PolicyPermissive
)

func (p VerificationPolicy) String() string {
	if p == PolicyPermissive {
		return "permissive"
	}
	return "strict"
}

// PaymentRequest is the canonical outbound request shared by all gateways.
type PaymentRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Name        string
	Email       string
	Phone       string
	ProductInfo string
	SuccessURL  string
	FailureURL  string
	CallbackURL string
	ReturnURL   string
	UDF         [5]string
}

// StatusQuery carries what a status poll needs from the stored transaction.
type StatusQuery struct {
	Reference string
	GatewayID string
	Amount    decimal.Decimal
	Email     string
	Phone     string
	// Date is an optional hint for gateways that look transactions up by day.
	Date time.Time
}

// DetailQuery identifies a transaction for an out-of-band detail lookup.
type DetailQuery struct {
	Reference string
	GatewayID string
	Date      time.Time
}

// Result is returned by CreatePayment and CheckPaymentStatus.
// Upstream failures are reported with Success=false and a Message, never as an error.
type Result struct {
	Success     bool
	Reference   string
	OrderID     string
	GatewayID   string
	PaymentLink string
	Status      models.TransactionStatus
	Message     string
	Raw         map[string]any
}

// CallbackResult is the normalized view of a webhook or redirect payload.
type CallbackResult struct {
	Success   bool
	Reference string
	GatewayID string
	Status    models.TransactionStatus
	Verified  bool
	Message   string
	Raw       map[string]any
}

// DetailResult is the normalized record returned by a detail lookup.
type DetailResult struct {
	Success   bool
	Reference string
	GatewayID string
	Status    models.TransactionStatus
	Amount    string
	Message   string
	Detail    map[string]any
	Raw       map[string]any
}

// LookupKeys lists the payload fields that carry the transaction reference
// and the gateway-minted id, in lookup order.
type LookupKeys struct {
	Reference []string
	GatewayID []string
}

// Adapter is implemented by every gateway integration.
type Adapter interface {
	Name() Name
	CreatePayment(ctx context.Context, req PaymentRequest) (*Result, error)
	CheckPaymentStatus(ctx context.Context, q StatusQuery) (*Result, error)
	HandleCallback(ctx context.Context, payload map[string]string) (*CallbackResult, error)
	RetrieveTransactionDetails(ctx context.Context, q DetailQuery) (*DetailResult, error)
	LookupKeys() LookupKeys
}
