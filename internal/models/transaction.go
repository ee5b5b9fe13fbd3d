package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TransactionStatus is the internal four-state payment status.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusSuccess   TransactionStatus = "success"
	StatusFailed    TransactionStatus = "failed"
	StatusCancelled TransactionStatus = "cancelled"
)

// Gateway identifiers as stored on a transaction.
const (
	GatewayEasebuzz = "easebuzz"
	GatewayUPI      = "upi"
)

const DefaultCurrency = "INR"

// Reserved keys inside PaymentResponse that carry the reconciliation audit trail.
const (
	ResponseHistoryKey    = "_history"
	ResponseLastSourceKey = "_lastSource"
	ResponseLastUpdateKey = "_lastUpdatedAt"
)

// Transaction is a single payment attempt routed through one gateway.
// ID is the immutable internal id; TransactionID is the correlation reference
// sent to (and echoed back by) the gateway.
type Transaction struct {
	BaseModel
	TransactionID        string            `gorm:"column:transaction_id;uniqueIndex;not null" json:"transactionId"`
	UserID               *uuid.UUID        `gorm:"type:uuid;index" json:"userId,omitempty"`
	Gateway              string            `gorm:"not null;index" json:"gateway"`
	Amount               decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency             string            `gorm:"size:3;not null;default:INR" json:"currency"`
	Status               TransactionStatus `gorm:"type:varchar(16);not null;default:pending;index" json:"status"`
	GatewayTransactionID *string           `gorm:"column:gateway_transaction_id;uniqueIndex" json:"gatewayTransactionId"`
	PaymentRequest       datatypes.JSONMap `gorm:"type:jsonb" json:"paymentRequest,omitempty"`
	PaymentResponse      datatypes.JSONMap `gorm:"type:jsonb" json:"paymentResponse,omitempty"`
	CallbackURL          string            `json:"callbackUrl,omitempty"`
	ReturnURL            string            `json:"returnUrl,omitempty"`
}

// GatewayID returns the gateway-minted id or an empty string.
func (t *Transaction) GatewayID() string {
	if t.GatewayTransactionID == nil {
		return ""
	}
	return *t.GatewayTransactionID
}

// RequestField reads a string from the stored request snapshot.
func (t *Transaction) RequestField(key string) string {
	if t.PaymentRequest == nil {
		return ""
	}
	if v, ok := t.PaymentRequest[key].(string); ok {
		return v
	}
	return ""
}

// Clone returns a copy whose JSON maps can be mutated independently.
func (t *Transaction) Clone() *Transaction {
	cp := *t
	cp.PaymentRequest = cloneMap(t.PaymentRequest)
	cp.PaymentResponse = cloneMap(t.PaymentResponse)
	if t.GatewayTransactionID != nil {
		id := *t.GatewayTransactionID
		cp.GatewayTransactionID = &id
	}
	if t.UserID != nil {
		uid := *t.UserID
		cp.UserID = &uid
	}
	return &cp
}

// MergeResponse unions fragment into existing (fragment wins on conflict) and
// appends one audit entry tagged with source and time. Existing keys are never removed.
func MergeResponse(existing datatypes.JSONMap, fragment map[string]any, source string, status TransactionStatus, at time.Time) datatypes.JSONMap {
	out := cloneMap(existing)
	if out == nil {
		out = datatypes.JSONMap{}
	}

	keys := make([]string, 0, len(fragment))
	for k, v := range fragment {
		switch k {
		case ResponseHistoryKey, ResponseLastSourceKey, ResponseLastUpdateKey:
			continue
		}
		out[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)

	stamp := at.UTC().Format(time.RFC3339Nano)
	entryKeys := make([]any, 0, len(keys))
	for _, k := range keys {
		entryKeys = append(entryKeys, k)
	}

	var history []any
	if prev, ok := out[ResponseHistoryKey].([]any); ok {
		history = make([]any, len(prev), len(prev)+1)
		copy(history, prev)
	}
	history = append(history, map[string]any{
		"source": source,
		"at":     stamp,
		"status": string(status),
		"keys":   entryKeys,
	})

	out[ResponseHistoryKey] = history
	out[ResponseLastSourceKey] = source
	out[ResponseLastUpdateKey] = stamp
	return out
}

// ResponseHistory returns the audit entries recorded by MergeResponse.
func ResponseHistory(resp datatypes.JSONMap) []map[string]any {
	raw, _ := resp[ResponseHistoryKey].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func cloneMap(in datatypes.JSONMap) datatypes.JSONMap {
	if in == nil {
		return nil
	}
	out := make(datatypes.JSONMap, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
