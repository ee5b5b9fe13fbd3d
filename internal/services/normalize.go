package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/example/paybridge/internal/gateway"
	"github.com/example/paybridge/internal/models"
)

// Each logical field accepts a closed list of spellings. The first non-empty
// alias in list order wins.
var (
	amountAliases      = []string{"amount", "totalAmount", "total_amount"}
	currencyAliases    = []string{"currency", "currencyCode", "currency_code"}
	emailAliases       = []string{"email", "customerEmail", "customer_email"}
	nameAliases        = []string{"name", "customerName", "customer_name", "firstname", "firstName"}
	phoneAliases       = []string{"phone", "customerPhone", "customer_phone", "mobile", "customer_mobile"}
	productInfoAliases = []string{"productinfo", "productInfo", "product_info", "p_info", "description"}
	successURLAliases  = []string{"successUrl", "success_url", "surl", "redirectUrl", "redirect_url"}
	failureURLAliases  = []string{"failureUrl", "failure_url", "furl"}
	returnURLAliases   = []string{"returnUrl", "return_url"}
	callbackURLAliases = []string{"callbackUrl", "callback_url", "webhookUrl", "webhook_url"}
	gatewayAliases     = []string{"gateway", "paymentGateway", "payment_gateway"}
)

// PaymentInput is the canonical form of a create-payment request.
type PaymentInput struct {
	Amount      decimal.Decimal
	Currency    string
	Email       string
	Name        string
	Phone       string
	ProductInfo string
	SuccessURL  string
	FailureURL  string
	ReturnURL   string
	CallbackURL string
	// Gateway is the caller's explicit override, empty when absent.
	Gateway string
	UDF     [5]string
}

// NormalizePaymentRequest folds the accepted aliases into a PaymentInput.
// Amount is the only field required at this layer; gateways add their own rules.
func NormalizePaymentRequest(raw map[string]any) (*PaymentInput, error) {
	amountRaw, ok := pick(raw, amountAliases)
	if !ok {
		return nil, invalidField("amount", "is required")
	}
	amount, err := parseAmount(amountRaw)
	if err != nil {
		return nil, invalidField("amount", err.Error())
	}
	if !amount.IsPositive() {
		return nil, invalidField("amount", "must be greater than 0")
	}

	in := &PaymentInput{
		Amount:      amount.Round(2),
		Currency:    strings.ToUpper(pickString(raw, currencyAliases)),
		Email:       pickString(raw, emailAliases),
		Name:        pickString(raw, nameAliases),
		Phone:       pickString(raw, phoneAliases),
		ProductInfo: pickString(raw, productInfoAliases),
		SuccessURL:  pickString(raw, successURLAliases),
		FailureURL:  pickString(raw, failureURLAliases),
		ReturnURL:   pickString(raw, returnURLAliases),
		CallbackURL: pickString(raw, callbackURLAliases),
		Gateway:     pickString(raw, gatewayAliases),
	}
	if in.Currency == "" {
		in.Currency = models.DefaultCurrency
	}
	if in.ProductInfo == "" {
		in.ProductInfo = "Payment"
	}
	for i := range in.UDF {
		in.UDF[i] = pickString(raw, []string{fmt.Sprintf("udf%d", i+1)})
	}
	return in, nil
}

// GatewayRequest builds the outbound request for reference.
func (in *PaymentInput) GatewayRequest(reference string) gateway.PaymentRequest {
	return gateway.PaymentRequest{
		Reference:   reference,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Name:        in.Name,
		Email:       in.Email,
		Phone:       in.Phone,
		ProductInfo: in.ProductInfo,
		SuccessURL:  in.SuccessURL,
		FailureURL:  in.FailureURL,
		CallbackURL: in.CallbackURL,
		ReturnURL:   in.ReturnURL,
		UDF:         in.UDF,
	}
}

// Snapshot is the audit copy stored as Transaction.PaymentRequest.
func (in *PaymentInput) Snapshot(reference, gatewayName string) datatypes.JSONMap {
	snap := datatypes.JSONMap{
		"reference":   reference,
		"gateway":     gatewayName,
		"amount":      in.Amount.StringFixed(2),
		"currency":    in.Currency,
		"email":       in.Email,
		"name":        in.Name,
		"phone":       in.Phone,
		"productinfo": in.ProductInfo,
		"successUrl":  in.SuccessURL,
		"failureUrl":  in.FailureURL,
		"returnUrl":   in.ReturnURL,
		"callbackUrl": in.CallbackURL,
	}
	for i, v := range in.UDF {
		if v != "" {
			snap[fmt.Sprintf("udf%d", i+1)] = v
		}
	}
	return snap
}

func pick(raw map[string]any, aliases []string) (any, bool) {
	for _, key := range aliases {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func pickString(raw map[string]any, aliases []string) string {
	v, ok := pick(raw, aliases)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func parseAmount(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("must be a number")
		}
		return d, nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Zero, fmt.Errorf("must be a number")
		}
		return d, nil
	}
	return decimal.Zero, fmt.Errorf("must be a number")
}
