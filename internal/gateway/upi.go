package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/paybridge/internal/models"
)

const (
	upiCreatePath = "/create_order"
	upiStatusPath = "/check_order_status"
	upiDateLayout = "02-01-2006"
)

var istZone = time.FixedZone("IST", 5*60*60+30*60)

// UPIConfig configures the UPI collect adapter.
type UPIConfig struct {
	Key     string
	BaseURL string
	// WebhookSalt signs callback hashes; optional.
	WebhookSalt string
	// RedirectURL is used when the request carries no success/return URL.
	RedirectURL string
	Policy      VerificationPolicy
}

// UPIAdapter integrates the UPI gateway. Its order id is the reference we
// generated; the gateway's own numeric id is only recorded as GatewayID.
type UPIAdapter struct {
	cfg    UPIConfig
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewUPIAdapter(cfg UPIConfig, client *http.Client, logger *zap.Logger) (*UPIAdapter, error) {
	cfg.Key = strings.TrimSpace(cfg.Key)
	cfg.WebhookSalt = strings.TrimSpace(cfg.WebhookSalt)
	if cfg.Key == "" {
		return nil, fmt.Errorf("upi: %w", ErrMissingCredentials)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UPIAdapter{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("gateway", string(UPI))),
		now:    time.Now,
	}, nil
}

func (a *UPIAdapter) Name() Name { return UPI }

func (a *UPIAdapter) LookupKeys() LookupKeys {
	return LookupKeys{
		Reference: []string{"client_txn_id", "order_id"},
		GatewayID: []string{"txn_id", "id"},
	}
}

// CreatePayment opens a UPI collect order. The redirect URL is optional and
// falls back to the configured default.
func (a *UPIAdapter) CreatePayment(ctx context.Context, req PaymentRequest) (*Result, error) {
	if req.Reference == "" {
		return nil, validationError("reference", "is required")
	}
	if !req.Amount.IsPositive() {
		return nil, validationError("amount", "must be greater than 0")
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, validationError("email", "is required")
	}

	redirect := defaultString(req.SuccessURL, defaultString(req.ReturnURL, a.cfg.RedirectURL))
	payload := map[string]any{
		"key":             a.cfg.Key,
		"client_txn_id":   req.Reference,
		"amount":          req.Amount.String(),
		"p_info":          defaultString(req.ProductInfo, "Payment"),
		"customer_name":   defaultString(req.Name, "Customer"),
		"customer_email":  req.Email,
		"customer_mobile": digitsOnly(req.Phone),
		"redirect_url":    redirect,
		"udf1":            req.UDF[0],
		"udf2":            req.UDF[1],
		"udf3":            req.UDF[2],
	}

	resp, err := postJSON(ctx, a.client, a.cfg.BaseURL+upiCreatePath, payload, CreateTimeout)
	if err != nil {
		a.logger.Warn("create order failed", zap.String("client_txn_id", req.Reference), zap.Error(err))
		return failedResult(req.Reference, "upi create order failed: "+err.Error()), nil
	}

	body := resp.object()
	if !resp.ok() || body == nil || !isTruthy(body["status"]) {
		msg := failureMessage(resp, "upi create order failed")
		a.logger.Warn("create order rejected", zap.String("client_txn_id", req.Reference), zap.Int("status", resp.Status), zap.String("message", msg))
		res := failedResult(req.Reference, msg)
		res.Raw = withFallback(body, resp)
		return res, nil
	}

	data, _ := body["data"].(map[string]any)
	link := firstOf(data, "payment_url")
	if link == "" {
		return failedResult(req.Reference, "upi create order failed: missing payment_url"), nil
	}

	raw := copyMap(body)
	raw["redirect_url"] = redirect

	return &Result{
		Success:     true,
		Reference:   req.Reference,
		OrderID:     defaultString(firstOf(data, "order_id", "client_txn_id"), req.Reference),
		GatewayID:   firstOf(data, "id", "txn_id"),
		PaymentLink: link,
		Status:      models.StatusPending,
		Raw:         raw,
	}, nil
}

// CheckPaymentStatus needs only the reference; Date narrows the lookup day
// and defaults to today.
func (a *UPIAdapter) CheckPaymentStatus(ctx context.Context, q StatusQuery) (*Result, error) {
	if q.Reference == "" {
		return nil, validationError("reference", "is required")
	}

	detail, res := a.lookup(ctx, q.Reference, q.Date)
	if res != nil {
		return res, nil
	}

	return &Result{
		Success:   true,
		Reference: defaultString(firstOf(detail, "client_txn_id"), q.Reference),
		OrderID:   firstOf(detail, "client_txn_id"),
		GatewayID: firstOf(detail, "id", "txn_id"),
		Status:    NormalizeStatus(firstOf(detail, "status")),
		Message:   firstOf(detail, "remark"),
		Raw:       detail,
	}, nil
}

// HandleCallback normalizes a webhook or redirect payload. The hash, when the
// gateway sends one, is the reverse hash over client_txn_id, amount and status.
func (a *UPIAdapter) HandleCallback(ctx context.Context, payload map[string]string) (*CallbackResult, error) {
	ref := firstString(payload, a.LookupKeys().Reference...)
	if ref == "" {
		return nil, validationError("client_txn_id", "is required")
	}

	fields := []string{ref, payload["amount"], payload["status"]}
	verifyErr := CheckResponseHash(fields, firstString(payload, "hash", "signature"), a.cfg.Key, a.cfg.WebhookSalt)
	if verifyErr != nil {
		if a.cfg.Policy == PolicyStrict {
			return nil, fmt.Errorf("upi callback %s: %w", ref, verifyErr)
		}
		a.logger.Warn("callback hash not verified, continuing in permissive mode",
			zap.String("client_txn_id", ref), zap.Error(verifyErr))
	}

	return &CallbackResult{
		Success:   true,
		Reference: ref,
		GatewayID: firstString(payload, a.LookupKeys().GatewayID...),
		Status:    NormalizeStatus(payload["status"]),
		Verified:  verifyErr == nil,
		Message:   firstString(payload, "remark"),
		Raw:       toAnyMap(payload),
	}, nil
}

// RetrieveTransactionDetails returns the full order record for manual reconciliation.
func (a *UPIAdapter) RetrieveTransactionDetails(ctx context.Context, q DetailQuery) (*DetailResult, error) {
	if q.Reference == "" {
		return nil, validationError("reference", "is required")
	}

	detail, res := a.lookup(ctx, q.Reference, q.Date)
	if res != nil {
		return &DetailResult{Reference: q.Reference, Message: res.Message, Raw: res.Raw}, nil
	}

	return &DetailResult{
		Success:   true,
		Reference: defaultString(firstOf(detail, "client_txn_id"), q.Reference),
		GatewayID: firstOf(detail, "id", "txn_id"),
		Status:    NormalizeStatus(firstOf(detail, "status")),
		Amount:    firstOf(detail, "amount"),
		Detail:    detail,
		Raw:       detail,
	}, nil
}

// lookup calls the order status endpoint. A non-nil Result reports a failure.
func (a *UPIAdapter) lookup(ctx context.Context, ref string, date time.Time) (map[string]any, *Result) {
	if date.IsZero() {
		date = a.now()
	}
	payload := map[string]any{
		"key":           a.cfg.Key,
		"client_txn_id": ref,
		"txn_date":      date.In(istZone).Format(upiDateLayout),
	}

	resp, err := postJSON(ctx, a.client, a.cfg.BaseURL+upiStatusPath, payload, StatusTimeout)
	if err != nil {
		return nil, failedResult(ref, "upi status check failed: "+err.Error())
	}

	body := resp.object()
	if !resp.ok() || resp.JSON == nil || (body != nil && body["status"] != nil && !isTruthy(body["status"])) {
		res := failedResult(ref, failureMessage(resp, "upi status check failed"))
		res.Raw = withFallback(body, resp)
		return nil, res
	}

	detail := unwrapDetail(resp.JSON, ref, []string{"client_txn_id"})
	if detail == nil {
		return nil, failedResult(ref, "upi status check failed: transaction details missing")
	}
	return detail, nil
}
