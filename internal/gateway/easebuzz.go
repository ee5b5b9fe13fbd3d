package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/example/paybridge/internal/models"
)

const (
	easebuzzInitiatePath = "/payment/initiateLink"
	easebuzzStatusPath   = "/transaction/v1/retrieve"
	easebuzzRetrievePath = "/transaction/v2.1/retrieve"
	easebuzzUDFCount     = 10
)

// EasebuzzConfig configures the hosted-checkout adapter.
type EasebuzzConfig struct {
	Key          string
	Salt         string
	PayURL       string
	DashboardURL string
	Policy       VerificationPolicy
}

// EasebuzzAdapter integrates the hosted-checkout gateway. The gateway mints an
// access key per payment; it builds the checkout link and is kept as GatewayID,
// while txnid (our reference) stays the correlation key.
type EasebuzzAdapter struct {
	cfg    EasebuzzConfig
	client *http.Client
	logger *zap.Logger
}

// NewEasebuzzAdapter builds the adapter. Key and salt are trimmed once here.
func NewEasebuzzAdapter(cfg EasebuzzConfig, client *http.Client, logger *zap.Logger) (*EasebuzzAdapter, error) {
	cfg.Key = strings.TrimSpace(cfg.Key)
	cfg.Salt = strings.TrimSpace(cfg.Salt)
	if cfg.Key == "" || cfg.Salt == "" {
		return nil, fmt.Errorf("easebuzz: %w", ErrMissingCredentials)
	}
	cfg.PayURL = strings.TrimRight(cfg.PayURL, "/")
	cfg.DashboardURL = strings.TrimRight(cfg.DashboardURL, "/")
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EasebuzzAdapter{cfg: cfg, client: client, logger: logger.With(zap.String("gateway", string(Easebuzz)))}, nil
}

func (a *EasebuzzAdapter) Name() Name { return Easebuzz }

func (a *EasebuzzAdapter) LookupKeys() LookupKeys {
	return LookupKeys{
		Reference: []string{"txnid"},
		GatewayID: []string{"easepayid"},
	}
}

// CreatePayment initiates a hosted checkout. The success URL is mandatory;
// txnid is appended to both redirect URLs so the redirect identifies itself.
func (a *EasebuzzAdapter) CreatePayment(ctx context.Context, req PaymentRequest) (*Result, error) {
	if req.Reference == "" {
		return nil, validationError("reference", "is required")
	}
	if !req.Amount.IsPositive() {
		return nil, validationError("amount", "must be greater than 0")
	}
	if strings.TrimSpace(req.Email) == "" {
		return nil, validationError("email", "is required")
	}
	if strings.TrimSpace(req.SuccessURL) == "" {
		return nil, validationError("successUrl", "is required")
	}

	surl, furl, err := redirectURLs(req.SuccessURL, req.FailureURL, req.Reference)
	if err != nil {
		return nil, err
	}

	amount := req.Amount.StringFixed(2)
	firstname := defaultString(req.Name, "Customer")
	productinfo := defaultString(req.ProductInfo, "Payment")
	phone := digitsOnly(req.Phone)
	if p, err := NormalizePhone(req.Phone); err == nil {
		phone = p
	}

	udf := make([]string, easebuzzUDFCount)
	copy(udf, req.UDF[:])

	fields := append([]string{req.Reference, amount, productinfo, firstname, req.Email}, udf...)
	form := url.Values{
		"key":         {a.cfg.Key},
		"txnid":       {req.Reference},
		"amount":      {amount},
		"productinfo": {productinfo},
		"firstname":   {firstname},
		"email":       {req.Email},
		"phone":       {phone},
		"surl":        {surl},
		"furl":        {furl},
		"hash":        {ComputeRequestHash(fields, a.cfg.Key, a.cfg.Salt)},
	}
	for i, v := range udf {
		form.Set(fmt.Sprintf("udf%d", i+1), v)
	}

	resp, err := postForm(ctx, a.client, a.cfg.PayURL+easebuzzInitiatePath, form, CreateTimeout)
	if err != nil {
		a.logger.Warn("initiate payment failed", zap.String("txnid", req.Reference), zap.Error(err))
		return failedResult(req.Reference, "easebuzz initiate payment failed: "+err.Error()), nil
	}

	body := resp.object()
	if !resp.ok() || body == nil || !isTruthy(body["status"]) {
		msg := failureMessage(resp, "easebuzz initiate payment failed")
		a.logger.Warn("initiate payment rejected", zap.String("txnid", req.Reference), zap.Int("status", resp.Status), zap.String("message", msg))
		res := failedResult(req.Reference, msg)
		res.Raw = withFallback(body, resp)
		return res, nil
	}

	accessKey := stringValue(body["data"])
	if accessKey == "" {
		return failedResult(req.Reference, "easebuzz initiate payment failed: missing access key"), nil
	}

	raw := copyMap(body)
	raw["access_key"] = accessKey
	raw["surl"] = surl
	raw["furl"] = furl

	return &Result{
		Success:     true,
		Reference:   req.Reference,
		GatewayID:   accessKey,
		PaymentLink: a.cfg.PayURL + "/pay/" + accessKey,
		Status:      models.StatusPending,
		Raw:         raw,
	}, nil
}

// CheckPaymentStatus polls the transaction API, which needs the customer's
// email and a ten-digit phone from the stored transaction.
func (a *EasebuzzAdapter) CheckPaymentStatus(ctx context.Context, q StatusQuery) (*Result, error) {
	if q.Reference == "" {
		return nil, validationError("reference", "is required")
	}
	if strings.TrimSpace(q.Email) == "" {
		return nil, validationError("email", "is required for status checks")
	}
	phone, err := NormalizePhone(q.Phone)
	if err != nil {
		return nil, err
	}

	amount := q.Amount.StringFixed(2)
	form := url.Values{
		"key":    {a.cfg.Key},
		"txnid":  {q.Reference},
		"amount": {amount},
		"email":  {q.Email},
		"phone":  {phone},
		"hash":   {ComputeRequestHash([]string{q.Reference, amount, q.Email, phone}, a.cfg.Key, a.cfg.Salt)},
	}

	resp, err := postForm(ctx, a.client, a.cfg.DashboardURL+easebuzzStatusPath, form, StatusTimeout)
	if err != nil {
		return failedResult(q.Reference, "easebuzz status check failed: "+err.Error()), nil
	}

	body := resp.object()
	if !resp.ok() || body == nil || !isTruthy(body["status"]) {
		res := failedResult(q.Reference, failureMessage(resp, "easebuzz status check failed"))
		res.Raw = withFallback(body, resp)
		return res, nil
	}

	detail := unwrapDetail(resp.JSON, q.Reference, []string{"txnid"})
	if detail == nil {
		return failedResult(q.Reference, "easebuzz status check failed: transaction details missing"), nil
	}

	return &Result{
		Success:   true,
		Reference: defaultString(firstOf(detail, "txnid"), q.Reference),
		GatewayID: firstOf(detail, "easepayid"),
		Status:    easebuzzStatus(firstOf(detail, "status")),
		Message:   firstOf(detail, "error_Message", "error"),
		Raw:       detail,
	}, nil
}

// HandleCallback normalizes a webhook or redirect post and checks its reverse hash.
func (a *EasebuzzAdapter) HandleCallback(ctx context.Context, payload map[string]string) (*CallbackResult, error) {
	ref := firstString(payload, "txnid")
	if ref == "" {
		return nil, validationError("txnid", "is required")
	}

	fields := []string{
		payload["txnid"], payload["amount"], payload["productinfo"], payload["firstname"], payload["email"],
	}
	for i := 1; i <= easebuzzUDFCount; i++ {
		fields = append(fields, payload[fmt.Sprintf("udf%d", i)])
	}
	fields = append(fields, payload["status"])

	verifyErr := CheckResponseHash(fields, payload["hash"], a.cfg.Key, a.cfg.Salt)
	if verifyErr != nil {
		if a.cfg.Policy == PolicyStrict {
			return nil, fmt.Errorf("easebuzz callback %s: %w", ref, verifyErr)
		}
		a.logger.Warn("callback hash not verified, continuing in permissive mode",
			zap.String("txnid", ref), zap.Error(verifyErr))
	}

	return &CallbackResult{
		Success:   true,
		Reference: ref,
		GatewayID: firstString(payload, "easepayid"),
		Status:    easebuzzStatus(payload["status"]),
		Verified:  verifyErr == nil,
		Message:   firstString(payload, "error_Message", "error"),
		Raw:       toAnyMap(payload),
	}, nil
}

// RetrieveTransactionDetails is the dashboard lookup used for manual
// reconciliation. Once the gateway id is known it is used instead of txnid.
func (a *EasebuzzAdapter) RetrieveTransactionDetails(ctx context.Context, q DetailQuery) (*DetailResult, error) {
	field, id := "txnid", q.Reference
	if q.GatewayID != "" {
		field, id = "easepayid", q.GatewayID
	}
	if id == "" {
		return nil, validationError("reference", "is required")
	}

	form := url.Values{
		"key":  {a.cfg.Key},
		field:  {id},
		"hash": {ComputeRequestHash([]string{id}, a.cfg.Key, a.cfg.Salt)},
	}

	resp, err := postForm(ctx, a.client, a.cfg.DashboardURL+easebuzzRetrievePath, form, StatusTimeout)
	if err != nil {
		return &DetailResult{Reference: q.Reference, Message: "easebuzz retrieve failed: " + err.Error()}, nil
	}

	body := resp.object()
	if !resp.ok() || resp.JSON == nil || (body != nil && body["status"] != nil && !isTruthy(body["status"])) {
		return &DetailResult{
			Reference: q.Reference,
			Message:   failureMessage(resp, "easebuzz retrieve failed"),
			Raw:       withFallback(body, resp),
		}, nil
	}

	detail := unwrapDetail(resp.JSON, q.Reference, []string{"txnid", "easepayid"})
	if detail == nil {
		return &DetailResult{Reference: q.Reference, Message: "easebuzz retrieve failed: transaction details missing"}, nil
	}

	return &DetailResult{
		Success:   true,
		Reference: defaultString(firstOf(detail, "txnid"), q.Reference),
		GatewayID: firstOf(detail, "easepayid"),
		Status:    easebuzzStatus(firstOf(detail, "status")),
		Amount:    firstOf(detail, "amount", "net_amount_debit"),
		Detail:    detail,
		Raw:       withFallback(body, resp),
	}, nil
}

// easebuzzStatus folds gateway-specific words into the shared vocabulary.
func easebuzzStatus(s string) models.TransactionStatus {
	switch normalizeToken(s) {
	case "usercancelled":
		return models.StatusCancelled
	case "dropped", "bounced":
		return models.StatusFailed
	}
	return NormalizeStatus(s)
}

// redirectURLs appends txnid to both redirect URLs. A missing failure URL is
// derived from the success URL with status=failure.
func redirectURLs(successURL, failureURL, ref string) (string, string, error) {
	surl, err := appendQuery(successURL, url.Values{"txnid": {ref}})
	if err != nil {
		return "", "", validationError("successUrl", err.Error())
	}

	var furl string
	if strings.TrimSpace(failureURL) == "" {
		furl, err = appendQuery(successURL, url.Values{"status": {"failure"}, "txnid": {ref}})
	} else {
		furl, err = appendQuery(failureURL, url.Values{"txnid": {ref}})
	}
	if err != nil {
		return "", "", validationError("failureUrl", err.Error())
	}
	return surl, furl, nil
}

func appendQuery(raw string, params url.Values) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid url %q: must be absolute", raw)
	}
	q := u.Query()
	for k, vs := range params {
		if len(vs) > 0 {
			q.Set(k, vs[0])
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func failedResult(ref, msg string) *Result {
	return &Result{
		Success:   false,
		Reference: ref,
		Status:    models.StatusPending,
		Message:   msg,
		Raw:       map[string]any{"error": msg},
	}
}

// withFallback keeps something diagnosable when the body is not a JSON object.
func withFallback(body map[string]any, resp *upstreamResponse) map[string]any {
	if body != nil {
		return copyMap(body)
	}
	out := map[string]any{"httpStatus": resp.Status}
	if resp.JSON != nil {
		out["body"] = resp.JSON
	} else if len(resp.Body) > 0 {
		out["body"] = truncate(string(resp.Body), 1024)
	}
	return out
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+3)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func defaultString(v, fallback string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return fallback
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
