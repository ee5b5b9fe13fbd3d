package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/paybridge/internal/gateway"
	"github.com/example/paybridge/internal/models"
	"github.com/example/paybridge/internal/repository"
)

// Source names the channel a reconciliation came from.
type Source string

const (
	SourceCreate           Source = "create"
	SourceCallback         Source = "callback"
	SourceRedirect         Source = "redirect"
	SourceStatusPoll       Source = "statusPoll"
	SourceExplicitRetrieve Source = "explicitRetrieve"
)

const notifyTimeout = 10 * time.Second

// Requestor is the authenticated caller.
type Requestor struct {
	UserID  uuid.UUID
	IsAdmin bool
}

// StatusChangedEvent is published whenever reconciliation changes a status.
type StatusChangedEvent struct {
	TransactionID        string
	Gateway              string
	GatewayTransactionID string
	UserID               string
	PreviousStatus       models.TransactionStatus
	Status               models.TransactionStatus
	Amount               decimal.Decimal
	Currency             string
	Source               Source
	OccurredAt           time.Time
}

// EventPublisher receives status changes, e.g. a Kafka producer.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, event StatusChangedEvent) error
}

// PaymentNotification describes a successful payment for humans.
type PaymentNotification struct {
	TransactionID        string
	Gateway              string
	GatewayTransactionID string
	Amount               decimal.Decimal
	Currency             string
	Source               string
}

// SuccessNotifier is told about payments that reached success.
type SuccessNotifier interface {
	NotifyPaymentSuccess(ctx context.Context, n PaymentNotification) error
}

// Deps wires the PaymentService. Events and Notifier are optional.
type Deps struct {
	Store     repository.TransactionStore
	Directory repository.Directory
	Registry  *gateway.Registry
	Policy    gateway.VerificationPolicy
	Events    EventPublisher
	Notifier  SuccessNotifier
	Logger    *zap.Logger
}

// PaymentService creates transactions and reconciles their status from
// callbacks, redirects, status polls and manual retrievals.
type PaymentService struct {
	store     repository.TransactionStore
	directory repository.Directory
	registry  *gateway.Registry
	policy    gateway.VerificationPolicy
	events    EventPublisher
	notifier  SuccessNotifier
	logger    *zap.Logger

	now          func() time.Time
	newReference func(time.Time) string
	background   sync.WaitGroup
}

func NewPaymentService(d Deps) *PaymentService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		store:        d.Store,
		directory:    d.Directory,
		registry:     d.Registry,
		policy:       d.Policy,
		events:       d.Events,
		notifier:     d.Notifier,
		logger:       logger.With(zap.String("component", "payments")),
		now:          time.Now,
		newReference: NewReference,
	}
}

// Wait blocks until background publishing and notifications have finished.
func (s *PaymentService) Wait() {
	s.background.Wait()
}

// CreateResult is what the caller needs to send the customer to the gateway.
type CreateResult struct {
	Transaction *models.Transaction
	PaymentURL  string
}

// CreatePayment normalizes raw, picks a gateway, asks it for a payment link
// and stores a pending transaction.
func (s *PaymentService) CreatePayment(ctx context.Context, req Requestor, raw map[string]any) (*CreateResult, error) {
	input, err := NormalizePaymentRequest(raw)
	if err != nil {
		return nil, err
	}

	name, err := s.selectGateway(ctx, req, input.Gateway)
	if err != nil {
		return nil, err
	}
	adapter, err := s.registry.Resolve(string(name))
	if err != nil {
		return nil, err
	}

	now := s.now()
	reference := s.newReference(now)
	result, err := adapter.CreatePayment(ctx, input.GatewayRequest(reference))
	if err != nil {
		return nil, err
	}
	if !result.Success {
		s.logger.Warn("gateway rejected payment",
			zap.String("gateway", string(name)),
			zap.String("reference", reference),
			zap.String("message", result.Message))
		return nil, &GatewayError{Gateway: string(name), Message: result.Message, Raw: result.Raw}
	}

	// The reference stored is the id the gateway will echo back.
	if result.OrderID != "" && result.OrderID != reference {
		s.logger.Info("gateway assigned its own order id",
			zap.String("generated", reference),
			zap.String("order_id", result.OrderID))
		reference = result.OrderID
	}

	txn := &models.Transaction{
		TransactionID:   reference,
		Gateway:         string(adapter.Name()),
		Amount:          input.Amount,
		Currency:        input.Currency,
		Status:          models.StatusPending,
		PaymentRequest:  input.Snapshot(reference, string(adapter.Name())),
		PaymentResponse: models.MergeResponse(nil, result.Raw, string(SourceCreate), models.StatusPending, now),
		CallbackURL:     input.CallbackURL,
		ReturnURL:       input.ReturnURL,
	}
	if req.UserID != uuid.Nil {
		uid := req.UserID
		txn.UserID = &uid
	}
	if result.GatewayID != "" {
		gid := result.GatewayID
		txn.GatewayTransactionID = &gid
	}

	if err := s.store.Insert(ctx, txn); err != nil {
		return nil, fmt.Errorf("store transaction %s: %w", reference, err)
	}

	s.logger.Info("payment created",
		zap.String("transaction_id", txn.TransactionID),
		zap.String("gateway", txn.Gateway),
		zap.String("amount", txn.Amount.StringFixed(2)))

	return &CreateResult{Transaction: txn, PaymentURL: result.PaymentLink}, nil
}

// selectGateway applies: request override, the user's default gateway, the
// first active payment method.
func (s *PaymentService) selectGateway(ctx context.Context, req Requestor, override string) (gateway.Name, error) {
	var user *models.User
	if req.UserID != uuid.Nil {
		u, err := s.directory.FindUser(ctx, req.UserID)
		switch {
		case err == nil:
			user = u
		case !errors.Is(err, repository.ErrNotFound):
			return "", fmt.Errorf("load user: %w", err)
		}
	}

	if override != "" {
		name, ok := gateway.ParseName(override)
		if !ok {
			return "", invalidField("gateway", fmt.Sprintf("unknown gateway %q", override))
		}
		if user != nil && !req.IsAdmin && !user.Allows(string(name)) {
			return "", fmt.Errorf("%w: %s", ErrGatewayNotAllowed, name)
		}
		return name, nil
	}

	if user != nil && user.PaymentGateway != "" {
		if name, ok := gateway.ParseName(user.PaymentGateway); ok {
			return name, nil
		}
		s.logger.Warn("user default gateway is unknown, falling back",
			zap.String("user_id", user.ID.String()),
			zap.String("gateway", user.PaymentGateway))
	}

	method, err := s.directory.FirstActivePaymentMethod(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNoGatewayAvailable
		}
		return "", fmt.Errorf("load payment methods: %w", err)
	}
	name, ok := gateway.ParseName(method.Gateway)
	if !ok {
		return "", fmt.Errorf("%w: payment method %q has unknown gateway %q", ErrNoGatewayAvailable, method.Name, method.Gateway)
	}
	return name, nil
}

// ReconcileInput identifies the transaction and carries the inbound payload.
// Reference and GatewayID, when set, take precedence over payload fields.
type ReconcileInput struct {
	Source    Source
	Gateway   string
	Reference string
	GatewayID string
	Payload   map[string]string
	// Date hints day-based lookups; the creation time is used when zero.
	Date time.Time
}

// ReconcileResult reports the stored transaction after the update.
type ReconcileResult struct {
	Transaction *models.Transaction
	Changed     bool
	Verified    bool
	// Message is the gateway's message when it could not give a status.
	Message string
	Detail  map[string]any
}

// signal is the outcome of asking an adapter about a transaction.
type signal struct {
	status    *models.TransactionStatus
	gatewayID string
	fragment  map[string]any
	verified  bool
	message   string
	detail    map[string]any
}

// Reconcile folds one inbound signal into the stored transaction. Status is
// written only when it differs; the response is always merged. The most
// recent signal wins, including moves away from a terminal status.
func (s *PaymentService) Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileResult, error) {
	txn, err := s.locate(ctx, in)
	if err != nil {
		return nil, err
	}

	if in.Gateway != "" {
		hint, ok := gateway.ParseName(in.Gateway)
		owner, _ := gateway.ParseName(txn.Gateway)
		if !ok || hint != owner {
			s.logger.Warn("signal addressed to another gateway",
				zap.String("transaction_id", txn.TransactionID),
				zap.String("gateway", txn.Gateway),
				zap.String("hint", in.Gateway),
				zap.String("source", string(in.Source)))
			return nil, fmt.Errorf("%w: transaction %s belongs to %s, not %s",
				ErrGatewayMismatch, txn.TransactionID, txn.Gateway, in.Gateway)
		}
	}

	adapter, err := s.registry.Resolve(txn.Gateway)
	if err != nil {
		return nil, err
	}

	var sig *signal
	switch in.Source {
	case SourceCallback, SourceRedirect:
		sig, err = s.fromCallback(ctx, adapter, txn, in)
	case SourceStatusPoll:
		sig, err = s.fromStatusPoll(ctx, adapter, txn, in.Date)
	case SourceExplicitRetrieve:
		sig, err = s.fromRetrieve(ctx, adapter, txn, in.Date)
	default:
		return nil, invalidField("source", fmt.Sprintf("unknown reconciliation source %q", in.Source))
	}
	if err != nil {
		return nil, err
	}

	gatewayID := sig.gatewayID
	if gatewayID != "" && gatewayID == txn.GatewayID() {
		gatewayID = ""
	}

	res, err := s.store.UpdateStatusAndMerge(ctx, txn.ID, repository.StatusUpdate{
		Status:    sig.status,
		Fragment:  sig.fragment,
		Source:    string(in.Source),
		GatewayID: gatewayID,
		At:        s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("update transaction %s: %w", txn.TransactionID, err)
	}

	// The snapshot from locate may be stale; only the store knows what it replaced.
	updated := res.Transaction
	s.logger.Info("transaction reconciled",
		zap.String("transaction_id", updated.TransactionID),
		zap.String("source", string(in.Source)),
		zap.String("previous_status", string(res.Previous)),
		zap.String("status", string(updated.Status)),
		zap.Bool("verified", sig.verified))

	if res.Changed {
		s.afterStatusChange(res.Previous, updated, in.Source)
	}

	return &ReconcileResult{
		Transaction: updated,
		Changed:     res.Changed,
		Verified:    sig.verified,
		Message:     sig.message,
		Detail:      sig.detail,
	}, nil
}

// locate finds the transaction by reference first, then by gateway id.
func (s *PaymentService) locate(ctx context.Context, in ReconcileInput) (*models.Transaction, error) {
	keys := s.registry.LookupKeys()
	if in.Gateway != "" {
		if a, err := s.registry.Resolve(in.Gateway); err == nil {
			keys = a.LookupKeys()
		}
	}

	ref := strings.TrimSpace(in.Reference)
	if ref == "" {
		ref = firstValue(in.Payload, keys.Reference)
	}
	gid := strings.TrimSpace(in.GatewayID)
	if gid == "" {
		gid = firstValue(in.Payload, keys.GatewayID)
	}
	if ref == "" && gid == "" {
		return nil, invalidField("transactionId", "no transaction identifier in request")
	}

	txn, err := s.store.FindByEitherID(ctx, ref, gid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, firstNonEmpty(ref, gid))
		}
		return nil, err
	}
	return txn, nil
}

func (s *PaymentService) fromCallback(ctx context.Context, adapter gateway.Adapter, txn *models.Transaction, in ReconcileInput) (*signal, error) {
	payload := withReference(in.Payload, adapter.LookupKeys().Reference, txn.TransactionID)

	cb, err := adapter.HandleCallback(ctx, payload)
	if err != nil {
		if errors.Is(err, gateway.ErrHashMissing) && s.policy == gateway.PolicyStrict {
			// An unsigned payload is never trusted; ask the gateway instead.
			s.logger.Info("unsigned payload, confirming with a status poll",
				zap.String("transaction_id", txn.TransactionID),
				zap.String("source", string(in.Source)))
			sig, pollErr := s.fromStatusPoll(ctx, adapter, txn, in.Date)
			if pollErr != nil {
				return nil, pollErr
			}
			sig.fragment["confirmedBy"] = string(SourceStatusPoll)
			return sig, nil
		}
		if gateway.IsVerificationError(err) {
			s.logger.Warn("rejected unverified payload",
				zap.String("transaction_id", txn.TransactionID),
				zap.String("source", string(in.Source)),
				zap.Error(err))
		}
		return nil, err
	}

	status := cb.Status
	return &signal{
		status:    &status,
		gatewayID: cb.GatewayID,
		fragment:  cb.Raw,
		verified:  cb.Verified,
		message:   cb.Message,
	}, nil
}

func (s *PaymentService) fromStatusPoll(ctx context.Context, adapter gateway.Adapter, txn *models.Transaction, date time.Time) (*signal, error) {
	if date.IsZero() {
		date = txn.CreatedAt
	}
	res, err := adapter.CheckPaymentStatus(ctx, gateway.StatusQuery{
		Reference: txn.TransactionID,
		GatewayID: txn.GatewayID(),
		Amount:    txn.Amount,
		Email:     txn.RequestField("email"),
		Phone:     txn.RequestField("phone"),
		Date:      date,
	})
	if err != nil {
		return nil, err
	}

	sig := &signal{
		gatewayID: res.GatewayID,
		fragment:  copyFragment(res.Raw),
		verified:  res.Success,
		message:   res.Message,
	}
	if res.Success {
		status := res.Status
		sig.status = &status
	} else {
		// An upstream failure says nothing about the payment itself.
		sig.fragment["pollError"] = res.Message
	}
	return sig, nil
}

func (s *PaymentService) fromRetrieve(ctx context.Context, adapter gateway.Adapter, txn *models.Transaction, date time.Time) (*signal, error) {
	if date.IsZero() {
		date = txn.CreatedAt
	}
	res, err := adapter.RetrieveTransactionDetails(ctx, gateway.DetailQuery{
		Reference: txn.TransactionID,
		GatewayID: txn.GatewayID(),
		Date:      date,
	})
	if err != nil {
		return nil, err
	}

	sig := &signal{
		gatewayID: res.GatewayID,
		fragment:  copyFragment(res.Detail),
		verified:  res.Success,
		message:   res.Message,
		detail:    res.Detail,
	}
	if res.Success {
		status := res.Status
		sig.status = &status
	} else {
		sig.fragment = copyFragment(res.Raw)
		sig.fragment["retrieveError"] = res.Message
	}
	return sig, nil
}

// afterStatusChange fans the change out without holding up the caller.
func (s *PaymentService) afterStatusChange(previous models.TransactionStatus, txn *models.Transaction, source Source) {
	if s.events == nil && (s.notifier == nil || txn.Status != models.StatusSuccess) {
		return
	}

	event := StatusChangedEvent{
		TransactionID:        txn.TransactionID,
		Gateway:              txn.Gateway,
		GatewayTransactionID: txn.GatewayID(),
		PreviousStatus:       previous,
		Status:               txn.Status,
		Amount:               txn.Amount,
		Currency:             txn.Currency,
		Source:               source,
		OccurredAt:           s.now(),
	}
	if txn.UserID != nil {
		event.UserID = txn.UserID.String()
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if s.events != nil {
			if err := s.events.PublishStatusChanged(ctx, event); err != nil {
				s.logger.Error("publish status change failed",
					zap.String("transaction_id", event.TransactionID), zap.Error(err))
			}
		}
		if s.notifier != nil && event.Status == models.StatusSuccess {
			err := s.notifier.NotifyPaymentSuccess(ctx, PaymentNotification{
				TransactionID:        event.TransactionID,
				Gateway:              event.Gateway,
				GatewayTransactionID: event.GatewayTransactionID,
				Amount:               event.Amount,
				Currency:             event.Currency,
				Source:               string(event.Source),
			})
			if err != nil {
				s.logger.Warn("payment notification failed",
					zap.String("transaction_id", event.TransactionID), zap.Error(err))
			}
		}
	}()
}

// GetTransaction returns a transaction the requestor owns, or any for admins.
func (s *PaymentService) GetTransaction(ctx context.Context, req Requestor, id string) (*models.Transaction, error) {
	txn, err := s.store.FindByEitherID(ctx, id, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
		}
		return nil, err
	}
	if !req.IsAdmin && (txn.UserID == nil || *txn.UserID != req.UserID) {
		return nil, ErrForbidden
	}
	return txn, nil
}

// CheckStatus polls the gateway on behalf of the owner and reconciles.
func (s *PaymentService) CheckStatus(ctx context.Context, req Requestor, id string) (*ReconcileResult, error) {
	txn, err := s.GetTransaction(ctx, req, id)
	if err != nil {
		return nil, err
	}
	return s.Reconcile(ctx, ReconcileInput{Source: SourceStatusPoll, Reference: txn.TransactionID})
}

// RetrieveDetails runs a manual dashboard lookup and reconciles.
func (s *PaymentService) RetrieveDetails(ctx context.Context, id string, date time.Time) (*ReconcileResult, error) {
	txn, err := s.GetTransaction(ctx, Requestor{IsAdmin: true}, id)
	if err != nil {
		return nil, err
	}
	return s.Reconcile(ctx, ReconcileInput{Source: SourceExplicitRetrieve, Reference: txn.TransactionID, Date: date})
}

// ListTransactions is the admin listing.
func (s *PaymentService) ListTransactions(ctx context.Context, filter repository.ListFilter) ([]models.Transaction, int64, error) {
	return s.store.List(ctx, filter)
}

func firstValue(payload map[string]string, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(payload[k]); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// withReference fills in the adapter's reference field when the payload was
// matched by another key.
func withReference(payload map[string]string, refKeys []string, ref string) map[string]string {
	if len(refKeys) == 0 || firstValue(payload, refKeys) != "" {
		return payload
	}
	out := make(map[string]string, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out[refKeys[0]] = ref
	return out
}

func copyFragment(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
