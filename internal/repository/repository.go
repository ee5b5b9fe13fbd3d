// Package repository defines the persistence contracts of the payment core.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/paybridge/internal/models"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a reference or gateway id is already taken.
	ErrDuplicate = errors.New("record already exists")
)

// StatusUpdate is applied atomically to one transaction.
type StatusUpdate struct {
	// Status is written only when non-nil and different from the stored status.
	Status *models.TransactionStatus
	// Fragment is merged into PaymentResponse; prior keys are kept.
	Fragment map[string]any
	// Source tags the history entry (create, callback, redirect, statusPoll, explicitRetrieve).
	Source string
	// GatewayID is written when non-empty.
	GatewayID string
	At        time.Time
}

// UpdateResult is what UpdateStatusAndMerge saw and wrote. Previous and
// Changed are taken under the same lock as the write, so of several racing
// updates to the same status only one reports Changed.
type UpdateResult struct {
	Transaction *models.Transaction
	Previous    models.TransactionStatus
	Changed     bool
}

// ListFilter narrows an admin listing.
type ListFilter struct {
	Status  models.TransactionStatus
	Gateway string
	UserID  *uuid.UUID
	Limit   int
	Offset  int
}

// TransactionStore persists transactions. UpdateStatusAndMerge must be
// serialized per transaction so concurrent reconciliations never lose a merge.
type TransactionStore interface {
	// FindByReference returns ErrNotFound when the reference is unknown.
	FindByReference(ctx context.Context, ref string) (*models.Transaction, error)
	// FindByEitherID matches the reference first, then the gateway id.
	FindByEitherID(ctx context.Context, ref, gatewayID string) (*models.Transaction, error)
	// Insert returns ErrDuplicate on a reference or gateway id collision.
	Insert(ctx context.Context, txn *models.Transaction) error
	// UpdateStatusAndMerge returns the stored row after the update together
	// with the status it replaced.
	UpdateStatusAndMerge(ctx context.Context, id uuid.UUID, upd StatusUpdate) (*UpdateResult, error)
	List(ctx context.Context, filter ListFilter) ([]models.Transaction, int64, error)
}

// Directory is the read-only view of users and payment methods.
type Directory interface {
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	// FirstActivePaymentMethod returns ErrNotFound when every method is off.
	FirstActivePaymentMethod(ctx context.Context) (*models.PaymentMethod, error)
}

// Apply mutates txn with upd the way every store implementation must.
// It reports whether the status changed.
func Apply(txn *models.Transaction, upd StatusUpdate) bool {
	at := upd.At
	if at.IsZero() {
		at = time.Now()
	}

	changed := upd.Status != nil && *upd.Status != txn.Status
	if changed {
		txn.Status = *upd.Status
	}
	if upd.GatewayID != "" {
		id := upd.GatewayID
		txn.GatewayTransactionID = &id
	}
	txn.PaymentResponse = models.MergeResponse(txn.PaymentResponse, upd.Fragment, upd.Source, txn.Status, at)
	txn.UpdatedAt = at
	return changed
}
