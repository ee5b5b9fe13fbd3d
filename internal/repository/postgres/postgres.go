// Package postgres implements the stores on top of GORM.
package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/paybridge/internal/models"
	"github.com/example/paybridge/internal/repository"
)

// Store is the GORM-backed TransactionStore and Directory. The connection
// must be opened with TranslateError so unique violations map to ErrDuplicate.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindByReference(ctx context.Context, ref string) (*models.Transaction, error) {
	if ref == "" {
		return nil, repository.ErrNotFound
	}
	var txn models.Transaction
	if err := s.db.WithContext(ctx).
		Where("transaction_id = ?", ref).
		First(&txn).Error; err != nil {
		return nil, translate(err)
	}
	return &txn, nil
}

func (s *Store) FindByEitherID(ctx context.Context, ref, gatewayID string) (*models.Transaction, error) {
	txn, err := s.FindByReference(ctx, ref)
	if err == nil || !errors.Is(err, repository.ErrNotFound) || gatewayID == "" {
		return txn, err
	}

	var byGateway models.Transaction
	if err := s.db.WithContext(ctx).
		Where("gateway_transaction_id = ?", gatewayID).
		First(&byGateway).Error; err != nil {
		return nil, translate(err)
	}
	return &byGateway, nil
}

func (s *Store) Insert(ctx context.Context, txn *models.Transaction) error {
	return translate(s.db.WithContext(ctx).Create(txn).Error)
}

// UpdateStatusAndMerge locks the row, applies the update and re-reads it, all
// inside one database transaction.
func (s *Store) UpdateStatusAndMerge(ctx context.Context, id uuid.UUID, upd repository.StatusUpdate) (*repository.UpdateResult, error) {
	var out models.Transaction
	var previous models.TransactionStatus
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txn models.Transaction
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&txn).Error; err != nil {
			return err
		}

		previous = txn.Status
		changed = repository.Apply(&txn, upd)

		if err := tx.Model(&txn).
			Select("status", "gateway_transaction_id", "payment_response", "updated_at").
			Updates(&txn).Error; err != nil {
			return err
		}

		return tx.Where("id = ?", id).First(&out).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &repository.UpdateResult{Transaction: &out, Previous: previous, Changed: changed}, nil
}

func (s *Store) List(ctx context.Context, filter repository.ListFilter) ([]models.Transaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Transaction{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Gateway != "" {
		query = query.Where("gateway = ?", filter.Gateway)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var txns []models.Transaction
	if err := query.Order("created_at desc").
		Offset(filter.Offset).
		Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

func (s *Store) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", email).
		First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) FirstActivePaymentMethod(ctx context.Context) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at asc").
		First(&method).Error; err != nil {
		return nil, translate(err)
	}
	return &method, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repository.ErrDuplicate
	}
	return err
}

var (
	_ repository.TransactionStore = (*Store)(nil)
	_ repository.Directory        = (*Store)(nil)
)
