// Package memory is an in-process TransactionStore and Directory for tests
// and local runs without Postgres.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/paybridge/internal/models"
	"github.com/example/paybridge/internal/repository"
)

// Store keeps transactions keyed by internal id with secondary indexes on the
// reference and the gateway id. Every read and write goes through copies.
type Store struct {
	mu        sync.RWMutex
	txns      map[uuid.UUID]*models.Transaction
	byRef     map[string]uuid.UUID
	byGateway map[string]uuid.UUID
	users     map[uuid.UUID]*models.User
	methods   []models.PaymentMethod
}

func NewStore() *Store {
	return &Store{
		txns:      make(map[uuid.UUID]*models.Transaction),
		byRef:     make(map[string]uuid.UUID),
		byGateway: make(map[string]uuid.UUID),
		users:     make(map[uuid.UUID]*models.User),
	}
}

func (s *Store) FindByReference(ctx context.Context, ref string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRef[ref]
	if !ok || ref == "" {
		return nil, repository.ErrNotFound
	}
	return s.txns[id].Clone(), nil
}

func (s *Store) FindByEitherID(ctx context.Context, ref, gatewayID string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.byRef[ref]; ok && ref != "" {
		return s.txns[id].Clone(), nil
	}
	if id, ok := s.byGateway[gatewayID]; ok && gatewayID != "" {
		return s.txns[id].Clone(), nil
	}
	return nil, repository.ErrNotFound
}

func (s *Store) Insert(ctx context.Context, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byRef[txn.TransactionID]; ok {
		return repository.ErrDuplicate
	}
	gid := txn.GatewayID()
	if _, ok := s.byGateway[gid]; ok && gid != "" {
		return repository.ErrDuplicate
	}

	txn.EnsureID()
	if _, ok := s.txns[txn.ID]; ok {
		return repository.ErrDuplicate
	}
	now := time.Now()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
	txn.UpdatedAt = now

	s.txns[txn.ID] = txn.Clone()
	s.byRef[txn.TransactionID] = txn.ID
	if gid != "" {
		s.byGateway[gid] = txn.ID
	}
	return nil
}

func (s *Store) UpdateStatusAndMerge(ctx context.Context, id uuid.UUID, upd repository.StatusUpdate) (*repository.UpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.txns[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if upd.GatewayID != "" {
		if owner, taken := s.byGateway[upd.GatewayID]; taken && owner != id {
			return nil, repository.ErrDuplicate
		}
	}

	next := stored.Clone()
	previousGateway := next.GatewayID()
	previous := next.Status
	changed := repository.Apply(next, upd)

	if gid := next.GatewayID(); gid != previousGateway {
		delete(s.byGateway, previousGateway)
		s.byGateway[gid] = id
	}
	s.txns[id] = next
	return &repository.UpdateResult{Transaction: next.Clone(), Previous: previous, Changed: changed}, nil
}

func (s *Store) List(ctx context.Context, filter repository.ListFilter) ([]models.Transaction, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Transaction
	for _, txn := range s.txns {
		if filter.Status != "" && txn.Status != filter.Status {
			continue
		}
		if filter.Gateway != "" && txn.Gateway != filter.Gateway {
			continue
		}
		if filter.UserID != nil && (txn.UserID == nil || *txn.UserID != *filter.UserID) {
			continue
		}
		matched = append(matched, txn)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := min(max(filter.Offset, 0), len(matched))
	end := len(matched)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, len(matched))
	}

	out := make([]models.Transaction, 0, end-start)
	for _, txn := range matched[start:end] {
		out = append(out, *txn.Clone())
	}
	return out, total, nil
}

// PutUser adds or replaces a user.
func (s *Store) PutUser(u models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u.EnsureID()
	cp := u
	s.users[u.ID] = &cp
	return &u
}

// PutPaymentMethod appends a payment method; order is preserved.
func (s *Store) PutPaymentMethod(m models.PaymentMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.EnsureID()
	s.methods = append(s.methods, m)
}

func (s *Store) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) FirstActivePaymentMethod(ctx context.Context) (*models.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.methods {
		if m.IsActive {
			cp := m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

var (
	_ repository.TransactionStore = (*Store)(nil)
	_ repository.Directory        = (*Store)(nil)
)
