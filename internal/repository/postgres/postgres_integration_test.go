//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/example/paybridge/internal/database"
	"github.com/example/paybridge/internal/models"
	"github.com/example/paybridge/internal/repository"
)

func TestStore_Integration(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("paybridge"),
		tcpostgres.WithUsername("paybridge"),
		tcpostgres.WithPassword("paybridge"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, testcontainers.TerminateContainer(container))
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.Connect(dsn, false, zap.NewNop())
	require.NoError(t, err)
	store := NewStore(db)

	newTxn := func(ref string) *models.Transaction {
		return &models.Transaction{
			TransactionID:  ref,
			Gateway:        models.GatewayEasebuzz,
			Amount:         decimal.RequireFromString("100.50"),
			Currency:       models.DefaultCurrency,
			Status:         models.StatusPending,
			PaymentRequest: datatypes.JSONMap{"email": "a@b.com"},
		}
	}

	t.Run("insert and find", func(t *testing.T) {
		txn := newTxn("TXN-INT-1")
		require.NoError(t, store.Insert(ctx, txn))

		got, err := store.FindByReference(ctx, "TXN-INT-1")
		require.NoError(t, err)
		require.Equal(t, txn.ID, got.ID)
		require.True(t, decimal.RequireFromString("100.50").Equal(got.Amount))
		require.Equal(t, "a@b.com", got.RequestField("email"))

		require.ErrorIs(t, store.Insert(ctx, newTxn("TXN-INT-1")), repository.ErrDuplicate)

		_, err = store.FindByReference(ctx, "missing")
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("update and find by gateway id", func(t *testing.T) {
		txn := newTxn("TXN-INT-2")
		require.NoError(t, store.Insert(ctx, txn))

		success := models.StatusSuccess
		res, err := store.UpdateStatusAndMerge(ctx, txn.ID, repository.StatusUpdate{
			Status:    &success,
			Fragment:  map[string]any{"status": "success"},
			Source:    "callback",
			GatewayID: "E-INT-2",
			At:        time.Now(),
		})
		require.NoError(t, err)
		require.True(t, res.Changed)
		require.Equal(t, models.StatusPending, res.Previous)
		updated := res.Transaction
		require.Equal(t, models.StatusSuccess, updated.Status)
		require.Len(t, models.ResponseHistory(updated.PaymentResponse), 1)

		got, err := store.FindByEitherID(ctx, "", "E-INT-2")
		require.NoError(t, err)
		require.Equal(t, txn.ID, got.ID)
	})

	t.Run("concurrent merges are serialized", func(t *testing.T) {
		txn := newTxn("TXN-INT-3")
		require.NoError(t, store.Insert(ctx, txn))

		const workers = 8
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.UpdateStatusAndMerge(ctx, txn.ID, repository.StatusUpdate{
					Fragment: map[string]any{fmt.Sprintf("k%d", i): i},
					Source:   "statusPoll",
				})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := store.FindByReference(ctx, "TXN-INT-3")
		require.NoError(t, err)
		require.Len(t, models.ResponseHistory(got.PaymentResponse), workers)
	})

	t.Run("list", func(t *testing.T) {
		txns, total, err := store.List(ctx, repository.ListFilter{Gateway: models.GatewayEasebuzz, Limit: 2})
		require.NoError(t, err)
		require.EqualValues(t, 3, total)
		require.Len(t, txns, 2)
	})
}
