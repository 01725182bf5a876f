package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fjod/go_cart/bookstore/internal/domain"
	"github.com/fjod/go_cart/bookstore/internal/platform/postgres/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresLedger_Lifecycle(t *testing.T) {
	db := pgtest.Start(t)
	ledger := NewPostgresLedger(db)
	ctx := context.Background()

	_, err := ledger.GetStock(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrStockNotFound)

	require.NoError(t, ledger.SetStock(ctx, 1, 5))
	require.NoError(t, ledger.SetStock(ctx, 2, 1))

	require.NoError(t, ledger.Decrement(ctx, 1, 2))
	assert.ErrorIs(t, ledger.Decrement(ctx, 2, 2), domain.ErrInsufficientStock)
	assert.ErrorIs(t, ledger.Decrement(ctx, 9, 1), domain.ErrStockNotFound)
	require.NoError(t, ledger.Increment(ctx, 2, 4))

	records, err := ledger.ListStock(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int32(3), records[0].Stock)
	assert.Equal(t, int32(5), records[1].Stock)

	require.NoError(t, ledger.Retire(ctx, 2))
	_, err = ledger.GetStock(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, ledger.Retire(ctx, 2), domain.ErrNotFound)

	require.NoError(t, ledger.SetStock(ctx, 2, 7))
	rec, err := ledger.GetStock(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(7), rec.Stock)
}

func TestPostgresLedger_SeedAndStockLimit(t *testing.T) {
	db := pgtest.Start(t)
	ledger := NewPostgresLedger(db)
	ctx := context.Background()

	created, err := ledger.Seed(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, ledger.Retire(ctx, 1))
	created, err = ledger.Seed(ctx, 1, 10)
	require.NoError(t, err)
	assert.False(t, created)
	_, err = ledger.GetStock(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrStockNotFound)

	require.NoError(t, ledger.SetStock(ctx, 2, MaxStock-1))
	require.NoError(t, ledger.Increment(ctx, 2, 1))
	assert.ErrorIs(t, ledger.Increment(ctx, 2, 1), domain.ErrValidation)
	assert.ErrorIs(t, ledger.Increment(ctx, 9, 1), domain.ErrStockNotFound)

	rec, err := ledger.GetStock(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, MaxStock, rec.Stock)
}

func TestPostgresLedger_ConcurrentDecrementsNeverOversell(t *testing.T) {
	db := pgtest.Start(t)
	ledger := NewPostgresLedger(db)
	ctx := context.Background()
	require.NoError(t, ledger.SetStock(ctx, 1, 10))

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Decrement(ctx, 1, 1); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), successes.Load())
	rec, err := ledger.GetStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(0), rec.Stock)
}

func TestPostgresLedger_JoinsTransaction(t *testing.T) {
	db := pgtest.Start(t)
	ctx := context.Background()
	require.NoError(t, NewPostgresLedger(db).SetStock(ctx, 1, 4))

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, NewPostgresLedger(tx).Decrement(ctx, 1, 4))
	require.NoError(t, tx.Rollback())

	rec, err := NewPostgresLedger(db).GetStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(4), rec.Stock)
}
