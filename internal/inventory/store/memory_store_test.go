package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fjod/go_cart/bookstore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetStock_And_GetStock(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SetStock(ctx, 1, 100))
	require.NoError(t, store.SetStock(ctx, 2, 0))

	rec, err := store.GetStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(100), rec.Stock)
	assert.True(t, rec.Available())

	rec, err = store.GetStock(ctx, 2)
	require.NoError(t, err)
	assert.False(t, rec.Available())

	_, err = store.GetStock(ctx, 3)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStore_SetStock_RejectsNegative(t *testing.T) {
	store := NewMemoryStore()

	err := store.SetStock(context.Background(), 1, -1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMemoryStore_Decrement(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		stock     int32
		qty       int32
		wantErr   error
		wantStock int32
	}{
		{name: "enough stock", stock: 10, qty: 2, wantStock: 8},
		{name: "exact stock", stock: 2, qty: 2, wantStock: 0},
		{name: "insufficient", stock: 1, qty: 2, wantErr: domain.ErrInsufficientStock, wantStock: 1},
		{name: "zero quantity", stock: 1, qty: 0, wantErr: domain.ErrValidation, wantStock: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			require.NoError(t, store.SetStock(ctx, 1, tt.stock))

			err := store.Decrement(ctx, 1, tt.qty)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			rec, err := store.GetStock(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStock, rec.Stock)
		})
	}
}

func TestMemoryStore_Decrement_UnknownBook(t *testing.T) {
	store := NewMemoryStore()

	err := store.Decrement(context.Background(), 42, 1)
	assert.ErrorIs(t, err, domain.ErrStockNotFound)
}

func TestMemoryStore_Increment(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SetStock(ctx, 1, 3))

	require.NoError(t, store.Increment(ctx, 1, 4))

	rec, err := store.GetStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(7), rec.Stock)

	assert.ErrorIs(t, store.Increment(ctx, 2, 1), domain.ErrNotFound)
}

func TestMemoryStore_Increment_StopsAtMaxStock(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SetStock(ctx, 1, MaxStock-1))

	require.NoError(t, store.Increment(ctx, 1, 1))
	assert.ErrorIs(t, store.Increment(ctx, 1, 1), domain.ErrValidation)

	rec, err := store.GetStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, MaxStock, rec.Stock)
}

func TestMemoryStore_Seed_LeavesExistingAndRetiredRecords(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, err := store.Seed(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, store.Decrement(ctx, 1, 4))
	created, err = store.Seed(ctx, 1, 10)
	require.NoError(t, err)
	assert.False(t, created)
	rec, err := store.GetStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(6), rec.Stock)

	require.NoError(t, store.Retire(ctx, 1))
	created, err = store.Seed(ctx, 1, 10)
	require.NoError(t, err)
	assert.False(t, created)
	_, err = store.GetStock(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrStockNotFound)

	_, err = store.Seed(ctx, 2, -1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMemoryStore_Retire_HidesRecord(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SetStock(ctx, 1, 3))
	require.NoError(t, store.SetStock(ctx, 2, 5))

	require.NoError(t, store.Retire(ctx, 1))

	_, err := store.GetStock(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.Decrement(ctx, 1, 1), domain.ErrNotFound)
	assert.ErrorIs(t, store.Retire(ctx, 1), domain.ErrNotFound)

	records, err := store.ListStock(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(2), records[0].BookID)

	// setting stock again revives the record
	require.NoError(t, store.SetStock(ctx, 1, 9))
	rec, err := store.GetStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(9), rec.Stock)
}

func TestMemoryStore_ListStock_OrderedByBook(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []int64{3, 1, 2} {
		require.NoError(t, store.SetStock(ctx, id, int32(id)))
	}

	records, err := store.ListStock(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(1), records[0].BookID)
	assert.Equal(t, int64(3), records[2].BookID)
}

func TestMemoryStore_ConcurrentDecrements(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SetStock(ctx, 1, 100))

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)

	// 10 units each, 25 callers: only 10 can succeed
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Decrement(ctx, 1, 10); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), successes.Load())
	rec, err := store.GetStock(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(0), rec.Stock)
}
