package repository

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/fjod/go_cart/bookstore/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupMongo(t *testing.T) CartRepository {
	if testing.Short() {
		t.Skip("skipping mongodb integration test in short mode")
	}
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	repo := NewMongoRepository(db)
	require.NoError(t, repo.CreateIndexes(ctx))
	return repo
}

// forEachRepository runs the same behaviour checks against every implementation.
func forEachRepository(t *testing.T, fn func(t *testing.T, repo CartRepository)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryRepository()) })
	t.Run("mongo", func(t *testing.T) { fn(t, setupMongo(t)) })
}

func TestAddQuantity_MergesAndRecomputesSubtotal(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo CartRepository) {
		ctx := context.Background()

		first, err := repo.AddQuantity(ctx, "c-1", 1, 2, 120000)
		require.NoError(t, err)
		assert.NotEmpty(t, first.ID)
		assert.Equal(t, int32(2), first.Quantity)
		assert.Equal(t, int64(240000), first.Subtotal)

		second, err := repo.AddQuantity(ctx, "c-1", 1, 1, 120000)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, int32(3), second.Quantity)
		assert.Equal(t, int64(360000), second.Subtotal)

		lines, err := repo.ListLines(ctx, "c-1")
		require.NoError(t, err)
		assert.Len(t, lines, 1)
	})
}

func TestAddQuantity_RejectsMergePastLimit(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo CartRepository) {
		ctx := context.Background()

		_, err := repo.AddQuantity(ctx, "c-1", 1, domain.MaxLineQuantity-1, 100)
		require.NoError(t, err)
		line, err := repo.AddQuantity(ctx, "c-1", 1, 1, 100)
		require.NoError(t, err)
		assert.Equal(t, domain.MaxLineQuantity, line.Quantity)

		_, err = repo.AddQuantity(ctx, "c-1", 1, 1, 100)
		assert.ErrorIs(t, err, domain.ErrValidation)
		_, err = repo.AddQuantity(ctx, "c-1", 2, math.MaxInt32, 100)
		assert.ErrorIs(t, err, domain.ErrValidation)

		lines, err := repo.ListLines(ctx, "c-1")
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, domain.MaxLineQuantity, lines[0].Quantity)
		assert.Equal(t, int64(domain.MaxLineQuantity)*100, lines[0].Subtotal)
	})
}

func TestAddQuantity_ConcurrentCallsLoseNoUpdates(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo CartRepository) {
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.AddQuantity(ctx, "c-1", 7, 1, 1000)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		lines, err := repo.ListLines(ctx, "c-1")
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, int32(10), lines[0].Quantity)
		assert.Equal(t, int64(10000), lines[0].Subtotal)
	})
}

func TestListLines_InsertionOrderAndIsolation(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo CartRepository) {
		ctx := context.Background()
		for _, bookID := range []int64{3, 1, 2} {
			_, err := repo.AddQuantity(ctx, "c-1", bookID, 1, 10)
			require.NoError(t, err)
		}
		_, err := repo.AddQuantity(ctx, "c-2", 9, 1, 10)
		require.NoError(t, err)

		lines, err := repo.ListLines(ctx, "c-1")
		require.NoError(t, err)
		require.Len(t, lines, 3)
		assert.Equal(t, []int64{3, 1, 2}, []int64{lines[0].BookID, lines[1].BookID, lines[2].BookID})

		empty, err := repo.ListLines(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})
}

func TestSetQuantity(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo CartRepository) {
		ctx := context.Background()
		line, err := repo.AddQuantity(ctx, "c-1", 1, 2, 100)
		require.NoError(t, err)

		updated, err := repo.SetQuantity(ctx, "c-1", line.ID, 5, 150)
		require.NoError(t, err)
		assert.Equal(t, int32(5), updated.Quantity)
		assert.Equal(t, int64(750), updated.Subtotal)

		_, err = repo.SetQuantity(ctx, "c-2", line.ID, 5, 150)
		assert.ErrorIs(t, err, domain.ErrCartLineNotFound)
	})
}

func TestGetAndDeleteLine(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo CartRepository) {
		ctx := context.Background()
		line, err := repo.AddQuantity(ctx, "c-1", 1, 1, 100)
		require.NoError(t, err)

		got, err := repo.GetLine(ctx, "c-1", line.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.BookID)

		_, err = repo.GetLine(ctx, "c-2", line.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, repo.DeleteLine(ctx, "c-1", line.ID))
		assert.ErrorIs(t, repo.DeleteLine(ctx, "c-1", line.ID), domain.ErrCartLineNotFound)
	})
}

func TestRemoveBooks_SkipsMissing(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo CartRepository) {
		ctx := context.Background()
		for _, bookID := range []int64{1, 2, 3} {
			_, err := repo.AddQuantity(ctx, "c-1", bookID, 1, 10)
			require.NoError(t, err)
		}

		removed, err := repo.RemoveBooks(ctx, "c-1", []int64{1, 3, 99})
		require.NoError(t, err)
		assert.Equal(t, int64(2), removed)

		lines, err := repo.ListLines(ctx, "c-1")
		require.NoError(t, err)
		require.Len(t, lines, 1)
		assert.Equal(t, int64(2), lines[0].BookID)

		removed, err = repo.RemoveBooks(ctx, "c-1", nil)
		require.NoError(t, err)
		assert.Zero(t, removed)
	})
}
