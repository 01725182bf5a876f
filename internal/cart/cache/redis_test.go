package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/bookstore/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client), mr
}

func sampleSummary(customerID string) *domain.CartSummary {
	return domain.NewCartSummary(customerID, []domain.CartLine{
		{ID: "l-1", CustomerID: customerID, BookID: 1, Quantity: 2, Subtotal: 240000},
		{ID: "l-2", CustomerID: customerID, BookID: 2, Quantity: 1, Subtotal: 135000},
	})
}

func TestGet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)

	data, err := json.Marshal(sampleSummary("c-1"))
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey("c-1"), string(data)))

	result, err := cache.Get(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "c-1", result.CustomerID)
	assert.Len(t, result.Lines, 2)
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, int64(375000), result.Total)
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	result, err := cache.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cacheKey("c-1"), `{"customer_id":`))

	_, err := cache.Get(context.Background(), "c-1")
	require.ErrorContains(t, err, "unmarshal cart failed")
}

func TestGet_RedisDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.Get(context.Background(), "c-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSet_StoresWithJitteredTTL(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.Set(context.Background(), "c-1", sampleSummary("c-1")))

	stored, err := mr.Get(cacheKey("c-1"))
	require.NoError(t, err)
	var summary domain.CartSummary
	require.NoError(t, json.Unmarshal([]byte(stored), &summary))
	assert.Len(t, summary.Lines, 2)

	ttl := mr.TTL(cacheKey("c-1"))
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.LessOrEqual(t, ttl, 20*time.Minute)
}

func TestDelete(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cacheKey("c-1"), "{}"))

	require.NoError(t, cache.Delete(context.Background(), "c-1"))
	assert.False(t, mr.Exists(cacheKey("c-1")))

	// deleting a missing key is not an error
	assert.NoError(t, cache.Delete(context.Background(), "c-1"))
}

func TestNoop_AlwaysMisses(t *testing.T) {
	var c CartCache = Noop{}
	require.NoError(t, c.Set(context.Background(), "c-1", sampleSummary("c-1")))

	_, err := c.Get(context.Background(), "c-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheKey_Format(t *testing.T) {
	assert.Equal(t, "cart:test123", cacheKey("test123"))
}
