package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-core/internal/models"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	db := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = db.Close() })

	return New(db), mr
}

func testInfo() *models.SubscriptionInfo {
	end := time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC)
	return models.NewSubscriptionInfo("4754259718", &models.Record{
		PlanName:         models.PlanBasic,
		PlanAmount:       1000,
		Status:           models.StatusActive,
		CurrentPeriodEnd: end,
	})
}

func TestSetAndGet(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	expected := testInfo()
	require.NoError(t, cache.Set(ctx, "subinfo:4754259718", expected, time.Minute))

	var actual models.SubscriptionInfo
	found, err := cache.Get(ctx, "subinfo:4754259718", &actual)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, *expected, actual)
}

func TestGetNotFound(t *testing.T) {
	cache, _ := setupTestCache(t)

	var out models.SubscriptionInfo
	found, err := cache.Get(context.Background(), "subinfo:missing", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestExpiration(t *testing.T) {
	cache, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "subinfo:4754259718", testInfo(), time.Minute))
	mr.FastForward(2 * time.Minute)

	var out models.SubscriptionInfo
	found, err := cache.Get(ctx, "subinfo:4754259718", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInvalidate(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "key", "value", time.Minute))
	require.NoError(t, cache.Invalidate(ctx, "key"))

	var out string
	found, err := cache.Get(ctx, "key", &out)
	require.NoError(t, err)
	assert.False(t, found)

	// удаление отсутствующего ключа не ошибка
	assert.NoError(t, cache.Invalidate(ctx, "key"))
}

func TestGetInvalidJSON(t *testing.T) {
	cache, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Db.Set(ctx, "bad", []byte("not-json"), time.Minute).Err())

	var out models.SubscriptionInfo
	found, err := cache.Get(ctx, "bad", &out)
	assert.False(t, found)
	assert.Error(t, err)
}

func TestUnavailable(t *testing.T) {
	cache, mr := setupTestCache(t)
	mr.Close()

	assert.Error(t, cache.Set(context.Background(), "key", "value", time.Minute))
}
