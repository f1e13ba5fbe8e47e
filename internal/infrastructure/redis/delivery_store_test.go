package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/storefront/internal/infrastructure/redis"
)

func TestDeliveryStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	store, err := redis.NewDeliveryStore(url, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	id := "evt_" + uuid.NewString()

	seen, err := store.Seen(ctx, id)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.Remember(ctx, id))
	seen, err = store.Seen(ctx, id)
	require.NoError(t, err)
	assert.True(t, seen)

	assert.Eventually(t, func() bool {
		seen, err := store.Seen(ctx, id)
		return err == nil && !seen
	}, 5*time.Second, 200*time.Millisecond)
}

func TestNewDeliveryStoreRejectsBadURL(t *testing.T) {
	_, err := redis.NewDeliveryStore("not a url", time.Minute)
	assert.Error(t, err)
}
