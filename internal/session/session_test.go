package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carwash-bot/internal/config"
	"carwash-bot/internal/models"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Get(ctx, 10)
	require.NoError(t, err)
	assert.True(t, s.Idle())
	assert.Equal(t, int64(10), s.ChatID)

	s.Begin(models.FlowRegistration)
	s.BusinessName = "Солнце"
	s.Login = "Solntse"
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Get(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, models.FlowRegistration, got.Flow)
	assert.Equal(t, models.StepAwaitingBusinessName, got.Step)
	assert.Equal(t, "Солнце", got.BusinessName)
	assert.Equal(t, "Solntse", got.Login)

	other, err := store.Get(ctx, 11)
	require.NoError(t, err)
	assert.True(t, other.Idle())

	require.NoError(t, store.Delete(ctx, 10))
	got, err = store.Get(ctx, 10)
	require.NoError(t, err)
	assert.True(t, got.Idle())
	assert.Empty(t, got.BusinessName)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(time.Minute))
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryStore(10 * time.Minute)
	store.now = func() time.Time { return clock }

	s := models.NewSession(1)
	s.Begin(models.FlowProvisioning)
	require.NoError(t, store.Save(ctx, s))
	require.NoError(t, store.Save(ctx, models.NewSession(2)))

	clock = clock.Add(9 * time.Minute)
	got, err := store.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.FlowProvisioning, got.Flow)

	clock = clock.Add(2 * time.Minute)
	assert.Equal(t, 2, store.Sweep())

	got, err = store.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Idle())
	assert.Equal(t, models.FlowNone, got.Flow)
}

func setupRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := NewRedisStore(context.Background(), config.RedisConfig{Addr: mr.Addr()}, 30*time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore(t *testing.T) {
	store, _ := setupRedis(t)
	exerciseStore(t, store)
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := setupRedis(t)
	ctx := context.Background()

	s := models.NewSession(5)
	s.Begin(models.FlowRegistration)
	require.NoError(t, store.Save(ctx, s))
	assert.Equal(t, 30*time.Minute, mr.TTL(key(5)))

	mr.FastForward(31 * time.Minute)

	got, err := store.Get(ctx, 5)
	require.NoError(t, err)
	assert.True(t, got.Idle())
}

func TestNewRedisStore_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisStore(context.Background(), config.RedisConfig{Addr: addr}, time.Minute)
	assert.Error(t, err)
}
