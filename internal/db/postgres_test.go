package db

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"carwash-bot/internal/config"
	"carwash-bot/internal/models"
)

func setupTestDatabase(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("carwash"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, Migrate(dsn))
	// Applying twice is a no-op.
	require.NoError(t, Migrate(dsn))

	database, err := NewPostgresDB(config.DBConfig{URL: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(database.Close)
	return database
}

func int64Ptr(v int64) *int64 { return &v }

func newAccount(login string, externalID *int64) *models.Account {
	return &models.Account{
		ExternalUserID: externalID,
		Login:          login,
		Password:       "Pa55word",
		BusinessName:   "Солнце",
		OwnerName:      "Ivan",
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestPostgresDB(t *testing.T) {
	database := setupTestDatabase(t)
	ctx := context.Background()

	t.Run("create and lookup", func(t *testing.T) {
		acc := newAccount("Solntse", int64Ptr(1001))
		require.NoError(t, database.CreateAccount(ctx, acc))
		assert.NotZero(t, acc.ID)

		byExt, err := database.GetByExternalID(ctx, 1001)
		require.NoError(t, err)
		assert.Equal(t, acc.ID, byExt.ID)
		assert.Equal(t, "Pa55word", byExt.Password)
		assert.Nil(t, byExt.SubscriptionEnd)
		assert.True(t, acc.CreatedAt.Equal(byExt.CreatedAt))

		byLogin, err := database.GetByLogin(ctx, "Solntse")
		require.NoError(t, err)
		assert.Equal(t, acc.ID, byLogin.ID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := database.GetByExternalID(ctx, 424242)
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = database.GetByLogin(ctx, "Nobody")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("unique login", func(t *testing.T) {
		err := database.CreateAccount(ctx, newAccount("Solntse", int64Ptr(1002)))
		assert.ErrorIs(t, err, models.ErrLoginTaken)
	})

	t.Run("unique external id", func(t *testing.T) {
		err := database.CreateAccount(ctx, newAccount("Other", int64Ptr(1001)))
		assert.ErrorIs(t, err, models.ErrAlreadyRegistered)
	})

	t.Run("many accounts without external id", func(t *testing.T) {
		end := time.Now().Add(90 * 24 * time.Hour)
		a := newAccount("Mayak", nil)
		a.SubscriptionEnd = &end
		require.NoError(t, database.CreateAccount(ctx, a))
		require.NoError(t, database.CreateAccount(ctx, newAccount("Mayak2", nil)))
	})

	t.Run("update subscription", func(t *testing.T) {
		end := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Microsecond)
		acc, err := database.UpdateSubscription(ctx, 1001, func(current *time.Time) *time.Time {
			assert.Nil(t, current)
			return &end
		})
		require.NoError(t, err)
		require.NotNil(t, acc.SubscriptionEnd)
		assert.True(t, end.Equal(*acc.SubscriptionEnd))

		acc, err = database.UpdateSubscription(ctx, 1001, func(current *time.Time) *time.Time {
			require.NotNil(t, current)
			assert.True(t, end.Equal(*current))
			return nil
		})
		require.NoError(t, err)
		assert.Nil(t, acc.SubscriptionEnd)

		stored, err := database.GetByExternalID(ctx, 1001)
		require.NoError(t, err)
		assert.Nil(t, stored.SubscriptionEnd)

		_, err = database.UpdateSubscription(ctx, 999999, func(current *time.Time) *time.Time { return current })
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("concurrent updates serialize", func(t *testing.T) {
		require.NoError(t, database.CreateAccount(ctx, newAccount("Concurrent", int64Ptr(2001))))
		base := time.Now().UTC().Truncate(time.Microsecond)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := database.UpdateSubscription(ctx, 2001, func(current *time.Time) *time.Time {
					anchor := base
					if current != nil {
						anchor = *current
					}
					next := anchor.Add(24 * time.Hour)
					return &next
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		acc, err := database.GetByExternalID(ctx, 2001)
		require.NoError(t, err)
		require.NotNil(t, acc.SubscriptionEnd)
		assert.True(t, base.Add(5*24*time.Hour).Equal(*acc.SubscriptionEnd))
	})

	t.Run("apply payment once", func(t *testing.T) {
		p := models.Payment{SessionID: "cs_test_1", ExternalUserID: 1001, Months: 1, CreatedAt: time.Now()}
		calls := 0
		extend := func(current *time.Time) *time.Time {
			calls++
			end := time.Now().Add(30 * 24 * time.Hour)
			return &end
		}

		acc, err := database.ApplyPayment(ctx, p, extend)
		require.NoError(t, err)
		assert.NotNil(t, acc.SubscriptionEnd)

		_, err = database.ApplyPayment(ctx, p, extend)
		assert.ErrorIs(t, err, models.ErrDuplicatePayment)
		assert.Equal(t, 1, calls)

		_, err = database.ApplyPayment(ctx, models.Payment{SessionID: "cs_test_2", ExternalUserID: 31337, Months: 1, CreatedAt: time.Now()}, extend)
		assert.ErrorIs(t, err, models.ErrNotFound)

		_, err = database.UpdateSubscription(ctx, 1001, func(*time.Time) *time.Time { return nil })
		require.NoError(t, err)
	})

	t.Run("stats and expiring", func(t *testing.T) {
		now := time.Now()
		soon := now.Add(48 * time.Hour)
		_, err := database.UpdateSubscription(ctx, 2001, func(*time.Time) *time.Time { return &soon })
		require.NoError(t, err)

		stats, err := database.Stats(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 4, stats.Total)
		assert.Equal(t, 2, stats.Active)
		assert.Equal(t, 2, stats.Unclaimed)

		expiring, err := database.ListExpiring(ctx, now, now.Add(72*time.Hour))
		require.NoError(t, err)
		require.Len(t, expiring, 1)
		assert.Equal(t, "Concurrent", expiring[0].Login)
	})
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx://u:p@h:5432/db", migrateURL("postgres://u:p@h:5432/db"))
	assert.Equal(t, "pgx://u:p@h:5432/db", migrateURL("postgresql://u:p@h:5432/db"))
	assert.Equal(t, "pgx://h/db", migrateURL("pgx://h/db"))
}
