package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"carwash-bot/internal/config"
	"carwash-bot/internal/models"
)

const (
	uniqueViolation = "23505"

	loginConstraint      = "accounts_login_key"
	externalIDConstraint = "accounts_external_user_id_key"
)

const accountColumns = `id, external_user_id, login, password, business_name, owner_name, subscription_end, created_at`

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(cfg config.DBConfig) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB connection string: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnLifetime
	}
	poolConfig.MaxConnIdleTime = 15 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *PostgresDB) CreateAccount(ctx context.Context, acc *models.Account) error {
	query := `
        INSERT INTO accounts (external_user_id, login, password, business_name, owner_name, subscription_end, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `

	err := db.pool.QueryRow(ctx, query,
		acc.ExternalUserID, acc.Login, acc.Password,
		acc.BusinessName, acc.OwnerName, acc.SubscriptionEnd, acc.CreatedAt,
	).Scan(&acc.ID)

	return mapError(err)
}

func (db *PostgresDB) GetByExternalID(ctx context.Context, externalID int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE external_user_id = $1`
	return scanAccount(db.pool.QueryRow(ctx, query, externalID))
}

func (db *PostgresDB) GetByLogin(ctx context.Context, login string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE login = $1`
	return scanAccount(db.pool.QueryRow(ctx, query, login))
}

func (db *PostgresDB) UpdateSubscription(ctx context.Context, externalID int64, fn func(current *time.Time) *time.Time) (*models.Account, error) {
	var acc *models.Account
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		acc, err = updateSubscription(ctx, tx, externalID, fn)
		return err
	})
	return acc, err
}

// ApplyPayment records p and updates the payer's subscription in one transaction.
// A payment seen before yields models.ErrDuplicatePayment and changes nothing.
func (db *PostgresDB) ApplyPayment(ctx context.Context, p models.Payment, fn func(current *time.Time) *time.Time) (*models.Account, error) {
	var acc *models.Account
	err := db.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            INSERT INTO payments (session_id, external_user_id, months, created_at)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (session_id) DO NOTHING
        `, p.SessionID, p.ExternalUserID, p.Months, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("record payment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return models.ErrDuplicatePayment
		}
		acc, err = updateSubscription(ctx, tx, p.ExternalUserID, fn)
		return err
	})
	return acc, err
}

func (db *PostgresDB) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func updateSubscription(ctx context.Context, tx pgx.Tx, externalID int64, fn func(current *time.Time) *time.Time) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE external_user_id = $1 FOR UPDATE`
	acc, err := scanAccount(tx.QueryRow(ctx, query, externalID))
	if err != nil {
		return nil, err
	}

	acc.SubscriptionEnd = fn(acc.SubscriptionEnd)
	if _, err := tx.Exec(ctx, `UPDATE accounts SET subscription_end = $2 WHERE id = $1`, acc.ID, acc.SubscriptionEnd); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	return acc, nil
}

func (db *PostgresDB) Stats(ctx context.Context, now time.Time) (models.Stats, error) {
	query := `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE subscription_end > $1),
               COUNT(*) FILTER (WHERE external_user_id IS NULL)
        FROM accounts
    `

	var s models.Stats
	if err := db.pool.QueryRow(ctx, query, now).Scan(&s.Total, &s.Active, &s.Unclaimed); err != nil {
		return models.Stats{}, fmt.Errorf("failed to count accounts: %w", err)
	}
	return s, nil
}

// ListExpiring returns chat-linked accounts whose subscription ends in (from, to].
func (db *PostgresDB) ListExpiring(ctx context.Context, from, to time.Time) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + `
        FROM accounts
        WHERE external_user_id IS NOT NULL
          AND subscription_end > $1 AND subscription_end <= $2
        ORDER BY id`

	rows, err := db.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring accounts: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *acc)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var acc models.Account
	err := row.Scan(
		&acc.ID, &acc.ExternalUserID, &acc.Login, &acc.Password,
		&acc.BusinessName, &acc.OwnerName, &acc.SubscriptionEnd, &acc.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &acc, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case loginConstraint:
			return models.ErrLoginTaken
		case externalIDConstraint:
			return models.ErrAlreadyRegistered
		}
	}
	return err
}
