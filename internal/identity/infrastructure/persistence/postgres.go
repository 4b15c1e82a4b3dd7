// Package persistence implements the identity repositories for postgres and
// sqlite.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diaguru/diaguru/internal/identity/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS calendar_accounts (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	provider TEXT NOT NULL,
	needs_reconnect BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (user_id, provider)
);

CREATE TABLE IF NOT EXISTS calendar_tokens (
	account_id UUID PRIMARY KEY REFERENCES calendar_accounts(id) ON DELETE CASCADE,
	access_token TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	expiry TIMESTAMPTZ
);
`

// EnsurePostgresSchema creates the identity tables when missing.
func EnsurePostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure identity schema: %w", err)
	}
	return nil
}

// PostgresAccountRepository persists calendar accounts in postgres.
type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAccountRepository creates the repository.
func NewPostgresAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

// FindByUser returns the user's account for a provider, nil when not linked.
func (r *PostgresAccountRepository) FindByUser(ctx context.Context, userID uuid.UUID, provider string) (*domain.CalendarAccount, error) {
	var account domain.CalendarAccount
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, provider, needs_reconnect
		FROM calendar_accounts WHERE user_id = $1 AND provider = $2`, userID, provider).
		Scan(&account.ID, &account.UserID, &account.Provider, &account.NeedsReconnect)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &account, nil
}

// Save upserts the account.
func (r *PostgresAccountRepository) Save(ctx context.Context, account *domain.CalendarAccount) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO calendar_accounts (id, user_id, provider, needs_reconnect)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET needs_reconnect = EXCLUDED.needs_reconnect`,
		account.ID, account.UserID, account.Provider, account.NeedsReconnect)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

// PostgresTokenRepository persists OAuth tokens in postgres.
type PostgresTokenRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTokenRepository creates the repository.
func NewPostgresTokenRepository(pool *pgxpool.Pool) *PostgresTokenRepository {
	return &PostgresTokenRepository{pool: pool}
}

// FindByAccount returns the account's token, nil when absent.
func (r *PostgresTokenRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) (*domain.Token, error) {
	var (
		token  domain.Token
		expiry *time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT account_id, access_token, refresh_token, expiry
		FROM calendar_tokens WHERE account_id = $1`, accountID).
		Scan(&token.AccountID, &token.AccessToken, &token.RefreshToken, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}
	if expiry != nil {
		token.Expiry = *expiry
	}
	return &token, nil
}

// Save upserts the token.
func (r *PostgresTokenRepository) Save(ctx context.Context, token *domain.Token) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO calendar_tokens (account_id, access_token, refresh_token, expiry)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expiry = EXCLUDED.expiry`,
		token.AccountID, token.AccessToken, token.RefreshToken, token.Expiry)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}
