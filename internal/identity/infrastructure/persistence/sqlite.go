package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/diaguru/diaguru/internal/identity/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS calendar_accounts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	needs_reconnect INTEGER NOT NULL DEFAULT 0,
	UNIQUE (user_id, provider)
);

CREATE TABLE IF NOT EXISTS calendar_tokens (
	account_id TEXT PRIMARY KEY REFERENCES calendar_accounts(id) ON DELETE CASCADE,
	access_token TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	expiry TEXT
);
`

// EnsureSqliteSchema creates the identity tables when missing.
func EnsureSqliteSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("ensure identity schema: %w", err)
	}
	return nil
}

// SqliteAccountRepository persists calendar accounts in the embedded store.
type SqliteAccountRepository struct {
	db *sql.DB
}

// NewSqliteAccountRepository creates the repository.
func NewSqliteAccountRepository(db *sql.DB) *SqliteAccountRepository {
	return &SqliteAccountRepository{db: db}
}

// FindByUser returns the user's account for a provider, nil when not linked.
func (r *SqliteAccountRepository) FindByUser(ctx context.Context, userID uuid.UUID, provider string) (*domain.CalendarAccount, error) {
	var idStr, userStr string
	account := domain.CalendarAccount{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, needs_reconnect
		FROM calendar_accounts WHERE user_id = ? AND provider = ?`, userID.String(), provider).
		Scan(&idStr, &userStr, &account.Provider, &account.NeedsReconnect)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("account id: %w", err)
	}
	if account.UserID, err = uuid.Parse(userStr); err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return &account, nil
}

// Save upserts the account.
func (r *SqliteAccountRepository) Save(ctx context.Context, account *domain.CalendarAccount) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calendar_accounts (id, user_id, provider, needs_reconnect)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET needs_reconnect = excluded.needs_reconnect`,
		account.ID.String(), account.UserID.String(), account.Provider, account.NeedsReconnect)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

// SqliteTokenRepository persists OAuth tokens in the embedded store.
type SqliteTokenRepository struct {
	db *sql.DB
}

// NewSqliteTokenRepository creates the repository.
func NewSqliteTokenRepository(db *sql.DB) *SqliteTokenRepository {
	return &SqliteTokenRepository{db: db}
}

// FindByAccount returns the account's token, nil when absent.
func (r *SqliteTokenRepository) FindByAccount(ctx context.Context, accountID uuid.UUID) (*domain.Token, error) {
	var (
		token  domain.Token
		idStr  string
		expiry sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT account_id, access_token, refresh_token, expiry
		FROM calendar_tokens WHERE account_id = ?`, accountID.String()).
		Scan(&idStr, &token.AccessToken, &token.RefreshToken, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find token: %w", err)
	}
	if token.AccountID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("account id: %w", err)
	}
	if expiry.Valid && expiry.String != "" {
		t, err := time.Parse(time.RFC3339Nano, expiry.String)
		if err != nil {
			return nil, fmt.Errorf("expiry: %w", err)
		}
		token.Expiry = t
	}
	return &token, nil
}

// Save upserts the token.
func (r *SqliteTokenRepository) Save(ctx context.Context, token *domain.Token) error {
	var expiry any
	if !token.Expiry.IsZero() {
		expiry = token.Expiry.UTC().Format(time.RFC3339Nano)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calendar_tokens (account_id, access_token, refresh_token, expiry)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expiry = excluded.expiry`,
		token.AccountID.String(), token.AccessToken, token.RefreshToken, expiry)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}
