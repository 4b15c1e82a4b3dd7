// Package domain holds the calendar account binding and its OAuth token.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CalendarAccount binds a user to an external calendar provider.
type CalendarAccount struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Provider       string
	NeedsReconnect bool
}

// Token is the OAuth credential triple for an account. Single-writer: only
// the gateway's refresh path updates it, serialized per user.
type Token struct {
	AccountID    uuid.UUID
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Expired reports whether the access token is unusable at the given instant,
// including the refresh skew before actual expiry.
func (t Token) Expired(now time.Time, skew time.Duration) bool {
	if t.AccessToken == "" {
		return true
	}
	if t.Expiry.IsZero() {
		return false
	}
	return !now.Add(skew).Before(t.Expiry)
}

// AccountRepository persists calendar accounts.
type AccountRepository interface {
	FindByUser(ctx context.Context, userID uuid.UUID, provider string) (*CalendarAccount, error)
	Save(ctx context.Context, account *CalendarAccount) error
}

// TokenRepository persists OAuth tokens.
type TokenRepository interface {
	FindByAccount(ctx context.Context, accountID uuid.UUID) (*Token, error)
	Save(ctx context.Context, token *Token) error
}
