// Package oauth manages provider tokens: loading, refresh, and the
// needs_reconnect lifecycle.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	identityDomain "github.com/diaguru/diaguru/internal/identity/domain"
	schedulingDomain "github.com/diaguru/diaguru/internal/scheduling/domain"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// RefreshSkew refreshes tokens this close to expiry instead of risking a
// mid-request 401.
const RefreshSkew = 30 * time.Second

var ErrAccountNotFound = errors.New("calendar account not found")

// Service ensures a usable access token per user and is the sole writer of
// the token record.
type Service struct {
	accounts identityDomain.AccountRepository
	tokens   identityDomain.TokenRepository
	cfg      *oauth2.Config
	provider string
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates the token service for Google Calendar.
func NewService(
	accounts identityDomain.AccountRepository,
	tokens identityDomain.TokenRepository,
	clientID, clientSecret string,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"https://www.googleapis.com/auth/calendar.events"},
		},
		provider: "google",
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithTokenURL points the refresh flow at a custom token endpoint, for tests.
func (s *Service) WithTokenURL(url string) *Service {
	s.cfg.Endpoint = oauth2.Endpoint{AuthURL: s.cfg.Endpoint.AuthURL, TokenURL: url}
	return s
}

// AccessToken returns a valid access token for the user, refreshing if the
// token is missing, expired, within the skew of expiry, or the account is
// flagged for reconnect. A refused refresh flips needs_reconnect and surfaces
// not_linked.
func (s *Service) AccessToken(ctx context.Context, userID uuid.UUID) (string, error) {
	account, err := s.accounts.FindByUser(ctx, userID, s.provider)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", schedulingDomain.ErrNotLinked
	}

	token, err := s.tokens.FindByAccount(ctx, account.ID)
	if err != nil {
		return "", err
	}
	if token == nil {
		return "", s.failReconnect(ctx, account, errors.New("no stored token"))
	}

	if !account.NeedsReconnect && !token.Expired(s.now(), RefreshSkew) {
		return token.AccessToken, nil
	}
	return s.refresh(ctx, account, token)
}

// ForceRefresh refreshes regardless of expiry. Used for the single retry
// after an in-flight 401.
func (s *Service) ForceRefresh(ctx context.Context, userID uuid.UUID) (string, error) {
	account, err := s.accounts.FindByUser(ctx, userID, s.provider)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", schedulingDomain.ErrNotLinked
	}
	token, err := s.tokens.FindByAccount(ctx, account.ID)
	if err != nil {
		return "", err
	}
	if token == nil {
		return "", s.failReconnect(ctx, account, errors.New("no stored token"))
	}
	return s.refresh(ctx, account, token)
}

// MarkReconnect flags the account after a persistent provider 401/403.
func (s *Service) MarkReconnect(ctx context.Context, userID uuid.UUID) error {
	account, err := s.accounts.FindByUser(ctx, userID, s.provider)
	if err != nil || account == nil {
		return err
	}
	account.NeedsReconnect = true
	return s.accounts.Save(ctx, account)
}

func (s *Service) refresh(ctx context.Context, account *identityDomain.CalendarAccount, token *identityDomain.Token) (string, error) {
	if token.RefreshToken == "" {
		return "", s.failReconnect(ctx, account, errors.New("no refresh token"))
	}

	src := s.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken})
	fresh, err := src.Token()
	if err != nil {
		return "", s.failReconnect(ctx, account, err)
	}

	token.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		token.RefreshToken = fresh.RefreshToken
	}
	token.Expiry = fresh.Expiry
	if err := s.tokens.Save(ctx, token); err != nil {
		return "", err
	}

	if account.NeedsReconnect {
		account.NeedsReconnect = false
		if err := s.accounts.Save(ctx, account); err != nil {
			return "", err
		}
	}

	s.logger.Debug("oauth token refreshed", "user_id", account.UserID, "expires_at", token.Expiry)
	return token.AccessToken, nil
}

func (s *Service) failReconnect(ctx context.Context, account *identityDomain.CalendarAccount, cause error) error {
	account.NeedsReconnect = true
	if err := s.accounts.Save(ctx, account); err != nil {
		s.logger.Error("failed to flag account for reconnect", "account_id", account.ID, "error", err)
	}
	s.logger.Warn("oauth refresh failed", "account_id", account.ID, "error", cause)
	return fmt.Errorf("%w: %v", schedulingDomain.ErrNotLinked, cause)
}
