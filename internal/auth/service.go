// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/carterperez-dev/tg-sso/internal/core"
	"github.com/carterperez-dev/tg-sso/internal/exchange"
	"github.com/carterperez-dev/tg-sso/internal/user"
)

// ExchangeService is the slice of the exchange-token lifecycle the
// broker needs.
type ExchangeService interface {
	Begin(ctx context.Context) (string, *exchange.Token, error)
	AttachIdentity(ctx context.Context, plaintext string, profile exchange.Profile) error
	Consume(ctx context.Context, plaintext string) (*exchange.Token, error)
}

// UserResolver maps a Telegram identity onto a site account.
type UserResolver interface {
	ResolveOrCreate(ctx context.Context, profile user.Profile) (*user.User, error)
}

// Service is the broker between the browser, the Telegram bot, and the
// session issuer. It owns no storage of its own; it sequences the
// exchange store, the user resolver, and the refresh-token repository.
type Service struct {
	exchanges   ExchangeService
	users       UserResolver
	jwtManager  *JWTManager
	tokens      Repository
	botUsername string
}

func NewService(
	exchanges ExchangeService,
	users UserResolver,
	jwtManager *JWTManager,
	tokens Repository,
	botUsername string,
) *Service {
	return &Service{
		exchanges:   exchanges,
		users:       users,
		jwtManager:  jwtManager,
		tokens:      tokens,
		botUsername: botUsername,
	}
}

// BeginLogin opens a login attempt: a fresh pending exchange token and
// the bot deep link that carries it. No user or session state is touched.
func (s *Service) BeginLogin(ctx context.Context) (*BeginLoginResponse, error) {
	plaintext, _, err := s.exchanges.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin login: %w", err)
	}

	return &BeginLoginResponse{
		Token:  plaintext,
		BotURL: fmt.Sprintf("https://t.me/%s?start=%s", s.botUsername, plaintext),
	}, nil
}

// IdentityCallback attaches a verified Telegram identity to a live
// exchange token. The caller (the bot) has already been authenticated by
// the handler's shared-secret check.
func (s *Service) IdentityCallback(
	ctx context.Context,
	req BotCallbackRequest,
) error {
	return s.exchanges.AttachIdentity(ctx, req.Token, exchange.Profile{
		TelegramID: req.TelegramID,
		Username:   req.Username,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		PhotoURL:   req.PhotoURL,
	})
}

// Exchange is the polling edge: a pending token reports pending without
// side effects; the first call after the bot callback consumes the token,
// resolves the user, and issues the session. Every later call fails
// terminally, so clients stop polling.
func (s *Service) Exchange(
	ctx context.Context,
	plaintext string,
) (*StatusResponse, error) {
	token, err := s.exchanges.Consume(ctx, plaintext)
	if errors.Is(err, exchange.ErrPending) {
		return &StatusResponse{Status: StatusPending}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}

	resolved, err := s.users.ResolveOrCreate(ctx, profileFromToken(token))
	if err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}

	session, err := s.issueSession(ctx, resolved.ID)
	if err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}

	return &StatusResponse{
		Status:       StatusAuthenticated,
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
		ExpiresIn:    session.ExpiresIn,
		User:         NewUserResponse(resolved),
	}, nil
}

// Refresh rotates a refresh token: the presented token is retired and a
// new pair is issued in the same family. A token that was already rotated
// out is treated as stolen and its whole family is revoked.
func (s *Service) Refresh(
	ctx context.Context,
	refreshPlaintext string,
) (*SessionResponse, error) {
	stored, err := s.tokens.FindByHash(ctx, core.HashToken(refreshPlaintext))
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	if stored.IsUsed {
		if revokeErr := s.tokens.RevokeByFamilyID(ctx, stored.FamilyID); revokeErr != nil {
			slog.Error("revoke token family failed",
				"family_id", stored.FamilyID,
				"error", revokeErr,
			)
		}
		slog.Warn("refresh token reuse detected, family revoked",
			"user_id", stored.UserID,
			"family_id", stored.FamilyID,
		)
		return nil, fmt.Errorf("refresh: %w", core.ErrTokenRevoked)
	}

	if stored.IsRevoked() {
		return nil, fmt.Errorf("refresh: %w", core.ErrTokenRevoked)
	}

	if stored.IsExpired() {
		return nil, fmt.Errorf("refresh: %w", core.ErrTokenExpired)
	}

	newData, err := s.jwtManager.CreateRefreshToken(stored.FamilyID)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	// Retire the presented token before creating its replacement. The
	// is_used guard in MarkAsUsed picks exactly one winner when the same
	// token is presented concurrently; the loser stops here and never
	// leaves an undelivered live row behind.
	newID := uuid.New().String()
	if err := s.tokens.MarkAsUsed(ctx, stored.ID, newID); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	newToken := &RefreshToken{
		ID:        newID,
		UserID:    stored.UserID,
		TokenHash: newData.Hash,
		FamilyID:  newData.FamilyID,
		ExpiresAt: newData.ExpiresAt,
	}
	if err := s.tokens.Create(ctx, newToken); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	accessToken, err := s.jwtManager.CreateAccessToken(stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	return &SessionResponse{
		AccessToken:  accessToken,
		RefreshToken: newData.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwtManager.AccessTokenTTL().Seconds()),
	}, nil
}

// Logout revokes the presented refresh token. Unknown, expired, and
// already-revoked tokens all succeed; logout never fails the client for
// state it no longer holds.
func (s *Service) Logout(ctx context.Context, refreshPlaintext string) error {
	if refreshPlaintext == "" {
		return nil
	}

	stored, err := s.tokens.FindByHash(ctx, core.HashToken(refreshPlaintext))
	if err != nil {
		if errors.Is(err, core.ErrTokenInvalid) {
			return nil
		}
		return fmt.Errorf("logout: %w", err)
	}

	if err := s.tokens.RevokeByID(ctx, stored.ID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	return nil
}

// issueSession mints the access/refresh pair for a freshly consumed
// exchange. Expired refresh rows are purged opportunistically; purge
// failure never fails the login.
func (s *Service) issueSession(
	ctx context.Context,
	userID string,
) (*SessionResponse, error) {
	if purged, err := s.tokens.DeleteExpired(ctx); err != nil {
		slog.Warn("refresh token cleanup failed", "error", err)
	} else if purged > 0 {
		slog.Debug("purged expired refresh tokens", "count", purged)
	}

	accessToken, err := s.jwtManager.CreateAccessToken(userID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	refreshData, err := s.jwtManager.CreateRefreshToken("")
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	refreshToken := &RefreshToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		TokenHash: refreshData.Hash,
		FamilyID:  refreshData.FamilyID,
		ExpiresAt: refreshData.ExpiresAt,
	}
	if err := s.tokens.Create(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	return &SessionResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshData.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwtManager.AccessTokenTTL().Seconds()),
	}, nil
}

func profileFromToken(t *exchange.Token) user.Profile {
	p := user.Profile{}
	if t.TelegramID != nil {
		p.TelegramID = *t.TelegramID
	}
	if t.Username != nil {
		p.Username = *t.Username
	}
	if t.FirstName != nil {
		p.FirstName = *t.FirstName
	}
	if t.LastName != nil {
		p.LastName = *t.LastName
	}
	if t.PhotoURL != nil {
		p.PhotoURL = *t.PhotoURL
	}
	return p
}
