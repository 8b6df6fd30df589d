// AngelaMos | 2026
// service.go

package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/tg-sso/internal/config"
	"github.com/carterperez-dev/tg-sso/internal/core"
)

// ErrPending means the token exists and is live but no identity has been
// attached yet. Pollers treat it as "keep waiting", not as a failure.
var ErrPending = errors.New("token not yet authenticated")

// Service owns the exchange-token lifecycle. All methods take the
// plaintext token and hash it at this boundary; nothing below ever sees
// the plaintext.
type Service struct {
	repo          Repository
	tokenTTL      time.Duration
	usedRetention time.Duration
	now           func() time.Time
}

func NewService(repo Repository, cfg config.ExchangeConfig) *Service {
	return &Service{
		repo:          repo,
		tokenTTL:      cfg.TokenTTL,
		usedRetention: cfg.UsedRetention,
		now:           time.Now,
	}
}

// Begin creates a pending token and returns its plaintext exactly once.
// It also triggers the lazy cleanup of stale rows; cleanup failure never
// fails the login attempt.
func (s *Service) Begin(ctx context.Context) (string, *Token, error) {
	if purged, err := s.repo.PurgeStale(ctx, s.usedRetention); err != nil {
		slog.Warn("exchange token cleanup failed", "error", err)
	} else if purged > 0 {
		slog.Debug("purged stale exchange tokens", "count", purged)
	}

	plaintext, err := core.GenerateExchangeToken()
	if err != nil {
		return "", nil, fmt.Errorf("begin exchange: %w", err)
	}

	token := &Token{
		ID:        uuid.New().String(),
		TokenHash: core.HashToken(plaintext),
		Status:    StatusPending,
		ExpiresAt: s.now().Add(s.tokenTTL),
	}

	if err := s.repo.Create(ctx, token); err != nil {
		return "", nil, fmt.Errorf("begin exchange: %w", err)
	}

	return plaintext, token, nil
}

// AttachIdentity is the bot-side half of the handshake: it binds the
// authenticated Telegram profile to a live token.
func (s *Service) AttachIdentity(
	ctx context.Context,
	plaintext string,
	profile Profile,
) error {
	if profile.TelegramID == "" {
		return fmt.Errorf("attach identity: %w", core.ErrInvalidInput)
	}

	return s.repo.AttachIdentity(ctx, core.HashToken(plaintext), profile)
}

// Consume flips an authenticated token to consumed and returns its bound
// profile. At most one call ever succeeds per token; a pending token
// returns ErrPending without mutating anything.
func (s *Service) Consume(ctx context.Context, plaintext string) (*Token, error) {
	return s.repo.Consume(ctx, core.HashToken(plaintext))
}
