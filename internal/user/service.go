// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carterperez-dev/tg-sso/internal/core"
)

// Profile is the identity delivered by the Telegram side; only
// TelegramID is guaranteed to be present.
type Profile struct {
	TelegramID string
	Username   string
	FirstName  string
	LastName   string
	PhotoURL   string
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ResolveOrCreate finds the account owning this telegram_id or creates
// one on first login. Calling it twice for the same external id never
// produces two rows and always preserves the internal id; email is left
// untouched and email_verified defaults true (the identity source cannot
// supply an email, so there is nothing to verify).
func (s *Service) ResolveOrCreate(
	ctx context.Context,
	profile Profile,
) (*User, error) {
	if profile.TelegramID == "" {
		return nil, fmt.Errorf("resolve user: %w", core.ErrInvalidInput)
	}

	telegramID := profile.TelegramID
	candidate := &User{
		ID:            uuid.New().String(),
		TelegramID:    &telegramID,
		Name:          DisplayName(profile),
		AvatarURL:     optional(profile.PhotoURL),
		EmailVerified: true,
	}

	resolved, err := s.repo.Upsert(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	return resolved, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// DisplayName assembles a human-readable name: first+last, falling back
// to the username, falling back to "User <telegram_id>".
func DisplayName(p Profile) string {
	parts := make([]string, 0, 2)
	if p.FirstName != "" {
		parts = append(parts, p.FirstName)
	}
	if p.LastName != "" {
		parts = append(parts, p.LastName)
	}

	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}

	if p.Username != "" {
		return p.Username
	}

	return "User " + p.TelegramID
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
