// AngelaMos | 2026
// entity.go

package exchange

import (
	"time"
)

// Status is the lifecycle of a login attempt as observed through its
// exchange token. Transitions only move forward:
// pending -> authenticated -> consumed. Expiry is not a stored status;
// it is evaluated lazily against ExpiresAt at read time.
type Status string

const (
	StatusPending       Status = "pending"
	StatusAuthenticated Status = "authenticated"
	StatusConsumed      Status = "consumed"
)

// Token is one exchange token row. The plaintext identifier is never
// stored; TokenHash is its SHA-256 hex digest.
type Token struct {
	ID         string     `db:"id"`
	TokenHash  string     `db:"token_hash"`
	Status     Status     `db:"status"`
	TelegramID *string    `db:"telegram_id"`
	Username   *string    `db:"telegram_username"`
	FirstName  *string    `db:"telegram_first_name"`
	LastName   *string    `db:"telegram_last_name"`
	PhotoURL   *string    `db:"telegram_photo_url"`
	CreatedAt  time.Time  `db:"created_at"`
	ExpiresAt  time.Time  `db:"expires_at"`
	Used       bool       `db:"used"`
	ConsumedAt *time.Time `db:"consumed_at"`
}

func (t *Token) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Profile carries the Telegram identity fields delivered by the bot.
// TelegramID is required; the rest may be empty.
type Profile struct {
	TelegramID string
	Username   string
	FirstName  string
	LastName   string
	PhotoURL   string
}

func (p Profile) telegramID() *string {
	id := p.TelegramID
	return &id
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
