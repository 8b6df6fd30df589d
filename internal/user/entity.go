// AngelaMos | 2026
// entity.go

package user

import (
	"time"
)

// User is a site account. Email is nullable on purpose: the Telegram
// identity source never supplies one, and the schema must not require it.
type User struct {
	ID            string    `db:"id"`
	TelegramID    *string   `db:"telegram_id"`
	Email         *string   `db:"email"`
	Name          string    `db:"name"`
	AvatarURL     *string   `db:"avatar_url"`
	EmailVerified bool      `db:"email_verified"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
	LastLoginAt   time.Time `db:"last_login_at"`
}
