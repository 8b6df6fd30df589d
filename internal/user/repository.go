// AngelaMos | 2026
// repository.go

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/carterperez-dev/tg-sso/internal/core"
)

type Repository interface {
	Upsert(ctx context.Context, user *User) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByTelegramID(ctx context.Context, telegramID string) (*User, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

// Upsert is the find-or-create keyed on telegram_id. The unique index on
// telegram_id makes it race-safe: two concurrent exchanges for the same
// identity both land on the same row, and the RETURNING clause hands back
// the surviving internal id either way. On conflict, profile fields only
// move forward (COALESCE keeps old values when the bot sent nothing) and
// last_login_at is bumped; email is never touched by this path.
func (r *repository) Upsert(ctx context.Context, user *User) (*User, error) {
	query := `
		INSERT INTO users (
			id, telegram_id, name, avatar_url, email_verified, last_login_at
		) VALUES (
			$1, $2, $3, $4, $5, NOW()
		)
		ON CONFLICT (telegram_id) DO UPDATE
		SET name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
		    avatar_url = COALESCE(EXCLUDED.avatar_url, users.avatar_url),
		    last_login_at = NOW(),
		    updated_at = NOW()
		RETURNING id, telegram_id, email, name, avatar_url, email_verified,
		          created_at, updated_at, last_login_at`

	var resolved User
	err := r.db.GetContext(ctx, &resolved, query,
		user.ID,
		user.TelegramID,
		user.Name,
		user.AvatarURL,
		user.EmailVerified,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	return &resolved, nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, telegram_id, email, name, avatar_url, email_verified,
		       created_at, updated_at, last_login_at
		FROM users
		WHERE id = $1`

	var user User
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &user, nil
}

func (r *repository) GetByTelegramID(
	ctx context.Context,
	telegramID string,
) (*User, error) {
	query := `
		SELECT id, telegram_id, email, name, avatar_url, email_verified,
		       created_at, updated_at, last_login_at
		FROM users
		WHERE telegram_id = $1`

	var user User
	err := r.db.GetContext(ctx, &user, query, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get user by telegram id: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by telegram id: %w", err)
	}

	return &user, nil
}
