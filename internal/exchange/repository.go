// AngelaMos | 2026
// repository.go

package exchange

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carterperez-dev/tg-sso/internal/core"
)

type Repository interface {
	Create(ctx context.Context, token *Token) error
	GetByHash(ctx context.Context, tokenHash string) (*Token, error)
	AttachIdentity(ctx context.Context, tokenHash string, profile Profile) error
	Consume(ctx context.Context, tokenHash string) (*Token, error)
	PurgeStale(ctx context.Context, usedRetention time.Duration) (int64, error)
	CountByStatus(ctx context.Context) (map[Status]int64, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, token *Token) error {
	query := `
		INSERT INTO exchange_tokens (id, token_hash, status, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := r.db.GetContext(ctx, &token.CreatedAt, query,
		token.ID,
		token.TokenHash,
		token.Status,
		token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create exchange token: %w", err)
	}

	return nil
}

func (r *repository) GetByHash(
	ctx context.Context,
	tokenHash string,
) (*Token, error) {
	query := `
		SELECT id, token_hash, status, telegram_id, telegram_username,
		       telegram_first_name, telegram_last_name, telegram_photo_url,
		       created_at, expires_at, used, consumed_at
		FROM exchange_tokens
		WHERE token_hash = $1`

	var token Token
	err := r.db.GetContext(ctx, &token, query, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find exchange token: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find exchange token: %w", err)
	}

	return &token, nil
}

// AttachIdentity binds the Telegram identity to a live token and moves it
// to authenticated. The guard and the write are a single statement, so an
// expired or consumed token can never be re-armed. A second callback for
// a still-live token overwrites the profile.
func (r *repository) AttachIdentity(
	ctx context.Context,
	tokenHash string,
	profile Profile,
) error {
	query := `
		UPDATE exchange_tokens
		SET telegram_id = $2,
		    telegram_username = $3,
		    telegram_first_name = $4,
		    telegram_last_name = $5,
		    telegram_photo_url = $6,
		    status = $7
		WHERE token_hash = $1 AND used = FALSE AND expires_at > NOW()`

	result, err := r.db.ExecContext(ctx, query,
		tokenHash,
		profile.telegramID(),
		optional(profile.Username),
		optional(profile.FirstName),
		optional(profile.LastName),
		optional(profile.PhotoURL),
		StatusAuthenticated,
	)
	if err != nil {
		return fmt.Errorf("attach identity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach identity: %w", err)
	}

	if rows == 0 {
		return r.classifyFailure(ctx, tokenHash, "attach identity")
	}

	return nil
}

// Consume is the authenticated -> consumed edge. The status/used/expiry
// checks and the flag flip happen in one statement, so two concurrent
// consumers get exactly one winner; the loser is classified by a
// follow-up read that never mutates.
func (r *repository) Consume(
	ctx context.Context,
	tokenHash string,
) (*Token, error) {
	query := `
		UPDATE exchange_tokens
		SET status = $2, used = TRUE, consumed_at = NOW()
		WHERE token_hash = $1
		  AND status = $3
		  AND used = FALSE
		  AND expires_at > NOW()
		RETURNING id, token_hash, status, telegram_id, telegram_username,
		          telegram_first_name, telegram_last_name, telegram_photo_url,
		          created_at, expires_at, used, consumed_at`

	var token Token
	err := r.db.GetContext(ctx, &token, query,
		tokenHash,
		StatusConsumed,
		StatusAuthenticated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.classifyFailure(ctx, tokenHash, "consume")
	}
	if err != nil {
		return nil, fmt.Errorf("consume exchange token: %w", err)
	}

	return &token, nil
}

// classifyFailure explains why a guarded mutation matched no row.
// Order matters: expiry wins over stored status, so a token past its
// expiry instant is reported expired regardless of cleanup timing.
func (r *repository) classifyFailure(
	ctx context.Context,
	tokenHash, op string,
) error {
	token, err := r.GetByHash(ctx, tokenHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}

	switch {
	case token.IsExpired(time.Now()):
		return fmt.Errorf("%s: %w", op, core.ErrTokenExpired)
	case token.Used:
		return fmt.Errorf("%s: %w", op, core.ErrTokenUsed)
	case token.Status == StatusPending:
		return fmt.Errorf("%s: %w", op, ErrPending)
	default:
		return fmt.Errorf("%s: %w", op, core.ErrTokenInvalid)
	}
}

func (r *repository) CountByStatus(
	ctx context.Context,
) (map[Status]int64, error) {
	query := `
		SELECT status, COUNT(*) AS count
		FROM exchange_tokens
		GROUP BY status`

	var rows []struct {
		Status Status `db:"status"`
		Count  int64  `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count tokens: %w", err)
	}

	counts := make(map[Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}

	return counts, nil
}

// PurgeStale removes rows past expiry and consumed rows older than the
// retention window. Invoked opportunistically by callers; there is no
// background scheduler.
func (r *repository) PurgeStale(
	ctx context.Context,
	usedRetention time.Duration,
) (int64, error) {
	query := `
		DELETE FROM exchange_tokens
		WHERE expires_at < NOW()
		   OR (used = TRUE AND created_at < NOW() - $1::interval)`

	result, err := r.db.ExecContext(ctx, query, usedRetention.String())
	if err != nil {
		return 0, fmt.Errorf("purge stale tokens: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge stale tokens: %w", err)
	}

	return rows, nil
}
