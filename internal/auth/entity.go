// AngelaMos | 2026
// entity.go

package auth

import (
	"time"
)

// RefreshToken is one member of a rotation family. Rows form a chain via
// ReplacedByID; presenting a used member again means the chain leaked and
// the whole family gets revoked.
type RefreshToken struct {
	ID           string     `db:"id"`
	UserID       string     `db:"user_id"`
	TokenHash    string     `db:"token_hash"`
	FamilyID     string     `db:"family_id"`
	IsUsed       bool       `db:"is_used"`
	ExpiresAt    time.Time  `db:"expires_at"`
	CreatedAt    time.Time  `db:"created_at"`
	RevokedAt    *time.Time `db:"revoked_at"`
	ReplacedByID *string    `db:"replaced_by_id"`
}

func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

func (t *RefreshToken) IsValid() bool {
	return !t.IsUsed && !t.IsExpired() && !t.IsRevoked()
}
