package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered dashboard user, identified by phone number.
type User struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Phone     string    `db:"phone"      json:"phone"`
	Interests []string  `db:"interests"  json:"interests"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// APIToken authenticates a user's browser session.
// Raw tokens are shown once at issue time; only the bcrypt hash is stored.
type APIToken struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	UserID      uuid.UUID  `db:"user_id"      json:"user_id"`
	TokenHash   string     `db:"token_hash"   json:"-"`
	TokenPrefix string     `db:"token_prefix" json:"token_prefix"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	RevokedAt   *time.Time `db:"revoked_at"   json:"-"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
}
