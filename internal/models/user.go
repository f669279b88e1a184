package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Identity providers an Account row can point at.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
	ProviderWiki     = "wiki"
)

// PlaceholderEmailDomain is used when a provider cannot supply a reliable
// email address (the wiki provider). Placeholder addresses never participate
// in account-linking email matches.
const PlaceholderEmailDomain = "placeholder.invalid"

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID            string    `bun:"id,pk" json:"id"`
	Email         string    `bun:"email,unique,notnull" json:"email"`
	EmailVerified bool      `bun:"email_verified,notnull" json:"email_verified"`
	FullName      string    `bun:"full_name,notnull" json:"full_name"`
	PasswordHash  string    `bun:"password_hash,nullzero" json:"-"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Account links one provider identity to a user. A user may hold several
// (e.g. password plus google plus wiki).
type Account struct {
	bun.BaseModel `bun:"table:accounts"`

	ID                string    `bun:"id,pk" json:"id"`
	UserID            string    `bun:"user_id,notnull" json:"user_id"`
	Provider          string    `bun:"provider,notnull" json:"provider"`
	ProviderAccountID string    `bun:"provider_account_id,notnull" json:"provider_account_id"`
	CreatedAt         time.Time `bun:"created_at,notnull" json:"created_at"`

	User *User `bun:"rel:belongs-to,join:user_id=id" json:"-"`
}

type Session struct {
	bun.BaseModel `bun:"table:sessions"`

	ID        string     `bun:"id,pk" json:"id"`
	UserID    string     `bun:"user_id,notnull" json:"user_id"`
	UserAgent string     `bun:"user_agent,nullzero" json:"user_agent,omitempty"`
	ExpiresAt time.Time  `bun:"expires_at,notnull" json:"expires_at"`
	RevokedAt *time.Time `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
	CreatedAt time.Time  `bun:"created_at,notnull" json:"created_at"`

	User *User `bun:"rel:belongs-to,join:user_id=id" json:"-"`
}

// Active reports whether the session can still authenticate requests.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
