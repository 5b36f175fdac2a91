package storage

import (
	"time"

	"github.com/google/uuid"
)

// Link is the authoritative record behind a short code.
type Link struct {
	ID             int64      `json:"id"`
	ShortCode      string     `json:"short_code"`
	OriginalURL    string     `json:"original_url"`
	OwnerID        uuid.UUID  `json:"owner_id"`
	PasswordHash   *string    `json:"-"`
	Title          *string    `json:"title,omitempty"`
	Clicks         int64      `json:"clicks"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	IsActive       bool       `json:"is_active"`
	IsCustom       bool       `json:"is_custom"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

func (l *Link) Expired() bool {
	return l.ExpiresAt != nil && time.Now().After(*l.ExpiresAt)
}

func (l *Link) HasPassword() bool {
	return l.PasswordHash != nil && *l.PasswordHash != ""
}

// Resolvable reports whether a redirect may be served for this link.
// Password checks are separate: a protected link is still resolvable,
// it just needs the right password.
func (l *Link) Resolvable() bool {
	return l.IsActive && !l.Expired()
}

// User is the owner record referenced by links. Identity itself lives in the
// external provider; this row only tracks quota state.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Plan         string    `json:"plan"`
	LinksCreated int       `json:"links_created"`
	LinksLimit   int       `json:"links_limit"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) CanCreateLink() bool {
	return u.LinksCreated < u.LinksLimit
}
