package models

import (
	"time"
)

// Authentication method tags for an account
const (
	AuthMethodLocal     = "local"
	AuthMethodFederated = "federated"
)

type User struct {
	ID            string
	Name          string
	Username      string // unique, lowercase
	Email         string // unique, lowercase
	PasswordHash  string // empty for federated-only accounts
	AuthMethod    string // "local" or "federated"
	EmailVerified bool
	LoginAttempts int
	BlockExpires  *time.Time // lockout expiration, nil when not locked
	Age           int
	About         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasPassword reports whether the account carries a local credential.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsLocked reports whether the account is inside an active lockout window.
func (u *User) IsLocked(now time.Time) bool {
	return u.BlockExpires != nil && now.Before(*u.BlockExpires)
}

// PublicUser is the projection returned to clients after authentication.
type PublicUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Age      int    `json:"age"`
	About    string `json:"about,omitempty"`
}

// Public returns the client-facing projection of the user record.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Username: u.Username,
		Age:      u.Age,
		About:    u.About,
	}
}
