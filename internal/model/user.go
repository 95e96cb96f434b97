package model

import (
	"strings"
	"time"
)

// User is a registered account. A user authenticates with a password,
// an external OAuth identity, or both once linked.
type User struct {
	ID               string     `json:"id"` // uuid
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"password_hash,omitempty"`
	OAuthID          string     `json:"oauth_id,omitempty"`
	ResetTokenHash   string     `json:"reset_token_hash,omitempty"`
	ResetTokenExpiry *time.Time `json:"reset_token_expiry,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// HasPassword reports whether the user can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// HasValidResetToken reports whether hash matches the stored reset token
// and the token has not expired at now.
func (u *User) HasValidResetToken(hash string, now time.Time) bool {
	if u.ResetTokenHash == "" || u.ResetTokenExpiry == nil {
		return false
	}
	return u.ResetTokenHash == hash && now.Before(*u.ResetTokenExpiry)
}

// ClearResetToken removes any outstanding reset token.
func (u *User) ClearResetToken() {
	u.ResetTokenHash = ""
	u.ResetTokenExpiry = nil
}

// ToUserData converts a user object to a user data object for sharing.
func (u *User) ToUserData() *UserData {
	return &UserData{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// UserData holds the user fields that are shared with clients.
type UserData struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NormalizeEmail lowercases and trims an email address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// OAuthProfile is the identity returned by an external OAuth provider.
type OAuthProfile struct {
	ID    string `mapstructure:"sub"`
	Email string `mapstructure:"email"`
	Name  string `mapstructure:"name"`
}
