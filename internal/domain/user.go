package domain

import "time"

// Role is the authorization level of a user.
type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleSuperuser Role = "superuser"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperuser:
		return true
	}
	return false
}

// IsAdmin reports whether the role grants access to the admin surface.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperuser
}

// User represents a user account. PasswordHash is empty for OAuth-only
// accounts. Code hashes and their expiries are always set or cleared
// together; LastCodeRequestAt gates the cooldown for both code flows.
type User struct {
	ID              string `json:"id" db:"id"`
	Email           string `json:"email" db:"email"`
	PasswordHash    string `json:"-" db:"password_hash"`
	Role            Role   `json:"role" db:"role"`
	IsEmailVerified bool   `json:"is_email_verified" db:"is_email_verified"`

	VerificationCodeHash      string     `json:"-" db:"verification_code_hash"`
	VerificationCodeExpiresAt *time.Time `json:"-" db:"verification_code_expires_at"`
	ResetCodeHash             string     `json:"-" db:"reset_code_hash"`
	ResetCodeExpiresAt        *time.Time `json:"-" db:"reset_code_expires_at"`
	LastCodeRequestAt         *time.Time `json:"-" db:"last_code_request_at"`

	LastLoginAt *time.Time `json:"last_login_at" db:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`

	OAuthLinks []*OAuthLink `json:"oauth_links,omitempty" db:"-"`
}

// HasPassword reports whether the account can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// OAuthLink connects a user account to an external provider identity.
// Provider tokens are write-only and never re-serialized to callers.
type OAuthLink struct {
	ID             string     `json:"id" db:"id"`
	UserID         string     `json:"user_id" db:"user_id"`
	Provider       string     `json:"provider" db:"provider"`
	ProviderUserID string     `json:"provider_user_id" db:"provider_user_id"`
	Email          *string    `json:"email" db:"email"`
	AccessToken    string     `json:"-" db:"access_token"`
	RefreshToken   string     `json:"-" db:"refresh_token"`
	TokenExpiresAt *time.Time `json:"-" db:"token_expires_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// RefreshToken represents a persisted refresh token in the system
type RefreshToken struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	TokenHash string    `json:"-" db:"token_hash"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
