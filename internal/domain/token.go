package domain

import "time"

// SessionClaims represents the claims of a session (access) token
type SessionClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Exp    int64  `json:"exp"`
	Iat    int64  `json:"iat"`
}

// IsExpired checks if the token is expired
func (c SessionClaims) IsExpired() bool {
	return time.Now().Unix() > c.Exp
}
