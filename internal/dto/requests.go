package dto

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email" validate:"required,email"`
	Password string `json:"password" binding:"required,min=6" validate:"required,min=6"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" validate:"required,email"`
	Password string `json:"password" binding:"required" validate:"required"`
}

// VerifyEmailRequest carries a one-time email verification code
type VerifyEmailRequest struct {
	Email string `json:"email" binding:"required,email" validate:"required,email"`
	Code  string `json:"code" binding:"required" validate:"required"`
}

// ResendVerificationRequest requests a fresh verification code
type ResendVerificationRequest struct {
	Email string `json:"email" binding:"required,email" validate:"required,email"`
}

// ForgotPasswordRequest requests a password reset code
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email" validate:"required,email"`
}

// ResetPasswordRequest consumes a reset code and sets a new password
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email" validate:"required,email"`
	Code        string `json:"code" binding:"required" validate:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6" validate:"required,min=6"`
}

// ChangePasswordRequest changes the password of an authenticated user
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required" validate:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6" validate:"required,min=6"`
}

// UpdateRoleRequest changes a user's role (admin surface only)
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required" validate:"required"`
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int      `json:"expires_in"`
	User        UserInfo `json:"user"`
}

// UserInfo represents user information in response
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UserResponse represents a user response
type UserResponse struct {
	ID              string   `json:"id"`
	Email           string   `json:"email"`
	Role            string   `json:"role"`
	IsEmailVerified bool     `json:"is_email_verified"`
	OAuthProviders  []string `json:"oauth_providers"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
	LastLoginAt     *string  `json:"last_login_at"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the closed error payload: a stable machine-readable code
// plus a human-readable message. RetryAfter is set only for cooldown errors.
type ErrorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}
