package service

import (
	"context"
	"time"

	"github.com/stagepass/identity-service/internal/domain"
	"github.com/stagepass/identity-service/internal/dto"
	"github.com/stagepass/identity-service/internal/oauth"
)

// AuthService defines methods for authentication and account lifecycle
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.UserResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*AuthResponseWithRefreshToken, error)
	VerifyEmail(ctx context.Context, email, code string) (*AuthResponseWithRefreshToken, error)
	ResendVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponseWithRefreshToken, error)
	Logout(ctx context.Context, userID, refreshToken string) error
	GetUser(ctx context.Context, userID string) (*dto.UserResponse, error)
	UpdateUserRole(ctx context.Context, userID string, role domain.Role) error
	DeleteUser(ctx context.Context, userID string) error
	ValidateToken(ctx context.Context, token string) (*domain.SessionClaims, error)
}

// OAuthService resolves external provider identities into accounts
type OAuthService interface {
	AuthCodeURL(provider, state string) (string, error)
	HandleCallback(ctx context.Context, provider, code string) (*AuthResponseWithRefreshToken, error)
	Resolve(ctx context.Context, profile *oauth.Profile) (*domain.User, error)
}

// TokenBlacklist is the revocation check for issued tokens
type TokenBlacklist interface {
	AddToken(ctx context.Context, token string, expiry time.Duration) error
	IsTokenBlacklisted(ctx context.Context, token string) (bool, error)
}

// Mailer dispatches one-time codes. Transport is an external collaborator;
// a failure surfaces as NotificationFailed but never rolls back a persisted
// code.
type Mailer interface {
	SendVerificationCode(ctx context.Context, email, code string) error
	SendPasswordResetCode(ctx context.Context, email, code string) error
}
