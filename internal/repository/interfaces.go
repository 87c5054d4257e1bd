package repository

import (
	"context"
	"time"

	"github.com/stagepass/identity-service/internal/domain"
)

// UserRepository defines methods for user account operations
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByOAuthIdentity(ctx context.Context, provider, providerUserID string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateRole(ctx context.Context, userID string, role domain.Role) error
	UpdateLastLogin(ctx context.Context, userID string) error
	Delete(ctx context.Context, userID string) error

	// ClaimCode atomically stores a code hash and expiry for the given flow
	// and advances the shared last-request timestamp, but only if no code
	// request happened after cutoff. Returns ErrCooldownActive when the
	// claim loses. This single conditional update is the authoritative
	// cooldown guard; any prior in-memory check is an optimization.
	ClaimCode(ctx context.Context, userID string, flow domain.FlowKind, codeHash string, expiresAt, cutoff time.Time) error

	// ClearVerificationCode clears the verification code fields and
	// optionally marks the email verified, but only if a code is on record.
	// Returns ErrNoActiveCode otherwise, making consumption exactly-once.
	ClearVerificationCode(ctx context.Context, userID string, markVerified bool) error

	// ClearResetCode clears the reset code fields if a code is on record.
	ClearResetCode(ctx context.Context, userID string) error
}

// TokenRepository defines methods for refresh token operations
type TokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	GetByUserID(ctx context.Context, userID string) ([]*domain.RefreshToken, error)
	Delete(ctx context.Context, tokenID string) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context) error
}

// OAuthLinkRepository defines methods for OAuth link operations
type OAuthLinkRepository interface {
	Create(ctx context.Context, link *domain.OAuthLink) error
	GetByProviderIdentity(ctx context.Context, provider, providerUserID string) (*domain.OAuthLink, error)
	GetByUserID(ctx context.Context, userID string) ([]*domain.OAuthLink, error)
	UpdateTokens(ctx context.Context, linkID, accessToken, refreshToken string, tokenExpiresAt *time.Time) error
	Delete(ctx context.Context, linkID string) error
}
