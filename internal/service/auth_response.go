package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/stagepass/identity-service/internal/autherr"
	"github.com/stagepass/identity-service/internal/domain"
	"github.com/stagepass/identity-service/internal/dto"
	"github.com/stagepass/identity-service/internal/repository"
	"github.com/stagepass/identity-service/internal/utils"
)

// AuthResponseWithRefreshToken contains auth response and refresh token
type AuthResponseWithRefreshToken struct {
	AuthResponse *dto.AuthResponse
	RefreshToken string
	ExpiresIn    int // Refresh token expiry in seconds
}

// generateAuthResponseWithRefreshToken generates access and refresh tokens,
// persists the refresh token hash and returns the auth response. Shared by
// the credential and OAuth sign-in paths.
func generateAuthResponseWithRefreshToken(
	ctx context.Context,
	jwtManager *utils.JWTManager,
	tokenRepo repository.TokenRepository,
	refreshTokenExpiry time.Duration,
	user *domain.User,
) (*AuthResponseWithRefreshToken, error) {
	accessToken, err := jwtManager.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, autherr.System("failed to generate access token", err)
	}

	refreshToken, err := jwtManager.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, autherr.System("failed to generate refresh token", err)
	}

	refreshTokenEntity := &domain.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(refreshToken),
		ExpiresAt: time.Now().Add(refreshTokenExpiry),
	}

	if err := tokenRepo.Create(ctx, refreshTokenEntity); err != nil {
		return nil, autherr.System("failed to save refresh token", err)
	}

	return &AuthResponseWithRefreshToken{
		AuthResponse: &dto.AuthResponse{
			AccessToken: accessToken,
			TokenType:   "Bearer",
			ExpiresIn:   jwtManager.GetAccessTokenExpiry(),
			User: dto.UserInfo{
				ID:    user.ID,
				Email: user.Email,
				Role:  string(user.Role),
			},
		},
		RefreshToken: refreshToken,
		ExpiresIn:    int(refreshTokenExpiry.Seconds()),
	}, nil
}

// hashToken hashes a token using SHA256 for storage lookups
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
