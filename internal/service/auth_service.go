package service

import (
	"context"
	"errors"
	"time"

	"github.com/stagepass/identity-service/internal/autherr"
	"github.com/stagepass/identity-service/internal/domain"
	"github.com/stagepass/identity-service/internal/dto"
	"github.com/stagepass/identity-service/internal/repository"
	"github.com/stagepass/identity-service/internal/utils"
	"go.uber.org/zap"
)

// authService implements AuthService interface
type authService struct {
	userRepo           repository.UserRepository
	tokenRepo          repository.TokenRepository
	linkRepo           repository.OAuthLinkRepository
	jwtManager         *utils.JWTManager
	blacklist          TokenBlacklist
	flows              *CodeFlowService
	logger             *zap.Logger
	bcryptCost         int
	refreshTokenExpiry time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo repository.UserRepository,
	tokenRepo repository.TokenRepository,
	linkRepo repository.OAuthLinkRepository,
	jwtManager *utils.JWTManager,
	blacklist TokenBlacklist,
	flows *CodeFlowService,
	logger *zap.Logger,
	bcryptCost int,
	refreshTokenExpiry time.Duration,
) AuthService {
	return &authService{
		userRepo:           userRepo,
		tokenRepo:          tokenRepo,
		linkRepo:           linkRepo,
		jwtManager:         jwtManager,
		blacklist:          blacklist,
		flows:              flows,
		logger:             logger,
		bcryptCost:         bcryptCost,
		refreshTokenExpiry: refreshTokenExpiry,
	}
}

// Register creates an unverified account and dispatches a verification
// code. No session token is issued until the email is verified.
func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.UserResponse, error) {
	if !utils.ValidateEmail(req.Email) {
		return nil, autherr.New(autherr.KindValidation, "invalid email format")
	}

	if !utils.ValidatePassword(req.Password) {
		return nil, autherr.New(autherr.KindValidation, "password must be at least 6 characters long")
	}

	email := utils.SanitizeEmail(req.Email)

	// Fast-path duplicate check; the unique index backstops the race
	_, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil, autherr.New(autherr.KindDuplicateEmail, "email is already in use")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, autherr.System("failed to check user existence", err)
	}

	passwordHash, err := utils.HashSecret(req.Password, s.bcryptCost)
	if err != nil {
		return nil, autherr.System("failed to hash password", err)
	}

	user := &domain.User{
		Email:           email,
		PasswordHash:    passwordHash,
		Role:            domain.RoleUser,
		IsEmailVerified: false,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, autherr.New(autherr.KindDuplicateEmail, "email is already in use")
		}
		return nil, autherr.System("failed to create user", err)
	}

	if err := s.flows.IssueCode(ctx, user, domain.FlowVerification); err != nil {
		// The account exists; the user recovers via resend
		s.logger.Error("failed to issue verification code after registration",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	return s.userResponse(ctx, user), nil
}

// Login authenticates a user with email and password
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*AuthResponseWithRefreshToken, error) {
	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Same error as a wrong password: no account enumeration
			return nil, autherr.New(autherr.KindInvalidCredentials, "invalid email or password")
		}
		return nil, autherr.System("failed to get user", err)
	}

	if !user.HasPassword() {
		return nil, autherr.New(autherr.KindOAuthOnlyAccount, "account uses social sign-in, no password is set")
	}

	if !utils.CheckSecretHash(req.Password, user.PasswordHash) {
		return nil, autherr.New(autherr.KindInvalidCredentials, "invalid email or password")
	}

	if !user.IsEmailVerified {
		return nil, autherr.New(autherr.KindEmailNotVerified, "email address is not verified")
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	return generateAuthResponseWithRefreshToken(ctx, s.jwtManager, s.tokenRepo, s.refreshTokenExpiry, user)
}

// VerifyEmail consumes a verification code and issues the first session
// token for the account.
func (s *authService) VerifyEmail(ctx context.Context, email, code string) (*AuthResponseWithRefreshToken, error) {
	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, autherr.New(autherr.KindNoActiveCode, "no active code on record")
		}
		return nil, autherr.System("failed to get user", err)
	}

	if err := s.flows.ConsumeCode(ctx, user, domain.FlowVerification, code); err != nil {
		return nil, err
	}

	user.IsEmailVerified = true

	return generateAuthResponseWithRefreshToken(ctx, s.jwtManager, s.tokenRepo, s.refreshTokenExpiry, user)
}

// ResendVerification issues a fresh verification code
func (s *authService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return autherr.New(autherr.KindNotFound, "account not found")
		}
		return autherr.System("failed to get user", err)
	}

	if user.IsEmailVerified {
		return autherr.New(autherr.KindValidation, "email is already verified")
	}

	return s.flows.IssueCode(ctx, user, domain.FlowVerification)
}

// RequestPasswordReset issues a password reset code
func (s *authService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return autherr.New(autherr.KindNotFound, "account not found")
		}
		return autherr.System("failed to get user", err)
	}

	return s.flows.IssueCode(ctx, user, domain.FlowReset)
}

// ResetPassword consumes a reset code and replaces the password hash
func (s *authService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if !utils.ValidatePassword(newPassword) {
		return autherr.New(autherr.KindValidation, "password must be at least 6 characters long")
	}

	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return autherr.New(autherr.KindNoActiveCode, "no active code on record")
		}
		return autherr.System("failed to get user", err)
	}

	if err := s.flows.ConsumeCode(ctx, user, domain.FlowReset, code); err != nil {
		return err
	}

	passwordHash, err := utils.HashSecret(newPassword, s.bcryptCost)
	if err != nil {
		return autherr.System("failed to hash password", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, user.ID, passwordHash); err != nil {
		return autherr.System("failed to update password", err)
	}

	return nil
}

// ChangePassword changes the password of an authenticated user
func (s *authService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if !utils.ValidatePassword(newPassword) {
		return autherr.New(autherr.KindValidation, "password must be at least 6 characters long")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return autherr.New(autherr.KindNotFound, "account not found")
		}
		return autherr.System("failed to get user", err)
	}

	if !user.HasPassword() {
		return autherr.New(autherr.KindOAuthOnlyAccount, "account uses social sign-in, no password is set")
	}

	if !utils.CheckSecretHash(oldPassword, user.PasswordHash) {
		return autherr.New(autherr.KindInvalidCredentials, "invalid password")
	}

	passwordHash, err := utils.HashSecret(newPassword, s.bcryptCost)
	if err != nil {
		return autherr.System("failed to hash password", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return autherr.System("failed to update password", err)
	}

	return nil
}

// RefreshToken rotates the refresh token and issues a new session token
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponseWithRefreshToken, error) {
	userID, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, s.tokenError(err)
	}

	tokenHash := hashToken(refreshToken)

	dbToken, err := s.tokenRepo.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, autherr.New(autherr.KindInvalidToken, "invalid refresh token")
		}
		return nil, autherr.System("failed to get token", err)
	}

	if time.Now().After(dbToken.ExpiresAt) {
		return nil, autherr.New(autherr.KindExpiredToken, "refresh token expired")
	}

	isBlacklisted, err := s.blacklist.IsTokenBlacklisted(ctx, refreshToken)
	if err != nil {
		return nil, autherr.System("failed to check token blacklist", err)
	}
	if isBlacklisted {
		return nil, autherr.New(autherr.KindInvalidToken, "refresh token is revoked")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, autherr.System("failed to get user", err)
	}

	// Rotate: revoke the old refresh token before issuing a new one
	if err := s.blacklist.AddToken(ctx, refreshToken, s.refreshTokenExpiry); err != nil {
		s.logger.Warn("failed to blacklist refresh token", zap.Error(err))
	}

	if err := s.tokenRepo.DeleteByTokenHash(ctx, tokenHash); err != nil {
		s.logger.Warn("failed to delete refresh token", zap.Error(err))
	}

	return generateAuthResponseWithRefreshToken(ctx, s.jwtManager, s.tokenRepo, s.refreshTokenExpiry, user)
}

// Logout revokes the presented refresh token
func (s *authService) Logout(ctx context.Context, userID, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	tokenHash := hashToken(refreshToken)

	dbToken, err := s.tokenRepo.GetByTokenHash(ctx, tokenHash)
	if err != nil || dbToken.UserID != userID {
		return nil
	}

	if err := s.blacklist.AddToken(ctx, refreshToken, s.refreshTokenExpiry); err != nil {
		s.logger.Warn("failed to blacklist refresh token", zap.Error(err))
	}

	if err := s.tokenRepo.DeleteByTokenHash(ctx, tokenHash); err != nil {
		s.logger.Warn("failed to delete refresh token", zap.Error(err))
	}

	return nil
}

// GetUser gets user information
func (s *authService) GetUser(ctx context.Context, userID string) (*dto.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, autherr.New(autherr.KindNotFound, "account not found")
		}
		return nil, autherr.System("failed to get user", err)
	}

	return s.userResponse(ctx, user), nil
}

// UpdateUserRole changes a user's role. Reachable only through the admin
// surface; self-service role changes are not supported.
func (s *authService) UpdateUserRole(ctx context.Context, userID string, role domain.Role) error {
	if !role.Valid() {
		return autherr.New(autherr.KindValidation, "unknown role")
	}

	if err := s.userRepo.UpdateRole(ctx, userID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return autherr.New(autherr.KindNotFound, "account not found")
		}
		return autherr.System("failed to update role", err)
	}

	return nil
}

// DeleteUser removes an account. Admin surface only; no flow deletes an
// account as a side effect.
func (s *authService) DeleteUser(ctx context.Context, userID string) error {
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return autherr.New(autherr.KindNotFound, "account not found")
		}
		return autherr.System("failed to delete user", err)
	}

	return nil
}

// ValidateToken validates a session token
func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.SessionClaims, error) {
	isBlacklisted, err := s.blacklist.IsTokenBlacklisted(ctx, token)
	if err != nil {
		return nil, autherr.System("failed to check token blacklist", err)
	}
	if isBlacklisted {
		return nil, autherr.New(autherr.KindInvalidToken, "token is revoked")
	}

	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, s.tokenError(err)
	}

	return claims, nil
}

func (s *authService) tokenError(err error) error {
	if errors.Is(err, utils.ErrExpiredToken) {
		return autherr.New(autherr.KindExpiredToken, "token is expired")
	}
	return autherr.New(autherr.KindInvalidToken, "invalid token")
}

func (s *authService) userResponse(ctx context.Context, user *domain.User) *dto.UserResponse {
	response := &dto.UserResponse{
		ID:              user.ID,
		Email:           user.Email,
		Role:            string(user.Role),
		IsEmailVerified: user.IsEmailVerified,
		OAuthProviders:  []string{},
		CreatedAt:       user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       user.UpdatedAt.Format(time.RFC3339),
	}

	if user.LastLoginAt != nil {
		lastLogin := user.LastLoginAt.Format(time.RFC3339)
		response.LastLoginAt = &lastLogin
	}

	links, err := s.linkRepo.GetByUserID(ctx, user.ID)
	if err != nil {
		s.logger.Warn("failed to load oauth links", zap.String("user_id", user.ID), zap.Error(err))
		return response
	}
	for _, link := range links {
		response.OAuthProviders = append(response.OAuthProviders, link.Provider)
	}

	return response
}
