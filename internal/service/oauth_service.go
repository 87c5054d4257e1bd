package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stagepass/identity-service/internal/autherr"
	"github.com/stagepass/identity-service/internal/domain"
	"github.com/stagepass/identity-service/internal/oauth"
	"github.com/stagepass/identity-service/internal/repository"
	"github.com/stagepass/identity-service/internal/utils"
	"go.uber.org/zap"
)

// oauthService implements OAuthService interface
type oauthService struct {
	registry           *oauth.Registry
	userRepo           repository.UserRepository
	linkRepo           repository.OAuthLinkRepository
	tokenRepo          repository.TokenRepository
	jwtManager         *utils.JWTManager
	logger             *zap.Logger
	refreshTokenExpiry time.Duration
}

// NewOAuthService creates a new OAuth service
func NewOAuthService(
	registry *oauth.Registry,
	userRepo repository.UserRepository,
	linkRepo repository.OAuthLinkRepository,
	tokenRepo repository.TokenRepository,
	jwtManager *utils.JWTManager,
	logger *zap.Logger,
	refreshTokenExpiry time.Duration,
) OAuthService {
	return &oauthService{
		registry:           registry,
		userRepo:           userRepo,
		linkRepo:           linkRepo,
		tokenRepo:          tokenRepo,
		jwtManager:         jwtManager,
		logger:             logger,
		refreshTokenExpiry: refreshTokenExpiry,
	}
}

// AuthCodeURL returns the provider's authorization URL
func (s *oauthService) AuthCodeURL(provider, state string) (string, error) {
	p, ok := s.registry.Get(provider)
	if !ok {
		return "", autherr.New(autherr.KindNotFound, fmt.Sprintf("unknown oauth provider %q", provider))
	}
	return p.AuthCodeURL(state), nil
}

// HandleCallback exchanges the authorization code, resolves the asserted
// identity against the account store and issues session tokens.
func (s *oauthService) HandleCallback(ctx context.Context, provider, code string) (*AuthResponseWithRefreshToken, error) {
	p, ok := s.registry.Get(provider)
	if !ok {
		return nil, autherr.New(autherr.KindNotFound, fmt.Sprintf("unknown oauth provider %q", provider))
	}

	profile, err := p.Exchange(ctx, code)
	if err != nil {
		return nil, autherr.Wrap(autherr.KindInvalidCredentials, "oauth code exchange failed", err)
	}

	user, err := s.Resolve(ctx, profile)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	return generateAuthResponseWithRefreshToken(ctx, s.jwtManager, s.tokenRepo, s.refreshTokenExpiry, user)
}

// Resolve reconciles an external provider identity against the account
// store: by (provider, externalId) first, then by email, else a new
// account. The unique indexes on email and (provider, provider_user_id)
// arbitrate concurrent callbacks; the lookups here are the fast path.
func (s *oauthService) Resolve(ctx context.Context, profile *oauth.Profile) (*domain.User, error) {
	if profile.ProviderUserID == "" {
		return nil, autherr.New(autherr.KindMissingProviderIdentity, "oauth profile is missing the external identity")
	}
	if profile.Email == "" {
		return nil, autherr.New(autherr.KindMissingProviderEmail, "oauth profile is missing an email address")
	}

	email := utils.SanitizeEmail(profile.Email)
	if !utils.ValidateEmail(email) {
		return nil, autherr.New(autherr.KindMissingProviderEmail, "oauth profile email is malformed")
	}

	// 1. Known identity: refresh stored tokens and return the owner
	link, err := s.linkRepo.GetByProviderIdentity(ctx, profile.Provider, profile.ProviderUserID)
	if err == nil {
		return s.refreshLink(ctx, link, profile)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, autherr.System("failed to look up oauth link", err)
	}

	// 2. Known email: append the link to the existing account
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return s.appendLink(ctx, user, profile)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, autherr.System("failed to look up user by email", err)
	}

	// 3. New identity: create an account with a single link. The provider
	// asserts the email but it stays unverified pending the usual flow.
	user = &domain.User{
		Email:           email,
		Role:            domain.RoleUser,
		IsEmailVerified: false,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			// Lost a create race; the account now exists, link to it
			user, err = s.userRepo.GetByEmail(ctx, email)
			if err != nil {
				return nil, autherr.System("failed to get user after create race", err)
			}
			return s.appendLink(ctx, user, profile)
		}
		return nil, autherr.System("failed to create user", err)
	}

	if _, err := s.createLink(ctx, user, profile); err != nil {
		return nil, err
	}

	return user, nil
}

// refreshLink updates the stored provider tokens and loads the owning user
func (s *oauthService) refreshLink(ctx context.Context, link *domain.OAuthLink, profile *oauth.Profile) (*domain.User, error) {
	err := s.linkRepo.UpdateTokens(ctx, link.ID, profile.AccessToken, profile.RefreshToken, profile.TokenExpiresAt)
	if err != nil {
		s.logger.Warn("failed to refresh oauth link tokens", zap.String("link_id", link.ID), zap.Error(err))
	}

	user, err := s.userRepo.GetByID(ctx, link.UserID)
	if err != nil {
		return nil, autherr.System("failed to get user for oauth link", err)
	}

	return user, nil
}

// appendLink attaches the provider identity to an existing account,
// guarding against a duplicate (provider, externalId) pair.
func (s *oauthService) appendLink(ctx context.Context, user *domain.User, profile *oauth.Profile) (*domain.User, error) {
	links, err := s.linkRepo.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, autherr.System("failed to load oauth links", err)
	}

	for _, existing := range links {
		if existing.Provider == profile.Provider && existing.ProviderUserID == profile.ProviderUserID {
			if _, err := s.refreshLink(ctx, existing, profile); err != nil {
				return nil, err
			}
			return user, nil
		}
	}

	if _, err := s.createLink(ctx, user, profile); err != nil {
		return nil, err
	}

	return user, nil
}

func (s *oauthService) createLink(ctx context.Context, user *domain.User, profile *oauth.Profile) (*domain.OAuthLink, error) {
	email := utils.SanitizeEmail(profile.Email)
	link := &domain.OAuthLink{
		UserID:         user.ID,
		Provider:       profile.Provider,
		ProviderUserID: profile.ProviderUserID,
		Email:          &email,
		AccessToken:    profile.AccessToken,
		RefreshToken:   profile.RefreshToken,
		TokenExpiresAt: profile.TokenExpiresAt,
	}

	if err := s.linkRepo.Create(ctx, link); err != nil {
		if errors.Is(err, repository.ErrDuplicateOAuthLink) {
			// A concurrent callback created it; the unique index arbitrated
			existing, gerr := s.linkRepo.GetByProviderIdentity(ctx, profile.Provider, profile.ProviderUserID)
			if gerr != nil {
				return nil, autherr.System("failed to get oauth link after create race", gerr)
			}
			return existing, nil
		}
		return nil, autherr.System("failed to create oauth link", err)
	}

	return link, nil
}
