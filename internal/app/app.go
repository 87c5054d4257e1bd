package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stagepass/identity-service/internal/config"
	"github.com/stagepass/identity-service/internal/handler"
	"github.com/stagepass/identity-service/internal/oauth"
	"github.com/stagepass/identity-service/internal/repository"
	"github.com/stagepass/identity-service/internal/service"
	"github.com/stagepass/identity-service/internal/utils"
	"github.com/stagepass/identity-service/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	infra  Infrastructure
	config *config.Config
	router *gin.Engine
	server *http.Server
}

func NewApp(infra Infrastructure, cfg *config.Config) *App {
	repos := repository.NewRepositories(infra.Postgres())

	jwtManager := utils.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry.Duration,
		cfg.JWT.RefreshTokenExpiry.Duration,
	)

	blacklist := service.NewRedisTokenBlacklist(infra.Redis())
	rateLimiter := service.NewRateLimiter(infra.Redis())
	healthChecker := NewHealthChecker(infra)

	flows := service.NewCodeFlowService(
		repos.User,
		infra.Mailer(),
		infra.Logger(),
		cfg.Flow.CodeTTL.Duration,
		cfg.Flow.Cooldown.Duration,
		cfg.Flow.CodeLength,
		cfg.Flow.CodeBCryptCost,
	)

	authService := service.NewAuthService(
		repos.User,
		repos.Token,
		repos.OAuthLink,
		jwtManager,
		blacklist,
		flows,
		infra.Logger(),
		cfg.Security.BCryptCost,
		cfg.JWT.RefreshTokenExpiry.Duration,
	)

	oauthService := service.NewOAuthService(
		buildProviderRegistry(cfg.OAuth),
		repos.User,
		repos.OAuthLink,
		repos.Token,
		jwtManager,
		infra.Logger(),
		cfg.JWT.RefreshTokenExpiry.Duration,
	)

	authHandler := handler.NewAuthHandler(authService)
	oauthHandler := handler.NewOAuthHandler(oauthService)
	adminHandler := handler.NewAdminHandler(authService)

	router := gin.Default()
	router.Use(otelgin.Middleware("identity-service"))
	router.Use(handler.LoggerMiddleware(infra.Logger()))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	setupRoutes(router, cfg, authHandler, oauthHandler, adminHandler, authService, rateLimiter, healthChecker, infra.MetricsHandler())

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:  infra,
		config: cfg,
		router: router,
		server: srv,
	}
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// buildProviderRegistry registers every provider with configured
// credentials. An empty registry is valid; every OAuth route then 404s.
func buildProviderRegistry(cfg config.OAuthConfig) *oauth.Registry {
	var providers []oauth.Provider
	if cfg.Google.Enabled() {
		providers = append(providers, oauth.NewGoogleProvider(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL))
	}
	if cfg.GitHub.Enabled() {
		providers = append(providers, oauth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.RedirectURL))
	}
	return oauth.NewRegistry(providers...)
}

func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	oauthHandler *handler.OAuthHandler,
	adminHandler *handler.AdminHandler,
	authService service.AuthService,
	rateLimiter *service.RateLimiter,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	rateLimited := handler.RateLimitMiddleware(rateLimiter, cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow.Duration, handler.IPBasedKey)
	authenticated := handler.AuthMiddleware(authService)

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", rateLimited, authHandler.Register)
			auth.POST("/login", rateLimited, authHandler.Login)
			auth.POST("/verify-email", rateLimited, authHandler.VerifyEmail)
			auth.POST("/resend-verification", rateLimited, authHandler.ResendVerification)
			auth.POST("/forgot-password", rateLimited, authHandler.ForgotPassword)
			auth.POST("/reset-password", rateLimited, authHandler.ResetPassword)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authenticated, authHandler.Logout)
			auth.GET("/me", authenticated, authHandler.GetMe)
			auth.PUT("/password", authenticated, authHandler.ChangePassword)

			auth.GET("/oauth/:provider", oauthHandler.Redirect)
			auth.GET("/oauth/:provider/callback", oauthHandler.Callback)
		}

		admin := api.Group("/admin", authenticated, handler.RequireAdmin())
		{
			admin.GET("/users/:id", adminHandler.GetUser)
			admin.PUT("/users/:id/role", adminHandler.UpdateRole)
			admin.DELETE("/users/:id", adminHandler.DeleteUser)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- a.server.Shutdown(ctx)
	}()

	go func() {
		errs <- a.infra.Shutdown(ctx)
	}()

	err := errors.Join(<-errs, <-errs)
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
