package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stagepass/identity-service/internal/dto"
	"github.com/stagepass/identity-service/internal/service"
)

const (
	stateCookieName   = "oauth_state"
	stateCookieMaxAge = 600
)

// OAuthHandler handles third-party sign-in requests
type OAuthHandler struct {
	oauthService service.OAuthService
}

// NewOAuthHandler creates a new OAuth handler
func NewOAuthHandler(oauthService service.OAuthService) *OAuthHandler {
	return &OAuthHandler{
		oauthService: oauthService,
	}
}

// Redirect starts the authorization code flow for a provider
// @Summary Start OAuth sign-in
// @Description Redirect to the provider's authorization page
// @Tags oauth
// @Param provider path string true "Provider name"
// @Success 307
// @Failure 404 {object} dto.ErrorResponse
// @Router /auth/oauth/{provider} [get]
func (h *OAuthHandler) Redirect(c *gin.Context) {
	provider := c.Param("provider")

	state, err := generateState()
	if err != nil {
		writeError(c, err)
		return
	}

	url, err := h.oauthService.AuthCodeURL(provider, state)
	if err != nil {
		writeError(c, err)
		return
	}

	c.SetCookie(stateCookieName, state, stateCookieMaxAge, "/api/v1/auth/oauth", "", true, true)
	c.Redirect(http.StatusTemporaryRedirect, url)
}

// Callback completes the authorization code flow
// @Summary OAuth callback
// @Description Exchange the authorization code and issue session tokens
// @Tags oauth
// @Produce json
// @Param provider path string true "Provider name"
// @Param code query string true "Authorization code"
// @Param state query string true "CSRF state"
// @Success 200 {object} dto.AuthResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/oauth/{provider}/callback [get]
func (h *OAuthHandler) Callback(c *gin.Context) {
	provider := c.Param("provider")

	if errCode := c.Query("error"); errCode != "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Code:    "INVALID_CREDENTIALS",
			Message: "provider denied authorization: " + errCode,
		})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "authorization code is required",
		})
		return
	}

	state := c.Query("state")
	cookieState, err := c.Cookie(stateCookieName)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(cookieState)) != 1 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "state mismatch",
		})
		return
	}

	c.SetCookie(stateCookieName, "", -1, "/api/v1/auth/oauth", "", true, true)

	response, err := h.oauthService.HandleCallback(c.Request.Context(), provider, code)
	if err != nil {
		writeError(c, err)
		return
	}

	setRefreshCookie(c, response)
	c.JSON(http.StatusOK, response.AuthResponse)
}

func generateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
