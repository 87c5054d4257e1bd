package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stagepass/identity-service/internal/dto"
	"github.com/stagepass/identity-service/internal/service"
)

const refreshCookiePath = "/api/v1/auth/refresh"

// AuthHandler handles authentication and account lifecycle requests
type AuthHandler struct {
	authService service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func setRefreshCookie(c *gin.Context, response *service.AuthResponseWithRefreshToken) {
	c.SetCookie("refresh_token", response.RefreshToken, response.ExpiresIn, refreshCookiePath, "", true, true)
}

// Register handles user registration
// @Summary Register a new user
// @Description Create an unverified account and send a verification code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Registration request"
// @Success 201 {object} dto.UserResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	// No session token until the email is verified
	c.JSON(http.StatusCreated, user)
}

// Login handles user login
// @Summary Login user
// @Description Authenticate user with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login request"
// @Success 200 {object} dto.AuthResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	response, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	setRefreshCookie(c, response)
	c.JSON(http.StatusOK, response.AuthResponse)
}

// VerifyEmail consumes a verification code and issues the first session
// @Summary Verify email address
// @Description Consume a one-time verification code and issue tokens
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.VerifyEmailRequest true "Verification request"
// @Success 200 {object} dto.AuthResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /auth/verify-email [post]
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req dto.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	response, err := h.authService.VerifyEmail(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		writeError(c, err)
		return
	}

	setRefreshCookie(c, response)
	c.JSON(http.StatusOK, response.AuthResponse)
}

// ResendVerification issues a fresh verification code
// @Summary Resend verification code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.ResendVerificationRequest true "Resend request"
// @Success 200 {object} dto.SuccessResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /auth/resend-verification [post]
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req dto.ResendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	if err := h.authService.ResendVerification(c.Request.Context(), req.Email); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Verification code sent"})
}

// ForgotPassword issues a password reset code
// @Summary Request password reset
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.ForgotPasswordRequest true "Reset request"
// @Success 200 {object} dto.SuccessResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req dto.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	if err := h.authService.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Password reset code sent"})
}

// ResetPassword consumes a reset code and replaces the password
// @Summary Reset password with a one-time code
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.ResetPasswordRequest true "Reset request"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Password has been reset"})
}

// Refresh handles token refresh
// @Summary Refresh tokens
// @Description Rotate the refresh token and issue a new access token
// @Tags auth
// @Produce json
// @Success 200 {object} dto.AuthResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie("refresh_token")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Refresh token not found in cookie",
		})
		return
	}

	response, err := h.authService.RefreshToken(c.Request.Context(), refreshToken)
	if err != nil {
		writeError(c, err)
		return
	}

	setRefreshCookie(c, response)
	c.JSON(http.StatusOK, response.AuthResponse)
}

// Logout handles user logout
// @Summary Logout user
// @Description Logout user and invalidate refresh token
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.SuccessResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	refreshToken, _ := c.Cookie("refresh_token")

	if err := h.authService.Logout(c.Request.Context(), userID, refreshToken); err != nil {
		writeError(c, err)
		return
	}

	c.SetCookie("refresh_token", "", -1, refreshCookiePath, "", true, true)

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Logged out successfully"})
}

// GetMe handles getting current user profile
// @Summary Get current user profile
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.UserResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.authService.GetUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// ChangePassword changes the password of the authenticated user
// @Summary Change password
// @Tags auth
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.ChangePasswordRequest true "Change password request"
// @Success 200 {object} dto.SuccessResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/password [put]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Password changed successfully"})
}
