package acceptance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stagepass/identity-service/internal/dto"
)

func (s *Suite) postJSON(path string, payload any) *http.Response {
	body, err := json.Marshal(payload)
	s.Require().NoError(err)

	resp, err := http.Post(s.BaseURL+path, "application/json", bytes.NewBuffer(body))
	s.Require().NoError(err)
	return resp
}

func (s *Suite) register(email, password string) *http.Response {
	return s.postJSON("/api/v1/auth/register", dto.RegisterRequest{Email: email, Password: password})
}

// registerVerified registers an account and completes email verification,
// returning the first session.
func (s *Suite) registerVerified(email, password string) (dto.AuthResponse, []*http.Cookie) {
	resp := s.register(email, password)
	resp.Body.Close()
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	code := s.Mailer.lastVerificationCode(email)
	s.Require().NotEmpty(code, "verification code should have been dispatched")

	verifyResp := s.postJSON("/api/v1/auth/verify-email", dto.VerifyEmailRequest{Email: email, Code: code})
	defer verifyResp.Body.Close()
	s.Require().Equal(http.StatusOK, verifyResp.StatusCode)

	var authResp dto.AuthResponse
	s.Require().NoError(json.NewDecoder(verifyResp.Body).Decode(&authResp))
	return authResp, verifyResp.Cookies()
}

func (s *Suite) TestRegister_Success() {
	resp := s.register("test@example.com", "password123")
	defer resp.Body.Close()

	s.Equal(http.StatusCreated, resp.StatusCode)

	var userResp dto.UserResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&userResp))

	s.NotEmpty(userResp.ID)
	s.Equal("test@example.com", userResp.Email)
	s.Equal("user", userResp.Role)
	s.False(userResp.IsEmailVerified)

	// No session until the email is verified, but a code went out
	s.Empty(resp.Cookies())
	s.NotEmpty(s.Mailer.lastVerificationCode("test@example.com"))
}

func (s *Suite) TestRegister_DuplicateEmail() {
	resp1 := s.register("duplicate@example.com", "password123")
	resp1.Body.Close()

	resp2 := s.register("Duplicate@Example.com", "password456")
	defer resp2.Body.Close()

	s.Equal(http.StatusConflict, resp2.StatusCode)

	var errResp dto.ErrorResponse
	s.Require().NoError(json.NewDecoder(resp2.Body).Decode(&errResp))
	s.Equal("DUPLICATE_EMAIL", errResp.Code)
}

func (s *Suite) TestRegister_InvalidEmail() {
	resp := s.register("invalid-email", "password123")
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestRegister_ShortPassword() {
	resp := s.register("test@example.com", "short")
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestLogin_BeforeVerification() {
	resp := s.register("unverified@example.com", "password123")
	resp.Body.Close()

	loginResp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "unverified@example.com", Password: "password123"})
	defer loginResp.Body.Close()

	s.Equal(http.StatusForbidden, loginResp.StatusCode)

	var errResp dto.ErrorResponse
	s.Require().NoError(json.NewDecoder(loginResp.Body).Decode(&errResp))
	s.Equal("EMAIL_NOT_VERIFIED", errResp.Code)
}

func (s *Suite) TestVerifyEmail_Success() {
	authResp, cookies := s.registerVerified("verify@example.com", "password123")

	s.NotEmpty(authResp.AccessToken)
	s.Equal("Bearer", authResp.TokenType)
	s.Equal("verify@example.com", authResp.User.Email)
	s.NotEmpty(cookies, "Should have refresh token cookie")
}

func (s *Suite) TestVerifyEmail_WrongCode() {
	resp := s.register("wrongcode@example.com", "password123")
	resp.Body.Close()

	code := s.Mailer.lastVerificationCode("wrongcode@example.com")
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	verifyResp := s.postJSON("/api/v1/auth/verify-email", dto.VerifyEmailRequest{Email: "wrongcode@example.com", Code: wrong})
	defer verifyResp.Body.Close()

	s.Equal(http.StatusBadRequest, verifyResp.StatusCode)

	var errResp dto.ErrorResponse
	s.Require().NoError(json.NewDecoder(verifyResp.Body).Decode(&errResp))
	s.Equal("INVALID_CODE", errResp.Code)
}

func (s *Suite) TestVerifyEmail_CodeIsSingleUse() {
	resp := s.register("singleuse@example.com", "password123")
	resp.Body.Close()
	code := s.Mailer.lastVerificationCode("singleuse@example.com")

	first := s.postJSON("/api/v1/auth/verify-email", dto.VerifyEmailRequest{Email: "singleuse@example.com", Code: code})
	first.Body.Close()
	s.Equal(http.StatusOK, first.StatusCode)

	second := s.postJSON("/api/v1/auth/verify-email", dto.VerifyEmailRequest{Email: "singleuse@example.com", Code: code})
	defer second.Body.Close()
	s.Equal(http.StatusBadRequest, second.StatusCode)

	var errResp dto.ErrorResponse
	s.Require().NoError(json.NewDecoder(second.Body).Decode(&errResp))
	s.Equal("NO_ACTIVE_CODE", errResp.Code)
}

func (s *Suite) TestLogin_Success() {
	s.registerVerified("login@example.com", "password123")

	resp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "login@example.com", Password: "password123"})
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var authResp dto.AuthResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&authResp))

	s.NotEmpty(authResp.AccessToken)
	s.Equal("Bearer", authResp.TokenType)
	s.Equal("login@example.com", authResp.User.Email)
	s.NotEmpty(resp.Cookies(), "Should have refresh token cookie")
}

func (s *Suite) TestLogin_InvalidCredentials() {
	s.registerVerified("creds@example.com", "password123")

	wrongPass := s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "creds@example.com", Password: "wrongpassword"})
	defer wrongPass.Body.Close()
	s.Equal(http.StatusUnauthorized, wrongPass.StatusCode)

	unknown := s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "nonexistent@example.com", Password: "password123"})
	defer unknown.Body.Close()
	s.Equal(http.StatusUnauthorized, unknown.StatusCode)

	// Same payload for both: no account enumeration
	var a, b dto.ErrorResponse
	s.Require().NoError(json.NewDecoder(wrongPass.Body).Decode(&a))
	s.Require().NoError(json.NewDecoder(unknown.Body).Decode(&b))
	s.Equal(a, b)
}

func (s *Suite) TestResendVerification_Cooldown() {
	resp := s.register("cooldown@example.com", "password123")
	resp.Body.Close()

	// Registration already consumed the request window
	resendResp := s.postJSON("/api/v1/auth/resend-verification", dto.ResendVerificationRequest{Email: "cooldown@example.com"})
	defer resendResp.Body.Close()

	s.Equal(http.StatusTooManyRequests, resendResp.StatusCode)

	var errResp dto.ErrorResponse
	s.Require().NoError(json.NewDecoder(resendResp.Body).Decode(&errResp))
	s.Equal("COOLDOWN", errResp.Code)
	s.Greater(errResp.RetryAfter, 0)
	s.NotEmpty(resendResp.Header.Get("Retry-After"))
}

func (s *Suite) TestPasswordResetFlow() {
	s.registerVerified("reset@example.com", "password123")

	// Wait out the cooldown left by registration (2s in the test config)
	time.Sleep(2100 * time.Millisecond)

	forgotResp := s.postJSON("/api/v1/auth/forgot-password", dto.ForgotPasswordRequest{Email: "reset@example.com"})
	forgotResp.Body.Close()
	s.Equal(http.StatusOK, forgotResp.StatusCode)

	code := s.Mailer.lastResetCode("reset@example.com")
	s.Require().NotEmpty(code)

	resetResp := s.postJSON("/api/v1/auth/reset-password", dto.ResetPasswordRequest{
		Email:       "reset@example.com",
		Code:        code,
		NewPassword: "newpassword9",
	})
	resetResp.Body.Close()
	s.Equal(http.StatusOK, resetResp.StatusCode)

	oldLogin := s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "reset@example.com", Password: "password123"})
	oldLogin.Body.Close()
	s.Equal(http.StatusUnauthorized, oldLogin.StatusCode)

	newLogin := s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "reset@example.com", Password: "newpassword9"})
	defer newLogin.Body.Close()
	s.Equal(http.StatusOK, newLogin.StatusCode)

	// The reset code is single-use
	replay := s.postJSON("/api/v1/auth/reset-password", dto.ResetPasswordRequest{
		Email:       "reset@example.com",
		Code:        code,
		NewPassword: "another123",
	})
	defer replay.Body.Close()
	s.Equal(http.StatusBadRequest, replay.StatusCode)
}

func (s *Suite) TestGetMe_Success() {
	authResp, _ := s.registerVerified("getme@example.com", "password123")

	req, _ := http.NewRequest("GET", s.BaseURL+"/api/v1/auth/me", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", authResp.AccessToken))

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var userResp dto.UserResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&userResp))

	s.NotEmpty(userResp.ID)
	s.Equal("getme@example.com", userResp.Email)
	s.True(userResp.IsEmailVerified)
	s.Empty(userResp.OAuthProviders)
	s.NotEmpty(userResp.CreatedAt)
}

func (s *Suite) TestGetMe_NoToken() {
	req, _ := http.NewRequest("GET", s.BaseURL+"/api/v1/auth/me", nil)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestGetMe_InvalidToken() {
	req, _ := http.NewRequest("GET", s.BaseURL+"/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestChangePassword_Success() {
	authResp, _ := s.registerVerified("changepw@example.com", "password123")

	body, _ := json.Marshal(dto.ChangePasswordRequest{OldPassword: "password123", NewPassword: "newpassword9"})
	req, _ := http.NewRequest("PUT", s.BaseURL+"/api/v1/auth/password", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", authResp.AccessToken))

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	login := s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "changepw@example.com", Password: "newpassword9"})
	defer login.Body.Close()
	s.Equal(http.StatusOK, login.StatusCode)
}

func (s *Suite) TestRefresh_Rotation() {
	_, cookies := s.registerVerified("refresh@example.com", "password123")
	s.Require().NotEmpty(cookies)

	req, _ := http.NewRequest("POST", s.BaseURL+"/api/v1/auth/refresh", nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	var authResp dto.AuthResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&authResp))
	s.NotEmpty(authResp.AccessToken)

	// The rotated-out refresh token is rejected on replay
	replay, _ := http.NewRequest("POST", s.BaseURL+"/api/v1/auth/refresh", nil)
	for _, cookie := range cookies {
		replay.AddCookie(cookie)
	}

	replayResp, err := http.DefaultClient.Do(replay)
	s.Require().NoError(err)
	defer replayResp.Body.Close()

	s.Equal(http.StatusUnauthorized, replayResp.StatusCode)
}

func (s *Suite) TestRefresh_NoCookie() {
	req, _ := http.NewRequest("POST", s.BaseURL+"/api/v1/auth/refresh", nil)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestLogout_Success() {
	authResp, cookies := s.registerVerified("logout@example.com", "password123")

	req, _ := http.NewRequest("POST", s.BaseURL+"/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", authResp.AccessToken))
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	// The revoked refresh token no longer works
	refreshReq, _ := http.NewRequest("POST", s.BaseURL+"/api/v1/auth/refresh", nil)
	for _, cookie := range cookies {
		refreshReq.AddCookie(cookie)
	}

	refreshResp, err := http.DefaultClient.Do(refreshReq)
	s.Require().NoError(err)
	defer refreshResp.Body.Close()

	s.Equal(http.StatusUnauthorized, refreshResp.StatusCode)
}

func (s *Suite) TestAdmin_ForbiddenForRegularUser() {
	authResp, _ := s.registerVerified("regular@example.com", "password123")

	req, _ := http.NewRequest("GET", s.BaseURL+"/api/v1/admin/users/"+authResp.User.ID, nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", authResp.AccessToken))

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusForbidden, resp.StatusCode)

	var errResp dto.ErrorResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&errResp))
	s.Equal("FORBIDDEN", errResp.Code)
}

func (s *Suite) TestAdmin_RoleManagement() {
	adminAuth, _ := s.registerVerified("admin@example.com", "password123")
	userAuth, _ := s.registerVerified("member@example.com", "password123")

	// Promote directly in the store; role mutation is admin-only over HTTP
	_, err := s.Postgres.DB.Exec(`UPDATE users SET role = 'admin' WHERE email = $1`, "admin@example.com")
	s.Require().NoError(err)

	// Re-login so the session token carries the admin role
	loginResp := s.postJSON("/api/v1/auth/login", dto.LoginRequest{Email: "admin@example.com", Password: "password123"})
	defer loginResp.Body.Close()
	s.Require().NoError(json.NewDecoder(loginResp.Body).Decode(&adminAuth))

	body, _ := json.Marshal(dto.UpdateRoleRequest{Role: "admin"})
	req, _ := http.NewRequest("PUT", s.BaseURL+"/api/v1/admin/users/"+userAuth.User.ID+"/role", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", adminAuth.AccessToken))

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)

	getReq, _ := http.NewRequest("GET", s.BaseURL+"/api/v1/admin/users/"+userAuth.User.ID, nil)
	getReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", adminAuth.AccessToken))

	getResp, err := http.DefaultClient.Do(getReq)
	s.Require().NoError(err)
	defer getResp.Body.Close()

	s.Equal(http.StatusOK, getResp.StatusCode)

	var userResp dto.UserResponse
	s.Require().NoError(json.NewDecoder(getResp.Body).Decode(&userResp))
	s.Equal("admin", userResp.Role)
}
