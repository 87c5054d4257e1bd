package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stagepass/identity-service/internal/autherr"
	"github.com/stagepass/identity-service/internal/dto"
)

// statusForKind maps every error kind to an HTTP status. The mapping is
// closed: an unknown kind is a system error.
func statusForKind(kind autherr.Kind) int {
	switch kind {
	case autherr.KindValidation, autherr.KindNoActiveCode, autherr.KindCodeExpired,
		autherr.KindInvalidCode, autherr.KindOAuthOnlyAccount,
		autherr.KindMissingProviderEmail, autherr.KindMissingProviderIdentity:
		return http.StatusBadRequest
	case autherr.KindInvalidCredentials, autherr.KindInvalidToken, autherr.KindExpiredToken:
		return http.StatusUnauthorized
	case autherr.KindEmailNotVerified, autherr.KindForbidden:
		return http.StatusForbidden
	case autherr.KindNotFound:
		return http.StatusNotFound
	case autherr.KindDuplicateEmail:
		return http.StatusConflict
	case autherr.KindCooldown:
		return http.StatusTooManyRequests
	case autherr.KindNotificationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError serializes a service error as the closed error payload. System
// error causes never reach the response body.
func writeError(c *gin.Context, err error) {
	var authErr *autherr.Error
	if !errors.As(err, &authErr) {
		authErr = autherr.System("internal error", err)
	}

	response := dto.ErrorResponse{
		Code:    string(authErr.Kind),
		Message: authErr.Message,
	}
	if authErr.Kind == autherr.KindSystem {
		response.Message = "internal server error"
	}

	if authErr.RetryAfter > 0 {
		seconds := int(authErr.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		response.RetryAfter = seconds
		c.Header("Retry-After", strconv.Itoa(seconds))
	}

	c.JSON(statusForKind(authErr.Kind), response)
}

// writeBindError reports a malformed request body
func writeBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Code:    string(autherr.KindValidation),
		Message: err.Error(),
	})
}
