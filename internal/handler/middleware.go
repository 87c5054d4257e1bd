package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stagepass/identity-service/internal/domain"
	"github.com/stagepass/identity-service/internal/dto"
	"github.com/stagepass/identity-service/internal/service"
)

// AuthMiddleware validates the session token and adds user info to context
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Code:    "INVALID_TOKEN",
				Message: "Authorization header is required",
			})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Code:    "INVALID_TOKEN",
				Message: "Invalid authorization header format",
			})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Set("claims", claims)

		c.Next()
	}
}

// RequireRole rejects requests whose session role does not satisfy the
// given checker. Used behind AuthMiddleware.
func RequireRole(check func(domain.Role) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Code:    "INVALID_TOKEN",
				Message: "Role not found in context",
			})
			c.Abort()
			return
		}

		if r, ok := role.(domain.Role); !ok || !check(r) {
			c.JSON(http.StatusForbidden, dto.ErrorResponse{
				Code:    "FORBIDDEN",
				Message: "Insufficient permissions",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireAdmin allows admin and superuser roles only
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(func(r domain.Role) bool { return r.IsAdmin() })
}

// currentUserID reads the authenticated user's ID set by AuthMiddleware,
// writing a 401 when it is missing.
func currentUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Code:    "INVALID_TOKEN",
			Message: "User ID not found in context",
		})
		return "", false
	}
	return userID.(string), true
}
