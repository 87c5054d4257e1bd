package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stagepass/identity-service/internal/domain"
)

// Token verification sentinels. Both mean "require re-authentication";
// ErrExpiredToken lets the boundary report expiry distinctly.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token is expired")
)

// JWTManager manages JWT token operations
type JWTManager struct {
	secret             []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret string, accessTokenExpiry, refreshTokenExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:             []byte(secret),
		accessTokenExpiry:  accessTokenExpiry,
		refreshTokenExpiry: refreshTokenExpiry,
	}
}

// GenerateAccessToken generates a new session token carrying identity and role
func (j *JWTManager) GenerateAccessToken(userID, email string, role domain.Role) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"email":   email,
		"role":    string(role),
		"exp":     now.Add(j.accessTokenExpiry).Unix(),
		"iat":     now.Unix(),
	})

	tokenString, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// GenerateRefreshToken generates a new refresh token
func (j *JWTManager) GenerateRefreshToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(j.refreshTokenExpiry).Unix(),
		"iat":     time.Now().Unix(),
		"type":    "refresh",
		"jti":     uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return tokenString, nil
}

func (j *JWTManager) parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ValidateToken validates a session token and returns its claims
func (j *JWTManager) ValidateToken(tokenString string) (*domain.SessionClaims, error) {
	claims, err := j.parse(tokenString)
	if err != nil {
		return nil, err
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	email, ok := claims["email"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	role, ok := claims["role"].(string)
	if !ok || !domain.Role(role).Valid() {
		return nil, ErrInvalidToken
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}

	iat, ok := claims["iat"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}

	sessionClaims := &domain.SessionClaims{
		UserID: userID,
		Email:  email,
		Role:   domain.Role(role),
		Exp:    int64(exp),
		Iat:    int64(iat),
	}

	if sessionClaims.IsExpired() {
		return nil, ErrExpiredToken
	}

	return sessionClaims, nil
}

// GetAccessTokenExpiry returns the access token expiry duration in seconds
func (j *JWTManager) GetAccessTokenExpiry() int {
	return int(j.accessTokenExpiry.Seconds())
}

// ValidateRefreshToken validates a refresh token and returns user ID
func (j *JWTManager) ValidateRefreshToken(tokenString string) (string, error) {
	claims, err := j.parse(tokenString)
	if err != nil {
		return "", err
	}

	// Check token type
	if claims["type"] != "refresh" {
		return "", ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return "", ErrInvalidToken
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return "", ErrInvalidToken
	}

	if time.Now().Unix() > int64(exp) {
		return "", ErrExpiredToken
	}

	return userID, nil
}
