package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fonsecaaso/shortlink/go-server/internal/token"
)

const (
	userIDKey = "user_id"
	claimsKey = "claims"
)

var (
	ErrMissingToken  = errors.New("missing authorization header")
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrMissingClaims = errors.New("claims not found in context")
)

// TokenValidator is satisfied by *token.Manager
type TokenValidator interface {
	ValidateToken(tokenStr string) (*token.CustomClaims, error)
}

// AuthMiddleware rejects requests without a valid bearer token with 401
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return authMiddleware(validator, http.StatusUnauthorized, "")
}

// ForbidUnauthenticated is AuthMiddleware answering 403 with a fixed message
func ForbidUnauthenticated(validator TokenValidator, message string) gin.HandlerFunc {
	return authMiddleware(validator, http.StatusForbidden, message)
}

// OptionalAuth attaches the claims of a valid bearer token and never aborts
func OptionalAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			if claims, err := validator.ValidateToken(strings.TrimPrefix(auth, "Bearer ")); err == nil {
				c.Set(claimsKey, claims)
				c.Set(userIDKey, claims.UserID)
			}
		}
		c.Next()
	}
}

func authMiddleware(validator TokenValidator, status int, message string) gin.HandlerFunc {
	deny := func(c *gin.Context, err error, code string) {
		msg := err.Error()
		if message != "" {
			msg = message
		}
		c.AbortWithStatusJSON(status, gin.H{
			"error": msg,
			"code":  code,
		})
	}

	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			deny(c, ErrMissingToken, "MISSING_TOKEN")
			return
		}

		claims, err := validator.ValidateToken(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			deny(c, ErrInvalidToken, "INVALID_TOKEN")
			return
		}

		c.Set(claimsKey, claims)
		c.Set(userIDKey, claims.UserID)

		c.Next()
	}
}

// GetUserIDFromContext returns the authenticated user id, or nil.
func GetUserIDFromContext(c *gin.Context) *uuid.UUID {
	value, exists := c.Get(userIDKey)
	if !exists {
		return nil
	}
	id, _ := value.(*uuid.UUID)
	return id
}

func GetClaimsFromContext(c *gin.Context) (*token.CustomClaims, error) {
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil, ErrMissingClaims
	}

	claims, ok := value.(*token.CustomClaims)
	if !ok {
		return nil, errors.New("invalid claims type in context")
	}

	return claims, nil
}
