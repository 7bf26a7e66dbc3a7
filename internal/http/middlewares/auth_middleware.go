package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/docdirectory/internal/actorctx"
	"github.com/geocoder89/docdirectory/internal/auth"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	jwt        TokenVerifier
	cookieName string
}

func NewAuthMiddleware(jwt TokenVerifier, cookieName string) *AuthMiddleware {
	if cookieName == "" {
		cookieName = "token"
	}
	return &AuthMiddleware{jwt: jwt, cookieName: cookieName}
}

// TokenFromRequest reads the auth cookie, falling back to an Authorization: Bearer header.
func (m *AuthMiddleware) TokenFromRequest(c *gin.Context) string {
	if raw, err := c.Cookie(m.cookieName); err == nil && strings.TrimSpace(raw) != "" {
		return strings.TrimSpace(raw)
	}

	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := m.TokenFromRequest(c)
		if raw == "" {
			abortWithError(c, http.StatusUnauthorized, "unauthenticated", "Access denied. No token provided.")
			return
		}

		claims, err := m.jwt.VerifyAccessToken(c.Request.Context(), raw)
		if err != nil {
			if isCredentialError(err) {
				abortWithError(c, http.StatusForbidden, "invalid_token", "Invalid or expired token.")
				return
			}
			slog.Default().ErrorContext(c.Request.Context(), "token verification failed", "err", err)
			abortWithError(c, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Request = c.Request.WithContext(actorctx.WithUserID(c.Request.Context(), claims.UserID))

		c.Next()
	}
}

func isCredentialError(err error) bool {
	return errors.Is(err, auth.ErrTokenInvalid) ||
		errors.Is(err, auth.ErrTokenExpired) ||
		errors.Is(err, auth.ErrTokenWrongType) ||
		errors.Is(err, auth.ErrTokenRevoked)
}

// Optional helpers so handlers don’t need to know the magic keys.

func UserIDFromContext(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}
