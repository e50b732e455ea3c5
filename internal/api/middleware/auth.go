package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/loomnote/chat-backend/internal/apperr"
	"github.com/loomnote/chat-backend/internal/identity"
)

// Context keys set by the auth middleware.
const (
	PrincipalKey = "principal"
)

// SessionCookie is the fallback cookie consulted when no Authorization
// header is present.
const SessionCookie = "session_token"

// AuthMiddleware authenticates requests through the identity resolver.
type AuthMiddleware struct {
	resolver *identity.Resolver
}

func NewAuthMiddleware(resolver *identity.Resolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// AuthMiddleware resolves the session token and stores the principal in the
// request context. Only authentication failures terminate the request; a
// principal with no tenant memberships passes through so handlers can render
// a tenant-setup advisory instead of a hard failure.
func (m *AuthMiddleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, refreshed, err := m.resolver.Resolve(c.Request.Context(), extractToken(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": apperr.Message(err),
				"code":  apperr.KindOf(err).String(),
			})
			c.Abort()
			return
		}

		// Token rotation is advisory: the client may adopt the refreshed
		// token, the current one stays valid until it expires.
		if refreshed != "" {
			c.Header("X-Refreshed-Token", refreshed)
		}

		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// Principal returns the principal set by the middleware.
func Principal(c *gin.Context) *identity.Principal {
	return c.MustGet(PrincipalKey).(*identity.Principal)
}

// extractToken pulls the session token from the Authorization header or,
// failing that, the session cookie.
func extractToken(c *gin.Context) string {
	tokenString := c.GetHeader("Authorization")
	if tokenString != "" {
		// Remove "Bearer " prefix if present
		if len(tokenString) > 7 && strings.ToLower(tokenString[:7]) == "bearer " {
			tokenString = tokenString[7:]
		}
		return tokenString
	}

	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}
