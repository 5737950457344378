package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"increm-coach/internal/pkg/jwtutil"
	"increm-coach/internal/transport/http/response"
)

const (
	ContextUserIDKey = "user_id"
	ContextRoleKey   = "user_role"
)

// ErrorWriter renders an auth failure; the /api/v1 envelope and the bare
// function-endpoint body differ.
type ErrorWriter func(c *gin.Context, httpStatus int, message string)

func EnvelopeErrors(c *gin.Context, httpStatus int, message string) {
	code := response.CodeUnauthorized
	if httpStatus == http.StatusForbidden {
		code = response.CodeForbidden
	}
	response.Error(c, httpStatus, code, message)
}

func AuthJWT(secret string) gin.HandlerFunc {
	return AuthJWTWith(secret, EnvelopeErrors)
}

func AuthJWTWith(secret string, writeErr ErrorWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			writeErr(c, http.StatusUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			writeErr(c, http.StatusUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			writeErr(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID())
		c.Set(ContextRoleKey, claims.Role)
		c.Next()
	}
}

// RequireRole must run after AuthJWT.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRoleKey) != role {
			EnvelopeErrors(c, http.StatusForbidden, "insufficient role")
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user, if any.
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextUserIDKey)
	return id, id != ""
}
