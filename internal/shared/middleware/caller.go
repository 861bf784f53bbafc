package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	sharederrors "github.com/brandcraft/server/internal/shared/errors"
	"github.com/brandcraft/server/internal/utils/requestctx"
)

const (
	// CallerIDHeader identifies the billed caller.
	CallerIDHeader = "X-Caller-ID"
	// CallerIDKey is the context key for the caller id.
	CallerIDKey = "caller_id"
	// AdminTokenHeader carries the operator token for administrative routes.
	AdminTokenHeader = "X-Admin-Token"
)

// RequireCaller rejects requests without a caller id.
func RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID := c.GetHeader(CallerIDHeader)
		if callerID == "" {
			appErr := sharederrors.Unauthorized(CallerIDHeader + " header is required")
			c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
			return
		}
		c.Set(CallerIDKey, callerID)
		c.Request = c.Request.WithContext(requestctx.WithCallerID(c.Request.Context(), callerID))
		c.Next()
	}
}

// GetCallerID returns the caller id set by RequireCaller.
func GetCallerID(c *gin.Context) string {
	return c.GetString(CallerIDKey)
}

// RequireAdmin guards administrative routes with a static token.
// An empty token disables the routes entirely.
func RequireAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, sharederrors.Forbidden("admin routes are disabled").ToResponse())
			return
		}
		got := c.GetHeader(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, sharederrors.Forbidden("").ToResponse())
			return
		}
		c.Next()
	}
}
