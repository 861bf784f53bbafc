package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	sharederrors "github.com/brandcraft/server/internal/shared/errors"
	"github.com/brandcraft/server/internal/utils/requestctx"
)

// Recovery turns a handler panic into a 500 error envelope and logs the stack.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			ctx := c.Request.Context()
			log.Error("panic recovered",
				zap.Any("panic", rec),
				zap.String("route", c.FullPath()),
				zap.String("request_id", requestctx.RequestID(ctx)),
				zap.String("caller_id", requestctx.CallerID(ctx)),
				zap.ByteString("stack", debug.Stack()),
			)

			appErr := sharederrors.Internal("internal server error", fmt.Errorf("panic: %v", rec))
			_ = c.Error(appErr)
			c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
		}()
		c.Next()
	}
}
