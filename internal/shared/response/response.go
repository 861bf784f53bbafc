package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	sharederrors "github.com/brandcraft/server/internal/shared/errors"
)

// OK sends a 200 response with data as the body.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Accepted sends a 202 response with data as the body.
func Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, data)
}

// Error sends err as an error envelope. Errors that are not an AppError become 500s.
func Error(c *gin.Context, err error) {
	var appErr *sharederrors.AppError
	if !errors.As(err, &appErr) {
		appErr = sharederrors.Internal("internal error", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
}

// ErrorMapping maps a domain error to an application error.
type ErrorMapping struct {
	Err error
	To  func(err error) *sharederrors.AppError
}

// HandleError sends the first mapping matching err, falling back to Error.
func HandleError(c *gin.Context, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			Error(c, m.To(err))
			return
		}
	}
	Error(c, err)
}
