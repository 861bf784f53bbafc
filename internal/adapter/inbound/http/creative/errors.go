package creativehttp

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/brandcraft/server/internal/domain/ledger"
	"github.com/brandcraft/server/internal/domain/orchestrator"
	"github.com/brandcraft/server/internal/model"
	sharederrors "github.com/brandcraft/server/internal/shared/errors"
)

// DispatchErrorResponse carries the failed dispatch next to the error so callers keep its id and trace.
type DispatchErrorResponse struct {
	Error    sharederrors.ErrorDetail `json:"error"`
	Dispatch *model.DispatchResult    `json:"dispatch,omitempty"`
}

// toAppError maps domain errors to application errors.
func toAppError(err error, retryable bool) *sharederrors.AppError {
	var appErr *sharederrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	// Settlement failures wrap ledger errors and must be matched first.
	switch {
	case errors.Is(err, orchestrator.ErrSettlementFailed):
		return sharederrors.SettlementFailed("result produced but could not be billed", err)
	case errors.Is(err, orchestrator.ErrInvalidTask), errors.Is(err, ledger.ErrUnknownTier):
		return sharederrors.InvalidTask(err.Error())
	case errors.Is(err, ledger.ErrInvalidAmount):
		return sharederrors.BadRequest(err.Error())
	case errors.Is(err, ledger.ErrInsufficientCredits):
		return sharederrors.InsufficientCredits("")
	case errors.Is(err, orchestrator.ErrTimeout):
		return sharederrors.Timeout(err.Error(), retryable)
	case errors.Is(err, orchestrator.ErrGenerationFailed):
		return sharederrors.GenerationFailed(err.Error(), retryable)
	case errors.Is(err, ledger.ErrBalanceUnavailable):
		return sharederrors.Unavailable("balance store unavailable")
	case errors.Is(err, orchestrator.ErrDispatchNotFound):
		return sharederrors.NotFound("dispatch")
	default:
		return sharederrors.Internal("internal error", err)
	}
}

// handleError writes err, attaching the failed dispatch when there is one.
func handleError(c *gin.Context, err error, result *model.DispatchResult) {
	retryable := result != nil && result.Retryable
	appErr := toAppError(err, retryable)
	_ = c.Error(err)

	c.AbortWithStatusJSON(appErr.StatusCode, DispatchErrorResponse{
		Error:    appErr.ToResponse().Error,
		Dispatch: result,
	})
}
