package creativehttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brandcraft/server/internal/model"
	"github.com/brandcraft/server/internal/port/outbound"
	sharederrors "github.com/brandcraft/server/internal/shared/errors"
	"github.com/brandcraft/server/internal/shared/middleware"
	"github.com/brandcraft/server/internal/shared/response"
)

// DispatchService runs tasks and reports their results.
type DispatchService interface {
	Dispatch(ctx context.Context, task *model.Task) (*model.DispatchResult, error)
	Lookup(dispatchID string) (*model.DispatchResult, error)
	Validate(text string) model.ValidationResult
}

// BalanceService reads and tops up caller credits.
type BalanceService interface {
	Balance(ctx context.Context, callerID string) (int64, error)
	TopUp(ctx context.Context, callerID string, credits int64) (int64, error)
}

// DispatchRequest is the body of POST /v1/dispatch.
type DispatchRequest struct {
	Kind        string         `json:"kind" binding:"required"`
	BudgetTier  string         `json:"budget_tier" binding:"required"`
	Priority    string         `json:"priority"`
	RiskProfile string         `json:"risk_profile"`
	Cacheable   *bool          `json:"cacheable"`
	Retryable   bool           `json:"retryable"`
	TimeoutMS   int64          `json:"timeout_ms"`
	Params      map[string]any `json:"params"`
}

// ValidateRequest is the body of POST /v1/validate.
type ValidateRequest struct {
	Text string `json:"text"`
}

// TopUpRequest is the body of POST /v1/admin/balances/:caller_id/topup.
type TopUpRequest struct {
	Credits int64 `json:"credits" binding:"required,gt=0"`
}

// BalanceResponse reports a caller's credits.
type BalanceResponse struct {
	CallerID string `json:"caller_id"`
	Credits  int64  `json:"credits"`
}

// Handler serves the dispatch API.
type Handler struct {
	dispatcher DispatchService
	balances   BalanceService
}

// NewHandler creates a new handler.
func NewHandler(dispatcher DispatchService, balances BalanceService) *Handler {
	return &Handler{dispatcher: dispatcher, balances: balances}
}

// RegisterRoutes registers caller routes. Every route requires X-Caller-ID.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, dispatchMiddleware ...gin.HandlerFunc) {
	v1 := r.Group("/v1")
	v1.Use(middleware.RequireCaller())
	{
		chain := make([]gin.HandlerFunc, 0, len(dispatchMiddleware)+1)
		for _, mw := range dispatchMiddleware {
			if mw != nil {
				chain = append(chain, mw)
			}
		}
		v1.POST("/dispatch", append(chain, h.Dispatch)...)
		v1.GET("/dispatches/:id", h.GetDispatch)
		v1.GET("/balance", h.GetBalance)
		v1.POST("/validate", h.Validate)
	}
}

// RegisterAdminRoutes registers operator routes guarded by the admin token.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup, adminToken string) {
	admin := r.Group("/v1/admin")
	admin.Use(middleware.RequireAdmin(adminToken))
	{
		admin.POST("/balances/:caller_id/topup", h.TopUp)
		admin.GET("/balances/:caller_id", h.GetCallerBalance)
	}
}

// Dispatch handles POST /v1/dispatch.
func (h *Handler) Dispatch(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, sharederrors.BadRequest(err.Error()))
		return
	}

	task := req.toTask(middleware.GetCallerID(c))
	result, err := h.dispatcher.Dispatch(c.Request.Context(), task)
	if err != nil {
		handleError(c, err, result)
		return
	}

	if result.Status == model.DispatchStatusQueued {
		c.Header("Location", "/v1/dispatches/"+result.DispatchID)
		response.Accepted(c, result)
		return
	}
	response.OK(c, result)
}

// GetDispatch handles GET /v1/dispatches/:id. Callers only see their own dispatches.
func (h *Handler) GetDispatch(c *gin.Context) {
	result, err := h.dispatcher.Lookup(c.Param("id"))
	if err != nil {
		handleError(c, err, nil)
		return
	}
	if result.CallerID != middleware.GetCallerID(c) {
		response.Error(c, sharederrors.NotFound("dispatch"))
		return
	}
	response.OK(c, result)
}

// GetBalance handles GET /v1/balance.
func (h *Handler) GetBalance(c *gin.Context) {
	h.writeBalance(c, middleware.GetCallerID(c))
}

// GetCallerBalance handles GET /v1/admin/balances/:caller_id.
func (h *Handler) GetCallerBalance(c *gin.Context) {
	h.writeBalance(c, c.Param("caller_id"))
}

func (h *Handler) writeBalance(c *gin.Context, callerID string) {
	credits, err := h.balances.Balance(c.Request.Context(), callerID)
	if err != nil && !isUnknownCaller(err) {
		handleError(c, err, nil)
		return
	}
	response.OK(c, BalanceResponse{CallerID: callerID, Credits: credits})
}

// TopUp handles POST /v1/admin/balances/:caller_id/topup.
func (h *Handler) TopUp(c *gin.Context) {
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, sharederrors.BadRequest(err.Error()))
		return
	}

	callerID := c.Param("caller_id")
	credits, err := h.balances.TopUp(c.Request.Context(), callerID, req.Credits)
	if err != nil {
		handleError(c, err, nil)
		return
	}
	response.OK(c, BalanceResponse{CallerID: callerID, Credits: credits})
}

// Validate handles POST /v1/validate.
func (h *Handler) Validate(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, sharederrors.BadRequest(err.Error()))
		return
	}
	response.OK(c, h.dispatcher.Validate(req.Text))
}

func (r *DispatchRequest) toTask(callerID string) *model.Task {
	priority := model.Priority(r.Priority)
	if priority == "" {
		priority = model.PriorityNormal
	}
	return &model.Task{
		CallerID:    callerID,
		Kind:        r.Kind,
		BudgetTier:  model.BudgetTier(r.BudgetTier),
		Priority:    priority,
		RiskProfile: model.RiskProfile(r.RiskProfile),
		Cacheable:   r.Cacheable,
		Retryable:   r.Retryable,
		Timeout:     time.Duration(r.TimeoutMS) * time.Millisecond,
		Params:      r.Params,
	}
}

func isUnknownCaller(err error) bool {
	return errors.Is(err, outbound.ErrCallerNotFound)
}

// Health handles GET /healthz.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
