package call

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voicelink-backend/internal/domain"
	"voicelink-backend/internal/middleware"
	"voicelink-backend/internal/service/call"
	"voicelink-backend/pkg/response"
)

// Handler handles call lifecycle HTTP requests
type Handler struct {
	callService *call.Service
}

// NewHandler creates a new call handler
func NewHandler(callService *call.Service) *Handler {
	return &Handler{callService: callService}
}

// InitiateRequest represents a call initiation request
type InitiateRequest struct {
	ReceiverID string `json:"receiver_id" binding:"required,uuid"`
	CallType   string `json:"call_type" binding:"required,oneof=audio video"`
}

// Initiate starts a new call
// POST /v1/calls
func (h *Handler) Initiate(c *gin.Context) {
	user, ok := middleware.Identity(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	receiverID, err := uuid.Parse(req.ReceiverID)
	if err != nil {
		response.ValidationError(c, "Invalid receiver ID")
		return
	}

	created, err := h.callService.Initiate(c.Request.Context(), user.UserID, user.Username, receiverID, domain.CallType(req.CallType))
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, created)
}

// Accept answers a ringing call
// POST /v1/calls/:id/accept
func (h *Handler) Accept(c *gin.Context) {
	h.applyTransition(c, h.callService.Accept)
}

// Reject declines a ringing call
// POST /v1/calls/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	h.applyTransition(c, h.callService.Reject)
}

// Cancel withdraws an unanswered call
// POST /v1/calls/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	h.applyTransition(c, h.callService.Cancel)
}

// End hangs up an accepted call
// POST /v1/calls/:id/end
func (h *Handler) End(c *gin.Context) {
	user, ok := middleware.Identity(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	if err := h.callService.End(c.Request.Context(), callID, user.UserID); err != nil {
		response.AppError(c, err)
		return
	}

	ended, err := h.callService.GetCall(c.Request.Context(), callID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, ended)
}

// GetCall retrieves a single call record
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	if _, ok := middleware.Identity(c); !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	record, err := h.callService.GetCall(c.Request.Context(), callID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, record)
}

// History lists the user's past calls
// GET /v1/calls/history
func (h *Handler) History(c *gin.Context) {
	h.listCalls(c, h.callService.History)
}

// Active lists the user's calls not yet in a terminal state
// GET /v1/calls/active
func (h *Handler) Active(c *gin.Context) {
	h.listCalls(c, h.callService.Active)
}

// Missed lists calls the user did not answer
// GET /v1/calls/missed
func (h *Handler) Missed(c *gin.Context) {
	h.listCalls(c, h.callService.Missed)
}

func (h *Handler) applyTransition(c *gin.Context, apply func(ctx context.Context, callID, actorID uuid.UUID) (*domain.Call, error)) {
	user, ok := middleware.Identity(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	updated, err := apply(c.Request.Context(), callID, user.UserID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, updated)
}

func (h *Handler) listCalls(c *gin.Context, list func(ctx context.Context, userID uuid.UUID) ([]*domain.Call, error)) {
	user, ok := middleware.Identity(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	calls, err := list(c.Request.Context(), user.UserID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"calls": calls})
}
