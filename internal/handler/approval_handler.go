package handler

import (
	"net/http"

	"opsboard/internal/approval"
	"opsboard/internal/middleware"
	"opsboard/internal/model"
	"opsboard/internal/service"
	"opsboard/pkg/pagination"
	"opsboard/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
}

func NewApprovalHandler(approvalService service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService}
}

// RegisterRoutes mounts the approval commands. Which role may run which command is decided by the
// state machine, so every authenticated role gets through here.
func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup, secret []byte) {
	approvals := router.Group("/api/approvals")
	approvals.Use(middleware.RequireRole(secret))
	{
		approvals.POST("", h.SubmitRequest)
		approvals.GET("", h.ListApprovalRequests)
		approvals.GET("/:id", h.GetApprovalRequest)
		approvals.PUT("/:id/manager-approve", h.ApproveAsManager)
		approvals.PUT("/:id/project-manager-approve", h.ApproveAsProjectManager)
		approvals.PUT("/:id/reject", h.RejectRequest)
	}
}

// SubmitRequest creates a pending approval request on behalf of the caller
func (h *ApprovalHandler) SubmitRequest(c *gin.Context) {
	var req service.SubmitApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	result, err := h.approvalService.Submit(c.Request.Context(), middleware.CurrentActor(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListApprovalRequests returns approval requests from the store. Employees only list their own.
func (h *ApprovalHandler) ListApprovalRequests(c *gin.Context) {
	actor := middleware.CurrentActor(c)
	params := pagination.Parse(c)

	filter := service.ApprovalListFilter{
		Status:      c.Query("status"),
		Kind:        c.Query("kind"),
		RequestedBy: c.Query("requested_by"),
		Page:        params.Page,
		Limit:       params.Limit,
	}
	if actor.Role == model.RoleEmployee {
		filter.RequestedBy = actor.ID
	}

	approvals, total, err := h.approvalService.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.List(http.StatusOK, approvals, total, params))
}

// GetApprovalRequest reads one request straight from the store
func (h *ApprovalHandler) GetApprovalRequest(c *gin.Context) {
	actor := middleware.CurrentActor(c)
	result, err := h.approvalService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if actor.Role == model.RoleEmployee && result.RequestedBy != actor.ID {
		writeError(c, approval.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ApproveAsManager records the first-stage approval
func (h *ApprovalHandler) ApproveAsManager(c *gin.Context) {
	result, err := h.approvalService.ApproveAsManager(c.Request.Context(), c.Param("id"), middleware.CurrentActor(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ApproveAsProjectManager records the second-stage approval
func (h *ApprovalHandler) ApproveAsProjectManager(c *gin.Context) {
	result, err := h.approvalService.ApproveAsProjectManager(c.Request.Context(), c.Param("id"), middleware.CurrentActor(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RejectRequest rejects a pending approval request at its current stage
func (h *ApprovalHandler) RejectRequest(c *gin.Context) {
	var req service.RejectApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Allow empty body, reason is optional
		req.Reason = ""
	}

	result, err := h.approvalService.Reject(c.Request.Context(), c.Param("id"), middleware.CurrentActor(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
