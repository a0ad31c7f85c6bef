package handler

import (
	"strconv"

	"github.com/bitfantasy/approveflow/internal/service"
	"github.com/gin-gonic/gin"
)

// ApprovalRequestHandler 审批请求处理器
type ApprovalRequestHandler struct {
	svc *service.ApprovalService
}

// NewApprovalRequestHandler 创建审批请求处理器
func NewApprovalRequestHandler(svc *service.ApprovalService) *ApprovalRequestHandler {
	return &ApprovalRequestHandler{svc: svc}
}

// Submit 提交审批请求
// POST /api/v1/requests
func (h *ApprovalRequestHandler) Submit(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	request, err := h.svc.Submit(c.Request.Context(), GetActor(c), req)
	if err != nil {
		HandleError(c, err)
		return
	}

	Created(c, request)
}

// List 获取本人提交的审批请求列表
// GET /api/v1/requests
func (h *ApprovalRequestHandler) List(c *gin.Context) {
	requests, err := h.svc.List(c.Request.Context(), GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": requests})
}

// Delete 删除审批请求（仅作者）
// DELETE /api/v1/requests/:id
func (h *ApprovalRequestHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "Invalid request id")
		return
	}

	if err := h.svc.Delete(c.Request.Context(), GetActor(c), id); err != nil {
		HandleError(c, err)
		return
	}

	Success(c, gin.H{"message": "Approval request deleted successfully"})
}
