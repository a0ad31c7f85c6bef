package handler

import (
	"strconv"

	"github.com/bitfantasy/approveflow/internal/model/entity"
	"github.com/bitfantasy/approveflow/internal/service"
	"github.com/gin-gonic/gin"
)

// TaskHandler 审批任务处理器
type TaskHandler struct {
	svc *service.ApprovalService
}

// NewTaskHandler 创建审批任务处理器
func NewTaskHandler(svc *service.ApprovalService) *TaskHandler {
	return &TaskHandler{svc: svc}
}

// completeTaskBody 完成任务请求体
type completeTaskBody struct {
	Status  entity.ApprovalStatus `json:"status" binding:"required"`
	Comment string                `json:"comment"`
}

// Complete 完成审批任务
// POST /api/v1/tasks/:id/complete
func (h *TaskHandler) Complete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "Invalid task id")
		return
	}

	var body completeTaskBody
	if err := c.ShouldBindJSON(&body); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	req := service.CompleteTaskRequest{
		ID:      id,
		Status:  body.Status,
		Comment: body.Comment,
	}
	if err := h.svc.CompleteTask(c.Request.Context(), GetActor(c), req); err != nil {
		HandleError(c, err)
		return
	}

	Success(c, gin.H{"message": "Task completed successfully"})
}

// ListUncompleted 获取本人的待办任务列表
// GET /api/v1/tasks/uncompleted
func (h *TaskHandler) ListUncompleted(c *gin.Context) {
	tasks, err := h.svc.ListTasks(c.Request.Context(), GetActor(c),
		[]entity.ApprovalStatus{entity.ApprovalStatusSubmitted})
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": tasks})
}

// ListCompleted 获取本人的已办任务列表
// GET /api/v1/tasks/completed
func (h *TaskHandler) ListCompleted(c *gin.Context) {
	tasks, err := h.svc.ListTasks(c.Request.Context(), GetActor(c),
		[]entity.ApprovalStatus{entity.ApprovalStatusApproved, entity.ApprovalStatusRejected})
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": tasks})
}

// CountUncompleted 统计本人的待办任务数
// GET /api/v1/tasks/uncompleted/count
func (h *TaskHandler) CountUncompleted(c *gin.Context) {
	count, err := h.svc.CountUncompletedTasks(c.Request.Context(), GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"count": count})
}
