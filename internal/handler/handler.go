package handler

import (
	"errors"

	"github.com/bitfantasy/approveflow/internal/model/entity"
	"github.com/bitfantasy/approveflow/internal/repository"
	"github.com/bitfantasy/approveflow/internal/service"
	"github.com/gin-gonic/gin"
)

// Handlers 处理器集合
type Handlers struct {
	Approval *ApprovalRequestHandler
	Task     *TaskHandler
	UserFile *UserFileHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Approval: NewApprovalRequestHandler(svc.Approval),
		Task:     NewTaskHandler(svc.Approval),
		UserFile: NewUserFileHandler(svc.UserFile),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// HandleError 把服务层错误映射为 HTTP 响应。
// 校验错误 → 400；ErrNotFound → 404（“不存在”和“无权限”是同一个 404）；
// 其余 → 500。
func HandleError(c *gin.Context, err error) {
	if service.IsValidationError(err) {
		BadRequest(c, err.Error())
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		NotFound(c, "Resource not found")
		return
	}
	InternalError(c, err.Error())
}

// GetActor 从上下文获取已认证的操作者
func GetActor(c *gin.Context) entity.Actor {
	if v, exists := c.Get("actor"); exists {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}
