package handler

import (
	"fmt"
	"io"
	"strconv"

	"github.com/bitfantasy/approveflow/internal/service"
	"github.com/gin-gonic/gin"
)

// UserFileHandler 用户文件处理器
type UserFileHandler struct {
	svc *service.UserFileService
}

// NewUserFileHandler 创建用户文件处理器
func NewUserFileHandler(svc *service.UserFileService) *UserFileHandler {
	return &UserFileHandler{svc: svc}
}

// Upload 上传文件（支持多文件）
// POST /api/v1/files
func (h *UserFileHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		BadRequest(c, "Failed to parse multipart form: "+err.Error())
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["file"]
	}
	if len(headers) == 0 {
		BadRequest(c, "At least one file is required")
		return
	}

	var uploads []service.FileUpload
	var closers []io.Closer
	defer func() {
		for _, closer := range closers {
			closer.Close()
		}
	}()

	for _, header := range headers {
		src, err := header.Open()
		if err != nil {
			InternalError(c, "Failed to read uploaded file: "+err.Error())
			return
		}
		closers = append(closers, src)
		uploads = append(uploads, service.FileUpload{
			Name:        header.Filename,
			Size:        header.Size,
			ContentType: header.Header.Get("Content-Type"),
			Reader:      src,
		})
	}

	files, err := h.svc.Upload(c.Request.Context(), GetActor(c), uploads)
	if err != nil {
		HandleError(c, err)
		return
	}

	Created(c, gin.H{"items": files})
}

// List 获取本人的文件列表
// GET /api/v1/files
func (h *UserFileHandler) List(c *gin.Context) {
	files, err := h.svc.List(c.Request.Context(), GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"items": files})
}

// Download 下载文件（所有者或相关审批人）
// GET /api/v1/files/:id/download
func (h *UserFileHandler) Download(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "Invalid file id")
		return
	}

	file, rc, err := h.svc.Download(c.Request.Context(), GetActor(c), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Header("Content-Length", strconv.FormatInt(file.Size, 10))
	c.DataFromReader(200, file.Size, "application/octet-stream", rc, nil)
}

// Delete 删除文件（仅所有者）
// DELETE /api/v1/files/:id
func (h *UserFileHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "Invalid file id")
		return
	}

	if err := h.svc.Delete(c.Request.Context(), GetActor(c), id); err != nil {
		HandleError(c, err)
		return
	}

	Success(c, gin.H{"message": "File deleted successfully"})
}
