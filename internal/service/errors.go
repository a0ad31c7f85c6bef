package service

import (
	"errors"
	"fmt"
)

// ValidationError 业务校验失败：配额超限、文件归属不符、任务重复完成等。
// 这类错误同步中止整个操作，事务回滚，不留部分写入。
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError 创建业务校验错误
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidationError 判断是否业务校验错误
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
