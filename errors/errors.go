// Package errors 提供带错误码的应用错误类型
package errors

import (
	stdErrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误代码类型
type ErrorCode string

const (
	// ErrCodeValidation 调用方契约违反：负数量、未知严重度、非法轮次等，在推导前拒绝
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeConflict   ErrorCode = "CONFLICT"

	// ErrCodeInternal 程序不变量被破坏（如缺陷台账计数与条目不一致），不可恢复
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"

	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeQueue    ErrorCode = "QUEUE_ERROR"
	ErrCodeConfig   ErrorCode = "CONFIG_ERROR"
)

// IError 错误接口
type IError interface {
	error
	Code() ErrorCode
	Message() string
	Cause() error
	Details() map[string]any
	Stack() string
	WithContext(key string, value any) IError
}

// AppError 应用错误实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
	stack   string
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{
		code:    code,
		message: message,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// NewErrorf 使用格式化消息创建错误
func NewErrorf(code ErrorCode, format string, args ...any) IError {
	return &AppError{
		code:    code,
		message: fmt.Sprintf(format, args...),
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// WrapError 包装底层错误；err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		code:    code,
		message: message,
		cause:   err,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *AppError) Code() ErrorCode { return e.code }
func (e *AppError) Message() string { return e.message }
func (e *AppError) Cause() error    { return e.cause }
func (e *AppError) Stack() string   { return e.stack }

// Details 获取错误详情
func (e *AppError) Details() map[string]any {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	return e.details
}

// Is 同码即视为相同，否则继续比较原因链
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}
	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}
	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}
	return false
}

// Unwrap 解包错误（支持 errors.Unwrap）
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithContext 添加上下文，返回副本
func (e *AppError) WithContext(key string, value any) IError {
	details := make(map[string]any, len(e.details)+1)
	for k, v := range e.details {
		details[k] = v
	}
	details[key] = value
	return &AppError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: details,
		stack:   e.stack,
	}
}

// 预定义错误变量，仅用于 errors.Is 比较错误码
var (
	ErrValidation = NewError(ErrCodeValidation, "数据验证失败")
	ErrNotFound   = NewError(ErrCodeNotFound, "资源未找到")
	ErrConflict   = NewError(ErrCodeConflict, "资源冲突")
	ErrInternal   = NewError(ErrCodeInternal, "内部不变量被破坏")
	ErrDatabase   = NewError(ErrCodeDatabase, "存储错误")
)

// Is 透传标准库 errors.Is
func Is(err, target error) bool { return stdErrors.Is(err, target) }

// As 透传标准库 errors.As
func As(err error, target any) bool { return stdErrors.As(err, target) }

// New 透传标准库 errors.New
func New(text string) error { return stdErrors.New(text) }

// IsNotFound 检查是否为未找到错误
func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrCodeNotFound)
}

// IsValidation 检查是否为验证错误
func IsValidation(err error) bool {
	return IsErrorCode(err, ErrCodeValidation)
}

// IsErrorCode 检查错误链上是否存在指定错误码
func IsErrorCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code == code
	}
	return false
}

// GetErrorCode 获取错误代码，非 AppError 视为内部错误
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ErrCodeInternal
}

func captureStack() string {
	const depth = 16
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var builder strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&builder, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return builder.String()
}
