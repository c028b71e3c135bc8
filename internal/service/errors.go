package service

import (
	"errors"
	"fmt"
)

// 业务层错误分类，handler 只依据这些哨兵错误决定 HTTP 状态码。
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrGeneration   = errors.New("generation failed")
	ErrPersistence  = errors.New("persistence failure")
	ErrConflict     = errors.New("concurrent update conflict")
	ErrUnauthorized = errors.New("shop authorization failed")
	ErrUpstream     = errors.New("upstream service failure")
)

// GenerationError 表示生成失败，但用户消息已经落库。
// ConversationID 让调用方在失败后仍能定位到这段对话。
type GenerationError struct {
	ConversationID string
	Err            error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for conversation %s: %v", e.ConversationID, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	return []error{ErrGeneration, e.Err}
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
