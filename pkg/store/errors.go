package store

import "errors"

// Store errors
var (
	// ErrNotFound 未找到
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput 无效输入
	ErrInvalidInput = errors.New("invalid input")
	// ErrClosed 存储已关闭
	ErrClosed = errors.New("store closed")
)
