package smapi

import (
	"errors"
	"strings"
)

// 存储后端错误码里有三个需要特殊处理的值
const (
	CodeUnimplemented = "Unimplemented"
	CodeUnknownError  = "Unknown_error"
	CodeCancelled     = "Cancelled"
)

// BackendError 存储后端错误，code+params 原样来自驱动
type BackendError struct {
	Code   string   `json:"code"`
	Params []string `json:"params"`
}

func (e *BackendError) Error() string {
	if len(e.Params) == 0 {
		return "backend error: " + e.Code
	}
	return "backend error: " + e.Code + " [" + strings.Join(e.Params, "; ") + "]"
}

// UnimplementedError 远端存储代理没有该操作
type UnimplementedError struct {
	Op string
}

func (e *UnimplementedError) Error() string {
	return "unimplemented in storage backend: " + e.Op
}

func IsUnimplemented(err error) bool {
	var ue *UnimplementedError
	return errors.As(err, &ue)
}

// IsUnknownOperation 旧版本远端对未知操作报 Unknown_error，调用方按不支持处理
func IsUnknownOperation(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code == CodeUnknownError
	}
	return IsUnimplemented(err)
}

func IsCancelled(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Code == CodeCancelled
}

func AsBackendError(err error) (*BackendError, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
