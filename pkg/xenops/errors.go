package xenops

import "errors"

// 控制代理错误种类
const (
	KindCancelled     = "Cancelled"
	KindInternalError = "Internal_error"

	// MsgEndOfFile 客户机迁移中途重启时，代理读到断流
	MsgEndOfFile = "End_of_file"
)

// Error 控制代理返回的类型化错误
type Error struct {
	Kind          string `json:"kind"`
	Msg           string `json:"msg"`
	UserCancelled bool   `json:"user_cancelled,omitempty"` // 仅 Cancelled 有意义
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return "xenops: " + e.Kind
	}
	return "xenops: " + e.Kind + ": " + e.Msg
}

// IsCancelled 代理侧取消（含用户取消）
func IsCancelled(err error) bool {
	var xe *Error
	return errors.As(err, &xe) && xe.Kind == KindCancelled
}

// IsUserCancelled 用户主动取消，不允许重试
func IsUserCancelled(err error) bool {
	var xe *Error
	return errors.As(err, &xe) && xe.Kind == KindCancelled && xe.UserCancelled
}

// IsTransientReboot 客户机在迁移中途重启的两种表征：
// 非用户取消的 Cancelled，或 Internal_error("End_of_file")
func IsTransientReboot(err error) bool {
	var xe *Error
	if !errors.As(err, &xe) {
		return false
	}
	if xe.Kind == KindCancelled && !xe.UserCancelled {
		return true
	}
	return xe.Kind == KindInternalError && xe.Msg == MsgEndOfFile
}
