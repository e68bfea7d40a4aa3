package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func HandleSuccess(ctx *gin.Context, data interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	resp := Response{Code: errorCode(ErrSuccess), Message: ErrSuccess.Error(), Data: data}
	ctx.JSON(http.StatusOK, resp)
}

func HandleError(ctx *gin.Context, httpCode int, err error, data interface{}) {
	// 迁移错误带 code+params，原样透传给调用方（跨池引导时对端会还原）
	var me *MigrateError
	if errors.As(err, &me) {
		ctx.JSON(httpCode, Response{Code: CodeMigrateError, Message: me.Code, Data: me.Params})
		return
	}
	if data == nil {
		data = map[string]string{}
	}
	resp := Response{Code: errorCode(err), Message: err.Error(), Data: data}
	ctx.JSON(httpCode, resp)
}

type Error struct {
	Code    int
	Message string
}

var errorCodeMap = map[error]int{}

func newError(code int, msg string) error {
	err := &Error{Code: code, Message: msg}
	errorCodeMap[err] = code
	return err
}

func (e *Error) Error() string {
	return e.Message
}

func errorCode(err error) int {
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	return 500
}
