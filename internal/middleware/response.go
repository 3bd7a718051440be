package middleware

import "github.com/gin-gonic/gin"

// 中间件拒绝请求时的提示
const (
	MsgForbidden     = "Forbidden"
	MsgBodyTooLarge  = "Request body too large"
	MsgInternalPanic = "Internal server error"
)

// Response 统一响应结构
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"` // 面向表单用户的英文提示
}

// Abort 以 {ok:false,error} 结束请求
func Abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{OK: false, Error: msg})
}
