package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BodySizeLimit 限制请求体大小的中间件
//
// Content-Length 已超限时直接返回 413；未声明长度的请求在读取时由 MaxBytesReader 截断。
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			Abort(c, http.StatusRequestEntityTooLarge, MsgBodyTooLarge)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

		c.Next()
	}
}
