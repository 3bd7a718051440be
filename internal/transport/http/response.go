package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"leadintake/backend/internal/middleware"
)

// Response 统一响应结构，与中间件的拒绝响应共用
type Response = middleware.Response

// Success 成功响应（200）
func Success(c *gin.Context) {
	c.JSON(http.StatusOK, Response{OK: true})
}

// Fail 失败响应
func Fail(c *gin.Context, status int, msg string) {
	middleware.Abort(c, status, msg)
}
