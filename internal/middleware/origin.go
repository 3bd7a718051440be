package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"leadintake/backend/internal/monitoring"
	"leadintake/backend/internal/security"
)

// OriginGuard 拒绝来自不可信来源的跨域请求
//
// 必须放在 CORS 中间件之前，被拒绝的来源得到 JSON 403 而不是缺少 CORS 头的响应。
func OriginGuard(guard *security.OriginGuard, log *zap.Logger, metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if guard.Allow(origin) {
			c.Next()
			return
		}

		metrics.RecordSubmission(monitoring.ResultForbidden)
		log.Warn("来源被拒绝",
			zap.String("origin", origin),
			zap.String("path", c.Request.URL.Path),
		)
		Abort(c, http.StatusForbidden, MsgForbidden)
	}
}
