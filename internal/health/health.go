package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 单个检查的超时时间
const checkTimeout = 2 * time.Second

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
//
// rdb 为 nil 表示未使用 Redis 限流，不注册 Redis 就绪检查。
func NewHealthChecker(rdb goredis.UniversalClient, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		logger: logger,
	}

	// goroutine 泄漏检查
	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(1000))

	if rdb != nil {
		hc.health.AddReadinessCheck("redis", healthcheck.Timeout(RedisHealthCheck(rdb), checkTimeout))
	}

	return hc
}

// Handler 返回健康检查处理器（/live 与 /ready）
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查；失败时记录日志
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	hc.health.ReadyEndpoint(rec, r)
	if rec.status != http.StatusOK {
		hc.logger.Warn("就绪检查失败", zap.Int("status", rec.status))
	}
}

// RedisHealthCheck Redis 健康检查
func RedisHealthCheck(rdb goredis.UniversalClient) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		return rdb.Ping(ctx).Err()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
