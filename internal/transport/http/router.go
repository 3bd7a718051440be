package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"leadintake/backend/internal/config"
	"leadintake/backend/internal/health"
	"leadintake/backend/internal/intake"
	"leadintake/backend/internal/middleware"
	"leadintake/backend/internal/monitoring"
	"leadintake/backend/internal/security"
	"leadintake/backend/internal/service"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config      *config.Config
	LeadService *service.LeadService
	Extractor   *intake.Extractor
	OriginGuard *security.OriginGuard
	Health      *health.HealthChecker
	Metrics     *monitoring.Metrics
	Logger      *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger, deps.Metrics))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(deps.Config.Intake.MaxBodyBytes))
	router.Use(middleware.HTTPMetrics(deps.Metrics))

	// 来源校验必须在 CORS 之前
	router.Use(middleware.OriginGuard(deps.OriginGuard, deps.Logger, deps.Metrics))
	router.Use(gincors.New(gincors.Config{
		AllowOriginFunc: deps.OriginGuard.Allow,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:   []string{"Retry-After"},
		MaxAge:          12 * time.Hour,
	}))

	leadHandler := NewLeadHandler(deps.Extractor, deps.LeadService, deps.Config.RateLimit.Window, deps.Metrics, deps.Logger)

	router.POST("/api/contact", leadHandler.Submit)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
	router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	router.NoRoute(func(c *gin.Context) {
		Fail(c, http.StatusNotFound, MsgNotFound)
	})

	return router
}
