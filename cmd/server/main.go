package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"leadintake/backend/internal/config"
	"leadintake/backend/internal/delivery"
	"leadintake/backend/internal/health"
	"leadintake/backend/internal/intake"
	"leadintake/backend/internal/logger"
	"leadintake/backend/internal/monitoring"
	"leadintake/backend/internal/ratelimit"
	"leadintake/backend/internal/security"
	"leadintake/backend/internal/service"
	httptransport "leadintake/backend/internal/transport/http"
)

// main 启动线索接收服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	auditLog, err := logger.NewAuditLogger(cfg.Audit.File, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize audit logger: %v", err))
	}
	defer func() { _ = auditLog.Sync() }()

	log.Info("starting lead intake server",
		zap.String("environment", cfg.App.Environment),
		zap.String("canonical_domain", cfg.Site.CanonicalDomain),
		zap.String("log_level", cfg.Log.Level),
	)

	metrics := monitoring.NewMetrics()

	// 初始化限流器
	var (
		limiter     ratelimit.Limiter
		memLimiter  *ratelimit.MemoryLimiter
		redisClient goredis.UniversalClient
	)
	switch cfg.RateLimit.Backend {
	case "redis":
		rdb, err := ratelimit.NewRedisClient(cfg.Redis)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize redis: %v", err))
		}
		defer rdb.Close()
		redisClient = rdb
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window)
		log.Info("using redis rate limiter", zap.String("address", cfg.Redis.Address))
	default:
		memLimiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.Max, cfg.RateLimit.Window)
		limiter = memLimiter
		log.Info("using in-memory rate limiter")
	}
	limiter = ratelimit.WithUnknownPolicy(limiter, cfg.RateLimit.UnknownPolicy)

	// 初始化投递通道
	httpClient := &http.Client{Timeout: cfg.Delivery.Timeout}
	channels := []delivery.Channel{
		delivery.NewEmailChannel(cfg.Email, delivery.NewSender(cfg.Email)),
		delivery.NewChatChannel(cfg.Chat, httpClient),
		delivery.NewSheetChannel(cfg.Sheet, httpClient),
		delivery.NewConversionChannel(cfg.Conversion, httpClient),
	}
	for _, ch := range channels {
		log.Info("delivery channel", zap.String("channel", ch.Name()), zap.Bool("enabled", ch.Enabled()))
	}
	dispatcher := delivery.NewDispatcher(channels, cfg.Delivery.Timeout, log.Named("delivery"), metrics)

	leadService := service.NewLeadService(limiter, cfg.RateLimit.Backend, dispatcher, log, auditLog, metrics)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:      cfg,
		LeadService: leadService,
		Extractor:   intake.NewExtractor(cfg.Intake, security.NewAttachmentScreen(), log),
		OriginGuard: security.NewOriginGuard(cfg.Site, cfg.App.Environment),
		Health:      health.NewHealthChecker(redisClient, log),
		Metrics:     metrics,
		Logger:      log,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 定时清理过期限流条目 goroutine
	if memLimiter != nil {
		group.Go(func() error {
			log.Info("starting rate limit sweeper", zap.Duration("interval", cfg.RateLimit.SweepInterval))
			memLimiter.RunSweeper(groupCtx, cfg.RateLimit.SweepInterval, func(removed int) {
				if removed > 0 {
					log.Debug("expired rate limit entries removed",
						zap.Int("count", removed),
						zap.Int("remaining", memLimiter.Len()),
					)
				}
			})
			log.Info("rate limit sweeper stopped")
			return nil
		})
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.Delivery.Timeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("server stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
