package httptransport

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"leadintake/backend/internal/intake"
	"leadintake/backend/internal/monitoring"
	"leadintake/backend/internal/service"
)

// LeadHandler 处理联系表单提交
type LeadHandler struct {
	extractor  *intake.Extractor
	leads      *service.LeadService
	retryAfter time.Duration
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

// NewLeadHandler 创建表单处理器
//
// retryAfter 为限流窗口长度，用于 429 响应的 Retry-After 头。
func NewLeadHandler(extractor *intake.Extractor, leads *service.LeadService, retryAfter time.Duration, metrics *monitoring.Metrics, logger *zap.Logger) *LeadHandler {
	return &LeadHandler{
		extractor:  extractor,
		leads:      leads,
		retryAfter: retryAfter,
		metrics:    metrics,
		logger:     logger,
	}
}

// Submit 接收线索
// POST /api/contact
func (h *LeadHandler) Submit(c *gin.Context) {
	payload, err := h.extractor.Extract(c.Request)
	if err != nil {
		h.metrics.RecordSubmission(monitoring.ResultBadBody)
		h.logger.Info("请求体解析失败", zap.Error(err))
		h.fail(c, err)
		return
	}

	if len(payload.Skipped) > 0 {
		h.logger.Info("部分附件未被接收", zap.Int("skipped", len(payload.Skipped)))
	}

	_, err = h.leads.Submit(c.Request.Context(), service.SubmitInput{
		Fields:      payload.Fields,
		Attachments: payload.Attachments,
		Client:      intake.ClientContextFrom(c.Request),
	})
	if err != nil {
		if errors.Is(err, service.ErrRateLimited) {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(h.retryAfter.Seconds()))))
		}
		h.fail(c, err)
		return
	}

	Success(c)
}

func (h *LeadHandler) fail(c *gin.Context, err error) {
	status, msg := ResolveError(err)
	if status >= 500 {
		h.logger.Error("提交处理失败", zap.Error(err))
	}
	Fail(c, status, msg)
}
