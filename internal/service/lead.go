package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"leadintake/backend/internal/delivery"
	"leadintake/backend/internal/domain"
	"leadintake/backend/internal/monitoring"
	"leadintake/backend/internal/ratelimit"
)

// ErrRateLimited 客户端在窗口内提交次数已达上限
var ErrRateLimited = errors.New("rate limited")

// Dispatcher 把线索投递到各个通道
type Dispatcher interface {
	Dispatch(ctx context.Context, lead *domain.Lead) *delivery.Report
}

// LeadService 封装线索提交流程：蜜罐 → 字段校验 → 限流 → 投递。
type LeadService struct {
	limiter    ratelimit.Limiter
	backend    string
	dispatcher Dispatcher
	logger     *zap.Logger
	audit      *zap.Logger
	metrics    *monitoring.Metrics
	now        func() time.Time
}

// NewLeadService 创建线索服务
//
// 参数:
//   - limiter: 限流器
//   - backend: 限流后端名称，用于日志和指标
//   - dispatcher: 投递调度器
//   - logger: 主日志
//   - audit: 审计日志，邮件未送达时记录完整线索
func NewLeadService(limiter ratelimit.Limiter, backend string, dispatcher Dispatcher, logger, audit *zap.Logger, metrics *monitoring.Metrics) *LeadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = logger.Named("audit")
	}
	return &LeadService{
		limiter:    limiter,
		backend:    backend,
		dispatcher: dispatcher,
		logger:     logger,
		audit:      audit,
		metrics:    metrics,
		now:        time.Now,
	}
}

// SubmitInput 定义提交线索所需的输入。
type SubmitInput struct {
	Fields      map[string]string
	Attachments []domain.Attachment
	Client      domain.ClientContext
}

// SubmitResult 提交结果
type SubmitResult struct {
	// Deflected 蜜罐命中；调用方应返回与正常提交相同的成功响应
	Deflected bool
	Lead      *domain.Lead
	Report    *delivery.Report
}

// Submit 处理一次线索提交
//
// 返回 domain.ErrMissingRequired / domain.ErrInvalidEmail / ErrRateLimited 时请求被拒绝；
// 进入投递阶段后总是成功，单个通道的失败只记录日志。
func (s *LeadService) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	if domain.IsHoneypotTripped(input.Fields) {
		s.metrics.RecordSubmission(monitoring.ResultHoneypot)
		s.logger.Info("蜜罐字段被填写，已静默丢弃", zap.String("ip", input.Client.IP))
		return &SubmitResult{Deflected: true}, nil
	}

	lead := domain.BuildLead(input.Fields)
	if err := lead.Validate(); err != nil {
		s.metrics.RecordSubmission(monitoring.ResultInvalid)
		return nil, err
	}

	if !s.allow(ctx, input.Client.IP) {
		s.metrics.RecordSubmission(monitoring.ResultRateLimited)
		s.metrics.RecordRateLimitBlock(s.backend)
		s.logger.Warn("提交过于频繁", zap.String("ip", input.Client.IP))
		return nil, ErrRateLimited
	}

	lead.EnsureEventID()
	lead.AttachFiles(input.Attachments)
	lead.Client = input.Client
	lead.ReceivedAt = s.now()
	for _, a := range lead.Attachments {
		s.metrics.RecordAttachmentSize(a.Size())
	}

	report := s.dispatcher.Dispatch(ctx, lead)
	if !report.Delivered(delivery.ChannelEmail) {
		s.recordAudit(lead, report)
	}

	s.metrics.RecordSubmission(monitoring.ResultAccepted)
	s.logger.Info("线索已受理",
		zap.String("event_id", lead.EventID),
		zap.String("enquiry_type", lead.EnquiryKey()),
		zap.Int("attachments", len(lead.Attachments)),
	)

	return &SubmitResult{Lead: lead, Report: report}, nil
}

// allow 查询限流器；后端出错时放行
func (s *LeadService) allow(ctx context.Context, key string) bool {
	allowed, err := s.limiter.Allow(ctx, key)
	if err != nil {
		s.metrics.RecordRateLimitError(s.backend)
		s.logger.Error("限流检查失败，放行本次提交",
			zap.String("backend", s.backend),
			zap.Error(err),
		)
		return true
	}
	return allowed
}

// recordAudit 邮件未送达时把完整线索写入审计日志，避免线索丢失
func (s *LeadService) recordAudit(lead *domain.Lead, report *delivery.Report) {
	fields := []zap.Field{
		zap.String("event_id", lead.EventID),
		zap.Time("received_at", lead.ReceivedAt),
		zap.String("ip", lead.Client.IP),
		zap.String("user_agent", lead.Client.UserAgent),
		zap.Any("fields", lead.Fields()),
		zap.Int64("attachment_bytes", lead.AttachmentBytes()),
	}
	if outcome, ok := report.Outcome(delivery.ChannelEmail); ok {
		fields = append(fields, zap.String("email_status", string(outcome.Status)))
		if outcome.Err != nil {
			fields = append(fields, zap.NamedError("email_error", outcome.Err))
		}
	}
	s.audit.Warn("邮件未送达，记录线索", fields...)
}
