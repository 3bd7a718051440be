package delivery

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"leadintake/backend/internal/domain"
	"leadintake/backend/internal/monitoring"
)

// 通道名称
const (
	ChannelEmail      = "email"
	ChannelChat       = "chat"
	ChannelSheet      = "sheet"
	ChannelConversion = "conversion"
)

// Status 单个通道的投递结果
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Channel 一个独立的投递通道
type Channel interface {
	Name() string
	// Enabled 通道是否已配置；未配置的通道不会被调用
	Enabled() bool
	Deliver(ctx context.Context, lead *domain.Lead) error
}

// Outcome 单个通道的投递结果
type Outcome struct {
	Channel  string
	Status   Status
	Err      error
	Duration time.Duration
}

// Report 一次扇出投递的汇总
type Report struct {
	Outcomes []Outcome
}

// Outcome 按通道名查找结果
func (r *Report) Outcome(channel string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Channel == channel {
			return o, true
		}
	}
	return Outcome{}, false
}

// Delivered 通道是否投递成功
func (r *Report) Delivered(channel string) bool {
	o, ok := r.Outcome(channel)
	return ok && o.Status == StatusSuccess
}

// Dispatcher 并发地把线索投递到所有通道
//
// 各通道相互独立：任何一个失败、超时或 panic 都不影响其他通道。
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *monitoring.Metrics
}

// NewDispatcher 创建投递调度器
//
// 参数:
//   - channels: 投递通道，结果按此顺序排列
//   - timeout: 单个通道的超时时间
func NewDispatcher(channels []Channel, timeout time.Duration, logger *zap.Logger, metrics *monitoring.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		channels: channels,
		timeout:  timeout,
		logger:   logger,
		metrics:  metrics,
	}
}

// Dispatch 投递到所有已启用的通道并等待全部完成
//
// 客户端断开连接不会取消投递。
func (d *Dispatcher) Dispatch(ctx context.Context, lead *domain.Lead) *Report {
	base := context.WithoutCancel(ctx)
	outcomes := make([]Outcome, len(d.channels))

	var g errgroup.Group
	for i, ch := range d.channels {
		if !ch.Enabled() {
			outcomes[i] = Outcome{Channel: ch.Name(), Status: StatusSkipped}
			d.metrics.RecordDelivery(ch.Name(), string(StatusSkipped), 0)
			continue
		}
		g.Go(func() error {
			outcomes[i] = d.deliver(base, ch, lead)
			return nil
		})
	}
	_ = g.Wait()

	return &Report{Outcomes: outcomes}
}

// deliver 在独立超时内调用单个通道，并把 panic 转为失败
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, lead *domain.Lead) (outcome Outcome) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outcome.Channel = ch.Name()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.metrics.RecordPanic()
			outcome.Err = fmt.Errorf("panic: %v", r)
		}

		outcome.Duration = time.Since(start)
		if outcome.Err != nil {
			outcome.Status = StatusFailed
			d.logger.Warn("线索投递失败",
				zap.String("channel", outcome.Channel),
				zap.String("event_id", lead.EventID),
				zap.Duration("duration", outcome.Duration),
				zap.Error(outcome.Err),
			)
		} else {
			outcome.Status = StatusSuccess
			d.logger.Info("线索投递成功",
				zap.String("channel", outcome.Channel),
				zap.String("event_id", lead.EventID),
				zap.Duration("duration", outcome.Duration),
			)
		}
		d.metrics.RecordDelivery(outcome.Channel, string(outcome.Status), outcome.Duration)
	}()

	outcome.Err = ch.Deliver(ctx, lead)
	return outcome
}
