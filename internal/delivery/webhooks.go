package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"leadintake/backend/internal/config"
	"leadintake/backend/internal/domain"
	"leadintake/backend/internal/ratelimit"
)

// ChatChannel 向聊天 Webhook 推送精简摘要
type ChatChannel struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewChatChannel 创建聊天通知通道
//
// 聊天平台对 Webhook 有频率限制，两次推送之间至少间隔 chat.min_interval。
func NewChatChannel(cfg config.ChatConfig, client *http.Client) *ChatChannel {
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &ChatChannel{
		url:     cfg.WebhookURL,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (c *ChatChannel) Name() string { return ChannelChat }

func (c *ChatChannel) Enabled() bool { return c.url != "" }

// Deliver 推送 {"text": ...}
func (c *ChatChannel) Deliver(ctx context.Context, lead *domain.Lead) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("chat pacing: %w", err)
	}
	return postJSON(ctx, c.client, c.url, map[string]string{"text": ChatSummary(lead)}, nil)
}

// ChatSummary 生成聊天通知文本，空字段不输出
func ChatSummary(lead *domain.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New %s enquiry\n", lead.EnquiryLabel())

	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	line("Name", lead.Name)
	line("Email", lead.Email)
	line("Company", lead.Company)
	line("Suburb", lead.Suburb)
	line("Size", lead.SizeSummary())
	line("Style", lead.Style)
	line("Roof", lead.Roof)
	line("Add-ons", lead.Addons)
	line("Attachments", lead.AttachmentsSummary)
	if lead.Message != "" {
		fmt.Fprintf(&b, "\n%s", lead.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

// SheetChannel 把完整字段追加到表格/CRM Webhook
type SheetChannel struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewSheetChannel 创建表格通道
func NewSheetChannel(cfg config.SheetConfig, client *http.Client) *SheetChannel {
	return &SheetChannel{url: cfg.WebhookURL, client: client, now: time.Now}
}

func (c *SheetChannel) Name() string { return ChannelSheet }

func (c *SheetChannel) Enabled() bool { return c.url != "" }

// Deliver 发送字段表以及 timestamp、ip
func (c *SheetChannel) Deliver(ctx context.Context, lead *domain.Lead) error {
	row := lead.Fields()
	row["timestamp"] = c.now().UTC().Format(time.RFC3339)
	row["ip"] = lead.Client.IP
	return postJSON(ctx, c.client, c.url, row, nil)
}

// ConversionChannel 服务端转化事件（Meta Conversions API）
type ConversionChannel struct {
	cfg    config.ConversionConfig
	client *http.Client
	now    func() time.Time
}

// NewConversionChannel 创建转化事件通道
func NewConversionChannel(cfg config.ConversionConfig, client *http.Client) *ConversionChannel {
	return &ConversionChannel{cfg: cfg, client: client, now: time.Now}
}

func (c *ConversionChannel) Name() string { return ChannelConversion }

func (c *ConversionChannel) Enabled() bool { return c.cfg.Configured() }

type conversionUserData struct {
	Email           []string `json:"em"`
	ClientIP        string   `json:"client_ip_address,omitempty"`
	ClientUserAgent string   `json:"client_user_agent,omitempty"`
	FBP             string   `json:"fbp,omitempty"`
	FBC             string   `json:"fbc,omitempty"`
}

type conversionEvent struct {
	EventName      string             `json:"event_name"`
	EventTime      int64              `json:"event_time"`
	EventID        string             `json:"event_id"`
	ActionSource   string             `json:"action_source"`
	EventSourceURL string             `json:"event_source_url,omitempty"`
	UserData       conversionUserData `json:"user_data"`
	CustomData     map[string]string  `json:"custom_data"`
}

type conversionRequest struct {
	Data          []conversionEvent `json:"data"`
	TestEventCode string            `json:"test_event_code,omitempty"`
}

// Deliver 发送 Lead 事件；event_id 与浏览器端像素事件相同，用于去重
func (c *ConversionChannel) Deliver(ctx context.Context, lead *domain.Lead) error {
	endpoint := fmt.Sprintf("%s/%s/%s/events?access_token=%s",
		c.cfg.Endpoint, c.cfg.APIVersion, url.PathEscape(c.cfg.PixelID), url.QueryEscape(c.cfg.AccessToken))

	return postJSON(ctx, c.client, endpoint, c.event(lead), nil)
}

func (c *ConversionChannel) event(lead *domain.Lead) conversionRequest {
	user := conversionUserData{
		Email:           []string{HashEmail(lead.Email)},
		ClientUserAgent: lead.Client.UserAgent,
		FBP:             lead.Client.FBP,
		FBC:             lead.Client.FBC,
	}
	if lead.Client.IP != ratelimit.UnknownClient {
		user.ClientIP = lead.Client.IP
	}

	return conversionRequest{
		Data: []conversionEvent{{
			EventName:      "Lead",
			EventTime:      c.now().Unix(),
			EventID:        lead.EventID,
			ActionSource:   "website",
			EventSourceURL: lead.Client.SourceURL,
			UserData:       user,
			CustomData:     map[string]string{"content_name": lead.EnquiryLabel() + " enquiry"},
		}},
		TestEventCode: c.cfg.TestEventCode,
	}
}

// HashEmail 规范化（去空白、小写）后取 SHA-256 十六进制
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}
