package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aymerick/raymond"

	"leadintake/backend/internal/config"
	"leadintake/backend/internal/domain"
)

// ErrNoRecipient 咨询类型没有路由且未配置默认收件人
var ErrNoRecipient = errors.New("no recipient configured for enquiry")

// Message 待发送的通知邮件
type Message struct {
	From        string
	To          string
	ReplyTo     string
	Subject     string
	HTML        string
	Text        string
	Attachments []domain.Attachment
}

// Sender 邮件服务提供商
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// leadTemplate 通知邮件正文；{{value}} 会被自动转义
var leadTemplate = raymond.MustParse(`<div style="font-family:Arial,Helvetica,sans-serif;font-size:14px;color:#1f2933">
<h2 style="margin:0 0 16px;font-size:18px">New {{enquiry}} enquiry</h2>
<table cellpadding="6" cellspacing="0" style="border-collapse:collapse">
{{#each rows}}<tr><td style="font-weight:bold;vertical-align:top;white-space:nowrap">{{label}}</td><td style="white-space:pre-wrap">{{value}}</td></tr>
{{/each}}</table>
</div>`)

// EmailChannel 通过邮件服务提供商发送线索通知
type EmailChannel struct {
	from      string
	defaultTo string
	routes    map[string]string
	sender    Sender
}

// NewEmailChannel 创建邮件通道；sender 为 nil 表示未配置
func NewEmailChannel(cfg config.EmailConfig, sender Sender) *EmailChannel {
	return &EmailChannel{
		from:      cfg.From,
		defaultTo: cfg.DefaultTo,
		routes:    cfg.Routes,
		sender:    sender,
	}
}

// NewSender 按 email.provider 创建邮件服务提供商，缺少凭证时返回 nil
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.Configured() {
		return nil
	}
	switch cfg.Provider {
	case "mailgun":
		return NewMailgunSender(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunAPIBase)
	case "smtp":
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPStartTLS)
	default:
		return NewResendSender(cfg.ResendEndpoint, cfg.ResendAPIKey, newHTTPClient())
	}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

func (c *EmailChannel) Enabled() bool { return c.sender != nil }

// Recipient 按小写咨询类型选择收件人，未匹配时使用默认收件人
func (c *EmailChannel) Recipient(lead *domain.Lead) string {
	if to, ok := c.routes[lead.EnquiryKey()]; ok && to != "" {
		return to
	}
	return c.defaultTo
}

// Deliver 渲染并发送通知邮件
func (c *EmailChannel) Deliver(ctx context.Context, lead *domain.Lead) error {
	msg, err := c.Compose(lead)
	if err != nil {
		return err
	}
	return c.sender.Send(ctx, msg)
}

// Compose 生成通知邮件
func (c *EmailChannel) Compose(lead *domain.Lead) (*Message, error) {
	to := c.Recipient(lead)
	if to == "" {
		return nil, ErrNoRecipient
	}

	rows := leadRows(lead)
	html, err := leadTemplate.Exec(map[string]any{
		"enquiry": lead.EnquiryLabel(),
		"rows":    rows,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render email: %w", err)
	}

	var text strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&text, "%s: %s\n", row["label"], row["value"])
	}

	return &Message{
		From:        c.from,
		To:          to,
		ReplyTo:     lead.Email,
		Subject:     fmt.Sprintf("New %s enquiry from %s", lead.EnquiryLabel(), lead.Name),
		HTML:        html,
		Text:        text.String(),
		Attachments: lead.Attachments,
	}, nil
}

// leadRows 按固定顺序列出非空字段
func leadRows(lead *domain.Lead) []map[string]string {
	ordered := [][2]string{
		{"Name", lead.Name},
		{"Email", lead.Email},
		{"Company", lead.Company},
		{"Suburb", lead.Suburb},
		{"Enquiry type", lead.EnquiryType},
		{"Size", lead.SizeSummary()},
		{"Style", lead.Style},
		{"Roof", lead.Roof},
		{"Add-ons", lead.Addons},
		{"Attachments", lead.AttachmentsSummary},
		{"Message", lead.Message},
	}

	rows := make([]map[string]string, 0, len(ordered))
	for _, kv := range ordered {
		if kv[1] == "" {
			continue
		}
		rows = append(rows, map[string]string{"label": kv[0], "value": kv[1]})
	}
	return rows
}

// ResendSender 通过 Resend HTTP API 发送邮件
type ResendSender struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewResendSender 创建 Resend 发送器
func NewResendSender(endpoint, apiKey string, client *http.Client) *ResendSender {
	return &ResendSender{endpoint: endpoint, apiKey: apiKey, client: client}
}

type resendAttachment struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"` // encoding/json 以 base64 编码 []byte
}

type resendRequest struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	ReplyTo     string             `json:"reply_to,omitempty"`
	Subject     string             `json:"subject"`
	HTML        string             `json:"html"`
	Text        string             `json:"text,omitempty"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

// Send 发送邮件
func (s *ResendSender) Send(ctx context.Context, msg *Message) error {
	payload := resendRequest{
		From:    msg.From,
		To:      []string{msg.To},
		ReplyTo: msg.ReplyTo,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	}
	for _, a := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, resendAttachment{Filename: a.Filename, Content: a.Content})
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.apiKey)
	return postJSON(ctx, s.client, s.endpoint, payload, header)
}
