package delivery

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"
)

// MailgunSender 通过 Mailgun API 发送邮件
type MailgunSender struct {
	client *mailgun.MailgunImpl
}

// NewMailgunSender 创建 Mailgun 发送器
//
// apiBase 留空时使用 SDK 默认地址；欧洲区账号需要设置为 https://api.eu.mailgun.net/v3。
func NewMailgunSender(domain, apiKey, apiBase string) *MailgunSender {
	client := mailgun.NewMailgun(domain, apiKey)
	if apiBase != "" {
		client.SetAPIBase(apiBase)
	}
	return &MailgunSender{client: client}
}

// Send 发送邮件
func (s *MailgunSender) Send(ctx context.Context, msg *Message) error {
	message := s.client.NewMessage(msg.From, msg.Subject, msg.Text, msg.To)
	message.SetHtml(msg.HTML)
	if msg.ReplyTo != "" {
		message.SetReplyTo(msg.ReplyTo)
	}
	for _, a := range msg.Attachments {
		message.AddBufferAttachment(a.Filename, a.Content)
	}

	if _, _, err := s.client.Send(ctx, message); err != nil {
		return fmt.Errorf("mailgun: %w", err)
	}
	return nil
}
