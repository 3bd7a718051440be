package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// SMTPSender 通过 SMTP 中继发送邮件
type SMTPSender struct {
	host     string
	addr     string
	username string
	password string
	startTLS bool
	dialer   net.Dialer
}

// NewSMTPSender 创建 SMTP 发送器；username 为空时不进行认证
//
// startTLS 为 true 时要求中继支持 STARTTLS，握手失败即发送失败。
func NewSMTPSender(host string, port int, username, password string, startTLS bool) *SMTPSender {
	return &SMTPSender{
		host:     host,
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		username: username,
		password: password,
		startTLS: startTLS,
	}
}

// Send 组装 MIME 邮件并发送
//
// ctx 结束时连接被关闭，阻塞在中继上的读写随之返回。
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}

	raw, err := buildMIME(from, to, msg)
	if err != nil {
		return err
	}

	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := s.transmit(conn, from.Address, to.Address, raw); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("smtp: %w", err)
	}
	return nil
}

// transmit 在已建立的连接上完成 STARTTLS、认证与投递
func (s *SMTPSender) transmit(conn net.Conn, from, to string, raw []byte) error {
	var client *gosmtp.Client
	if s.startTLS {
		c, err := gosmtp.NewClientStartTLS(conn, &tls.Config{ServerName: s.host})
		if err != nil {
			return err
		}
		client = c
	} else {
		client = gosmtp.NewClient(conn)
	}
	defer client.Close()

	if s.username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			return errors.New("server doesn't support AUTH")
		}
		if err := client.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return err
		}
	}

	if err := client.SendMail(from, []string{to}, bytes.NewReader(raw)); err != nil {
		return err
	}
	return client.Quit()
}

// buildMIME 生成 multipart/mixed 邮件：正文为 text/plain 与 text/html 两个内联部分，附件以 base64 编码
func buildMIME(from, to *mail.Address, msg *Message) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	if msg.ReplyTo != "" {
		if replyTo, err := mail.ParseAddress(msg.ReplyTo); err == nil {
			h.SetAddressList("Reply-To", []*mail.Address{replyTo})
		}
	}
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create inline part: %w", err)
	}
	for _, body := range []struct {
		contentType string
		content     string
	}{
		{"text/plain", msg.Text},
		{"text/html", msg.HTML},
	} {
		var ih mail.InlineHeader
		ih.SetContentType(body.contentType, map[string]string{"charset": "utf-8"})
		w, err := tw.CreatePart(ih)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s part: %w", body.contentType, err)
		}
		if _, err := io.WriteString(w, body.content); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	for _, a := range msg.Attachments {
		var ah mail.AttachmentHeader
		ah.SetContentType(a.ContentType, nil)
		ah.SetFilename(a.Filename)
		w, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment %q: %w", a.Filename, err)
		}
		if _, err := w.Write(a.Content); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
