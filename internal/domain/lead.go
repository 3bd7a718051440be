package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// 表单字段名
const (
	FieldName        = "name"
	FieldEmail       = "email"
	FieldSuburb      = "suburb"
	FieldCompany     = "company"
	FieldWidth       = "width_m"
	FieldLength      = "length_m"
	FieldHeight      = "height_m"
	FieldStyle       = "style"
	FieldRoof        = "roof"
	FieldAddons      = "addons"
	FieldMessage     = "message"
	FieldEnquiryType = "enquiry_type"
	FieldEventID     = "event_id"
	FieldAttachments = "attachments"

	// 蜜罐字段，正常用户不可见也不会填写
	FieldHoneypot       = "website"
	FieldHoneypotLegacy = "url"
)

// Attachment 随线索上传的附件，只在单次请求内存在，不落盘
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Size 附件字节数
func (a Attachment) Size() int64 {
	return int64(len(a.Content))
}

// ClientContext 提交方的请求上下文，用于限流、审计和转化匹配
type ClientContext struct {
	IP        string
	UserAgent string
	SourceURL string
	FBP       string // _fbp cookie
	FBC       string // _fbc cookie
}

// Lead 清洗后的线索
type Lead struct {
	Name        string
	Email       string
	Suburb      string
	Company     string
	WidthM      string
	LengthM     string
	HeightM     string
	Style       string
	Roof        string
	Addons      string
	Message     string
	EnquiryType string
	EventID     string

	// AttachmentsSummary 已接收附件的文件名列表；没有附件时保留客户端自带的说明
	AttachmentsSummary string
	Attachments        []Attachment

	Client     ClientContext
	ReceivedAt time.Time
}

// EnquiryKey 用于收件人路由的小写咨询类型
func (l *Lead) EnquiryKey() string {
	return strings.ToLower(strings.TrimSpace(l.EnquiryType))
}

// EnquiryLabel 用于邮件主题与通知的咨询类型标签
func (l *Lead) EnquiryLabel() string {
	key := l.EnquiryKey()
	if key == "" {
		return "Website"
	}
	r, size := utf8.DecodeRuneInString(key)
	return string(unicode.ToUpper(r)) + key[size:]
}

// SizeSummary 以 "6.0m W × 4.0m L × 2.7m H" 形式汇总已填写的尺寸
func (l *Lead) SizeSummary() string {
	parts := make([]string, 0, 3)
	if l.WidthM != "" {
		parts = append(parts, fmt.Sprintf("%sm W", l.WidthM))
	}
	if l.LengthM != "" {
		parts = append(parts, fmt.Sprintf("%sm L", l.LengthM))
	}
	if l.HeightM != "" {
		parts = append(parts, fmt.Sprintf("%sm H", l.HeightM))
	}
	return strings.Join(parts, " × ")
}

// Fields 返回完整的清洗后字段表
func (l *Lead) Fields() map[string]string {
	return map[string]string{
		FieldName:        l.Name,
		FieldEmail:       l.Email,
		FieldSuburb:      l.Suburb,
		FieldCompany:     l.Company,
		FieldWidth:       l.WidthM,
		FieldLength:      l.LengthM,
		FieldHeight:      l.HeightM,
		FieldStyle:       l.Style,
		FieldRoof:        l.Roof,
		FieldAddons:      l.Addons,
		FieldMessage:     l.Message,
		FieldEnquiryType: l.EnquiryType,
		FieldEventID:     l.EventID,
		FieldAttachments: l.AttachmentsSummary,
	}
}

// AttachmentBytes 附件总字节数
func (l *Lead) AttachmentBytes() int64 {
	var total int64
	for _, a := range l.Attachments {
		total += a.Size()
	}
	return total
}

// SummarizeAttachments 生成附件摘要，如 "2 files: deck.jpg, plan.pdf"
func SummarizeAttachments(attachments []Attachment) string {
	if len(attachments) == 0 {
		return ""
	}
	names := make([]string, 0, len(attachments))
	for _, a := range attachments {
		names = append(names, a.Filename)
	}
	noun := "files"
	if len(attachments) == 1 {
		noun = "file"
	}
	return fmt.Sprintf("%d %s: %s", len(attachments), noun, strings.Join(names, ", "))
}
