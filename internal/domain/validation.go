package domain

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// 校验相关的错误定义
var (
	ErrMissingRequired = errors.New("name and email are required")
	ErrInvalidEmail    = errors.New("invalid email format")
)

// 宽松的 "local@domain.tld" 形式
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmail 检查邮箱是否符合 local@domain.tld 形式
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IsHoneypotTripped 蜜罐字段（或其旧别名）非空即视为机器提交
func IsHoneypotTripped(raw map[string]string) bool {
	return strings.TrimSpace(raw[FieldHoneypot]) != "" ||
		strings.TrimSpace(raw[FieldHoneypotLegacy]) != ""
}

// BuildLead 从原始字段表构造清洗后的线索（不含校验）
func BuildLead(raw map[string]string) *Lead {
	line := func(key string) string {
		return SanitizeLine(raw[key], MaxLineLength)
	}

	return &Lead{
		Name:               line(FieldName),
		Email:              line(FieldEmail),
		Suburb:             line(FieldSuburb),
		Company:            line(FieldCompany),
		WidthM:             line(FieldWidth),
		LengthM:            line(FieldLength),
		HeightM:            line(FieldHeight),
		Style:              line(FieldStyle),
		Roof:               line(FieldRoof),
		Addons:             line(FieldAddons),
		EnquiryType:        line(FieldEnquiryType),
		AttachmentsSummary: line(FieldAttachments),
		EventID:            SanitizeLine(raw[FieldEventID], MaxEventIDLength),
		Message:            SanitizeText(raw[FieldMessage], MaxMessageLength),
	}
}

// Validate 检查必填项与邮箱格式
func (l *Lead) Validate() error {
	if l.Name == "" || l.Email == "" {
		return ErrMissingRequired
	}
	if !ValidateEmail(l.Email) {
		return ErrInvalidEmail
	}
	return nil
}

// EnsureEventID 客户端未提供去重 ID 时生成一个
func (l *Lead) EnsureEventID() {
	if l.EventID == "" {
		l.EventID = uuid.NewString()
	}
}

// AttachFiles 挂载已接收的附件，并用服务端的文件名列表覆盖附件摘要
func (l *Lead) AttachFiles(attachments []Attachment) {
	if len(attachments) == 0 {
		return
	}
	l.Attachments = attachments
	l.AttachmentsSummary = SanitizeLine(SummarizeAttachments(attachments), MaxLineLength)
}
