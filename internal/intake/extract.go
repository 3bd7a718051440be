package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"leadintake/backend/internal/config"
	"leadintake/backend/internal/domain"
	"leadintake/backend/internal/security"
)

// ErrUnparseableBody 请求体无法解析（JSON 格式错误或 multipart 损坏）
var ErrUnparseableBody = errors.New("unparseable request body")

// 附件被跳过的原因
const (
	SkipNoName       = "empty filename"
	SkipEmpty        = "empty file"
	SkipCountLimit   = "file count limit reached"
	SkipFileTooLarge = "file exceeds per-file limit"
	SkipTotalLimit   = "total attachment size limit reached"
	SkipReadFailed   = "read failed"
)

// SkippedFile 未被接收的附件及原因
type SkippedFile struct {
	Filename string
	Reason   string
}

// Payload 解析后的原始字段与附件
type Payload struct {
	Fields      map[string]string
	Attachments []domain.Attachment
	Skipped     []SkippedFile
}

// Extractor 将 JSON 或 multipart 请求体统一为字段表和附件列表
type Extractor struct {
	cfg    config.IntakeConfig
	screen *security.AttachmentScreen
	logger *zap.Logger
}

// NewExtractor 创建请求体解析器
func NewExtractor(cfg config.IntakeConfig, screen *security.AttachmentScreen, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, screen: screen, logger: logger}
}

// Extract 解析请求体
//
// Content-Type 为 application/json 时按 JSON 对象解析，不接收附件；
// 其余情况按表单解析，附件取自 intake.attachment_field 字段。
func (e *Extractor) Extract(r *http.Request) (*Payload, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		fields, err := decodeJSON(r.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnparseableBody, err)
		}
		return &Payload{Fields: fields}, nil
	}

	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnparseableBody, err)
		}
		return &Payload{Fields: flattenValues(r.PostForm)}, nil
	}

	// 请求体已被限制在 MaxBodyBytes 以内，以它作为内存预算可保证附件不会落到临时文件
	if err := r.ParseMultipartForm(e.cfg.MaxBodyBytes); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnparseableBody, err)
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	payload := &Payload{Fields: flattenValues(r.MultipartForm.Value)}
	payload.Attachments, payload.Skipped = e.admit(r.MultipartForm.File[e.cfg.AttachmentField])
	return payload, nil
}

// admit 按提交顺序贪心接收附件
//
// 超出数量上限后停止；单个文件超限或会使累计大小超限时跳过该文件继续处理后续文件。
func (e *Extractor) admit(headers []*multipart.FileHeader) ([]domain.Attachment, []SkippedFile) {
	var (
		admitted []domain.Attachment
		skipped  []SkippedFile
		total    int64
	)

	for i, fh := range headers {
		skip := func(reason string) {
			skipped = append(skipped, SkippedFile{Filename: fh.Filename, Reason: reason})
			e.logger.Debug("附件已跳过",
				zap.String("filename", fh.Filename),
				zap.Int64("size", fh.Size),
				zap.String("reason", reason),
			)
		}

		if len(admitted) >= e.cfg.MaxFiles {
			for _, rest := range headers[i:] {
				skipped = append(skipped, SkippedFile{Filename: rest.Filename, Reason: SkipCountLimit})
			}
			break
		}

		name := strings.TrimSpace(fh.Filename)
		switch {
		case name == "":
			skip(SkipNoName)
			continue
		case fh.Size <= 0:
			skip(SkipEmpty)
			continue
		case fh.Size > e.cfg.MaxFileBytes:
			skip(SkipFileTooLarge)
			continue
		case total+fh.Size > e.cfg.MaxTotalBytes:
			skip(SkipTotalLimit)
			continue
		}

		content, err := readFile(fh, e.cfg.MaxFileBytes)
		if err != nil {
			skip(SkipReadFailed)
			continue
		}

		if e.screen != nil {
			if ok, reason := e.screen.Check(name, content); !ok {
				skip(reason)
				continue
			}
		}

		total += int64(len(content))
		admitted = append(admitted, domain.Attachment{
			Filename:    name,
			ContentType: security.DetectContentType(name, fh.Header.Get("Content-Type"), content),
			Content:     content,
		})
	}

	return admitted, skipped
}

// readFile 读取附件内容，实际长度超过上限时视为读取失败
func readFile(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > limit {
		return nil, fmt.Errorf("file %q larger than declared", fh.Filename)
	}
	return content, nil
}

// decodeJSON 解析 JSON 对象并把每个值转换为字符串
func decodeJSON(body io.Reader) (map[string]string, error) {
	decoder := json.NewDecoder(body)
	decoder.UseNumber()

	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("body is not a JSON object")
	}

	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		if isHoneypotField(key) {
			// 蜜罐是文本输入框，只有字符串才算被填写
			text, _ := value.(string)
			fields[key] = text
			continue
		}
		fields[key] = stringify(value)
	}
	return fields, nil
}

func isHoneypotField(key string) bool {
	return key == domain.FieldHoneypot || key == domain.FieldHoneypotLegacy
}

// stringify 将任意 JSON 值转换为字符串；null 为空串，数组以 ", " 连接
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ", ")
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// flattenValues 将表单多值字段以 ", " 连接为单值
func flattenValues(values map[string][]string) map[string]string {
	fields := make(map[string]string, len(values))
	for key, vs := range values {
		fields[key] = strings.Join(vs, ", ")
	}
	return fields
}
