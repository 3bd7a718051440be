package security

import (
	"bytes"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// AttachmentScreen 附件筛查器
//
// 线索附件只用于展示现场照片和图纸，可执行文件一律跳过。
type AttachmentScreen struct {
	dangerousExtensions map[string]bool
}

// NewAttachmentScreen 创建附件筛查器
func NewAttachmentScreen() *AttachmentScreen {
	return &AttachmentScreen{
		dangerousExtensions: map[string]bool{
			".exe": true,
			".bat": true,
			".cmd": true,
			".scr": true,
			".pif": true,
			".com": true,
			".vbs": true,
			".js":  true,
			".jar": true,
			".msi": true,
			".ps1": true,
			".sh":  true,
			".php": true,
			".asp": true,
			".jsp": true,
		},
	}
}

// Check 检查附件是否可以接收，返回是否允许及原因
func (s *AttachmentScreen) Check(filename string, content []byte) (bool, string) {
	ext := strings.ToLower(filepath.Ext(filename))
	if s.dangerousExtensions[ext] {
		return false, "dangerous file extension: " + ext
	}

	if isExecutable(content) {
		return false, "executable file detected"
	}

	return true, ""
}

// isExecutable 按文件魔数识别可执行文件
func isExecutable(header []byte) bool {
	executableSignatures := [][]byte{
		{0x4D, 0x5A},             // PE
		{0x7F, 0x45, 0x4C, 0x46}, // ELF
		{0xFE, 0xED, 0xFA, 0xCE}, // Mach-O
		{0xCE, 0xFA, 0xED, 0xFE}, // Mach-O (reverse)
	}

	for _, sig := range executableSignatures {
		if bytes.HasPrefix(header, sig) {
			return true
		}
	}
	return false
}

// DetectContentType 确定附件的 MIME 类型
//
// 优先使用上传时声明的类型，其次按扩展名，最后按内容嗅探。
func DetectContentType(filename, declared string, content []byte) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
			return mediaType
		}
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
		return byExt
	}
	return http.DetectContentType(content)
}
