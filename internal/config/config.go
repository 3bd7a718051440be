package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 运行环境
const (
	EnvProduction  = "production"
	EnvPreview     = "preview"
	EnvDevelopment = "development"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// AppConfig 定义部署环境
type AppConfig struct {
	Environment string // production / preview / development
}

// SiteConfig 定义站点域名，用于来源校验
type SiteConfig struct {
	CanonicalDomain string   // 站点主域名，如 "sunshadepergolas.com.au"
	ExtraHosts      []string // 额外允许的主机名，"*.example.com" 表示通配
	PlatformDomain  string   // 托管平台的通配域名，默认 "vercel.app"
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 控制台编码输出
	File        string // 日志文件路径，留空只输出到标准输出
}

// AuditConfig 定义线索审计日志配置
type AuditConfig struct {
	File string // 审计日志文件，留空时写入主日志
}

// IntakeConfig 定义表单接收与附件准入参数
type IntakeConfig struct {
	AttachmentField string // multipart 中附件字段名
	MaxFiles        int    // 单次提交最多接收的附件数量
	MaxFileBytes    int64  // 单个附件大小上限
	MaxTotalBytes   int64  // 附件累计大小上限
	MaxBodyBytes    int64  // 请求体大小上限
}

// RateLimitConfig 定义提交限流配置
type RateLimitConfig struct {
	Backend       string        // memory 或 redis
	Window        time.Duration // 统计窗口
	Max           int           // 窗口内最多允许的提交次数
	UnknownPolicy string        // 无法识别客户端 IP 时的策略: shared 或 exempt
	SweepInterval time.Duration // 内存限流表清理间隔
}

// RedisConfig 定义 Redis 服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号
}

// EmailConfig 定义邮件投递配置
type EmailConfig struct {
	Provider  string            // resend / mailgun / smtp
	From      string            // 发件人
	DefaultTo string            // 默认收件人
	Routes    map[string]string // 按咨询类型路由的收件人，键为小写类型

	ResendAPIKey   string
	ResendEndpoint string

	MailgunDomain  string
	MailgunAPIKey  string
	MailgunAPIBase string // 留空使用 SDK 默认地址（美国区）

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPStartTLS bool // 要求中继支持 STARTTLS
}

// Configured 判断所选邮件服务是否具备凭证
func (c EmailConfig) Configured() bool {
	if c.DefaultTo == "" && len(c.Routes) == 0 {
		return false
	}
	switch c.Provider {
	case "resend":
		return c.ResendAPIKey != ""
	case "mailgun":
		return c.MailgunDomain != "" && c.MailgunAPIKey != ""
	case "smtp":
		return c.SMTPHost != ""
	}
	return false
}

// ChatConfig 定义聊天 Webhook 通知配置
type ChatConfig struct {
	WebhookURL  string
	MinInterval time.Duration // 两次通知之间的最小间隔
}

// SheetConfig 定义表格/CRM Webhook 配置
type SheetConfig struct {
	WebhookURL string
}

// ConversionConfig 定义服务端转化事件配置
type ConversionConfig struct {
	AccessToken   string
	PixelID       string
	APIVersion    string
	Endpoint      string
	TestEventCode string
}

// Configured 判断转化事件是否启用（令牌与像素 ID 都需要）
func (c ConversionConfig) Configured() bool {
	return c.AccessToken != "" && c.PixelID != ""
}

// DeliveryConfig 定义投递通道的公共参数
type DeliveryConfig struct {
	Timeout time.Duration // 单个通道的超时时间
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server     ServerConfig
	App        AppConfig
	Site       SiteConfig
	Log        LogConfig
	Audit      AuditConfig
	Intake     IntakeConfig
	RateLimit  RateLimitConfig
	Redis      RedisConfig
	Email      EmailConfig
	Chat       ChatConfig
	Sheet      SheetConfig
	Conversion ConversionConfig
	Delivery   DeliveryConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: LEADS_
// 例如: LEADS_SERVER_PORT, LEADS_EMAIL_RESEND_API_KEY
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("leads")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("app.environment", EnvProduction)
	viper.SetDefault("site.canonical_domain", "sunshadepergolas.com.au")
	viper.SetDefault("site.extra_hosts", "")
	viper.SetDefault("site.platform_domain", "vercel.app")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("audit.file", "")
	viper.SetDefault("intake.attachment_field", "files")
	viper.SetDefault("intake.max_files", 5)
	viper.SetDefault("intake.max_file_bytes", 10*1024*1024)
	viper.SetDefault("intake.max_total_bytes", 20*1024*1024)
	viper.SetDefault("intake.max_body_bytes", 25*1024*1024)
	viper.SetDefault("ratelimit.backend", "memory")
	viper.SetDefault("ratelimit.window", "10m")
	viper.SetDefault("ratelimit.max", 5)
	viper.SetDefault("ratelimit.unknown_policy", "shared")
	viper.SetDefault("ratelimit.sweep_interval", "10m")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("email.provider", "resend")
	viper.SetDefault("email.from", "Website Enquiries <enquiries@sunshadepergolas.com.au>")
	viper.SetDefault("email.default_to", "")
	viper.SetDefault("email.routes", "")
	viper.SetDefault("email.resend_api_key", "")
	viper.SetDefault("email.resend_endpoint", "https://api.resend.com/emails")
	viper.SetDefault("email.mailgun_domain", "")
	viper.SetDefault("email.mailgun_api_key", "")
	viper.SetDefault("email.mailgun_api_base", "")
	viper.SetDefault("email.smtp_host", "")
	viper.SetDefault("email.smtp_port", 587)
	viper.SetDefault("email.smtp_username", "")
	viper.SetDefault("email.smtp_password", "")
	viper.SetDefault("email.smtp_starttls", true)
	viper.SetDefault("chat.webhook_url", "")
	viper.SetDefault("chat.min_interval", "1s")
	viper.SetDefault("sheet.webhook_url", "")
	viper.SetDefault("conversion.access_token", "")
	viper.SetDefault("conversion.pixel_id", "")
	viper.SetDefault("conversion.api_version", "v19.0")
	viper.SetDefault("conversion.endpoint", "https://graph.facebook.com")
	viper.SetDefault("conversion.test_event_code", "")
	viper.SetDefault("delivery.timeout", "8s")

	environment := strings.ToLower(viper.GetString("app.environment"))
	switch environment {
	case EnvProduction, EnvPreview, EnvDevelopment:
	default:
		return nil, fmt.Errorf("invalid app.environment: %q", environment)
	}

	canonical := strings.ToLower(strings.TrimSpace(viper.GetString("site.canonical_domain")))
	if canonical == "" {
		return nil, fmt.Errorf("site.canonical_domain must not be empty")
	}

	window, err := time.ParseDuration(viper.GetString("ratelimit.window"))
	if err != nil {
		return nil, fmt.Errorf("invalid ratelimit.window: %w", err)
	}
	if window <= 0 {
		return nil, fmt.Errorf("ratelimit.window must be positive")
	}

	maxPerWindow := viper.GetInt("ratelimit.max")
	if maxPerWindow <= 0 {
		return nil, fmt.Errorf("ratelimit.max must be positive")
	}

	backend := strings.ToLower(viper.GetString("ratelimit.backend"))
	if backend != "memory" && backend != "redis" {
		return nil, fmt.Errorf("invalid ratelimit.backend: %q", backend)
	}

	unknownPolicy := strings.ToLower(viper.GetString("ratelimit.unknown_policy"))
	if unknownPolicy != "shared" && unknownPolicy != "exempt" {
		return nil, fmt.Errorf("invalid ratelimit.unknown_policy: %q", unknownPolicy)
	}

	sweepInterval, err := time.ParseDuration(viper.GetString("ratelimit.sweep_interval"))
	if err != nil || sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}

	provider := strings.ToLower(viper.GetString("email.provider"))
	if provider != "resend" && provider != "mailgun" && provider != "smtp" {
		return nil, fmt.Errorf("invalid email.provider: %q", provider)
	}

	routes, err := parseRoutes(viper.GetString("email.routes"))
	if err != nil {
		return nil, err
	}

	chatInterval, err := time.ParseDuration(viper.GetString("chat.min_interval"))
	if err != nil || chatInterval < 0 {
		chatInterval = time.Second
	}

	deliveryTimeout, err := time.ParseDuration(viper.GetString("delivery.timeout"))
	if err != nil || deliveryTimeout <= 0 {
		deliveryTimeout = 8 * time.Second
	}

	maxFiles := viper.GetInt("intake.max_files")
	if maxFiles < 0 {
		maxFiles = 0
	}

	intakeLimits := map[string]int64{}
	for _, key := range []string{"intake.max_file_bytes", "intake.max_total_bytes", "intake.max_body_bytes"} {
		value := viper.GetInt64(key)
		if value <= 0 {
			return nil, fmt.Errorf("%s must be positive", key)
		}
		intakeLimits[key] = value
	}

	attachmentField := strings.TrimSpace(viper.GetString("intake.attachment_field"))
	if attachmentField == "" {
		attachmentField = "files"
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		App: AppConfig{
			Environment: environment,
		},
		Site: SiteConfig{
			CanonicalDomain: canonical,
			ExtraHosts:      parseHosts(viper.GetString("site.extra_hosts")),
			PlatformDomain:  strings.TrimPrefix(strings.ToLower(viper.GetString("site.platform_domain")), "."),
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Audit: AuditConfig{
			File: viper.GetString("audit.file"),
		},
		Intake: IntakeConfig{
			AttachmentField: attachmentField,
			MaxFiles:        maxFiles,
			MaxFileBytes:    intakeLimits["intake.max_file_bytes"],
			MaxTotalBytes:   intakeLimits["intake.max_total_bytes"],
			MaxBodyBytes:    intakeLimits["intake.max_body_bytes"],
		},
		RateLimit: RateLimitConfig{
			Backend:       backend,
			Window:        window,
			Max:           maxPerWindow,
			UnknownPolicy: unknownPolicy,
			SweepInterval: sweepInterval,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Email: EmailConfig{
			Provider:       provider,
			From:           viper.GetString("email.from"),
			DefaultTo:      strings.TrimSpace(viper.GetString("email.default_to")),
			Routes:         routes,
			ResendAPIKey:   viper.GetString("email.resend_api_key"),
			ResendEndpoint: viper.GetString("email.resend_endpoint"),
			MailgunDomain:  viper.GetString("email.mailgun_domain"),
			MailgunAPIKey:  viper.GetString("email.mailgun_api_key"),
			MailgunAPIBase: viper.GetString("email.mailgun_api_base"),
			SMTPHost:       viper.GetString("email.smtp_host"),
			SMTPPort:       viper.GetInt("email.smtp_port"),
			SMTPUsername:   viper.GetString("email.smtp_username"),
			SMTPPassword:   viper.GetString("email.smtp_password"),
			SMTPStartTLS:   viper.GetBool("email.smtp_starttls"),
		},
		Chat: ChatConfig{
			WebhookURL:  viper.GetString("chat.webhook_url"),
			MinInterval: chatInterval,
		},
		Sheet: SheetConfig{
			WebhookURL: viper.GetString("sheet.webhook_url"),
		},
		Conversion: ConversionConfig{
			AccessToken:   viper.GetString("conversion.access_token"),
			PixelID:       viper.GetString("conversion.pixel_id"),
			APIVersion:    viper.GetString("conversion.api_version"),
			Endpoint:      strings.TrimRight(viper.GetString("conversion.endpoint"), "/"),
			TestEventCode: viper.GetString("conversion.test_event_code"),
		},
		Delivery: DeliveryConfig{
			Timeout: deliveryTimeout,
		},
	}

	return cfg, nil
}

// parseRoutes 解析 "commercial=a@x.com,trade=b@x.com" 形式的收件人路由
func parseRoutes(value string) (map[string]string, error) {
	routes := make(map[string]string)
	for _, item := range parseList(value) {
		key, addr, ok := strings.Cut(item, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		addr = strings.TrimSpace(addr)
		if !ok || key == "" || addr == "" {
			return nil, fmt.Errorf("invalid email.routes entry: %q", item)
		}
		routes[key] = addr
	}
	return routes, nil
}

// parseHosts 将逗号分隔的主机名解析为小写数组
func parseHosts(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 注意：
//   - 如果文件不存在，静默失败（.env 是可选的）
//   - 已存在的环境变量不会被覆盖
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
