package security

import (
	"net/url"
	"strings"

	"leadintake/backend/internal/config"
)

// OriginGuard 基于 Origin 请求头的来源校验
type OriginGuard struct {
	allowAll bool
	exact    map[string]bool
	suffixes []string
}

// NewOriginGuard 根据站点配置创建来源校验器
//
// 允许的主机名：
//   - 主域名及其 www 子域、本地回环地址
//   - site.extra_hosts 中的主机（"*.example.com" 表示其所有子域）
//   - 主域名的任意子域
//   - 托管平台通配域名的任意子域
//
// preview 环境下不做限制。
func NewOriginGuard(site config.SiteConfig, environment string) *OriginGuard {
	canonical := strings.ToLower(site.CanonicalDomain)

	g := &OriginGuard{
		allowAll: environment == config.EnvPreview,
		exact: map[string]bool{
			canonical:          true,
			"www." + canonical: true,
			"localhost":        true,
			"127.0.0.1":        true,
			"::1":              true,
			"0.0.0.0":          true,
		},
		suffixes: []string{"." + canonical},
	}

	if site.PlatformDomain != "" {
		g.suffixes = append(g.suffixes, "."+strings.TrimPrefix(strings.ToLower(site.PlatformDomain), "."))
	}

	for _, host := range site.ExtraHosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if wildcard, ok := strings.CutPrefix(host, "*."); ok {
			g.suffixes = append(g.suffixes, "."+wildcard)
			continue
		}
		if host != "" {
			g.exact[host] = true
		}
	}

	return g
}

// Allow 判断来源是否可信；未携带 Origin 的请求（服务端调用、同源表单）直接放行
func (g *OriginGuard) Allow(origin string) bool {
	if origin == "" || g.allowAll {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	if g.exact[host] {
		return true
	}
	for _, suffix := range g.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}
