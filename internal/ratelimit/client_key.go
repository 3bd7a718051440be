package ratelimit

import (
	"net/http"
	"strings"
)

// ClientKey 从代理头中取得客户端地址
//
// 优先取 X-Forwarded-For 的第一个地址，其次 X-Real-IP，都没有时返回 UnknownClient。
func ClientKey(h http.Header) string {
	if forwarded := h.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(h.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return UnknownClient
}
