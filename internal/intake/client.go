package intake

import (
	"net/http"

	"leadintake/backend/internal/domain"
	"leadintake/backend/internal/ratelimit"
)

// ClientContextFrom 从请求中收集客户端信息
//
// IP 来自代理头，可被伪造，只用于限流、审计和转化匹配。
func ClientContextFrom(r *http.Request) domain.ClientContext {
	return domain.ClientContext{
		IP:        ratelimit.ClientKey(r.Header),
		UserAgent: r.UserAgent(),
		SourceURL: r.Referer(),
		FBP:       cookieValue(r, "_fbp"),
		FBC:       cookieValue(r, "_fbc"),
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
