package httptransport

import (
	"errors"
	"net/http"

	"leadintake/backend/internal/domain"
	"leadintake/backend/internal/intake"
	"leadintake/backend/internal/middleware"
	"leadintake/backend/internal/service"
)

// 通用错误消息
const (
	MsgInvalidBody     = "Invalid request body"
	MsgMissingRequired = "Name and email are required"
	MsgInvalidEmail    = "Please provide a valid email address"
	MsgTooManyRequests = "Too many requests. Please try again later."
	MsgInternalError   = "Something went wrong. Please try again later."
	MsgNotFound        = "Not found"
)

type errorResponse struct {
	status int
	msg    string
}

// 错误映射表（业务错误 -> 状态码与提示）
var errorResponses = map[error]errorResponse{
	intake.ErrUnparseableBody: {http.StatusBadRequest, MsgInvalidBody},
	domain.ErrMissingRequired: {http.StatusUnprocessableEntity, MsgMissingRequired},
	domain.ErrInvalidEmail:    {http.StatusUnprocessableEntity, MsgInvalidEmail},
	service.ErrRateLimited:    {http.StatusTooManyRequests, MsgTooManyRequests},
}

// ResolveError 获取错误对应的状态码与提示
func ResolveError(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge, middleware.MsgBodyTooLarge
	}
	for target, resp := range errorResponses {
		if errors.Is(err, target) {
			return resp.status, resp.msg
		}
	}
	return http.StatusInternalServerError, MsgInternalError
}
