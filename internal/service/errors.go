package service

import (
	"errors"
	"fmt"
	"net/http"

	"vworkproxy/pkg/vwork"
)

// ErrorKind 代理调用失败的类别
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindMissingParameter
	KindNotAuthorized
	KindUpstreamUnreachable
	KindUpstreamTimeout
	KindUpstreamError
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingParameter:
		return "MissingParameter"
	case KindNotAuthorized:
		return "NotAuthorized"
	case KindUpstreamUnreachable:
		return "UpstreamUnreachable"
	case KindUpstreamTimeout:
		return "UpstreamTimeout"
	case KindUpstreamError:
		return "UpstreamError"
	default:
		return "Unknown"
	}
}

// HTTPStatus 返回该类错误建议使用的 HTTP 状态码，响应体中的 success 才是准确信号
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindMissingParameter:
		return http.StatusBadRequest
	case KindNotAuthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// NotAuthorizedMessage 授权无效时返回给调用方的提示
const NotAuthorizedMessage = "当前账号未授权或授权已到期，请重新购买授权"

// CallError 代理调用失败
type CallError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *CallError) Error() string {
	return e.Message
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// MissingParameter 构造缺参错误，message 形如 "缺少参数: msg (消息内容)"
func MissingParameter(field, label string) *CallError {
	msg := fmt.Sprintf("缺少参数: %s", field)
	if label != "" {
		msg = fmt.Sprintf("缺少参数: %s (%s)", field, label)
	}
	return &CallError{Kind: KindMissingParameter, Message: msg}
}

// KindOf 返回错误的类别，非 CallError 视为 Unknown
func KindOf(err error) ErrorKind {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}
	return KindUnknown
}

// fromUpstream 把企微客户端的错误映射到代理错误
func fromUpstream(err error) *CallError {
	var vErr *vwork.Error
	if !errors.As(err, &vErr) {
		return &CallError{Kind: KindUnknown, Message: err.Error(), Err: err}
	}
	kind := KindUnknown
	switch vErr.Kind {
	case vwork.KindUnreachable:
		kind = KindUpstreamUnreachable
	case vwork.KindTimeout:
		kind = KindUpstreamTimeout
	case vwork.KindBadResponse:
		kind = KindUpstreamError
	}
	return &CallError{Kind: kind, Message: vErr.Error(), Err: err}
}
