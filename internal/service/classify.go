package service

import (
	"strings"

	"vworkproxy/internal/model"
)

// UnknownErrorMessage 企微返回失败但没有给出原因时使用
const UnknownErrorMessage = "未知错误"

// 企微各接口返回格式不统一，以下字段名按顺序检查，先命中的为准
var (
	statusFields = []string{"code", "errcode", "err_code", "status", "ret"}
	reasonFields = []string{"errmsg", "err_msg", "error", "message", "msg"}
)

// ClassifyPayload 判断企微响应是否代表成功，失败时返回原因
//
// 规则（宽松，找不到失败证据就算成功）：
//   - 没有任何状态字段：成功
//   - 状态字段为 0、"0"、"ok"、"success"：成功
//   - ok 或 success 字段为 true：成功
//   - 没有任何错误/消息字段：成功
//   - 其余情况失败，原因取第一个命中的错误/消息字段
func ClassifyPayload(payload any) (bool, string) {
	data, ok := payload.(map[string]any)
	if !ok {
		return true, ""
	}

	status, found := firstField(data, statusFields)
	if !found || isSuccessStatus(status) {
		return true, ""
	}
	if truthy(data["ok"]) || truthy(data["success"]) {
		return true, ""
	}

	reason, found := firstField(data, reasonFields)
	if !found {
		return true, ""
	}
	msg := strings.TrimSpace(model.AsString(reason))
	if msg == "" {
		msg = UnknownErrorMessage
	}
	return false, msg
}

func firstField(data map[string]any, names []string) (any, bool) {
	for _, name := range names {
		if v, ok := data[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func isSuccessStatus(v any) bool {
	if n, ok := model.AsInt64(v); ok {
		return n == 0
	}
	switch strings.ToLower(strings.TrimSpace(model.AsString(v))) {
	case "ok", "success":
		return true
	}
	return false
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
