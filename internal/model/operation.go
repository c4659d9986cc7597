package model

// OperationRequest 一次代理调用
type OperationRequest struct {
	Port   int
	Type   int
	Params map[string]any

	// HasPort/HasType 区分“没传”和“传了零值”
	HasPort bool
	HasType bool
}

// Body 组装发往企微的请求体 {type, ...params}
func (r OperationRequest) Body() map[string]any {
	body := make(map[string]any, len(r.Params)+1)
	for k, v := range r.Params {
		body[k] = v
	}
	body["type"] = r.Type
	return body
}

// OperationResult 一次代理调用的结果
type OperationResult struct {
	Success bool   `json:"success"`
	Payload any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Notification 推送到桌面端的一条事件
// Payload 为空时使用 Entry 生成的系统消息体。
type Notification struct {
	Payload map[string]any
	Entry   LogEntry
}

// UIPayload 返回推送给桌面端的消息体
func (n Notification) UIPayload() map[string]any {
	if n.Payload != nil {
		return n.Payload
	}
	return n.Entry.UIPayload()
}
