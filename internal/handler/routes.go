package handler

import (
	"vworkproxy/internal/model"
	"vworkproxy/internal/service"
	"vworkproxy/pkg/vwork"
)

// Field 固定接口的一个参数
type Field struct {
	Key      string // 转发给企微时的参数名
	Label    string // 缺参提示里的中文说明
	From     string // 请求体中的参数名，为空时同 Key
	Optional bool
	Default  any  // Optional 且未传时使用
	List     bool // 单个值包装成数组
}

// Route 一个固定接口：路径、企微 type 和参数表
// Fields 为 nil 时除 port 外的请求参数原样转发。
type Route struct {
	Path   string
	Type   int
	Fields []Field
}

func required(key, label string) Field {
	return Field{Key: key, Label: label}
}

// Routes 固定接口表，路径相对 /api
var Routes = []Route{
	{Path: "/login/status", Type: vwork.TypeLoginStatus},
	{Path: "/login/qrcode", Type: vwork.TypeLoginQRCode},
	{Path: "/login/logout", Type: vwork.TypeLogout},
	{Path: "/login/logout-message", Type: vwork.TypeLogoutMessage},
	{Path: "/login/captcha", Type: vwork.TypeLoginCaptcha, Fields: []Field{
		required("code", "验证码"),
	}},
	{Path: "/user/info", Type: vwork.TypeUserInfo},
	{Path: "/group/members", Type: vwork.TypeGroupMembers, Fields: []Field{
		required("chat_room_id", "群ID"),
	}},
	{Path: "/group/info", Type: vwork.TypeGroupInfo, Fields: []Field{
		required("chat_room_id", "群ID"),
	}},
	{Path: "/message/text", Type: vwork.TypeSendText, Fields: []Field{
		required("user_id", "用户ID"),
		required("msg", "消息内容"),
	}},
	{Path: "/message/image", Type: vwork.TypeSendImage, Fields: []Field{
		required("user_id", "用户ID"),
		required("path", "图片路径"),
	}},
	{Path: "/message/applet", Type: vwork.TypeSendApplet, Fields: []Field{
		required("user_id", "用户ID"),
		required("title", "标题"),
		required("desc", "描述"),
		{Key: "avatar_url", Optional: true, Default: ""},
		required("cover_path", "封面路径"),
		{Key: "app_id", Optional: true, Default: ""},
		required("wechat_id", "微信ID"),
		required("page_path", "页面路径"),
	}},
	{Path: "/message/at", Type: vwork.TypeSendAt, Fields: []Field{
		required("chat_room_id", "群ID"),
		{Key: "at_list", Label: "@的用户列表", List: true},
		required("msg", "消息内容"),
	}},
	{Path: "/cdn/vwork-image", Type: vwork.TypeCDNVWorkImage, Fields: []Field{
		required("cdn_key", "CDN密钥"),
		required("aes_key", "AES密钥"),
		required("size", "尺寸"),
		required("img_type", "图片类型"),
		required("save_path", "保存路径"),
	}},
	{Path: "/cdn/vperson-file", Type: vwork.TypeCDNVPersonFile, Fields: []Field{
		required("url", "URL"),
		required("auth_key", "认证密钥"),
		required("aes_key", "AES密钥"),
		required("size", "尺寸"),
		required("save_path", "保存路径"),
	}},
	// 旧版本的获取群成员接口，参数名是 group_id
	{Path: "/group-members", Type: vwork.TypeGroupMembers, Fields: []Field{
		{Key: "chat_room_id", Label: "群ID", From: "group_id"},
	}},
}

// Params 按参数表从请求体中取出转发参数，缺少必填参数时返回 MissingParameter
func (r Route) Params(body map[string]any) (map[string]any, error) {
	if r.Fields == nil {
		params := make(map[string]any, len(body))
		for k, v := range body {
			if k != "port" {
				params[k] = v
			}
		}
		return params, nil
	}

	params := make(map[string]any, len(r.Fields))
	for _, f := range r.Fields {
		from := f.From
		if from == "" {
			from = f.Key
		}
		v := body[from]
		if model.IsBlank(v) {
			if !f.Optional {
				return nil, service.MissingParameter(from, f.Label)
			}
			v = f.Default
		}
		if f.List {
			if _, ok := v.([]any); !ok {
				v = []any{v}
			}
		}
		params[f.Key] = v
	}
	return params, nil
}
