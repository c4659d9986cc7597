package vwork

import "fmt"

// 企微接口的 type 编号
const (
	TypeLoginStatus    = 1000 // 获取登录状态
	TypeLoginQRCode    = 1001 // 刷新并获取登录二维码
	TypeUserInfo       = 1002 // 获取个人信息
	TypeLogout         = 1003 // 退出登录
	TypeLogoutMessage  = 1004 // 退出登录通知
	TypeLoginCaptcha   = 1005 // 输入登录验证码
	TypeGroupMembers   = 2003 // 获取群成员列表
	TypeSendText       = 3000 // 发送文本消息
	TypeSendImage      = 3001 // 发送图片消息
	TypeSendApplet     = 3006 // 发送小程序
	TypeSendAt         = 3009 // 发送群@消息
	TypeGroupInfo      = 5008 // 获取群信息
	TypeCDNVWorkImage  = 9001 // CDN下载企微图片
	TypeCDNVPersonFile = 9004 // CDN下载个微图片/视频/文件
)

var operationNames = map[int]string{
	TypeLoginStatus:    "获取登录状态",
	TypeLoginQRCode:    "获取登录二维码",
	TypeUserInfo:       "获取个人信息",
	TypeLogout:         "退出登录",
	TypeLogoutMessage:  "退出登录通知",
	TypeLoginCaptcha:   "输入登录验证码",
	TypeGroupMembers:   "获取群成员列表",
	TypeSendText:       "发送文本消息",
	TypeSendImage:      "发送图片消息",
	TypeSendApplet:     "发送小程序",
	TypeSendAt:         "发送群@消息",
	TypeGroupInfo:      "获取群信息",
	TypeCDNVWorkImage:  "CDN下载企微图片",
	TypeCDNVPersonFile: "CDN下载个微文件",
}

// 未授权也可以调用的接口：登录前需要查询状态，过期后需要能退出
var loginExempt = map[int]bool{
	TypeLoginStatus: true,
	TypeLogout:      true,
}

// OperationName 返回 type 对应的中文名，未知 type 返回 "API调用 (type:N)"
func OperationName(t int) string {
	if name, ok := operationNames[t]; ok {
		return name
	}
	return fmt.Sprintf("API调用 (type:%d)", t)
}

// IsLoginExempt 判断接口是否免授权校验
func IsLoginExempt(t int) bool {
	return loginExempt[t]
}
