package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExpireUnauthorized 未授权账号的到期时间占位值
const ExpireUnauthorized = "未授权"

// DefaultServerPort 本服务默认监听端口
const DefaultServerPort = 8888

// FlexInt 兼容 JSON 数字和数字字符串两种写法的整数
// 桌面端历史上把 port、pid 既写成过 8080 也写成过 "8080"。
type FlexInt int

// UnmarshalJSON 实现 json.Unmarshaler
func (n *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*n = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid integer string %q: %w", s, err)
		}
		*n = FlexInt(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = FlexInt(int(f))
	return nil
}

// AccountRecord 一个已登录企微账号的记录，通过本地端口寻址
type AccountRecord struct {
	Alias         string  `json:"alias"`
	AvatarURL     string  `json:"avatar_url"`
	CorpID        string  `json:"corp_id"`
	CorpName      string  `json:"corp_name"`
	CorpShortName string  `json:"corp_short_name"`
	DeptID        string  `json:"dept_id"`
	DeptName      string  `json:"dept_name"`
	Email         string  `json:"email"`
	JobName       string  `json:"job_name"`
	Mobile        string  `json:"mobile"`
	NickName      string  `json:"nick_name"`
	Position      string  `json:"position"`
	RealName      string  `json:"real_name"`
	Sex           string  `json:"sex"`
	UserID        string  `json:"user_id"`
	Port          FlexInt `json:"port"`
	PID           FlexInt `json:"pid"`
	Expire        string  `json:"expire"`
	Label         string  `json:"label"`
}

// UnmarshalJSON 缺省的 expire 视为未授权
func (a *AccountRecord) UnmarshalJSON(data []byte) error {
	type plain AccountRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Expire == "" {
		p.Expire = ExpireUnauthorized
	}
	*a = AccountRecord(p)
	return nil
}

// Configuration 进程级配置，对应 conf.ini
type Configuration struct {
	ServerPort  int             `json:"server_port"`
	CallbackURL string          `json:"callback"`
	OpenLog     bool            `json:"open_log"`
	SaveLog     bool            `json:"save_log"`
	Accounts    []AccountRecord `json:"login_info"`
}

// DefaultConfiguration 返回读取失败时使用的默认配置
func DefaultConfiguration() Configuration {
	return Configuration{
		ServerPort:  DefaultServerPort,
		CallbackURL: "",
		OpenLog:     true,
		SaveLog:     true,
		Accounts:    []AccountRecord{},
	}
}

// ShouldSaveLog save_log 只有在 open_log 打开时才生效
func (c Configuration) ShouldSaveLog() bool {
	return c.OpenLog && c.SaveLog
}

// CallbackConfigured 回调地址必须同时包含 http 和 :// 才算已配置
func (c Configuration) CallbackConfigured() bool {
	return strings.Contains(c.CallbackURL, "http") && strings.Contains(c.CallbackURL, "://")
}

// AccountByPort 按端口查找账号
func (c Configuration) AccountByPort(port int) (AccountRecord, bool) {
	for _, item := range c.Accounts {
		if int(item.Port) == port {
			return item, true
		}
	}
	return AccountRecord{}, false
}

// AccountByUserID 按 user_id 查找账号
func (c Configuration) AccountByUserID(userID string) (AccountRecord, bool) {
	for _, item := range c.Accounts {
		if item.UserID == userID {
			return item, true
		}
	}
	return AccountRecord{}, false
}

// ExpireByPort 返回端口对应账号的到期时间，找不到时为未授权
func (c Configuration) ExpireByPort(port int) string {
	if item, ok := c.AccountByPort(port); ok {
		return item.Expire
	}
	return ExpireUnauthorized
}

// ExpireByUserID 返回 user_id 对应账号的到期时间，找不到时为未授权
func (c Configuration) ExpireByUserID(userID string) string {
	if userID == "" {
		return ExpireUnauthorized
	}
	if item, ok := c.AccountByUserID(userID); ok {
		return item.Expire
	}
	return ExpireUnauthorized
}
