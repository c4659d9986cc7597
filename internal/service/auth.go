package service

import (
	"strings"
	"time"

	"vworkproxy/internal/model"
)

// 授权到期时间可能的写法，桌面端统一写第一种
var expireLayouts = []string{
	model.TimeLayout,
	"2006/01/02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// ParseExpire 按本地时间解析授权到期时间
func ParseExpire(expire string) (time.Time, bool) {
	expire = strings.TrimSpace(expire)
	for _, layout := range expireLayouts {
		if t, err := time.ParseInLocation(layout, expire, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsAuthorized 判断授权在 now 时刻是否有效
// 空值、未授权占位值和无法解析的时间都视为无效。
func IsAuthorized(expire string, now time.Time) bool {
	if expire == "" || expire == model.ExpireUnauthorized {
		return false
	}
	deadline, ok := ParseExpire(expire)
	if !ok {
		return false
	}
	return !now.After(deadline)
}
