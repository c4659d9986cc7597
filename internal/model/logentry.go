package model

import (
	"fmt"
	"time"
)

// Direction 消息方向
type Direction string

const (
	DirectionOut Direction = "OUT"
	DirectionIn  Direction = "IN"
)

// TimeLayout 日志和到期时间统一使用的本地时间格式
const TimeLayout = "2006-01-02 15:04:05"

// LogEntry 一条运行日志
type LogEntry struct {
	Timestamp int64 // 秒级时间戳，0 表示当前时间
	System    bool
	Content   string
	Sender    string
	UserID    string
	Direction Direction
}

// SystemEntry 构造系统消息
func SystemEntry(content string, ts int64) LogEntry {
	return LogEntry{Timestamp: ts, System: true, Content: content}
}

// EntryFromMessage 把企微推送的原始消息转成日志条目
func EntryFromMessage(data map[string]any) LogEntry {
	entry := LogEntry{
		Content:   AsString(data["content"]),
		Sender:    AsString(data["sender"]),
		UserID:    AsString(data["user_id"]),
		Direction: DirectionIn,
	}
	if entry.Sender == "" {
		entry.Sender = AsString(data["nick_name"])
	}
	if ts, ok := AsInt64(data["time_stamp"]); ok {
		entry.Timestamp = ts
	}
	if self, ok := AsInt64(data["is_self_msg"]); ok && self == 1 {
		entry.Direction = DirectionOut
	}
	if sys, ok := data["sys"].(bool); ok && sys {
		entry.System = true
	}
	return entry
}

// Time 返回条目时间，未设置时间戳时取 now
func (e LogEntry) Time(now time.Time) time.Time {
	if e.Timestamp <= 0 {
		return now
	}
	return time.Unix(e.Timestamp, 0).In(now.Location())
}

// Format 渲染成一行日志（不含换行）
func (e LogEntry) Format(at time.Time) string {
	stamp := at.Format(TimeLayout)
	if e.System {
		return fmt.Sprintf("[%s] [SYS] %s", stamp, e.Content)
	}
	dir := e.Direction
	if dir == "" {
		dir = DirectionIn
	}
	return fmt.Sprintf("[%s] [%s] %s(%s): %s", stamp, dir, e.Sender, e.UserID, e.Content)
}

// UIPayload 系统消息推送给桌面端时的消息体
func (e LogEntry) UIPayload() map[string]any {
	ts := e.Timestamp
	if ts <= 0 {
		ts = time.Now().Unix()
	}
	if e.System {
		return map[string]any{
			"content":    e.Content,
			"sys":        true,
			"time_stamp": ts,
		}
	}
	self := 0
	if e.Direction == DirectionOut {
		self = 1
	}
	return map[string]any{
		"content":     e.Content,
		"sender":      e.Sender,
		"user_id":     e.UserID,
		"is_self_msg": self,
		"time_stamp":  ts,
	}
}
