package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"vworkproxy/internal/model"
)

// ErrNoPushTarget 未配置桌面端推送地址
var ErrNoPushTarget = errors.New("未配置消息推送地址")

// UIPusher 把事件推送给桌面端
type UIPusher interface {
	Push(ctx context.Context, payload map[string]any) error
}

// HTTPPusher 以 JSON POST 的方式推送到桌面端的消息服务
type HTTPPusher struct {
	url  string
	http *resty.Client
}

// NewHTTPPusher 创建推送器，url 为空时每次推送都返回 ErrNoPushTarget
func NewHTTPPusher(url string, timeout time.Duration) *HTTPPusher {
	return &HTTPPusher{
		url: url,
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// Push 实现 UIPusher
func (p *HTTPPusher) Push(ctx context.Context, payload map[string]any) error {
	if p.url == "" {
		return ErrNoPushTarget
	}
	resp, err := p.http.R().SetContext(ctx).SetBody(payload).Post(p.url)
	if err != nil {
		return fmt.Errorf("推送消息到 %s 失败: %w", p.url, err)
	}
	if resp.IsError() {
		return fmt.Errorf("推送消息到 %s 失败: HTTP %d", p.url, resp.StatusCode())
	}
	return nil
}

// Notifier 把一条事件同时送到桌面端和运行日志
// 两个目标互不影响，任何一个失败都只记录日志。
type Notifier struct {
	ui   UIPusher
	sink LogSink
	log  logrus.FieldLogger
}

// NewNotifier 创建通知器，ui 和 sink 都可以为 nil
func NewNotifier(ui UIPusher, sink LogSink, logger logrus.FieldLogger) *Notifier {
	return &Notifier{ui: ui, sink: sink, log: logger.WithField("component", "notifier")}
}

// Publish 推送到桌面端；saveLog 为 true 时再追加到运行日志
func (n *Notifier) Publish(ctx context.Context, note model.Notification, saveLog bool) {
	if n.ui != nil {
		if err := n.ui.Push(ctx, note.UIPayload()); err != nil {
			if errors.Is(err, ErrNoPushTarget) {
				n.log.Debug(err)
			} else {
				n.log.Warnf("推送桌面端失败: %v", err)
			}
		}
	}

	if saveLog && n.sink != nil {
		if err := n.sink.Append(note.Entry); err != nil {
			n.log.Errorf("保存运行日志失败: %v", err)
		}
	}
}

// System 发布一条系统消息
func (n *Notifier) System(ctx context.Context, content string, saveLog bool) {
	n.Publish(ctx, model.Notification{Entry: model.SystemEntry(content, time.Now().Unix())}, saveLog)
}
