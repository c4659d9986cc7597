package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"vworkproxy/pkg/vwork"
)

// CallbackSuccessMessage 回调投递成功时的提示
const CallbackSuccessMessage = "回调发送成功"

// 回调失败的错误码，方便桌面端区分
const (
	CallbackErrRefused = "ECONNREFUSED"
	CallbackErrTimeout = "ETIMEDOUT"
	CallbackErrHTTP    = "HTTP_ERROR"
	CallbackErrOther   = "UNKNOWN"
)

// DeliveryResult 一次回调投递的结果
type DeliveryResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	ResponseBody string `json:"response,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	ErrorCode    string `json:"error_code,omitempty"`
}

// CallbackDispatcher 把事件 POST 到用户配置的回调地址，不重试
type CallbackDispatcher struct {
	http *resty.Client
	log  logrus.FieldLogger
}

// NewCallbackDispatcher 创建回调投递器
func NewCallbackDispatcher(timeout time.Duration, logger logrus.FieldLogger) *CallbackDispatcher {
	return &CallbackDispatcher{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		log: logger.WithField("component", "callback"),
	}
}

// Deliver 投递一次回调，结果总是通过 DeliveryResult 返回
func (d *CallbackDispatcher) Deliver(ctx context.Context, url string, payload any) DeliveryResult {
	start := time.Now()
	resp, err := d.http.R().SetContext(ctx).SetBody(payload).Post(url)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		result := DeliveryResult{DurationMs: elapsed}
		switch {
		case vwork.IsConnRefused(err):
			result.ErrorCode = CallbackErrRefused
			result.Message = fmt.Sprintf("回调发送失败: 无法连接到 %s (连接被拒绝)", url)
		case vwork.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
			result.ErrorCode = CallbackErrTimeout
			result.Message = fmt.Sprintf("回调发送失败: 请求超时 (%s)", url)
		default:
			result.ErrorCode = CallbackErrOther
			result.Message = fmt.Sprintf("回调发送失败: %v", err)
		}
		d.log.Warnf("%s, 耗时 %dms", result.Message, elapsed)
		return result
	}

	body := string(resp.Body())
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		text := resp.Status()
		if i := strings.IndexByte(text, ' '); i >= 0 {
			text = text[i+1:]
		}
		result := DeliveryResult{
			Message:      fmt.Sprintf("回调发送失败: HTTP %d - %s", resp.StatusCode(), text),
			ResponseBody: body,
			DurationMs:   elapsed,
			ErrorCode:    CallbackErrHTTP,
		}
		d.log.Warnf("%s, 耗时 %dms", result.Message, elapsed)
		return result
	}

	d.log.Debugf("回调发送成功: %s, 耗时 %dms", url, elapsed)
	return DeliveryResult{
		Success:      true,
		Message:      CallbackSuccessMessage,
		ResponseBody: body,
		DurationMs:   elapsed,
	}
}
