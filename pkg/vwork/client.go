package vwork

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// DefaultHost 企微进程只监听本机
const DefaultHost = "127.0.0.1"

// ErrorKind 调用企微接口失败的类别
type ErrorKind int

const (
	KindUnknown     ErrorKind = iota // 其他错误
	KindUnreachable                  // 连接被拒绝，企微未启动
	KindTimeout                      // 请求超时
	KindBadResponse                  // 非 2xx 状态码或无法解析的响应
)

// Error 调用企微接口失败
// Error() 返回可直接展示给调用方的中文说明。
type Error struct {
	Kind       ErrorKind
	Port       int
	StatusCode int    // KindBadResponse 时的 HTTP 状态码，响应无法解析时为 2xx
	StatusText string // KindBadResponse 时的状态描述
	Body       string // KindBadResponse 时的原始响应体
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnreachable:
		return fmt.Sprintf("无法连接到企微服务 (端口 %d)，请确认企微已启动", e.Port)
	case KindTimeout:
		return "请求超时，请稍后重试"
	case KindBadResponse:
		if e.StatusCode >= 200 && e.StatusCode < 300 {
			return fmt.Sprintf("企微API返回了无法解析的响应: %s", e.Body)
		}
		msg := fmt.Sprintf("企微API返回错误: HTTP %d - %s", e.StatusCode, e.StatusText)
		if e.Body != "" {
			msg += " - " + e.Body
		}
		return msg
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "调用企微API失败"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client 企微本地 HTTP 接口的客户端
// 每个登录账号对应一个企微进程，各自监听一个本地端口，接口统一为 POST /api，
// 请求体 {type, ...params}，按 type 区分具体操作。
type Client struct {
	http *resty.Client
	host string
	log  logrus.FieldLogger
}

// NewClient 创建客户端，timeout 是单次调用的上限
func NewClient(timeout time.Duration, logger logrus.FieldLogger) *Client {
	return &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		host: DefaultHost,
		log:  logger.WithField("component", "vwork"),
	}
}

// APIURL 返回指定端口的接口地址
func (c *Client) APIURL(port int) string {
	return fmt.Sprintf("http://%s:%d/api", c.host, port)
}

// Call 调用企微接口，返回解析后的 JSON
// 企微没有统一的响应外壳，这里只负责传输层，业务成败由调用方判断。
func (c *Client) Call(ctx context.Context, port int, body map[string]any) (any, error) {
	url := c.APIURL(port)
	c.log.Debugf("调用企微接口 %s, type=%v", url, body["type"])

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(url)
	if err != nil {
		return nil, &Error{Kind: classifyTransport(err), Port: port, Err: err}
	}

	raw := resp.Body()
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &Error{
			Kind:       KindBadResponse,
			Port:       port,
			StatusCode: resp.StatusCode(),
			StatusText: statusText(resp),
			Body:       string(raw),
		}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	payload, err := decodeJSON(raw)
	if err != nil {
		return nil, &Error{
			Kind:       KindBadResponse,
			Port:       port,
			StatusCode: resp.StatusCode(),
			StatusText: statusText(resp),
			Body:       string(raw),
			Err:        err,
		}
	}
	return payload, nil
}

// decodeJSON 数字保留为 json.Number，避免大整数 ID 丢精度
func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// statusText 去掉 "404 Not Found" 前面的数字部分
func statusText(resp *resty.Response) string {
	status := resp.Status()
	if i := strings.IndexByte(status, ' '); i >= 0 {
		return status[i+1:]
	}
	return status
}

// classifyTransport 识别连接被拒绝和超时
func classifyTransport(err error) ErrorKind {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindUnreachable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	// Windows 下的 WSAECONNREFUSED 不等于 syscall.ECONNREFUSED
	if strings.Contains(strings.ToLower(err.Error()), "connection refused") ||
		strings.Contains(err.Error(), "actively refused") {
		return KindUnreachable
	}
	return KindUnknown
}

// IsConnRefused 判断错误是否为连接被拒绝
func IsConnRefused(err error) bool {
	return err != nil && classifyTransport(err) == KindUnreachable
}

// IsTimeout 判断错误是否为超时
func IsTimeout(err error) bool {
	return err != nil && classifyTransport(err) == KindTimeout
}
