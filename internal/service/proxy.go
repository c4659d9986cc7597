package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vworkproxy/internal/model"
	"vworkproxy/internal/store"
	"vworkproxy/pkg/vwork"
)

// Upstream 企微本地接口
type Upstream interface {
	Call(ctx context.Context, port int, body map[string]any) (any, error)
}

// Deliverer 回调投递
type Deliverer interface {
	Deliver(ctx context.Context, url string, payload any) DeliveryResult
}

// Proxy 按端口把调用转发给对应账号的企微进程
//
// 除登录相关接口外都要先校验授权；调用结束后的桌面推送、运行日志和回调
// 都在后台执行，不影响给调用方的响应。Proxy 本身不保存状态，配置每次调用都重新读取。
type Proxy struct {
	store     store.ConfigStore
	upstream  Upstream
	notifier  *Notifier
	callbacks Deliverer
	log       logrus.FieldLogger
	tasks     background

	now   func() time.Time
	newID func() string
}

// NewProxy 创建代理
func NewProxy(cfgStore store.ConfigStore, upstream Upstream, notifier *Notifier, callbacks Deliverer, logger logrus.FieldLogger) *Proxy {
	log := logger.WithField("component", "proxy")
	return &Proxy{
		store:     cfgStore,
		upstream:  upstream,
		notifier:  notifier,
		callbacks: callbacks,
		log:       log,
		tasks:     background{log: log},
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Call 执行一次代理调用
//
// 缺参和未授权直接返回 *CallError，不会访问企微；传输层失败返回 *CallError
// 和 Success=false 的结果；企微有响应时 error 为 nil，成败看 result.Success。
func (p *Proxy) Call(ctx context.Context, req model.OperationRequest) (model.OperationResult, error) {
	if !req.HasPort || req.Port <= 0 {
		return p.reject(MissingParameter("port", "企微的HTTP端口"))
	}
	if !req.HasType {
		return p.reject(MissingParameter("type", "API类型"))
	}

	cfg := p.store.Load()
	exempt := vwork.IsLoginExempt(req.Type)
	authorized := IsAuthorized(cfg.ExpireByPort(req.Port), p.now())
	if !exempt && !authorized {
		p.log.Warnf("端口 %d 授权无效，拒绝调用 type=%d", req.Port, req.Type)
		return p.reject(&CallError{Kind: KindNotAuthorized, Message: NotAuthorizedMessage})
	}

	body := req.Body()
	payload, err := p.upstream.Call(ctx, req.Port, body)

	var (
		result  model.OperationResult
		callErr *CallError
	)
	if err != nil {
		callErr = fromUpstream(err)
		result = model.OperationResult{Success: false, Message: callErr.Message}
		p.log.Warnf("调用企微失败 port=%d type=%d: %v", req.Port, req.Type, err)
	} else {
		ok, reason := ClassifyPayload(payload)
		result = model.OperationResult{Success: ok, Payload: payload, Message: reason}
	}

	p.afterCall(cfg, req, body, result, authorized)

	if callErr != nil {
		return result, callErr
	}
	return result, nil
}

func (p *Proxy) reject(err *CallError) (model.OperationResult, error) {
	return model.OperationResult{Success: false, Message: err.Message}, err
}

// afterCall 推送调用结果，授权有效且配置了回调时再投递回调
func (p *Proxy) afterCall(cfg model.Configuration, req model.OperationRequest, body map[string]any, result model.OperationResult, authorized bool) {
	name := vwork.OperationName(req.Type)
	saveLog := cfg.ShouldSaveLog()

	if cfg.OpenLog && p.notifier != nil {
		content := name + " 成功"
		if !result.Success {
			content = name + " 失败: " + result.Message
		}
		ts := p.now().Unix()
		p.tasks.Go("notify", func() {
			p.notifier.Publish(context.Background(), model.Notification{Entry: model.SystemEntry(content, ts)}, saveLog)
		})
	}

	if !authorized || !cfg.CallbackConfigured() || p.callbacks == nil {
		return
	}

	event := map[string]any{
		"event":      "api_call",
		"request_id": p.newID(),
		"port":       req.Port,
		"type":       req.Type,
		"name":       name,
		"request":    body,
		"response":   result.Payload,
		"success":    result.Success,
		"message":    result.Message,
		"time_stamp": p.now().Unix(),
	}
	url := cfg.CallbackURL
	p.tasks.Go("callback", func() {
		res := p.callbacks.Deliver(context.Background(), url, event)
		if !res.Success && cfg.OpenLog && p.notifier != nil {
			p.notifier.System(context.Background(), res.Message, saveLog)
		}
	})
}

// Wait 等待后台的推送和回调完成，用于退出前和测试
func (p *Proxy) Wait() {
	p.tasks.Wait()
}
