package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"vworkproxy/internal/model"
	"vworkproxy/internal/store"
)

// NotAuthorizedNotice 收到未授权账号的推送时提示桌面端
const NotAuthorizedNotice = "当前授权已到期，请重新购买授权"

// InboundPipeline 处理企微推送到 /msg 的消息
// 对调用方永远返回成功，所有失败只记录日志，避免企微反复重推。
type InboundPipeline struct {
	store     store.ConfigStore
	notifier  *Notifier
	callbacks Deliverer
	log       logrus.FieldLogger
	tasks     background
	now       func() time.Time
}

// NewInboundPipeline 创建推送消息处理器
func NewInboundPipeline(cfgStore store.ConfigStore, notifier *Notifier, callbacks Deliverer, logger logrus.FieldLogger) *InboundPipeline {
	log := logger.WithField("component", "inbound")
	return &InboundPipeline{
		store:     cfgStore,
		notifier:  notifier,
		callbacks: callbacks,
		log:       log,
		tasks:     background{log: log},
		now:       time.Now,
	}
}

// Accept 在后台处理一条推送，立即返回
func (p *InboundPipeline) Accept(data map[string]any) {
	p.tasks.Go("msg", func() {
		p.Handle(context.Background(), data)
	})
}

// Handle 同步处理一条推送
func (p *InboundPipeline) Handle(ctx context.Context, data map[string]any) {
	cfg := p.store.Load()

	selfID := model.AsString(data["self_user_id"])
	if selfID == "" {
		selfID = model.AsString(data["user_id"])
	}
	authorized := IsAuthorized(cfg.ExpireByUserID(selfID), p.now())
	saveLog := cfg.ShouldSaveLog()

	if !authorized {
		p.log.Warnf("账号 %q 授权无效，忽略推送", selfID)
		if cfg.OpenLog && p.notifier != nil {
			p.notifier.System(ctx, NotAuthorizedNotice, saveLog)
		}
		return
	}

	if cfg.OpenLog && p.notifier != nil {
		p.notifier.Publish(ctx, model.Notification{Payload: data, Entry: model.EntryFromMessage(data)}, saveLog)
	}

	if !cfg.CallbackConfigured() || p.callbacks == nil {
		return
	}
	res := p.callbacks.Deliver(ctx, cfg.CallbackURL, data)
	if !res.Success && cfg.OpenLog && p.notifier != nil {
		p.notifier.System(ctx, res.Message, saveLog)
	}
}

// Wait 等待后台处理完成
func (p *InboundPipeline) Wait() {
	p.tasks.Wait()
}
