package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Acceptor 接收企微推送，由 service.InboundPipeline 实现
type Acceptor interface {
	Accept(data map[string]any)
}

// MessageHandler 处理企微推送到 /msg 的消息
type MessageHandler struct {
	inbound Acceptor
	log     logrus.FieldLogger
}

// NewMessageHandler 创建 MessageHandler
func NewMessageHandler(inbound Acceptor, logger logrus.FieldLogger) *MessageHandler {
	return &MessageHandler{inbound: inbound, log: logger.WithField("component", "msg")}
}

// HandleMessage 无论处理结果如何都返回 {"message":"success"}，否则企微会重复推送
func (h *MessageHandler) HandleMessage(c *gin.Context) {
	body, err := decodeBody(c.Request.Body)
	if err != nil {
		h.log.Warnf("解析推送消息失败: %v, 调用方: %s", err, c.ClientIP())
	} else {
		h.log.Debugf("收到推送消息, 调用方: %s", c.ClientIP())
		h.inbound.Accept(body)
	}
	c.JSON(http.StatusOK, gin.H{"message": "success"})
}
