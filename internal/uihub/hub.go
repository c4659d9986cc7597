// Package uihub 桌面端的消息中转：POST /message 收到的事件通过 WebSocket 广播给所有连接
package uihub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	sendBuffer = 64
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub 管理所有 WebSocket 连接
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     logrus.FieldLogger
}

// New 创建 Hub
func New(logger logrus.FieldLogger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		log:     logger.WithField("component", "uihub"),
	}
}

// Router 返回 Hub 的路由：POST /message 和 GET /ws
func (h *Hub) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/message", h.handleMessage)
	r.GET("/ws", h.handleWS)
	return r
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast 把一条消息发给所有连接，发送队列已满的连接直接断开
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn("客户端消费过慢，断开连接")
			h.removeLocked(c)
		}
	}
}

// Close 断开所有连接
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) handleMessage(c *gin.Context) {
	var event map[string]any
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	msg, err := json.Marshal(event)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	h.Broadcast(msg)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Hub) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warnf("WebSocket 升级失败: %v", err)
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	h.log.Debugf("桌面端已连接: %s", conn.RemoteAddr())

	go h.writeLoop(cl)
	h.readLoop(cl)
}

// readLoop 只用来感知断开和处理 pong
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
