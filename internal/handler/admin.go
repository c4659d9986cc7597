package handler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"vworkproxy/internal/model"
	"vworkproxy/internal/portutil"
	"vworkproxy/internal/store"
)

// Restarter 换端口重启对外服务，由 server.Supervisor 实现
type Restarter interface {
	Restart(ctx context.Context, port int) error
	Port() int
}

// AdminHandler 桌面端使用的本机管理接口：读写配置、端口工具和重启服务
type AdminHandler struct {
	store  store.ConfigStore
	server Restarter
	log    logrus.FieldLogger

	restartTimeout time.Duration
	restarts       sync.WaitGroup

	findPort  func(start int) (int, error)
	portInUse func(port int) bool
	killPort  func(ctx context.Context, port int) ([]int, error)
}

// NewAdminHandler 创建 AdminHandler
func NewAdminHandler(cfgStore store.ConfigStore, server Restarter, logger logrus.FieldLogger) *AdminHandler {
	return &AdminHandler{
		store:          cfgStore,
		server:         server,
		log:            logger.WithField("component", "admin"),
		restartTimeout: 5 * time.Second,
		findPort:       portutil.FindAvailablePort,
		portInUse:      portutil.IsPortInUse,
		killPort:       portutil.KillProcessByPort,
	}
}

// Register 注册管理接口，只允许本机访问
func (h *AdminHandler) Register(admin *gin.RouterGroup) {
	admin.Use(LocalOnlyMiddleware())
	admin.GET("/config", h.GetConfig)
	admin.PUT("/config", h.SaveConfig)
	admin.GET("/port/available", h.FindAvailablePort)
	admin.GET("/port/check", h.CheckPort)
	admin.POST("/port/kill", h.KillPort)
	admin.POST("/server/restart", h.RestartServer)
}

// GetConfig 返回当前 conf.ini 内容
func (h *AdminHandler) GetConfig(c *gin.Context) {
	ResponseSuccess(c, h.store.Load())
}

// SaveConfig 整体替换配置，请求体中缺少的开关取默认值
func (h *AdminHandler) SaveConfig(c *gin.Context) {
	cfg := model.DefaultConfiguration()
	if err := c.ShouldBindJSON(&cfg); err != nil {
		ResponseError(c, http.StatusBadRequest, "配置格式错误: "+err.Error())
		return
	}
	if cfg.ServerPort <= 0 || cfg.ServerPort > 65535 {
		ResponseError(c, http.StatusBadRequest, "server_port 无效")
		return
	}
	if cfg.Accounts == nil {
		cfg.Accounts = []model.AccountRecord{}
	}
	if err := h.store.Save(cfg); err != nil {
		h.log.Errorf("保存配置失败: %v", err)
		ResponseError(c, http.StatusInternalServerError, err.Error())
		return
	}
	ResponseSuccess(c, cfg)
}

// FindAvailablePort 从 start 开始查找空闲端口，start 缺省为默认服务端口
func (h *AdminHandler) FindAvailablePort(c *gin.Context) {
	start := model.DefaultServerPort
	if v := c.Query("start"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			ResponseError(c, http.StatusBadRequest, "start 必须是正整数")
			return
		}
		start = n
	}
	port, err := h.findPort(start)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, portutil.ErrNoAvailablePort) {
			status = http.StatusNotFound
		}
		ResponseError(c, status, err.Error())
		return
	}
	ResponseSuccess(c, gin.H{"port": port})
}

// CheckPort 检查端口是否被占用
func (h *AdminHandler) CheckPort(c *gin.Context) {
	port, ok := portParam(c.Query("port"))
	if !ok {
		ResponseError(c, http.StatusBadRequest, "port 无效")
		return
	}
	ResponseSuccess(c, gin.H{"port": port, "in_use": h.portInUse(port)})
}

type portBody struct {
	Port int `json:"port"`
}

// KillPort 结束占用端口的进程，本服务正在使用的端口不允许操作
func (h *AdminHandler) KillPort(c *gin.Context) {
	var body portBody
	if err := c.ShouldBindJSON(&body); err != nil {
		ResponseError(c, http.StatusBadRequest, "请求体不是有效的JSON: "+err.Error())
		return
	}
	if _, ok := portParam(strconv.Itoa(body.Port)); !ok {
		ResponseError(c, http.StatusBadRequest, "port 无效")
		return
	}
	if body.Port == h.server.Port() {
		ResponseError(c, http.StatusConflict, "不能结束本服务占用的端口")
		return
	}

	killed, err := h.killPort(c.Request.Context(), body.Port)
	if err != nil {
		h.log.Warnf("结束端口 %d 的进程失败: %v", body.Port, err)
		ResponseError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if killed == nil {
		killed = []int{}
	}
	h.log.Infof("已结束端口 %d 的进程 %v", body.Port, killed)
	ResponseSuccess(c, gin.H{"port": body.Port, "pids": killed})
}

// RestartServer 在响应发出后重启对外服务
// 未指定端口时使用 conf.ini 中的 server_port。
func (h *AdminHandler) RestartServer(c *gin.Context) {
	var body portBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			ResponseError(c, http.StatusBadRequest, "请求体不是有效的JSON: "+err.Error())
			return
		}
	}
	port := body.Port
	if port == 0 {
		port = h.store.Load().ServerPort
	}
	if _, ok := portParam(strconv.Itoa(port)); !ok {
		ResponseError(c, http.StatusBadRequest, "port 无效")
		return
	}

	ResponseSuccess(c, gin.H{"port": port})

	// 当前请求结束后旧服务才能停下，所以放到后台执行
	h.restarts.Add(1)
	go func() {
		defer h.restarts.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.restartTimeout)
		defer cancel()
		h.log.Infof("正在重启服务，端口: %d", port)
		if err := h.server.Restart(ctx, port); err != nil {
			h.log.Errorf("重启服务失败: %v", err)
		}
	}()
}

// Wait 等待进行中的重启完成
func (h *AdminHandler) Wait() {
	h.restarts.Wait()
}

func portParam(v string) (int, bool) {
	port, err := strconv.Atoi(v)
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

// LocalOnlyMiddleware 只放行来自本机且不是外部网页发起的请求
func LocalOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := net.ParseIP(c.RemoteIP())
		if ip == nil || !ip.IsLoopback() || !localOrigin(c.GetHeader("Origin")) {
			ResponseError(c, http.StatusForbidden, "管理接口只允许本机访问")
			c.Abort()
			return
		}
		c.Next()
	}
}

// localOrigin 没有 Origin 或 Origin 指向本机时为 true
func localOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
