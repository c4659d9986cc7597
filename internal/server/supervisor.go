// Package server 管理对外 HTTP 服务的启动、停止和换端口重启
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vworkproxy/internal/portutil"
)

// ErrAlreadyRunning 重复启动
var ErrAlreadyRunning = errors.New("服务已在运行")

// Supervisor 持有当前运行的 HTTP 服务
// 每次启动都通过 build 重新构建 Handler，旧实例不复用。
type Supervisor struct {
	host    string
	build   func() http.Handler
	reclaim bool
	log     logrus.FieldLogger

	mu   sync.Mutex
	srv  *http.Server
	addr net.Addr
	done chan struct{}
}

// NewSupervisor 创建 Supervisor；reclaim 为 true 时启动前会结束占用端口的进程
func NewSupervisor(host string, build func() http.Handler, reclaim bool, logger logrus.FieldLogger) *Supervisor {
	return &Supervisor{
		host:    host,
		build:   build,
		reclaim: reclaim,
		log:     logger.WithField("component", "supervisor"),
	}
}

// Start 在 host:port 上启动服务，port 为 0 时由系统分配
func (s *Supervisor) Start(port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return ErrAlreadyRunning
	}

	if s.reclaim && port > 0 && portutil.IsPortInUse(port) {
		s.reclaimPort(port)
	}

	l, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("监听端口 %d 失败: %w", port, err)
	}

	srv := &http.Server{
		Handler:           s.build(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("HTTP 服务异常退出: %v", err)
		}
	}()

	s.srv, s.addr, s.done = srv, l.Addr(), done
	s.log.Infof("HTTP 服务已启动: http://%s", l.Addr())
	return nil
}

func (s *Supervisor) reclaimPort(port int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	killed, err := portutil.KillProcessByPort(ctx, port)
	if err != nil {
		s.log.Warnf("释放端口 %d 失败: %v", port, err)
	}
	if len(killed) > 0 {
		s.log.Warnf("端口 %d 被占用，已结束进程 %v", port, killed)
		portutil.WaitPortFree(port, 2*time.Second)
	}
}

// Stop 优雅停止当前服务，未运行时直接返回
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(ctx)
}

func (s *Supervisor) stopLocked(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	if err != nil {
		_ = s.srv.Close()
	}
	<-s.done
	s.log.Infof("HTTP 服务已停止: %s", s.addr)
	s.srv, s.addr, s.done = nil, nil, nil
	return err
}

// Restart 停止当前服务后在新端口上启动
func (s *Supervisor) Restart(ctx context.Context, port int) error {
	s.mu.Lock()
	err := s.stopLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		s.log.Warnf("停止旧服务时出错: %v", err)
	}
	return s.Start(port)
}

// Port 当前监听端口，未运行时为 0
func (s *Supervisor) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tcp, ok := s.addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Running 是否在运行
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv != nil
}
