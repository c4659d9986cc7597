package store

import (
	"errors"
	"sync"

	"vworkproxy/internal/model"
)

// ErrConfigIO 配置持久化失败，Save 返回的错误都包装了它
var ErrConfigIO = errors.New("config io error")

// ConfigStore 定义配置存取的接口
// 该接口抽象了 conf.ini 的读写，允许不同的实现（文件、内存等）。
type ConfigStore interface {
	// Load 读取当前配置。任何读取或解析失败都返回默认配置，不会报错。
	Load() model.Configuration
	// Save 整体保存配置，账号列表整表替换而不是增量合并。
	Save(cfg model.Configuration) error
}

// InMemoryConfigStore 是 ConfigStore 接口的内存实现
// 适用于测试和不需要落盘的嵌入场景。
type InMemoryConfigStore struct {
	cfg model.Configuration // 当前配置
	mu  sync.RWMutex        // 读写互斥锁，保证并发读写安全
}

// NewInMemoryConfigStore 创建一个以 cfg 为初始值的内存配置存储
func NewInMemoryConfigStore(cfg model.Configuration) *InMemoryConfigStore {
	return &InMemoryConfigStore{cfg: cloneConfiguration(cfg)}
}

// Load 返回配置的副本，调用方修改不会影响存储内容
func (s *InMemoryConfigStore) Load() model.Configuration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneConfiguration(s.cfg)
}

// Save 保存配置的副本
func (s *InMemoryConfigStore) Save(cfg model.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cloneConfiguration(cfg)
	return nil
}

func cloneConfiguration(cfg model.Configuration) model.Configuration {
	out := cfg
	out.Accounts = make([]model.AccountRecord, len(cfg.Accounts))
	copy(out.Accounts, cfg.Accounts)
	return out
}
