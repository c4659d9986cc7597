package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"vworkproxy/internal/model"
)

const (
	sectionSys    = "sys"
	sectionCustom = "custom"

	keyServerPort = "server_port"
	keyCallback   = "callback"
	keyOpenLog    = "open_log"
	keySaveLog    = "save_log"
	keyLoginInfo  = "login_info"
)

// login_info 是一整段 JSON，不能把其中的 # 和 ; 当成行内注释
var iniOptions = ini.LoadOptions{
	IgnoreInlineComment: true,
	IgnoreContinuation:  true,
}

// IniConfigStore 把配置保存在 conf.ini 中
//
//	[sys]
//	server_port = 8888
//	callback    = http://example.com/hook
//	open_log    = true
//	save_log    = true
//
//	[custom]
//	login_info = "[{\"user_id\":\"...\",\"port\":8080,\"expire\":\"2030-01-01 00:00:00\"}]"
//
// 桌面端把以 [ 开头的值写成 JSON 字符串，读取时两种写法都接受，写入时用带引号的写法。
// 文件路径在构造时确定，进程生命周期内不变。
type IniConfigStore struct {
	path string
	log  logrus.FieldLogger
}

// NewIniConfigStore 创建基于文件的配置存储
// seedPath 非空且目标文件不存在时，会先把 seedPath 复制过去作为初始配置。
func NewIniConfigStore(path, seedPath string, logger logrus.FieldLogger) *IniConfigStore {
	s := &IniConfigStore{path: path, log: logger.WithField("component", "config_store")}
	if seedPath != "" {
		if err := s.seedFrom(seedPath); err != nil {
			// 复制失败不影响后续读取，Load 会回落到默认配置
			s.log.Warnf("初始化用户配置文件失败: %v", err)
		}
	}
	return s
}

// Path 返回配置文件路径
func (s *IniConfigStore) Path() string {
	return s.path
}

func (s *IniConfigStore) seedFrom(seedPath string) error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	}
	src, err := os.Open(seedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	dst, err := os.OpenFile(s.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// Load 读取配置，失败时返回默认配置
func (s *IniConfigStore) Load() model.Configuration {
	cfg := model.DefaultConfiguration()

	file, err := ini.LoadSources(iniOptions, s.path)
	if err != nil {
		// 每次调用都会重新读取，文件不存在时不刷错误日志
		if errors.Is(err, os.ErrNotExist) {
			s.log.Debugf("配置文件不存在，使用默认配置: %s", s.path)
		} else {
			s.log.Errorf("读取配置失败: %v", err)
		}
		return cfg
	}

	sys := file.Section(sectionSys)
	if v := strings.TrimSpace(sys.Key(keyServerPort).String()); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.ServerPort = port
		} else {
			s.log.Warnf("server_port 无效: %q，使用默认端口 %d", v, model.DefaultServerPort)
		}
	}
	cfg.CallbackURL = unquoteValue(sys.Key(keyCallback).String())
	cfg.OpenLog = boolKey(sys, keyOpenLog, cfg.OpenLog)
	cfg.SaveLog = boolKey(sys, keySaveLog, cfg.SaveLog)

	raw := unquoteValue(file.Section(sectionCustom).Key(keyLoginInfo).String())
	if raw != "" {
		var accounts []model.AccountRecord
		if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
			s.log.Errorf("解析login_info失败: %v", err)
		} else if accounts != nil {
			cfg.Accounts = accounts
		}
	}
	return cfg
}

// Save 整体写回配置
// 先写临时文件再重命名，避免写到一半时被并发读取到残缺内容。
func (s *IniConfigStore) Save(cfg model.Configuration) error {
	accounts := cfg.Accounts
	if accounts == nil {
		accounts = []model.AccountRecord{}
	}
	loginInfo, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("%w: 序列化login_info失败: %v", ErrConfigIO, err)
	}

	file := ini.Empty(iniOptions)
	sys := file.Section(sectionSys)
	sys.Key(keyServerPort).SetValue(strconv.Itoa(cfg.ServerPort))
	sys.Key(keyCallback).SetValue(cfg.CallbackURL)
	sys.Key(keyOpenLog).SetValue(strconv.FormatBool(cfg.OpenLog))
	sys.Key(keySaveLog).SetValue(strconv.FormatBool(cfg.SaveLog))
	quoted, err := quoteValue(string(loginInfo))
	if err != nil {
		return fmt.Errorf("%w: 序列化login_info失败: %v", ErrConfigIO, err)
	}
	file.Section(sectionCustom).Key(keyLoginInfo).SetValue(quoted)

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigIO, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: 创建配置目录失败: %v", ErrConfigIO, err)
	}
	tmp, err := os.CreateTemp(dir, ".conf-*.ini")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigIO, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrConfigIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrConfigIO, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: 保存配置失败: %v", ErrConfigIO, err)
	}
	s.log.Infof("配置已保存: %s (账号数: %d)", s.path, len(accounts))
	return nil
}

// unquoteValue 还原桌面端写成 JSON 字符串的值，不是 JSON 字符串时原样返回
func unquoteValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return raw
	}
	var v string
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return strings.TrimSpace(v)
}

// quoteValue 按桌面端的写法把值编码成 JSON 字符串
func quoteValue(v string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// boolKey 键不存在时返回默认值，存在时只有 "true" 才算真
func boolKey(sec *ini.Section, name string, def bool) bool {
	if !sec.HasKey(name) {
		return def
	}
	return strings.EqualFold(strings.TrimSpace(sec.Key(name).String()), "true")
}
