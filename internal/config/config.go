package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// DefaultAppConfigPath 进程配置文件的默认位置，可通过环境变量 APP_CONFIG 覆盖
var DefaultAppConfigPath = filepath.Join("config", "app.yaml")

// DefaultMessageServerURL 桌面端消息推送地址的默认值，与内置推送中心的默认监听地址一致
const DefaultMessageServerURL = "http://127.0.0.1:9999/message"

// UIHubConfig 内置桌面推送中心的配置
type UIHubConfig struct {
	Enable bool   `yaml:"enable"` // 是否在本进程内启动推送中心
	Addr   string `yaml:"addr"`   // 推送中心监听地址，例如 "127.0.0.1:9999"
}

// AppConfig 进程级配置
// 用户可编辑的账号、回调、日志开关保存在 conf.ini 中，由 store 包负责读写；
// 这里只放进程启动时需要的路径、超时和诊断日志设置。
type AppConfig struct {
	ConfigPath     string `yaml:"config_path"`      // conf.ini 路径
	ConfigSeedPath string `yaml:"config_seed_path"` // 首次运行时复制的默认 conf.ini，可为空
	ListenHost     string `yaml:"listen_host"`      // 代理服务监听地址，默认只监听本机

	LogDir         string `yaml:"log_dir"`          // 运行日志主目录，日志写在 <log_dir>/logs/runLog 下
	LogFallbackDir string `yaml:"log_fallback_dir"` // 主目录写入失败时的备用目录

	MessageServerURL string      `yaml:"message_server_url"` // 桌面端推送地址，环境变量 MESSAGE_SERVER_URL 优先
	UIHub            UIHubConfig `yaml:"ui_hub"`

	APITimeoutSeconds      int `yaml:"api_timeout_seconds"`      // 调用企微接口的超时
	CallbackTimeoutSeconds int `yaml:"callback_timeout_seconds"` // 外部回调的超时
	NotifyTimeoutSeconds   int `yaml:"notify_timeout_seconds"`   // 推送桌面端的超时

	RunLogRetentionDays int    `yaml:"run_log_retention_days"` // 运行日志保留天数，0 表示不清理
	RunLogCleanupCron   string `yaml:"run_log_cleanup_cron"`   // 清理任务的 Cron 表达式

	LogLevel      string `yaml:"log_level"`        // 诊断日志级别，例如 "info"、"debug"
	LogToFile     bool   `yaml:"log_to_file"`      // 诊断日志是否写文件
	LogFilePath   string `yaml:"log_file_path"`    // 诊断日志文件路径
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`  // 单个日志文件最大大小 (MB)
	LogMaxBackups int    `yaml:"log_max_backups"`  // 保留旧日志文件的个数
	LogMaxAgeDays int    `yaml:"log_max_age_days"` // 保留旧日志文件的天数
	LogCompress   bool   `yaml:"log_compress"`     // 是否压缩旧日志
}

// Defaults 返回所有字段都已填好默认值的配置
func Defaults() AppConfig {
	return AppConfig{
		ConfigPath:             filepath.Join("conf", "conf.ini"),
		ListenHost:             "127.0.0.1",
		LogDir:                 ".",
		MessageServerURL:       DefaultMessageServerURL,
		UIHub:                  UIHubConfig{Enable: true, Addr: "127.0.0.1:9999"},
		APITimeoutSeconds:      10,
		CallbackTimeoutSeconds: 10,
		NotifyTimeoutSeconds:   1,
		RunLogRetentionDays:    30,
		RunLogCleanupCron:      "0 3 * * *",
		LogLevel:               "info",
		LogFilePath:            filepath.Join("logs", "app.log"),
		LogMaxSizeMB:           100,
		LogMaxBackups:          5,
		LogMaxAgeDays:          30,
	}
}

// APITimeout 调用企微接口的超时
func (c *AppConfig) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

// CallbackTimeout 外部回调的超时
func (c *AppConfig) CallbackTimeout() time.Duration {
	return time.Duration(c.CallbackTimeoutSeconds) * time.Second
}

// NotifyTimeout 推送桌面端的超时
func (c *AppConfig) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutSeconds) * time.Second
}

// Validate 检查必要配置项
func (c *AppConfig) Validate() error {
	if c.ConfigPath == "" {
		return fmt.Errorf("config_path 未配置")
	}
	if c.LogDir == "" {
		return fmt.Errorf("log_dir 未配置")
	}
	if c.APITimeoutSeconds <= 0 || c.CallbackTimeoutSeconds <= 0 || c.NotifyTimeoutSeconds <= 0 {
		return fmt.Errorf("超时时间必须大于 0")
	}
	if c.RunLogRetentionDays < 0 {
		return fmt.Errorf("run_log_retention_days 不能为负数")
	}
	if c.UIHub.Enable && c.UIHub.Addr == "" {
		return fmt.Errorf("推送中心已开启但未配置监听地址")
	}
	if c.LogToFile && c.LogFilePath == "" {
		return fmt.Errorf("日志文件输出已开启但未配置 log_file_path")
	}
	return nil
}

// LoadConfig 加载进程配置
// 先尝试读取 YAML 文件（path 为空时使用 APP_CONFIG 或默认路径），
// 文件不存在时回退到环境变量。两种方式都以 Defaults() 为底。
func LoadConfig(path string) (*AppConfig, error) {
	if path == "" {
		path = os.Getenv("APP_CONFIG")
	}
	if path == "" {
		path = DefaultAppConfigPath
	}

	cfg := Defaults()
	if _, fileErr := os.Stat(path); fileErr == nil {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("读取 YAML 配置失败: %w", readErr)
		}
		// 替换 ${ENV_VAR} 占位符
		content := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置失败: %w", err)
		}
	} else if os.IsNotExist(fileErr) {
		loadFromEnv(&cfg)
	} else {
		return nil, fmt.Errorf("检查 YAML 配置文件失败: %w", fileErr)
	}

	// 推送地址由桌面端通过环境变量下发，始终优先
	if url := os.Getenv("MESSAGE_SERVER_URL"); url != "" {
		cfg.MessageServerURL = url
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return &cfg, nil
}

// loadFromEnv 用环境变量覆盖默认值，未设置的变量保持默认
func loadFromEnv(cfg *AppConfig) {
	cfg.ConfigPath = getEnv("CONFIG_PATH", cfg.ConfigPath)
	cfg.ConfigSeedPath = getEnv("CONFIG_SEED_PATH", cfg.ConfigSeedPath)
	cfg.ListenHost = getEnv("LISTEN_HOST", cfg.ListenHost)
	cfg.LogDir = getEnv("LOG_DIR", cfg.LogDir)
	cfg.LogFallbackDir = getEnv("LOG_FALLBACK_DIR", cfg.LogFallbackDir)
	cfg.UIHub.Enable = parseBool(os.Getenv("UI_HUB_ENABLE"), cfg.UIHub.Enable)
	cfg.UIHub.Addr = getEnv("UI_HUB_ADDR", cfg.UIHub.Addr)
	cfg.APITimeoutSeconds = parseInt(os.Getenv("API_TIMEOUT_SECONDS"), cfg.APITimeoutSeconds)
	cfg.CallbackTimeoutSeconds = parseInt(os.Getenv("CALLBACK_TIMEOUT_SECONDS"), cfg.CallbackTimeoutSeconds)
	cfg.NotifyTimeoutSeconds = parseInt(os.Getenv("NOTIFY_TIMEOUT_SECONDS"), cfg.NotifyTimeoutSeconds)
	cfg.RunLogRetentionDays = parseInt(os.Getenv("RUN_LOG_RETENTION_DAYS"), cfg.RunLogRetentionDays)
	cfg.RunLogCleanupCron = getEnv("RUN_LOG_CLEANUP_CRON", cfg.RunLogCleanupCron)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogToFile = parseBool(os.Getenv("LOG_TO_FILE"), cfg.LogToFile)
	cfg.LogFilePath = getEnv("LOG_FILE_PATH", cfg.LogFilePath)
	cfg.LogMaxSizeMB = parseInt(os.Getenv("LOG_MAX_SIZE_MB"), cfg.LogMaxSizeMB)
	cfg.LogMaxBackups = parseInt(os.Getenv("LOG_MAX_BACKUPS"), cfg.LogMaxBackups)
	cfg.LogMaxAgeDays = parseInt(os.Getenv("LOG_MAX_AGE_DAYS"), cfg.LogMaxAgeDays)
	cfg.LogCompress = parseBool(os.Getenv("LOG_COMPRESS"), cfg.LogCompress)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseInt 字符串为空或转换失败时返回默认值
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}

func parseBool(s string, defaultValue bool) bool {
	if s == "" {
		return defaultValue
	}
	return s == "true"
}
