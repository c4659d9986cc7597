package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"vworkproxy/internal/config"
	"vworkproxy/internal/handler"
	"vworkproxy/internal/model"
	"vworkproxy/internal/server"
	"vworkproxy/internal/service"
	"vworkproxy/internal/store"
	"vworkproxy/internal/uihub"
	"vworkproxy/pkg/vwork"
)

// Version 应用程序版本号
var Version = "v1.0.0"

func main() {
	appConfigPath := flag.String("config", "", "进程配置文件路径 (默认 config/app.yaml 或 APP_CONFIG)")
	portFlag := flag.Int("port", 0, "代理服务端口，默认取 conf.ini 中的 server_port")
	showVersion := flag.Bool("version", false, "显示版本信息")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vworkproxy %s\n", Version)
		return
	}

	// .env 只是可选的本地覆盖
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "加载 .env 失败: %v\n", err)
	}

	cfg, err := config.LoadConfig(*appConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	logger.Infof("vworkproxy 版本: %s", Version)

	cfgStore := store.NewIniConfigStore(cfg.ConfigPath, cfg.ConfigSeedPath, logger)
	logger.Infof("用户配置文件: %s", cfgStore.Path())

	// 桌面推送中心
	var hubServer *http.Server
	if cfg.UIHub.Enable {
		hub := uihub.New(logger)
		hubServer = &http.Server{Addr: cfg.UIHub.Addr, Handler: hub.Router(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logger.Infof("桌面推送中心已启动: http://%s", cfg.UIHub.Addr)
			if err := hubServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("桌面推送中心启动失败: %v", err)
			}
		}()
		defer hub.Close()
	}

	runLog := service.NewRunLog(cfg.LogDir, cfg.LogFallbackDir)
	notifier := service.NewNotifier(service.NewHTTPPusher(cfg.MessageServerURL, cfg.NotifyTimeout()), runLog, logger)
	callbacks := service.NewCallbackDispatcher(cfg.CallbackTimeout(), logger)
	proxy := service.NewProxy(cfgStore, vwork.NewClient(cfg.APITimeout(), logger), notifier, callbacks, logger)
	inbound := service.NewInboundPipeline(cfgStore, notifier, callbacks, logger)

	apiHandler := handler.NewAPIHandler(proxy, logger)
	msgHandler := handler.NewMessageHandler(inbound, logger)
	var adminHandler *handler.AdminHandler
	supervisor := server.NewSupervisor(cfg.ListenHost, func() http.Handler {
		return handler.SetupRouter(apiHandler, msgHandler, adminHandler, logger)
	}, true, logger)
	adminHandler = handler.NewAdminHandler(cfgStore, supervisor, logger)

	// 运行日志清理
	c := cron.New()
	retention := service.NewRetentionJob(runLog.Roots(), cfg.RunLogRetentionDays, logger)
	if cfg.RunLogRetentionDays > 0 {
		if _, err := retention.Schedule(c, cfg.RunLogCleanupCron); err != nil {
			logger.Fatalf("添加运行日志清理任务失败: %v", err)
		}
		go retention.Run()
		logger.Infof("运行日志保留 %d 天，清理时间: '%s'", cfg.RunLogRetentionDays, cfg.RunLogCleanupCron)
	}
	c.Start()

	port := listenPort(*portFlag, cfgStore.Load())
	if err := supervisor.Start(port); err != nil {
		logger.Fatalf("服务器启动失败: %v", err)
	}

	// SIGHUP 重新读取 conf.ini，端口变化时重启服务；SIGINT/SIGTERM 退出
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigs {
		if sig == syscall.SIGHUP {
			next := listenPort(*portFlag, cfgStore.Load())
			if next == supervisor.Port() {
				logger.Info("收到 SIGHUP，端口未变化，无需重启")
				continue
			}
			logger.Infof("收到 SIGHUP，服务端口变更为 %d，正在重启", next)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := supervisor.Restart(ctx, next); err != nil {
				logger.Errorf("重启服务失败: %v", err)
			}
			cancel()
			continue
		}
		logger.Infof("收到信号 %s，正在退出", sig)
		break
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	adminHandler.Wait()
	if err := supervisor.Stop(ctx); err != nil {
		logger.Warnf("停止服务时出错: %v", err)
	}
	<-c.Stop().Done()
	// 等待后台的推送、日志和回调写完
	proxy.Wait()
	inbound.Wait()
	if hubServer != nil {
		_ = hubServer.Shutdown(ctx)
	}
	logger.Info("已退出")
}

// newLogger 根据配置设置日志级别和输出目标
func newLogger(cfg *config.AppConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.LogToFile {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFilePath,   // 日志文件路径，例如 "logs/app.log"
			MaxSize:    cfg.LogMaxSizeMB,  // 单个日志文件的最大大小（MB）
			MaxBackups: cfg.LogMaxBackups, // 保留旧日志文件的最大个数
			MaxAge:     cfg.LogMaxAgeDays, // 保留旧日志文件的最大天数
			Compress:   cfg.LogCompress,   // 是否压缩旧的日志文件（gzip 格式）
		})
		logger.Printf("日志已重定向到文件: %s (最大大小: %dMB, 最大备份: %d, 最大天数: %d, 压缩: %t)",
			cfg.LogFilePath, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	} else {
		logger.SetOutput(os.Stdout)
	}
	return logger
}

// listenPort 命令行参数优先，其次是 conf.ini 的 server_port
func listenPort(flagPort int, userCfg model.Configuration) int {
	if flagPort > 0 {
		return flagPort
	}
	if userCfg.ServerPort > 0 {
		return userCfg.ServerPort
	}
	return model.DefaultServerPort
}
