package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vworkproxy/internal/model"
)

// RunLogDir 运行日志相对日志根目录的位置
const RunLogDir = "logs/runLog"

// LogSink 运行日志的写入端
type LogSink interface {
	Append(entry model.LogEntry) error
}

// RunLog 按天写入 <root>/logs/runLog/YYYY-MM-DD.log
// 主目录写入失败时，同样的内容再写一次备用目录。
type RunLog struct {
	roots []string
	now   func() time.Time
	mu    sync.Mutex
}

// NewRunLog 创建运行日志，fallback 可以为空
func NewRunLog(primary, fallback string) *RunLog {
	roots := []string{primary}
	if fallback != "" && fallback != primary {
		roots = append(roots, fallback)
	}
	return &RunLog{roots: roots, now: time.Now}
}

// Roots 返回日志根目录，主目录在前
func (l *RunLog) Roots() []string {
	return append([]string(nil), l.roots...)
}

// FilePath 返回某个根目录下指定日期的日志文件
func FilePath(root string, day time.Time) string {
	return filepath.Join(root, RunLogDir, day.Format("2006-01-02")+".log")
}

// Append 实现 LogSink
func (l *RunLog) Append(entry model.LogEntry) error {
	at := entry.Time(l.now())
	line := entry.Format(at) + "\n"

	// 同一进程内串行追加，避免两条日志交错
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, root := range l.roots {
		err := appendLine(FilePath(root, at), line)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("写入运行日志失败: %w", errors.Join(errs...))
}

func appendLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
