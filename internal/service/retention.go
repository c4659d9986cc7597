package service

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// RetentionJob 定期删除过期的运行日志
type RetentionJob struct {
	roots []string
	days  int
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewRetentionJob days 为 0 时不删除任何文件
func NewRetentionJob(roots []string, days int, logger logrus.FieldLogger) *RetentionJob {
	return &RetentionJob{
		roots: roots,
		days:  days,
		log:   logger.WithField("component", "retention"),
		now:   time.Now,
	}
}

// Schedule 把清理任务注册到调度器
func (j *RetentionJob) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() { j.Run() })
}

// Run 执行一次清理，返回删除的文件数
func (j *RetentionJob) Run() int {
	if j.days <= 0 {
		return 0
	}
	now := j.now()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -j.days)

	removed := 0
	for _, root := range j.roots {
		dir := filepath.Join(root, RunLogDir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				j.log.Warnf("读取运行日志目录 %s 失败: %v", dir, err)
			}
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
				continue
			}
			day, err := time.ParseInLocation("2006-01-02", strings.TrimSuffix(e.Name(), ".log"), now.Location())
			if err != nil || !day.Before(cutoff) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if err := os.Remove(path); err != nil {
				j.log.Warnf("删除过期运行日志 %s 失败: %v", path, err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		j.log.Infof("已清理 %d 个超过 %d 天的运行日志", removed, j.days)
	}
	return removed
}
