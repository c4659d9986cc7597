package service

import (
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

// background 跟踪请求返回后继续执行的旁路任务
type background struct {
	wg  sync.WaitGroup
	log logrus.FieldLogger
}

// Go 在新 goroutine 中执行 fn，panic 会被记录而不是让进程退出
func (b *background) Go(name string, fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.log.WithField("task", name).Errorf("后台任务 panic: %v\n%s", r, debug.Stack())
			}
		}()
		fn()
	}()
}

// Wait 等待所有已提交的任务结束
func (b *background) Wait() {
	b.wg.Wait()
}
