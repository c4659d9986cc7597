package handler

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RecoveryMiddleware 从 panic 中恢复，并返回 500 错误
func RecoveryMiddleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorf("Panic recovered: %v\n%s", err, debug.Stack())
				ResponseError(c, http.StatusInternalServerError, fmt.Sprintf("服务器内部错误: %v", err))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// AccessLogMiddleware 记录每个请求的方法、路径、状态码和耗时
func AccessLogMiddleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("请求处理完成")
			return
		}
		entry.Debug("请求处理完成")
	}
}
