package handler

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRouter 设置所有路由，admin 为 nil 时不注册管理接口
func SetupRouter(api *APIHandler, msg *MessageHandler, admin *AdminHandler, logger logrus.FieldLogger) *gin.Engine {
	r := gin.New()

	r.Use(RecoveryMiddleware(logger))
	r.Use(AccessLogMiddleware(logger.WithField("component", "http")))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/", GetRoot)
	r.POST("/msg", msg.HandleMessage)

	api.Register(r.Group("/api"))
	if admin != nil {
		admin.Register(r.Group("/admin"))
	}
	return r
}

// GetRoot 列出可用接口
func GetRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Server Running",
		"endpoints": gin.H{
			"message":            "POST /msg - 接收企微消息推送",
			"login":              "/api/login/* - 登录相关接口",
			"user":               "/api/user/* - 用户相关接口",
			"group":              "/api/group/* - 群组相关接口",
			"send":               "/api/message/* - 消息发送接口",
			"cdn":                "/api/cdn/* - CDN下载接口",
			"apiCall":            "POST /api/call - 通用企微API调用接口",
			"groupMembersLegacy": "POST /api/group-members - 获取群成员列表（兼容接口）",
			"admin":              "/admin/* - 本机管理接口",
		},
	})
}
