package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一的响应结构
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ResponseSuccess 返回成功响应
func ResponseSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// ResponseError 返回错误响应
func ResponseError(c *gin.Context, httpCode int, message string) {
	c.JSON(httpCode, Response{Success: false, Message: message})
}
