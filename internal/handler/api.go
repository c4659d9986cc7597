package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"vworkproxy/internal/model"
	"vworkproxy/internal/service"
)

// Caller 代理调用，由 service.Proxy 实现
type Caller interface {
	Call(ctx context.Context, req model.OperationRequest) (model.OperationResult, error)
}

// APIHandler 处理 /api 下的接口
type APIHandler struct {
	proxy Caller
	log   logrus.FieldLogger
}

// NewAPIHandler 创建 APIHandler
func NewAPIHandler(proxy Caller, logger logrus.FieldLogger) *APIHandler {
	return &APIHandler{proxy: proxy, log: logger.WithField("component", "api")}
}

// Register 注册 /api/call 和所有固定接口
func (h *APIHandler) Register(api *gin.RouterGroup) {
	api.POST("/call", h.HandleCall)
	for _, route := range Routes {
		api.POST(route.Path, h.HandleRoute(route))
	}
}

// HandleCall 通用调用接口，请求体 {port, type, ...params}
func (h *APIHandler) HandleCall(c *gin.Context) {
	body, ok := h.bindBody(c)
	if !ok {
		return
	}

	req := requestFromBody(body)
	if t, ok := model.AsInt64(body["type"]); ok {
		req.Type = int(t)
		req.HasType = true
	}
	delete(req.Params, "type")

	h.respond(c, req)
}

// HandleRoute 返回固定接口的处理函数，type 由路由决定
func (h *APIHandler) HandleRoute(route Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, ok := h.bindBody(c)
		if !ok {
			return
		}

		req := requestFromBody(body)
		if !req.HasPort {
			h.fail(c, service.MissingParameter("port", "企微的HTTP端口"))
			return
		}
		params, err := route.Params(body)
		if err != nil {
			h.fail(c, err)
			return
		}
		req.Type = route.Type
		req.HasType = true
		req.Params = params

		h.respond(c, req)
	}
}

func (h *APIHandler) respond(c *gin.Context, req model.OperationRequest) {
	result, err := h.proxy.Call(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: result.Success, Data: result.Payload, Message: result.Message})
}

func (h *APIHandler) fail(c *gin.Context, err error) {
	kind := service.KindOf(err)
	if kind == service.KindMissingParameter {
		h.log.Debugf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		h.log.Warnf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	ResponseError(c, kind.HTTPStatus(), err.Error())
}

// bindBody 解析 JSON 请求体，失败时已经写好 400 响应
func (h *APIHandler) bindBody(c *gin.Context) (map[string]any, bool) {
	body, err := decodeBody(c.Request.Body)
	if err != nil {
		ResponseError(c, http.StatusBadRequest, "请求体不是有效的JSON: "+err.Error())
		return nil, false
	}
	return body, true
}

// requestFromBody 取出 port，其余参数原样保留
func requestFromBody(body map[string]any) model.OperationRequest {
	req := model.OperationRequest{Params: make(map[string]any, len(body))}
	for k, v := range body {
		if k != "port" {
			req.Params[k] = v
		}
	}
	if !model.IsBlank(body["port"]) {
		if port, ok := model.AsInt64(body["port"]); ok {
			req.Port = int(port)
			req.HasPort = true
		}
	}
	return req
}

// decodeBody 数字保留为 json.Number，原样转发给企微，空请求体视为 {}
func decodeBody(r io.Reader) (map[string]any, error) {
	if r == nil {
		return map[string]any{}, nil
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.New("请求体必须是 JSON 对象")
	}
	return body, nil
}
