package vwork

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(timeout time.Duration) *Client {
	logger, _ := test.NewNullLogger()
	return NewClient(timeout, logger)
}

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestCallPostsTypeAndParams(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"data":{"msg_id":12345678901234567890}}`))
	}))
	defer srv.Close()

	payload, err := newTestClient(time.Second).Call(context.Background(), serverPort(t, srv), map[string]any{
		"type":    TypeSendText,
		"user_id": "u1",
		"msg":     "hi",
	})
	require.NoError(t, err)

	assert.Equal(t, float64(TypeSendText), got["type"])
	assert.Equal(t, "hi", got["msg"])

	data := payload.(map[string]any)["data"].(map[string]any)
	assert.Equal(t, json.Number("12345678901234567890"), data["msg_id"])
}

func TestCallEmptyBodyIsNilPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	payload, err := newTestClient(time.Second).Call(context.Background(), serverPort(t, srv), map[string]any{"type": 1000})
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestCallNon2xxIsBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(time.Second).Call(context.Background(), serverPort(t, srv), map[string]any{"type": 1000})

	var vErr *Error
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, KindBadResponse, vErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, vErr.StatusCode)
	assert.Equal(t, `企微API返回错误: HTTP 500 - Internal Server Error - {"error":"boom"}`, vErr.Error())
}

func TestCallMalformedJSONIsBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := newTestClient(time.Second).Call(context.Background(), serverPort(t, srv), map[string]any{"type": 1000})

	var vErr *Error
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, KindBadResponse, vErr.Kind)
	assert.Contains(t, vErr.Error(), "无法解析")
}

func TestCallConnectionRefused(t *testing.T) {
	port := freePort(t)

	_, err := newTestClient(time.Second).Call(context.Background(), port, map[string]any{"type": 1000})

	var vErr *Error
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, KindUnreachable, vErr.Kind)
	assert.Equal(t, "无法连接到企微服务 (端口 "+strconv.Itoa(port)+")，请确认企微已启动", vErr.Error())
}

func TestCallTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(50*time.Millisecond).Call(context.Background(), serverPort(t, srv), map[string]any{"type": 1000})

	var vErr *Error
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, KindTimeout, vErr.Kind)
	assert.Equal(t, "请求超时，请稍后重试", vErr.Error())
}

func TestOperationName(t *testing.T) {
	assert.Equal(t, "发送文本消息", OperationName(TypeSendText))
	assert.Equal(t, "API调用 (type:4242)", OperationName(4242))
	assert.True(t, IsLoginExempt(TypeLoginStatus))
	assert.True(t, IsLoginExempt(TypeLogout))
	assert.False(t, IsLoginExempt(TypeSendText))
}
