package handler

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vworkproxy/internal/model"
	"vworkproxy/internal/service"
	"vworkproxy/internal/store"
	"vworkproxy/pkg/vwork"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func nullLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

type recordingCaller struct {
	mu     sync.Mutex
	reqs   []model.OperationRequest
	result model.OperationResult
	err    error
}

func (r *recordingCaller) Call(_ context.Context, req model.OperationRequest) (model.OperationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return r.result, r.err
}

type countingAcceptor struct {
	n    atomic.Int32
	last atomic.Value
}

func (a *countingAcceptor) Accept(data map[string]any) {
	a.n.Add(1)
	a.last.Store(data)
}

func newTestRouter(caller Caller, acceptor Acceptor) *gin.Engine {
	return SetupRouter(NewAPIHandler(caller, nullLogger()), NewMessageHandler(acceptor, nullLogger()), nil, nullLogger())
}

func post(t *testing.T, r http.Handler, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestFixedRouteMissingParameter(t *testing.T) {
	caller := &recordingCaller{}
	r := newTestRouter(caller, &countingAcceptor{})

	w, resp := post(t, r, "/api/message/text", `{"port":8080,"user_id":"u1"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "缺少参数: msg (消息内容)", resp.Message)
	assert.Empty(t, caller.reqs)
}

func TestFixedRouteMissingPortComesFirst(t *testing.T) {
	caller := &recordingCaller{}
	r := newTestRouter(caller, &countingAcceptor{})

	w, resp := post(t, r, "/api/message/text", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "缺少参数: port (企微的HTTP端口)", resp.Message)
}

func TestFixedRouteForwardsOnlyDeclaredParams(t *testing.T) {
	caller := &recordingCaller{result: model.OperationResult{Success: true, Payload: map[string]any{"code": 0}}}
	r := newTestRouter(caller, &countingAcceptor{})

	w, resp := post(t, r, "/api/message/text", `{"port":"8080","user_id":"u1","msg":"hi","extra":"drop"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	require.Len(t, caller.reqs, 1)
	req := caller.reqs[0]
	assert.Equal(t, 8080, req.Port)
	assert.Equal(t, vwork.TypeSendText, req.Type)
	assert.Equal(t, map[string]any{"user_id": "u1", "msg": "hi"}, req.Params)
}

func TestAtRouteWrapsScalar(t *testing.T) {
	caller := &recordingCaller{result: model.OperationResult{Success: true}}
	r := newTestRouter(caller, &countingAcceptor{})

	post(t, r, "/api/message/at", `{"port":8080,"chat_room_id":"r1","at_list":"u2","msg":"hi"}`)
	require.Len(t, caller.reqs, 1)
	assert.Equal(t, []any{"u2"}, caller.reqs[0].Params["at_list"])
}

func TestAppletDefaults(t *testing.T) {
	caller := &recordingCaller{result: model.OperationResult{Success: true}}
	r := newTestRouter(caller, &countingAcceptor{})

	post(t, r, "/api/message/applet", `{"port":8080,"user_id":"u","title":"t","desc":"d","cover_path":"c","wechat_id":"w","page_path":"p"}`)
	require.Len(t, caller.reqs, 1)
	assert.Equal(t, "", caller.reqs[0].Params["app_id"])
	assert.Equal(t, "", caller.reqs[0].Params["avatar_url"])
}

func TestLegacyGroupMembersRenamesParam(t *testing.T) {
	caller := &recordingCaller{result: model.OperationResult{Success: true}}
	r := newTestRouter(caller, &countingAcceptor{})

	_, resp := post(t, r, "/api/group-members", `{"port":8080}`)
	assert.Equal(t, "缺少参数: group_id (群ID)", resp.Message)

	post(t, r, "/api/group-members", `{"port":8080,"group_id":"r1"}`)
	require.Len(t, caller.reqs, 1)
	assert.Equal(t, vwork.TypeGroupMembers, caller.reqs[0].Type)
	assert.Equal(t, map[string]any{"chat_room_id": "r1"}, caller.reqs[0].Params)
}

func TestCallRoutePassesEverythingButPort(t *testing.T) {
	caller := &recordingCaller{result: model.OperationResult{Success: true}}
	r := newTestRouter(caller, &countingAcceptor{})

	post(t, r, "/api/call", `{"port":8080,"type":3000,"user_id":"u1","msg":"hi"}`)
	require.Len(t, caller.reqs, 1)
	req := caller.reqs[0]
	assert.True(t, req.HasType)
	assert.Equal(t, 3000, req.Type)
	assert.Equal(t, map[string]any{"user_id": "u1", "msg": "hi"}, req.Params)
}

func TestCallRouteErrorStatus(t *testing.T) {
	caller := &recordingCaller{err: &service.CallError{Kind: service.KindUpstreamTimeout, Message: "请求超时，请稍后重试"}}
	r := newTestRouter(caller, &countingAcceptor{})

	w, resp := post(t, r, "/api/call", `{"port":8080,"type":3000}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "请求超时，请稍后重试", resp.Message)
}

func TestInvalidJSON(t *testing.T) {
	r := newTestRouter(&recordingCaller{}, &countingAcceptor{})

	w, resp := post(t, r, "/api/call", `{"port":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
}

func TestMessageAlwaysSucceeds(t *testing.T) {
	acceptor := &countingAcceptor{}
	r := newTestRouter(&recordingCaller{}, acceptor)

	for _, body := range []string{`{"self_user_id":"u1","content":"x"}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/msg", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message":"success"}`, w.Body.String())
	}
	assert.Equal(t, int32(1), acceptor.n.Load())
}

func TestRootListsEndpoints(t *testing.T) {
	r := newTestRouter(&recordingCaller{}, &countingAcceptor{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/call")
}

// 以下用真实的 Proxy 和模拟的企微进程走完整链路

func upstreamPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func newProxyRouter(t *testing.T, cfg model.Configuration) *gin.Engine {
	t.Helper()
	logger := nullLogger()
	notifier := service.NewNotifier(nil, nil, logger)
	proxy := service.NewProxy(
		store.NewInMemoryConfigStore(cfg),
		vwork.NewClient(time.Second, logger),
		notifier,
		service.NewCallbackDispatcher(time.Second, logger),
		logger,
	)
	t.Cleanup(proxy.Wait)
	return newTestRouter(proxy, &countingAcceptor{})
}

func TestProxyEndToEnd(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"code":0,"data":{"ok":1}}`))
	}))
	defer upstream.Close()
	port := upstreamPort(t, upstream)

	t.Run("exempt without account", func(t *testing.T) {
		r := newProxyRouter(t, model.DefaultConfiguration())
		w, resp := post(t, r, "/api/login/status", `{"port":`+strconv.Itoa(port)+`}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("expired account", func(t *testing.T) {
		cfg := model.DefaultConfiguration()
		cfg.Accounts = []model.AccountRecord{{UserID: "u1", Port: model.FlexInt(port), Expire: "2020-01-01 00:00:00"}}
		r := newProxyRouter(t, cfg)

		w, resp := post(t, r, "/api/message/text", `{"port":`+strconv.Itoa(port)+`,"user_id":"u1","msg":"hi"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, service.NotAuthorizedMessage, resp.Message)
		assert.Equal(t, int32(1), hits.Load())
	})
}

type blockingSink struct {
	release chan struct{}
	entered chan struct{}
}

func (b *blockingSink) Push(_ context.Context, _ map[string]any) error {
	b.entered <- struct{}{}
	<-b.release
	return nil
}

func (b *blockingSink) Deliver(_ context.Context, _ string, _ any) service.DeliveryResult {
	b.entered <- struct{}{}
	<-b.release
	return service.DeliveryResult{Success: true, Message: service.CallbackSuccessMessage}
}

func TestMessageAnswersBeforeSlowPushAndCallback(t *testing.T) {
	cfg := model.DefaultConfiguration()
	cfg.CallbackURL = "http://127.0.0.1:1/hook"
	cfg.Accounts = []model.AccountRecord{{UserID: "u1", Port: 8080, Expire: "2099-01-01 00:00:00"}}
	slow := &blockingSink{release: make(chan struct{}), entered: make(chan struct{}, 4)}
	logger := nullLogger()
	inbound := service.NewInboundPipeline(store.NewInMemoryConfigStore(cfg), service.NewNotifier(slow, nil, logger), slow, logger)
	r := newTestRouter(&recordingCaller{}, inbound)

	done := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/msg", strings.NewReader(`{"self_user_id":"u1","content":"hi"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		done <- w.Code
	}()

	select {
	case code := <-done:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(2 * time.Second):
		t.Fatal("/msg 被推送阻塞")
	}

	select {
	case <-slow.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("推送没有开始")
	}
	close(slow.release)
	inbound.Wait()
	// 推送完成后才会投递回调
	assert.Len(t, slow.entered, 1)
}
