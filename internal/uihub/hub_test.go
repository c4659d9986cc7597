package uihub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	hub := New(logger)
	srv := httptest.NewServer(hub.Router())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func TestBroadcastReachesWebSocketClient(t *testing.T) {
	hub, srv := newTestHub(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/message", "application/json", strings.NewReader(`{"content":"hi","sys":true}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"hi","sys":true}`, string(msg))
}

func TestMessageRejectsBadJSON(t *testing.T) {
	_, srv := newTestHub(t)

	resp, err := http.Post(srv.URL+"/message", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClientRemovedOnDisconnect(t *testing.T) {
	hub, srv := newTestHub(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
