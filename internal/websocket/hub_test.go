package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetpipe/internal/logging"
)

func newTestHub(t *testing.T, allowed ...string) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(logging.Discard(), allowed)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})
	return hub, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) UpdateMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg UpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// dial connects and waits for the greeting, after which the client is
// registered.
func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })

	hello := readMessage(t, ctx, conn)
	require.Equal(t, MessageConnected, hello.Type)
	require.NotEmpty(t, hello.Target)
	return conn
}

func TestHubBroadcastsReloads(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub, srv := newTestHub(t)
	first := dial(t, ctx, srv)
	second := dial(t, ctx, srv)
	assert.Equal(t, 2, hub.ClientCount())

	hub.StreamCSS("css/style.min.css")
	hub.FullReload()

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, ctx, conn)
		assert.Equal(t, MessageCSSUpdate, msg.Type)
		assert.Equal(t, "css/style.min.css", msg.Target)
		assert.False(t, msg.Timestamp.IsZero())

		msg = readMessage(t, ctx, conn)
		assert.Equal(t, MessageFullReload, msg.Type)
		assert.Empty(t, msg.Target)
	}
}

func TestHubWireFormat(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub, srv := newTestHub(t)
	conn := dial(t, ctx, srv)

	hub.FullReload()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "full_reload", raw["type"])
	assert.NotContains(t, raw, "target")
}

func TestHubAssignsDistinctIDs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, srv := newTestHub(t)
	ids := map[string]bool{}
	for i := 0; i < 3; i++ {
		conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
		require.NoError(t, err)
		defer conn.CloseNow()
		ids[readMessage(t, ctx, conn).Target] = true
	}
	assert.Len(t, ids, 3)
}

func TestHubUnregistersClosedClients(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub, srv := newTestHub(t)
	conn := dial(t, ctx, srv)
	require.Equal(t, 1, hub.ClientCount())

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHubOriginCheck(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.Run("cross origin rejected", func(t *testing.T) {
		_, srv := newTestHub(t)
		_, resp, err := websocket.Dial(ctx, wsURL(srv), &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": []string{"http://evil.example"}},
		})
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("allowed origin accepted", func(t *testing.T) {
		_, srv := newTestHub(t, "*.example")
		conn, _, err := websocket.Dial(ctx, wsURL(srv), &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": []string{"http://dev.example"}},
		})
		require.NoError(t, err)
		defer conn.CloseNow()
		assert.Equal(t, MessageConnected, readMessage(t, ctx, conn).Type)
	})
}

func TestHubBroadcastWithoutClients(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Shutdown(context.Background())

	hub.FullReload()
	hub.StreamCSS()
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubShutdown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub, srv := newTestHub(t)
	conn := dial(t, ctx, srv)

	require.NoError(t, hub.Shutdown(ctx))
	require.NoError(t, hub.Shutdown(ctx))
	assert.Equal(t, 0, hub.ClientCount())

	_, _, err := conn.Read(ctx)
	assert.Error(t, err)

	// Broadcasting after shutdown is a no-op.
	hub.FullReload()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
