package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/websocket"
)

func writeSite(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"index.html":        "<!doctype html><html><head><link rel=\"stylesheet\" href=\"css/style.min.css\"></head><body><h1>Hi</h1></body></html>",
		"css/style.min.css": "h1{color:red}",
		"img/logo.svg":      "<svg></svg>",
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Hub == nil {
		opts.Hub = websocket.NewHub(logging.Discard(), nil)
		t.Cleanup(func() { _ = opts.Hub.Shutdown(context.Background()) })
	}
	opts.Logger = logging.Discard()
	return New(opts)
}

func get(t *testing.T, h http.Handler, path string) *http.Response {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Result()
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestHandlerServesFiles(t *testing.T) {
	s := newTestServer(t, Options{Root: writeSite(t)})
	h := s.Handler()

	resp := get(t, h, "/css/style.min.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "h1{color:red}", body(t, resp))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	resp = get(t, h, "/missing.css")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestHandlerInjectsReloadClient(t *testing.T) {
	s := newTestServer(t, Options{Root: writeSite(t)})

	resp := get(t, s.Handler(), "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := body(t, resp)

	assert.Contains(t, page, `<script src="/__assetpipe/client.js"></script></body>`)
	assert.Equal(t, strconv.Itoa(len(page)), resp.Header.Get("Content-Length"))
	assert.Equal(t, 1, strings.Count(page, ClientScriptPath))
}

func TestHandlerClientScript(t *testing.T) {
	s := newTestServer(t, Options{Root: t.TempDir()})

	resp := get(t, s.Handler(), ClientScriptPath)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "javascript")
	script := body(t, resp)
	assert.Contains(t, script, WebSocketPath)
	assert.Contains(t, script, "css_update")
	assert.Contains(t, script, "full_reload")
}

func TestHandlerHealth(t *testing.T) {
	s := newTestServer(t, Options{Root: "app"})

	resp := get(t, s.Handler(), HealthPath)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.Unmarshal([]byte(body(t, resp)), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "app", health["root"])
	assert.EqualValues(t, 0, health["clients"])

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, HealthPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandlerMetricsRoute(t *testing.T) {
	root := t.TempDir()

	without := newTestServer(t, Options{Root: root})
	resp := get(t, without.Handler(), MetricsPath)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "assetpipe_reloads_total 1\n")
	})
	with := newTestServer(t, Options{Root: root, Metrics: metrics})
	resp = get(t, with.Handler(), MetricsPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "assetpipe_reloads_total")
}

func TestListenSkipsBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	busyPort := busy.Addr().(*net.TCPAddr).Port

	ln, err := Listen("127.0.0.1", busyPort, 10)
	require.NoError(t, err)
	defer ln.Close()
	assert.NotEqual(t, busyPort, ln.Addr().(*net.TCPAddr).Port)

	_, err = Listen("127.0.0.1", busyPort, 1)
	assert.Error(t, err)
}

func TestListenAnyPort(t *testing.T) {
	ln, err := Listen("127.0.0.1", 0, 5)
	require.NoError(t, err)
	defer ln.Close()
	assert.NotZero(t, ln.Addr().(*net.TCPAddr).Port)
}

func TestServerLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := newTestServer(t, Options{
		Root:   writeSite(t),
		Config: config.ServerConfig{Host: "127.0.0.1", Port: 0, PortAttempts: 1, Open: true},
	})
	opened := make(chan string, 1)
	s.openBrowser = func(url string) error {
		opened <- url
		return nil
	}

	assert.Empty(t, s.Addr())
	require.NoError(t, s.Start(ctx))
	require.Error(t, s.Start(ctx))

	select {
	case url := <-opened:
		assert.Equal(t, s.URL(), url)
	case <-ctx.Done():
		t.Fatal("browser was not opened")
	}
	assert.True(t, strings.HasPrefix(s.URL(), "http://127.0.0.1:"))

	resp, err := http.Get(s.URL() + "/css/style.min.css")
	require.NoError(t, err)
	assert.Equal(t, "h1{color:red}", body(t, resp))

	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Shutdown(ctx))

	_, err = http.Get(s.URL() + "/")
	assert.Error(t, err)
}

func TestURLUsesLocalhostForWildcardHost(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, Options{
		Root:   t.TempDir(),
		Config: config.ServerConfig{Host: "", Port: 0},
	})
	require.NoError(t, s.Start(ctx))
	defer s.Shutdown(ctx)

	assert.True(t, strings.HasPrefix(s.URL(), "http://localhost:"), s.URL())
}
