// Package server is the development server. It serves the output directory
// as-is, injects the live-reload client into HTML pages and exposes the
// reload WebSocket next to a health probe and optional Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/version"
	"github.com/conneroisu/assetpipe/internal/websocket"
)

// Routes reserved by the server. Everything else is a file under the root.
const (
	RoutePrefix      = "/__assetpipe"
	WebSocketPath    = RoutePrefix + "/ws"
	ClientScriptPath = RoutePrefix + "/client.js"
	HealthPath       = RoutePrefix + "/health"
	MetricsPath      = "/metrics"
)

// Options configures New.
type Options struct {
	Config config.ServerConfig
	// Root is the directory served at "/".
	Root string
	Hub  *websocket.Hub
	// Metrics is mounted at MetricsPath when non-nil.
	Metrics http.Handler
	Logger  logging.Logger
}

// Server serves the built site with live reload.
type Server struct {
	config  config.ServerConfig
	root    string
	hub     *websocket.Hub
	metrics http.Handler
	logger  logging.Logger

	// openBrowser is swapped out by tests.
	openBrowser func(url string) error

	serverMutex sync.RWMutex
	httpServer  *http.Server
	listener    net.Listener
	serveDone   chan struct{}

	shutdownOnce sync.Once
}

// New creates a server. Nothing is bound until Start.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Server{
		config:      opts.Config,
		root:        opts.Root,
		hub:         opts.Hub,
		metrics:     opts.Metrics,
		logger:      logger.WithComponent("server"),
		openBrowser: openBrowser,
	}
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.hub != nil {
		mux.HandleFunc(WebSocketPath, s.hub.HandleWebSocket)
	}
	mux.HandleFunc(ClientScriptPath, handleClientScript)
	mux.HandleFunc(HealthPath, s.handleHealth)
	if s.metrics != nil {
		mux.Handle(MetricsPath, s.metrics)
	}
	mux.Handle("/", injectReload(http.FileServer(http.Dir(s.root))))

	return s.addMiddleware(mux)
}

// Start binds the first free port from the configured one and serves in the
// background. The browser is opened when the configuration asks for it.
func (s *Server) Start(ctx context.Context) error {
	s.serverMutex.Lock()
	if s.httpServer != nil {
		s.serverMutex.Unlock()
		return errors.New("server already started")
	}

	ln, err := Listen(s.config.Host, s.config.Port, s.config.PortAttempts)
	if err != nil {
		s.serverMutex.Unlock()
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv
	s.listener = ln
	s.serveDone = make(chan struct{})
	done := s.serveDone
	s.serverMutex.Unlock()

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(context.Background(), err, "Server stopped unexpectedly")
		}
	}()

	url := s.URL()
	s.logger.Info(ctx, "Serving", "url", url, "root", s.root)
	if port := ln.Addr().(*net.TCPAddr).Port; s.config.Port != 0 && port != s.config.Port {
		s.logger.Info(ctx, "Configured port busy, using the next free one",
			"configured", s.config.Port, "port", port)
	}

	if s.config.Open {
		go func() {
			if err := s.openBrowser(url); err != nil {
				s.logger.Warn(ctx, err, "Failed to open browser", "url", url)
			}
		}()
	}

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL returns the address browsers should use.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if s.config.Host != "" && s.config.Host != "0.0.0.0" && s.config.Host != "::" {
		host = s.config.Host
	} else if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.serverMutex.RLock()
		srv := s.httpServer
		done := s.serveDone
		s.serverMutex.RUnlock()

		if srv == nil {
			return
		}
		shutdownErr = srv.Shutdown(ctx)
		if shutdownErr == nil {
			<-done
		}
		s.logger.Debug(ctx, "Server stopped")
	})

	return shutdownErr
}

// Listen binds host on port, moving up one port at a time on failure until
// attempts ports have been tried. Port 0 asks the OS for any free port.
func Listen(host string, port, attempts int) (net.Listener, error) {
	if port == 0 || attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts && port+i <= 65535; i++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port+i)))
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("no free port in %d-%d: %w", port, port+attempts-1, lastErr)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   version.GetShortVersion(),
		"root":      s.root,
		"clients":   clients,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode health response")
	}
}

// addMiddleware disables caching, since every rebuild changes the files, and
// logs requests at debug level.
func (s *Server) addMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("Cache-Control", "no-cache")
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		return exec.Command("xdg-open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		return exec.Command("open", url).Start()
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}
