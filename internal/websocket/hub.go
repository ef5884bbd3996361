// Package websocket implements the live-reload hub. Browsers connect through
// HandleWebSocket and receive JSON UpdateMessages: a css_update per rebuilt
// stylesheet, which the client swaps in place, or a full_reload.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/conneroisu/assetpipe/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

// Hub owns every connected browser and fans reload messages out to them.
// It satisfies tasks.Notifier.
type Hub struct {
	clients      map[string]*Client
	clientsMutex sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	originPatterns []string
	logger         logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
	shutdownOnce sync.Once
}

// NewHub starts a hub. Cross-origin connections are refused unless the
// origin host matches one of allowedOrigins (path.Match patterns); same-host
// connections are always accepted.
func NewHub(logger logging.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		clients:        make(map[string]*Client),
		broadcast:      make(chan []byte, 256),
		register:       make(chan *Client, 32),
		unregister:     make(chan *Client, 32),
		originPatterns: append([]string(nil), allowedOrigins...),
		logger:         logger.WithComponent("reload"),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}

	go h.run()

	return h
}

// HandleWebSocket upgrades the request and registers the browser.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.originPatterns,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		// Accept has already written the response.
		h.logger.Warn(r.Context(), err, "WebSocket upgrade rejected", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		id:          uuid.NewString(),
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		connectedAt: time.Now(),
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) run() {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToClients(message)

		case <-h.ctx.Done():
			h.closeAll()
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clientsMutex.Lock()
	h.clients[client.id] = client
	total := len(h.clients)
	h.clientsMutex.Unlock()

	// The greeting goes through the queue so a client that reads it is known
	// to receive every later broadcast.
	if hello, err := encode(UpdateMessage{Type: MessageConnected, Target: client.id}); err == nil {
		client.send <- hello
	}

	h.logger.Debug(h.ctx, "Browser connected", "client", client.id, "clients", total)
}

func (h *Hub) unregisterClient(client *Client) {
	h.clientsMutex.Lock()
	_, exists := h.clients[client.id]
	if exists {
		delete(h.clients, client.id)
		close(client.send)
	}
	total := len(h.clients)
	h.clientsMutex.Unlock()

	if exists {
		h.logger.Debug(h.ctx, "Browser disconnected", "client", client.id, "clients", total)
	}
}

func (h *Hub) broadcastToClients(message []byte) {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- message:
		default:
			// A browser that stopped reading is dropped rather than stalling the hub.
			go h.drop(client)
		}
	}
}

func (h *Hub) drop(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) closeAll() {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()

	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
}

// readPump discards browser messages; it exists so control frames (pongs and
// close) are processed. It returns when the connection ends.
func (h *Hub) readPump(client *Client) {
	defer h.drop(client)

	for {
		if _, _, err := client.conn.Read(h.ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && h.ctx.Err() == nil {
				h.logger.Debug(h.ctx, "WebSocket read ended", "client", client.id, "error", err.Error())
			}
			return
		}
	}
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				_ = client.conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := client.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				_ = client.conn.CloseNow()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := client.conn.Ping(ctx)
			cancel()
			if err != nil {
				_ = client.conn.CloseNow()
				return
			}
		}
	}
}

// BroadcastMessage queues message for every connected browser. It never
// blocks; when the hub is saturated or shut down the message is dropped.
func (h *Hub) BroadcastMessage(message UpdateMessage) {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	data, err := encode(message)
	if err != nil {
		h.logger.Error(h.ctx, err, "Failed to encode reload message", "type", message.Type)
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	default:
		h.logger.Warn(h.ctx, nil, "Reload queue full, dropping message", "type", message.Type)
	}
}

// FullReload tells every browser to reload the page.
func (h *Hub) FullReload() {
	h.BroadcastMessage(UpdateMessage{Type: MessageFullReload})
}

// StreamCSS pushes each stylesheet path, relative to the served root, for an
// in-place swap.
func (h *Hub) StreamCSS(paths ...string) {
	for _, p := range paths {
		h.BroadcastMessage(UpdateMessage{Type: MessageCSSUpdate, Target: p})
	}
}

// ClientCount returns the number of connected browsers.
func (h *Hub) ClientCount() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every browser and stops the hub.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(h.cancel)

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func encode(message UpdateMessage) ([]byte, error) {
	return json.Marshal(message)
}
