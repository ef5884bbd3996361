package websocket

import (
	"time"

	"github.com/coder/websocket"
)

// Message types understood by the reload client.
const (
	MessageConnected  = "connected"
	MessageCSSUpdate  = "css_update"
	MessageFullReload = "full_reload"
)

// Client represents a WebSocket client connection
type Client struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	connectedAt time.Time
}

// ID returns the identifier assigned when the client connected.
func (c *Client) ID() string {
	return c.id
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
