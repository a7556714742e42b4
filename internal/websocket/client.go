package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/diffduel/internal/config"
	"github.com/diffduel/internal/protocol"
)

// Keep-alive message types answered by the transport itself
const (
	MessageTypePing protocol.MessageType = "ping"
	MessageTypePong protocol.MessageType = "pong"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

// Dispatcher receives the events read from clients
type Dispatcher interface {
	Dispatch(ctx context.Context, ev protocol.Event) error
}

// Client represents a WebSocket client connection
type Client struct {
	id         string
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	dispatcher Dispatcher
	config     *config.WebSocketConfig
	logger     *slog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, dispatcher Dispatcher, cfg *config.WebSocketConfig, logger *slog.Logger) *Client {
	return &Client{
		id:         uuid.New().String(),
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, cfg.SendBuffer),
		dispatcher: dispatcher,
		config:     cfg,
		logger:     logger,
	}
}

// ID returns the connection ID
func (c *Client) ID() string {
	return c.id
}

// readPump pumps events from the WebSocket connection to the dispatcher.
// Events of one connection are dispatched in the order they were read.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		if err := c.dispatcher.Dispatch(ctx, protocol.Event{Type: protocol.EventDisconnect, ConnectionID: c.id}); err != nil {
			c.logger.Warn("disconnect not dispatched", "client_id", c.id, "error", err)
		}
	}()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			break
		}

		var ev protocol.Event
		if err := json.Unmarshal(message, &ev); err != nil || ev.Type == "" {
			c.logger.Warn("invalid message format", "client_id", c.id, "error", err)
			c.sendError("invalid message format")
			continue
		}

		if protocol.MessageType(ev.Type) == MessageTypePing {
			c.sendPong()
			continue
		}

		// clients never choose their own identity
		ev.ConnectionID = c.id
		if err := c.dispatcher.Dispatch(ctx, ev); err != nil {
			c.logger.Warn("event not dispatched", "client_id", c.id, "event", string(ev.Type), "error", err)
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// one JSON envelope per frame
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) push(msg protocol.Message) {
	data, _ := json.Marshal(msg)
	select {
	case c.send <- data:
	default:
	}
}

// sendError sends an error message to the client
func (c *Client) sendError(errMsg string) {
	c.push(protocol.NewMessage(protocol.MessageError, protocol.ErrorData{Error: errMsg}))
}

// sendPong sends a pong response
func (c *Client) sendPong() {
	c.push(protocol.NewMessage(MessageTypePong, nil))
}

// ServeWs handles WebSocket requests from peers
func ServeWs(hub *Hub, dispatcher Dispatcher, cfg *config.WebSocketConfig, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(hub, conn, dispatcher, cfg, logger)
	hub.Register(client)

	// Start client goroutines
	go client.writePump()
	go client.readPump(hub.Context())

	logger.Debug("new websocket connection", "client_id", client.id)
}
