package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/diffduel/internal/protocol"
)

const opsBuffer = 1024

type opKind int

const (
	opRegister opKind = iota
	opUnregister
	opJoin
	opLeave
	opClose
	opSendConnection
	opSendGroup
	opSendAll
)

// op is one request to the hub loop. Every request goes through the same
// channel so sends and membership changes are applied in call order.
type op struct {
	kind         opKind
	client       *Client
	connectionID string
	group        string
	except       string
	data         []byte
}

// Hub maintains the set of active clients and the groups they joined
type Hub struct {
	// Connected clients by connection ID
	clients map[string]*Client

	// Group members by group name
	groups map[string]map[string]*Client

	// Ordered requests
	ops chan op

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients: make(map[string]*Client),
		groups:  make(map[string]map[string]*Client),
		ops:     make(chan op, opsBuffer),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return
		case o := <-h.ops:
			h.apply(o)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// Context is cancelled when the hub stops
func (h *Hub) Context() context.Context {
	return h.ctx
}

func (h *Hub) apply(o op) {
	switch o.kind {
	case opRegister:
		h.mu.Lock()
		h.clients[o.client.id] = o.client
		h.mu.Unlock()
		h.logger.Debug("client registered", "client_id", o.client.id)

	case opUnregister:
		h.mu.Lock()
		if _, ok := h.clients[o.client.id]; ok {
			delete(h.clients, o.client.id)
			for name, members := range h.groups {
				delete(members, o.client.id)
				if len(members) == 0 {
					delete(h.groups, name)
				}
			}
			close(o.client.send)
		}
		h.mu.Unlock()
		h.logger.Debug("client unregistered", "client_id", o.client.id)

	case opJoin:
		h.mu.Lock()
		if client, ok := h.clients[o.connectionID]; ok {
			if _, ok := h.groups[o.group]; !ok {
				h.groups[o.group] = make(map[string]*Client)
			}
			h.groups[o.group][o.connectionID] = client
		}
		h.mu.Unlock()

	case opLeave:
		h.mu.Lock()
		if members, ok := h.groups[o.group]; ok {
			delete(members, o.connectionID)
			if len(members) == 0 {
				delete(h.groups, o.group)
			}
		}
		h.mu.Unlock()

	case opClose:
		h.mu.Lock()
		delete(h.groups, o.group)
		h.mu.Unlock()

	case opSendConnection:
		h.mu.RLock()
		if client, ok := h.clients[o.connectionID]; ok {
			h.deliver(client, o.data)
		}
		h.mu.RUnlock()

	case opSendGroup:
		h.mu.RLock()
		for id, client := range h.groups[o.group] {
			if id != o.except {
				h.deliver(client, o.data)
			}
		}
		h.mu.RUnlock()

	case opSendAll:
		h.mu.RLock()
		for _, client := range h.clients {
			h.deliver(client, o.data)
		}
		h.mu.RUnlock()
	}
}

func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		// Client's buffer is full, skip
		h.logger.Warn("client buffer full, skipping", "client_id", client.id)
	}
}

func (h *Hub) enqueue(o op) {
	select {
	case h.ops <- o:
	case <-h.ctx.Done():
	}
}

func (h *Hub) encode(msg protocol.Message) ([]byte, bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message", "type", string(msg.Type), "error", err)
		return nil, false
	}
	return data, true
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.enqueue(op{kind: opRegister, client: client})
}

// Unregister removes a client from the hub and every group
func (h *Hub) Unregister(client *Client) {
	h.enqueue(op{kind: opUnregister, client: client})
}

// SendToConnection sends a message to one client. Unknown connections are
// ignored.
func (h *Hub) SendToConnection(connectionID string, msg protocol.Message) {
	if data, ok := h.encode(msg); ok {
		h.enqueue(op{kind: opSendConnection, connectionID: connectionID, data: data})
	}
}

// SendToGroup sends a message to every member of a group except one
func (h *Hub) SendToGroup(group, exceptConnectionID string, msg protocol.Message) {
	if data, ok := h.encode(msg); ok {
		h.enqueue(op{kind: opSendGroup, group: group, except: exceptConnectionID, data: data})
	}
}

// SendToAll sends a message to every connected client
func (h *Hub) SendToAll(msg protocol.Message) {
	if data, ok := h.encode(msg); ok {
		h.enqueue(op{kind: opSendAll, data: data})
	}
}

// JoinGroup adds a connection to a group
func (h *Hub) JoinGroup(connectionID, group string) {
	h.enqueue(op{kind: opJoin, connectionID: connectionID, group: group})
}

// LeaveGroup removes a connection from a group
func (h *Hub) LeaveGroup(connectionID, group string) {
	h.enqueue(op{kind: opLeave, connectionID: connectionID, group: group})
}

// CloseGroup drops a group and all its memberships
func (h *Hub) CloseGroup(group string) {
	h.enqueue(op{kind: opClose, group: group})
}

// GetGroupSize returns the number of members of a group
func (h *Hub) GetGroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// GetGroupCount returns the number of non-empty groups
func (h *Hub) GetGroupCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups)
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
