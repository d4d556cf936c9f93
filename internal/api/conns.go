package api

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Conns tracks open websocket tool connections so they can be closed on
// shutdown; http.Server.Shutdown does not touch hijacked connections.
type Conns struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewConns creates an empty registry.
func NewConns() *Conns {
	return &Conns{active: make(map[string]*websocket.Conn)}
}

// Register adds conn under id, closing any connection it replaces.
func (c *Conns) Register(id string, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.active[id]; ok && existing != conn {
		go func() { _ = existing.Close(websocket.StatusNormalClosure, "connection replaced") }()
	}
	c.active[id] = conn
	slog.Debug("Tool socket registered", "conn_id", id)
}

// Unregister removes conn if it is still the one registered under id.
func (c *Conns) Unregister(id string, conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if current, ok := c.active[id]; ok && current == conn {
		delete(c.active, id)
		slog.Debug("Tool socket unregistered", "conn_id", id)
	}
}

// Len returns the number of open connections.
func (c *Conns) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.active)
}

// CloseAll starts the close handshake on every registered connection and
// forgets them. It does not wait for peers to answer.
func (c *Conns) CloseAll(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, conn := range c.active {
		go func(conn *websocket.Conn) {
			_ = conn.Close(websocket.StatusGoingAway, reason)
		}(conn)
		delete(c.active, id)
	}
}
