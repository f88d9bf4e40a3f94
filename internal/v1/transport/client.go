package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/heroarena/game-server/internal/v1/auth"
	"github.com/heroarena/game-server/internal/v1/game"
	"github.com/heroarena/game-server/internal/v1/logging"
	"github.com/heroarena/game-server/internal/v1/metrics"
	"github.com/heroarena/game-server/internal/v1/wire"
	"go.uber.org/zap"
)

// wsConnection defines the interface for WebSocket connection operations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Client represents a single player's connection. It implements
// game.Client; the registry and rooms only ever see the interface.
type Client struct {
	conn     wsConnection
	registry *game.Registry
	connID   game.ConnID
	identity auth.Identity

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	send chan []byte // buffered; sends never block the simulation
}

func newClient(conn wsConnection, registry *game.Registry, connID game.ConnID, identity auth.Identity) *Client {
	return &Client{
		conn:     conn,
		registry: registry,
		connID:   connID,
		identity: identity,
		send:     make(chan []byte, 256),
	}
}

func (c *Client) ConnID() game.ConnID { return c.connID }

func (c *Client) Identity() auth.Identity { return c.identity }

// SendEvent marshals and queues one event for this connection.
func (c *Client) SendEvent(eventType string, payload any) {
	data, err := wire.Marshal(eventType, payload)
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal event", zap.String("event", eventType), zap.Error(err))
		return
	}
	c.SendRaw(data)
}

// SendRaw queues pre-serialized bytes. Frames to a full or closed queue
// are dropped; a lagging client must not stall a room tick.
func (c *Client) SendRaw(data []byte) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			logging.Warn(context.Background(), "Recovered from panic in SendRaw", zap.String("connId", string(c.connID)), zap.Any("panic", r))
		}
	}()

	select {
	case c.send <- data:
	default:
		metrics.DroppedFrames.WithLabelValues("transport").Inc()
		logging.GetLogger().Debug("Client send channel full - dropping frame", zap.String("connId", string(c.connID)))
	}
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	// Closing the channel triggers the writePump to drain, send the close
	// frame, and close the connection.
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump processes inbound frames until the connection drops, then
// tears down everything the connection owns.
func (c *Client) readPump() {
	defer func() {
		c.registry.Disconnect(context.Background(), c.connID)
		c.Disconnect()
		c.conn.Close()
		metrics.DecConnection()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		env, err := wire.Decode(data)
		if err != nil || env.Type == "" {
			logging.GetLogger().Debug("Malformed frame", zap.String("connId", string(c.connID)), zap.Error(err))
			continue
		}

		c.registry.Dispatch(context.Background(), c, env)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	writeWait := 10 * time.Second

	for {
		message, ok := <-c.send
		if !ok {
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.Error(context.Background(), "error writing message", zap.Error(err))
			return
		}
	}
}
