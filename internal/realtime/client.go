// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/studyhall-app/studyhall/internal/config"
	"github.com/studyhall-app/studyhall/internal/logging"
	"github.com/studyhall-app/studyhall/internal/metrics"
	"github.com/studyhall-app/studyhall/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// clientIDCounter hands out unique, monotonically increasing ids so clients
// can be ordered deterministically during broadcast and shutdown.
var clientIDCounter atomic.Uint64

// Client is the server-side session for one open connection, alive from
// handshake to teardown. The identity is immutable; joinedRooms is mutated
// only by the client's own read loop (room membership cleanup on disconnect
// runs inside the hub, which never touches this set).
type Client struct {
	id       uint64
	identity models.Identity

	hub    *Hub
	router *Router
	conn   *websocket.Conn
	send   chan []byte

	// sendMu guards closed. Unicast enqueues take it so no send can race
	// the hub closing the channel during teardown.
	sendMu sync.Mutex
	closed bool

	// limiter bounds inbound frame rate; nil disables limiting.
	limiter *rate.Limiter

	maxMessageSize int64

	// joinedRooms tracks which rooms this session has joined, for join
	// idempotency. Owned by the read loop.
	joinedRooms map[int64]bool
}

// NewClient creates a session for an authenticated connection.
func NewClient(hub *Hub, router *Router, conn *websocket.Conn, identity models.Identity, cfg *config.RealtimeConfig) *Client {
	var limiter *rate.Limiter
	if cfg.FramesPerSecond > 0 {
		burst := cfg.FrameBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.FramesPerSecond), burst)
	}

	return &Client{
		id:             clientIDCounter.Add(1),
		identity:       identity,
		hub:            hub,
		router:         router,
		conn:           conn,
		send:           make(chan []byte, cfg.SendQueueSize),
		limiter:        limiter,
		maxMessageSize: cfg.MaxMessageSize,
		joinedRooms:    make(map[int64]bool),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// Identity returns the identity bound at handshake.
func (c *Client) Identity() models.Identity {
	return c.identity
}

// Start begins the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// SendConnected enqueues the handshake acknowledgement frame.
func (c *Client) SendConnected() {
	payload, err := marshalConnected(c.identity)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal connected frame")
		return
	}
	c.enqueue(payload)
}

// sendError enqueues a unicast error frame to this connection only.
func (c *Client) sendError(message string) {
	payload, err := marshalError(message)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal error frame")
		return
	}
	c.enqueue(payload)
}

// enqueue performs a best-effort, non-blocking delivery to the send queue.
// A torn-down session drops the frame instead of panicking on the closed
// channel: the connection is gone, there is nobody left to deliver to.
func (c *Client) enqueue(payload []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		logging.Debug().
			Int64("user_id", c.identity.UserID).
			Msg("dropping frame for torn-down session")
		return
	}
	select {
	case c.send <- payload:
	default:
		metrics.BroadcastsDropped.Inc()
		logging.Warn().
			Int64("user_id", c.identity.UserID).
			Msg("send queue full, dropping frame")
	}
}

// closeSend closes the send channel exactly once. Called by the hub during
// teardown; the mutex orders it after any in-flight enqueue.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump reads inbound frames sequentially and hands them to the router.
// Frames are processed in arrival order; a persistence call suspends only
// this loop, never other connections. The deferred unregister is the single
// teardown path and runs after the loop has fully stopped.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close() // best-effort cleanup
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Warn().Err(err).Int64("user_id", c.identity.UserID).Msg("unexpected websocket close")
			}
			break
		}

		if c.limiter != nil && !c.limiter.Allow() {
			metrics.FramesRejected.WithLabelValues("rate_limited").Inc()
			c.sendError("too many frames, slow down")
			continue
		}

		// In-flight persistence triggered by this frame completes even if
		// the connection dies mid-call, so an accepted message is never
		// silently lost; only delivery back to the gone sender is skipped.
		c.router.Dispatch(context.Background(), c, data)
	}
}

// writePump delivers queued outbound frames and keeps the connection alive
// with pings. A closed send channel (hub teardown) ends the pump.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // best-effort cleanup
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				// Hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logging.Warn().Err(err).Int64("user_id", c.identity.UserID).Msg("failed to write frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
