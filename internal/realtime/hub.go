// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package realtime

import (
	"context"
	"sort"
	"sync"

	"github.com/studyhall-app/studyhall/internal/logging"
	"github.com/studyhall-app/studyhall/internal/metrics"
)

// Hub owns the two registries of live state: the set of registered
// connections and the room map (room id -> live member connections). It is
// the only shared-mutable structure in the real-time layer; every mutation
// and every broadcast iteration happens under its mutex, so concurrent
// join/leave/broadcast from different connections can never lose updates or
// iterate a map mid-mutation.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	rooms   map[int64]map[*Client]bool

	Register   chan *Client
	Unregister chan *Client
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[int64]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Run processes client lifecycle events until the context is canceled, then
// closes all remaining clients and returns ctx.Err(). Designed for suture
// supervision: a restart finds an empty but usable hub.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectionsActive.Set(float64(total))
	logging.Info().
		Int64("user_id", client.identity.UserID).
		Int("total_clients", total).
		Msg("websocket client connected")
}

// removeClient is the teardown path: the client leaves every room it joined,
// empty room sets are dropped, and the send channel is closed. Idempotent,
// so it is safe to reach from any error path.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	for roomID, members := range h.rooms {
		if members[client] {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	client.closeSend()
	total := len(h.clients)
	roomCount := len(h.rooms)
	h.mu.Unlock()

	metrics.ConnectionsActive.Set(float64(total))
	metrics.RoomsActive.Set(float64(roomCount))
	logging.Info().
		Int64("user_id", client.identity.UserID).
		Int("total_clients", total).
		Msg("websocket client disconnected")
}

// closeAll tears down every client during shutdown, in id order for
// deterministic close behavior.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, client := range clients {
		delete(h.clients, client)
		client.closeSend()
	}
	h.rooms = make(map[int64]map[*Client]bool)
	h.mu.Unlock()

	metrics.ConnectionsActive.Set(0)
	metrics.RoomsActive.Set(0)
	logging.Info().Int("clients_closed", len(clients)).Msg("websocket hub stopped")
}

// Join adds a registered connection to a room's live set and reports whether
// it did. Joining a room the connection is already in is a no-op success.
// Unregistered (already torn down) clients are refused so a racing disconnect
// cannot resurrect them.
func (h *Hub) Join(roomID int64, client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return false
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[roomID] = members
	}
	members[client] = true
	metrics.RoomsActive.Set(float64(len(h.rooms)))
	return true
}

// Leave removes a connection from a room's live set, dropping the room entry
// when it empties. Leaving a room the connection is not in is a no-op.
func (h *Hub) Leave(roomID int64, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
	metrics.RoomsActive.Set(float64(len(h.rooms)))
}

// Broadcast fans a pre-marshaled frame out to every live connection in the
// room, optionally excluding one (the sender, for note updates). Each
// delivery is independent and best-effort: a connection whose send queue is
// full has this one frame dropped and logged, but stays in the room —
// removal happens only through Leave or teardown.
func (h *Hub) Broadcast(roomID int64, frameType string, payload []byte, exclude *Client) {
	// The lock is held across the sends: they are non-blocking, and holding
	// it guarantees no send channel is closed mid-broadcast.
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make([]*Client, 0, len(h.rooms[roomID]))
	for client := range h.rooms[roomID] {
		if client != exclude {
			members = append(members, client)
		}
	}

	// Deterministic delivery order keeps tests reproducible.
	sort.Slice(members, func(i, j int) bool { return members[i].id < members[j].id })

	for _, client := range members {
		select {
		case client.send <- payload:
			metrics.BroadcastsDelivered.WithLabelValues(frameType).Inc()
		default:
			metrics.BroadcastsDropped.Inc()
			logging.Warn().
				Int64("group_id", roomID).
				Int64("user_id", client.identity.UserID).
				Str("frame_type", frameType).
				Msg("send queue full, dropping broadcast frame")
		}
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of live connections in a room.
func (h *Hub) RoomSize(roomID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// InRoom reports whether the connection is in the room's live set.
func (h *Hub) InRoom(roomID int64, client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID][client]
}
