package game

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/heroarena/game-server/internal/v1/logging"
	"github.com/heroarena/game-server/internal/v1/metrics"
	"github.com/heroarena/game-server/internal/v1/ratelimit"
	"github.com/heroarena/game-server/internal/v1/stats"
	"github.com/heroarena/game-server/internal/v1/wire"
	"go.uber.org/zap"
)

const maxChatLength = 280

// roomDeps are the shared collaborators every room receives from the
// registry.
type roomDeps struct {
	limiter *ratelimit.RateLimiter
	record  func(stats.MatchSummary)
	onLeft  func(connID ConnID) // notifies the registry to drop its index entry
}

// baseRoom carries the state and helpers common to all mode rooms.
// The embedding room's methods take r.mu themselves; helpers with the
// Locked suffix expect it held.
type baseRoom struct {
	id        RoomID
	mode      Mode
	mu        sync.RWMutex
	clients   map[ConnID]Client
	createdAt time.Time
	closed    bool
	deps      roomDeps
}

func newBaseRoom(id RoomID, mode Mode, deps roomDeps, now time.Time) baseRoom {
	return baseRoom{
		id:        id,
		mode:      mode,
		clients:   make(map[ConnID]Client),
		createdAt: now,
		deps:      deps,
	}
}

func (r *baseRoom) ID() RoomID { return r.id }

func (r *baseRoom) Mode() Mode { return r.mode }

func (r *baseRoom) attachLocked(c Client) {
	r.clients[c.ConnID()] = c
}

func (r *baseRoom) detachLocked(connID ConnID) {
	delete(r.clients, connID)
}

// event builds the mode-prefixed wire event name.
func (r *baseRoom) event(suffix string) string {
	return wire.Event(string(r.mode), suffix)
}

// broadcastLocked marshals once and fans the frame out to every attached
// connection except exclude. Sends never block; slow subscribers drop.
func (r *baseRoom) broadcastLocked(suffix string, payload any, exclude ConnID) {
	data, err := wire.Marshal(r.event(suffix), payload)
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal broadcast", zap.String("event", suffix), zap.Error(err))
		return
	}
	for connID, c := range r.clients {
		if connID == exclude {
			continue
		}
		c.SendRaw(data)
	}
}

// unicast sends a mode-prefixed event to one client.
func (r *baseRoom) unicast(c Client, suffix string, payload any) {
	c.SendEvent(r.event(suffix), payload)
}

// handleChatLocked sanitizes and relays a room chat message. The sender is
// excluded from the broadcast; it renders locally on submission.
func (r *baseRoom) handleChatLocked(ctx context.Context, c Client, p wire.ChatPayload, now time.Time) {
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return // silently dropped
	}
	if len(content) > maxChatLength {
		content = content[:maxChatLength]
	}
	if r.deps.limiter != nil && !r.deps.limiter.AllowChat(ctx, string(c.ConnID())) {
		return
	}

	r.broadcastLocked(wire.EvChatMessage, wire.ChatMessage{
		From:      string(c.ConnID()),
		Name:      c.Identity().DisplayName,
		Content:   content,
		Timestamp: now.UnixMilli(),
	}, c.ConnID())
}

// systemChatLocked broadcasts a synthesized system message. These are
// never accepted from clients.
func (r *baseRoom) systemChatLocked(content string, exclude ConnID, now time.Time) {
	r.broadcastLocked(wire.EvChatMessage, wire.ChatMessage{
		Content:   content,
		System:    true,
		Timestamp: now.UnixMilli(),
	}, exclude)
}

// recordMatch hands a summary to the stats sink. Callers must not hold the
// room lock.
func (r *baseRoom) recordMatch(summary stats.MatchSummary) {
	metrics.MatchesCompleted.WithLabelValues(string(r.mode)).Inc()
	if r.deps.record != nil {
		r.deps.record(summary)
	}
}

// closeLocked evicts every client with a room_closed event.
func (r *baseRoom) closeLocked(reason string) {
	if r.closed {
		return
	}
	r.closed = true
	r.broadcastLocked(wire.EvRoomClosed, map[string]string{"reason": reason}, "")
}

// killfeedRing is a bounded ring of recent kill notices.
type killfeedRing struct {
	entries []KillfeedEntry
	cap     int
}

// KillfeedEntry is one line of the killfeed.
type KillfeedEntry struct {
	KillerName string `json:"killerName"`
	VictimName string `json:"victimName"`
	Weapon     string `json:"weapon,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

func newKillfeed(capacity int) *killfeedRing {
	return &killfeedRing{cap: capacity}
}

func (k *killfeedRing) push(e KillfeedEntry) {
	k.entries = append(k.entries, e)
	if len(k.entries) > k.cap {
		k.entries = k.entries[len(k.entries)-k.cap:]
	}
}

// tail returns the most recent n entries.
func (k *killfeedRing) tail(n int) []KillfeedEntry {
	if len(k.entries) <= n {
		return k.entries
	}
	return k.entries[len(k.entries)-n:]
}

func (k *killfeedRing) reset() {
	k.entries = nil
}
