package game

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/heroarena/game-server/internal/v1/ratelimit"
	"github.com/heroarena/game-server/internal/v1/wire"
)

// Lobby is the pre-match chat channel for one mode. Membership is
// independent of room membership; clients typically sit in the lobby while
// browsing and keep chatting after joining a room.
type Lobby struct {
	mode    Mode
	mu      sync.RWMutex
	members map[ConnID]lobbyMember
	limiter *ratelimit.RateLimiter
}

type lobbyMember struct {
	client Client
	name   string
}

// LobbyMemberInfo is the serialized member entry.
type LobbyMemberInfo struct {
	ConnID string `json:"connId"`
	Name   string `json:"name"`
}

func NewLobby(mode Mode, limiter *ratelimit.RateLimiter) *Lobby {
	return &Lobby{
		mode:    mode,
		members: make(map[ConnID]lobbyMember),
		limiter: limiter,
	}
}

func (l *Lobby) event(suffix string) string {
	return wire.Event(string(l.mode), suffix)
}

// Join adds the client, sends it the lobby state, and announces the join
// to everyone else with a synthesized system message.
func (l *Lobby) Join(c Client, now time.Time) {
	name := c.Identity().DisplayName

	l.mu.Lock()
	l.members[c.ConnID()] = lobbyMember{client: c, name: name}
	members := l.membersLocked()
	l.broadcastLocked(l.event(wire.EvChatMessage), wire.ChatMessage{
		Content:   name + " joined the lobby",
		System:    true,
		Timestamp: now.UnixMilli(),
	}, c.ConnID())
	l.broadcastLocked(l.event(wire.EvLobbyMembers), members, "")
	l.broadcastLocked(l.event(wire.EvLobbyPlayerCount), map[string]int{"count": len(members)}, "")
	l.mu.Unlock()

	c.SendEvent(l.event(wire.EvLobbyState), map[string]any{
		"members": members,
		"count":   len(members),
	})
}

// Leave removes the client. Idempotent.
func (l *Lobby) Leave(connID ConnID, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	member, ok := l.members[connID]
	if !ok {
		return
	}
	delete(l.members, connID)

	members := l.membersLocked()
	l.broadcastLocked(l.event(wire.EvChatMessage), wire.ChatMessage{
		Content:   member.name + " left the lobby",
		System:    true,
		Timestamp: now.UnixMilli(),
	}, "")
	l.broadcastLocked(l.event(wire.EvLobbyMembers), members, "")
	l.broadcastLocked(l.event(wire.EvLobbyPlayerCount), map[string]int{"count": len(members)}, "")
}

// Chat relays a lobby message to every member except the sender.
func (l *Lobby) Chat(ctx context.Context, c Client, p wire.ChatPayload, now time.Time) {
	content := strings.TrimSpace(p.Content)
	if content == "" {
		return
	}
	if len(content) > maxChatLength {
		content = content[:maxChatLength]
	}
	if l.limiter != nil && !l.limiter.AllowChat(ctx, string(c.ConnID())) {
		return
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.members[c.ConnID()]; !ok {
		return
	}
	l.broadcastLocked(l.event(wire.EvChatMessage), wire.ChatMessage{
		From:      string(c.ConnID()),
		Name:      c.Identity().DisplayName,
		Content:   content,
		Timestamp: now.UnixMilli(),
	}, c.ConnID())
}

// Contains reports lobby membership.
func (l *Lobby) Contains(connID ConnID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.members[connID]
	return ok
}

// Count returns the member count.
func (l *Lobby) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.members)
}

func (l *Lobby) membersLocked() []LobbyMemberInfo {
	out := make([]LobbyMemberInfo, 0, len(l.members))
	for connID, m := range l.members {
		out = append(out, LobbyMemberInfo{ConnID: string(connID), Name: m.name})
	}
	return out
}

func (l *Lobby) broadcastLocked(eventType string, payload any, exclude ConnID) {
	data, err := wire.Marshal(eventType, payload)
	if err != nil {
		return
	}
	for connID, m := range l.members {
		if connID == exclude {
			continue
		}
		m.client.SendRaw(data)
	}
}
