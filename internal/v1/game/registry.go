package game

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/heroarena/game-server/internal/v1/config"
	"github.com/heroarena/game-server/internal/v1/logging"
	"github.com/heroarena/game-server/internal/v1/metrics"
	"github.com/heroarena/game-server/internal/v1/ratelimit"
	"github.com/heroarena/game-server/internal/v1/stats"
	"github.com/heroarena/game-server/internal/v1/wire"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// roomRef locates a connection's room in the reverse index.
type roomRef struct {
	mode   Mode
	roomID RoomID
}

// Registry owns every room across all modes. It allocates rooms, routes
// joins, maintains the conn_id reverse index, runs each room's tick loop,
// and garbage-collects empty rooms.
type Registry struct {
	mu         sync.Mutex
	rooms      map[Mode]map[RoomID]Room
	roomOrder  map[Mode][]RoomID
	index      map[ConnID]roomRef
	refs       map[RoomID]int // index entries per room; guards create/join races
	loops      map[RoomID]chan struct{}
	lobbies    map[Mode]*Lobby
	partyRooms map[string]RoomID // Slither party affinity

	clock   clock.Clock
	cfg     *config.Config
	sink    stats.Sink
	limiter *ratelimit.RateLimiter

	wg     sync.WaitGroup
	closed bool
}

// NewRegistry builds the registry with its collaborators. A nil sink
// falls back to stats.Noop.
func NewRegistry(cfg *config.Config, sink stats.Sink, limiter *ratelimit.RateLimiter, cl clock.Clock) *Registry {
	if sink == nil {
		sink = stats.Noop{}
	}
	if cl == nil {
		cl = clock.RealClock{}
	}

	r := &Registry{
		rooms:      make(map[Mode]map[RoomID]Room),
		roomOrder:  make(map[Mode][]RoomID),
		index:      make(map[ConnID]roomRef),
		refs:       make(map[RoomID]int),
		loops:      make(map[RoomID]chan struct{}),
		lobbies:    make(map[Mode]*Lobby),
		partyRooms: make(map[string]RoomID),
		clock:      cl,
		cfg:        cfg,
		sink:       sink,
		limiter:    limiter,
	}
	for _, mode := range Modes {
		r.rooms[mode] = make(map[RoomID]Room)
		r.lobbies[mode] = NewLobby(mode, limiter)
	}
	return r
}

// Dispatch routes one inbound envelope. Unknown or malformed events are
// counted and ignored; the server never errors a room over bad input.
func (reg *Registry) Dispatch(ctx context.Context, c Client, env wire.Envelope) {
	mode, suffix, ok := splitEvent(env.Type)
	if !ok {
		metrics.WebsocketEvents.WithLabelValues(env.Type, "unknown").Inc()
		return
	}
	metrics.WebsocketEvents.WithLabelValues(env.Type, "ok").Inc()

	ctx = context.WithValue(ctx, logging.ConnIDKey, string(c.ConnID()))
	ctx = context.WithValue(ctx, logging.ModeKey, string(mode))

	switch suffix {
	case wire.EvJoinRoom:
		var p wire.JoinRoomPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				logging.Warn(ctx, "Malformed join payload", zap.String("event", env.Type), zap.Error(err))
				return
			}
		}
		reg.Join(ctx, mode, c, p)

	case wire.EvLeaveRoom:
		reg.Leave(ctx, c.ConnID(), wire.LeaveReasonLeft)

	case wire.EvJoinLobby:
		if mode == ModeKOZ {
			// KOZ has no separate chat lobby; joining the lobby joins the
			// shared match room, as spectator when it is full or mid-match.
			var p wire.JoinRoomPayload
			if len(env.Payload) > 0 {
				_ = json.Unmarshal(env.Payload, &p)
			}
			reg.Join(ctx, mode, c, p)
			return
		}
		reg.lobbies[mode].Join(c, reg.clock.Now())

	case wire.EvLeaveLobby:
		if mode == ModeKOZ {
			reg.Leave(ctx, c.ConnID(), wire.LeaveReasonLeft)
			return
		}
		reg.lobbies[mode].Leave(c.ConnID(), reg.clock.Now())

	case wire.EvChatSend:
		var p wire.ChatPayload
		if len(env.Payload) > 0 {
			_ = json.Unmarshal(env.Payload, &p)
		}
		if room := reg.roomFor(c.ConnID()); room != nil && room.Mode() == mode {
			room.HandleEvent(ctx, c, suffix, env.Payload)
			return
		}
		reg.lobbies[mode].Chat(ctx, c, p, reg.clock.Now())

	case wire.EvGetStatus:
		c.SendEvent(wire.Event(string(mode), wire.EvStatus), reg.ModeStatus(mode))

	default:
		room := reg.roomFor(c.ConnID())
		if room == nil || room.Mode() != mode {
			logging.GetLogger().Debug("Event for connection outside a room",
				zap.String("event", env.Type), zap.String("connId", string(c.ConnID())))
			return
		}
		room.HandleEvent(ctx, c, suffix, env.Payload)
	}
}

// Join places the connection in a room for the mode, honoring the
// preferred room hint and per-mode matchmaking rules. The connection is
// moved out of any room it currently occupies first.
func (reg *Registry) Join(ctx context.Context, mode Mode, c Client, p wire.JoinRoomPayload) {
	connID := c.ConnID()

	// A conn_id is in at most one room at any instant.
	if prev := reg.roomFor(connID); prev != nil {
		if prev.Mode() == mode && string(prev.ID()) == p.RoomID {
			// Re-join of the same room: let the room resend its state.
			prev.HandleJoin(ctx, c, profileFrom(c, p))
			return
		}
		reg.Leave(ctx, connID, wire.LeaveReasonLeft)
	}

	reg.mu.Lock()
	if reg.closed {
		reg.mu.Unlock()
		return
	}

	room, full := reg.pickRoomLocked(mode, RoomID(p.RoomID), p.PartyID)
	if full {
		reg.mu.Unlock()
		c.SendEvent(wire.Event(string(mode), wire.EvRoomFull), map[string]string{"roomId": p.RoomID})
		return
	}
	if room == nil {
		room = reg.createRoomLocked(mode)
	}
	if p.PartyID != "" && mode == ModeSlither {
		reg.partyRooms[p.PartyID] = room.ID()
	}
	reg.index[connID] = roomRef{mode: mode, roomID: room.ID()}
	reg.refs[room.ID()]++
	reg.mu.Unlock()

	room.HandleJoin(ctx, c, profileFrom(c, p))
	metrics.RoomPlayers.WithLabelValues(string(mode)).Inc()
}

// Leave removes the connection from its room, if any. Idempotent. Empty
// rooms are reaped immediately.
func (reg *Registry) Leave(ctx context.Context, connID ConnID, reason string) {
	reg.mu.Lock()
	ref, ok := reg.index[connID]
	if !ok {
		reg.mu.Unlock()
		return
	}
	delete(reg.index, connID)
	reg.refs[ref.roomID]--
	room := reg.rooms[ref.mode][ref.roomID]
	reg.mu.Unlock()

	if room == nil {
		return
	}
	if room.HandleLeave(ctx, connID, reason) {
		metrics.RoomPlayers.WithLabelValues(string(ref.mode)).Dec()
	}
	reg.removeIfEmpty(room)
}

// Disconnect cleans up everything owned by a closed connection: room
// membership and lobby membership across all modes.
func (reg *Registry) Disconnect(ctx context.Context, connID ConnID) {
	reg.Leave(ctx, connID, wire.LeaveReasonDisconnect)
	now := reg.clock.Now()
	for _, lobby := range reg.lobbies {
		lobby.Leave(connID, now)
	}
}

// ModeStatus reports the aggregate occupancy for a mode.
func (reg *Registry) ModeStatus(mode Mode) map[string]int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	total := 0
	open := 0
	for _, room := range reg.rooms[mode] {
		total += room.PlayerCount()
		if room.CanJoin() {
			open++
		}
	}
	return map[string]int{
		"totalPlayers": total,
		"activeRooms":  len(reg.rooms[mode]),
		"openSlots":    open,
	}
}

// RoomCount returns the number of live rooms for a mode.
func (reg *Registry) RoomCount(mode Mode) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms[mode])
}

// Lobby returns the mode's chat lobby.
func (reg *Registry) Lobby(mode Mode) *Lobby {
	return reg.lobbies[mode]
}

// Shutdown stops every room loop and evicts all players.
func (reg *Registry) Shutdown(ctx context.Context) error {
	logging.Info(ctx, "Shutting down registry - closing all active rooms...")

	reg.mu.Lock()
	reg.closed = true
	var rooms []Room
	for _, byID := range reg.rooms {
		for _, room := range byID {
			rooms = append(rooms, room)
		}
	}
	for id, stop := range reg.loops {
		close(stop)
		delete(reg.loops, id)
	}
	reg.mu.Unlock()

	for _, room := range rooms {
		room.Close("Server shutting down")
	}

	done := make(chan struct{})
	go func() {
		reg.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	logging.Info(ctx, "All rooms closed", zap.Int("count", len(rooms)))
	return nil
}

// --- internals ---

func splitEvent(eventType string) (Mode, string, bool) {
	parts := strings.SplitN(eventType, "_", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	mode := Mode(parts[0])
	for _, m := range Modes {
		if m == mode {
			return mode, parts[1], true
		}
	}
	return "", "", false
}

func profileFrom(c Client, p wire.JoinRoomPayload) JoinProfile {
	id := c.Identity()
	if p.Username != "" {
		id.DisplayName = p.Username
	}
	if p.AvatarRef != "" {
		id.AvatarRef = p.AvatarRef
	}
	return JoinProfile{
		Identity:     id,
		Character:    p.Character,
		Hero:         p.Hero,
		Weapon:       p.Weapon,
		Bullets:      p.Bullets,
		Lives:        p.Lives,
		PartyID:      p.PartyID,
		BoundsWidth:  p.BoundsWidth,
		BoundsHeight: p.BoundsHeight,
		BoundsTop:    p.BoundsTop,
	}
}

func (reg *Registry) roomFor(connID ConnID) Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	ref, ok := reg.index[connID]
	if !ok {
		return nil
	}
	return reg.rooms[ref.mode][ref.roomID]
}

// pickRoomLocked applies the matchmaking rules: preferred room first, then
// the first joinable room in creation order, else nil to create. The full
// flag is set only when a preferred room was named and cannot take the
// player.
func (reg *Registry) pickRoomLocked(mode Mode, preferred RoomID, partyID string) (Room, bool) {
	if partyID != "" && mode == ModeSlither {
		if id, ok := reg.partyRooms[partyID]; ok {
			if room, ok := reg.rooms[mode][id]; ok && room.CanJoin() {
				return room, false
			}
		}
	}

	if preferred != "" {
		if room, ok := reg.rooms[mode][preferred]; ok {
			if room.CanJoin() {
				return room, false
			}
			return nil, true
		}
	}

	for _, id := range reg.roomOrder[mode] {
		if room, ok := reg.rooms[mode][id]; ok && room.CanJoin() {
			return room, false
		}
	}
	return nil, false
}

func (reg *Registry) createRoomLocked(mode Mode) Room {
	id := RoomID(string(mode) + "-" + uuid.NewString()[:8])
	deps := roomDeps{
		limiter: reg.limiter,
		record:  func(s stats.MatchSummary) { reg.sink.RecordMatchEnd(context.Background(), s) },
		onLeft:  reg.dropIndex,
	}
	now := reg.clock.Now()

	var room Room
	switch mode {
	case ModeBoss:
		room = newBossRoom(id, deps, now)
	case ModePVP:
		room = newPVPRoom(id, deps, now)
	case ModeKOZ:
		room = newKOZRoom(id, deps, reg.cfg, now)
	case ModeSlither:
		room = newSlitherRoom(id, deps, now)
	}

	reg.rooms[mode][id] = room
	reg.roomOrder[mode] = append(reg.roomOrder[mode], id)
	metrics.ActiveRooms.WithLabelValues(string(mode)).Inc()
	logging.Info(context.Background(), "Created room", zap.String("roomId", string(id)), zap.String("mode", string(mode)))

	reg.startLoopLocked(room)
	return room
}

// dropIndex clears a connection's reverse-index entry. Rooms call it when
// they evict a player themselves (death, room close), so it must not touch
// any room lock.
func (reg *Registry) dropIndex(connID ConnID) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	ref, ok := reg.index[connID]
	if !ok {
		return
	}
	delete(reg.index, connID)
	reg.refs[ref.roomID]--
	metrics.RoomPlayers.WithLabelValues(string(ref.mode)).Dec()
}

// removeIfEmpty reaps the room when no players and no in-flight joins
// reference it. Reports whether the room was removed.
func (reg *Registry) removeIfEmpty(room Room) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	id := room.ID()
	if reg.refs[id] > 0 || !room.Empty() {
		return false
	}
	if _, ok := reg.rooms[room.Mode()][id]; !ok {
		return false
	}

	delete(reg.rooms[room.Mode()], id)
	delete(reg.refs, id)
	order := reg.roomOrder[room.Mode()]
	for i, rid := range order {
		if rid == id {
			reg.roomOrder[room.Mode()] = append(order[:i], order[i+1:]...)
			break
		}
	}
	for party, rid := range reg.partyRooms {
		if rid == id {
			delete(reg.partyRooms, party)
		}
	}
	if stop, ok := reg.loops[id]; ok {
		close(stop)
		delete(reg.loops, id)
	}
	metrics.ActiveRooms.WithLabelValues(string(room.Mode())).Dec()
	logging.Info(context.Background(), "Removed empty room", zap.String("roomId", string(id)), zap.String("mode", string(room.Mode())))
	return true
}
