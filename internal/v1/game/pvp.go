package game

import (
	"context"
	"encoding/json"
	"time"

	"github.com/heroarena/game-server/internal/v1/geom"
	"github.com/heroarena/game-server/internal/v1/stats"
	"github.com/heroarena/game-server/internal/v1/wire"
)

// PVP Arena: exactly two players per room, no mid-join once a battle is
// underway. The server owns lives and the battle lifecycle; shots are
// relayed and hits are reported by the aggrieved client.
const (
	pvpMaxPlayers   = 2
	pvpPlayerRadius = 28.0
	pvpArenaWidth   = 800.0
	pvpArenaHeight  = 600.0
	pvpStartLives   = 3
)

var pvpSpawns = [pvpMaxPlayers]geom.Vec{
	{X: 100, Y: 300},
	{X: 700, Y: 300},
}

type pvpRoom struct {
	baseRoom

	players       map[ConnID]*Player
	order         []ConnID // join order; index is playerNumber-1
	battleActive  bool
	battleStarted bool // a battle ran at least once in this room
	startedAt     time.Time
}

func newPVPRoom(id RoomID, deps roomDeps, now time.Time) *pvpRoom {
	return &pvpRoom{
		baseRoom: newBaseRoom(id, ModePVP, deps, now),
		players:  make(map[ConnID]*Player),
	}
}

func (r *pvpRoom) CanJoin() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	// No mid-join once a battle is underway.
	return !r.closed && len(r.players) < pvpMaxPlayers && !r.battleActive
}

func (r *pvpRoom) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

func (r *pvpRoom) Empty() bool { return r.PlayerCount() == 0 }

func (r *pvpRoom) HandleJoin(ctx context.Context, c Client, profile JoinProfile) {
	now := time.Now()

	r.mu.Lock()
	if _, ok := r.players[c.ConnID()]; ok {
		r.attachLocked(c)
		state := r.roomStateLocked(c.ConnID())
		r.mu.Unlock()
		r.unicast(c, wire.EvRoomState, state)
		return
	}
	if len(r.players) >= pvpMaxPlayers || r.battleActive {
		r.mu.Unlock()
		r.unicast(c, wire.EvRoomFull, map[string]string{"roomId": string(r.id)})
		r.deps.onLeft(c.ConnID())
		return
	}

	p := newPlayer(c.ConnID(), profile.Identity, profile, now)
	p.Lives = pvpStartLives
	slot := len(r.order)
	p.X, p.Y = pvpSpawns[slot].X, pvpSpawns[slot].Y

	r.players[c.ConnID()] = p
	r.order = append(r.order, c.ConnID())
	r.attachLocked(c)

	state := r.roomStateLocked(c.ConnID())
	if opp := r.opponentLocked(c.ConnID()); opp != nil {
		if oc, ok := r.clients[opp.ConnID]; ok {
			oc.SendEvent(r.event(wire.EvOpponentJoined), r.publicPlayerLocked(p))
		}
	}
	full := len(r.players) == pvpMaxPlayers
	if full {
		r.broadcastLocked(wire.EvMatchReady, map[string]any{"roomId": string(r.id)}, "")
	}
	r.mu.Unlock()

	r.unicast(c, wire.EvRoomState, state)
}

func (r *pvpRoom) HandleLeave(ctx context.Context, connID ConnID, reason string) bool {
	var summary *stats.MatchSummary

	r.mu.Lock()
	p, ok := r.players[connID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.removePlayerLocked(connID)
	r.broadcastLocked(wire.EvOpponentLeft, wire.PlayerLeft{
		ConnID: string(connID),
		Name:   p.DisplayName,
		Reason: reason,
	}, "")

	// A mid-battle walkout forfeits.
	if r.battleActive {
		r.battleActive = false
		if opp := r.firstPlayerLocked(); opp != nil {
			r.broadcastLocked(wire.EvMatchEnd, map[string]any{
				"winner": string(opp.ConnID),
				"reason": "forfeit",
			}, "")
			s := r.matchSummaryLocked(time.Now(), string(opp.ConnID), "forfeit")
			summary = &s
		}
		for _, pl := range r.players {
			pl.Ready = false
		}
	}
	r.mu.Unlock()

	if summary != nil {
		r.recordMatch(*summary)
	}
	return true
}

func (r *pvpRoom) HandleEvent(ctx context.Context, c Client, event string, payload json.RawMessage) {
	switch event {
	case wire.EvPlayerMove:
		var p wire.MovePayload
		if json.Unmarshal(payload, &p) != nil {
			return
		}
		r.handleMove(c, p)

	case wire.EvPlayerShoot:
		// Shots are relayed, not simulated; the opponent renders and
		// reports contact via hit_opponent.
		r.relayShoot(c, payload)

	case wire.EvHitOpponent:
		r.handleHit(c)

	case wire.EvReady:
		r.handleReady(c)

	case wire.EvPlayAgain:
		r.handlePlayAgain(c)

	case wire.EvRequestState:
		r.mu.RLock()
		state := r.roomStateLocked(c.ConnID())
		r.mu.RUnlock()
		r.unicast(c, wire.EvRoomState, state)

	case wire.EvChatSend:
		var p wire.ChatPayload
		if json.Unmarshal(payload, &p) != nil {
			return
		}
		r.mu.Lock()
		r.handleChatLocked(ctx, c, p, time.Now())
		r.mu.Unlock()

	case wire.EvPlayerAway, wire.EvPlayerReturned:
		r.mu.Lock()
		if p, ok := r.players[c.ConnID()]; ok {
			p.Away = event == wire.EvPlayerAway
			r.broadcastLocked(event, map[string]string{"connId": string(c.ConnID())}, c.ConnID())
		}
		r.mu.Unlock()
	}
}

// Tick is a no-op for PVP: the mode has no server-side physics loop, only
// event-driven movement resolution.
func (r *pvpRoom) Tick(now time.Time, dt float64) {}

func (r *pvpRoom) Close(reason string) {
	r.mu.Lock()
	for connID := range r.players {
		delete(r.players, connID)
		r.deps.onLeft(connID)
	}
	r.order = nil
	r.closeLocked(reason)
	r.mu.Unlock()
}

// --- handlers ---

func (r *pvpRoom) handleMove(c Client, m wire.MovePayload) {
	r.mu.Lock()
	p, ok := r.players[c.ConnID()]
	if !ok {
		r.mu.Unlock()
		return
	}

	x := geom.Clamp(m.X, pvpPlayerRadius, pvpArenaWidth-pvpPlayerRadius)
	y := geom.Clamp(m.Y, pvpPlayerRadius, pvpArenaHeight-pvpPlayerRadius)
	if opp := r.opponentLocked(c.ConnID()); opp != nil {
		x, y = geom.ResolveCircleCircle(x, y, opp.X, opp.Y, 2*pvpPlayerRadius)
		x = geom.Clamp(x, pvpPlayerRadius, pvpArenaWidth-pvpPlayerRadius)
		y = geom.Clamp(y, pvpPlayerRadius, pvpArenaHeight-pvpPlayerRadius)
	}
	p.X, p.Y = x, y

	r.broadcastLocked(wire.EvOpponentPosition, map[string]any{
		"connId": string(c.ConnID()),
		"x":      x,
		"y":      y,
	}, c.ConnID())
	r.mu.Unlock()

	r.unicast(c, wire.EvSelfPosition, map[string]float64{"x": x, "y": y})
}

func (r *pvpRoom) relayShoot(c Client, payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[c.ConnID()]
	if !ok || !r.battleActive {
		return
	}
	p.BulletsFired++

	var shot map[string]any
	if json.Unmarshal(payload, &shot) != nil {
		shot = map[string]any{}
	}
	shot["connId"] = string(c.ConnID())
	r.broadcastLocked(wire.EvPlayerShoot, shot, c.ConnID())
}

func (r *pvpRoom) handleHit(c Client) {
	var summary *stats.MatchSummary

	r.mu.Lock()
	victim, ok := r.players[c.ConnID()]
	if !ok || !r.battleActive {
		r.mu.Unlock()
		return
	}

	victim.Lives--
	victim.LivesLost++
	if attacker := r.opponentLocked(c.ConnID()); attacker != nil {
		attacker.BulletsHit++
	}
	r.broadcastLocked(wire.EvPlayerHit, map[string]any{
		"connId": string(c.ConnID()),
		"lives":  victim.Lives,
	}, "")

	if victim.Lives <= 0 {
		r.battleActive = false
		var winner string
		if attacker := r.opponentLocked(c.ConnID()); attacker != nil {
			winner = string(attacker.ConnID)
			attacker.Kills++
		}
		victim.Deaths++
		r.broadcastLocked(wire.EvMatchEnd, map[string]any{
			"winner": winner,
			"loser":  string(c.ConnID()),
			"reason": "knockout",
		}, "")
		for _, pl := range r.players {
			pl.Ready = false
		}
		s := r.matchSummaryLocked(time.Now(), winner, "knockout")
		summary = &s
	}
	r.mu.Unlock()

	if summary != nil {
		r.recordMatch(*summary)
	}
}

func (r *pvpRoom) handleReady(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[c.ConnID()]
	if !ok || r.battleActive {
		return
	}
	p.Ready = true

	if len(r.players) < pvpMaxPlayers {
		return
	}
	for _, pl := range r.players {
		if !pl.Ready {
			return
		}
	}
	// Both ready: one battle_start per battle.
	r.battleActive = true
	r.battleStarted = true
	r.startedAt = time.Now()
	for i, connID := range r.order {
		if pl, ok := r.players[connID]; ok {
			pl.Lives = pvpStartLives
			pl.X, pl.Y = pvpSpawns[i].X, pvpSpawns[i].Y
		}
	}
	r.broadcastLocked(wire.EvBattleStart, map[string]any{"roomId": string(r.id)}, "")
}

func (r *pvpRoom) handlePlayAgain(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[c.ConnID()]
	if !ok || r.battleActive {
		return
	}
	p.Ready = false
	p.Lives = pvpStartLives
	r.broadcastLocked(wire.EvMatchReady, map[string]any{"roomId": string(r.id)}, "")
}

// --- helpers ---

func (r *pvpRoom) opponentLocked(connID ConnID) *Player {
	for id, p := range r.players {
		if id != connID {
			return p
		}
	}
	return nil
}

func (r *pvpRoom) firstPlayerLocked() *Player {
	for _, connID := range r.order {
		if p, ok := r.players[connID]; ok {
			return p
		}
	}
	return nil
}

func (r *pvpRoom) removePlayerLocked(connID ConnID) {
	delete(r.players, connID)
	r.detachLocked(connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *pvpRoom) playerNumberLocked(connID ConnID) int {
	for i, id := range r.order {
		if id == connID {
			return i + 1
		}
	}
	return 0
}

func (r *pvpRoom) publicPlayerLocked(p *Player) map[string]any {
	return map[string]any{
		"connId":       string(p.ConnID),
		"username":     p.DisplayName,
		"character":    p.Hero,
		"x":            p.X,
		"y":            p.Y,
		"lives":        p.Lives,
		"playerNumber": r.playerNumberLocked(p.ConnID),
	}
}

func (r *pvpRoom) roomStateLocked(self ConnID) map[string]any {
	state := map[string]any{
		"roomId":        string(r.id),
		"playerCount":   len(r.players),
		"playerNumber":  r.playerNumberLocked(self),
		"battleActive":  r.battleActive,
		"battleStarted": r.battleStarted,
	}
	if opp := r.opponentLocked(self); opp != nil {
		state["opponent"] = r.publicPlayerLocked(opp)
	}
	return state
}

func (r *pvpRoom) matchSummaryLocked(now time.Time, winner, outcome string) stats.MatchSummary {
	players := make([]stats.PlayerSummary, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, stats.PlayerSummary{
			ConnID:       string(p.ConnID),
			UserID:       p.UserID,
			DisplayName:  p.DisplayName,
			Hero:         p.Hero,
			Kills:        p.Kills,
			Deaths:       p.Deaths,
			BulletsFired: p.BulletsFired,
			BulletsHit:   p.BulletsHit,
			LivesLost:    p.LivesLost,
		})
	}
	return stats.MatchSummary{
		RoomID:    string(r.id),
		Mode:      string(ModePVP),
		StartedAt: r.startedAt,
		EndedAt:   now,
		Outcome:   outcome,
		WinnerID:  winner,
		Players:   players,
	}
}
