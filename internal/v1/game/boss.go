package game

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/heroarena/game-server/internal/v1/geom"
	"github.com/heroarena/game-server/internal/v1/stats"
	"github.com/heroarena/game-server/internal/v1/wire"
)

// Boss Battle: a cooperative room where players whittle down a shared boss
// health pool. Movement is event-driven; the tick loop owns power-up
// cadence and pickups.
const (
	bossMaxPlayers   = 10
	bossPlayerRadius = 35.0
	bossRadius       = 70.0
	bossMaxHealth    = 1000.0

	bossPowerupInterval = 5 * time.Second
	bossMaxPowerups     = 5
)

var bossPowerupTypes = []string{"damage", "speed", "rapidfire", "heal"}

// bossBounds is the normalized play area. The first joiner's hint seeds
// it, floored so the arena stays playable.
type bossBounds struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Top    float64 `json:"top"`
}

type bossRoom struct {
	baseRoom

	players   map[ConnID]*Player
	bounds    bossBounds
	boundsSet bool

	bossHealth float64
	defeated   bool
	startedAt  time.Time

	powerups      map[string]*Powerup
	nextPowerupAt time.Time
}

func newBossRoom(id RoomID, deps roomDeps, now time.Time) *bossRoom {
	return &bossRoom{
		baseRoom:      newBaseRoom(id, ModeBoss, deps, now),
		players:       make(map[ConnID]*Player),
		bounds:        bossBounds{Width: 1100, Height: 600, Top: 200},
		bossHealth:    bossMaxHealth,
		startedAt:     now,
		powerups:      make(map[string]*Powerup),
		nextPowerupAt: now.Add(bossPowerupInterval),
	}
}

func (r *bossRoom) CanJoin() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.closed && len(r.players) < bossMaxPlayers
}

func (r *bossRoom) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

func (r *bossRoom) Empty() bool { return r.PlayerCount() == 0 }

func (r *bossRoom) HandleJoin(ctx context.Context, c Client, profile JoinProfile) {
	now := time.Now()

	r.mu.Lock()
	if existing, ok := r.players[c.ConnID()]; ok {
		// Re-join: resend authoritative state.
		r.attachLocked(c)
		state := r.roomStateLocked(existing)
		r.mu.Unlock()
		r.unicast(c, wire.EvRoomState, state)
		return
	}
	if len(r.players) >= bossMaxPlayers {
		r.mu.Unlock()
		r.unicast(c, wire.EvRoomFull, map[string]string{"roomId": string(r.id)})
		r.deps.onLeft(c.ConnID())
		return
	}

	if !r.boundsSet {
		r.bounds = normalizeBossBounds(profile)
		r.boundsSet = true
	}

	p := newPlayer(c.ConnID(), profile.Identity, profile, now)
	if p.Lives <= 0 {
		p.Lives = 3
	}
	p.X, p.Y = r.allocateSpawnLocked()

	r.players[c.ConnID()] = p
	r.attachLocked(c)
	state := r.roomStateLocked(p)
	joined := r.publicPlayerLocked(p)
	r.broadcastLocked(wire.EvPlayerJoined, joined, c.ConnID())
	r.mu.Unlock()

	r.unicast(c, wire.EvRoomState, state)
}

func (r *bossRoom) HandleLeave(ctx context.Context, connID ConnID, reason string) bool {
	r.mu.Lock()
	p, ok := r.players[connID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.players, connID)
	r.detachLocked(connID)
	r.broadcastLocked(wire.EvPlayerLeft, wire.PlayerLeft{
		ConnID: string(connID),
		Name:   p.DisplayName,
		Reason: reason,
	}, "")
	r.mu.Unlock()
	return true
}

func (r *bossRoom) HandleEvent(ctx context.Context, c Client, event string, payload json.RawMessage) {
	switch event {
	case wire.EvPlayerMove:
		var p wire.MovePayload
		if json.Unmarshal(payload, &p) != nil {
			return
		}
		r.handleMove(c, p)

	case wire.EvDamage:
		var p wire.DamagePayload
		if json.Unmarshal(payload, &p) != nil {
			return
		}
		r.handleDamage(c, p)

	case wire.EvPlayerHit:
		// Boss contact reported by the afflicted client.
		r.handlePlayerHit(c)

	case wire.EvPlayerStats:
		var p wire.JoinRoomPayload
		if json.Unmarshal(payload, &p) != nil {
			return
		}
		r.handleStatsUpdate(c, p.Bullets, p.Lives)

	case wire.EvReportStats:
		var p wire.StatsReportPayload
		if json.Unmarshal(payload, &p) != nil {
			return
		}
		r.handleStatsReport(c, p)

	case wire.EvChatSend:
		var p wire.ChatPayload
		if json.Unmarshal(payload, &p) != nil {
			return
		}
		r.mu.Lock()
		r.handleChatLocked(ctx, c, p, time.Now())
		r.mu.Unlock()

	case wire.EvPlayerAway, wire.EvPlayerReturned:
		r.handlePresence(c, event)

	case wire.EvDebugState:
		r.unicast(c, wire.EvDebugResponse, r.debugState())

	case wire.EvGetPlayers:
		r.unicast(c, wire.EvDebugResponse, map[string]any{"players": r.publicPlayers()})
	}
}

func (r *bossRoom) Tick(now time.Time, dt float64) {
	var collected []struct {
		powerup Powerup
		by      ConnID
	}
	var spawned *Powerup

	r.mu.Lock()
	// Power-up cadence under the population ceiling.
	if now.After(r.nextPowerupAt) && len(r.powerups) < bossMaxPowerups {
		r.nextPowerupAt = now.Add(bossPowerupInterval)
		kind := pickPowerupType(bossPowerupTypes)
		x := 100 + rand.Float64()*600
		y := 300 + rand.Float64()*250
		pu := newPowerup(kind, x, y, now)
		r.powerups[pu.ID] = pu
		spawned = pu
	}

	// Pickups.
	for id, pu := range r.powerups {
		for connID, p := range r.players {
			if pickupRange(p, pu, bossPlayerRadius) {
				applyPowerup(p, pu.Type, now)
				delete(r.powerups, id)
				collected = append(collected, struct {
					powerup Powerup
					by      ConnID
				}{*pu, connID})
				break
			}
		}
	}

	if spawned != nil {
		r.broadcastLocked(wire.EvPowerupSpawned, spawned, "")
	}
	for _, c := range collected {
		r.broadcastLocked(wire.EvPowerupCollected, map[string]any{
			"powerup": c.powerup,
			"by":      string(c.by),
		}, "")
	}
	r.mu.Unlock()
}

func (r *bossRoom) Close(reason string) {
	r.mu.Lock()
	for connID := range r.players {
		delete(r.players, connID)
		r.deps.onLeft(connID)
	}
	r.closeLocked(reason)
	r.mu.Unlock()
}

// --- movement ---

func (r *bossRoom) handleMove(c Client, m wire.MovePayload) {
	r.mu.Lock()
	p, ok := r.players[c.ConnID()]
	if !ok {
		r.mu.Unlock()
		return
	}

	x := geom.Clamp(m.X, bossPlayerRadius, r.bounds.Width-bossPlayerRadius)
	y := geom.Clamp(m.Y, r.bounds.Top+bossPlayerRadius, r.bounds.Height-bossPlayerRadius)

	// Only the mover is displaced: first out of the boss footprint, then
	// out of every other player.
	bx, by := r.bossCenter()
	x, y = geom.ResolveCircleCircle(x, y, bx, by, bossRadius+bossPlayerRadius+12)
	for connID, other := range r.players {
		if connID == c.ConnID() {
			continue
		}
		x, y = geom.ResolveCircleCircle(x, y, other.X, other.Y, 2*bossPlayerRadius)
	}
	x = geom.Clamp(x, bossPlayerRadius, r.bounds.Width-bossPlayerRadius)
	y = geom.Clamp(y, r.bounds.Top+bossPlayerRadius, r.bounds.Height-bossPlayerRadius)

	p.X, p.Y = x, y
	pos := map[string]any{"connId": string(c.ConnID()), "x": x, "y": y}
	r.broadcastLocked(wire.EvPlayerPosition, pos, c.ConnID())
	r.mu.Unlock()

	r.unicast(c, wire.EvSelfPosition, map[string]float64{"x": x, "y": y})
}

// --- combat ---

func (r *bossRoom) handleDamage(c Client, d wire.DamagePayload) {
	if d.Damage <= 0 {
		return
	}

	var summary *stats.MatchSummary

	r.mu.Lock()
	p, ok := r.players[c.ConnID()]
	if !ok || r.closed {
		r.mu.Unlock()
		return
	}
	if r.defeated {
		r.mu.Unlock()
		return
	}

	p.DamageDealt += d.Damage
	p.BulletsHit++

	r.bossHealth -= d.Damage
	if r.bossHealth < 0 {
		r.bossHealth = 0
	}
	r.broadcastLocked(wire.EvHealthUpdate, map[string]float64{
		"bossHealth":    r.bossHealth,
		"maxBossHealth": bossMaxHealth,
	}, "")

	if r.bossHealth == 0 {
		// Exactly one victory broadcast per match instance.
		r.defeated = true
		allStats := make([]map[string]any, 0, len(r.players))
		for connID, pl := range r.players {
			allStats = append(allStats, map[string]any{
				"connId":            string(connID),
				"username":          pl.DisplayName,
				"character":         pl.Hero,
				"damageDealt":       pl.DamageDealt,
				"lives":             pl.Lives,
				"bulletsUsed":       pl.BulletsFired,
				"powerupsCollected": pl.PowerupsCollected,
			})
		}
		r.broadcastLocked(wire.EvDefeated, map[string]any{"allPlayerStats": allStats}, "")

		s := r.matchSummaryLocked(time.Now())
		summary = &s

		// Reset for the next run.
		r.bossHealth = bossMaxHealth
		r.defeated = false
		for _, pl := range r.players {
			pl.DamageDealt = 0
			pl.BulletsHit = 0
			pl.BulletsFired = 0
		}
	}
	r.mu.Unlock()

	if summary != nil {
		r.recordMatch(*summary)
	}
}

func (r *bossRoom) handlePlayerHit(c Client) {
	r.mu.Lock()
	p, ok := r.players[c.ConnID()]
	if !ok {
		r.mu.Unlock()
		return
	}

	p.Lives--
	p.LivesLost++
	r.broadcastLocked(wire.EvPlayerHit, map[string]any{
		"connId": string(c.ConnID()),
		"lives":  p.Lives,
	}, "")

	if p.Lives <= 0 {
		// player_died always precedes player_left{reason: died}.
		delete(r.players, c.ConnID())
		r.detachLocked(c.ConnID())
		r.broadcastLocked(wire.EvPlayerDied, map[string]any{
			"connId": string(c.ConnID()),
			"name":   p.DisplayName,
		}, "")
		r.broadcastLocked(wire.EvPlayerLeft, wire.PlayerLeft{
			ConnID: string(c.ConnID()),
			Name:   p.DisplayName,
			Reason: wire.LeaveReasonDied,
		}, "")
		r.mu.Unlock()
		r.deps.onLeft(c.ConnID())
		return
	}
	r.mu.Unlock()
}

func (r *bossRoom) handleStatsUpdate(c Client, bullets, lives int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[c.ConnID()]
	if !ok {
		return
	}
	// Advisory only; lives are server-owned, bullets the client tracks.
	if bullets >= 0 {
		p.Bullets = bullets
	}
	r.broadcastLocked(wire.EvPlayerStatsUpdate, map[string]any{
		"connId":  string(c.ConnID()),
		"bullets": p.Bullets,
		"lives":   p.Lives,
	}, c.ConnID())
}

func (r *bossRoom) handleStatsReport(c Client, report wire.StatsReportPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[c.ConnID()]
	if !ok {
		return
	}
	// Server counters win; the report only fills fields the server cannot
	// observe.
	if p.BulletsFired == 0 {
		p.BulletsFired = report.BulletsFired
	}
	for _, kind := range report.PowerupsCollected {
		p.PowerupsCollected = append(p.PowerupsCollected, kind)
	}
}

func (r *bossRoom) handlePresence(c Client, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[c.ConnID()]
	if !ok {
		return
	}
	p.Away = event == wire.EvPlayerAway
	r.broadcastLocked(event, map[string]string{"connId": string(c.ConnID())}, c.ConnID())
}

// --- helpers ---

func (r *bossRoom) bossCenter() (float64, float64) {
	return r.bounds.Width / 2, 110
}

func (r *bossRoom) allocateSpawnLocked() (float64, float64) {
	bx, by := r.bossCenter()
	area := spawnArea{
		Left:   bossPlayerRadius + 24,
		Right:  r.bounds.Width - bossPlayerRadius - 24,
		Top:    max(r.bounds.Top+bossPlayerRadius, 260),
		Bottom: r.bounds.Height - bossPlayerRadius - 24,
		Radius: bossPlayerRadius,
	}
	taken := func(x, y float64) bool {
		if geom.Dist(x, y, bx, by) < bossRadius+bossPlayerRadius+12 {
			return true
		}
		for _, p := range r.players {
			if geom.Dist(x, y, p.X, p.Y) < 2*bossPlayerRadius+6 {
				return true
			}
		}
		return false
	}
	return findOpenSpawn(area, taken, r.bounds.Width/2, r.bounds.Height-120)
}

func (r *bossRoom) publicPlayerLocked(p *Player) map[string]any {
	return map[string]any{
		"connId":    string(p.ConnID),
		"username":  p.DisplayName,
		"character": p.Hero,
		"x":         p.X,
		"y":         p.Y,
		"lives":     p.Lives,
	}
}

func (r *bossRoom) roomStateLocked(self *Player) map[string]any {
	players := make([]map[string]any, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, r.publicPlayerLocked(p))
	}
	powerups := make([]*Powerup, 0, len(r.powerups))
	for _, pu := range r.powerups {
		powerups = append(powerups, pu)
	}
	return map[string]any{
		"roomId":        string(r.id),
		"bossHealth":    r.bossHealth,
		"maxBossHealth": bossMaxHealth,
		"playerCount":   len(r.players),
		"players":       players,
		"powerups":      powerups,
		"bounds":        r.bounds,
		"self": map[string]any{
			"x":       self.X,
			"y":       self.Y,
			"bullets": self.Bullets,
			"lives":   self.Lives,
		},
	}
}

func (r *bossRoom) publicPlayers() []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	players := make([]map[string]any, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, r.publicPlayerLocked(p))
	}
	return players
}

func (r *bossRoom) debugState() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]any{
		"roomId":      string(r.id),
		"bossHealth":  r.bossHealth,
		"playerCount": len(r.players),
		"powerups":    len(r.powerups),
		"bounds":      r.bounds,
	}
}

func (r *bossRoom) matchSummaryLocked(now time.Time) stats.MatchSummary {
	players := make([]stats.PlayerSummary, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, stats.PlayerSummary{
			ConnID:            string(p.ConnID),
			UserID:            p.UserID,
			DisplayName:       p.DisplayName,
			Hero:              p.Hero,
			DamageDealt:       p.DamageDealt,
			BulletsFired:      p.BulletsFired,
			BulletsHit:        p.BulletsHit,
			LivesLost:         p.LivesLost,
			PowerupsCollected: p.PowerupsCollected,
		})
	}
	return stats.MatchSummary{
		RoomID:    string(r.id),
		Mode:      string(ModeBoss),
		StartedAt: r.startedAt,
		EndedAt:   now,
		Outcome:   "boss_defeated",
		Players:   players,
	}
}

func normalizeBossBounds(profile JoinProfile) bossBounds {
	b := bossBounds{Width: profile.BoundsWidth, Height: profile.BoundsHeight, Top: profile.BoundsTop}
	if b.Width < 480 {
		b.Width = 1100
	}
	if b.Height < 360 {
		b.Height = 600
	}
	if b.Top <= 0 || b.Top > b.Height-120 {
		b.Top = 200
	}
	return b
}
