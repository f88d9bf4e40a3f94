package game

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/heroarena/game-server/internal/v1/config"
	"github.com/heroarena/game-server/internal/v1/geom"
	"github.com/heroarena/game-server/internal/v1/stats"
	"github.com/heroarena/game-server/internal/v1/wire"
)

// King of the Zone: a fixed-tick, fully server-simulated arena. Up to
// twelve active players fight over a carryable core inside a shrinking
// zone; later joiners spectate until the next lobby phase.
const (
	playerRadiusKOZ = 22.0

	kozMapWidth  = 4200.0
	kozMapHeight = 2800.0

	kozMinPlayers = 4
	kozMaxActive  = 12

	kozCountdown       = 10 * time.Second
	kozMatchDuration   = 180 * time.Second
	kozResultsDuration = 12 * time.Second

	kozZoneStartRadius = 1260.0
	kozZoneMinRadius   = 360.0
	kozShrinkInterval  = 24 * time.Second
	kozShrinkDuration  = 6 * time.Second
	kozStormDamage     = 8.0
	kozStormTick       = time.Second
	kozZoneRegen       = 4.0
	kozFinaleMult      = 1.6
	kozFinaleWindow    = 30 * time.Second

	kozRespawnDelay = 3 * time.Second
	kozScoreTarget  = 70
	kozKillScore    = 10

	kozMaxAmmo       = 3
	kozAmmoRegen     = 900 * time.Millisecond
	kozProjectileCap = 96
	kozMaxPowerups   = 6
	kozPowerupPeriod = 7 * time.Second

	kozCoreUnlockDelay = 800 * time.Millisecond
	kozOverclockMeter  = 26.0
	kozOverclockFill   = 4.0 // meter units per held second
	kozOverclockBuff   = 6 * time.Second

	kozKillfeedCap  = 10
	kozKillfeedTail = 6
)

var kozOverclockSpread = []float64{-0.16, 0, 0.16}

var kozPowerupTypes = []string{"heal", "speed", "shield", "damage", "ammo"}

// kozObstacles are the static walls, mirrored around the map center.
var kozObstacles = []geom.Rect{
	{X: 820, Y: 640, Width: 680, Height: 120},   // wall_tl
	{X: 2700, Y: 640, Width: 680, Height: 120},  // wall_tr
	{X: 820, Y: 2040, Width: 680, Height: 120},  // wall_bl
	{X: 2700, Y: 2040, Width: 680, Height: 120}, // wall_br
	{X: 1490, Y: 1150, Width: 140, Height: 500}, // pillar_l
	{X: 2570, Y: 1150, Width: 140, Height: 500}, // pillar_r
	{X: 1880, Y: 840, Width: 440, Height: 110},  // mid_top
	{X: 1880, Y: 1850, Width: 440, Height: 110}, // mid_bot
}

// kozSpawns are the twelve seats around the arena rim.
var kozSpawns = []geom.Vec{
	{X: 380, Y: 380}, {X: 2100, Y: 300}, {X: 3820, Y: 380},
	{X: 300, Y: 1400}, {X: 3900, Y: 1400},
	{X: 380, Y: 2420}, {X: 2100, Y: 2500}, {X: 3820, Y: 2420},
	{X: 1200, Y: 1400}, {X: 3000, Y: 1400},
	{X: 2100, Y: 1050}, {X: 2100, Y: 1750},
}

// kozPowerupSpots are candidate powerup locations, clear of every obstacle.
var kozPowerupSpots = []geom.Vec{
	{X: 700, Y: 1400}, {X: 3500, Y: 1400},
	{X: 2100, Y: 500}, {X: 2100, Y: 2300},
	{X: 1150, Y: 500}, {X: 3050, Y: 500},
	{X: 1150, Y: 2300}, {X: 3050, Y: 2300},
}

// kozZone is the current safe circle plus shrink animation state.
type kozZone struct {
	X, Y         float64
	Radius       float64
	TargetRadius float64
	DriftX       float64
	DriftY       float64
	ShrinkUntil  time.Time
	shrinkFrom   float64
	NextShrinkAt time.Time
}

// kozCore is the carryable scoring objective.
type kozCore struct {
	X, Y         float64
	Holder       ConnID // empty when dropped
	DropUnlockAt time.Time
}

type kozRoom struct {
	baseRoom

	cfg *config.Config

	players    map[ConnID]*Player
	spectators map[ConnID]*Player
	joinOrder  []ConnID

	phase       Phase
	phaseEndsAt time.Time
	lastCount   int // last integer countdown broadcast
	matchEndsAt time.Time
	startedAt   time.Time

	zone        kozZone
	core        kozCore
	projectiles map[string]*Projectile
	powerups    map[string]*Powerup
	killfeed    *killfeedRing

	nextPowerupAt  time.Time
	nextScoreAt    time.Time
	nextSnapshotAt time.Time
	nextPulseAt    time.Time // 1Hz match_state and lobby_update
	matchEnded     bool
}

func newKOZRoom(id RoomID, deps roomDeps, cfg *config.Config, now time.Time) *kozRoom {
	r := &kozRoom{
		baseRoom:    newBaseRoom(id, ModeKOZ, deps, now),
		cfg:         cfg,
		players:     make(map[ConnID]*Player),
		spectators:  make(map[ConnID]*Player),
		phase:       PhaseLobby,
		projectiles: make(map[string]*Projectile),
		powerups:    make(map[string]*Powerup),
		killfeed:    newKillfeed(kozKillfeedCap),
	}
	r.resetWorldLocked(now)
	return r
}

// resetWorldLocked reseats the zone, core, and pickups for a fresh match.
func (r *kozRoom) resetWorldLocked(now time.Time) {
	r.zone = kozZone{
		X:            kozMapWidth / 2,
		Y:            kozMapHeight / 2,
		Radius:       kozZoneStartRadius,
		TargetRadius: kozZoneStartRadius,
		NextShrinkAt: now.Add(kozShrinkInterval),
	}
	r.core = kozCore{X: kozMapWidth / 2, Y: kozMapHeight / 2}
	r.projectiles = make(map[string]*Projectile)
	r.powerups = make(map[string]*Powerup)
	r.killfeed.reset()
	r.nextPowerupAt = now.Add(kozPowerupPeriod)
	r.nextScoreAt = now.Add(time.Second)
	r.nextPulseAt = now
	r.matchEnded = false
}

func (r *kozRoom) CanJoin() bool {
	// Spectator capacity is unbounded; the room itself never refuses.
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.closed
}

func (r *kozRoom) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players) + len(r.spectators)
}

func (r *kozRoom) Empty() bool { return r.PlayerCount() == 0 }

func (r *kozRoom) HandleJoin(ctx context.Context, c Client, profile JoinProfile) {
	now := time.Now()

	r.mu.Lock()
	if p, ok := r.players[c.ConnID()]; ok {
		r.attachLocked(c)
		joined := r.joinedPayloadLocked(p, "player")
		r.mu.Unlock()
		r.unicast(c, wire.EvJoined, joined)
		return
	}
	if p, ok := r.spectators[c.ConnID()]; ok {
		r.attachLocked(c)
		joined := r.joinedPayloadLocked(p, "spectator")
		r.mu.Unlock()
		r.unicast(c, wire.EvJoined, joined)
		return
	}

	p := newPlayer(c.ConnID(), profile.Identity, profile, now)
	p.Ammo = kozMaxAmmo
	// Joiners during a running match or its results spectate until the
	// next lobby phase.
	role := "spectator"
	if len(r.players) < kozMaxActive && r.phase != PhaseActive && r.phase != PhaseResults {
		role = "player"
		r.seatPlayerLocked(p, now)
		r.players[c.ConnID()] = p
	} else {
		p.Spectator = true
		r.spectators[c.ConnID()] = p
	}
	r.joinOrder = append(r.joinOrder, c.ConnID())
	r.attachLocked(c)

	joined := r.joinedPayloadLocked(p, role)
	r.broadcastLocked(wire.EvPlayerJoined, map[string]any{
		"connId": string(p.ConnID),
		"name":   p.DisplayName,
		"hero":   p.Hero,
		"role":   role,
	}, c.ConnID())
	r.systemChatLocked(p.DisplayName+" joined", c.ConnID(), now)
	r.mu.Unlock()

	r.unicast(c, wire.EvJoined, joined)
}

func (r *kozRoom) HandleLeave(ctx context.Context, connID ConnID, reason string) bool {
	r.mu.Lock()
	p, active := r.players[connID]
	if !active {
		var spec bool
		p, spec = r.spectators[connID]
		if !spec {
			r.mu.Unlock()
			return false
		}
		delete(r.spectators, connID)
	} else {
		delete(r.players, connID)
		r.dropCoreIfHeldLocked(connID, time.Now())
		for id, j := range r.projectiles {
			if j.OwnerConn == connID {
				delete(r.projectiles, id)
			}
		}
	}
	r.detachLocked(connID)
	r.removeJoinOrderLocked(connID)

	now := time.Now()
	r.broadcastLocked(wire.EvPlayerLeft, wire.PlayerLeft{
		ConnID: string(connID),
		Name:   p.DisplayName,
		Reason: reason,
	}, "")
	r.systemChatLocked(p.DisplayName+" left", "", now)

	// Promote the longest-waiting spectator into the freed seat while the
	// room is between matches; the results-to-lobby transition handles
	// everyone else.
	if active && r.phase != PhaseActive && r.phase != PhaseResults {
		r.promoteSpectatorLocked(now)
	}
	r.mu.Unlock()
	return true
}

func (r *kozRoom) HandleEvent(ctx context.Context, c Client, event string, payload json.RawMessage) {
	switch event {
	case wire.EvInput:
		var in wire.InputPayload
		if json.Unmarshal(payload, &in) != nil {
			return
		}
		r.handleInput(c, in)

	case wire.EvPlayerShoot:
		var shot wire.ShootPayload
		if json.Unmarshal(payload, &shot) != nil {
			r.unicast(c, wire.EvShotRejected, wire.Rejection{Reason: wire.ReasonAim})
			return
		}
		r.handleShoot(c, shot, time.Now())

	case wire.EvChatSend:
		var p wire.ChatPayload
		if json.Unmarshal(payload, &p) != nil {
			return
		}
		r.mu.Lock()
		r.handleChatLocked(ctx, c, p, time.Now())
		r.mu.Unlock()

	case wire.EvRequestState:
		r.mu.RLock()
		snap := r.snapshotLocked(time.Now())
		r.mu.RUnlock()
		r.unicast(c, wire.EvState, snap)

	case wire.EvPlayAgain:
		// A spectator opting back into a seat. Only outside a running
		// match and only while seats are free.
		r.mu.Lock()
		p, waiting := r.spectators[c.ConnID()]
		if waiting && (r.phase == PhaseLobby || r.phase == PhaseCountdown) && len(r.players) < kozMaxActive {
			delete(r.spectators, c.ConnID())
			r.seatPlayerLocked(p, time.Now())
			r.players[c.ConnID()] = p
			r.broadcastLocked(wire.EvLobbyUpdate, map[string]any{
				"promoted": string(c.ConnID()),
				"name":     p.DisplayName,
			}, "")
		}
		r.mu.Unlock()

	case wire.EvPlayerAway, wire.EvPlayerReturned:
		r.mu.Lock()
		if p, ok := r.players[c.ConnID()]; ok {
			p.Away = event == wire.EvPlayerAway
		}
		r.mu.Unlock()
	}
}

func (r *kozRoom) Close(reason string) {
	r.mu.Lock()
	for connID := range r.players {
		delete(r.players, connID)
		r.deps.onLeft(connID)
	}
	for connID := range r.spectators {
		delete(r.spectators, connID)
		r.deps.onLeft(connID)
	}
	r.joinOrder = nil
	r.closeLocked(reason)
	r.mu.Unlock()
}

// --- input and shooting ---

func (r *kozRoom) handleInput(c Client, in wire.InputPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[c.ConnID()]
	if !ok {
		return
	}
	if in.Seq != 0 && in.Seq <= p.InputSeq {
		return // stale or replayed input
	}
	p.InputSeq = in.Seq
	p.InputUp, p.InputDown = in.Up, in.Down
	p.InputLeft, p.InputRight = in.Left, in.Right
}

func (r *kozRoom) handleShoot(c Client, shot wire.ShootPayload, now time.Time) {
	reject := func(reason string) {
		r.unicast(c, wire.EvShotRejected, wire.Rejection{Reason: reason})
	}

	r.mu.Lock()
	if r.phase != PhaseActive {
		r.mu.Unlock()
		reject(wire.ReasonInactive)
		return
	}
	p, ok := r.players[c.ConnID()]
	if !ok {
		if _, spec := r.spectators[c.ConnID()]; spec {
			r.mu.Unlock()
			reject(wire.ReasonSpectator)
			return
		}
		r.mu.Unlock()
		reject(wire.ReasonUnknown)
		return
	}
	if !p.Alive {
		r.mu.Unlock()
		reject(wire.ReasonDead)
		return
	}

	w := WeaponFor(p.Hero, p.Weapon)
	cooldown := time.Duration(w.Cooldown * p.CooldownMult(now) * float64(time.Second))
	if now.Sub(p.LastShotAt) < cooldown {
		r.mu.Unlock()
		reject(wire.ReasonCooldown)
		return
	}
	if p.Ammo <= 0 {
		r.mu.Unlock()
		reject(wire.ReasonAmmo)
		return
	}
	if len(r.projectiles) >= kozProjectileCap {
		r.mu.Unlock()
		reject(wire.ReasonBusy)
		return
	}
	if shot.AimX == nil || shot.AimY == nil {
		r.mu.Unlock()
		reject(wire.ReasonAim)
		return
	}
	dirX, dirY, mag := geom.Normalize(*shot.AimX-p.X, *shot.AimY-p.Y)
	if mag <= 0.001 {
		r.mu.Unlock()
		reject(wire.ReasonAim)
		return
	}

	p.LastShotAt = now
	p.Ammo--
	p.BulletsFired++
	p.Facing = math.Atan2(dirY, dirX)

	var spread []float64
	if now.Before(p.OverclockUntil) {
		spread = kozOverclockSpread
	}
	shots := spawnProjectiles(p, w, dirX, dirY, p.DamageMult(now), spread)
	for _, j := range shots {
		r.projectiles[j.ID] = j
	}
	r.broadcastLocked(wire.EvProjectileSpawned, map[string]any{
		"owner":       string(p.ConnID),
		"projectiles": shots,
	}, "")
	r.mu.Unlock()
}

// --- seating ---

func (r *kozRoom) seatPlayerLocked(p *Player, now time.Time) {
	p.Spectator = false
	p.Alive = true
	p.HP = p.MaxHP
	idx := (len(r.players) + int(now.Unix())) % len(kozSpawns)
	seat := kozSpawns[idx]
	area := spawnArea{
		Left:   playerRadiusKOZ,
		Right:  kozMapWidth - playerRadiusKOZ,
		Top:    playerRadiusKOZ,
		Bottom: kozMapHeight - playerRadiusKOZ,
		Radius: playerRadiusKOZ,
	}
	taken := func(x, y float64) bool {
		for _, rect := range kozObstacles {
			if ok, _, _ := geom.CircleRectOverlap(x, y, playerRadiusKOZ, rect); ok {
				return true
			}
		}
		for _, other := range r.players {
			if geom.Dist(x, y, other.X, other.Y) < 2*playerRadiusKOZ+6 {
				return true
			}
		}
		return false
	}
	if taken(seat.X, seat.Y) {
		p.X, p.Y = findOpenSpawn(area, taken, seat.X, seat.Y)
	} else {
		p.X, p.Y = seat.X, seat.Y
	}
}

func (r *kozRoom) promoteSpectatorLocked(now time.Time) {
	for _, connID := range r.joinOrder {
		p, ok := r.spectators[connID]
		if !ok {
			continue
		}
		delete(r.spectators, connID)
		r.seatPlayerLocked(p, now)
		r.players[connID] = p
		r.broadcastLocked(wire.EvLobbyUpdate, map[string]any{
			"promoted": string(connID),
			"name":     p.DisplayName,
		}, "")
		return
	}
}

func (r *kozRoom) removeJoinOrderLocked(connID ConnID) {
	for i, id := range r.joinOrder {
		if id == connID {
			r.joinOrder = append(r.joinOrder[:i], r.joinOrder[i+1:]...)
			return
		}
	}
}

// --- serialization ---

func (r *kozRoom) joinedPayloadLocked(p *Player, role string) map[string]any {
	return map[string]any{
		"connId":        string(p.ConnID),
		"role":          role,
		"room":          string(r.id),
		"map":           map[string]any{"width": kozMapWidth, "height": kozMapHeight, "obstacles": kozObstacles},
		"tickRate":      r.cfg.TickHz,
		"snapshotRate":  r.cfg.SnapshotHz,
		"minPlayers":    kozMinPlayers,
		"activePlayers": len(r.players),
		"lobby":         r.lobbyRosterLocked(),
	}
}

func (r *kozRoom) lobbyRosterLocked() []map[string]any {
	roster := make([]map[string]any, 0, len(r.players)+len(r.spectators))
	for _, connID := range r.joinOrder {
		if p, ok := r.players[connID]; ok {
			roster = append(roster, map[string]any{
				"connId": string(connID), "name": p.DisplayName, "hero": p.Hero, "role": "player",
			})
		} else if p, ok := r.spectators[connID]; ok {
			roster = append(roster, map[string]any{
				"connId": string(connID), "name": p.DisplayName, "hero": p.Hero, "role": "spectator",
			})
		}
	}
	return roster
}

func (r *kozRoom) publicPlayerLocked(p *Player, now time.Time) map[string]any {
	return map[string]any{
		"connId":    string(p.ConnID),
		"name":      p.DisplayName,
		"hero":      p.Hero,
		"weapon":    p.Weapon,
		"x":         p.X,
		"y":         p.Y,
		"facing":    p.Facing,
		"hp":        p.HP,
		"maxHp":     p.MaxHP,
		"shield":    p.Shield,
		"ammo":      p.Ammo,
		"alive":     p.Alive,
		"score":     p.Score,
		"kills":     p.Kills,
		"deaths":    p.Deaths,
		"overclock": now.Before(p.OverclockUntil),
	}
}

func (r *kozRoom) snapshotLocked(now time.Time) map[string]any {
	players := make([]map[string]any, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, r.publicPlayerLocked(p, now))
	}
	projectiles := make([]*Projectile, 0, len(r.projectiles))
	for _, j := range r.projectiles {
		projectiles = append(projectiles, j)
	}
	powerups := make([]*Powerup, 0, len(r.powerups))
	for _, pu := range r.powerups {
		powerups = append(powerups, pu)
	}

	snap := map[string]any{
		"phase":       string(r.phase),
		"players":     players,
		"projectiles": projectiles,
		"powerups":    powerups,
		"zone": map[string]any{
			"x":            r.zone.X,
			"y":            r.zone.Y,
			"radius":       r.zone.Radius,
			"targetRadius": r.zone.TargetRadius,
		},
		"core": map[string]any{
			"x":      r.core.X,
			"y":      r.core.Y,
			"holder": string(r.core.Holder),
		},
		"killfeed": r.killfeed.tail(kozKillfeedTail),
	}
	if r.phase == PhaseActive {
		snap["timeLeft"] = math.Max(0, r.matchEndsAt.Sub(now).Seconds())
	}
	return snap
}

// projectilePositionsLocked is the compact between-snapshot form: just
// enough for clients to interpolate shots.
func (r *kozRoom) projectilePositionsLocked() []map[string]any {
	out := make([]map[string]any, 0, len(r.projectiles))
	for _, j := range r.projectiles {
		out = append(out, map[string]any{"id": j.ID, "x": j.X, "y": j.Y})
	}
	return out
}

func (r *kozRoom) scoreboardLocked() []map[string]any {
	ordered := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		ordered = append(ordered, p)
	}
	// Sort by score, then kills, then fewest deaths.
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && kozRanksAbove(ordered[j], ordered[j-1]); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	board := make([]map[string]any, 0, len(ordered))
	for _, p := range ordered {
		board = append(board, map[string]any{
			"connId": string(p.ConnID),
			"name":   p.DisplayName,
			"score":  p.Score,
			"kills":  p.Kills,
			"deaths": p.Deaths,
		})
	}
	return board
}

func kozRanksAbove(a, b *Player) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Kills != b.Kills {
		return a.Kills > b.Kills
	}
	return a.Deaths < b.Deaths
}

func (r *kozRoom) matchSummaryLocked(now time.Time, winner ConnID, outcome string) stats.MatchSummary {
	players := make([]stats.PlayerSummary, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, stats.PlayerSummary{
			ConnID:            string(p.ConnID),
			UserID:            p.UserID,
			DisplayName:       p.DisplayName,
			Hero:              p.Hero,
			Weapon:            p.Weapon,
			Score:             p.Score,
			Kills:             p.Kills,
			Deaths:            p.Deaths,
			DamageDealt:       p.DamageDealt,
			BulletsFired:      p.BulletsFired,
			BulletsHit:        p.BulletsHit,
			PowerupsCollected: p.PowerupsCollected,
		})
	}
	return stats.MatchSummary{
		RoomID:    string(r.id),
		Mode:      string(ModeKOZ),
		StartedAt: r.startedAt,
		EndedAt:   now,
		Outcome:   outcome,
		WinnerID:  string(winner),
		Players:   players,
	}
}
