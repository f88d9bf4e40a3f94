package game

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/heroarena/game-server/internal/v1/geom"
	"github.com/heroarena/game-server/internal/v1/metrics"
	"github.com/heroarena/game-server/internal/v1/wire"
)

// Slither: an endless drop-in arena of snakes with guns. There is no
// match lifecycle; players respawn on death and keep their score until
// they disconnect.
const (
	slitherMaxPlayers = 32

	slitherMapWidth  = 4400.0
	slitherMapHeight = 2800.0

	slitherStartLength = 14
	slitherMinLength   = 10
	slitherMaxLength   = 40
	slitherSegmentGap  = 10.0

	slitherSpeed      = 225.0
	slitherBoostMult  = 1.5
	slitherHeadRadius = 11.0
	slitherStartHP    = 3

	slitherBulletSpeed    = 640.0
	slitherBulletRadius   = 4.0
	slitherBulletLife     = 1.35
	slitherBulletCooldown = 220 * time.Millisecond
	slitherBulletCap      = 240

	slitherSpawnProtect = 600 * time.Millisecond
	slitherSpawnMargin  = 120.0
	slitherSpawnClear   = 140.0
	slitherSpawnTries   = 90

	slitherLeaderboardTop    = 5
	slitherLeaderboardPeriod = 450 * time.Millisecond
)

var slitherColors = []string{
	"#ff5d5d", "#ffae42", "#ffe44d", "#7dff6b", "#49e9c0",
	"#52c7ff", "#6a8bff", "#b06aff", "#ff6ad5", "#e0e0e0",
}

// snake is one player's worm plus its weapon timers.
type snake struct {
	player    *Player
	dirX      float64
	dirY      float64
	boost     bool
	length    int
	segments  []geom.Vec // most recent first; segments[0] trails the head
	travelled float64    // distance since the last segment drop
	color     string
	hp        int
	protected time.Time
}

// slitherBullet is a plain dot; no pierce, bounce, or splash.
type slitherBullet struct {
	ID    string  `json:"id"`
	Owner ConnID  `json:"owner"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	VX    float64 `json:"vx"`
	VY    float64 `json:"vy"`
	Life  float64 `json:"-"`
}

type slitherRoom struct {
	baseRoom

	snakes  map[ConnID]*snake
	bullets map[string]*slitherBullet

	nextSnapshotAt    time.Time
	nextLeaderboardAt time.Time
	nextScoreAt       time.Time
}

func newSlitherRoom(id RoomID, deps roomDeps, now time.Time) *slitherRoom {
	return &slitherRoom{
		baseRoom:    newBaseRoom(id, ModeSlither, deps, now),
		snakes:      make(map[ConnID]*snake),
		bullets:     make(map[string]*slitherBullet),
		nextScoreAt: now.Add(time.Second),
	}
}

func (r *slitherRoom) CanJoin() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.closed && len(r.snakes) < slitherMaxPlayers
}

func (r *slitherRoom) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snakes)
}

func (r *slitherRoom) Empty() bool { return r.PlayerCount() == 0 }

func (r *slitherRoom) HandleJoin(ctx context.Context, c Client, profile JoinProfile) {
	now := time.Now()

	r.mu.Lock()
	if s, ok := r.snakes[c.ConnID()]; ok {
		r.attachLocked(c)
		state := r.joinStateLocked(s)
		r.mu.Unlock()
		r.unicast(c, wire.EvJoined, state)
		return
	}
	if len(r.snakes) >= slitherMaxPlayers {
		r.mu.Unlock()
		r.unicast(c, wire.EvRoomFull, map[string]string{"roomId": string(r.id)})
		r.deps.onLeft(c.ConnID())
		return
	}

	p := newPlayer(c.ConnID(), profile.Identity, profile, now)
	s := &snake{
		player: p,
		dirX:   1,
		length: slitherStartLength,
		color:  slitherColors[len(r.snakes)%len(slitherColors)],
		hp:     slitherStartHP,
	}
	r.placeSnakeLocked(s, now)
	r.snakes[c.ConnID()] = s
	r.attachLocked(c)

	state := r.joinStateLocked(s)
	r.broadcastLocked(wire.EvPlayerJoined, map[string]any{
		"connId": string(c.ConnID()),
		"name":   p.DisplayName,
		"color":  s.color,
	}, c.ConnID())
	r.mu.Unlock()

	r.unicast(c, wire.EvJoined, state)
}

func (r *slitherRoom) HandleLeave(ctx context.Context, connID ConnID, reason string) bool {
	r.mu.Lock()
	s, ok := r.snakes[connID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.snakes, connID)
	for id, b := range r.bullets {
		if b.Owner == connID {
			delete(r.bullets, id)
		}
	}
	r.detachLocked(connID)
	r.broadcastLocked(wire.EvPlayerLeft, wire.PlayerLeft{
		ConnID: string(connID),
		Name:   s.player.DisplayName,
		Reason: reason,
	}, "")
	r.mu.Unlock()
	return true
}

func (r *slitherRoom) HandleEvent(ctx context.Context, c Client, event string, payload json.RawMessage) {
	switch event {
	case wire.EvInput:
		var in wire.InputPayload
		if json.Unmarshal(payload, &in) != nil {
			return
		}
		r.handleInput(c, in, time.Now())

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
		state := r.snapshotLocked(c.ConnID())
		r.mu.RUnlock()
		r.unicast(c, wire.EvState, state)

	case wire.EvPlayAgain:
		// Voluntary respawn; score survives, position does not.
		r.mu.Lock()
		if s, ok := r.snakes[c.ConnID()]; ok {
			s.hp = slitherStartHP
			r.placeSnakeLocked(s, time.Now())
		}
		r.mu.Unlock()
	}
}

func (r *slitherRoom) Close(reason string) {
	r.mu.Lock()
	for connID := range r.snakes {
		delete(r.snakes, connID)
		r.deps.onLeft(connID)
	}
	r.closeLocked(reason)
	r.mu.Unlock()
}

// --- input ---

func (r *slitherRoom) handleInput(c Client, in wire.InputPayload, now time.Time) {
	r.mu.Lock()
	s, ok := r.snakes[c.ConnID()]
	if !ok {
		r.mu.Unlock()
		return
	}

	if in.Direction != nil {
		dx, dy, mag := geom.Normalize(in.Direction.X, in.Direction.Y)
		if mag > 0.001 {
			s.dirX, s.dirY = dx, dy
		}
	}
	s.boost = in.Boost

	switch {
	case !in.Shoot && !in.Fire:
	case len(r.bullets) >= slitherBulletCap:
		r.unicast(c, wire.EvShotRejected, wire.Rejection{Reason: wire.ReasonBusy})
	case r.canFireLocked(s, now):
		s.player.LastShotAt = now
		s.player.BulletsFired++
		fired := &slitherBullet{
			ID:    uuid.NewString()[:8],
			Owner: c.ConnID(),
			X:     s.player.X + s.dirX*(slitherHeadRadius+slitherBulletRadius+2),
			Y:     s.player.Y + s.dirY*(slitherHeadRadius+slitherBulletRadius+2),
			VX:    s.dirX * slitherBulletSpeed,
			VY:    s.dirY * slitherBulletSpeed,
			Life:  slitherBulletLife,
		}
		r.bullets[fired.ID] = fired
		// Spawn frames go out immediately; positions ride the snapshot.
		r.broadcastLocked(wire.EvProjectileSpawned, fired, "")
	}
	r.mu.Unlock()
}

func (r *slitherRoom) canFireLocked(s *snake, now time.Time) bool {
	return now.Sub(s.player.LastShotAt) >= slitherBulletCooldown
}

// --- simulation ---

func (r *slitherRoom) Tick(now time.Time, dt float64) {
	r.mu.Lock()

	for _, s := range r.snakes {
		r.stepSnakeLocked(s, dt)
	}
	r.stepBulletsLocked(now, dt)
	r.stepSurvivalLocked(now)

	if now.After(r.nextLeaderboardAt) {
		r.nextLeaderboardAt = now.Add(slitherLeaderboardPeriod)
		r.broadcastLocked(wire.EvLeaderboard, r.leaderboardLocked(), "")
	}
	if now.After(r.nextSnapshotAt) {
		r.nextSnapshotAt = now.Add(time.Second / 15)
		// State is serialized per connection so each client learns its
		// own id without a second channel.
		for connID, c := range r.clients {
			c.SendEvent(r.event(wire.EvState), r.snapshotLocked(connID))
		}
	}
	metrics.ActiveProjectiles.WithLabelValues(string(ModeSlither)).Set(float64(len(r.bullets)))
	r.mu.Unlock()
}

func (r *slitherRoom) stepSnakeLocked(s *snake, dt float64) {
	speed := slitherSpeed
	if s.boost {
		speed *= slitherBoostMult
	}
	p := s.player

	prevX, prevY := p.X, p.Y
	p.X = geom.Clamp(p.X+s.dirX*speed*dt, slitherHeadRadius, slitherMapWidth-slitherHeadRadius)
	p.Y = geom.Clamp(p.Y+s.dirY*speed*dt, slitherHeadRadius, slitherMapHeight-slitherHeadRadius)

	// Drop a trail segment every segment gap of travel.
	s.travelled += geom.Dist(prevX, prevY, p.X, p.Y)
	for s.travelled >= slitherSegmentGap {
		s.travelled -= slitherSegmentGap
		s.segments = append([]geom.Vec{{X: prevX, Y: prevY}}, s.segments...)
	}
	if len(s.segments) > s.length {
		s.segments = s.segments[:s.length]
	}
}

// stepSurvivalLocked pays every snake one point per whole second it
// stays in the arena, catching up if ticks fell behind.
func (r *slitherRoom) stepSurvivalLocked(now time.Time) {
	for !now.Before(r.nextScoreAt) {
		r.nextScoreAt = r.nextScoreAt.Add(time.Second)
		for _, s := range r.snakes {
			s.player.Score++
		}
	}
}

func (r *slitherRoom) stepBulletsLocked(now time.Time, dt float64) {
	for id, b := range r.bullets {
		b.Life -= dt
		b.X += b.VX * dt
		b.Y += b.VY * dt
		if b.Life <= 0 ||
			b.X < 0 || b.X > slitherMapWidth ||
			b.Y < 0 || b.Y > slitherMapHeight {
			delete(r.bullets, id)
			continue
		}

		for connID, s := range r.snakes {
			if connID == b.Owner || now.Before(s.protected) {
				continue
			}
			if geom.Dist(b.X, b.Y, s.player.X, s.player.Y) > slitherHeadRadius+slitherBulletRadius {
				continue
			}
			delete(r.bullets, id)
			s.hp--
			if owner, ok := r.snakes[b.Owner]; ok {
				owner.player.BulletsHit++
			}
			if s.hp <= 0 {
				r.killSnakeLocked(s, b.Owner, now)
			}
			break
		}
	}
}

func (r *slitherRoom) killSnakeLocked(s *snake, killer ConnID, now time.Time) {
	victim := s.player
	victim.Deaths++
	if victim.Score > 0 {
		victim.Score--
	}
	s.length -= 2
	if s.length < slitherMinLength {
		s.length = slitherMinLength
	}

	if k, ok := r.snakes[killer]; ok && killer != victim.ConnID {
		k.player.Kills++
		k.player.Score++
		k.length += 2
		if k.length > slitherMaxLength {
			k.length = slitherMaxLength
		}
	}

	r.broadcastLocked(wire.EvDeath, map[string]any{
		"playerId": string(victim.ConnID),
		"killerId": string(killer),
		"reason":   "shot",
	}, "")

	// Respawn in place of a lobby: score survives, position does not.
	s.hp = slitherStartHP
	r.placeSnakeLocked(s, now)
}

// placeSnakeLocked seats a snake away from every other head, with a
// brief damage shield.
func (r *slitherRoom) placeSnakeLocked(s *snake, now time.Time) {
	x := slitherMapWidth / 2
	y := slitherMapHeight / 2
	for i := 0; i < slitherSpawnTries; i++ {
		cx := slitherSpawnMargin + rand.Float64()*(slitherMapWidth-2*slitherSpawnMargin)
		cy := slitherSpawnMargin + rand.Float64()*(slitherMapHeight-2*slitherSpawnMargin)
		clear := true
		for _, other := range r.snakes {
			if other == s {
				continue
			}
			if geom.Dist(cx, cy, other.player.X, other.player.Y) < slitherSpawnClear {
				clear = false
				break
			}
		}
		if clear {
			x, y = cx, cy
			break
		}
	}

	s.player.X, s.player.Y = x, y
	s.dirX, s.dirY = 1, 0
	s.travelled = 0
	s.protected = now.Add(slitherSpawnProtect)
	s.segments = make([]geom.Vec, 0, s.length)
	for i := 1; i <= s.length; i++ {
		s.segments = append(s.segments, geom.Vec{X: x - float64(i)*slitherSegmentGap, Y: y})
	}
}

// --- serialization ---

func (r *slitherRoom) snakePayloadLocked(s *snake) map[string]any {
	return map[string]any{
		"connId":   string(s.player.ConnID),
		"name":     s.player.DisplayName,
		"color":    s.color,
		"x":        s.player.X,
		"y":        s.player.Y,
		"dirX":     s.dirX,
		"dirY":     s.dirY,
		"segments": s.segments,
		"length":   s.length,
		"hp":       s.hp,
		"score":    s.player.Score,
		"kills":    s.player.Kills,
		"deaths":   s.player.Deaths,
		"boost":    s.boost,
	}
}

func (r *slitherRoom) snapshotLocked(self ConnID) map[string]any {
	snakes := make([]map[string]any, 0, len(r.snakes))
	for _, s := range r.snakes {
		snakes = append(snakes, r.snakePayloadLocked(s))
	}
	bullets := make([]*slitherBullet, 0, len(r.bullets))
	for _, b := range r.bullets {
		bullets = append(bullets, b)
	}
	return map[string]any{
		"selfId":  string(self),
		"snakes":  snakes,
		"bullets": bullets,
	}
}

func (r *slitherRoom) joinStateLocked(s *snake) map[string]any {
	return map[string]any{
		"selfId": string(s.player.ConnID),
		"room":   string(r.id),
		"color":  s.color,
		"map":    map[string]float64{"width": slitherMapWidth, "height": slitherMapHeight},
		"snakes": len(r.snakes),
	}
}

func (r *slitherRoom) leaderboardLocked() []map[string]any {
	ordered := make([]*snake, 0, len(r.snakes))
	for _, s := range r.snakes {
		ordered = append(ordered, s)
	}
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && slitherRanksAbove(ordered[j], ordered[j-1]); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	if len(ordered) > slitherLeaderboardTop {
		ordered = ordered[:slitherLeaderboardTop]
	}
	board := make([]map[string]any, 0, len(ordered))
	for _, s := range ordered {
		board = append(board, map[string]any{
			"connId": string(s.player.ConnID),
			"name":   s.player.DisplayName,
			"score":  s.player.Score,
			"kills":  s.player.Kills,
			"length": s.length,
		})
	}
	return board
}

func slitherRanksAbove(a, b *snake) bool {
	if a.player.Score != b.player.Score {
		return a.player.Score > b.player.Score
	}
	if a.player.Kills != b.player.Kills {
		return a.player.Kills > b.player.Kills
	}
	return a.length > b.length
}
