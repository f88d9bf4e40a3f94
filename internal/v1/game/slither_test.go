package game

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/heroarena/game-server/internal/v1/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSlitherRoom(t *testing.T) *slitherRoom {
	t.Helper()
	deps, _ := testRoomDeps()
	return newSlitherRoom("slither-1", deps, time.Now())
}

func joinSlither(r *slitherRoom, c *fakeClient) {
	r.HandleJoin(context.Background(), c, JoinProfile{Identity: c.Identity()})
}

func slitherInput(r *slitherRoom, c *fakeClient, in wire.InputPayload, now time.Time) {
	r.handleInput(c, in, now)
}

func dirInput(x, y float64) wire.InputPayload {
	return wire.InputPayload{Direction: &struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}{X: x, Y: y}}
}

func TestSlitherRoom_JoinState(t *testing.T) {
	r := newTestSlitherRoom(t)
	a := newFakeClient("a", "Alice")
	joinSlither(r, a)

	state := a.lastOfType(t, "slither_joined")
	assert.Equal(t, "a", state["selfId"])
	assert.Equal(t, "slither-1", state["room"])
	assert.Equal(t, slitherColors[0], state["color"])
	m := state["map"].(map[string]any)
	assert.Equal(t, slitherMapWidth, m["width"])

	b := newFakeClient("b", "Bob")
	joinSlither(r, b)
	joined := a.lastOfType(t, "slither_player_joined")
	assert.Equal(t, "b", joined["connId"])
	assert.Equal(t, slitherColors[1], joined["color"])

	r.mu.RLock()
	s := r.snakes["a"]
	assert.Equal(t, slitherStartLength, s.length)
	assert.Len(t, s.segments, slitherStartLength)
	assert.Equal(t, slitherStartHP, s.hp)
	r.mu.RUnlock()
}

func TestSlitherRoom_DirectionNormalized(t *testing.T) {
	r := newTestSlitherRoom(t)
	a := newFakeClient("a", "Alice")
	joinSlither(r, a)

	slitherInput(r, a, dirInput(0, -10), time.Now())

	r.mu.RLock()
	s := r.snakes["a"]
	assert.Equal(t, 0.0, s.dirX)
	assert.Equal(t, -1.0, s.dirY)
	r.mu.RUnlock()

	// A zero vector keeps the previous heading.
	slitherInput(r, a, dirInput(0, 0), time.Now())
	r.mu.RLock()
	assert.Equal(t, -1.0, s.dirY)
	r.mu.RUnlock()
}

func TestSlitherRoom_FireCooldown(t *testing.T) {
	r := newTestSlitherRoom(t)
	a := newFakeClient("a", "Alice")
	joinSlither(r, a)

	now := time.Now()
	slitherInput(r, a, wire.InputPayload{Fire: true}, now)
	assert.Equal(t, 1, a.countOf("slither_projectile_spawned"))

	// Inside the cooldown window nothing fires.
	slitherInput(r, a, wire.InputPayload{Fire: true}, now.Add(100*time.Millisecond))
	assert.Equal(t, 1, a.countOf("slither_projectile_spawned"))

	slitherInput(r, a, wire.InputPayload{Shoot: true}, now.Add(slitherBulletCooldown))
	assert.Equal(t, 2, a.countOf("slither_projectile_spawned"))

	r.mu.RLock()
	assert.Len(t, r.bullets, 2)
	assert.Equal(t, 2, r.snakes["a"].player.BulletsFired)
	r.mu.RUnlock()
}

func TestSlitherRoom_BulletCap(t *testing.T) {
	r := newTestSlitherRoom(t)
	a := newFakeClient("a", "Alice")
	joinSlither(r, a)

	r.mu.Lock()
	for i := 0; i < slitherBulletCap; i++ {
		id := string(rune('A'+i%26)) + string(rune('0'+i/26))
		r.bullets[id] = &slitherBullet{ID: id, Owner: "x", Life: 10}
	}
	r.mu.Unlock()

	slitherInput(r, a, wire.InputPayload{Fire: true}, time.Now())
	assert.Zero(t, a.countOf("slither_projectile_spawned"))
	assert.Equal(t, "busy", a.lastOfType(t, "slither_shot_rejected")["reason"])
}

func TestSlitherRoom_MovementAndTrail(t *testing.T) {
	r := newTestSlitherRoom(t)
	a := newFakeClient("a", "Alice")
	joinSlither(r, a)

	r.mu.Lock()
	s := r.snakes["a"]
	s.player.X, s.player.Y = 1000, 1000
	s.dirX, s.dirY = 1, 0
	r.mu.Unlock()

	r.Tick(time.Now(), 0.1)

	r.mu.RLock()
	assert.InDelta(t, 1000+slitherSpeed*0.1, s.player.X, 1e-9)
	assert.Equal(t, 1000.0, s.player.Y)
	// 22.5 units of travel drops two segments at a 10-unit gap.
	assert.Equal(t, 1000.0, s.segments[0].X, "newest segment trails from the previous head")
	assert.LessOrEqual(t, len(s.segments), s.length)
	r.mu.RUnlock()
}

func TestSlitherRoom_BoostSpeed(t *testing.T) {
	r := newTestSlitherRoom(t)
	a := newFakeClient("a", "Alice")
	joinSlither(r, a)

	r.mu.Lock()
	s := r.snakes["a"]
	s.player.X, s.player.Y = 1000, 1000
	s.dirX, s.dirY = 1, 0
	s.boost = true
	r.mu.Unlock()

	r.Tick(time.Now(), 0.1)
	r.mu.RLock()
	assert.InDelta(t, 1000+slitherSpeed*slitherBoostMult*0.1, s.player.X, 1e-9)
	r.mu.RUnlock()
}

func TestSlitherRoom_SurvivalScoreTick(t *testing.T) {
	r := newTestSlitherRoom(t)
	a := newFakeClient("a", "Alice")
	joinSlither(r, a)

	r.mu.Lock()
	r.snakes["a"].dirX, r.snakes["a"].dirY = 0, 0
	base := r.nextScoreAt.Add(-time.Second)
	r.mu.Unlock()

	// Just shy of the first whole second nothing pays out.
	r.Tick(base.Add(900*time.Millisecond), 0.016)
	r.mu.RLock()
	assert.Zero(t, r.snakes["a"].player.Score)
	r.mu.RUnlock()

	// A late tick pays out every whole second it covered.
	r.Tick(base.Add(3100*time.Millisecond), 0.016)
	r.mu.RLock()
	assert.Equal(t, 3, r.snakes["a"].player.Score)
	r.mu.RUnlock()
}

func TestSlitherRoom_BulletHitAndKill(t *testing.T) {
	r := newTestSlitherRoom(t)
	a := newFakeClient("a", "Alice")
	b := newFakeClient("b", "Bob")
	joinSlither(r, a)
	joinSlither(r, b)

	now := time.Now()
	r.mu.Lock()
	killer := r.snakes["a"]
	victim := r.snakes["b"]
	killer.player.X, killer.player.Y = 500, 500
	victim.player.X, victim.player.Y = 600, 500
	victim.hp = 1
	victim.protected = time.Time{}
	victim.player.Score = 3
	victim.length = slitherMinLength + 1
	victim.dirX, victim.dirY = 0, 0 // hold still for the shot
	killer.dirX, killer.dirY = 0, 0
	r.bullets["b1"] = &slitherBullet{ID: "b1", Owner: "a", X: 595, Y: 500, VX: 10, Life: 1}
	r.mu.Unlock()

	r.Tick(now, 0.016)

	death := a.lastOfType(t, "slither_death")
	assert.Equal(t, "b", death["playerId"])
	assert.Equal(t, "a", death["killerId"])
	assert.Equal(t, "shot", death["reason"])

	r.mu.RLock()
	assert.Equal(t, 1, killer.player.Kills)
	assert.Equal(t, 1, killer.player.Score)
	assert.Equal(t, slitherStartLength+2, killer.length)
	assert.Equal(t, 1, killer.player.BulletsHit)

	assert.Equal(t, 1, victim.player.Deaths)
	assert.Equal(t, 2, victim.player.Score, "score decrements but survives the respawn")
	assert.Equal(t, slitherMinLength, victim.length, "length never drops below the floor")
	assert.Equal(t, slitherStartHP, victim.hp, "hp refills on respawn")
	assert.True(t, now.Before(victim.protected), "fresh spawn protection")
	assert.Empty(t, r.bullets, "the bullet is consumed")
	r.mu.RUnlock()
}

func TestSlitherRoom_SpawnProtectionBlocksHits(t *testing.T) {
	r := newTestSlitherRoom(t)
	a := newFakeClient("a", "Alice")
	b := newFakeClient("b", "Bob")
	joinSlither(r, a)
	joinSlither(r, b)

	now := time.Now()
	r.mu.Lock()
	victim := r.snakes["b"]
	victim.player.X, victim.player.Y = 600, 500
	victim.protected = now.Add(time.Minute)
	victim.dirX, victim.dirY = 0, 0
	r.snakes["a"].dirX, r.snakes["a"].dirY = 0, 0
	r.snakes["a"].player.X, r.snakes["a"].player.Y = 2000, 2000
	r.bullets["b1"] = &slitherBullet{ID: "b1", Owner: "a", X: 598, Y: 500, VX: 10, Life: 1}
	r.mu.Unlock()

	r.Tick(now, 0.016)

	r.mu.RLock()
	assert.Equal(t, slitherStartHP, victim.hp)
	assert.Len(t, r.bullets, 1, "bullets pass through protected snakes")
	r.mu.RUnlock()
}

func TestSlitherRoom_BulletExpiry(t *testing.T) {
	r := newTestSlitherRoom(t)
	a := newFakeClient("a", "Alice")
	joinSlither(r, a)

	r.mu.Lock()
	r.bullets["b1"] = &slitherBullet{ID: "b1", Owner: "a", X: 100, Y: 100, Life: 0.01}
	r.bullets["b2"] = &slitherBullet{ID: "b2", Owner: "a", X: 2, Y: 100, VX: -640, Life: 1}
	r.mu.Unlock()

	r.Tick(time.Now(), 0.05)

	r.mu.RLock()
	assert.Empty(t, r.bullets, "expired and out-of-bounds bullets are culled")
	r.mu.RUnlock()
}

func TestSlitherRoom_Leaderboard(t *testing.T) {
	r := newTestSlitherRoom(t)

	clients := make([]*fakeClient, 0, 7)
	names := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, n := range names {
		c := newFakeClient(n, n)
		joinSlither(r, c)
		clients = append(clients, c)
	}

	r.mu.Lock()
	for i, n := range names {
		r.snakes[ConnID(n)].player.Score = i // g leads with 6
		r.snakes[ConnID(n)].dirX, r.snakes[ConnID(n)].dirY = 0, 0
	}
	r.mu.Unlock()

	r.Tick(time.Now(), 0.016)

	raw := clients[0].eventsOfType("slither_leaderboard")
	require.NotEmpty(t, raw)
	var board []map[string]any
	require.NoError(t, json.Unmarshal(raw[len(raw)-1].Payload, &board))
	require.Len(t, board, slitherLeaderboardTop)
	assert.Equal(t, "g", board[0]["connId"])
	assert.Equal(t, 6.0, board[0]["score"])
	assert.Equal(t, "f", board[1]["connId"])
}

func TestSlitherRoom_SnapshotCarriesSelfID(t *testing.T) {
	r := newTestSlitherRoom(t)
	a := newFakeClient("a", "Alice")
	b := newFakeClient("b", "Bob")
	joinSlither(r, a)
	joinSlither(r, b)

	r.Tick(time.Now(), 0.016)

	snapA := a.lastOfType(t, "slither_state")
	snapB := b.lastOfType(t, "slither_state")
	assert.Equal(t, "a", snapA["selfId"])
	assert.Equal(t, "b", snapB["selfId"])
	assert.Len(t, snapA["snakes"].([]any), 2)
}

func TestSlitherRoom_LeaveRemovesOwnedBullets(t *testing.T) {
	r := newTestSlitherRoom(t)
	a := newFakeClient("a", "Alice")
	b := newFakeClient("b", "Bob")
	joinSlither(r, a)
	joinSlither(r, b)

	r.mu.Lock()
	r.bullets["mine"] = &slitherBullet{ID: "mine", Owner: "a", Life: 5}
	r.bullets["theirs"] = &slitherBullet{ID: "theirs", Owner: "b", Life: 5}
	r.mu.Unlock()

	require.True(t, r.HandleLeave(context.Background(), "a", wire.LeaveReasonDisconnect))

	r.mu.RLock()
	_, mine := r.bullets["mine"]
	_, theirs := r.bullets["theirs"]
	r.mu.RUnlock()
	assert.False(t, mine)
	assert.True(t, theirs)

	leftEv := b.lastOfType(t, "slither_player_left")
	assert.Equal(t, "a", leftEv["connId"])
}

func TestSlitherRoom_PlayAgainRespawnsKeepingScore(t *testing.T) {
	r := newTestSlitherRoom(t)
	a := newFakeClient("a", "Alice")
	joinSlither(r, a)

	r.mu.Lock()
	s := r.snakes["a"]
	s.hp = 1
	s.player.Score = 6
	s.protected = time.Time{}
	r.mu.Unlock()

	before := time.Now()
	r.HandleEvent(context.Background(), a, wire.EvPlayAgain, nil)

	r.mu.RLock()
	defer r.mu.RUnlock()
	assert.Equal(t, slitherStartHP, s.hp)
	assert.Equal(t, 6, s.player.Score, "voluntary respawn keeps the score")
	assert.True(t, s.protected.After(before), "respawn grants a fresh shield")
}
