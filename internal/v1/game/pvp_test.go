package game

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/heroarena/game-server/internal/v1/stats"
	"github.com/heroarena/game-server/internal/v1/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPVPRoom(t *testing.T) (*pvpRoom, *[]ConnID, *[]stats.MatchSummary) {
	t.Helper()
	deps, left := testRoomDeps()
	var recorded []stats.MatchSummary
	deps.record = func(s stats.MatchSummary) { recorded = append(recorded, s) }
	return newPVPRoom("pvp-1", deps, time.Now()), left, &recorded
}

func joinPVP(r *pvpRoom, c *fakeClient) {
	r.HandleJoin(context.Background(), c, JoinProfile{Identity: c.Identity(), Hero: "knight"})
}

func startBattle(r *pvpRoom, a, b *fakeClient) {
	r.HandleEvent(context.Background(), a, wire.EvReady, nil)
	r.HandleEvent(context.Background(), b, wire.EvReady, nil)
}

func TestPVPRoom_JoinAssignsSlots(t *testing.T) {
	r, _, _ := newTestPVPRoom(t)
	a := newFakeClient("a", "Alice")
	b := newFakeClient("b", "Bob")

	joinPVP(r, a)
	state := a.lastOfType(t, "pvp_room_state")
	assert.Equal(t, 1.0, state["playerNumber"])
	assert.NotContains(t, state, "opponent")
	assert.Zero(t, a.countOf("pvp_match_ready"))

	joinPVP(r, b)
	state = b.lastOfType(t, "pvp_room_state")
	assert.Equal(t, 2.0, state["playerNumber"])
	opp := state["opponent"].(map[string]any)
	assert.Equal(t, "a", opp["connId"])

	oppJoined := a.lastOfType(t, "pvp_opponent_joined")
	assert.Equal(t, "b", oppJoined["connId"])
	assert.Equal(t, 1, a.countOf("pvp_match_ready"))
	assert.Equal(t, 1, b.countOf("pvp_match_ready"))

	// Slot spawns by join order.
	r.mu.RLock()
	assert.Equal(t, pvpSpawns[0].X, r.players["a"].X)
	assert.Equal(t, pvpSpawns[1].X, r.players["b"].X)
	r.mu.RUnlock()
}

func TestPVPRoom_ThirdJoinerRejected(t *testing.T) {
	r, left, _ := newTestPVPRoom(t)
	joinPVP(r, newFakeClient("a", "Alice"))
	joinPVP(r, newFakeClient("b", "Bob"))
	assert.False(t, r.CanJoin())

	c := newFakeClient("c", "Carol")
	joinPVP(r, c)
	assert.Equal(t, 1, c.countOf("pvp_room_full"))
	assert.Equal(t, []ConnID{"c"}, *left)
}

func TestPVPRoom_BothReadyStartsBattleOnce(t *testing.T) {
	r, _, _ := newTestPVPRoom(t)
	a := newFakeClient("a", "Alice")
	b := newFakeClient("b", "Bob")
	joinPVP(r, a)
	joinPVP(r, b)

	r.HandleEvent(context.Background(), a, wire.EvReady, nil)
	assert.Zero(t, a.countOf("pvp_battle_start"), "one ready is not enough")

	r.HandleEvent(context.Background(), b, wire.EvReady, nil)
	assert.Equal(t, 1, a.countOf("pvp_battle_start"))
	assert.Equal(t, 1, b.countOf("pvp_battle_start"))
	assert.False(t, r.CanJoin(), "no mid-join once the battle runs")

	// Redundant ready does not restart.
	r.HandleEvent(context.Background(), a, wire.EvReady, nil)
	assert.Equal(t, 1, a.countOf("pvp_battle_start"))
}

func TestPVPRoom_ShootRelayRequiresBattle(t *testing.T) {
	r, _, _ := newTestPVPRoom(t)
	a := newFakeClient("a", "Alice")
	b := newFakeClient("b", "Bob")
	joinPVP(r, a)
	joinPVP(r, b)

	shot, _ := json.Marshal(map[string]any{"x": 120.0, "y": 300.0, "vx": 500.0})
	r.HandleEvent(context.Background(), a, wire.EvPlayerShoot, shot)
	assert.Zero(t, b.countOf("pvp_player_shoot"), "shots before battle_start are dropped")

	startBattle(r, a, b)
	r.HandleEvent(context.Background(), a, wire.EvPlayerShoot, shot)

	relayed := b.lastOfType(t, "pvp_player_shoot")
	assert.Equal(t, "a", relayed["connId"], "relay is stamped with the shooter")
	assert.Equal(t, 120.0, relayed["x"])
	assert.Zero(t, a.countOf("pvp_player_shoot"), "shooter is excluded from the relay")
}

func TestPVPRoom_KnockoutEndsMatch(t *testing.T) {
	r, _, recorded := newTestPVPRoom(t)
	a := newFakeClient("a", "Alice")
	b := newFakeClient("b", "Bob")
	joinPVP(r, a)
	joinPVP(r, b)
	startBattle(r, a, b)

	// The victim reports its own hits.
	for i := 0; i < pvpStartLives-1; i++ {
		r.HandleEvent(context.Background(), b, wire.EvHitOpponent, nil)
	}
	assert.Zero(t, a.countOf("pvp_match_end"))

	r.HandleEvent(context.Background(), b, wire.EvHitOpponent, nil)

	end := a.lastOfType(t, "pvp_match_end")
	assert.Equal(t, "a", end["winner"])
	assert.Equal(t, "b", end["loser"])
	assert.Equal(t, "knockout", end["reason"])
	assert.Equal(t, 1, b.countOf("pvp_match_end"))

	require.Len(t, *recorded, 1)
	assert.Equal(t, "knockout", (*recorded)[0].Outcome)
	assert.Equal(t, "a", (*recorded)[0].WinnerID)

	// Hits after the battle ends are ignored.
	b.reset()
	r.HandleEvent(context.Background(), b, wire.EvHitOpponent, nil)
	assert.Zero(t, b.countOf("pvp_player_hit"))
}

func TestPVPRoom_MidBattleLeaveForfeits(t *testing.T) {
	r, _, recorded := newTestPVPRoom(t)
	a := newFakeClient("a", "Alice")
	b := newFakeClient("b", "Bob")
	joinPVP(r, a)
	joinPVP(r, b)
	startBattle(r, a, b)

	require.True(t, r.HandleLeave(context.Background(), "b", wire.LeaveReasonDisconnect))

	leftEv := a.lastOfType(t, "pvp_opponent_left")
	assert.Equal(t, "b", leftEv["connId"])

	end := a.lastOfType(t, "pvp_match_end")
	assert.Equal(t, "a", end["winner"])
	assert.Equal(t, "forfeit", end["reason"])

	require.Len(t, *recorded, 1)
	assert.Equal(t, "forfeit", (*recorded)[0].Outcome)
	assert.True(t, r.CanJoin(), "room reopens after the forfeit")
}

func TestPVPRoom_LeaveOutsideBattleDoesNotForfeit(t *testing.T) {
	r, _, recorded := newTestPVPRoom(t)
	a := newFakeClient("a", "Alice")
	b := newFakeClient("b", "Bob")
	joinPVP(r, a)
	joinPVP(r, b)

	require.True(t, r.HandleLeave(context.Background(), "b", wire.LeaveReasonLeft))
	assert.Zero(t, a.countOf("pvp_match_end"))
	assert.Empty(t, *recorded)
}

func TestPVPRoom_MoveClampAndPushOut(t *testing.T) {
	r, _, _ := newTestPVPRoom(t)
	a := newFakeClient("a", "Alice")
	b := newFakeClient("b", "Bob")
	joinPVP(r, a)
	joinPVP(r, b)

	payload, _ := json.Marshal(wire.MovePayload{X: -50, Y: 9000})
	r.HandleEvent(context.Background(), a, wire.EvPlayerMove, payload)
	pos := a.lastOfType(t, "pvp_self_position")
	assert.Equal(t, pvpPlayerRadius, pos["x"])
	assert.Equal(t, pvpArenaHeight-pvpPlayerRadius, pos["y"])

	// Walking into the opponent resolves to edge contact.
	payload, _ = json.Marshal(wire.MovePayload{X: pvpSpawns[1].X, Y: pvpSpawns[1].Y})
	r.HandleEvent(context.Background(), a, wire.EvPlayerMove, payload)
	pos = a.lastOfType(t, "pvp_self_position")
	assert.NotEqual(t, pvpSpawns[1].X, pos["x"])

	oppPos := b.lastOfType(t, "pvp_opponent_position")
	assert.Equal(t, "a", oppPos["connId"])
}

func TestPVPRoom_RoomStateTracksBattleHistory(t *testing.T) {
	r, _, _ := newTestPVPRoom(t)
	a := newFakeClient("a", "Alice")
	b := newFakeClient("b", "Bob")
	joinPVP(r, a)
	joinPVP(r, b)

	state := a.lastOfType(t, "pvp_room_state")
	assert.Equal(t, false, state["battleStarted"])

	startBattle(r, a, b)
	for i := 0; i < pvpStartLives; i++ {
		r.HandleEvent(context.Background(), b, wire.EvHitOpponent, nil)
	}

	// Between battles the state distinguishes "over" from "never started".
	r.HandleEvent(context.Background(), a, wire.EvRequestState, nil)
	state = a.lastOfType(t, "pvp_room_state")
	assert.Equal(t, false, state["battleActive"])
	assert.Equal(t, true, state["battleStarted"])
}

func TestPVPRoom_PlayAgainRearms(t *testing.T) {
	r, _, _ := newTestPVPRoom(t)
	a := newFakeClient("a", "Alice")
	b := newFakeClient("b", "Bob")
	joinPVP(r, a)
	joinPVP(r, b)
	startBattle(r, a, b)

	for i := 0; i < pvpStartLives; i++ {
		r.HandleEvent(context.Background(), b, wire.EvHitOpponent, nil)
	}

	r.HandleEvent(context.Background(), a, wire.EvPlayAgain, nil)
	r.HandleEvent(context.Background(), b, wire.EvPlayAgain, nil)
	assert.GreaterOrEqual(t, a.countOf("pvp_match_ready"), 2)

	startBattle(r, a, b)
	assert.Equal(t, 2, a.countOf("pvp_battle_start"))

	r.mu.RLock()
	assert.Equal(t, pvpStartLives, r.players["b"].Lives, "lives reset for the rematch")
	r.mu.RUnlock()
}
