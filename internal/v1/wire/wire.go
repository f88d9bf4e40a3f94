// Package wire defines the JSON socket protocol: every frame is an
// envelope of the form {"type": ..., "payload": ...}. The server ignores
// out-of-range or invalid fields rather than erroring.
package wire

import "encoding/json"

// Envelope is the framing for every inbound and outbound event.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode parses a raw frame into an envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

// Marshal builds the raw bytes for an outbound event.
func Marshal(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}

// Inbound event suffixes. Full event names are mode-prefixed, e.g.
// "boss_join_room", "koz_player_shoot".
const (
	EvJoinRoom       = "join_room"
	EvLeaveRoom      = "leave_room"
	EvPlayerMove     = "player_move"
	EvPlayerShoot    = "player_shoot"
	EvInput          = "input"
	EvChatSend       = "chat_send"
	EvJoinLobby      = "join_lobby"
	EvLeaveLobby     = "leave_lobby"
	EvPlayerAway     = "player_away"
	EvPlayerReturned = "player_returned"
	EvPlayerStats    = "player_stats"
	EvReportStats    = "report_stats"
	EvDamage         = "damage"
	EvHitOpponent    = "hit_opponent"
	EvReady          = "ready"
	EvPlayAgain      = "play_again"
	EvRequestState   = "request_state"
	EvGetStatus      = "get_status"
	EvDebugState     = "debug_state"
	EvGetPlayers     = "get_players"
)

// Outbound event suffixes.
const (
	EvRoomState           = "room_state"
	EvRoomFull            = "room_full"
	EvRoomClosed          = "room_closed"
	EvPlayerJoined        = "player_joined"
	EvPlayerLeft          = "player_left"
	EvPlayerPosition      = "player_position"
	EvSelfPosition        = "self_position"
	EvPlayerStatsUpdate   = "player_stats_update"
	EvProjectileSpawned   = "projectile_spawned"
	EvProjectilePositions = "projectile_positions"
	EvProjectileRemoved   = "projectile_removed"
	EvPlayerHit           = "player_hit"
	EvPlayerDamaged       = "player_damaged"
	EvPlayerDied          = "player_died"
	EvHealthUpdate        = "health_update"
	EvDefeated            = "defeated"
	EvMatchEnd            = "match_end"
	EvMatchStart          = "match_start"
	EvMatchState          = "match_state"
	EvState               = "state"
	EvPowerupSpawned      = "powerup_spawned"
	EvPowerupCollected    = "powerup_collected"
	EvZoneEvent           = "zone_event"
	EvControlChanged      = "control_changed"
	EvLobbyState          = "lobby_state"
	EvLobbyMembers        = "lobby_members"
	EvLobbyPlayerCount    = "lobby_player_count"
	EvLobbyUpdate         = "lobby_update"
	EvChatMessage         = "chat_message"
	EvCountdownStart      = "countdown_start"
	EvCountdownCancelled  = "countdown_cancelled"
	EvResults             = "results"
	EvShotRejected        = "shot_rejected"
	EvKillfeed            = "killfeed"
	EvJoined              = "joined"
	EvStatus              = "status"
	EvDebugResponse       = "debug_response"
	EvOpponentJoined      = "opponent_joined"
	EvOpponentLeft        = "opponent_left"
	EvOpponentPosition    = "opponent_position"
	EvMatchReady          = "match_ready"
	EvBattleStart         = "battle_start"
	EvLeaderboard         = "leaderboard"
	EvDeath               = "death"
)

// Event joins a mode prefix and an event suffix into a full event name.
func Event(mode, suffix string) string {
	return mode + "_" + suffix
}

// Rejection reasons for shot_rejected and similar events.
const (
	ReasonCooldown  = "cooldown"
	ReasonAmmo      = "ammo"
	ReasonAim       = "aim"
	ReasonBusy      = "busy"
	ReasonInactive  = "inactive"
	ReasonDead      = "dead"
	ReasonSpectator = "spectator"
	ReasonUnknown   = "unknown_player"
)

// Leave reasons carried on player_left.
const (
	LeaveReasonLeft       = "left"
	LeaveReasonDied       = "died"
	LeaveReasonDisconnect = "disconnect"
)

// --- Inbound payload shapes ---

// JoinRoomPayload is the profile a client supplies when joining a room or
// lobby. Unknown fields are ignored; out-of-range values are clamped by
// the receiving mode.
type JoinRoomPayload struct {
	RoomID       string  `json:"roomId,omitempty"`
	Username     string  `json:"username,omitempty"`
	Character    string  `json:"character,omitempty"`
	Hero         string  `json:"hero,omitempty"`
	Weapon       string  `json:"weapon,omitempty"`
	AvatarRef    string  `json:"avatar,omitempty"`
	Bullets      int     `json:"bullets,omitempty"`
	Lives        int     `json:"lives,omitempty"`
	PartyID      string  `json:"partyId,omitempty"`
	BoundsWidth  float64 `json:"boundsWidth,omitempty"`
	BoundsHeight float64 `json:"boundsHeight,omitempty"`
	BoundsTop    float64 `json:"boundsTop,omitempty"`
}

// MovePayload is a desired-position move (Boss, PVP).
type MovePayload struct {
	RoomID string  `json:"roomId,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// InputPayload is an axis-flag movement input (KOZ) or a direction vector
// with action flags (Slither).
type InputPayload struct {
	Up    bool `json:"up"`
	Down  bool `json:"down"`
	Left  bool `json:"left"`
	Right bool `json:"right"`
	Seq   int  `json:"seq,omitempty"`

	Direction *struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"direction,omitempty"`
	Shoot bool `json:"shoot,omitempty"`
	Fire  bool `json:"fire,omitempty"`
	Boost bool `json:"boost,omitempty"`
}

// ShootPayload carries an aim point or direction.
type ShootPayload struct {
	RoomID string   `json:"roomId,omitempty"`
	AimX   *float64 `json:"aimX,omitempty"`
	AimY   *float64 `json:"aimY,omitempty"`
	X      float64  `json:"x,omitempty"`
	Y      float64  `json:"y,omitempty"`
	VX     float64  `json:"vx,omitempty"`
	VY     float64  `json:"vy,omitempty"`
}

// DamagePayload is the Boss-mode client hit report.
type DamagePayload struct {
	RoomID string  `json:"roomId,omitempty"`
	Damage float64 `json:"damage"`
	Target string  `json:"target,omitempty"`
}

// ChatPayload is an inbound chat message.
type ChatPayload struct {
	RoomID  string `json:"roomId,omitempty"`
	Content string `json:"content"`
}

// StatsReportPayload is the advisory end-of-match client summary.
type StatsReportPayload struct {
	RoomID            string   `json:"roomId,omitempty"`
	BulletsFired      int      `json:"bulletsFired"`
	BulletsHit        int      `json:"bulletsHit"`
	LivesLost         int      `json:"livesLost"`
	PowerupsCollected []string `json:"powerupsCollected,omitempty"`
}

// --- Outbound payload shapes shared across modes ---

// Rejection is the payload of shot_rejected and kin.
type Rejection struct {
	Reason string `json:"reason"`
}

// ChatMessage is the broadcast form of a chat message. System messages
// are synthesized by the router with From empty and System true.
type ChatMessage struct {
	From      string `json:"from,omitempty"`
	Name      string `json:"name,omitempty"`
	Content   string `json:"content"`
	System    bool   `json:"system,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// PlayerLeft is broadcast when a player leaves a room.
type PlayerLeft struct {
	ConnID string `json:"connId"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason,omitempty"`
}
