// Package game implements the authoritative room registry, the per-room
// simulations for the four game modes, and the match lifecycle.
package game

import (
	"context"
	"encoding/json"
	"time"

	"github.com/heroarena/game-server/internal/v1/auth"
)

// Mode identifies a game mode. Mode strings are also the event-name
// prefixes on the wire.
type Mode string

const (
	ModeBoss    Mode = "boss"
	ModePVP     Mode = "pvp"
	ModeKOZ     Mode = "koz"
	ModeSlither Mode = "slither"
)

// Modes lists every supported mode, used for dispatch and metrics.
var Modes = []Mode{ModeBoss, ModePVP, ModeKOZ, ModeSlither}

// ConnID is the ephemeral per-connection session handle.
type ConnID string

// RoomID identifies a room within its mode.
type RoomID string

// Phase is the match lifecycle state.
type Phase string

const (
	PhaseLobby     Phase = "LOBBY"
	PhaseCountdown Phase = "COUNTDOWN"
	PhaseActive    Phase = "ACTIVE"
	PhaseResults   Phase = "RESULTS"
)

// Client is the transport-side connection a room talks to. Sends must
// never block; implementations drop frames when their queue is full.
type Client interface {
	ConnID() ConnID
	Identity() auth.Identity
	SendEvent(eventType string, payload any)
	SendRaw(data []byte)
	Disconnect()
}

// Room is implemented by each mode's concrete room type. All methods are
// safe for concurrent use; mutations serialize on the room's own lock.
type Room interface {
	ID() RoomID
	Mode() Mode

	// CanJoin reports whether a new connection may be placed here right now.
	CanJoin() bool
	HandleJoin(ctx context.Context, c Client, p JoinProfile)
	// HandleLeave removes the player. Idempotent; reports whether the
	// connection was present.
	HandleLeave(ctx context.Context, connID ConnID, reason string) bool
	HandleEvent(ctx context.Context, c Client, event string, payload json.RawMessage)

	// Tick advances the simulation by dt seconds.
	Tick(now time.Time, dt float64)

	PlayerCount() int
	Empty() bool
	Close(reason string)
}

// JoinProfile is the validated join request handed to a room.
type JoinProfile struct {
	Identity  auth.Identity
	Character string
	Hero      string
	Weapon    string
	Bullets   int
	Lives     int
	PartyID   string

	// Client bounds hint (Boss mode); normalized by the room.
	BoundsWidth  float64
	BoundsHeight float64
	BoundsTop    float64
}
