package game

import (
	"time"

	"github.com/heroarena/game-server/internal/v1/auth"
)

// Player is the per-connection, per-room participant state. The owning
// room's lock guards every field.
type Player struct {
	// identity
	ConnID      ConnID
	UserID      string
	DisplayName string
	AvatarRef   string
	Hero        string
	Weapon      string

	// kinematics
	X, Y      float64
	VX, VY    float64
	Facing    float64
	SpeedMult float64

	// combat
	HP             float64
	MaxHP          float64
	Shield         float64
	ShieldUntil    time.Time
	DamageUntil    time.Time
	SpeedUntil     time.Time
	RapidFireUntil time.Time

	// resources
	Ammo              int
	Bullets           int
	Lives             int
	BulletsFired      int
	BulletsHit        int
	DamageDealt       float64
	LivesLost         int
	PowerupsCollected []string

	// match
	Alive     bool
	Score     int
	Kills     int
	Deaths    int
	RespawnAt time.Time
	JoinedAt  time.Time
	Spectator bool
	Ready     bool
	Away      bool

	// input
	InputSeq              int
	InputUp, InputDown    bool
	InputLeft, InputRight bool

	// timers
	LastShotAt  time.Time
	NextAmmoAt  time.Time
	StormTickAt time.Time

	// KOZ core/overclock
	CoreSeconds    float64
	OverclockMeter float64
	OverclockUntil time.Time
}

// newPlayer seeds a player from a join profile.
func newPlayer(connID ConnID, id auth.Identity, profile JoinProfile, now time.Time) *Player {
	hero := profile.Hero
	if hero == "" {
		hero = profile.Character
	}
	weapon := WeaponFor(hero, profile.Weapon)

	return &Player{
		ConnID:      connID,
		UserID:      id.UserID,
		DisplayName: id.DisplayName,
		AvatarRef:   id.AvatarRef,
		Hero:        hero,
		Weapon:      weapon.Name,
		SpeedMult:   1,
		HP:          100,
		MaxHP:       100,
		Ammo:        3,
		Bullets:     profile.Bullets,
		Lives:       profile.Lives,
		Alive:       true,
		JoinedAt:    now,
	}
}

// DamageMult returns the active damage multiplier at now.
func (p *Player) DamageMult(now time.Time) float64 {
	mult := 1.0
	if now.Before(p.DamageUntil) {
		mult *= 1.3
	}
	if now.Before(p.OverclockUntil) {
		mult *= 1.15
	}
	return mult
}

// MoveMult returns the active speed multiplier at now.
func (p *Player) MoveMult(now time.Time) float64 {
	mult := p.SpeedMult
	if mult == 0 {
		mult = 1
	}
	if now.Before(p.SpeedUntil) {
		mult *= 1.35
	}
	if now.Before(p.OverclockUntil) {
		mult *= 1.20
	}
	return mult
}

// CooldownMult returns the active fire-cooldown multiplier at now.
func (p *Player) CooldownMult(now time.Time) float64 {
	if now.Before(p.RapidFireUntil) {
		return 0.68
	}
	return 1
}

// InputAxes returns the normalized movement direction from the axis flags.
func (p *Player) InputAxes() (float64, float64) {
	var ax, ay float64
	if p.InputLeft {
		ax -= 1
	}
	if p.InputRight {
		ax += 1
	}
	if p.InputUp {
		ay -= 1
	}
	if p.InputDown {
		ay += 1
	}
	if ax != 0 && ay != 0 {
		// diagonal normalization: 1/sqrt(2)
		ax *= 0.7071067811865476
		ay *= 0.7071067811865476
	}
	return ax, ay
}
