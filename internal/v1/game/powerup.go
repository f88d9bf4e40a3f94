package game

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/heroarena/game-server/internal/v1/geom"
)

// Powerup is a room-owned pickup.
type Powerup struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Radius    float64 `json:"radius"`
	SpawnedAt int64   `json:"spawnedAt"`
}

const powerupRadius = 16

// Effect durations and amounts.
const (
	healAmount          = 35.0
	shieldAmount        = 40.0
	speedBoostDuration  = 5 * time.Second
	shieldDuration      = 6 * time.Second
	damageBoostDuration = 5 * time.Second
	rapidFireDuration   = 5 * time.Second
	ammoTopUp           = 3
)

func newPowerup(kind string, x, y float64, now time.Time) *Powerup {
	return &Powerup{
		ID:        uuid.NewString()[:8],
		Type:      kind,
		X:         x,
		Y:         y,
		Radius:    powerupRadius,
		SpawnedAt: now.UnixMilli(),
	}
}

// pickPowerupType chooses uniformly from the configured set.
func pickPowerupType(types []string) string {
	return types[rand.Intn(len(types))]
}

// applyPowerup applies a pickup effect to the collector and records it.
func applyPowerup(p *Player, kind string, now time.Time) {
	switch kind {
	case "heal":
		p.HP += healAmount
		if p.HP > p.MaxHP {
			p.HP = p.MaxHP
		}
	case "speed":
		p.SpeedUntil = now.Add(speedBoostDuration)
	case "shield":
		p.Shield += shieldAmount
		if p.Shield > shieldAmount {
			p.Shield = shieldAmount
		}
		p.ShieldUntil = now.Add(shieldDuration)
	case "damage":
		p.DamageUntil = now.Add(damageBoostDuration)
	case "rapidfire", "rapid-fire":
		p.RapidFireUntil = now.Add(rapidFireDuration)
	case "ammo":
		p.Ammo += ammoTopUp
	case "vision-ping":
		// Reveal is client-side; the pickup broadcast carries the type.
	}
	p.PowerupsCollected = append(p.PowerupsCollected, kind)
}

// pickupRange reports whether a player can collect a powerup.
func pickupRange(p *Player, pu *Powerup, playerRadius float64) bool {
	return geom.Dist(p.X, p.Y, pu.X, pu.Y) <= playerRadius+pu.Radius
}
