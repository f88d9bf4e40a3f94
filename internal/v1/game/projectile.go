package game

import (
	"math"

	"github.com/google/uuid"
	"github.com/heroarena/game-server/internal/v1/geom"
)

// Projectile is a live shot owned by the room it was spawned in. Damage is
// attributed to OwnerConn even if the owner has since left.
type Projectile struct {
	ID           string  `json:"id"`
	OwnerConn    ConnID  `json:"owner"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	VX           float64 `json:"vx"`
	VY           float64 `json:"vy"`
	Radius       float64 `json:"radius"`
	Damage       float64 `json:"damage"`
	Life         float64 `json:"life"` // seconds remaining
	Pierce       int     `json:"-"`
	Bounces      int     `json:"-"`
	SplashRadius float64 `json:"-"`
	Weapon       string  `json:"weapon"`
	Color        string  `json:"color,omitempty"`
}

// spawnProjectiles builds one projectile per spread offset for a shot from
// (x, y) toward the unit aim direction. The caller validates the shot.
func spawnProjectiles(owner *Player, w Weapon, aimX, aimY float64, damageMult float64, spread []float64) []*Projectile {
	if len(spread) == 0 {
		spread = w.Spread
	}

	spawnDist := playerRadiusKOZ + w.Radius + 6
	out := make([]*Projectile, 0, len(spread))
	base := math.Atan2(aimY, aimX)
	for _, offset := range spread {
		angle := base + offset
		dirX := math.Cos(angle)
		dirY := math.Sin(angle)
		out = append(out, &Projectile{
			ID:           uuid.NewString(),
			OwnerConn:    owner.ConnID,
			X:            owner.X + dirX*spawnDist,
			Y:            owner.Y + dirY*spawnDist,
			VX:           dirX * w.Speed,
			VY:           dirY * w.Speed,
			Radius:       w.Radius,
			Damage:       w.Damage * damageMult,
			Life:         w.Lifetime,
			Pierce:       w.Pierce,
			Bounces:      w.Bounces,
			SplashRadius: w.SplashRadius,
			Weapon:       w.Name,
			Color:        w.Color,
		})
	}
	return out
}

// stepProjectile integrates one projectile by dt against rectangular
// bounds, honoring the bounce budget. It reports false when the projectile
// should be destroyed by age or an unbounceable wall hit.
func stepProjectile(j *Projectile, dt, width, height float64) bool {
	j.Life -= dt
	if j.Life <= 0 {
		return false
	}

	j.X += j.VX * dt
	j.Y += j.VY * dt

	if j.X < j.Radius || j.X > width-j.Radius {
		if j.Bounces <= 0 {
			return false
		}
		j.Bounces--
		j.VX = -j.VX
		j.X = geom.Clamp(j.X, j.Radius, width-j.Radius)
	}
	if j.Y < j.Radius || j.Y > height-j.Radius {
		if j.Bounces <= 0 {
			return false
		}
		j.Bounces--
		j.VY = -j.VY
		j.Y = geom.Clamp(j.Y, j.Radius, height-j.Radius)
	}
	return true
}

// hitsObstacle reports whether the projectile overlaps any obstacle rect.
func hitsObstacle(j *Projectile, obstacles []geom.Rect) bool {
	for _, rect := range obstacles {
		if ok, _, _ := geom.CircleRectOverlap(j.X, j.Y, j.Radius, rect); ok {
			return true
		}
	}
	return false
}
