package game

import (
	"math/rand"

	"github.com/heroarena/game-server/internal/v1/geom"
)

// spawnArea describes where and how far apart players may be seated.
type spawnArea struct {
	Left, Right float64
	Top, Bottom float64
	Radius      float64 // player radius
	Padding     float64 // extra clearance beyond 2*radius
}

// occupied is a clearance probe: it reports whether a candidate position
// collides with anything already seated (players, boss footprint, core).
type occupied func(x, y float64) bool

// findOpenSpawn returns a clear seat inside the area. It tries random
// samples first, then walks a coarse grid, and finally clamps the fallback
// position into bounds. A join is never rejected for lack of space.
func findOpenSpawn(area spawnArea, taken occupied, fallbackX, fallbackY float64) (float64, float64) {
	const attempts = 80

	if area.Right > area.Left && area.Bottom > area.Top {
		for i := 0; i < attempts; i++ {
			x := area.Left + rand.Float64()*(area.Right-area.Left)
			y := area.Top + rand.Float64()*(area.Bottom-area.Top)
			if !taken(x, y) {
				return x, y
			}
		}

		step := 2 * area.Radius
		if step < 40 {
			step = 40
		}
		for y := area.Top; y <= area.Bottom; y += step {
			for x := area.Left; x <= area.Right; x += step {
				if !taken(x, y) {
					return x, y
				}
			}
		}
	}

	// Last resort: clamp the requested position. Overlap is resolved by
	// the next tick's pairwise push-out.
	x := geom.Clamp(fallbackX, area.Left, area.Right)
	y := geom.Clamp(fallbackY, area.Top, area.Bottom)
	return x, y
}

// clearOfPlayers builds an occupied probe over a player set with the given
// minimum center distance.
func clearOfPlayers(players map[ConnID]*Player, minDist float64) occupied {
	return func(x, y float64) bool {
		for _, p := range players {
			if geom.Dist(x, y, p.X, p.Y) < minDist {
				return true
			}
		}
		return false
	}
}
