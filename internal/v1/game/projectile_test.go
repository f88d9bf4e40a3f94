package game

import (
	"testing"
	"time"

	"github.com/heroarena/game-server/internal/v1/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testShooter() *Player {
	p := newPlayer("shooter", testIdentity("shooter"), JoinProfile{Hero: "knight"}, time.Now())
	p.X, p.Y = 500, 500
	return p
}

func TestSpawnProjectiles_SpreadAndDamage(t *testing.T) {
	p := testShooter()
	w := Weapons["arcane-orb"] // two-pellet spread

	shots := spawnProjectiles(p, w, 1, 0, 1.3, nil)
	require.Len(t, shots, 2)
	for _, j := range shots {
		assert.Equal(t, p.ConnID, j.OwnerConn)
		assert.InDelta(t, w.Damage*1.3, j.Damage, 1e-9)
		assert.Equal(t, w.Lifetime, j.Life)
		assert.Equal(t, w.SplashRadius, j.SplashRadius)
	}
	// Pellets diverge.
	assert.NotEqual(t, shots[0].VY, shots[1].VY)
}

func TestSpawnProjectiles_SpawnOffset(t *testing.T) {
	p := testShooter()
	w := Weapons["bulwark-disc"]

	shots := spawnProjectiles(p, w, 1, 0, 1, nil)
	require.Len(t, shots, 1)

	wantDist := playerRadiusKOZ + w.Radius + 6
	assert.InDelta(t, wantDist, geom.Dist(p.X, p.Y, shots[0].X, shots[0].Y), 1e-6)
}

func TestSpawnProjectiles_OverrideSpread(t *testing.T) {
	p := testShooter()
	w := Weapons["bulwark-disc"]

	shots := spawnProjectiles(p, w, 1, 0, 1, kozOverclockSpread)
	assert.Len(t, shots, 3)
}

func TestStepProjectile_Expiry(t *testing.T) {
	j := &Projectile{X: 500, Y: 500, VX: 100, Life: 0.05, Radius: 5}
	assert.False(t, stepProjectile(j, 0.1, 1000, 1000), "projectile past its lifetime dies")
}

func TestStepProjectile_WallWithoutBounce(t *testing.T) {
	j := &Projectile{X: 990, Y: 500, VX: 1000, Life: 1, Radius: 5}
	assert.False(t, stepProjectile(j, 0.05, 1000, 1000), "no bounce budget: dies at the wall")
}

func TestStepProjectile_BounceBudget(t *testing.T) {
	j := &Projectile{X: 990, Y: 500, VX: 1000, Life: 1, Radius: 5, Bounces: 1}

	assert.True(t, stepProjectile(j, 0.05, 1000, 1000), "bounce consumes budget instead of dying")
	assert.Equal(t, 0, j.Bounces)
	assert.Negative(t, j.VX, "velocity reflects")
	assert.LessOrEqual(t, j.X, 995.0, "clamped back inside bounds")

	// Second wall hit has no budget left.
	j.X, j.VX = 990, 1000
	assert.False(t, stepProjectile(j, 0.05, 1000, 1000))
}

func TestHitsObstacle(t *testing.T) {
	obstacles := []geom.Rect{{X: 100, Y: 100, Width: 50, Height: 50}}

	inside := &Projectile{X: 125, Y: 125, Radius: 4}
	assert.True(t, hitsObstacle(inside, obstacles))

	outside := &Projectile{X: 10, Y: 10, Radius: 4}
	assert.False(t, hitsObstacle(outside, obstacles))
}
