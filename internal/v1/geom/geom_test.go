package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 5.0, Clamp(5, 0, 10))
	assert.Equal(t, 0.0, Clamp(-3, 0, 10))
	assert.Equal(t, 10.0, Clamp(42, 0, 10))
}

func TestDist(t *testing.T) {
	assert.Equal(t, 5.0, Dist(0, 0, 3, 4))
	assert.Equal(t, 0.0, Dist(7, 7, 7, 7))
}

func TestNormalize(t *testing.T) {
	x, y, mag := Normalize(3, 4)
	assert.InDelta(t, 0.6, x, 1e-9)
	assert.InDelta(t, 0.8, y, 1e-9)
	assert.InDelta(t, 5.0, mag, 1e-9)

	x, y, mag = Normalize(0, 0)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 0.0, y)
	assert.Equal(t, 0.0, mag)
}

func TestCircleRectOverlap(t *testing.T) {
	rect := Rect{X: 100, Y: 100, Width: 50, Height: 50}

	overlap, _, _ := CircleRectOverlap(90, 125, 15, rect)
	assert.True(t, overlap, "circle reaching into the left edge")

	overlap, _, _ = CircleRectOverlap(50, 50, 10, rect)
	assert.False(t, overlap, "circle well clear of the rect")

	overlap, _, _ = CircleRectOverlap(125, 125, 5, rect)
	assert.True(t, overlap, "circle fully inside")
}

func TestResolveCircleRect_ShallowerAxis(t *testing.T) {
	rect := Rect{X: 100, Y: 100, Width: 200, Height: 40}

	// Coming from above, the vertical penetration is shallower.
	x, y, axis := ResolveCircleRect(200, 98, 10, rect)
	assert.Equal(t, "y", axis)
	assert.Equal(t, 200.0, x)
	assert.Equal(t, 90.0, y)

	// Coming from the left near the vertical middle, x is shallower.
	x, y, axis = ResolveCircleRect(95, 120, 10, rect)
	assert.Equal(t, "x", axis)
	assert.Equal(t, 90.0, x)
	assert.Equal(t, 120.0, y)

	// No overlap leaves the point untouched.
	x, y, axis = ResolveCircleRect(50, 50, 5, rect)
	assert.Equal(t, "", axis)
	assert.Equal(t, 50.0, x)
	assert.Equal(t, 50.0, y)
}

func TestResolveCircleCircle(t *testing.T) {
	// Far apart: untouched.
	x, y := ResolveCircleCircle(100, 100, 300, 300, 50)
	assert.Equal(t, 100.0, x)
	assert.Equal(t, 100.0, y)

	// Overlapping: pushed to exactly minDist along the separation axis.
	x, y = ResolveCircleCircle(110, 100, 100, 100, 50)
	assert.InDelta(t, 50.0, math.Hypot(x-100, y-100), 1e-9)
	assert.Equal(t, 150.0, x)
	assert.Equal(t, 100.0, y)

	// Same point: deterministic horizontal push.
	x, y = ResolveCircleCircle(100, 100, 100, 100, 44)
	assert.Equal(t, 144.0, x)
	assert.Equal(t, 100.0, y)
}
