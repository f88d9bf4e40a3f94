// Package geom holds the scalar geometry helpers shared by all game modes.
package geom

import "math"

// Vec is a 2D point or direction.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Clamp returns v limited to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Dist returns the euclidean distance between two points.
func Dist(ax, ay, bx, by float64) float64 {
	return math.Hypot(ax-bx, ay-by)
}

// Normalize returns the unit vector of (x, y) and its magnitude. A zero
// vector normalizes to zero with magnitude 0.
func Normalize(x, y float64) (float64, float64, float64) {
	mag := math.Hypot(x, y)
	if mag <= 1e-9 {
		return 0, 0, 0
	}
	return x / mag, y / mag, mag
}

// CircleRectOverlap reports whether a circle overlaps a rectangle, along
// with the penetration depth on each axis measured from the closest point.
func CircleRectOverlap(cx, cy, r float64, rect Rect) (overlap bool, dx, dy float64) {
	nearestX := Clamp(cx, rect.X, rect.X+rect.Width)
	nearestY := Clamp(cy, rect.Y, rect.Y+rect.Height)
	dx = cx - nearestX
	dy = cy - nearestY
	return dx*dx+dy*dy < r*r, dx, dy
}

// ResolveCircleRect pushes a circle at (cx, cy) out of rect along the
// shallower axis and reports which axis was resolved ("x", "y" or "").
func ResolveCircleRect(cx, cy, r float64, rect Rect) (float64, float64, string) {
	overlap, _, _ := CircleRectOverlap(cx, cy, r, rect)
	if !overlap {
		return cx, cy, ""
	}

	// Penetration depth measured to each rect face.
	left := (cx + r) - rect.X
	right := (rect.X + rect.Width) - (cx - r)
	top := (cy + r) - rect.Y
	bottom := (rect.Y + rect.Height) - (cy - r)

	minX := math.Min(left, right)
	minY := math.Min(top, bottom)

	if minX < minY {
		if left < right {
			return rect.X - r, cy, "x"
		}
		return rect.X + rect.Width + r, cy, "x"
	}
	if top < bottom {
		return cx, rect.Y - r, "y"
	}
	return cx, rect.Y + rect.Height + r, "y"
}

// ResolveCircleCircle pushes the desired position of a mover out of a
// stationary circle so the centers end up at least minDist apart. Only the
// mover is displaced.
func ResolveCircleCircle(desiredX, desiredY, otherX, otherY, minDist float64) (float64, float64) {
	dx := desiredX - otherX
	dy := desiredY - otherY
	dist := math.Hypot(dx, dy)

	if dist < 0.001 {
		// Degenerate case: same point. Push out horizontally.
		return otherX + minDist, desiredY
	}
	if dist >= minDist {
		return desiredX, desiredY
	}

	scale := minDist / dist
	return otherX + dx*scale, otherY + dy*scale
}
