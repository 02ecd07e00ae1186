// Package physics resolves overlaps between circle and rectangle colliders.
// Bodies are plain values in caller-owned slices; the resolver reads and
// writes them by index.
package physics

import "math"

// Shape is a collider's geometry kind.
type Shape uint8

const (
	ShapeCircle Shape = iota
	ShapeRect
)

func (s Shape) String() string {
	switch s {
	case ShapeCircle:
		return "circle"
	case ShapeRect:
		return "rect"
	default:
		return "unknown"
	}
}

// Collider is a shape centered on its body's position. BoundRadius encloses
// the whole shape and drives the broad phase.
type Collider struct {
	Shape       Shape
	Radius      float64 // circles
	HalfW       float64 // rects
	HalfH       float64
	BoundRadius float64
}

// Circle builds a circle collider.
func Circle(radius float64) Collider {
	return Collider{Shape: ShapeCircle, Radius: radius, BoundRadius: radius}
}

// Rect builds an axis-aligned rectangle collider from half extents.
func Rect(halfW, halfH float64) Collider {
	return Collider{
		Shape:       ShapeRect,
		HalfW:       halfW,
		HalfH:       halfH,
		BoundRadius: math.Hypot(halfW, halfH),
	}
}

// Vec is a 2D vector.
type Vec struct {
	X, Y float64
}

func (v Vec) Add(o Vec) Vec { return Vec{v.X + o.X, v.Y + o.Y} }
func (v Vec) Sub(o Vec) Vec { return Vec{v.X - o.X, v.Y - o.Y} }
func (v Vec) Scale(s float64) Vec { return Vec{v.X * s, v.Y * s} }
func (v Vec) Len() float64 { return math.Hypot(v.X, v.Y) }
func (v Vec) Dist(o Vec) float64 { return math.Hypot(v.X-o.X, v.Y-o.Y) }
