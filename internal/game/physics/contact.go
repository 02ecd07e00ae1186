package physics

import "math"

// Contact describes how two shapes relate. Normal is a unit vector pointing
// from the first shape toward the second. Dist is the signed separation:
// negative means the shapes overlap by -Dist.
type Contact struct {
	Normal Vec
	Dist   float64
}

// Penetrating reports whether the shapes overlap.
func (c Contact) Penetrating() bool { return c.Dist < 0 }

// Compute returns the contact between a at pa and b at pb, or false when the
// shapes are farther apart than prediction.
func Compute(pa Vec, a Collider, pb Vec, b Collider, prediction float64) (Contact, bool) {
	var c Contact
	switch {
	case a.Shape == ShapeCircle && b.Shape == ShapeCircle:
		c = circleCircle(pa, a.Radius, pb, b.Radius)
	case a.Shape == ShapeCircle && b.Shape == ShapeRect:
		c = circleRect(pa, a.Radius, pb, b.HalfW, b.HalfH)
	case a.Shape == ShapeRect && b.Shape == ShapeCircle:
		c = circleRect(pb, b.Radius, pa, a.HalfW, a.HalfH)
		c.Normal = c.Normal.Scale(-1)
	default:
		c = rectRect(pa, a.HalfW, a.HalfH, pb, b.HalfW, b.HalfH)
	}
	if c.Dist > prediction {
		return c, false
	}
	return c, true
}

func circleCircle(pa Vec, ra float64, pb Vec, rb float64) Contact {
	d := pb.Sub(pa)
	length := d.Len()
	n := Vec{1, 0} // coincident centers: pick any axis
	if length > 0 {
		n = d.Scale(1 / length)
	}
	return Contact{Normal: n, Dist: length - ra - rb}
}

// circleRect treats the circle as the first shape.
func circleRect(pc Vec, r float64, pr Vec, hw, hh float64) Contact {
	local := pc.Sub(pr)

	inside := math.Abs(local.X) <= hw && math.Abs(local.Y) <= hh
	if !inside {
		closest := Vec{clamp(local.X, -hw, hw), clamp(local.Y, -hh, hh)}
		delta := local.Sub(closest) // rect surface -> circle center
		length := delta.Len()
		return Contact{Normal: delta.Scale(-1 / length), Dist: length - r}
	}

	// Center inside the rect: leave through the nearest face.
	toRight := hw - local.X
	toLeft := hw + local.X
	toBottom := hh - local.Y
	toTop := hh + local.Y

	depth, n := toLeft, Vec{1, 0}
	if toRight < depth {
		depth, n = toRight, Vec{-1, 0}
	}
	if toTop < depth {
		depth, n = toTop, Vec{0, 1}
	}
	if toBottom < depth {
		depth, n = toBottom, Vec{0, -1}
	}
	return Contact{Normal: n, Dist: -(depth + r)}
}

func rectRect(pa Vec, ahw, ahh float64, pb Vec, bhw, bhh float64) Contact {
	d := pb.Sub(pa)
	overlapX := ahw + bhw - math.Abs(d.X)
	overlapY := ahh + bhh - math.Abs(d.Y)

	if overlapX > 0 && overlapY > 0 {
		if overlapX < overlapY {
			return Contact{Normal: Vec{sign(d.X), 0}, Dist: -overlapX}
		}
		return Contact{Normal: Vec{0, sign(d.Y)}, Dist: -overlapY}
	}

	gapX := math.Max(-overlapX, 0)
	gapY := math.Max(-overlapY, 0)
	n := Vec{sign(d.X) * gapX, sign(d.Y) * gapY}
	length := n.Len()
	if length > 0 {
		n = n.Scale(1 / length)
	}
	return Contact{Normal: n, Dist: length}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
