package physics

import (
	"math"

	"github.com/nx0ly/moomoo2/internal/config"
	"github.com/nx0ly/moomoo2/internal/game/spatial"
)

// Body is a positioned collider.
type Body struct {
	Pos      Vec
	Collider Collider
}

// Stats summarizes one Resolve pass.
type Stats struct {
	Candidates     int // quadtree hits, before pair dedup
	PairsTested    int
	Resolved       int // dynamic-dynamic contacts separated
	StaticResolved int // dynamic-static contacts separated
}

// Resolver separates overlapping bodies once per tick. It owns its quadtree
// and scratch buffers and is not safe for concurrent use.
type Resolver struct {
	cfg   config.CollisionConfig
	tree  *spatial.Quadtree
	found []spatial.Point
	seen  map[uint64]struct{}
	push  []Vec
}

// NewResolver creates a resolver whose quadtree covers bounds.
func NewResolver(bounds spatial.Rect, cfg config.CollisionConfig) *Resolver {
	return &Resolver{
		cfg:  cfg,
		tree: spatial.NewQuadtree(bounds, cfg.QuadtreeCapacity, cfg.QuadtreeMaxDepth),
		seen: make(map[uint64]struct{}),
	}
}

// Resolve pushes apart penetrating dynamic bodies, then pushes dynamic bodies
// out of static ones. Only positions in dynamic are written.
//
// Dynamic corrections are accumulated per index and applied after every pair
// has been examined, so a body's correction never depends on pair order.
func (r *Resolver) Resolve(dynamic, static []Body) Stats {
	var st Stats

	r.tree.Clear()
	for i := range dynamic {
		r.tree.Insert(spatial.Point{X: dynamic[i].Pos.X, Y: dynamic[i].Pos.Y, Index: i})
	}

	r.push = r.push[:0]
	for range dynamic {
		r.push = append(r.push, Vec{})
	}
	clear(r.seen)

	ratio := r.cfg.SplitRatio
	for i := range dynamic {
		a := &dynamic[i]
		half := a.Collider.BoundRadius * r.cfg.QueryFactor
		r.found = r.tree.Query(spatial.RectAround(a.Pos.X, a.Pos.Y, half, half), r.found[:0])
		st.Candidates += len(r.found)

		for _, p := range r.found {
			j := p.Index
			if j == i {
				continue
			}
			lo, hi := i, j
			if lo > hi {
				lo, hi = hi, lo
			}
			key := uint64(lo)<<32 | uint64(hi)
			if _, dup := r.seen[key]; dup {
				continue
			}
			r.seen[key] = struct{}{}
			st.PairsTested++

			first, second := &dynamic[lo], &dynamic[hi]
			if first.Pos.Dist(second.Pos) > first.Collider.BoundRadius+second.Collider.BoundRadius {
				continue
			}
			c, ok := Compute(first.Pos, first.Collider, second.Pos, second.Collider, r.cfg.Precision)
			if !ok || !c.Penetrating() {
				continue
			}

			depth := -c.Dist
			r.push[lo] = r.push[lo].Sub(c.Normal.Scale(depth * ratio))
			r.push[hi] = r.push[hi].Add(c.Normal.Scale(depth * (1 - ratio)))
			st.Resolved++
		}
	}

	for i := range dynamic {
		dynamic[i].Pos = dynamic[i].Pos.Add(r.push[i])
	}

	for i := range dynamic {
		d := &dynamic[i]
		for k := range static {
			s := &static[k]
			if d.Pos.Dist(s.Pos) > d.Collider.BoundRadius+s.Collider.BoundRadius {
				continue
			}
			c, ok := Compute(d.Pos, d.Collider, s.Pos, s.Collider, r.cfg.Precision)
			if !ok || !c.Penetrating() {
				continue
			}
			d.Pos = d.Pos.Sub(c.Normal.Scale(-c.Dist))
			st.StaticResolved++
		}
	}

	return st
}

// Overlap is the penetration depth between two bodies, zero when apart.
func Overlap(a, b Body) float64 {
	c, ok := Compute(a.Pos, a.Collider, b.Pos, b.Collider, 0)
	if !ok || !c.Penetrating() {
		return 0
	}
	return math.Abs(c.Dist)
}
