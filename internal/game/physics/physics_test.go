package physics

import (
	"math"
	"testing"

	"github.com/nx0ly/moomoo2/internal/config"
	"github.com/nx0ly/moomoo2/internal/game/spatial"
)

func newTestResolver(split float64) *Resolver {
	cfg := config.DefaultCollision()
	cfg.SplitRatio = split
	return NewResolver(spatial.Rect{MinX: 0, MinY: 0, MaxX: 8192, MaxY: 8192}, cfg)
}

func TestContactCircleCircle(t *testing.T) {
	c, ok := Compute(Vec{0, 0}, Circle(10), Vec{5, 0}, Circle(10), 0.1)
	if !ok {
		t.Fatal("Expected a contact")
	}
	if c.Dist != -15 {
		t.Errorf("Expected dist -15, got %v", c.Dist)
	}
	if c.Normal != (Vec{1, 0}) {
		t.Errorf("Expected normal (1,0), got %+v", c.Normal)
	}

	if _, ok := Compute(Vec{0, 0}, Circle(10), Vec{100, 0}, Circle(10), 0.1); ok {
		t.Error("Distant circles should not produce a contact")
	}
}

func TestContactCircleRect(t *testing.T) {
	tests := []struct {
		name       string
		circle     Vec
		wantNormal Vec
		wantDist   float64
	}{
		{"overlapping from the left", Vec{-55, 0}, Vec{1, 0}, -5},
		{"overlapping from above", Vec{0, -25}, Vec{0, 1}, -5},
		{"center inside near right face", Vec{45, 0}, Vec{-1, 0}, -15},
		{"separated", Vec{-70, 0}, Vec{1, 0}, 10},
	}

	// rect of half extents 50x20 at the origin, circle radius 10
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := Compute(tt.circle, Circle(10), Vec{0, 0}, Rect(50, 20), 100)
			if math.Abs(c.Dist-tt.wantDist) > 1e-9 {
				t.Errorf("Expected dist %v, got %v", tt.wantDist, c.Dist)
			}
			if c.Normal != tt.wantNormal {
				t.Errorf("Expected normal %+v, got %+v", tt.wantNormal, c.Normal)
			}

			// swapping the order flips the normal
			r, _ := Compute(Vec{0, 0}, Rect(50, 20), tt.circle, Circle(10), 100)
			if r.Normal != tt.wantNormal.Scale(-1) || math.Abs(r.Dist-tt.wantDist) > 1e-9 {
				t.Errorf("Swapped contact mismatch: %+v", r)
			}
		})
	}
}

func TestContactRectRect(t *testing.T) {
	c, ok := Compute(Vec{0, 0}, Rect(10, 10), Vec{15, 2}, Rect(10, 10), 0)
	if !ok || !c.Penetrating() {
		t.Fatal("Expected penetration")
	}
	if c.Normal != (Vec{1, 0}) || c.Dist != -5 {
		t.Errorf("Expected x-axis separation of 5, got %+v", c)
	}
}

// Two radius-10 circles 5 apart end at least 19.8 apart after one pass, and
// the two displacements add up to the 15-unit penetration.
func TestResolveEqualSplit(t *testing.T) {
	r := newTestResolver(0.5)
	bodies := []Body{
		{Pos: Vec{1000, 1000}, Collider: Circle(10)},
		{Pos: Vec{1005, 1000}, Collider: Circle(10)},
	}
	before := []Vec{bodies[0].Pos, bodies[1].Pos}

	st := r.Resolve(bodies, nil)
	if st.Resolved != 1 {
		t.Errorf("Expected 1 resolved contact, got %d", st.Resolved)
	}
	if st.PairsTested != 1 {
		t.Errorf("Expected the pair tested once, got %d", st.PairsTested)
	}

	if d := bodies[0].Pos.Dist(bodies[1].Pos); d < 19.8 {
		t.Errorf("Expected distance >= 19.8, got %v", d)
	}
	moved := bodies[0].Pos.Dist(before[0]) + bodies[1].Pos.Dist(before[1])
	if math.Abs(moved-15) > 1e-9 {
		t.Errorf("Expected combined displacement 15, got %v", moved)
	}
	if math.Abs(bodies[0].Pos.Dist(before[0])-7.5) > 1e-9 {
		t.Errorf("Expected an even split, got %v", bodies[0].Pos.Dist(before[0]))
	}
}

func TestResolveWeightedSplit(t *testing.T) {
	r := newTestResolver(0.7)
	bodies := []Body{
		{Pos: Vec{1000, 1000}, Collider: Circle(10)},
		{Pos: Vec{1010, 1000}, Collider: Circle(10)},
	}
	r.Resolve(bodies, nil)

	if got := 1000 - bodies[0].Pos.X; math.Abs(got-7) > 1e-9 {
		t.Errorf("Expected first body to move 7, got %v", got)
	}
	if got := bodies[1].Pos.X - 1010; math.Abs(got-3) > 1e-9 {
		t.Errorf("Expected second body to move 3, got %v", got)
	}
}

func TestResolveLeavesSeparatedBodies(t *testing.T) {
	r := newTestResolver(0.5)
	bodies := []Body{
		{Pos: Vec{100, 100}, Collider: Circle(10)},
		{Pos: Vec{200, 100}, Collider: Circle(10)},
		{Pos: Vec{100, 125}, Collider: Circle(10)},
	}
	st := r.Resolve(bodies, nil)
	if st.Resolved != 0 {
		t.Errorf("Expected no contacts, got %d", st.Resolved)
	}
	if bodies[0].Pos != (Vec{100, 100}) || bodies[2].Pos != (Vec{100, 125}) {
		t.Error("Separated bodies must not move")
	}
}

// A large body next to a small one is found by the large body's query even
// when the small one's query area misses it; the pair is still tested once.
func TestResolveAsymmetricRadii(t *testing.T) {
	r := newTestResolver(0.5)
	bodies := []Body{
		{Pos: Vec{1000, 1000}, Collider: Circle(5)},
		{Pos: Vec{1090, 1000}, Collider: Circle(100)},
	}
	st := r.Resolve(bodies, nil)
	if st.Resolved != 1 || st.PairsTested != 1 {
		t.Errorf("Expected one tested and resolved pair, got %+v", st)
	}
}

func TestResolveStaticWalls(t *testing.T) {
	r := newTestResolver(0.5)
	bodies := []Body{{Pos: Vec{10, 500}, Collider: Circle(35)}}
	walls := []Body{{Pos: Vec{-50, 500}, Collider: Rect(50, 1000)}}

	st := r.Resolve(bodies, walls)
	if st.StaticResolved != 1 {
		t.Fatalf("Expected one static contact, got %d", st.StaticResolved)
	}
	if math.Abs(bodies[0].Pos.X-35) > 1e-9 {
		t.Errorf("Expected body pushed to x=35, got %v", bodies[0].Pos.X)
	}
	if walls[0].Pos != (Vec{-50, 500}) {
		t.Error("Static bodies must never move")
	}
}

func BenchmarkResolve_500Bodies(b *testing.B) {
	r := newTestResolver(0.5)
	bodies := make([]Body, 500)
	reset := func() {
		for i := range bodies {
			bodies[i] = Body{Pos: Vec{float64(i%25) * 30, float64(i/25) * 30}, Collider: Circle(20)}
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reset()
		r.Resolve(bodies, nil)
	}
}
