package spatial

// Point is an indexed position stored in the quadtree. Index refers back to
// the caller's body slice.
type Point struct {
	X, Y  float64
	Index int
}

// Rect is an axis-aligned box with inclusive bounds.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// RectAround builds a box centered on (cx, cy) with the given half extents.
func RectAround(cx, cy, halfW, halfH float64) Rect {
	return Rect{MinX: cx - halfW, MinY: cy - halfH, MaxX: cx + halfW, MaxY: cy + halfH}
}

// Contains reports whether (x, y) lies inside or on the edge of r.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// Intersects reports whether r and o overlap, edges included.
func (r Rect) Intersects(o Rect) bool {
	return r.MinX <= o.MaxX && r.MaxX >= o.MinX && r.MinY <= o.MaxY && r.MaxY >= o.MinY
}

// Quadtree is a point quadtree over a fixed boundary. It is rebuilt from
// scratch every tick, so there is no removal.
//
// Each point lives in exactly one node: a node holds up to capacity points,
// then splits into four quadrants and pushes its points down. Nodes at
// maxDepth never split, which bounds recursion when many points coincide.
type Quadtree struct {
	boundary Rect
	capacity int
	maxDepth int
	depth    int
	points   []Point
	children *[4]Quadtree
	size     int
}

// NewQuadtree creates an empty tree. maxDepth <= 0 defaults to 16.
func NewQuadtree(boundary Rect, capacity, maxDepth int) *Quadtree {
	if capacity < 1 {
		capacity = 1
	}
	if maxDepth <= 0 {
		maxDepth = 16
	}
	return &Quadtree{
		boundary: boundary,
		capacity: capacity,
		maxDepth: maxDepth,
		points:   make([]Point, 0, capacity),
	}
}

// Boundary returns the region the tree accepts points in.
func (q *Quadtree) Boundary() Rect { return q.boundary }

// Len is the number of points stored.
func (q *Quadtree) Len() int { return q.size }

// Clear drops every point and child while keeping the root's buffer.
func (q *Quadtree) Clear() {
	q.points = q.points[:0]
	q.children = nil
	q.size = 0
}

// Insert adds p. It returns false, leaving the tree unchanged, when p lies
// outside the boundary.
func (q *Quadtree) Insert(p Point) bool {
	if !q.boundary.Contains(p.X, p.Y) {
		return false
	}
	q.insert(p)
	return true
}

func (q *Quadtree) insert(p Point) {
	q.size++
	if q.children == nil {
		if len(q.points) < q.capacity || q.depth >= q.maxDepth {
			q.points = append(q.points, p)
			return
		}
		q.subdivide()
	}
	q.child(p).insert(p)
}

// child picks the single quadrant that owns p. Midlines belong to the
// lower quadrant so a point is never stored twice.
func (q *Quadtree) child(p Point) *Quadtree {
	b := q.boundary
	midX := (b.MinX + b.MaxX) / 2
	midY := (b.MinY + b.MaxY) / 2
	i := 0
	if p.X > midX {
		i |= 1
	}
	if p.Y > midY {
		i |= 2
	}
	return &q.children[i]
}

func (q *Quadtree) subdivide() {
	b := q.boundary
	midX := (b.MinX + b.MaxX) / 2
	midY := (b.MinY + b.MaxY) / 2
	quads := [4]Rect{
		{b.MinX, b.MinY, midX, midY},
		{midX, b.MinY, b.MaxX, midY},
		{b.MinX, midY, midX, b.MaxY},
		{midX, midY, b.MaxX, b.MaxY},
	}

	q.children = new([4]Quadtree)
	for i := range q.children {
		q.children[i] = Quadtree{
			boundary: quads[i],
			capacity: q.capacity,
			maxDepth: q.maxDepth,
			depth:    q.depth + 1,
			points:   make([]Point, 0, q.capacity),
		}
	}

	for _, p := range q.points {
		q.child(p).insert(p)
	}
	q.points = q.points[:0]
}

// Query appends every point inside area to out and returns it. Subtrees whose
// boundary does not intersect area are skipped.
func (q *Quadtree) Query(area Rect, out []Point) []Point {
	if !q.boundary.Intersects(area) {
		return out
	}
	for _, p := range q.points {
		if area.Contains(p.X, p.Y) {
			out = append(out, p)
		}
	}
	if q.children != nil {
		for i := range q.children {
			out = q.children[i].Query(area, out)
		}
	}
	return out
}
