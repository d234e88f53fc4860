// Package delaunay implements 2D Delaunay triangulation using the
// Bowyer-Watson incremental algorithm.
package delaunay

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Point is a triangulation vertex.
type Point struct {
	X, Y float64
}

// Triangle holds three vertex indices in ascending order.
type Triangle [3]int

// Edge holds two vertex indices in ascending order.
type Edge [2]int

// superScale sizes the artificial super triangle relative to the point
// cloud extent. Hull triangles it cuts off are restored by completeHull.
const superScale = 100.0

// coincidentEps is the distance below which two input points are the same
// vertex. Later duplicates are not inserted.
const coincidentEps = 1e-9

type triangle struct {
	a, b, c    int
	cx, cy, r2 float64
	degenerate bool
}

func newTriangle(verts []Point, a, b, c int) triangle {
	t := triangle{a: a, b: b, c: c}
	p0, p1, p2 := verts[a], verts[b], verts[c]

	ax, ay := p1.X-p0.X, p1.Y-p0.Y
	bx, by := p2.X-p0.X, p2.Y-p0.Y
	d := 2 * (ax*by - ay*bx)
	scale := math.Max(ax*ax+ay*ay, bx*bx+by*by)
	if d == 0 || math.Abs(d) <= 1e-12*scale {
		t.degenerate = true
		return t
	}

	m := ax*ax + ay*ay
	u := bx*bx + by*by
	ux := (by*m - ay*u) / d
	uy := (ax*u - bx*m) / d
	t.cx = p0.X + ux
	t.cy = p0.Y + uy
	t.r2 = ux*ux + uy*uy
	return t
}

// inCircumcircle reports whether p lies strictly inside the circumcircle.
// Degenerate triangles always report true so the next insertion replaces them.
func (t triangle) inCircumcircle(p Point) bool {
	if t.degenerate {
		return true
	}
	dx := p.X - t.cx
	dy := p.Y - t.cy
	return dx*dx+dy*dy < t.r2
}

func (t triangle) edges() [3]Edge {
	return [3]Edge{makeEdge(t.a, t.b), makeEdge(t.b, t.c), makeEdge(t.c, t.a)}
}

func makeEdge(u, v int) Edge {
	if u > v {
		return Edge{v, u}
	}
	return Edge{u, v}
}

// Triangulate returns the Delaunay triangles of points as index triples.
// The output is sorted lexicographically so equal inputs always produce
// equal outputs. Collinear inputs yield no triangles and no error.
func Triangulate(points []Point) ([]Triangle, error) {
	n := len(points)
	if n < 3 {
		return nil, errors.Errorf("need at least 3 points, got %d", n)
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return nil, errors.Errorf("point %d is not finite: (%f, %f)", i, p.X, p.Y)
		}
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}

	dmax := math.Max(maxX-minX, maxY-minY)
	if dmax == 0 {
		return []Triangle{}, nil
	}
	midX := (minX + maxX) / 2
	midY := (minY + maxY) / 2

	verts := make([]Point, n, n+3)
	copy(verts, points)
	verts = append(verts,
		Point{X: midX - superScale*dmax, Y: midY - dmax},
		Point{X: midX, Y: midY + superScale*dmax},
		Point{X: midX + superScale*dmax, Y: midY - dmax},
	)

	tris := []triangle{newTriangle(verts, n, n+1, n+2)}
	inserted := make([]int, 0, n)

	for i := 0; i < n; i++ {
		p := verts[i]
		if coincides(verts, inserted, p) {
			continue
		}
		inserted = append(inserted, i)

		keep := make([]triangle, 0, len(tris)+2)
		counts := make(map[Edge]int)
		polygon := make([]Edge, 0, 16)
		for _, t := range tris {
			if !t.inCircumcircle(p) {
				keep = append(keep, t)
				continue
			}
			for _, e := range t.edges() {
				if counts[e] == 0 {
					polygon = append(polygon, e)
				}
				counts[e]++
			}
		}

		// Edges shared by two bad triangles are interior to the cavity.
		for _, e := range polygon {
			if counts[e] == 1 {
				keep = append(keep, newTriangle(verts, e[0], e[1], i))
			}
		}
		tris = keep
	}

	mesh := make([]Triangle, 0, len(tris))
	for _, t := range tris {
		if t.degenerate || t.a >= n || t.b >= n || t.c >= n {
			continue
		}
		mesh = append(mesh, Triangle{t.a, t.b, t.c})
	}
	mesh = completeHull(points, inserted, mesh)

	out := make([]Triangle, 0, len(mesh))
	for _, tri := range mesh {
		sort.Ints(tri[:])
		out = append(out, tri)
	}
	sort.Slice(out, func(i, j int) bool { return lessTriangle(out[i], out[j]) })
	return out, nil
}

// dedge is a directed edge with the triangle it bounds on its left.
type dedge [2]int

// orient is twice the signed area of abc, positive when counter-clockwise.
func orient(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

// strictlyLeft reports whether c lies left of a->b beyond rounding noise.
func strictlyLeft(a, b, c Point) bool {
	scale := math.Max((b.X-a.X)*(b.X-a.X)+(b.Y-a.Y)*(b.Y-a.Y), (c.X-a.X)*(c.X-a.X)+(c.Y-a.Y)*(c.Y-a.Y))
	return orient(a, b, c) > 1e-12*scale
}

// completeHull fills the gaps a finite super triangle leaves along the convex
// hull. Every mesh triangle already has an empty circumcircle, so each open
// mesh edge is wrapped with the point whose circle through the edge reaches
// least far into the open side, until no edge has points left of it.
func completeHull(points []Point, inserted []int, mesh []Triangle) []Triangle {
	if len(inserted) < 3 {
		return mesh
	}

	covered := make(map[dedge]bool, 3*len(mesh))
	var frontier []dedge
	cover := func(a, b, c int) {
		covered[dedge{a, b}] = true
		covered[dedge{b, c}] = true
		covered[dedge{c, a}] = true
		frontier = append(frontier, dedge{b, a}, dedge{c, b}, dedge{a, c})
	}
	for i, t := range mesh {
		if orient(points[t[0]], points[t[1]], points[t[2]]) < 0 {
			t[1], t[2] = t[2], t[1]
			mesh[i] = t
		}
		cover(t[0], t[1], t[2])
	}

	if len(mesh) == 0 {
		// The closest pair is always a Delaunay edge.
		a, b, best := -1, -1, math.Inf(1)
		for x, i := range inserted {
			for _, j := range inserted[x+1:] {
				dx, dy := points[i].X-points[j].X, points[i].Y-points[j].Y
				if d := dx*dx + dy*dy; d < best {
					a, b, best = i, j, d
				}
			}
		}
		frontier = append(frontier, dedge{a, b}, dedge{b, a})
	}

	for len(frontier) > 0 {
		e := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]
		if covered[e] {
			continue
		}
		a, b := points[e[0]], points[e[1]]
		nx, ny := a.Y-b.Y, b.X-a.X
		mx, my := (a.X+b.X)/2, (a.Y+b.Y)/2

		pick, reach := -1, math.Inf(1)
		for _, i := range inserted {
			if i == e[0] || i == e[1] || !strictlyLeft(a, b, points[i]) {
				continue
			}
			t := newTriangle(points, e[0], e[1], i)
			if t.degenerate {
				continue
			}
			if d := (t.cx-mx)*nx + (t.cy-my)*ny; d < reach {
				pick, reach = i, d
			}
		}
		if pick < 0 || covered[dedge{e[1], pick}] || covered[dedge{pick, e[0]}] {
			continue
		}
		mesh = append(mesh, Triangle{e[0], e[1], pick})
		cover(e[0], e[1], pick)
	}
	return mesh
}

func coincides(verts []Point, inserted []int, p Point) bool {
	for _, j := range inserted {
		q := verts[j]
		if math.Abs(q.X-p.X) < coincidentEps && math.Abs(q.Y-p.Y) < coincidentEps {
			return true
		}
	}
	return false
}

func lessTriangle(a, b Triangle) bool {
	for k := 0; k < 3; k++ {
		if a[k] != b[k] {
			return a[k] < b[k]
		}
	}
	return false
}

// Edges returns the unique edges of the triangles, sorted.
func Edges(tris []Triangle) []Edge {
	seen := make(map[Edge]bool, len(tris)*3)
	out := make([]Edge, 0, len(tris)*3)
	for _, t := range tris {
		for _, e := range []Edge{makeEdge(t[0], t[1]), makeEdge(t[1], t[2]), makeEdge(t[0], t[2])} {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// Validate checks the empty circumcircle property of a triangulation. It is
// quadratic and meant for tests and debugging.
func Validate(points []Point, tris []Triangle) error {
	for ti, t := range tris {
		for _, idx := range t {
			if idx < 0 || idx >= len(points) {
				return errors.Errorf("triangle %d references point %d out of range", ti, idx)
			}
		}
		c := newTriangle(points, t[0], t[1], t[2])
		if c.degenerate {
			return errors.Errorf("triangle %d %v is degenerate", ti, t)
		}
		for pi, p := range points {
			if pi == t[0] || pi == t[1] || pi == t[2] {
				continue
			}
			dx := p.X - c.cx
			dy := p.Y - c.cy
			if dx*dx+dy*dy < c.r2*(1-1e-9) {
				return errors.Errorf("point %d lies inside circumcircle of triangle %d %v", pi, ti, t)
			}
		}
	}
	return nil
}
