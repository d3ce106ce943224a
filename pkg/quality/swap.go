package quality

import (
	"math"

	"volmesh/pkg/mesh"
)

// SwapEdges flips the longest edge of a face whenever that strictly improves
// the worse of the two faces sharing it. Only coplanar pairs are flipped and
// the mesh area never grows. Every face is reconsidered at most
// opts.MaxLoops times. It returns the number of flips.
func SwapEdges(m *mesh.Mesh, opts SwapOptions) int {
	if opts.MaxLoops <= 0 {
		opts.MaxLoops = DefaultMaxLoops
	}
	if opts.CoplanarAngle <= 0 {
		opts.CoplanarAngle = FlatAngle
	}
	MakeAllTrisQuality(m)

	queue := make([]mesh.FaceID, 0, m.FaceCount())
	m.ForEachFace(func(f mesh.FaceID, _ [3]mesh.VertexID) {
		queue = append(queue, f)
	})

	flips := 0
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if !m.FaceAlive(f) || m.Loops(f) >= opts.MaxLoops {
			continue
		}
		m.SetLoops(f, m.Loops(f)+1)

		g := m.Neighbor(f)
		if g == mesh.NoFace || !m.FaceAlive(g) || !swapImprovesQuality(m, f, g, opts) {
			continue
		}
		e := m.Longest(f)
		t := m.Face(f)
		u := m.Face(g)
		if !m.Flip(e.A, e.B) {
			continue
		}
		flips++
		m.SetLoops(g, m.Loops(g)+1)

		// refresh every face around the quad, their neighbours changed
		seen := make(map[mesh.FaceID]bool)
		for _, v := range append(t[:], u[:]...) {
			for _, h := range m.VertexFaces(v) {
				if seen[h] {
					continue
				}
				seen[h] = true
				updateFace(m, h)
				if m.Loops(h) < opts.MaxLoops {
					queue = append(queue, h)
				}
			}
		}
	}
	return flips
}

// swapImprovesQuality reports whether flipping the longest edge of f, shared
// with g, is allowed and improves the worse face.
func swapImprovesQuality(m *mesh.Mesh, f, g mesh.FaceID, opts SwapOptions) bool {
	e := m.Longest(f)
	t1, t2, ok := m.FlipResult(e.A, e.B)
	if !ok {
		return false
	}
	nf := m.FaceNormal(f)
	if angleBetween(nf, m.FaceNormal(g)) > opts.CoplanarAngle {
		return false
	}

	a1, b1, c1 := m.Position(t1[0]), m.Position(t1[1]), m.Position(t1[2])
	a2, b2, c2 := m.Position(t2[0]), m.Position(t2[1]), m.Position(t2[2])
	n1, area1 := triNormal(a1, b1, c1)
	n2, area2 := triNormal(a2, b2, c2)
	if area1 == 0 || area2 == 0 {
		return false
	}
	// a reversed normal means the quad is not convex
	if angleBetween(n1, nf) > opts.CoplanarAngle || angleBetween(n2, nf) > opts.CoplanarAngle {
		return false
	}
	oldArea := m.FaceArea(f) + m.FaceArea(g)
	if (area1+area2)/2 > oldArea*(1+1e-9) {
		return false
	}

	before := math.Min(m.Quality(f), m.Quality(g))
	after := math.Min(TriangleQuality(a1, b1, c1), TriangleQuality(a2, b2, c2))
	return after > before+1e-9
}
