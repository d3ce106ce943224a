package quality

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"volmesh/pkg/mesh"
)

// ReduceFlatAreas removes vertices from the flat parts of the mesh by half
// edge collapses. Each iteration marks up every vertex and eliminates flat
// vertices, then near-flat vertices when enabled, and finally fold vertices
// along their fold. It returns the number of removed vertices. Removed
// vertices are tombstoned; call Compact on the mesh afterwards.
func ReduceFlatAreas(m *mesh.Mesh, opts Options) int {
	return reduce(m, nil, opts)
}

// ReduceFlatAreasAt is ReduceFlatAreas restricted to the given vertices, e.g.
// the seam of a merge.
func ReduceFlatAreasAt(m *mesh.Mesh, vertices []mesh.VertexID, opts Options) int {
	if len(vertices) == 0 {
		return 0
	}
	return reduce(m, vertices, opts)
}

func reduce(m *mesh.Mesh, vertices []mesh.VertexID, opts Options) int {
	iterations := opts.Iterations
	if iterations < 1 {
		iterations = 1
	}
	removed := 0
	for it := 0; it < iterations; it++ {
		MarkupVertices(m, vertices)
		n := eliminate(m, vertices, mesh.VertexFlat, opts)
		if opts.EliminateNear {
			n += eliminate(m, vertices, mesh.VertexNear, opts)
		}
		n += eliminate(m, vertices, mesh.VertexEdge, opts)
		removed += n
		if n == 0 {
			break
		}
	}
	return removed
}

// eliminate collapses every vertex tagged with the wanted type that still has
// that shape when its turn comes.
func eliminate(m *mesh.Mesh, vertices []mesh.VertexID, want mesh.VertexType, opts Options) int {
	var candidates []mesh.VertexID
	collect := func(v mesh.VertexID) {
		if m.VertexType(v) == want {
			candidates = append(candidates, v)
		}
	}
	if vertices == nil {
		m.ForEachVertex(collect)
	} else {
		for _, v := range vertices {
			if m.VertexAlive(v) {
				collect(v)
			}
		}
	}

	removed := 0
	for _, v := range candidates {
		if !m.VertexAlive(v) || ClassifyVertex(m, v) != want {
			continue
		}
		if eliminateVertex(m, v, want, opts.MaxEdgeLength) {
			removed++
		}
	}
	return removed
}

// eliminateVertex collapses v into the neighbour leaving the best worst
// triangle behind.
func eliminateVertex(m *mesh.Mesh, v mesh.VertexID, kind mesh.VertexType, maxEdgeLength float64) bool {
	var targets []mesh.VertexID
	maxDeviation := FlatAngle
	switch kind {
	case mesh.VertexFlat:
		targets = m.Neighbors(v)
	case mesh.VertexNear:
		targets = m.Neighbors(v)
		maxDeviation = NearAngle
	case mesh.VertexEdge:
		targets = foldTargets(m, v)
	default:
		return false
	}

	best := mesh.NoVertex
	bestQuality := -1.0
	for _, u := range targets {
		q, ok := collapseQuality(m, v, u, maxDeviation, maxEdgeLength)
		if ok && q > bestQuality {
			best, bestQuality = u, q
		}
	}
	if best == mesh.NoVertex {
		return false
	}
	return m.Collapse(v, best)
}

// foldTargets returns the two fold neighbours of v when v lies on a straight
// fold between them.
func foldTargets(m *mesh.Mesh, v mesh.VertexID) []mesh.VertexID {
	fold := featureNeighbors(m, v)
	if len(fold) != 2 {
		return nil
	}
	p := m.Position(v)
	d0 := r3.Sub(m.Position(fold[0]), p)
	d1 := r3.Sub(m.Position(fold[1]), p)
	if r3.Norm(d0) <= epsilon || r3.Norm(d1) <= epsilon {
		return nil
	}
	if angleBetween(r3.Unit(d0), r3.Scale(-1, r3.Unit(d1))) > FlatAngle {
		return nil
	}
	return fold
}

// collapseQuality checks a collapse of v into u geometrically and returns the
// worst quality of the faces it would move.
func collapseQuality(m *mesh.Mesh, v, u mesh.VertexID, maxDeviation, maxEdgeLength float64) (float64, bool) {
	if !m.CanCollapse(v, u) {
		return 0, false
	}
	pu := m.Position(u)
	if maxEdgeLength > 0 {
		for _, w := range m.Neighbors(v) {
			if w != u && m.EdgeLength(u, w) > maxEdgeLength {
				return 0, false
			}
		}
	}

	worst := math.Inf(1)
	for _, f := range m.VertexFaces(v) {
		if m.HasVertex(f, u) {
			continue
		}
		var p [3]r3.Vec
		for i, w := range m.Face(f) {
			if w == v {
				p[i] = pu
			} else {
				p[i] = m.Position(w)
			}
		}
		n, area := triNormal(p[0], p[1], p[2])
		if area == 0 || angleBetween(n, m.FaceNormal(f)) > maxDeviation {
			return 0, false
		}
		if q := TriangleQuality(p[0], p[1], p[2]); q < worst {
			worst = q
		}
	}
	return worst, true
}
