// Package quality implements the post-processing passes run over a finished
// marching cubes mesh: vertex markup, flat-area reduction and edge swapping.
//
// All passes are stateless functions over an explicit mesh argument. They
// never remove boundary or locked vertices, keep the mesh manifold and do
// not change its Euler characteristic.
package quality

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"volmesh/pkg/mesh"
)

const (
	// FlatAngle is the largest deviation of an incident face normal from
	// the mean normal of a flat vertex.
	FlatAngle = 1.0 * math.Pi / 180

	// NearAngle is the largest deviation for a near-flat vertex.
	NearAngle = 20.0 * math.Pi / 180

	// CornerRatio is the smallest ratio of the third to the first eigenvalue
	// of the normal tensor that makes a vertex a corner.
	CornerRatio = 0.1

	// DefaultMaxLoops bounds how often one face is reconsidered by SwapEdges.
	DefaultMaxLoops = 8

	epsilon = 1e-12
)

// Options configures flat-area reduction.
type Options struct {
	// Iterations is the number of markup/eliminate rounds. Later rounds can
	// find vertices exposed by earlier collapses.
	Iterations int

	// EliminateNear also removes near-flat vertices.
	EliminateNear bool

	// MaxEdgeLength rejects collapses creating longer edges, 0 disables it
	MaxEdgeLength float64
}

// DefaultOptions returns the reduction defaults.
func DefaultOptions() Options {
	return Options{
		Iterations:    1,
		EliminateNear: true,
	}
}

// SwapOptions configures edge swapping.
type SwapOptions struct {
	// MaxLoops is how often a single face may be reconsidered in one pass
	MaxLoops int

	// CoplanarAngle is the largest angle between the normals of two faces
	// whose shared edge may be flipped.
	CoplanarAngle float64
}

// DefaultSwapOptions returns the edge swapping defaults.
func DefaultSwapOptions() SwapOptions {
	return SwapOptions{
		MaxLoops:      DefaultMaxLoops,
		CoplanarAngle: FlatAngle,
	}
}

// TriangleQuality returns 4*sqrt(3)*area / (sum of squared edge lengths),
// which is 1 for an equilateral triangle and 0 for a degenerate one.
func TriangleQuality(a, b, c r3.Vec) float64 {
	l := r3.Norm2(r3.Sub(b, a)) + r3.Norm2(r3.Sub(c, b)) + r3.Norm2(r3.Sub(a, c))
	if l <= 0 {
		return 0
	}
	area := r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a))) / 2
	return 4 * math.Sqrt(3) * area / l
}

// FaceQuality returns the quality of a mesh face.
func FaceQuality(m *mesh.Mesh, f mesh.FaceID) float64 {
	a, b, c := m.FacePoints(f)
	return TriangleQuality(a, b, c)
}

// MakeAllTrisQuality refreshes the quality, longest edge and neighbour tags
// of every face and resets the loop counters.
func MakeAllTrisQuality(m *mesh.Mesh) {
	m.ForEachFace(func(f mesh.FaceID, _ [3]mesh.VertexID) {
		updateFace(m, f)
		m.SetLoops(f, 0)
	})
}

// updateFace refreshes the tags of one face.
func updateFace(m *mesh.Mesh, f mesh.FaceID) {
	m.SetQuality(f, FaceQuality(m, f))
	e := longestEdge(m, f)
	m.SetLongest(f, e)
	m.SetNeighbor(f, mesh.NoFace)
	if faces := m.EdgeFaces(e.A, e.B); len(faces) == 2 {
		if faces[0] == f {
			m.SetNeighbor(f, faces[1])
		} else {
			m.SetNeighbor(f, faces[0])
		}
	}
}

func longestEdge(m *mesh.Mesh, f mesh.FaceID) mesh.Edge {
	t := m.Face(f)
	best := mesh.MakeEdge(t[0], t[1])
	bestLen := -1.0
	for i := 0; i < 3; i++ {
		a, b := t[i], t[(i+1)%3]
		if l := r3.Norm2(r3.Sub(m.Position(b), m.Position(a))); l > bestLen {
			best, bestLen = mesh.MakeEdge(a, b), l
		}
	}
	return best
}

// triNormal returns the unit normal of a triangle and its doubled area.
func triNormal(a, b, c r3.Vec) (r3.Vec, float64) {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	l := r3.Norm(n)
	if l <= epsilon {
		return r3.Vec{}, 0
	}
	return r3.Scale(1/l, n), l
}

// angleBetween returns the angle between two unit vectors.
func angleBetween(a, b r3.Vec) float64 {
	d := r3.Dot(a, b)
	if d > 1 {
		d = 1
	} else if d < -1 {
		d = -1
	}
	return math.Acos(d)
}
