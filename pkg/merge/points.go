package merge

import (
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"volmesh/pkg/mesh"
)

// coord returns the component of p along axis 0, 1 or 2.
func coord(p r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	case 2:
		return p.Z
	}
	panic("merge: illegal axis")
}

// seamPoint is an open-edge vertex in the kd-tree of a seam.
type seamPoint struct {
	Pos r3.Vec
	ID  mesh.VertexID
}

func (p seamPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return coord(p.Pos, int(d)) - coord(c.(seamPoint).Pos, int(d))
}

func (p seamPoint) Dims() int { return 3 }

// Distance is squared, as kdtree expects.
func (p seamPoint) Distance(c kdtree.Comparable) float64 {
	return r3.Norm2(r3.Sub(p.Pos, c.(seamPoint).Pos))
}

// seamPoints is the kdtree.Interface over the open vertices of one face.
type seamPoints []seamPoint

func (p seamPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p seamPoints) Len() int                              { return len(p) }
func (p seamPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p seamPoints) Pivot(d kdtree.Dim) int {
	byAxis := seamAxis{points: p, axis: d}
	return kdtree.Partition(byAxis, kdtree.MedianOfRandoms(byAxis, 100))
}

// seamAxis orders seam points along one axis for partitioning.
type seamAxis struct {
	points seamPoints
	axis   kdtree.Dim
}

func (s seamAxis) Len() int { return len(s.points) }

func (s seamAxis) Less(i, j int) bool {
	return coord(s.points[i].Pos, int(s.axis)) < coord(s.points[j].Pos, int(s.axis))
}

func (s seamAxis) Swap(i, j int) { s.points[i], s.points[j] = s.points[j], s.points[i] }

func (s seamAxis) Slice(start, end int) kdtree.SortSlicer {
	return seamAxis{points: s.points[start:end], axis: s.axis}
}

// newSeamTree indexes the distinct live vertices of a list, nil when none
// is left.
func newSeamTree(m *mesh.Mesh, vertices []mesh.VertexID) *kdtree.Tree {
	points := make(seamPoints, 0, len(vertices))
	seen := make(map[mesh.VertexID]bool, len(vertices))
	for _, v := range vertices {
		if seen[v] || !m.VertexAlive(v) {
			continue
		}
		seen[v] = true
		points = append(points, seamPoint{Pos: m.Position(v), ID: v})
	}
	if len(points) == 0 {
		return nil
	}
	return kdtree.New(points, false)
}
