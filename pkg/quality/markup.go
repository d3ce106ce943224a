package quality

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"volmesh/pkg/mesh"
)

// MarkupVertices classifies the given vertices (all live vertices when
// vertices is nil) and stores the result as vertex tags.
func MarkupVertices(m *mesh.Mesh, vertices []mesh.VertexID) {
	if vertices == nil {
		m.ForEachVertex(func(v mesh.VertexID) {
			m.SetVertexType(v, ClassifyVertex(m, v))
		})
		return
	}
	for _, v := range vertices {
		if m.VertexAlive(v) {
			m.SetVertexType(v, ClassifyVertex(m, v))
		}
	}
}

// ClassifyVertex returns the local shape of a vertex from the normals of its
// incident faces. Boundary, locked and isolated vertices are VertexNone.
func ClassifyVertex(m *mesh.Mesh, v mesh.VertexID) mesh.VertexType {
	if !m.VertexAlive(v) || m.Valence(v) == 0 || m.Locked(v) || m.IsBoundaryVertex(v) {
		return mesh.VertexNone
	}

	faces := m.VertexFaces(v)
	normals := make([]r3.Vec, 0, len(faces))
	weights := make([]float64, 0, len(faces))
	var mean r3.Vec
	for _, f := range faces {
		n, w := triNormal(m.FacePoints(f))
		if w == 0 {
			return mesh.VertexNone
		}
		normals = append(normals, n)
		weights = append(weights, w)
		mean = r3.Add(mean, r3.Scale(w, n))
	}
	if r3.Norm(mean) <= epsilon {
		return mesh.VertexNone
	}
	mean = r3.Unit(mean)

	deviation := 0.0
	for _, n := range normals {
		if a := angleBetween(n, mean); a > deviation {
			deviation = a
		}
	}
	switch {
	case deviation <= FlatAngle:
		return mesh.VertexFlat
	case deviation <= NearAngle:
		return mesh.VertexNear
	}

	// the normal tensor has one dominant eigenvalue on smooth regions, two
	// along a fold and three at a corner
	t := mat.NewSymDense(3, nil)
	for i, n := range normals {
		t.SymRankOne(t, weights[i], mat.NewVecDense(3, []float64{n.X, n.Y, n.Z}))
	}
	var es mat.EigenSym
	if !es.Factorize(t, false) {
		return mesh.VertexNone
	}
	values := es.Values(nil)
	if values[2] <= epsilon {
		return mesh.VertexNone
	}
	if values[0]/values[2] >= CornerRatio {
		return mesh.VertexCorner
	}
	return mesh.VertexEdge
}

// featureNeighbors returns the neighbours of v joined to it by an edge whose
// dihedral angle exceeds NearAngle.
func featureNeighbors(m *mesh.Mesh, v mesh.VertexID) []mesh.VertexID {
	var out []mesh.VertexID
	for _, w := range m.Neighbors(v) {
		faces := m.EdgeFaces(v, w)
		if len(faces) != 2 {
			continue
		}
		if angleBetween(m.FaceNormal(faces[0]), m.FaceNormal(faces[1])) > NearAngle {
			out = append(out, w)
		}
	}
	return out
}
