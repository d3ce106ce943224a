// Package mesh implements the triangle mesh shared by the extraction, quality
// and merge stages.
//
// The mesh is a structure of arrays: vertices and faces are arena slots
// addressed by VertexID and FaceID handles, and every per-element tag (vertex
// classification, lock flag, face quality, longest edge, neighbour, loop
// counter) lives in its own typed slice indexed by the same handle. Deleted
// elements are tombstoned until Compact is called.
//
// A Mesh is not safe for concurrent mutation; each pipeline stage owns the
// mesh it works on.
package mesh

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// VertexID is a handle to a mesh vertex.
type VertexID int32

// FaceID is a handle to a mesh triangle.
type FaceID int32

const (
	// NoVertex is the invalid vertex handle.
	NoVertex VertexID = -1

	// NoFace is the invalid face handle.
	NoFace FaceID = -1
)

// VertexType is the local shape classification of a vertex.
type VertexType uint8

const (
	VertexNone VertexType = iota
	VertexFlat
	VertexNear
	VertexEdge
	VertexCorner
)

func (t VertexType) String() string {
	switch t {
	case VertexFlat:
		return "flat"
	case VertexNear:
		return "near"
	case VertexEdge:
		return "edge"
	case VertexCorner:
		return "corner"
	default:
		return "none"
	}
}

// Edge is an undirected edge with A < B.
type Edge struct {
	A, B VertexID
}

// MakeEdge returns the normalised edge between two vertices.
func MakeEdge(a, b VertexID) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// Mesh is a structure-of-arrays triangle mesh.
type Mesh struct {
	// vertex arrays
	positions  []r3.Vec
	vertexType []VertexType
	locked     []bool
	vertexDead []bool
	vertFaces  [][]FaceID

	// face arrays, triangles are counter-clockwise seen from outside
	faces    [][3]VertexID
	faceDead []bool
	quality  []float64
	longest  []Edge
	neighbor []FaceID
	loops    []int
	marks    []int32

	numVertices int
	numFaces    int
}

// New creates an empty mesh.
func New() *Mesh {
	return &Mesh{}
}

// NewWithCapacity creates an empty mesh with preallocated arenas.
func NewWithCapacity(vertices, faces int) *Mesh {
	return &Mesh{
		positions:  make([]r3.Vec, 0, vertices),
		vertexType: make([]VertexType, 0, vertices),
		locked:     make([]bool, 0, vertices),
		vertexDead: make([]bool, 0, vertices),
		vertFaces:  make([][]FaceID, 0, vertices),
		faces:      make([][3]VertexID, 0, faces),
		faceDead:   make([]bool, 0, faces),
		quality:    make([]float64, 0, faces),
		longest:    make([]Edge, 0, faces),
		neighbor:   make([]FaceID, 0, faces),
		loops:      make([]int, 0, faces),
		marks:      make([]int32, 0, faces),
	}
}

// AddVertex appends a vertex and returns its handle.
func (m *Mesh) AddVertex(p r3.Vec) VertexID {
	m.positions = append(m.positions, p)
	m.vertexType = append(m.vertexType, VertexNone)
	m.locked = append(m.locked, false)
	m.vertexDead = append(m.vertexDead, false)
	m.vertFaces = append(m.vertFaces, nil)
	m.numVertices++
	return VertexID(len(m.positions) - 1)
}

// AddFace appends a triangle and returns its handle. The vertices must be
// live and distinct.
func (m *Mesh) AddFace(a, b, c VertexID) FaceID {
	f := FaceID(len(m.faces))
	m.faces = append(m.faces, [3]VertexID{a, b, c})
	m.faceDead = append(m.faceDead, false)
	m.quality = append(m.quality, 0)
	m.longest = append(m.longest, Edge{A: NoVertex, B: NoVertex})
	m.neighbor = append(m.neighbor, NoFace)
	m.loops = append(m.loops, 0)
	m.marks = append(m.marks, 0)
	m.vertFaces[a] = append(m.vertFaces[a], f)
	m.vertFaces[b] = append(m.vertFaces[b], f)
	m.vertFaces[c] = append(m.vertFaces[c], f)
	m.numFaces++
	return f
}

// RemoveFace deletes a face and detaches it from its vertices.
func (m *Mesh) RemoveFace(f FaceID) {
	if m.faceDead[f] {
		return
	}
	for _, v := range m.faces[f] {
		m.vertFaces[v] = removeFaceID(m.vertFaces[v], f)
	}
	m.faceDead[f] = true
	m.numFaces--
}

// RemoveVertex deletes a vertex together with its incident faces.
func (m *Mesh) RemoveVertex(v VertexID) {
	if m.vertexDead[v] {
		return
	}
	for len(m.vertFaces[v]) > 0 {
		m.RemoveFace(m.vertFaces[v][0])
	}
	m.vertexDead[v] = true
	m.numVertices--
}

func removeFaceID(list []FaceID, f FaceID) []FaceID {
	for i, g := range list {
		if g == f {
			list[i] = list[len(list)-1]
			return list[:len(list)-1]
		}
	}
	return list
}

// VertexCount returns the number of live vertices.
func (m *Mesh) VertexCount() int { return m.numVertices }

// FaceCount returns the number of live faces.
func (m *Mesh) FaceCount() int { return m.numFaces }

// VertexCap returns the size of the vertex arena, live or not.
func (m *Mesh) VertexCap() int { return len(m.positions) }

// FaceCap returns the size of the face arena, live or not.
func (m *Mesh) FaceCap() int { return len(m.faces) }

// IsEmpty reports whether the mesh has no live faces.
func (m *Mesh) IsEmpty() bool { return m.numFaces == 0 }

// VertexAlive reports whether v is a live vertex handle.
func (m *Mesh) VertexAlive(v VertexID) bool {
	return v >= 0 && int(v) < len(m.positions) && !m.vertexDead[v]
}

// FaceAlive reports whether f is a live face handle.
func (m *Mesh) FaceAlive(f FaceID) bool {
	return f >= 0 && int(f) < len(m.faces) && !m.faceDead[f]
}

// Position returns the vertex position.
func (m *Mesh) Position(v VertexID) r3.Vec { return m.positions[v] }

// SetPosition moves a vertex.
func (m *Mesh) SetPosition(v VertexID, p r3.Vec) { m.positions[v] = p }

// Face returns the vertices of a face.
func (m *Mesh) Face(f FaceID) [3]VertexID { return m.faces[f] }

// VertexFaces returns the faces incident to v. The slice is owned by the
// mesh and must not be modified.
func (m *Mesh) VertexFaces(v VertexID) []FaceID { return m.vertFaces[v] }

// Valence returns the number of faces incident to v.
func (m *Mesh) Valence(v VertexID) int { return len(m.vertFaces[v]) }

// VertexType returns the shape classification of v.
func (m *Mesh) VertexType(v VertexID) VertexType { return m.vertexType[v] }

// SetVertexType stores the shape classification of v.
func (m *Mesh) SetVertexType(v VertexID, t VertexType) { m.vertexType[v] = t }

// Lock protects a vertex from removal by the quality pass.
func (m *Mesh) Lock(v VertexID) { m.locked[v] = true }

// Unlock clears the lock flag of v.
func (m *Mesh) Unlock(v VertexID) { m.locked[v] = false }

// Locked reports whether v is protected from removal.
func (m *Mesh) Locked(v VertexID) bool { return m.locked[v] }

// Quality returns the stored shape quality of f.
func (m *Mesh) Quality(f FaceID) float64 { return m.quality[f] }

// SetQuality stores the shape quality of f.
func (m *Mesh) SetQuality(f FaceID, q float64) { m.quality[f] = q }

// Longest returns the stored longest edge of f.
func (m *Mesh) Longest(f FaceID) Edge { return m.longest[f] }

// SetLongest stores the longest edge of f.
func (m *Mesh) SetLongest(f FaceID, e Edge) { m.longest[f] = e }

// Neighbor returns the stored face across the longest edge of f.
func (m *Mesh) Neighbor(f FaceID) FaceID { return m.neighbor[f] }

// SetNeighbor stores the face across the longest edge of f.
func (m *Mesh) SetNeighbor(f FaceID, g FaceID) { m.neighbor[f] = g }

// Loops returns how often f was reconsidered in the current swap pass.
func (m *Mesh) Loops(f FaceID) int { return m.loops[f] }

// SetLoops stores the swap loop counter of f.
func (m *Mesh) SetLoops(f FaceID, n int) { m.loops[f] = n }

// Mark returns the user mark of f.
func (m *Mesh) Mark(f FaceID) int32 { return m.marks[f] }

// SetMark stores a user mark on f, e.g. the slab that produced it.
func (m *Mesh) SetMark(f FaceID, mark int32) { m.marks[f] = mark }

// ForEachVertex calls fn for every live vertex.
func (m *Mesh) ForEachVertex(fn func(v VertexID)) {
	for i := range m.positions {
		if !m.vertexDead[i] {
			fn(VertexID(i))
		}
	}
}

// ForEachFace calls fn for every live face.
func (m *Mesh) ForEachFace(fn func(f FaceID, tri [3]VertexID)) {
	for i := range m.faces {
		if !m.faceDead[i] {
			fn(FaceID(i), m.faces[i])
		}
	}
}

// Neighbors returns the one-ring of v in first-seen order.
func (m *Mesh) Neighbors(v VertexID) []VertexID {
	out := make([]VertexID, 0, 8)
	for _, f := range m.vertFaces[v] {
		for _, w := range m.faces[f] {
			if w != v && !containsVertex(out, w) {
				out = append(out, w)
			}
		}
	}
	return out
}

func containsVertex(list []VertexID, v VertexID) bool {
	for _, w := range list {
		if w == v {
			return true
		}
	}
	return false
}

// HasVertex reports whether face f uses vertex v.
func (m *Mesh) HasVertex(f FaceID, v VertexID) bool {
	t := m.faces[f]
	return t[0] == v || t[1] == v || t[2] == v
}

// EdgeFaces returns the faces sharing the edge (a,b).
func (m *Mesh) EdgeFaces(a, b VertexID) []FaceID {
	var out []FaceID
	for _, f := range m.vertFaces[a] {
		if m.HasVertex(f, b) {
			out = append(out, f)
		}
	}
	return out
}

// HasEdge reports whether a and b are connected by an edge.
func (m *Mesh) HasEdge(a, b VertexID) bool {
	for _, f := range m.vertFaces[a] {
		if m.HasVertex(f, b) {
			return true
		}
	}
	return false
}

// IsBoundaryEdge reports whether the edge (a,b) has exactly one face.
func (m *Mesh) IsBoundaryEdge(a, b VertexID) bool {
	return len(m.EdgeFaces(a, b)) == 1
}

// IsBoundaryVertex reports whether v lies on an open boundary.
func (m *Mesh) IsBoundaryVertex(v VertexID) bool {
	for _, w := range m.Neighbors(v) {
		if m.IsBoundaryEdge(v, w) {
			return true
		}
	}
	return false
}

// OppositeVertex returns the vertex of f that is neither a nor b.
func (m *Mesh) OppositeVertex(f FaceID, a, b VertexID) VertexID {
	for _, w := range m.faces[f] {
		if w != a && w != b {
			return w
		}
	}
	return NoVertex
}

// FacePoints returns the three corner positions of f.
func (m *Mesh) FacePoints(f FaceID) (r3.Vec, r3.Vec, r3.Vec) {
	t := m.faces[f]
	return m.positions[t[0]], m.positions[t[1]], m.positions[t[2]]
}

// FaceCross returns the (unnormalised) cross product of the face edges. Its
// length is twice the face area.
func (m *Mesh) FaceCross(f FaceID) r3.Vec {
	a, b, c := m.FacePoints(f)
	return r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
}

// FaceNormal returns the unit normal of f, or the zero vector for a
// degenerate face.
func (m *Mesh) FaceNormal(f FaceID) r3.Vec {
	n := m.FaceCross(f)
	l := r3.Norm(n)
	if l == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/l, n)
}

// FaceArea returns the area of f.
func (m *Mesh) FaceArea(f FaceID) float64 {
	return 0.5 * r3.Norm(m.FaceCross(f))
}

// EdgeLength returns the distance between two vertices.
func (m *Mesh) EdgeLength(a, b VertexID) float64 {
	return r3.Norm(r3.Sub(m.positions[a], m.positions[b]))
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		positions:   append([]r3.Vec(nil), m.positions...),
		vertexType:  append([]VertexType(nil), m.vertexType...),
		locked:      append([]bool(nil), m.locked...),
		vertexDead:  append([]bool(nil), m.vertexDead...),
		vertFaces:   make([][]FaceID, len(m.vertFaces)),
		faces:       append([][3]VertexID(nil), m.faces...),
		faceDead:    append([]bool(nil), m.faceDead...),
		quality:     append([]float64(nil), m.quality...),
		longest:     append([]Edge(nil), m.longest...),
		neighbor:    append([]FaceID(nil), m.neighbor...),
		loops:       append([]int(nil), m.loops...),
		marks:       append([]int32(nil), m.marks...),
		numVertices: m.numVertices,
		numFaces:    m.numFaces,
	}
	for i, list := range m.vertFaces {
		c.vertFaces[i] = append([]FaceID(nil), list...)
	}
	return c
}
