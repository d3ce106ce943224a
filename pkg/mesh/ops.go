package mesh

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// CanCollapse reports whether the half-edge collapse of v into u is
// topologically safe: v must be an interior vertex joined to u by an edge,
// the link condition must hold and no duplicate face may result. Geometric
// checks are left to the caller.
func (m *Mesh) CanCollapse(v, u VertexID) bool {
	if v == u || !m.VertexAlive(v) || !m.VertexAlive(u) {
		return false
	}
	shared := m.EdgeFaces(v, u)
	if len(shared) != 2 {
		return false
	}
	if m.IsBoundaryVertex(v) {
		return false
	}

	// link condition: common neighbours are exactly the apexes of the
	// two faces on the collapsed edge
	apexA := m.OppositeVertex(shared[0], v, u)
	apexB := m.OppositeVertex(shared[1], v, u)
	if apexA == apexB {
		return false
	}
	nu := m.Neighbors(u)
	common := 0
	for _, w := range m.Neighbors(v) {
		if containsVertex(nu, w) {
			if w != apexA && w != apexB {
				return false
			}
			common++
		}
	}
	if common != 2 {
		return false
	}

	// moved faces must not coincide with faces already around u
	for _, f := range m.vertFaces[v] {
		if f == shared[0] || f == shared[1] {
			continue
		}
		var others [2]VertexID
		k := 0
		for _, w := range m.faces[f] {
			if w != v {
				others[k] = w
				k++
			}
		}
		for _, g := range m.vertFaces[u] {
			if m.HasVertex(g, others[0]) && m.HasVertex(g, others[1]) {
				return false
			}
		}
	}
	return true
}

// CollapsedFaces returns, for every face that survives a collapse of v into
// u, its vertex triple after the collapse. It does not modify the mesh.
func (m *Mesh) CollapsedFaces(v, u VertexID) [][3]VertexID {
	out := make([][3]VertexID, 0, len(m.vertFaces[v]))
	for _, f := range m.vertFaces[v] {
		if m.HasVertex(f, u) {
			continue
		}
		t := m.faces[f]
		for i := range t {
			if t[i] == v {
				t[i] = u
			}
		}
		out = append(out, t)
	}
	return out
}

// Collapse merges vertex v into its neighbour u, deleting v and the two
// faces on the edge (v,u). It returns false and leaves the mesh untouched
// when CanCollapse fails.
func (m *Mesh) Collapse(v, u VertexID) bool {
	if !m.CanCollapse(v, u) {
		return false
	}
	for _, f := range m.EdgeFaces(v, u) {
		m.RemoveFace(f)
	}
	for _, f := range m.vertFaces[v] {
		t := &m.faces[f]
		for i := range t {
			if t[i] == v {
				t[i] = u
			}
		}
		m.vertFaces[u] = append(m.vertFaces[u], f)
	}
	m.vertFaces[v] = nil
	m.vertexDead[v] = true
	m.numVertices--
	return true
}

// flipFaces returns the two faces of edge (a,b) ordered so that the first
// holds the directed edge a->b, together with the apex of each face.
func (m *Mesh) flipFaces(a, b VertexID) (f1, f2 FaceID, c, d VertexID, ok bool) {
	shared := m.EdgeFaces(a, b)
	if len(shared) != 2 {
		return NoFace, NoFace, NoVertex, NoVertex, false
	}
	f1, f2 = shared[0], shared[1]
	if !m.hasDirectedEdge(f1, a, b) {
		f1, f2 = f2, f1
	}
	if !m.hasDirectedEdge(f1, a, b) || !m.hasDirectedEdge(f2, b, a) {
		return NoFace, NoFace, NoVertex, NoVertex, false
	}
	c = m.OppositeVertex(f1, a, b)
	d = m.OppositeVertex(f2, a, b)
	if c == d || m.HasEdge(c, d) {
		return NoFace, NoFace, NoVertex, NoVertex, false
	}
	return f1, f2, c, d, true
}

func (m *Mesh) hasDirectedEdge(f FaceID, a, b VertexID) bool {
	t := m.faces[f]
	for i := 0; i < 3; i++ {
		if t[i] == a && t[(i+1)%3] == b {
			return true
		}
	}
	return false
}

// CanFlip reports whether the edge (a,b) can be replaced by the opposite
// diagonal of its two faces without breaking manifoldness.
func (m *Mesh) CanFlip(a, b VertexID) bool {
	_, _, _, _, ok := m.flipFaces(a, b)
	return ok
}

// FlipResult returns the two triangles that Flip(a,b) would produce.
func (m *Mesh) FlipResult(a, b VertexID) ([3]VertexID, [3]VertexID, bool) {
	_, _, c, d, ok := m.flipFaces(a, b)
	if !ok {
		return [3]VertexID{}, [3]VertexID{}, false
	}
	return [3]VertexID{c, a, d}, [3]VertexID{d, b, c}, true
}

// Flip replaces the edge (a,b) by the edge between the apexes of its two
// faces. The face handles are kept.
func (m *Mesh) Flip(a, b VertexID) bool {
	f1, f2, c, d, ok := m.flipFaces(a, b)
	if !ok {
		return false
	}
	m.faces[f1] = [3]VertexID{c, a, d}
	m.faces[f2] = [3]VertexID{d, b, c}
	m.vertFaces[a] = removeFaceID(m.vertFaces[a], f2)
	m.vertFaces[b] = removeFaceID(m.vertFaces[b], f1)
	m.vertFaces[c] = append(m.vertFaces[c], f2)
	m.vertFaces[d] = append(m.vertFaces[d], f1)
	return true
}

// Compact drops tombstoned vertices and faces. It returns the old-to-new
// vertex map; removed vertices map to NoVertex.
func (m *Mesh) Compact() []VertexID {
	remap := make([]VertexID, len(m.positions))
	n := 0
	for i := range m.positions {
		if m.vertexDead[i] {
			remap[i] = NoVertex
			continue
		}
		remap[i] = VertexID(n)
		m.positions[n] = m.positions[i]
		m.vertexType[n] = m.vertexType[i]
		m.locked[n] = m.locked[i]
		m.vertexDead[n] = false
		n++
	}
	m.positions = m.positions[:n]
	m.vertexType = m.vertexType[:n]
	m.locked = m.locked[:n]
	m.vertexDead = m.vertexDead[:n]
	m.vertFaces = make([][]FaceID, n)

	k := 0
	for i := range m.faces {
		if m.faceDead[i] {
			continue
		}
		t := m.faces[i]
		t = [3]VertexID{remap[t[0]], remap[t[1]], remap[t[2]]}
		m.faces[k] = t
		m.faceDead[k] = false
		m.quality[k] = m.quality[i]
		m.longest[k] = Edge{A: NoVertex, B: NoVertex}
		m.neighbor[k] = NoFace
		m.loops[k] = m.loops[i]
		m.marks[k] = m.marks[i]
		for _, v := range t {
			m.vertFaces[v] = append(m.vertFaces[v], FaceID(k))
		}
		k++
	}
	m.faces = m.faces[:k]
	m.faceDead = m.faceDead[:k]
	m.quality = m.quality[:k]
	m.longest = m.longest[:k]
	m.neighbor = m.neighbor[:k]
	m.loops = m.loops[:k]
	m.marks = m.marks[:k]
	m.numVertices = n
	m.numFaces = k
	return remap
}

// Append copies the live part of src into m. shared[i], when not NoVertex,
// names an existing vertex of m that replaces source vertex i; the source
// vertex is then not copied. Faces that would become degenerate are
// dropped. Append returns the source-to-target vertex map.
func (m *Mesh) Append(src *Mesh, shared []VertexID) []VertexID {
	remap := make([]VertexID, len(src.positions))
	for i := range src.positions {
		switch {
		case src.vertexDead[i]:
			remap[i] = NoVertex
		case shared != nil && i < len(shared) && shared[i] != NoVertex:
			remap[i] = shared[i]
		default:
			v := m.AddVertex(src.positions[i])
			m.vertexType[v] = src.vertexType[i]
			m.locked[v] = src.locked[i]
			remap[i] = v
		}
	}
	for i, t := range src.faces {
		if src.faceDead[i] {
			continue
		}
		a, b, c := remap[t[0]], remap[t[1]], remap[t[2]]
		if a == b || b == c || a == c {
			continue
		}
		f := m.AddFace(a, b, c)
		m.marks[f] = src.marks[i]
	}
	return remap
}

// Translate moves every vertex by d.
func (m *Mesh) Translate(d r3.Vec) {
	for i := range m.positions {
		m.positions[i] = r3.Add(m.positions[i], d)
	}
}
