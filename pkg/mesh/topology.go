package mesh

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// edgeUse counts faces per undirected edge.
func (m *Mesh) edgeUse() map[Edge]int {
	use := make(map[Edge]int, 3*m.numFaces/2+1)
	m.ForEachFace(func(_ FaceID, t [3]VertexID) {
		use[MakeEdge(t[0], t[1])]++
		use[MakeEdge(t[1], t[2])]++
		use[MakeEdge(t[2], t[0])]++
	})
	return use
}

// Edges returns every edge of the mesh in sorted order.
func (m *Mesh) Edges() []Edge {
	use := m.edgeUse()
	out := make([]Edge, 0, len(use))
	for e := range use {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// EdgeCount returns the number of distinct edges.
func (m *Mesh) EdgeCount() int {
	return len(m.edgeUse())
}

// BoundaryEdgeCount returns the number of edges with exactly one face.
func (m *Mesh) BoundaryEdgeCount() int {
	n := 0
	for _, c := range m.edgeUse() {
		if c == 1 {
			n++
		}
	}
	return n
}

// usedVertexCount counts live vertices referenced by at least one face.
func (m *Mesh) usedVertexCount() int {
	n := 0
	for i := range m.positions {
		if !m.vertexDead[i] && len(m.vertFaces[i]) > 0 {
			n++
		}
	}
	return n
}

// EulerCharacteristic returns V - E + F over the vertices used by faces.
func (m *Mesh) EulerCharacteristic() int {
	return m.usedVertexCount() - m.EdgeCount() + m.numFaces
}

// IsClosed reports whether every edge is shared by exactly two faces.
func (m *Mesh) IsClosed() bool {
	for _, c := range m.edgeUse() {
		if c != 2 {
			return false
		}
	}
	return true
}

// IsManifold reports whether every edge has one or two faces, every directed
// edge occurs once (consistent orientation), and the faces around every
// vertex form a single fan.
func (m *Mesh) IsManifold() bool {
	for _, c := range m.edgeUse() {
		if c > 2 {
			return false
		}
	}
	directed := make(map[[2]VertexID]struct{}, 3*m.numFaces)
	ok := true
	m.ForEachFace(func(_ FaceID, t [3]VertexID) {
		for i := 0; i < 3; i++ {
			k := [2]VertexID{t[i], t[(i+1)%3]}
			if _, dup := directed[k]; dup {
				ok = false
			}
			directed[k] = struct{}{}
		}
	})
	if !ok {
		return false
	}
	for i := range m.positions {
		if m.vertexDead[i] || len(m.vertFaces[i]) == 0 {
			continue
		}
		if m.fanCount(VertexID(i)) != 1 {
			return false
		}
	}
	return true
}

// fanCount returns the number of edge-connected face groups around v.
func (m *Mesh) fanCount(v VertexID) int {
	faces := m.vertFaces[v]
	seen := make([]bool, len(faces))
	fans := 0
	for start := range faces {
		if seen[start] {
			continue
		}
		fans++
		stack := []int{start}
		seen[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for j := range faces {
				if seen[j] || !m.shareEdgeAt(faces[i], faces[j], v) {
					continue
				}
				seen[j] = true
				stack = append(stack, j)
			}
		}
	}
	return fans
}

// shareEdgeAt reports whether faces f and g share an edge incident to v.
func (m *Mesh) shareEdgeAt(f, g FaceID, v VertexID) bool {
	for _, w := range m.faces[f] {
		if w != v && m.HasVertex(g, w) {
			return true
		}
	}
	return false
}

// ComponentCount returns the number of edge-connected face components.
func (m *Mesh) ComponentCount() int {
	parent := make([]int, len(m.positions))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	m.ForEachFace(func(_ FaceID, t [3]VertexID) {
		a := find(int(t[0]))
		parent[find(int(t[1]))] = a
		parent[find(int(t[2]))] = a
	})
	roots := make(map[int]struct{})
	for i := range m.positions {
		if !m.vertexDead[i] && len(m.vertFaces[i]) > 0 {
			roots[find(i)] = struct{}{}
		}
	}
	return len(roots)
}

// Area returns the total surface area.
func (m *Mesh) Area() float64 {
	sum := 0.0
	m.ForEachFace(func(f FaceID, _ [3]VertexID) {
		sum += m.FaceArea(f)
	})
	return sum
}

// SignedVolume returns the volume enclosed by the mesh, positive when faces
// are oriented outwards. The value is only meaningful for closed meshes.
func (m *Mesh) SignedVolume() float64 {
	sum := 0.0
	m.ForEachFace(func(f FaceID, _ [3]VertexID) {
		a, b, c := m.FacePoints(f)
		sum += r3.Dot(a, r3.Cross(b, c))
	})
	return sum / 6
}

// Bounds returns the axis-aligned bounding box of the live vertices.
func (m *Mesh) Bounds() (min, max r3.Vec) {
	first := true
	m.ForEachVertex(func(v VertexID) {
		p := m.positions[v]
		if first {
			min, max = p, p
			first = false
			return
		}
		min = r3.Vec{X: minf(min.X, p.X), Y: minf(min.Y, p.Y), Z: minf(min.Z, p.Z)}
		max = r3.Vec{X: maxf(max.X, p.X), Y: maxf(max.Y, p.Y), Z: maxf(max.Z, p.Z)}
	})
	return min, max
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
