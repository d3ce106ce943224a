package marching

import (
	"sort"

	"volmesh/pkg/mesh"
)

// Face tags the side of a volume-of-interest (or of a cube) a vertex lies on.
type Face int

const (
	FaceNegX Face = iota
	FacePosX
	FaceNegY
	FacePosY
	FaceNegZ
	FacePosZ
)

// Faces lists every face tag in order.
var Faces = [6]Face{FaceNegX, FacePosX, FaceNegY, FacePosY, FaceNegZ, FacePosZ}

// Opposite returns the face an adjacent volume-of-interest shares with f.
func (f Face) Opposite() Face {
	return f ^ 1
}

// Axis returns 0, 1 or 2 for the x, y or z axis.
func (f Face) Axis() int {
	return int(f) / 2
}

func (f Face) String() string {
	switch f {
	case FaceNegX:
		return "-x"
	case FacePosX:
		return "+x"
	case FaceNegY:
		return "-y"
	case FacePosY:
		return "+y"
	case FaceNegZ:
		return "-z"
	case FacePosZ:
		return "+z"
	}
	return "?"
}

// OpenEdges maps a face tag to the vertices lying on that face of the
// processed volume-of-interest. A vertex on an edge of the VOI box is
// listed under both faces.
type OpenEdges map[Face][]mesh.VertexID

// Add records a vertex on a face.
func (o OpenEdges) Add(f Face, v mesh.VertexID) {
	o[f] = append(o[f], v)
}

// Len returns the number of (vertex, face) pairs.
func (o OpenEdges) Len() int {
	n := 0
	for _, list := range o {
		n += len(list)
	}
	return n
}

// Vertices returns the distinct vertices of the set in ascending order.
func (o OpenEdges) Vertices() []mesh.VertexID {
	seen := make(map[mesh.VertexID]struct{}, o.Len())
	out := make([]mesh.VertexID, 0, o.Len())
	for _, list := range o {
		for _, v := range list {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Remap rewrites the vertex handles after mesh compaction, dropping
// vertices that no longer exist.
func (o OpenEdges) Remap(remap []mesh.VertexID) OpenEdges {
	out := make(OpenEdges, len(o))
	for f, list := range o {
		for _, v := range list {
			if int(v) < len(remap) && remap[v] != mesh.NoVertex {
				out[f] = append(out[f], remap[v])
			}
		}
	}
	return out
}

// Clone returns an independent copy of the set.
func (o OpenEdges) Clone() OpenEdges {
	out := make(OpenEdges, len(o))
	for f, list := range o {
		out[f] = append([]mesh.VertexID(nil), list...)
	}
	return out
}
