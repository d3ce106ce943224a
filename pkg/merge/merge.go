// Package merge stitches the meshes of adjacent volumes-of-interest into one
// mesh by matching their open-edge vertices.
package merge

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"volmesh/pkg/marching"
	"volmesh/pkg/mesh"
)

// DefaultEpsilon is the matching tolerance for seam vertices. Matching
// vertices are produced from the same grid edge, so they coincide exactly.
const DefaultEpsilon = 1e-6

// Options configures a merge.
type Options struct {
	// Epsilon is the largest distance between two matched vertices
	Epsilon float64
}

// DefaultOptions returns the merge defaults.
func DefaultOptions() Options {
	return Options{Epsilon: DefaultEpsilon}
}

// Result describes a finished merge.
type Result struct {
	// SeamVertices lists the target vertices that absorbed a source vertex
	SeamVertices []mesh.VertexID

	// VertexMap maps every source vertex to its vertex in the target
	VertexMap []mesh.VertexID

	// Orphaned counts source open-edge vertices on a seam shared with the
	// target that found no partner. A non-zero value leaves a crack.
	Orphaned int

	// Open is the open-edge set of the merged mesh
	Open marching.OpenEdges
}

// Merge copies source into target. Each source open-edge vertex tagged with
// face f is matched against the target open-edge vertices tagged with
// f.Opposite() at the same position, and matched pairs become one vertex.
// Only faces on a common plane form a seam; a source vertex on such a plane
// without a partner is orphaned.
// Seam vertices are unlocked; the remaining open-edge vertices keep their
// lock state.
func Merge(target *mesh.Mesh, targetOpen marching.OpenEdges, source *mesh.Mesh, sourceOpen marching.OpenEdges, opts Options) (*Result, error) {
	if target == nil || source == nil {
		return nil, errors.New("merge: nil mesh")
	}
	eps := opts.Epsilon
	if eps <= 0 {
		eps = DefaultEpsilon
	}

	shared := make([]mesh.VertexID, source.VertexCap())
	for i := range shared {
		shared[i] = mesh.NoVertex
	}
	// planes of every face tag; open faces of different VOIs can carry the
	// same tag on different planes
	targetPlanes := facePlanes(target, targetOpen, eps)
	sourcePlanes := facePlanes(source, sourceOpen, eps)

	// onSeam holds the source vertices lying on a plane shared with the
	// opposite face of the target
	onSeam := make(map[mesh.VertexID]bool)

	for _, f := range marching.Faces {
		src := sourceOpen[f]
		g := f.Opposite()
		if len(src) == 0 || len(targetPlanes[g]) == 0 {
			continue
		}
		tree := newSeamTree(target, targetOpen[g])
		if tree == nil {
			continue
		}
		axis := f.Axis()
		for _, s := range src {
			if !source.VertexAlive(s) || !targetPlanes[g].contains(coord(source.Position(s), axis), eps) {
				continue
			}
			onSeam[s] = true
			hit, d := tree.Nearest(seamPoint{Pos: source.Position(s)})
			if hit == nil || math.Sqrt(d) > eps {
				continue
			}
			if shared[s] == mesh.NoVertex {
				shared[s] = hit.(seamPoint).ID
			}
		}
	}

	res := &Result{Open: marching.OpenEdges{}}
	for s := range onSeam {
		if shared[s] == mesh.NoVertex {
			res.Orphaned++
		}
	}

	res.VertexMap = target.Append(source, shared)

	seam := make(map[mesh.VertexID]bool)
	for _, t := range shared {
		if t != mesh.NoVertex && !seam[t] {
			seam[t] = true
			res.SeamVertices = append(res.SeamVertices, t)
			target.Unlock(t)
		}
	}
	sort.Slice(res.SeamVertices, func(i, j int) bool { return res.SeamVertices[i] < res.SeamVertices[j] })

	// a matched vertex leaves every face whose plane was stitched, even when
	// it was matched through another face
	for f, list := range targetOpen {
		for _, v := range list {
			if !target.VertexAlive(v) {
				continue
			}
			if seam[v] && sourcePlanes[f.Opposite()].contains(coord(target.Position(v), f.Axis()), eps) {
				continue
			}
			res.Open.Add(f, v)
		}
	}
	for f, list := range sourceOpen {
		for _, s := range list {
			v := res.VertexMap[s]
			if v == mesh.NoVertex {
				continue
			}
			if shared[s] != mesh.NoVertex && targetPlanes[f.Opposite()].contains(coord(source.Position(s), f.Axis()), eps) {
				continue
			}
			res.Open.Add(f, v)
		}
	}

	// seam vertices on a further open face wait for the next merge
	for _, v := range res.Open.Vertices() {
		target.Lock(v)
	}
	return res, nil
}

// planes lists the distinct coordinates of one face tag along its axis.
type planes []float64

func (p planes) contains(c, eps float64) bool {
	for _, q := range p {
		if math.Abs(q-c) <= eps {
			return true
		}
	}
	return false
}

// facePlanes collects the planes the live open-edge vertices of every face
// tag lie on.
func facePlanes(m *mesh.Mesh, open marching.OpenEdges, eps float64) map[marching.Face]planes {
	out := make(map[marching.Face]planes, len(open))
	for f, list := range open {
		var ps planes
		for _, v := range list {
			if !m.VertexAlive(v) {
				continue
			}
			if c := coord(m.Position(v), f.Axis()); !ps.contains(c, eps) {
				ps = append(ps, c)
			}
		}
		out[f] = ps
	}
	return out
}
