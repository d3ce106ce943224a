package marching

import "math/bits"

// Cube corner i sits at (i&1, i>>1&1, i>>2&1) relative to the cube origin;
// bit i of a cube code is set when corner i is inside.

// cubeEdges lists the corner pairs of the 12 cube edges: four x edges,
// four y edges and four z edges.
var cubeEdges = [12][2]int{
	{0, 1}, {2, 3}, {4, 5}, {6, 7},
	{0, 2}, {1, 3}, {4, 6}, {5, 7},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// cubeFaces lists the corners of each face counter-clockwise seen from
// outside the cube.
var cubeFaces = [6][4]int{
	FaceNegX: {0, 4, 6, 2},
	FacePosX: {1, 3, 7, 5},
	FaceNegY: {0, 1, 5, 4},
	FacePosY: {2, 6, 7, 3},
	FaceNegZ: {0, 2, 3, 1},
	FacePosZ: {4, 5, 7, 6},
}

// centreSlot is the first triangle slot that refers to a cycle centre
// vertex instead of a cube edge.
const centreSlot = 12

// cubeCase is the triangulation of one cube code under one choice of
// ambiguous face resolutions.
type cubeCase struct {
	// tris holds triangle slots, 0..11 are cube edges and centreSlot+k is
	// the centre vertex of centres[k]
	tris [][3]int8

	// centres lists cycles that are fanned around an inserted centre vertex
	centres [][]int8

	// edges lists the cube edges carrying a vertex
	edges []int8
}

var (
	edgeIndex     [8][8]int8
	edgeFaces     [12][2]Face
	ambiguousMask [256]uint8
	caseTable     = buildCaseTable()
)

// buildLookup fills the edge and face lookups. It runs once, from the
// caseTable initialiser.
func buildLookup() {
	for a := range edgeIndex {
		for b := range edgeIndex[a] {
			edgeIndex[a][b] = -1
		}
	}
	for e, c := range cubeEdges {
		edgeIndex[c[0]][c[1]] = int8(e)
		edgeIndex[c[1]][c[0]] = int8(e)
	}
	var count [12]int
	for f, q := range cubeFaces {
		for i := 0; i < 4; i++ {
			e := edgeIndex[q[i]][q[(i+1)%4]]
			edgeFaces[e][count[e]] = Face(f)
			count[e]++
		}
	}
	for code := 0; code < 256; code++ {
		var mask uint8
		for f := range cubeFaces {
			if faceAmbiguous(uint8(code), Face(f)) {
				mask |= 1 << f
			}
		}
		ambiguousMask[code] = mask
	}
}

// faceAmbiguous reports whether the face has its inside corners on one
// diagonal and its outside corners on the other.
func faceAmbiguous(code uint8, f Face) bool {
	q := cubeFaces[f]
	in := func(c int) bool { return code&(1<<c) != 0 }
	return in(q[0]) == in(q[2]) && in(q[1]) == in(q[3]) && in(q[0]) != in(q[1])
}

func buildCaseTable() *[256][64]cubeCase {
	buildLookup()
	table := new([256][64]cubeCase)
	for code := 0; code < 256; code++ {
		amb := ambiguousMask[code]
		for connect := 0; connect < 64; connect++ {
			// resolutions of non ambiguous faces do not matter, share them
			if uint8(connect)&^amb != 0 {
				table[code][connect] = table[code][uint8(connect)&amb]
				continue
			}
			table[code][connect] = buildCase(uint8(code), uint8(connect))
		}
	}
	return table
}

// buildCase derives the surface of one cube from the contour segments on its
// six faces. On each face the segments run from the crossing where the
// counter-clockwise walk enters the inside region to the crossing where it
// leaves it, which orients the surface outwards. An ambiguous face either
// separates its two inside corners (connect bit clear) or joins them.
func buildCase(code uint8, connect uint8) cubeCase {
	var next [12]int8
	for i := range next {
		next[i] = -1
	}
	in := func(c int) bool { return code&(1<<c) != 0 }

	for f, q := range cubeFaces {
		var edges [4]int8
		var kind [4]int8
		crossings := 0
		for i := 0; i < 4; i++ {
			a, b := q[i], q[(i+1)%4]
			edges[i] = edgeIndex[a][b]
			switch {
			case !in(a) && in(b):
				kind[i] = 1
				crossings++
			case in(a) && !in(b):
				kind[i] = -1
				crossings++
			}
		}
		switch crossings {
		case 2:
			entry, exit := -1, -1
			for i := 0; i < 4; i++ {
				if kind[i] == 1 {
					entry = i
				} else if kind[i] == -1 {
					exit = i
				}
			}
			next[edges[entry]] = edges[exit]
		case 4:
			join := connect&(1<<f) != 0
			for i := 0; i < 4; i++ {
				if kind[i] != 1 {
					continue
				}
				j := (i + 1) % 4
				if join {
					j = (i + 3) % 4
				}
				next[edges[i]] = edges[j]
			}
		}
	}

	var c cubeCase
	var visited [12]bool
	for e := 0; e < 12; e++ {
		if next[e] < 0 {
			continue
		}
		c.edges = append(c.edges, int8(e))
		if visited[e] {
			continue
		}
		var cycle []int8
		for k := int8(e); !visited[k]; k = next[k] {
			visited[k] = true
			cycle = append(cycle, k)
		}
		c.addCycle(cycle)
	}
	return c
}

// addCycle triangulates a closed cycle of edge vertices. A fan is used when
// some apex has no diagonal lying on a cube face, since such a diagonal
// could be produced by the neighbouring cube too; otherwise the cycle is
// fanned around a private centre vertex.
func (c *cubeCase) addCycle(cycle []int8) {
	n := len(cycle)
	if n == 3 {
		c.tris = append(c.tris, [3]int8{cycle[0], cycle[1], cycle[2]})
		return
	}
	for s := 0; s < n; s++ {
		if !fanApexValid(cycle, s) {
			continue
		}
		for i := 1; i < n-1; i++ {
			c.tris = append(c.tris, [3]int8{cycle[s], cycle[(s+i)%n], cycle[(s+i+1)%n]})
		}
		return
	}
	slot := int8(centreSlot + len(c.centres))
	c.centres = append(c.centres, cycle)
	for i := 0; i < n; i++ {
		c.tris = append(c.tris, [3]int8{slot, cycle[i], cycle[(i+1)%n]})
	}
}

func fanApexValid(cycle []int8, s int) bool {
	n := len(cycle)
	for t := 2; t < n-1; t++ {
		if edgesShareFace(cycle[s], cycle[(s+t)%n]) {
			return false
		}
	}
	return true
}

func edgesShareFace(a, b int8) bool {
	fa, fb := edgeFaces[a], edgeFaces[b]
	return fa[0] == fb[0] || fa[0] == fb[1] || fa[1] == fb[0] || fa[1] == fb[1]
}

// NodeCount returns the number of surface vertices a cube code places on
// the cube edges.
func NodeCount(code uint8) int {
	n := 0
	for _, e := range cubeEdges {
		if (code>>e[0])&1 != (code>>e[1])&1 {
			n++
		}
	}
	return n
}

// joinsInside is the ambiguous face rule: the inside corners of an
// ambiguous face are joined when the cube owning the face is mostly inside.
// A cube with exactly four inside corners takes the default and separates
// them; tie reports that case.
func joinsInside(owner uint8) (join bool, tie bool) {
	n := bits.OnesCount8(owner)
	return n > 4, n == 4
}
