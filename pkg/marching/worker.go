// Package marching implements the slab-based marching cubes worker.
//
// A Worker sweeps a volume-of-interest two voxel layers at a time. Voxel
// states, cube codes and edge vertex handles of the active slab live in
// reusable 2D working matrices, so memory grows with the x/y extent of the
// VOI only. Every grid edge receives at most one vertex, which keeps the
// output a watertight manifold instead of a triangle soup. Vertices on the
// open faces of the VOI are recorded so that meshes of adjacent VOIs can be
// stitched by the merge package.
package marching

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"volmesh/internal/models"
	"volmesh/pkg/classify"
	"volmesh/pkg/mesh"
)

// DefaultMaxWorkCells bounds the cells of one working matrix.
const DefaultMaxWorkCells = 1 << 26

// Stats collects counters of one Generate run.
type Stats struct {
	Slabs       int
	Cubes       int
	ActiveCubes int
	Vertices    int
	Faces       int

	// AmbiguousFaces counts ambiguous cube faces resolved by this worker
	AmbiguousFaces int

	// Inconsistencies counts ambiguous faces whose owning cube was evenly
	// split, resolved by the default rule
	Inconsistencies int

	// CentreVertices counts cycle centre vertices inserted by the case table
	CentreVertices int

	OpenEdgeVertices int
}

// Add accumulates the counters of another run.
func (s *Stats) Add(o Stats) {
	s.Slabs += o.Slabs
	s.Cubes += o.Cubes
	s.ActiveCubes += o.ActiveCubes
	s.Vertices += o.Vertices
	s.Faces += o.Faces
	s.AmbiguousFaces += o.AmbiguousFaces
	s.Inconsistencies += o.Inconsistencies
	s.CentreVertices += o.CentreVertices
	s.OpenEdgeVertices += o.OpenEdgeVertices
}

// Option configures a Worker.
type Option func(*Worker)

// WithProgress installs an observer called after each processed slab.
func WithProgress(fn func(done, total int)) Option {
	return func(w *Worker) { w.progress = fn }
}

// WithMaxWorkCells sets the cell budget of one working matrix.
func WithMaxWorkCells(n int) Option {
	return func(w *Worker) { w.maxWorkCells = n }
}

// WithMarkFaces tags every face with the z index of the slab producing it.
func WithMarkFaces(mark bool) Option {
	return func(w *Worker) { w.markFaces = mark }
}

// Worker is the marching cubes slab worker. A Worker is not safe for
// concurrent use; run one Worker per goroutine.
type Worker struct {
	mesh  *mesh.Mesh
	open  OpenEdges
	stats Stats

	voi    VOI
	voiSet bool

	progress     func(done, total int)
	maxWorkCells int
	markFaces    bool

	classifier classify.Classifier
	spacing    models.Spacing

	// cube lower corners run over [x0,x1) x [y0,y1) x [z0,z1)
	x0, x1, y0, y1, z0, z1 int
	nx, ny                 int

	// cube codes of the current and of the previous slab
	codes     []uint8
	downCodes []uint8

	// voxel states of the upper and lower layer of the slab
	stateUp   []uint8
	stateDown []uint8

	// vertex handles of x (h) and y (v) edges in the upper and lower layer
	// and of the z edges between them
	upH, upV     []mesh.VertexID
	downH, downV []mesh.VertexID
	middle       []mesh.VertexID

	workX, workY int
}

// NewWorker creates a worker.
func NewWorker(opts ...Option) *Worker {
	w := &Worker{
		mesh:         mesh.New(),
		open:         OpenEdges{},
		maxWorkCells: DefaultMaxWorkCells,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Mesh returns the mesh produced by the last Generate call.
func (w *Worker) Mesh() *mesh.Mesh { return w.mesh }

// OpenEdges returns the open-edge vertex set of the last Generate call.
func (w *Worker) OpenEdges() OpenEdges { return w.open }

// Stats returns the counters of the last Generate call.
func (w *Worker) Stats() Stats { return w.stats }

// SetVolumeOfInterest restricts the sweep to a VOI. Without it the whole
// volume is processed.
func (w *Worker) SetVolumeOfInterest(voi VOI) {
	w.voi = voi
	w.voiSet = true
}

// VolumeOfInterest returns the configured VOI.
func (w *Worker) VolumeOfInterest() VOI { return w.voi }

// Generate runs the sweep and replaces the worker's mesh and open edges.
func (w *Worker) Generate(c classify.Classifier) error {
	if c == nil {
		return errors.Wrap(ErrConfiguration, "nil classifier")
	}
	dims := c.Dimensions()
	voi := w.voi
	if !w.voiSet {
		voi = FullVolume(dims)
	}
	if err := voi.Validate(dims); err != nil {
		return err
	}

	w.classifier = c
	w.spacing = c.VoxelSize()
	w.setCubeRange(voi, dims)

	cells := (w.nx + 1) * (w.ny + 1)
	if w.nx+1 > math.MaxInt32/(w.ny+1) || cells > w.maxWorkCells {
		return errors.Wrapf(ErrResourceExhaustion, "working matrices need %dx%d cells, budget is %d", w.nx+1, w.ny+1, w.maxWorkCells)
	}
	w.allocWorkMem(w.nx, w.ny)

	w.mesh = mesh.New()
	w.open = OpenEdges{}
	w.stats = Stats{}

	total := w.z1 - w.z0
	w.classifyLayer(w.stateUp, w.z0)
	for z := w.z0; z < w.z1; z++ {
		w.stateUp, w.stateDown = w.stateDown, w.stateUp
		w.classifyLayer(w.stateUp, z+1)

		w.upH, w.downH = w.downH, w.upH
		w.upV, w.downV = w.downV, w.upV
		if z == w.z0 {
			resetHandles(w.downH)
			resetHandles(w.downV)
		}
		resetHandles(w.upH)
		resetHandles(w.upV)
		resetHandles(w.middle)

		w.makeCubeCodes()
		w.triangulateSlab(z)
		w.updateOpenEdgeVertices(z)

		w.codes, w.downCodes = w.downCodes, w.codes
		w.stats.Slabs++
		if w.progress != nil {
			w.progress(z-w.z0+1, total)
		}
	}

	w.stats.Vertices = w.mesh.VertexCount()
	w.stats.Faces = w.mesh.FaceCount()
	w.stats.OpenEdgeVertices = w.open.Len()
	w.lockOpenEdges()
	return nil
}

// setCubeRange maps the VOI to cube lower corners. Faces of the VOI lying
// on the outer faces of the volume get one halo cube so the surface closes
// there; other faces stay open for stitching.
func (w *Worker) setCubeRange(voi VOI, dims models.Size3) {
	w.voi = voi
	lo := func(start int) int {
		if start == 0 {
			return -1
		}
		return start
	}
	hi := func(end, size int) int {
		if end == size-1 {
			return end + 1
		}
		return end
	}
	w.x0, w.x1 = lo(voi.StartX), hi(voi.EndX, dims.X)
	w.y0, w.y1 = lo(voi.StartY), hi(voi.EndY, dims.Y)
	w.z0, w.z1 = lo(voi.StartZ), hi(voi.EndZ, dims.Z)
	w.nx = w.x1 - w.x0
	w.ny = w.y1 - w.y0
}

// allocWorkMem (re)allocates the working matrices when the extent changes.
func (w *Worker) allocWorkMem(nx, ny int) {
	if nx == w.workX && ny == w.workY && w.codes != nil {
		return
	}
	cubes := nx * ny
	nodes := (nx + 1) * (ny + 1)
	w.codes = make([]uint8, cubes)
	w.downCodes = make([]uint8, cubes)
	w.stateUp = make([]uint8, nodes)
	w.stateDown = make([]uint8, nodes)
	w.upH = make([]mesh.VertexID, nodes)
	w.upV = make([]mesh.VertexID, nodes)
	w.downH = make([]mesh.VertexID, nodes)
	w.downV = make([]mesh.VertexID, nodes)
	w.middle = make([]mesh.VertexID, nodes)
	w.workX, w.workY = nx, ny
}

func resetHandles(m []mesh.VertexID) {
	for i := range m {
		m[i] = mesh.NoVertex
	}
}

// classifyLayer stores the voxel states of layer z for the cube range.
func (w *Worker) classifyLayer(state []uint8, z int) {
	stride := w.nx + 1
	for j := 0; j <= w.ny; j++ {
		y := w.y0 + j
		for i := 0; i <= w.nx; i++ {
			state[j*stride+i] = w.classifier.Classify(w.x0+i, y, z)
		}
	}
}

// makeCubeCodes computes the codes of every cube of the slab from the two
// state layers.
func (w *Worker) makeCubeCodes() {
	stride := w.nx + 1
	for j := 0; j < w.ny; j++ {
		for i := 0; i < w.nx; i++ {
			k := j*stride + i
			code := w.stateDown[k] |
				w.stateDown[k+1]<<1 |
				w.stateDown[k+stride]<<2 |
				w.stateDown[k+stride+1]<<3 |
				w.stateUp[k]<<4 |
				w.stateUp[k+1]<<5 |
				w.stateUp[k+stride]<<6 |
				w.stateUp[k+stride+1]<<7
			w.codes[j*w.nx+i] = code
		}
	}
	w.stats.Cubes += w.nx * w.ny
}

// cubeCodeAt classifies the corners of an arbitrary cube. It is used for
// halo cubes just outside the cube range.
func (w *Worker) cubeCodeAt(x, y, z int) uint8 {
	var code uint8
	for c := 0; c < 8; c++ {
		code |= w.classifier.Classify(x+c&1, y+(c>>1)&1, z+(c>>2)&1) << c
	}
	return code
}

// cubeCodeLeft, cubeCodeFront and cubeCodeDown return the code of the
// neighbouring cube in -x, -y and -z direction, classifying the halo when
// the neighbour lies outside the cube range.
func (w *Worker) cubeCodeLeft(i, j, z int) uint8 {
	if i > 0 {
		return w.codes[j*w.nx+i-1]
	}
	return w.cubeCodeAt(w.x0-1, w.y0+j, z)
}

func (w *Worker) cubeCodeFront(i, j, z int) uint8 {
	if j > 0 {
		return w.codes[(j-1)*w.nx+i]
	}
	return w.cubeCodeAt(w.x0+i, w.y0-1, z)
}

func (w *Worker) cubeCodeDown(i, j, z int) uint8 {
	if z > w.z0 {
		return w.downCodes[j*w.nx+i]
	}
	return w.cubeCodeAt(w.x0+i, w.y0+j, z-1)
}

// triangulateSlab emits the triangles of every cube in slab z.
func (w *Worker) triangulateSlab(z int) {
	for j := 0; j < w.ny; j++ {
		for i := 0; i < w.nx; i++ {
			code := w.codes[j*w.nx+i]
			if code == 0 || code == 0xff {
				continue
			}
			w.stats.ActiveCubes++
			connect := w.holeFilling(i, j, z, code)
			w.makeTri(i, j, z, code, connect)
		}
	}
}

// holeFilling resolves the ambiguous faces of a cube. Each face is decided
// from the code of the cube on its lower side, which for the -x, -y and -z
// faces is the left, front and down neighbour. Both cubes sharing a face
// thus pick the same diagonal and no crack opens between them.
func (w *Worker) holeFilling(i, j, z int, code uint8) uint8 {
	amb := ambiguousMask[code]
	if amb == 0 {
		return 0
	}
	var connect uint8
	for _, f := range Faces {
		if amb&(1<<f) == 0 {
			continue
		}
		owner := code
		counted := true
		switch f {
		case FaceNegX:
			owner = w.cubeCodeLeft(i, j, z)
			counted = i == 0
		case FaceNegY:
			owner = w.cubeCodeFront(i, j, z)
			counted = j == 0
		case FaceNegZ:
			owner = w.cubeCodeDown(i, j, z)
			counted = z == w.z0
		}
		join, tie := joinsInside(owner)
		if join {
			connect |= 1 << f
		}
		if counted {
			w.stats.AmbiguousFaces++
			if tie {
				w.stats.Inconsistencies++
			}
		}
	}
	return connect
}

// makeTri creates or reuses the edge vertices of a cube and emits its
// triangles.
func (w *Worker) makeTri(i, j, z int, code, connect uint8) {
	cc := &caseTable[code][connect]
	var slots [centreSlot + 4]mesh.VertexID
	for _, e := range cc.edges {
		slot := w.cubeEdgeNode(int(e), i, j)
		if *slot == mesh.NoVertex {
			*slot = w.mesh.AddVertex(w.edgePoint(int(e), w.x0+i, w.y0+j, z))
		}
		slots[e] = *slot
	}
	for k, cycle := range cc.centres {
		var sum r3.Vec
		for _, e := range cycle {
			sum = r3.Add(sum, w.mesh.Position(slots[e]))
		}
		slots[centreSlot+k] = w.mesh.AddVertex(r3.Scale(1/float64(len(cycle)), sum))
		w.stats.CentreVertices++
	}
	for _, t := range cc.tris {
		f := w.mesh.AddFace(slots[t[0]], slots[t[1]], slots[t[2]])
		if w.markFaces {
			w.mesh.SetMark(f, int32(z))
		}
	}
}

// cubeEdgeNode returns the working matrix slot holding the vertex of a cube
// edge.
func (w *Worker) cubeEdgeNode(e, i, j int) *mesh.VertexID {
	s := w.nx + 1
	switch e {
	case 0:
		return &w.downH[j*s+i]
	case 1:
		return &w.downH[(j+1)*s+i]
	case 2:
		return &w.upH[j*s+i]
	case 3:
		return &w.upH[(j+1)*s+i]
	case 4:
		return &w.downV[j*s+i]
	case 5:
		return &w.downV[j*s+i+1]
	case 6:
		return &w.upV[j*s+i]
	case 7:
		return &w.upV[j*s+i+1]
	case 8:
		return &w.middle[j*s+i]
	case 9:
		return &w.middle[j*s+i+1]
	case 10:
		return &w.middle[(j+1)*s+i]
	default:
		return &w.middle[(j+1)*s+i+1]
	}
}

// edgePoint returns the physical position of the midpoint of a cube edge.
func (w *Worker) edgePoint(e, x, y, z int) r3.Vec {
	a, b := cubeEdges[e][0], cubeEdges[e][1]
	gx := float64(2*x+a&1+b&1) / 2
	gy := float64(2*y+(a>>1)&1+(b>>1)&1) / 2
	gz := float64(2*z+(a>>2)&1+(b>>2)&1) / 2
	return r3.Vec{X: gx * w.spacing.X, Y: gy * w.spacing.Y, Z: gz * w.spacing.Z}
}

// updateOpenEdgeVertices records the vertices of slab z that lie on a face
// of the cube range. The lower layer is only recorded for the first slab,
// later slabs inherit it from the previous upper layer.
func (w *Worker) updateOpenEdgeVertices(z int) {
	if z == w.z0 {
		w.recordLayer(w.downH, w.downV, z)
	}
	w.recordLayer(w.upH, w.upV, z+1)

	s := w.nx + 1
	for j := 0; j <= w.ny; j++ {
		for i := 0; i <= w.nx; i++ {
			v := w.middle[j*s+i]
			if v == mesh.NoVertex {
				continue
			}
			w.recordSides(v, i, j, true, true)
		}
	}
}

func (w *Worker) recordLayer(h, v []mesh.VertexID, layer int) {
	s := w.nx + 1
	var zFace Face = -1
	switch layer {
	case w.z0:
		zFace = FaceNegZ
	case w.z1:
		zFace = FacePosZ
	}
	for j := 0; j <= w.ny; j++ {
		for i := 0; i <= w.nx; i++ {
			if hv := h[j*s+i]; hv != mesh.NoVertex {
				w.recordSides(hv, i, j, false, true)
				if zFace >= 0 {
					w.open.Add(zFace, hv)
				}
			}
			if vv := v[j*s+i]; vv != mesh.NoVertex {
				w.recordSides(vv, i, j, true, false)
				if zFace >= 0 {
					w.open.Add(zFace, vv)
				}
			}
		}
	}
}

// recordSides records a vertex at matrix node (i,j) on the x and/or y faces
// of the cube range it lies on.
func (w *Worker) recordSides(v mesh.VertexID, i, j int, onX, onY bool) {
	if onX {
		if i == 0 {
			w.open.Add(FaceNegX, v)
		} else if i == w.nx {
			w.open.Add(FacePosX, v)
		}
	}
	if onY {
		if j == 0 {
			w.open.Add(FaceNegY, v)
		} else if j == w.ny {
			w.open.Add(FacePosY, v)
		}
	}
}

// lockOpenEdges protects open-edge vertices from the quality pass.
func (w *Worker) lockOpenEdges() {
	for _, list := range w.open {
		for _, v := range list {
			w.mesh.Lock(v)
		}
	}
}

// UnlockOpenEdges releases the lock on every open-edge vertex, e.g. after the
// mesh was merged and no further stitching is planned.
func (w *Worker) UnlockOpenEdges() {
	for _, list := range w.open {
		for _, v := range list {
			w.mesh.Unlock(v)
		}
	}
}
