package merge

import (
	"math"
	"testing"

	"volmesh/internal/models"
	"volmesh/pkg/classify"
	"volmesh/pkg/marching"
	"volmesh/pkg/mesh"
)

func createSphere(size int, radius float64) *classify.Func {
	c := float64(size-1) / 2
	return &classify.Func{
		Size: models.Size3{X: size, Y: size, Z: size},
		Inside: func(x, y, z int) bool {
			dx, dy, dz := float64(x)-c, float64(y)-c, float64(z)-c
			return dx*dx+dy*dy+dz*dz <= radius*radius
		},
	}
}

// createTorus returns a torus around the z axis, which crosses every z seam twice
func createTorus(size int, major, minor float64) *classify.Func {
	c := float64(size-1) / 2
	return &classify.Func{
		Size: models.Size3{X: size, Y: size, Z: size},
		Inside: func(x, y, z int) bool {
			dx, dy, dz := float64(x)-c, float64(y)-c, float64(z)-c
			q := math.Hypot(dx, dy) - major
			return q*q+dz*dz <= minor*minor
		},
	}
}

func generate(t *testing.T, c classify.Classifier, voi marching.VOI) (*mesh.Mesh, marching.OpenEdges) {
	t.Helper()
	w := marching.NewWorker()
	w.SetVolumeOfInterest(voi)
	if err := w.Generate(c); err != nil {
		t.Fatalf("Generate %+v failed: %v", voi, err)
	}
	return w.Mesh(), w.OpenEdges()
}

func TestMergeHalves(t *testing.T) {
	c := createSphere(11, 4)
	direct, _ := generate(t, c, marching.VOI{EndX: 10, EndY: 10, EndZ: 10})

	lower, lowerOpen := generate(t, c, marching.VOI{EndX: 10, EndY: 10, EndZ: 5})
	upper, upperOpen := generate(t, c, marching.VOI{StartZ: 5, EndX: 10, EndY: 10, EndZ: 10})

	res, err := Merge(lower, lowerOpen, upper, upperOpen, DefaultOptions())
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if res.Orphaned != 0 {
		t.Errorf("Expected no orphaned vertices, got %d", res.Orphaned)
	}
	if res.Open.Len() != 0 {
		t.Errorf("Expected the merged mesh to have no open edges, got %d", res.Open.Len())
	}
	if len(res.SeamVertices) != len(lowerOpen.Vertices()) {
		t.Errorf("Expected %d seam vertices, got %d", len(lowerOpen.Vertices()), len(res.SeamVertices))
	}
	if lower.VertexCount() != direct.VertexCount() || lower.FaceCount() != direct.FaceCount() {
		t.Errorf("Merged mesh has %d vertices and %d faces, direct run %d and %d",
			lower.VertexCount(), lower.FaceCount(), direct.VertexCount(), direct.FaceCount())
	}
	if !lower.IsClosed() || !lower.IsManifold() {
		t.Error("Merged mesh should be closed and manifold")
	}
	if lower.EulerCharacteristic() != direct.EulerCharacteristic() {
		t.Errorf("Euler characteristic %d, direct run %d", lower.EulerCharacteristic(), direct.EulerCharacteristic())
	}
	if math.Abs(lower.SignedVolume()-direct.SignedVolume()) > 1e-9 {
		t.Errorf("Merged volume %f, direct run %f", lower.SignedVolume(), direct.SignedVolume())
	}
	for _, v := range res.SeamVertices {
		if lower.Locked(v) {
			t.Errorf("Seam vertex %d is still locked", v)
		}
	}
}

func TestMergeSequence(t *testing.T) {
	c := createTorus(24, 7, 3)
	direct, _ := generate(t, c, marching.FullVolume(c.Dimensions()))

	bounds := [][2]int{{0, 6}, {6, 11}, {11, 17}, {17, 23}}
	target, open := generate(t, c, marching.VOI{EndX: 23, EndY: 23, StartZ: bounds[0][0], EndZ: bounds[0][1]})
	for _, b := range bounds[1:] {
		source, sourceOpen := generate(t, c, marching.VOI{EndX: 23, EndY: 23, StartZ: b[0], EndZ: b[1]})
		res, err := Merge(target, open, source, sourceOpen, DefaultOptions())
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		if res.Orphaned != 0 {
			t.Errorf("Chunk %v left %d orphaned vertices", b, res.Orphaned)
		}
		open = res.Open
	}

	if open.Len() != 0 {
		t.Errorf("Expected no open edges after the last chunk, got %d", open.Len())
	}
	if !target.IsClosed() || !target.IsManifold() {
		t.Fatal("Merged torus should be closed and manifold")
	}
	if chi := target.EulerCharacteristic(); chi != direct.EulerCharacteristic() {
		t.Errorf("Euler characteristic %d, direct run %d", chi, direct.EulerCharacteristic())
	}
	if target.FaceCount() != direct.FaceCount() {
		t.Errorf("Merged torus has %d faces, direct run %d", target.FaceCount(), direct.FaceCount())
	}
}

func TestMergeGrid(t *testing.T) {
	c := createSphere(16, 6)
	var vois []marching.VOI
	for _, z := range [][2]int{{0, 7}, {7, 15}} {
		for _, y := range [][2]int{{0, 8}, {8, 15}} {
			vois = append(vois, marching.VOI{EndX: 15, StartY: y[0], EndY: y[1], StartZ: z[0], EndZ: z[1]})
		}
	}

	target, open := generate(t, c, vois[0])
	for _, voi := range vois[1:] {
		source, sourceOpen := generate(t, c, voi)
		res, err := Merge(target, open, source, sourceOpen, DefaultOptions())
		if err != nil {
			t.Fatalf("Merge failed: %v", err)
		}
		if res.Orphaned != 0 {
			t.Errorf("Chunk %+v left %d orphaned vertices", voi, res.Orphaned)
		}
		open = res.Open
	}
	if !target.IsClosed() || !target.IsManifold() || target.EulerCharacteristic() != 2 {
		t.Error("Mesh merged from a 2x2 grid should be a closed sphere")
	}
	if open.Len() != 0 {
		t.Errorf("Expected no open edges, got %d", open.Len())
	}
}

// distinctOpen counts the distinct vertices tagged with each face.
func distinctOpen(open marching.OpenEdges) map[marching.Face]int {
	out := make(map[marching.Face]int)
	for f, list := range open {
		out[f] = len(marching.OpenEdges{f: list}.Vertices())
	}
	return out
}

func TestMergeInnerVolume(t *testing.T) {
	// the sphere crosses every face of the VOI, so the halves carry open
	// -x/+x faces on planes no seam may join
	c := createSphere(12, 5)
	inner := marching.VOI{StartX: 2, StartY: 2, StartZ: 2, EndX: 9, EndY: 9, EndZ: 9}
	direct, directOpen := generate(t, c, inner)

	lowerVOI, upperVOI := inner, inner
	lowerVOI.EndZ, upperVOI.StartZ = 5, 5
	lower, lowerOpen := generate(t, c, lowerVOI)
	upper, upperOpen := generate(t, c, upperVOI)

	res, err := Merge(lower, lowerOpen, upper, upperOpen, DefaultOptions())
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if res.Orphaned != 0 {
		t.Errorf("Expected no orphaned vertices, got %d", res.Orphaned)
	}
	if lower.VertexCount() != direct.VertexCount() || lower.FaceCount() != direct.FaceCount() {
		t.Errorf("Merged mesh has %d vertices and %d faces, direct run %d and %d",
			lower.VertexCount(), lower.FaceCount(), direct.VertexCount(), direct.FaceCount())
	}
	if got, want := lower.BoundaryEdgeCount(), direct.BoundaryEdgeCount(); got != want {
		t.Errorf("Merged mesh has %d boundary edges, direct run %d", got, want)
	}

	got, want := distinctOpen(res.Open), distinctOpen(directOpen)
	for _, f := range marching.Faces {
		if got[f] != want[f] {
			t.Errorf("Face %s keeps %d open vertices, direct run %d", f, got[f], want[f])
		}
	}
	for _, v := range res.Open.Vertices() {
		if !lower.Locked(v) {
			t.Errorf("Open vertex %d is not locked", v)
		}
	}
}

func TestMergeOrphans(t *testing.T) {
	lower, lowerOpen := generate(t, createSphere(11, 4), marching.VOI{EndX: 10, EndY: 10, EndZ: 5})
	upper, upperOpen := generate(t, createSphere(11, 2.5), marching.VOI{StartZ: 5, EndX: 10, EndY: 10, EndZ: 10})

	res, err := Merge(lower, lowerOpen, upper, upperOpen, DefaultOptions())
	if err != nil {
		t.Fatalf("Mismatched chunks must not fail: %v", err)
	}
	if res.Orphaned == 0 {
		t.Error("Expected orphaned vertices for mismatched chunks")
	}
	if lower.IsClosed() {
		t.Error("Mismatched merge should leave a crack")
	}
	if res.Open.Len() == 0 {
		t.Error("Unmatched vertices should stay in the open-edge set")
	}
}

func TestMergeDisjoint(t *testing.T) {
	lower, lowerOpen := generate(t, createSphere(11, 4), marching.VOI{EndX: 10, EndY: 10, EndZ: 10})
	other, otherOpen := generate(t, createSphere(11, 3), marching.VOI{EndX: 10, EndY: 10, EndZ: 10})
	faces := lower.FaceCount() + other.FaceCount()

	res, err := Merge(lower, lowerOpen, other, otherOpen, DefaultOptions())
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if res.Orphaned != 0 || len(res.SeamVertices) != 0 {
		t.Errorf("Closed meshes share no seam: %+v", res)
	}
	if lower.FaceCount() != faces || lower.ComponentCount() != 2 {
		t.Errorf("Expected both shells to be copied, got %d faces in %d components", lower.FaceCount(), lower.ComponentCount())
	}
}

func TestMergeNil(t *testing.T) {
	if _, err := Merge(nil, nil, mesh.New(), nil, DefaultOptions()); err == nil {
		t.Error("Expected an error for a nil target")
	}
}
