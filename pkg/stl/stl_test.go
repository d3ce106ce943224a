package stl

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"volmesh/internal/models"
	"volmesh/pkg/classify"
	"volmesh/pkg/marching"
	"volmesh/pkg/mesh"
)

func sphereMesh(t testing.TB, size int, radius float64, spacing models.Spacing) *mesh.Mesh {
	c := float64(size-1) / 2
	cls := &classify.Func{
		Size:    models.Size3{X: size, Y: size, Z: size},
		Spacing: spacing,
		Inside: func(x, y, z int) bool {
			dx, dy, dz := float64(x)-c, float64(y)-c, float64(z)-c
			return dx*dx+dy*dy+dz*dz <= radius*radius
		},
	}
	w := marching.NewWorker()
	if err := w.Generate(cls); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return w.Mesh()
}

// TestFromMesh verifies that triangle normals of a sphere point outward
func TestFromMesh(t *testing.T) {
	size := 20
	m := sphereMesh(t, size, 5, models.UnitSpacing)
	triangles := FromMesh(m)
	if len(triangles) != m.FaceCount() {
		t.Fatalf("Expected %d triangles, got %d", m.FaceCount(), len(triangles))
	}

	center := float32(size-1) / 2
	for i, tr := range triangles {
		c := tr.Vertex1.Add(tr.Vertex2).Add(tr.Vertex3).Mul(1.0 / 3)
		dir := c.Sub(mgl32.Vec3{center, center, center}).Normalize()
		// voxel staircases tilt normals, so the threshold is generous
		if dot := dir.Dot(tr.Normal); dot < -0.5 {
			t.Errorf("Triangle %d normal points inward, dot product: %f", i, dot)
		}
		if l := tr.Normal.Len(); math.Abs(float64(l)-1) > 1e-5 {
			t.Errorf("Triangle %d normal has length %f", i, l)
		}
	}
}

// TestScale verifies that voxel spacing reaches the triangles
func TestScale(t *testing.T) {
	unit := FromMesh(sphereMesh(t, 12, 3, models.UnitSpacing))
	scaled := FromMesh(sphereMesh(t, 12, 3, models.Spacing{X: 2.5, Y: 1.5, Z: 3}))
	if len(unit) != len(scaled) {
		t.Fatalf("Spacing changed the triangle count: %d and %d", len(unit), len(scaled))
	}
	umin, umax := Bounds(unit)
	smin, smax := Bounds(scaled)
	for k, s := range []float32{2.5, 1.5, 3} {
		if math.Abs(float64(smin[k]-umin[k]*s)) > 1e-4 || math.Abs(float64(smax[k]-umax[k]*s)) > 1e-4 {
			t.Errorf("Axis %d not scaled by %f: [%f,%f] vs [%f,%f]", k, s, smin[k], smax[k], umin[k], umax[k])
		}
	}
}

func TestTransform(t *testing.T) {
	triangles := []Triangle{{
		Vertex1: mgl32.Vec3{0, 0, 0},
		Vertex2: mgl32.Vec3{1, 0, 0},
		Vertex3: mgl32.Vec3{0, 1, 0},
	}}
	Transform(triangles, mgl32.Translate3D(1, 2, 3).Mul4(mgl32.HomogRotate3DX(math.Pi)))

	tr := triangles[0]
	if !tr.Vertex1.ApproxEqualThreshold(mgl32.Vec3{1, 2, 3}, 1e-5) {
		t.Errorf("Vertex1 moved to %v", tr.Vertex1)
	}
	if !tr.Normal.ApproxEqualThreshold(mgl32.Vec3{0, 0, -1}, 1e-5) {
		t.Errorf("Expected a flipped normal, got %v", tr.Normal)
	}
}

// TestSaveToSTL verifies that the STL file can be written and read back
func TestSaveToSTL(t *testing.T) {
	triangles := []Triangle{
		{
			Normal:  mgl32.Vec3{0, 0, 1},
			Vertex1: mgl32.Vec3{0, 0, 0},
			Vertex2: mgl32.Vec3{1, 0, 0},
			Vertex3: mgl32.Vec3{0, 1, 0},
		},
		{
			Normal:  mgl32.Vec3{0, 0, -1},
			Vertex1: mgl32.Vec3{0, 0, 0},
			Vertex2: mgl32.Vec3{0, 1, 0},
			Vertex3: mgl32.Vec3{1, 0, 0},
		},
	}
	path := filepath.Join(t.TempDir(), "test.stl")
	if err := SaveToSTL(path, triangles); err != nil {
		t.Fatalf("Failed to save STL: %v", err)
	}

	// STL header: 80 bytes, count: 4 bytes, 50 bytes per triangle
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat output file: %v", err)
	}
	if want := int64(80 + 4 + 50*len(triangles)); info.Size() != want {
		t.Errorf("Expected %d bytes, got %d", want, info.Size())
	}

	loaded, err := LoadSTL(path)
	if err != nil {
		t.Fatalf("Failed to load STL: %v", err)
	}
	if len(loaded) != len(triangles) {
		t.Fatalf("Expected %d triangles, got %d", len(triangles), len(loaded))
	}
	for i := range triangles {
		if loaded[i] != triangles[i] {
			t.Errorf("Triangle %d changed: %v", i, loaded[i])
		}
	}
}

func TestReadTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, make([]Triangle, 3)); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()[:buf.Len()-10]
	if _, err := Read(bytes.NewReader(data)); err == nil {
		t.Error("Expected an error for a truncated file")
	}
}

func TestFacetNormalDegenerate(t *testing.T) {
	n := FacetNormal(mgl32.Vec3{1, 1, 1}, mgl32.Vec3{2, 2, 2}, mgl32.Vec3{3, 3, 3})
	if n != (mgl32.Vec3{}) {
		t.Errorf("Expected a zero normal for collinear points, got %v", n)
	}
}

// BenchmarkFromMesh benchmarks triangle conversion and encoding
func BenchmarkFromMesh(b *testing.B) {
	m := sphereMesh(b, 32, 12, models.UnitSpacing)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if err := Write(&buf, FromMesh(m)); err != nil {
			b.Fatal(err)
		}
	}
}
