package pipeline

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"volmesh/internal/models"
	"volmesh/pkg/classify"
	"volmesh/pkg/config"
	"volmesh/pkg/marching"
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

func createBox(size, lo, hi int) *classify.Func {
	return &classify.Func{
		Size: models.Size3{X: size, Y: size, Z: size},
		Inside: func(x, y, z int) bool {
			return x >= lo && x <= hi && y >= lo && y <= hi && z >= lo && z <= hi
		},
	}
}

func rawParams() Params {
	p := DefaultParams()
	p.ReduceFlatAreas = false
	p.SwapEdges = false
	return p
}

func TestSplitVOI(t *testing.T) {
	voi := marching.VOI{EndX: 9, EndY: 10, EndZ: 20}
	chunks := SplitVOI(voi, 4, 2)
	if len(chunks) != 8 {
		t.Fatalf("Expected 8 chunks, got %d", len(chunks))
	}
	wantZ := [][2]int{{0, 5}, {5, 10}, {10, 15}, {15, 20}}
	wantY := [][2]int{{0, 5}, {5, 10}}
	for i, ch := range chunks {
		if ch.Index != i {
			t.Errorf("Chunk %d has index %d", i, ch.Index)
		}
		z, y := wantZ[i/2], wantY[i%2]
		if ch.StartZ != z[0] || ch.EndZ != z[1] || ch.StartY != y[0] || ch.EndY != y[1] {
			t.Errorf("Chunk %d is %s", i, ch)
		}
		if ch.StartX != 0 || ch.EndX != 9 {
			t.Errorf("Chunk %d changed the x range: %s", i, ch)
		}
	}
}

func TestSplitVOIClamps(t *testing.T) {
	chunks := SplitVOI(marching.VOI{EndX: 5, EndY: 5, StartZ: 2, EndZ: 5}, 10, 0)
	if len(chunks) != 3 {
		t.Fatalf("Expected the z split to be clamped to 3 chunks, got %d", len(chunks))
	}
	for _, ch := range chunks {
		if ch.EndZ-ch.StartZ != 1 {
			t.Errorf("Expected one cube per chunk, got %s", ch)
		}
	}
}

func TestGenerateMesh(t *testing.T) {
	c := createSphere(20, 7.5)
	raw, err := NewGenerator(rawParams()).GenerateMesh(c, marching.FullVolume(c.Dimensions()))
	if err != nil {
		t.Fatalf("GenerateMesh failed: %v", err)
	}
	out, err := NewGenerator(DefaultParams()).GenerateMesh(c, marching.FullVolume(c.Dimensions()))
	if err != nil {
		t.Fatalf("GenerateMesh failed: %v", err)
	}

	if out.Removed == 0 {
		t.Error("Expected the reduction to remove vertices")
	}
	if out.Mesh.VertexCount() != raw.Mesh.VertexCount()-out.Removed {
		t.Errorf("Vertex count %d, expected %d", out.Mesh.VertexCount(), raw.Mesh.VertexCount()-out.Removed)
	}
	if out.Mesh.VertexCap() != out.Mesh.VertexCount() {
		t.Error("Output mesh was not compacted")
	}
	s := out.Summary
	if !s.Closed || !s.Manifold || s.Euler != 2 || s.Components != 1 {
		t.Errorf("Expected a closed sphere, got %+v", s)
	}
	if math.Abs(s.Volume-raw.Summary.Volume)/raw.Summary.Volume > 0.1 {
		t.Errorf("Quality passes changed the volume from %f to %f", raw.Summary.Volume, s.Volume)
	}
	if out.Stats.Faces != raw.Stats.Faces {
		t.Errorf("Worker statistics differ: %d and %d faces", out.Stats.Faces, raw.Stats.Faces)
	}
}

func TestChunkedMatchesDirect(t *testing.T) {
	c := createSphere(18, 6.5)
	voi := marching.FullVolume(c.Dimensions())
	direct, err := NewGenerator(rawParams()).GenerateMesh(c, voi)
	if err != nil {
		t.Fatal(err)
	}

	p := rawParams()
	p.ChunksZ = 3
	p.ChunksY = 2
	p.NumWorkers = 2
	out, err := NewGenerator(p).GenerateChunked(c, voi)
	if err != nil {
		t.Fatalf("GenerateChunked failed: %v", err)
	}
	if out.Chunks != 6 {
		t.Errorf("Expected 6 merged chunks, got %d", out.Chunks)
	}
	if out.Orphaned != 0 || out.OpenEdges.Len() != 0 {
		t.Errorf("Expected a clean merge, got %d orphans and %d open vertices", out.Orphaned, out.OpenEdges.Len())
	}
	if out.Mesh.VertexCount() != direct.Mesh.VertexCount() || out.Mesh.FaceCount() != direct.Mesh.FaceCount() {
		t.Errorf("Chunked mesh has %d vertices and %d faces, direct run %d and %d",
			out.Mesh.VertexCount(), out.Mesh.FaceCount(), direct.Mesh.VertexCount(), direct.Mesh.FaceCount())
	}
	if math.Abs(out.Summary.Volume-direct.Summary.Volume) > 1e-9 {
		t.Errorf("Chunked volume %f, direct run %f", out.Summary.Volume, direct.Summary.Volume)
	}
	if out.Summary.Euler != 2 || !out.Summary.Closed {
		t.Errorf("Expected a closed sphere, got %+v", out.Summary)
	}
	if out.Stats.Faces != direct.Stats.Faces {
		t.Errorf("Summed chunk statistics report %d faces, direct run %d", out.Stats.Faces, direct.Stats.Faces)
	}
}

func TestChunkedWithQuality(t *testing.T) {
	tests := map[string]*classify.Func{
		"sphere": createSphere(20, 7.5),
		"box":    createBox(14, 2, 10),
	}
	for name, c := range tests {
		voi := marching.FullVolume(c.Dimensions())
		raw, err := NewGenerator(rawParams()).GenerateMesh(c, voi)
		if err != nil {
			t.Fatal(err)
		}

		p := DefaultParams()
		p.ChunksZ = 3
		p.ChunksY = 2
		out, err := NewGenerator(p).GenerateChunked(c, voi)
		if err != nil {
			t.Fatalf("%s: GenerateChunked failed: %v", name, err)
		}
		s := out.Summary
		if !s.Closed || !s.Manifold || s.Euler != 2 {
			t.Errorf("%s: expected a closed manifold mesh, got %+v", name, s)
		}
		if out.Orphaned != 0 {
			t.Errorf("%s: %d orphaned vertices", name, out.Orphaned)
		}
		if out.Removed == 0 || s.Vertices >= raw.Summary.Vertices {
			t.Errorf("%s: expected a reduced mesh, %d of %d vertices", name, s.Vertices, raw.Summary.Vertices)
		}
		if math.Abs(s.Volume-raw.Summary.Volume)/raw.Summary.Volume > 0.1 {
			t.Errorf("%s: volume changed from %f to %f", name, raw.Summary.Volume, s.Volume)
		}
	}
}

func TestSeamPass(t *testing.T) {
	c := createBox(14, 2, 10)
	voi := marching.FullVolume(c.Dimensions())

	p := DefaultParams()
	p.ChunksZ = 4
	p.SwapEdges = false
	p.SeamPass = false
	without, err := NewGenerator(p).GenerateChunked(c, voi)
	if err != nil {
		t.Fatal(err)
	}
	p.SeamPass = true
	with, err := NewGenerator(p).GenerateChunked(c, voi)
	if err != nil {
		t.Fatal(err)
	}
	if with.Summary.Vertices >= without.Summary.Vertices {
		t.Errorf("Seam pass should remove seam vertices: %d with, %d without", with.Summary.Vertices, without.Summary.Vertices)
	}
	if !with.Summary.Closed || with.Summary.Euler != 2 {
		t.Errorf("Seam pass broke the mesh: %+v", with.Summary)
	}
}

// createNoise returns a classifier with randomly inside voxels
func createNoise(size int, seed int64) *classify.Func {
	rng := rand.New(rand.NewSource(seed))
	inside := make([]bool, size*size*size)
	for i := range inside {
		inside[i] = rng.Intn(2) == 0
	}
	return &classify.Func{
		Size:   models.Size3{X: size, Y: size, Z: size},
		Inside: func(x, y, z int) bool { return inside[(z*size+y)*size+x] },
	}
}

func TestChunkedInnerVOI(t *testing.T) {
	inner := marching.VOI{StartX: 2, StartY: 2, StartZ: 2, EndX: 9, EndY: 9, EndZ: 9}
	for _, split := range [][2]int{{2, 1}, {2, 2}} {
		for seed := int64(1); seed <= 5; seed++ {
			c := createNoise(12, seed)
			direct, err := NewGenerator(rawParams()).GenerateMesh(c, inner)
			if err != nil {
				t.Fatal(err)
			}

			p := rawParams()
			p.ChunksZ, p.ChunksY = split[0], split[1]
			out, err := NewGenerator(p).GenerateChunked(c, inner)
			if err != nil {
				t.Fatalf("GenerateChunked failed: %v", err)
			}
			if out.Orphaned != 0 {
				t.Errorf("Split %v seed %d: %d orphaned vertices", split, seed, out.Orphaned)
			}
			if out.Mesh.VertexCount() != direct.Mesh.VertexCount() || out.Mesh.FaceCount() != direct.Mesh.FaceCount() {
				t.Errorf("Split %v seed %d: %d vertices and %d faces, direct run %d and %d", split, seed,
					out.Mesh.VertexCount(), out.Mesh.FaceCount(), direct.Mesh.VertexCount(), direct.Mesh.FaceCount())
			}
			if out.Summary.BoundaryEdges != direct.Summary.BoundaryEdges {
				t.Errorf("Split %v seed %d: %d boundary edges, direct run %d", split, seed,
					out.Summary.BoundaryEdges, direct.Summary.BoundaryEdges)
			}
			if got, want := len(out.OpenEdges.Vertices()), len(direct.OpenEdges.Vertices()); got != want {
				t.Errorf("Split %v seed %d: %d open vertices, direct run %d", split, seed, got, want)
			}
		}
	}
}

func TestPartialVolume(t *testing.T) {
	c := createSphere(16, 6)
	voi := marching.VOI{EndX: 15, EndY: 15, StartZ: 0, EndZ: 8}

	p := DefaultParams()
	p.ChunksZ = 2
	out, err := NewGenerator(p).GenerateChunked(c, voi)
	if err != nil {
		t.Fatal(err)
	}
	if out.OpenEdges.Len() == 0 || len(out.OpenEdges[marching.FacePosZ]) == 0 {
		t.Fatal("Expected open edges on the upper face of the VOI")
	}
	for _, v := range out.OpenEdges.Vertices() {
		if !out.Mesh.Locked(v) {
			t.Errorf("Open-edge vertex %d is not locked", v)
		}
		if z := out.Mesh.Position(v).Z; z != 8 {
			t.Errorf("Open-edge vertex %d at z=%f", v, z)
		}
	}
	if out.Summary.Closed {
		t.Error("A partial sphere should not be closed")
	}
}

func TestProgressAndSink(t *testing.T) {
	c := createSphere(12, 4)
	p := DefaultParams()
	p.ChunksZ = 3
	p.NumWorkers = 3

	stages := make(map[string]int)
	var order []int
	g := NewGenerator(p,
		WithProgress(func(stage string, done, total int) {
			stages[stage]++
			if done > total {
				t.Errorf("Stage %s reported %d of %d", stage, done, total)
			}
		}),
		WithChunkSink(func(ch models.Chunk, out *Output) error {
			order = append(order, ch.Index)
			if out.Mesh.IsEmpty() {
				t.Errorf("Chunk %s is empty", ch)
			}
			return nil
		}))
	if _, err := g.GenerateChunked(c, marching.FullVolume(c.Dimensions())); err != nil {
		t.Fatal(err)
	}
	if stages[StageChunks] != 3 || stages[StageMerge] != 2 {
		t.Errorf("Unexpected progress calls: %v", stages)
	}
	for i, idx := range order {
		if idx != i {
			t.Fatalf("Sink called out of order: %v", order)
		}
	}

	stages = make(map[string]int)
	out, err := g.GenerateMesh(c, marching.FullVolume(c.Dimensions()))
	if err != nil {
		t.Fatal(err)
	}
	if stages[StageSlabs] != out.Stats.Slabs {
		t.Errorf("Expected %d slab progress calls, got %d", out.Stats.Slabs, stages[StageSlabs])
	}
}

func TestSinkError(t *testing.T) {
	c := createSphere(12, 4)
	p := DefaultParams()
	p.ChunksZ = 2
	sinkErr := errors.New("disk full")
	g := NewGenerator(p, WithChunkSink(func(models.Chunk, *Output) error { return sinkErr }))
	_, err := g.GenerateChunked(c, marching.FullVolume(c.Dimensions()))
	if !errors.Is(err, sinkErr) {
		t.Errorf("Expected the sink error, got %v", err)
	}
}

func TestErrors(t *testing.T) {
	c := createSphere(12, 4)
	g := NewGenerator(DefaultParams())

	if _, err := g.GenerateChunked(nil, marching.VOI{EndX: 5, EndY: 5, EndZ: 5}); !errors.Is(err, marching.ErrConfiguration) {
		t.Errorf("Expected a configuration error for a nil classifier, got %v", err)
	}
	if _, err := g.GenerateChunked(c, marching.VOI{EndX: 5, EndY: 5, StartZ: 5, EndZ: 5}); !errors.Is(err, marching.ErrConfiguration) {
		t.Errorf("Expected a configuration error for an empty VOI, got %v", err)
	}
	if _, err := g.GenerateMesh(c, marching.VOI{EndX: 12, EndY: 5, EndZ: 5}); !errors.Is(err, marching.ErrConfiguration) {
		t.Errorf("Expected a configuration error for a VOI outside the volume, got %v", err)
	}

	p := DefaultParams()
	p.ChunksZ = 2
	p.MaxWorkCells = 16
	if _, err := NewGenerator(p).GenerateChunked(c, marching.FullVolume(c.Dimensions())); !errors.Is(err, marching.ErrResourceExhaustion) {
		t.Errorf("Expected a resource error, got %v", err)
	}
	if _, err := g.MergeMeshes(nil, nil); err == nil {
		t.Error("Expected an error merging nil outputs")
	}
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := createSphere(12, 4)
	p := DefaultParams()
	p.ChunksZ = 2
	if _, err := NewGenerator(p, WithLogger(zap.New(core))).GenerateChunked(c, marching.FullVolume(c.Dimensions())); err != nil {
		t.Fatal(err)
	}
	if logs.FilterMessage("chunked mesh generated").Len() != 1 {
		t.Errorf("Expected a summary log entry, got %v", logs.All())
	}
	if logs.FilterMessage("degraded merge, seam vertices without partner").Len() != 0 {
		t.Error("Unexpected degraded merge warning")
	}
}

func TestParamsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Quality.Iterations = 4
	cfg.Quality.MaxEdgeLength = 2.5
	cfg.Extraction.ChunksZ = 5
	cfg.Extraction.NumWorkers = 3
	cfg.Extraction.MarkFaces = true

	p := ParamsFromConfig(cfg)
	if p.Iterations != 4 || p.MaxEdgeLength != 2.5 || p.ChunksZ != 5 || p.NumWorkers != 3 || !p.MarkFaces {
		t.Errorf("Config not mapped: %+v", p)
	}
	if p.Epsilon <= 0 {
		t.Error("Expected a positive merge tolerance")
	}
}

func BenchmarkGenerateChunked(b *testing.B) {
	c := createSphere(48, 20)
	p := DefaultParams()
	p.ChunksZ = 4
	g := NewGenerator(p)
	voi := marching.FullVolume(c.Dimensions())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := g.GenerateChunked(c, voi); err != nil {
			b.Fatal(err)
		}
	}
}
