package quality

import (
	"sort"

	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"volmesh/pkg/mesh"
)

// Summary holds mesh statistics.
type Summary struct {
	Vertices      int
	Faces         int
	Edges         int
	BoundaryEdges int
	Components    int
	Euler         int
	Closed        bool
	Manifold      bool

	Area   float64
	Volume float64

	MinQuality    float64
	MeanQuality   float64
	MedianQuality float64
	StdDevQuality float64

	VertexTypes map[mesh.VertexType]int
}

// Report computes the statistics of a mesh. Vertex types are those of the
// last markup.
func Report(m *mesh.Mesh) Summary {
	s := Summary{
		Vertices:      m.VertexCount(),
		Faces:         m.FaceCount(),
		Edges:         m.EdgeCount(),
		BoundaryEdges: m.BoundaryEdgeCount(),
		Components:    m.ComponentCount(),
		Euler:         m.EulerCharacteristic(),
		Closed:        m.IsClosed(),
		Manifold:      m.IsManifold(),
		Area:          m.Area(),
		Volume:        m.SignedVolume(),
		VertexTypes:   make(map[mesh.VertexType]int),
	}
	m.ForEachVertex(func(v mesh.VertexID) {
		s.VertexTypes[m.VertexType(v)]++
	})

	q := make([]float64, 0, m.FaceCount())
	m.ForEachFace(func(f mesh.FaceID, _ [3]mesh.VertexID) {
		q = append(q, FaceQuality(m, f))
	})
	if len(q) == 0 {
		return s
	}
	s.MinQuality = floats.Min(q)
	s.MeanQuality, s.StdDevQuality = stat.MeanStdDev(q, nil)
	sort.Float64s(q)
	s.MedianQuality = stat.Quantile(0.5, stat.Empirical, q, nil)
	return s
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s Summary) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("vertices", s.Vertices)
	enc.AddInt("faces", s.Faces)
	enc.AddInt("edges", s.Edges)
	enc.AddInt("boundaryEdges", s.BoundaryEdges)
	enc.AddInt("components", s.Components)
	enc.AddInt("euler", s.Euler)
	enc.AddBool("closed", s.Closed)
	enc.AddBool("manifold", s.Manifold)
	enc.AddFloat64("area", s.Area)
	enc.AddFloat64("volume", s.Volume)
	enc.AddFloat64("minQuality", s.MinQuality)
	enc.AddFloat64("meanQuality", s.MeanQuality)
	enc.AddFloat64("medianQuality", s.MedianQuality)
	enc.AddFloat64("stdDevQuality", s.StdDevQuality)
	return nil
}
