// Package stl writes and reads triangle meshes in the binary STL format.
package stl

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"volmesh/pkg/mesh"
)

const (
	headerSize   = 80
	triangleSize = 50
)

// Triangle represents a single triangle in the STL file
type Triangle struct {
	Normal  mgl32.Vec3
	Vertex1 mgl32.Vec3
	Vertex2 mgl32.Vec3
	Vertex3 mgl32.Vec3
}

// FacetNormal returns the unit normal of the counter-clockwise triangle
// a, b, c, or the zero vector for a degenerate triangle.
func FacetNormal(a, b, c mgl32.Vec3) mgl32.Vec3 {
	n := b.Sub(a).Cross(c.Sub(a))
	if l := n.Len(); l > 0 {
		return n.Mul(1 / l)
	}
	return mgl32.Vec3{}
}

// FromMesh converts the live faces of a mesh into STL triangles.
func FromMesh(m *mesh.Mesh) []Triangle {
	triangles := make([]Triangle, 0, m.FaceCount())
	m.ForEachFace(func(f mesh.FaceID, tri [3]mesh.VertexID) {
		var v [3]mgl32.Vec3
		for i, id := range tri {
			p := m.Position(id)
			v[i] = mgl32.Vec3{float32(p.X), float32(p.Y), float32(p.Z)}
		}
		triangles = append(triangles, Triangle{
			Normal:  FacetNormal(v[0], v[1], v[2]),
			Vertex1: v[0],
			Vertex2: v[1],
			Vertex3: v[2],
		})
	})
	return triangles
}

// Transform applies an affine transform to every vertex and recomputes the
// normals.
func Transform(triangles []Triangle, t mgl32.Mat4) {
	for i := range triangles {
		tr := &triangles[i]
		tr.Vertex1 = mgl32.TransformCoordinate(tr.Vertex1, t)
		tr.Vertex2 = mgl32.TransformCoordinate(tr.Vertex2, t)
		tr.Vertex3 = mgl32.TransformCoordinate(tr.Vertex3, t)
		tr.Normal = FacetNormal(tr.Vertex1, tr.Vertex2, tr.Vertex3)
	}
}

// Bounds returns the axis-aligned bounding box of the triangles.
func Bounds(triangles []Triangle) (min, max mgl32.Vec3) {
	if len(triangles) == 0 {
		return
	}
	min = triangles[0].Vertex1
	max = min
	for _, tr := range triangles {
		for _, v := range [3]mgl32.Vec3{tr.Vertex1, tr.Vertex2, tr.Vertex3} {
			for k := 0; k < 3; k++ {
				min[k] = float32(math.Min(float64(min[k]), float64(v[k])))
				max[k] = float32(math.Max(float64(max[k]), float64(v[k])))
			}
		}
	}
	return min, max
}

// Write encodes the triangles as binary STL.
func Write(w io.Writer, triangles []Triangle) error {
	bw := bufio.NewWriter(w)
	header := make([]byte, headerSize)
	copy(header, "volmesh binary STL")
	if _, err := bw.Write(header); err != nil {
		return errors.Wrap(err, "writing STL header")
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return errors.Wrap(err, "writing triangle count")
	}

	buf := make([]byte, triangleSize)
	for _, tr := range triangles {
		off := 0
		for _, v := range [4]mgl32.Vec3{tr.Normal, tr.Vertex1, tr.Vertex2, tr.Vertex3} {
			for k := 0; k < 3; k++ {
				binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v[k]))
				off += 4
			}
		}
		binary.LittleEndian.PutUint16(buf[off:], 0)
		if _, err := bw.Write(buf); err != nil {
			return errors.Wrap(err, "writing triangle")
		}
	}
	return errors.Wrap(bw.Flush(), "flushing STL")
}

// Read decodes binary STL.
func Read(r io.Reader) ([]Triangle, error) {
	br := bufio.NewReader(r)
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, errors.Wrap(err, "reading STL header")
	}
	var n uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return nil, errors.Wrap(err, "reading triangle count")
	}

	triangles := make([]Triangle, 0, n)
	buf := make([]byte, triangleSize)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, errors.Wrapf(err, "reading triangle %d of %d", i, n)
		}
		var v [4]mgl32.Vec3
		off := 0
		for j := range v {
			for k := 0; k < 3; k++ {
				v[j][k] = math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
				off += 4
			}
		}
		triangles = append(triangles, Triangle{Normal: v[0], Vertex1: v[1], Vertex2: v[2], Vertex3: v[3]})
	}
	return triangles, nil
}

// SaveToSTL writes the triangles to a binary STL file
func SaveToSTL(filename string, triangles []Triangle) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "creating STL file")
	}
	if err := Write(f, triangles); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "closing STL file")
}

// LoadSTL reads a binary STL file
func LoadSTL(filename string) ([]Triangle, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "opening STL file")
	}
	defer f.Close()
	return Read(f)
}
