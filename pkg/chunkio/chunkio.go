// Package chunkio stores chunk meshes with their open edges in the protobuf
// wire format, so chunks can be extracted by one process and merged by
// another.
//
// A record is encoded as the message
//
//	message Record {
//	  Chunk chunk = 1;
//	  repeated double positions = 2;  // x, y, z per vertex
//	  repeated uint32 faces = 3;      // three vertex indices per face
//	  repeated uint32 locked = 4;
//	  repeated OpenFace open = 5;
//	  repeated sint32 marks = 6;      // one per face
//	  Stats stats = 7;
//	}
//	message Chunk { uint32 index = 1; uint32 start_x = 2; ... uint32 end_z = 7; }
//	message OpenFace { uint32 face = 1; repeated uint32 vertices = 2; }
//	message Stats { uint32 slabs = 1; ... uint32 open_edge_vertices = 9; }
package chunkio

import (
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"
	"google.golang.org/protobuf/encoding/protowire"

	"volmesh/internal/models"
	"volmesh/pkg/marching"
	"volmesh/pkg/mesh"
)

// ErrMalformed reports undecodable record data.
var ErrMalformed = errors.New("malformed chunk record")

const (
	fieldChunk     protowire.Number = 1
	fieldPositions protowire.Number = 2
	fieldFaces     protowire.Number = 3
	fieldLocked    protowire.Number = 4
	fieldOpen      protowire.Number = 5
	fieldMarks     protowire.Number = 6
	fieldStats     protowire.Number = 7

	fieldOpenFace     protowire.Number = 1
	fieldOpenVertices protowire.Number = 2
)

// Record is one chunk result.
type Record struct {
	Chunk     models.Chunk
	Mesh      *mesh.Mesh
	OpenEdges marching.OpenEdges
	Stats     marching.Stats
}

// Marshal encodes a record. Tombstoned vertices and faces are skipped and
// the remaining vertices are renumbered densely.
func Marshal(r *Record) ([]byte, error) {
	if r == nil || r.Mesh == nil {
		return nil, errors.New("chunkio: nil mesh")
	}
	m := r.Mesh

	index := make([]uint32, m.VertexCap())
	var positions, faces, locked, marks []byte
	n := uint32(0)
	m.ForEachVertex(func(v mesh.VertexID) {
		index[v] = n
		n++
		p := m.Position(v)
		positions = protowire.AppendFixed64(positions, math.Float64bits(p.X))
		positions = protowire.AppendFixed64(positions, math.Float64bits(p.Y))
		positions = protowire.AppendFixed64(positions, math.Float64bits(p.Z))
		if m.Locked(v) {
			locked = protowire.AppendVarint(locked, uint64(index[v]))
		}
	})
	m.ForEachFace(func(f mesh.FaceID, tri [3]mesh.VertexID) {
		for _, v := range tri {
			faces = protowire.AppendVarint(faces, uint64(index[v]))
		}
		marks = protowire.AppendVarint(marks, protowire.EncodeZigZag(int64(m.Mark(f))))
	})

	var b []byte
	b = appendMessage(b, fieldChunk, encodeInts(
		r.Chunk.Index,
		r.Chunk.StartX, r.Chunk.StartY, r.Chunk.StartZ,
		r.Chunk.EndX, r.Chunk.EndY, r.Chunk.EndZ))
	b = appendMessage(b, fieldPositions, positions)
	b = appendMessage(b, fieldFaces, faces)
	b = appendMessage(b, fieldLocked, locked)
	for _, face := range marching.Faces {
		list := r.OpenEdges[face]
		if len(list) == 0 {
			continue
		}
		var packed []byte
		for _, v := range list {
			if !m.VertexAlive(v) {
				continue
			}
			packed = protowire.AppendVarint(packed, uint64(index[v]))
		}
		var open []byte
		open = protowire.AppendTag(open, fieldOpenFace, protowire.VarintType)
		open = protowire.AppendVarint(open, uint64(face))
		open = appendMessage(open, fieldOpenVertices, packed)
		b = protowire.AppendTag(b, fieldOpen, protowire.BytesType)
		b = protowire.AppendBytes(b, open)
	}
	b = appendMessage(b, fieldMarks, marks)
	s := r.Stats
	b = appendMessage(b, fieldStats, encodeInts(
		s.Slabs, s.Cubes, s.ActiveCubes, s.Vertices, s.Faces,
		s.AmbiguousFaces, s.Inconsistencies, s.CentreVertices, s.OpenEdgeVertices))
	return b, nil
}

// Unmarshal decodes a record into a fresh mesh.
func Unmarshal(b []byte) (*Record, error) {
	var (
		chunk, stats                    []int
		positions, faces, locked, marks []uint64
		openRaw                         = make(map[marching.Face][]uint64)
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n), "tag")
		}
		b = b[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, malformed(protowire.ParseError(n), "unknown field")
			}
			b = b[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n), "field %d", num)
		}
		b = b[n:]

		var err error
		switch num {
		case fieldChunk:
			chunk, err = decodeInts(v)
		case fieldPositions:
			positions, err = decodeFixed64s(v)
		case fieldFaces:
			faces, err = decodeVarints(v)
		case fieldLocked:
			locked, err = decodeVarints(v)
		case fieldOpen:
			err = decodeOpenFace(v, openRaw)
		case fieldMarks:
			marks, err = decodeVarints(v)
		case fieldStats:
			stats, err = decodeInts(v)
		}
		if err != nil {
			return nil, err
		}
	}

	if len(positions)%3 != 0 || len(faces)%3 != 0 {
		return nil, errors.Wrap(ErrMalformed, "positions or faces not a multiple of three")
	}
	nv := uint64(len(positions) / 3)
	m := mesh.NewWithCapacity(int(nv), len(faces)/3)
	for i := 0; i+2 < len(positions); i += 3 {
		m.AddVertex(vec(positions[i], positions[i+1], positions[i+2]))
	}
	for i := 0; i+2 < len(faces); i += 3 {
		if faces[i] >= nv || faces[i+1] >= nv || faces[i+2] >= nv {
			return nil, errors.Wrapf(ErrMalformed, "face %d references a missing vertex", i/3)
		}
		if faces[i] == faces[i+1] || faces[i+1] == faces[i+2] || faces[i] == faces[i+2] {
			return nil, errors.Wrapf(ErrMalformed, "face %d is degenerate", i/3)
		}
		f := m.AddFace(mesh.VertexID(faces[i]), mesh.VertexID(faces[i+1]), mesh.VertexID(faces[i+2]))
		if k := i / 3; k < len(marks) {
			m.SetMark(f, int32(protowire.DecodeZigZag(marks[k])))
		}
	}
	for _, v := range locked {
		if v >= nv {
			return nil, errors.Wrapf(ErrMalformed, "locked vertex %d out of range", v)
		}
		m.Lock(mesh.VertexID(v))
	}
	open := marching.OpenEdges{}
	for face, list := range openRaw {
		for _, v := range list {
			if v >= nv {
				return nil, errors.Wrapf(ErrMalformed, "open-edge vertex %d out of range", v)
			}
			open.Add(face, mesh.VertexID(v))
		}
	}

	r := &Record{Mesh: m, OpenEdges: open}
	if len(chunk) == 7 {
		r.Chunk = models.Chunk{
			Index:  chunk[0],
			StartX: chunk[1], StartY: chunk[2], StartZ: chunk[3],
			EndX: chunk[4], EndY: chunk[5], EndZ: chunk[6],
		}
	}
	if len(stats) == 9 {
		r.Stats = marching.Stats{
			Slabs: stats[0], Cubes: stats[1], ActiveCubes: stats[2],
			Vertices: stats[3], Faces: stats[4], AmbiguousFaces: stats[5],
			Inconsistencies: stats[6], CentreVertices: stats[7], OpenEdgeVertices: stats[8],
		}
	}
	return r, nil
}

// Save writes a record to a file, creating the directory when needed.
func Save(path string, r *Record) error {
	data, err := Marshal(r)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "creating chunk directory")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0644), "writing chunk %s", path)
}

// Load reads a record from a file.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading chunk")
	}
	r, err := Unmarshal(data)
	return r, errors.Wrapf(err, "decoding chunk %s", path)
}

func appendMessage(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// encodeInts writes the values as fields 1..n of a message.
func encodeInts(values ...int) []byte {
	var b []byte
	for i, v := range values {
		b = protowire.AppendTag(b, protowire.Number(i+1), protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	return b
}

func decodeInts(b []byte) ([]int, error) {
	var out []int
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n), "tag")
		}
		b = b[n:]
		if typ != protowire.VarintType {
			return nil, errors.Wrapf(ErrMalformed, "field %d has wire type %d", num, typ)
		}
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n), "field %d", num)
		}
		b = b[n:]
		if num > 16 {
			continue
		}
		for len(out) < int(num) {
			out = append(out, 0)
		}
		out[num-1] = int(v)
	}
	return out, nil
}

func decodeVarints(b []byte) ([]uint64, error) {
	var out []uint64
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n), "packed varint")
		}
		out = append(out, v)
		b = b[n:]
	}
	return out, nil
}

func decodeFixed64s(b []byte) ([]uint64, error) {
	if len(b)%8 != 0 {
		return nil, errors.Wrap(ErrMalformed, "packed doubles")
	}
	out := make([]uint64, 0, len(b)/8)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, malformed(protowire.ParseError(n), "packed double")
		}
		out = append(out, v)
		b = b[n:]
	}
	return out, nil
}

func decodeOpenFace(b []byte, open map[marching.Face][]uint64) error {
	face := marching.Face(-1)
	var vertices []uint64
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(protowire.ParseError(n), "open face tag")
		}
		b = b[n:]
		switch {
		case num == fieldOpenFace && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return malformed(protowire.ParseError(n), "open face")
			}
			face = marching.Face(v)
			b = b[n:]
		case num == fieldOpenVertices && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return malformed(protowire.ParseError(n), "open vertices")
			}
			var err error
			if vertices, err = decodeVarints(v); err != nil {
				return err
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return malformed(protowire.ParseError(n), "open face field %d", num)
			}
			b = b[n:]
		}
	}
	if face < marching.FaceNegX || face > marching.FacePosZ {
		return errors.Wrapf(ErrMalformed, "open face %d", face)
	}
	open[face] = append(open[face], vertices...)
	return nil
}

func malformed(cause error, format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformed, format+": %v", append(args, cause)...)
}

func vec(x, y, z uint64) r3.Vec {
	return r3.Vec{X: math.Float64frombits(x), Y: math.Float64frombits(y), Z: math.Float64frombits(z)}
}
