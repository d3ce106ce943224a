package marching

import (
	"github.com/pkg/errors"

	"volmesh/internal/models"
)

var (
	// ErrConfiguration reports an unusable worker setup, such as an empty
	// or inverted volume-of-interest. It is raised before any allocation.
	ErrConfiguration = errors.New("marching cubes configuration error")

	// ErrResourceExhaustion reports working matrices that exceed the
	// configured memory budget.
	ErrResourceExhaustion = errors.New("marching cubes working memory exhausted")
)

// VOI is a volume-of-interest: inclusive voxel index ranges per axis.
type VOI struct {
	StartX, StartY, StartZ int
	EndX, EndY, EndZ       int
}

// FullVolume returns the VOI covering a whole volume.
func FullVolume(dims models.Size3) VOI {
	return VOI{EndX: dims.X - 1, EndY: dims.Y - 1, EndZ: dims.Z - 1}
}

// FromChunk converts a chunk descriptor into a VOI.
func FromChunk(c models.Chunk) VOI {
	return VOI{
		StartX: c.StartX, StartY: c.StartY, StartZ: c.StartZ,
		EndX: c.EndX, EndY: c.EndY, EndZ: c.EndZ,
	}
}

// Chunk converts the VOI into a chunk descriptor with the given index.
func (v VOI) Chunk(index int) models.Chunk {
	return models.Chunk{
		Index:  index,
		StartX: v.StartX, StartY: v.StartY, StartZ: v.StartZ,
		EndX: v.EndX, EndY: v.EndY, EndZ: v.EndZ,
	}
}

// Size returns the number of voxels per axis.
func (v VOI) Size() models.Size3 {
	return models.Size3{X: v.EndX - v.StartX + 1, Y: v.EndY - v.StartY + 1, Z: v.EndZ - v.StartZ + 1}
}

// Validate checks that the VOI is non-empty and lies inside the volume.
func (v VOI) Validate(dims models.Size3) error {
	if v.EndX <= v.StartX || v.EndY <= v.StartY || v.EndZ <= v.StartZ {
		return errors.Wrapf(ErrConfiguration, "empty or inverted volume of interest %+v", v)
	}
	if v.StartX < 0 || v.StartY < 0 || v.StartZ < 0 ||
		v.EndX >= dims.X || v.EndY >= dims.Y || v.EndZ >= dims.Z {
		return errors.Wrapf(ErrConfiguration, "volume of interest %+v exceeds volume %dx%dx%d", v, dims.X, dims.Y, dims.Z)
	}
	return nil
}
