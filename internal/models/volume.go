package models

import (
	"fmt"
)

// Size3 holds integer dimensions of a voxel grid.
type Size3 struct {
	X, Y, Z int
}

// Count returns the number of voxels covered by the size.
func (s Size3) Count() int {
	return s.X * s.Y * s.Z
}

// Spacing is the physical size of one voxel in mm.
type Spacing struct {
	X, Y, Z float64
}

// UnitSpacing is a 1mm isotropic voxel.
var UnitSpacing = Spacing{X: 1, Y: 1, Z: 1}

// Volume represents a 3D scalar volume (density or segmentation values)
type Volume struct {
	// Data is the 3D volume data as a 1D array, x varies fastest
	Data []float64

	// Width is the width of the volume in voxels
	Width int

	// Height is the height of the volume in voxels
	Height int

	// Depth is the depth of the volume in voxels
	Depth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize Spacing
}

// NewVolume allocates a zero-filled volume.
func NewVolume(width, height, depth int, voxelSize Spacing) *Volume {
	return &Volume{
		Data:      make([]float64, width*height*depth),
		Width:     width,
		Height:    height,
		Depth:     depth,
		VoxelSize: voxelSize,
	}
}

// Size returns the volume dimensions.
func (v *Volume) Size() Size3 {
	return Size3{X: v.Width, Y: v.Height, Z: v.Depth}
}

// InBounds reports whether the voxel coordinates lie inside the volume.
func (v *Volume) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < v.Width && y < v.Height && z < v.Depth
}

// Index returns the linear index of a voxel.
func (v *Volume) Index(x, y, z int) int {
	return (z*v.Height+y)*v.Width + x
}

// At returns the value at integer coordinates. Callers check InBounds first.
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores a value at integer coordinates.
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Validate checks that the data slice matches the declared dimensions.
func (v *Volume) Validate() error {
	if v.Width <= 0 || v.Height <= 0 || v.Depth <= 0 {
		return fmt.Errorf("volume dimensions must be positive, got %dx%dx%d", v.Width, v.Height, v.Depth)
	}
	if len(v.Data) != v.Width*v.Height*v.Depth {
		return fmt.Errorf("volume data has %d values, expected %d", len(v.Data), v.Width*v.Height*v.Depth)
	}
	return nil
}

// Mask is a per-voxel bitmask volume (segmentation regions, one bit per region)
type Mask struct {
	Data []uint8

	Width, Height, Depth int
}

// NewMask allocates a zero-filled mask.
func NewMask(width, height, depth int) *Mask {
	return &Mask{
		Data:   make([]uint8, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// Size returns the mask dimensions.
func (m *Mask) Size() Size3 {
	return Size3{X: m.Width, Y: m.Height, Z: m.Depth}
}

// InBounds reports whether the voxel coordinates lie inside the mask.
func (m *Mask) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < m.Width && y < m.Height && z < m.Depth
}

// At returns the mask bits of a voxel.
func (m *Mask) At(x, y, z int) uint8 {
	return m.Data[(z*m.Height+y)*m.Width+x]
}

// Set stores the mask bits of a voxel.
func (m *Mask) Set(x, y, z int, bits uint8) {
	m.Data[(z*m.Height+y)*m.Width+x] = bits
}

// Chunk is a volume-of-interest assigned to one parallel worker,
// the counterpart of a sub-volume in slab-parallel processing.
type Chunk struct {
	// Index is the position of the chunk in processing order
	Index int

	// Start and End are inclusive voxel ranges per axis
	StartX, StartY, StartZ int
	EndX, EndY, EndZ       int
}

func (c Chunk) String() string {
	return fmt.Sprintf("chunk %d [%d,%d]x[%d,%d]x[%d,%d]",
		c.Index, c.StartX, c.EndX, c.StartY, c.EndY, c.StartZ, c.EndZ)
}
