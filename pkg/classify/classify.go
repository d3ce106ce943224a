// Package classify provides the voxel classification functors used by the
// marching cubes worker. A classifier maps a voxel coordinate to a binary
// inside/outside tag and reports the grid it is defined on.
//
// Classifiers are read-only: they never cache or mutate state while
// classifying, so a single instance may be shared by any number of
// concurrently running workers.
package classify

import (
	"github.com/pkg/errors"

	"volmesh/internal/models"
)

// Classifier is the capability the slab worker needs from a volume.
type Classifier interface {
	// Classify returns 1 when the voxel is inside the surface, 0 otherwise.
	// Coordinates outside the volume classify as 0.
	Classify(x, y, z int) uint8

	// Dimensions returns the volume size in voxels.
	Dimensions() models.Size3

	// VoxelSize returns the physical voxel size used to convert grid
	// coordinates into mesh coordinates.
	VoxelSize() models.Spacing
}

// Threshold classifies a voxel as inside when its value lies in [Low, High].
type Threshold struct {
	Low, High float64

	volume *models.Volume
}

// NewThreshold creates a threshold classifier over the given volume.
func NewThreshold(volume *models.Volume, low, high float64) (*Threshold, error) {
	if volume == nil {
		return nil, errors.New("threshold classifier: nil volume")
	}
	if err := volume.Validate(); err != nil {
		return nil, errors.Wrap(err, "threshold classifier")
	}
	return &Threshold{Low: low, High: high, volume: volume}, nil
}

// Classify implements Classifier.
func (t *Threshold) Classify(x, y, z int) uint8 {
	if !t.volume.InBounds(x, y, z) {
		return 0
	}
	v := t.volume.At(x, y, z)
	if v >= t.Low && v <= t.High {
		return 1
	}
	return 0
}

// Dimensions implements Classifier.
func (t *Threshold) Dimensions() models.Size3 {
	return t.volume.Size()
}

// VoxelSize implements Classifier.
func (t *Threshold) VoxelSize() models.Spacing {
	return t.volume.VoxelSize
}

// Func adapts a plain predicate to the Classifier interface. It is handy for
// analytic phantoms and tests.
type Func struct {
	Size    models.Size3
	Spacing models.Spacing
	Inside  func(x, y, z int) bool
}

// Classify implements Classifier.
func (f *Func) Classify(x, y, z int) uint8 {
	if x < 0 || y < 0 || z < 0 || x >= f.Size.X || y >= f.Size.Y || z >= f.Size.Z {
		return 0
	}
	if f.Inside(x, y, z) {
		return 1
	}
	return 0
}

// Dimensions implements Classifier.
func (f *Func) Dimensions() models.Size3 {
	return f.Size
}

// VoxelSize implements Classifier.
func (f *Func) VoxelSize() models.Spacing {
	if f.Spacing == (models.Spacing{}) {
		return models.UnitSpacing
	}
	return f.Spacing
}
