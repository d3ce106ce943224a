package classify

import (
	"github.com/pkg/errors"

	"volmesh/internal/models"
)

// MaskedParams configures a MaskedThreshold classifier.
type MaskedParams struct {
	// Low and High bound the accepted (interpolated) values
	Low, High float64

	// MaskValue selects the mask bits of interest and MaskBit is the value
	// they must equal. Setting MaskBit to 0 inverts the mask test.
	MaskValue uint8
	MaskBit   uint8

	// Samples is the neighbourhood sample radius, 0 samples the voxel only
	Samples int

	// Limit is the fraction of neighbourhood samples that must pass the
	// threshold, in (0,1]
	Limit float64
}

// MaskedThreshold classifies a voxel by a mask test followed by a
// supersampled threshold test of its trilinearly interpolated neighbourhood.
// Supersampling suppresses cube-code flicker on voxel boundaries.
type MaskedThreshold struct {
	params MaskedParams
	volume *models.Volume
	mask   *models.Mask
}

// NewMaskedThreshold creates a masked classifier. The mask may be nil, in
// which case only the supersampled threshold test is applied.
func NewMaskedThreshold(volume *models.Volume, mask *models.Mask, params MaskedParams) (*MaskedThreshold, error) {
	if volume == nil {
		return nil, errors.New("masked classifier: nil volume")
	}
	if err := volume.Validate(); err != nil {
		return nil, errors.Wrap(err, "masked classifier")
	}
	if mask != nil && mask.Size() != volume.Size() {
		return nil, errors.Errorf("masked classifier: mask size %v does not match volume size %v", mask.Size(), volume.Size())
	}
	if params.Limit <= 0 || params.Limit > 1 {
		return nil, errors.Errorf("masked classifier: limit %g outside (0,1]", params.Limit)
	}
	if params.Samples < 0 {
		params.Samples = -params.Samples
	}
	return &MaskedThreshold{params: params, volume: volume, mask: mask}, nil
}

// Params returns the classifier parameters.
func (m *MaskedThreshold) Params() MaskedParams {
	return m.params
}

// Classify implements Classifier.
func (m *MaskedThreshold) Classify(x, y, z int) uint8 {
	if !m.volume.InBounds(x, y, z) {
		return 0
	}
	if m.mask != nil {
		if !m.mask.InBounds(x, y, z) {
			return 0
		}
		if m.mask.At(x, y, z)&m.params.MaskValue != m.params.MaskBit {
			return 0
		}
	}

	samples := m.params.Samples
	step := 0.0
	start := 0
	perAxis := 1
	if samples > 0 {
		step = 0.5 / float64(samples)
		start = 1 - samples
		perAxis = 2 * samples
	}
	required := float64(perAxis*perAxis*perAxis) * m.params.Limit

	maxX := float64(m.volume.Width - 1)
	maxY := float64(m.volume.Height - 1)
	maxZ := float64(m.volume.Depth - 1)

	sum := 0
	for zo := start; zo <= samples; zo++ {
		tz := float64(z) + float64(zo)*step
		if tz < 0 || tz > maxZ {
			continue
		}
		for yo := start; yo <= samples; yo++ {
			ty := float64(y) + float64(yo)*step
			if ty < 0 || ty > maxY {
				continue
			}
			for xo := start; xo <= samples; xo++ {
				tx := float64(x) + float64(xo)*step
				if tx < 0 || tx > maxX {
					continue
				}
				value := Trilinear(m.volume, tx, ty, tz)
				if value >= m.params.Low && value <= m.params.High {
					sum++
				}
				if float64(sum) > required {
					return 1
				}
			}
		}
	}
	return 0
}

// Dimensions implements Classifier.
func (m *MaskedThreshold) Dimensions() models.Size3 {
	return m.volume.Size()
}

// VoxelSize implements Classifier.
func (m *MaskedThreshold) VoxelSize() models.Spacing {
	return m.volume.VoxelSize
}

// Trilinear interpolates the volume at a continuous coordinate inside
// [0, dim-1] on every axis from its 8 neighbouring voxels.
func Trilinear(v *models.Volume, x, y, z float64) float64 {
	x0, x1, dx := cell(x, v.Width)
	y0, y1, dy := cell(y, v.Height)
	z0, z1, dz := cell(z, v.Depth)

	c00 := v.At(x0, y0, z0)*(1-dx) + v.At(x1, y0, z0)*dx
	c10 := v.At(x0, y1, z0)*(1-dx) + v.At(x1, y1, z0)*dx
	c01 := v.At(x0, y0, z1)*(1-dx) + v.At(x1, y0, z1)*dx
	c11 := v.At(x0, y1, z1)*(1-dx) + v.At(x1, y1, z1)*dx

	c0 := c00*(1-dy) + c10*dy
	c1 := c01*(1-dy) + c11*dy
	return c0*(1-dz) + c1*dz
}

// cell returns the two grid indices bracketing c and the fractional offset.
// The upper index is clamped at the last voxel.
func cell(c float64, size int) (int, int, float64) {
	i := int(c)
	if i >= size-1 {
		return size - 1, size - 1, 0
	}
	return i, i + 1, c - float64(i)
}
