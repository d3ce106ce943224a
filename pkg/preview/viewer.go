// Package preview renders axis-aligned slices of a classified volume so the
// voxel classification driving the surface can be inspected.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"volmesh/internal/models"
	"volmesh/pkg/classify"
)

// Viewer renders classification slices. Inside voxels are tinted red over
// the grey values of the optional source volume.
type Viewer struct {
	classifier classify.Classifier

	// volume provides the grey background, nil renders black
	volume *models.Volume

	// scale is the integer magnification of the output images
	scale int

	dims models.Size3
}

// NewViewer creates a viewer. scale below 1 is treated as 1.
func NewViewer(c classify.Classifier, volume *models.Volume, scale int) *Viewer {
	if scale < 1 {
		scale = 1
	}
	return &Viewer{
		classifier: c,
		volume:     volume,
		scale:      scale,
		dims:       c.Dimensions(),
	}
}

// ExtractSlice renders a slice perpendicular to the given axis.
// An x slice spans (z, y), a y slice (x, z) and a z slice (x, y).
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, errors.New("position must be non-negative")
	}

	var w, h, limit int
	var voxel func(i, j int) (x, y, z int)
	switch strings.ToLower(axis) {
	case "x":
		w, h, limit = v.dims.Z, v.dims.Y, v.dims.X
		voxel = func(i, j int) (int, int, int) { return position, j, i }
	case "y":
		w, h, limit = v.dims.X, v.dims.Z, v.dims.Y
		voxel = func(i, j int) (int, int, int) { return i, position, j }
	case "z":
		w, h, limit = v.dims.X, v.dims.Y, v.dims.Z
		voxel = func(i, j int) (int, int, int) { return i, j, position }
	default:
		return nil, errors.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
	if position >= limit {
		return nil, errors.Errorf("position %d exceeds %s extent %d", position, axis, limit)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			x, y, z := voxel(i, j)
			img.SetRGBA(i, j, v.pixel(x, y, z))
		}
	}
	if v.scale == 1 {
		return img, nil
	}
	scaled := image.NewRGBA(image.Rect(0, 0, w*v.scale, h*v.scale))
	draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Src, nil)
	return scaled, nil
}

func (v *Viewer) pixel(x, y, z int) color.RGBA {
	var g uint8
	if v.volume != nil && v.volume.InBounds(x, y, z) {
		g = uint8(math.Max(0, math.Min(255, v.volume.At(x, y, z)*255)))
	}
	if v.classifier.Classify(x, y, z) != 0 {
		return color.RGBA{R: uint8((int(g) + 255) / 2), G: g / 2, B: g / 2, A: 255}
	}
	return color.RGBA{R: g, G: g, B: g, A: 255}
}

// SaveSlice saves an extracted slice as PNG or, for .jpg and .jpeg, as JPEG.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "creating slice image")
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(file, img)
	}
	if err != nil {
		file.Close()
		return errors.Wrapf(err, "encoding %s", filename)
	}
	return errors.Wrap(file.Close(), "closing slice image")
}

// SaveSliceSequence renders every step-th slice along an axis into
// outputDir as slice_<axis>_NNN.png.
func (v *Viewer) SaveSliceSequence(axis string, step int, outputDir string) (int, error) {
	var maxPos int
	switch strings.ToLower(axis) {
	case "x":
		maxPos = v.dims.X
	case "y":
		maxPos = v.dims.Y
	case "z":
		maxPos = v.dims.Z
	default:
		return 0, errors.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
	if step < 1 {
		step = 1
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, errors.Wrap(err, "creating preview directory")
	}

	saved := 0
	for pos := 0; pos < maxPos; pos += step {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return saved, err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", strings.ToLower(axis), pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}
