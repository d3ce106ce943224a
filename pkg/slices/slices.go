// Package slices loads a stack of 2D image slices into a voxel volume.
//
// Slices are ordered by the number embedded in their file names, so
// slice_2.png sorts before slice_10.png. PNG, JPEG, TIFF and BMP files are
// accepted; every slice must have the same dimensions.
package slices

import (
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"volmesh/internal/models"
)

// ErrNoSlices reports a directory without any supported image.
var ErrNoSlices = errors.New("no slice images found")

var extensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// ListSlices returns the supported image files of a directory in slice order.
func ListSlices(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading slice directory")
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if extensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(ErrNoSlices, "in %s", dir)
	}

	// equal numbers fall back to the name to keep the order stable
	sort.Slice(files, func(i, j int) bool {
		ni, nj := extractNumber(files[i]), extractNumber(files[j])
		if ni != nj {
			return ni < nj
		}
		return files[i] < files[j]
	})
	for i := range files {
		files[i] = filepath.Join(dir, files[i])
	}
	return files, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}

// LoadImage decodes one slice image.
func LoadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening slice")
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding slice %s", path)
	}
	return img, nil
}

// LoadVolume loads every slice of a directory into a volume. Slice k becomes
// z = k and grey values are scaled to [0,1].
func LoadVolume(dir string, voxelSize models.Spacing) (*models.Volume, error) {
	files, err := ListSlices(dir)
	if err != nil {
		return nil, err
	}
	images := make([]image.Image, 0, len(files))
	for _, f := range files {
		img, err := LoadImage(f)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return VolumeFromImages(images, voxelSize)
}

// VolumeFromImages stacks equally sized images into a volume.
func VolumeFromImages(images []image.Image, voxelSize models.Spacing) (*models.Volume, error) {
	if len(images) == 0 {
		return nil, ErrNoSlices
	}
	bounds := images[0].Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	vol := models.NewVolume(width, height, len(images), voxelSize)

	for z, img := range images {
		b := img.Bounds()
		if b.Dx() != width || b.Dy() != height {
			return nil, errors.Errorf("slice %d is %dx%d, expected %dx%d", z, b.Dx(), b.Dy(), width, height)
		}
		copy(vol.Data[z*width*height:], imageToFloat(img))
	}
	return vol, nil
}

// imageToFloat converts a single image to its grey values in [0,1]
func imageToFloat(img image.Image) []float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	result := make([]float64, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			result[y*width+x] = float64(g.Y) / 65535.0
		}
	}
	return result
}

// SliceImage converts one z layer of a volume into a 16 bit grey image.
// Values are clamped to [0,1].
func SliceImage(vol *models.Volume, z int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, vol.Width, vol.Height))
	for y := 0; y < vol.Height; y++ {
		for x := 0; x < vol.Width; x++ {
			v := vol.At(x, y, z)
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v * 65535)})
		}
	}
	return img
}

// SaveImage encodes an image by the extension of path: .png, .tif/.tiff or
// .bmp.
func SaveImage(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating image")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(file, img)
	case ".tif", ".tiff":
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	case ".bmp":
		err = bmp.Encode(file, img)
	default:
		err = errors.Errorf("unsupported image format %q", filepath.Ext(path))
	}
	if err != nil {
		file.Close()
		return errors.Wrapf(err, "encoding %s", path)
	}
	return errors.Wrap(file.Close(), "closing image")
}

// SaveVolume writes every z layer of a volume as slice_NNN.ext into dir.
func SaveVolume(dir string, vol *models.Volume, ext string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating slice directory")
	}
	for z := 0; z < vol.Depth; z++ {
		name := filepath.Join(dir, "slice_"+strconv.Itoa(z)+ext)
		if err := SaveImage(name, SliceImage(vol, z)); err != nil {
			return err
		}
	}
	return nil
}
