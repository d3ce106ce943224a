package preview

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"volmesh/internal/models"
	"volmesh/pkg/classify"
)

// createVolume returns a volume where each z slice has a unique value and a
// threshold classifier selecting the upper half of the slices
func createVolume(width, height, depth int) (*models.Volume, classify.Classifier) {
	vol := models.NewVolume(width, height, depth, models.UnitSpacing)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.Set(x, y, z, float64(z)/float64(depth))
			}
		}
	}
	c, err := classify.NewThreshold(vol, 0.5, 1)
	if err != nil {
		panic(err)
	}
	return vol, c
}

// TestExtractSlice verifies that slices are correctly extracted from the volume
func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 8, 6
	vol, c := createVolume(width, height, depth)
	viewer := NewViewer(c, vol, 1)

	for z := 0; z < depth; z++ {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != width || bounds.Dy() != height {
			t.Errorf("Expected Z slice dimensions %dx%d, got %dx%d", width, height, bounds.Dx(), bounds.Dy())
		}

		rgba, ok := img.(*image.RGBA)
		if !ok {
			t.Fatalf("Expected *image.RGBA, got %T", img)
		}
		p := rgba.RGBAAt(width/2, height/2)
		inside := float64(z)/float64(depth) >= 0.5
		if tinted := p.R > p.G; tinted != inside {
			t.Errorf("Slice %d: pixel %v, inside %v", z, p, inside)
		}
		if want := uint8(float64(z) / float64(depth) * 255); !inside && p.G != want {
			t.Errorf("Slice %d: expected grey %d, got %d", z, want, p.G)
		}
	}

	imgX, err := viewer.ExtractSlice("x", width/2)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := imgX.Bounds(); b.Dx() != depth || b.Dy() != height {
		t.Errorf("Expected X slice dimensions %dx%d, got %dx%d", depth, height, b.Dx(), b.Dy())
	}

	imgY, err := viewer.ExtractSlice("Y", height/2)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := imgY.Bounds(); b.Dx() != width || b.Dy() != depth {
		t.Errorf("Expected Y slice dimensions %dx%d, got %dx%d", width, depth, b.Dx(), b.Dy())
	}

	if _, err := viewer.ExtractSlice("invalid", 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := viewer.ExtractSlice("z", depth); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
	if _, err := viewer.ExtractSlice("z", -1); err == nil {
		t.Error("Expected error for negative position, got nil")
	}
}

func TestScaleAndPhantom(t *testing.T) {
	c := &classify.Func{
		Size:   models.Size3{X: 4, Y: 4, Z: 4},
		Inside: func(x, y, z int) bool { return x == 1 && y == 2 },
	}
	viewer := NewViewer(c, nil, 3)
	img, err := viewer.ExtractSlice("z", 0)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 12 || b.Dy() != 12 {
		t.Fatalf("Expected a 12x12 image, got %v", b)
	}
	rgba := img.(*image.RGBA)
	for dy := 0; dy < 3; dy++ {
		for dx := 0; dx < 3; dx++ {
			if p := rgba.RGBAAt(3+dx, 6+dy); p.R == 0 {
				t.Errorf("Pixel (%d,%d) of the inside voxel is not tinted: %v", 3+dx, 6+dy, p)
			}
		}
	}
	if p := rgba.RGBAAt(0, 0); p.R != 0 || p.G != 0 || p.B != 0 {
		t.Errorf("Outside pixel without volume should be black, got %v", p)
	}
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	vol, c := createVolume(5, 5, 7)
	viewer := NewViewer(c, vol, 2)
	outputDir := filepath.Join(t.TempDir(), "slices")

	saved, err := viewer.SaveSliceSequence("z", 3, outputDir)
	if err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}
	if saved != 3 {
		t.Errorf("Expected 3 slices, got %d", saved)
	}
	for _, z := range []int{0, 3, 6} {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_z_%03d.png", z))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected slice file does not exist: %s", filename)
		}
	}

	if _, err := viewer.SaveSliceSequence("invalid", 1, outputDir); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}

// TestSaveSlice verifies that slices can be saved as JPEG
func TestSaveSlice(t *testing.T) {
	vol, c := createVolume(6, 6, 2)
	viewer := NewViewer(c, vol, 1)
	img, err := viewer.ExtractSlice("z", 1)
	if err != nil {
		t.Fatal(err)
	}
	filename := filepath.Join(t.TempDir(), "test_slice.jpg")
	if err := viewer.SaveSlice(img, filename); err != nil {
		t.Fatalf("Failed to save slice: %v", err)
	}
	if info, err := os.Stat(filename); err != nil || info.Size() == 0 {
		t.Errorf("Saved file is missing or empty: %v", err)
	}
}
