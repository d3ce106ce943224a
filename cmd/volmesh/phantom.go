package main

import (
	"math"

	"github.com/pkg/errors"

	"volmesh/internal/models"
)

// phantoms generate synthetic test volumes; the value is 1 inside the shape
// and 0 outside
var phantoms = map[string]func(x, y, z, c, size float64) bool{
	"sphere": func(x, y, z, c, size float64) bool {
		r := 0.35 * size
		return (x-c)*(x-c)+(y-c)*(y-c)+(z-c)*(z-c) <= r*r
	},
	"box": func(x, y, z, c, size float64) bool {
		h := 0.25 * size
		return math.Abs(x-c) <= h && math.Abs(y-c) <= h && math.Abs(z-c) <= h
	},
	"torus": func(x, y, z, c, size float64) bool {
		major, minor := 0.28*size, 0.12*size
		q := math.Hypot(x-c, y-c) - major
		return q*q+(z-c)*(z-c) <= minor*minor
	},
}

func createPhantom(name string, size int, spacing models.Spacing) (*models.Volume, error) {
	inside, ok := phantoms[name]
	if !ok {
		return nil, errors.Errorf("unknown phantom %q (sphere, box or torus)", name)
	}
	if size < 2 {
		return nil, errors.Errorf("phantom size must be at least 2, got %d", size)
	}

	vol := models.NewVolume(size, size, size, spacing)
	c, s := float64(size-1)/2, float64(size)
	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				if inside(float64(x), float64(y), float64(z), c, s) {
					vol.Set(x, y, z, 1)
				}
			}
		}
	}
	return vol, nil
}
