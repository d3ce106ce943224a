package pipeline

import (
	"math"

	"volmesh/internal/models"
	"volmesh/pkg/marching"
)

// SplitVOI divides a VOI into nz slabs along z and ny strips along y.
// Adjacent chunks share one voxel layer, so their open edges coincide.
// Chunks are ordered z major, y minor. Counts larger than the number of
// cubes along an axis are clamped to it.
func SplitVOI(voi marching.VOI, nz, ny int) []models.Chunk {
	zb := splitRange(voi.StartZ, voi.EndZ, nz)
	yb := splitRange(voi.StartY, voi.EndY, ny)

	chunks := make([]models.Chunk, 0, (len(zb)-1)*(len(yb)-1))
	for k := 0; k+1 < len(zb); k++ {
		for j := 0; j+1 < len(yb); j++ {
			c := voi
			c.StartZ, c.EndZ = zb[k], zb[k+1]
			c.StartY, c.EndY = yb[j], yb[j+1]
			chunks = append(chunks, c.Chunk(len(chunks)))
		}
	}
	return chunks
}

// splitRange returns n+1 boundaries from start to end.
func splitRange(start, end, n int) []int {
	span := end - start
	if n < 1 {
		n = 1
	}
	if n > span && span > 0 {
		n = span
	}
	b := make([]int, n+1)
	for k := 0; k <= n; k++ {
		b[k] = start + int(math.Round(float64(k*span)/float64(n)))
	}
	return b
}
