package pipeline

import (
	"runtime"

	"volmesh/pkg/config"
	"volmesh/pkg/marching"
	"volmesh/pkg/merge"
	"volmesh/pkg/quality"
)

// Params contains all parameters for mesh generation
type Params struct {
	// ReduceFlatAreas runs the flat-area reduction after extraction
	ReduceFlatAreas bool

	// Iterations is the number of reduction rounds
	Iterations int

	// EliminateNear also removes near-flat vertices
	EliminateNear bool

	// MaxEdgeLength caps edges created by the reduction, 0 disables the cap
	MaxEdgeLength float64

	// SwapEdges runs edge swapping on the final mesh
	SwapEdges bool

	// SeamPass re-runs the reduction on the vertices of every merge seam
	SeamPass bool

	// ChunksZ and ChunksY split the volume for GenerateChunked
	ChunksZ int
	ChunksY int

	// NumWorkers bounds the chunks processed at once
	NumWorkers int

	// MaxWorkCells bounds the working matrices of one worker
	MaxWorkCells int

	// MarkFaces tags every face with its slab index
	MarkFaces bool

	// Epsilon is the seam matching tolerance
	Epsilon float64
}

// DefaultParams returns the default generation parameters.
func DefaultParams() Params {
	return Params{
		ReduceFlatAreas: true,
		Iterations:      1,
		EliminateNear:   true,
		SwapEdges:       true,
		SeamPass:        true,
		ChunksZ:         1,
		ChunksY:         1,
		NumWorkers:      runtime.NumCPU(),
		MaxWorkCells:    marching.DefaultMaxWorkCells,
		Epsilon:         merge.DefaultEpsilon,
	}
}

// ParamsFromConfig maps a loaded configuration onto generation parameters.
func ParamsFromConfig(cfg *config.Config) Params {
	p := DefaultParams()
	p.ReduceFlatAreas = cfg.Quality.ReduceFlatAreas
	p.Iterations = cfg.Quality.Iterations
	p.EliminateNear = cfg.Quality.EliminateNear
	p.MaxEdgeLength = cfg.Quality.MaxEdgeLength
	p.SwapEdges = cfg.Quality.SwapEdges
	p.SeamPass = cfg.Quality.SeamPass
	p.ChunksZ = cfg.Extraction.ChunksZ
	p.ChunksY = cfg.Extraction.ChunksY
	p.NumWorkers = cfg.Extraction.NumWorkers
	p.MaxWorkCells = cfg.Extraction.MaxWorkCells
	p.MarkFaces = cfg.Extraction.MarkFaces
	return p
}

func (p Params) qualityOptions() quality.Options {
	return quality.Options{
		Iterations:    p.Iterations,
		EliminateNear: p.EliminateNear,
		MaxEdgeLength: p.MaxEdgeLength,
	}
}

func (p Params) workerOptions() []marching.Option {
	return []marching.Option{
		marching.WithMaxWorkCells(p.MaxWorkCells),
		marching.WithMarkFaces(p.MarkFaces),
	}
}
