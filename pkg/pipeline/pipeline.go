// Package pipeline turns a classified volume into a finished surface mesh.
// It runs the marching cubes slab worker on one volume-of-interest or on a
// grid of chunks processed in parallel, merges the chunk meshes and runs the
// quality passes.
package pipeline

import (
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"volmesh/internal/models"
	"volmesh/pkg/classify"
	"volmesh/pkg/marching"
	"volmesh/pkg/merge"
	"volmesh/pkg/mesh"
	"volmesh/pkg/quality"
)

// Progress stages
const (
	StageSlabs  = "slabs"
	StageChunks = "chunks"
	StageMerge  = "merge"
)

// Output is a generated mesh with its bookkeeping.
type Output struct {
	Mesh      *mesh.Mesh
	OpenEdges marching.OpenEdges
	Stats     marching.Stats

	// Chunks is the number of chunk meshes merged into Mesh
	Chunks int

	// Orphaned counts unmatched seam vertices over all merges
	Orphaned int

	// Removed counts vertices removed by flat-area reduction
	Removed int

	// Flips counts edge swaps
	Flips int

	Summary quality.Summary
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithProgress installs an observer called with the stage name and its
// progress. It is only called from the goroutine running the Generator.
func WithProgress(fn func(stage string, done, total int)) Option {
	return func(g *Generator) { g.progress = fn }
}

// WithChunkSink installs a callback receiving every chunk mesh of
// GenerateChunked in chunk order, before the chunks are merged. The output
// is modified by the merge afterwards and must not be retained.
func WithChunkSink(fn func(models.Chunk, *Output) error) Option {
	return func(g *Generator) { g.sink = fn }
}

// Generator orchestrates mesh generation.
type Generator struct {
	params   Params
	logger   *zap.Logger
	progress func(stage string, done, total int)
	sink     func(models.Chunk, *Output) error
}

// NewGenerator creates a new Generator with the given parameters.
func NewGenerator(params Params, opts ...Option) *Generator {
	if params.NumWorkers < 1 {
		params.NumWorkers = runtime.NumCPU()
	}
	if params.MaxWorkCells < 1 {
		params.MaxWorkCells = marching.DefaultMaxWorkCells
	}
	if params.Epsilon <= 0 {
		params.Epsilon = merge.DefaultEpsilon
	}
	g := &Generator{
		params: params,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Params returns the effective parameters.
func (g *Generator) Params() Params { return g.params }

// GenerateMesh extracts the surface inside one VOI, runs the quality passes
// and compacts the mesh.
func (g *Generator) GenerateMesh(c classify.Classifier, voi marching.VOI) (*Output, error) {
	start := time.Now()
	opts := g.params.workerOptions()
	if g.progress != nil {
		opts = append(opts, marching.WithProgress(func(done, total int) {
			g.progress(StageSlabs, done, total)
		}))
	}

	out, err := g.extract(c, voi, opts...)
	if err != nil {
		return nil, err
	}
	g.reduce(out)
	g.finish(out)

	g.logger.Info("mesh generated",
		zap.Object("summary", out.Summary),
		zap.Int("removed", out.Removed),
		zap.Int("flips", out.Flips),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// MergeMeshes merges source into target and, when enabled, reduces the flat
// areas around the seam. The target keeps removed elements as tombstones
// until it is compacted; GenerateChunked does that after the last merge.
func (g *Generator) MergeMeshes(target, source *Output) (*merge.Result, error) {
	if target == nil || source == nil {
		return nil, errors.New("merge: nil output")
	}
	res, err := merge.Merge(target.Mesh, target.OpenEdges, source.Mesh, source.OpenEdges, merge.Options{Epsilon: g.params.Epsilon})
	if err != nil {
		return nil, errors.Wrap(err, "merging meshes")
	}

	target.OpenEdges = res.Open
	target.Orphaned += res.Orphaned
	target.Removed += source.Removed
	target.Chunks += source.Chunks
	target.Stats.Add(source.Stats)

	if res.Orphaned > 0 {
		g.logger.Warn("degraded merge, seam vertices without partner",
			zap.Int("orphaned", res.Orphaned),
			zap.Int("seamVertices", len(res.SeamVertices)))
	}
	if g.params.SeamPass && g.params.ReduceFlatAreas {
		target.Removed += quality.ReduceFlatAreasAt(target.Mesh, res.SeamVertices, g.params.qualityOptions())
	}
	return res, nil
}

// GenerateChunked splits the VOI into ChunksZ x ChunksY chunks, extracts
// and reduces them on NumWorkers goroutines and merges them in chunk order.
func (g *Generator) GenerateChunked(c classify.Classifier, voi marching.VOI) (*Output, error) {
	if c == nil {
		return nil, errors.Wrap(marching.ErrConfiguration, "nil classifier")
	}
	if err := voi.Validate(c.Dimensions()); err != nil {
		return nil, err
	}
	start := time.Now()
	chunks := SplitVOI(voi, g.params.ChunksZ, g.params.ChunksY)
	g.logger.Info("generating chunked mesh",
		zap.Int("chunks", len(chunks)),
		zap.Int("workers", g.params.NumWorkers))

	outputs, err := g.processChunksInParallel(c, chunks)
	if err != nil {
		return nil, err
	}

	if g.sink != nil {
		for i, ch := range chunks {
			if err := g.sink(ch, outputs[i]); err != nil {
				return nil, errors.Wrapf(err, "chunk sink for %s", ch)
			}
		}
	}

	result := outputs[0]
	for i := 1; i < len(outputs); i++ {
		if _, err := g.MergeMeshes(result, outputs[i]); err != nil {
			return nil, errors.Wrapf(err, "merging %s", chunks[i])
		}
		outputs[i] = nil
		if g.progress != nil {
			g.progress(StageMerge, i, len(outputs)-1)
		}
	}
	g.finish(result)

	g.logger.Info("chunked mesh generated",
		zap.Object("summary", result.Summary),
		zap.Int("chunks", result.Chunks),
		zap.Int("orphaned", result.Orphaned),
		zap.Int("removed", result.Removed),
		zap.Int("flips", result.Flips),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// processChunksInParallel runs one worker per chunk on a bounded pool and returns
// the outputs in chunk order.
func (g *Generator) processChunksInParallel(c classify.Classifier, chunks []models.Chunk) ([]*Output, error) {
	type processingResult struct {
		index int
		out   *Output
		err   error
	}
	jobs := make(chan models.Chunk)
	resultChan := make(chan processingResult)

	workers := g.params.NumWorkers
	if workers > len(chunks) {
		workers = len(chunks)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ch := range jobs {
				out, err := g.generateChunk(c, ch)
				resultChan <- processingResult{index: ch.Index, out: out, err: err}
			}
		}()
	}
	go func() {
		for _, ch := range chunks {
			jobs <- ch
		}
		close(jobs)
	}()
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	// drain every result so no worker blocks after an error
	outputs := make([]*Output, len(chunks))
	var firstErr error
	completed := 0
	for res := range resultChan {
		completed++
		if res.err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(res.err, "processing %s", chunks[res.index])
			}
			continue
		}
		outputs[res.index] = res.out
		g.logger.Debug("chunk done",
			zap.Stringer("chunk", chunks[res.index]),
			zap.Int("faces", res.out.Mesh.FaceCount()),
			zap.Int("openEdgeVertices", res.out.OpenEdges.Len()))
		if g.progress != nil {
			g.progress(StageChunks, completed, len(chunks))
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return outputs, nil
}

func (g *Generator) generateChunk(c classify.Classifier, ch models.Chunk) (*Output, error) {
	out, err := g.extract(c, marching.FromChunk(ch), g.params.workerOptions()...)
	if err != nil {
		return nil, err
	}
	g.reduce(out)
	compact(out)
	return out, nil
}

func (g *Generator) extract(c classify.Classifier, voi marching.VOI, opts ...marching.Option) (*Output, error) {
	w := marching.NewWorker(opts...)
	w.SetVolumeOfInterest(voi)
	if err := w.Generate(c); err != nil {
		return nil, errors.Wrapf(err, "extracting surface in %+v", voi)
	}
	st := w.Stats()
	if st.Inconsistencies > 0 {
		g.logger.Warn("ambiguous faces resolved by default rule",
			zap.Int("inconsistencies", st.Inconsistencies),
			zap.Int("ambiguousFaces", st.AmbiguousFaces))
	}
	g.logger.Debug("surface extracted",
		zap.Int("slabs", st.Slabs),
		zap.Int("activeCubes", st.ActiveCubes),
		zap.Int("vertices", st.Vertices),
		zap.Int("faces", st.Faces),
		zap.Int("centreVertices", st.CentreVertices),
		zap.Int("openEdgeVertices", st.OpenEdgeVertices))
	return &Output{
		Mesh:      w.Mesh(),
		OpenEdges: w.OpenEdges(),
		Stats:     st,
		Chunks:    1,
	}, nil
}

func (g *Generator) reduce(out *Output) {
	if g.params.ReduceFlatAreas {
		out.Removed += quality.ReduceFlatAreas(out.Mesh, g.params.qualityOptions())
	}
}

// finish swaps edges, compacts and summarises the mesh.
func (g *Generator) finish(out *Output) {
	if g.params.SwapEdges {
		out.Flips += quality.SwapEdges(out.Mesh, quality.DefaultSwapOptions())
	}
	compact(out)
	out.Summary = quality.Report(out.Mesh)
}

func compact(out *Output) {
	remap := out.Mesh.Compact()
	out.OpenEdges = out.OpenEdges.Remap(remap)
}
