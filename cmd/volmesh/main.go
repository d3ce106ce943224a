package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"volmesh/internal/models"
	"volmesh/pkg/chunkio"
	"volmesh/pkg/classify"
	"volmesh/pkg/config"
	"volmesh/pkg/marching"
	"volmesh/pkg/pipeline"
	"volmesh/pkg/preview"
	"volmesh/pkg/slices"
	"volmesh/pkg/stl"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing 2D slices (omit to use a synthetic phantom)")
	phantom := flag.String("phantom", "sphere", "Synthetic phantom when no input is given: sphere, box or torus")
	size := flag.Int("size", 64, "Edge length of the synthetic phantom in voxels")
	configPath := flag.String("config", "", "YAML configuration file")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this file and exit")
	outputPath := flag.String("output", "volmesh.stl", "Output STL filename")
	low := flag.Float64("low", 0, "Lower classification threshold")
	high := flag.Float64("high", 0, "Upper classification threshold")
	samples := flag.Int("samples", 0, "Supersampling radius of the classifier")
	limit := flag.Float64("limit", 0, "Fraction of samples that must pass the threshold")
	chunks := flag.Int("chunks", 0, "Number of chunks along z")
	workers := flag.Int("workers", 0, "Number of chunks processed in parallel")
	reduce := flag.Bool("reduce", true, "Reduce flat areas of the mesh")
	iterations := flag.Int("iterations", 0, "Flat-area reduction rounds")
	previewDir := flag.String("preview-dir", "", "Directory to save classification preview slices")
	chunkDir := flag.String("chunk-dir", "", "Directory to save every chunk mesh before merging")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	// flags given on the command line override the configuration
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "low":
			cfg.Classification.Low = *low
		case "high":
			cfg.Classification.High = *high
		case "samples":
			cfg.Classification.Samples = *samples
		case "limit":
			cfg.Classification.Limit = *limit
		case "chunks":
			cfg.Extraction.ChunksZ = *chunks
		case "workers":
			cfg.Extraction.NumWorkers = *workers
		case "reduce":
			cfg.Quality.ReduceFlatAreas = *reduce
		case "iterations":
			cfg.Quality.Iterations = *iterations
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Output.SaveChunks && *chunkDir == "" {
		*chunkDir = "chunks"
	}

	logger := newLogger(cfg.Output.Verbose, cfg.Output.LogFile)
	defer logger.Sync()

	fmt.Println("================================")
	fmt.Println("VOLMESH: SURFACE MESHES FROM CLASSIFIED VOLUMES")
	fmt.Println("================================")

	spacing := models.Spacing{X: cfg.Volume.VoxelSize.X, Y: cfg.Volume.VoxelSize.Y, Z: cfg.Volume.VoxelSize.Z}
	vol, err := loadVolume(*inputDir, *phantom, *size, spacing)
	if err != nil {
		logger.Fatal("loading volume failed", zap.Error(err))
	}
	logger.Info("volume loaded",
		zap.Int("width", vol.Width),
		zap.Int("height", vol.Height),
		zap.Int("depth", vol.Depth),
		zap.Float64s("voxelSize", []float64{spacing.X, spacing.Y, spacing.Z}))

	classifier, err := classify.NewMaskedThreshold(vol, nil, classify.MaskedParams{
		Low:       cfg.Classification.Low,
		High:      cfg.Classification.High,
		MaskValue: cfg.Classification.MaskValue,
		MaskBit:   cfg.Classification.MaskBit,
		Samples:   cfg.Classification.Samples,
		Limit:     cfg.Classification.Limit,
	})
	if err != nil {
		logger.Fatal("creating classifier failed", zap.Error(err))
	}

	if *previewDir != "" {
		viewer := preview.NewViewer(classifier, vol, 2)
		step := vol.Depth / 16
		n, err := viewer.SaveSliceSequence("z", step, *previewDir)
		if err != nil {
			logger.Warn("saving preview slices failed", zap.Error(err))
		} else {
			logger.Info("preview slices saved", zap.Int("slices", n), zap.String("dir", *previewDir))
		}
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithProgress(func(stage string, done, total int) {
			logger.Debug("progress", zap.String("stage", stage), zap.Int("done", done), zap.Int("total", total))
		}),
	}
	if *chunkDir != "" {
		opts = append(opts, pipeline.WithChunkSink(func(ch models.Chunk, out *pipeline.Output) error {
			path := filepath.Join(*chunkDir, fmt.Sprintf("chunk_%03d.pb", ch.Index))
			return chunkio.Save(path, &chunkio.Record{Chunk: ch, Mesh: out.Mesh, OpenEdges: out.OpenEdges, Stats: out.Stats})
		}))
	}
	generator := pipeline.NewGenerator(pipeline.ParamsFromConfig(cfg), opts...)

	fmt.Println("Starting mesh generation...")
	startTime := time.Now()
	out, err := generator.GenerateChunked(classifier, marching.FullVolume(classifier.Dimensions()))
	if err != nil {
		logger.Fatal("mesh generation failed", zap.Error(err))
	}

	if err := stl.SaveToSTL(*outputPath, stl.FromMesh(out.Mesh)); err != nil {
		logger.Fatal("saving STL failed", zap.Error(err))
	}
	processingTime := time.Since(startTime)

	s := out.Summary
	fmt.Printf("\nMesh generation completed in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Output mesh saved to: %s\n\n", *outputPath)
	fmt.Printf("Vertices: %d, faces: %d, components: %d\n", s.Vertices, s.Faces, s.Components)
	fmt.Printf("Closed: %v, manifold: %v, Euler characteristic: %d\n", s.Closed, s.Manifold, s.Euler)
	fmt.Printf("Area: %.2f mm^2, volume: %.2f mm^3\n", s.Area, s.Volume)
	fmt.Printf("Triangle quality: min %.3f, mean %.3f, median %.3f\n", s.MinQuality, s.MeanQuality, s.MedianQuality)
	fmt.Printf("Chunks: %d, removed vertices: %d, edge flips: %d\n", out.Chunks, out.Removed, out.Flips)
	if out.Stats.Inconsistencies > 0 || out.Orphaned > 0 {
		fmt.Printf("Warnings: %d ambiguous faces resolved by default, %d unmatched seam vertices\n",
			out.Stats.Inconsistencies, out.Orphaned)
	}
}

func loadVolume(inputDir, phantom string, size int, spacing models.Spacing) (*models.Volume, error) {
	if inputDir != "" {
		return slices.LoadVolume(inputDir, spacing)
	}
	return createPhantom(phantom, size, spacing)
}

// newLogger builds a JSON production logger on stderr, teed into a rotated
// file when logFile is set.
func newLogger(verbose bool, logFile string) *zap.Logger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level),
	}
	if logFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}
