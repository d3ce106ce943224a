// Package config provides configuration loading and management for volmesh.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Voxel classification parameters
	Classification struct {
		// Low and High bound the voxel values classified as inside
		Low  float64 `yaml:"low"`
		High float64 `yaml:"high"`

		// Samples is the supersampling radius, 0 samples the voxel only
		Samples int `yaml:"samples"`

		// Limit is the fraction of samples that must pass, in (0,1]
		Limit float64 `yaml:"limit"`

		// MaskValue selects mask bits and MaskBit is their required value
		MaskValue uint8 `yaml:"maskValue"`
		MaskBit   uint8 `yaml:"maskBit"`
	} `yaml:"classification"`

	// Surface extraction parameters
	Extraction struct {
		// ChunksZ and ChunksY split the volume into independently processed chunks
		ChunksZ int `yaml:"chunksZ"`
		ChunksY int `yaml:"chunksY"`

		// NumWorkers bounds the number of chunks processed at once
		NumWorkers int `yaml:"numWorkers"`

		// MaxWorkCells bounds the cells of one slab working matrix
		MaxWorkCells int `yaml:"maxWorkCells"`

		// MarkFaces tags every face with the slab that produced it
		MarkFaces bool `yaml:"markFaces"`
	} `yaml:"extraction"`

	// Mesh quality parameters
	Quality struct {
		// ReduceFlatAreas enables the flat-area reduction pass
		ReduceFlatAreas bool `yaml:"reduceFlatAreas"`

		// Iterations is the number of reduction rounds
		Iterations int `yaml:"iterations"`

		// EliminateNear also removes near-flat vertices
		EliminateNear bool `yaml:"eliminateNear"`

		// MaxEdgeLength caps edges created by the reduction, 0 disables the cap
		MaxEdgeLength float64 `yaml:"maxEdgeLength"`

		// SwapEdges enables the edge swapping pass
		SwapEdges bool `yaml:"swapEdges"`

		// SeamPass re-runs the reduction on merge seams
		SeamPass bool `yaml:"seamPass"`
	} `yaml:"quality"`

	// Volume geometry
	Volume struct {
		// VoxelSize is the physical voxel size per axis in mm
		VoxelSize struct {
			X float64 `yaml:"x"`
			Y float64 `yaml:"y"`
			Z float64 `yaml:"z"`
		} `yaml:"voxelSize"`
	} `yaml:"volume"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// LogFile additionally writes logs to a rotated file when set
		LogFile string `yaml:"logFile"`

		// SaveChunks writes every chunk mesh before merging
		SaveChunks bool `yaml:"saveChunks"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Classification.Low = 0.5
	cfg.Classification.High = 1e9
	cfg.Classification.Samples = 0
	cfg.Classification.Limit = 0.5
	cfg.Classification.MaskValue = 0
	cfg.Classification.MaskBit = 0

	cfg.Extraction.ChunksZ = 1
	cfg.Extraction.ChunksY = 1
	cfg.Extraction.NumWorkers = runtime.NumCPU() // Use all available cores by default
	cfg.Extraction.MaxWorkCells = 1 << 26
	cfg.Extraction.MarkFaces = false

	cfg.Quality.ReduceFlatAreas = true
	cfg.Quality.Iterations = 1
	cfg.Quality.EliminateNear = true
	cfg.Quality.MaxEdgeLength = 0
	cfg.Quality.SwapEdges = true
	cfg.Quality.SeamPass = true

	cfg.Volume.VoxelSize.X = 1
	cfg.Volume.VoxelSize.Y = 1
	cfg.Volume.VoxelSize.Z = 1

	cfg.Output.Verbose = true

	return cfg
}

// Validate checks the configuration for values the pipeline cannot use
func (c *Config) Validate() error {
	if c.Classification.Limit <= 0 || c.Classification.Limit > 1 {
		return errors.Errorf("classification.limit %g outside (0,1]", c.Classification.Limit)
	}
	if c.Classification.Samples < 0 {
		return errors.Errorf("classification.samples must not be negative, got %d", c.Classification.Samples)
	}
	if c.Extraction.ChunksZ < 1 || c.Extraction.ChunksY < 1 {
		return errors.Errorf("extraction chunk counts must be positive, got %dx%d", c.Extraction.ChunksZ, c.Extraction.ChunksY)
	}
	if c.Extraction.NumWorkers < 1 {
		return errors.Errorf("extraction.numWorkers must be positive, got %d", c.Extraction.NumWorkers)
	}
	if c.Extraction.MaxWorkCells < 1 {
		return errors.Errorf("extraction.maxWorkCells must be positive, got %d", c.Extraction.MaxWorkCells)
	}
	if c.Quality.Iterations < 0 || c.Quality.MaxEdgeLength < 0 {
		return errors.New("quality iterations and maxEdgeLength must not be negative")
	}
	vs := c.Volume.VoxelSize
	if vs.X <= 0 || vs.Y <= 0 || vs.Z <= 0 {
		return errors.Errorf("volume.voxelSize must be positive, got %gx%gx%g", vs.X, vs.Y, vs.Z)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file %s", configPath)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
