// Package config holds the knobs of a training run.
//
// Defaults follow the classic MNIST recipe: batch size 50, Adam with
// learning rate 1e-4, 15 epochs, progress every 1000 steps and a 1000
// sample evaluation batch. A run needs no configuration at all; a YAML file
// and command line flags only override.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Device names accepted by Config.Device.
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceGPU  = "gpu"
)

// DefaultMirrors are tried in order when a dataset file is missing.
var DefaultMirrors = []string{
	"https://ossci-datasets.s3.amazonaws.com/mnist/",
	"https://storage.googleapis.com/cvdf-datasets/mnist/",
	"http://yann.lecun.com/exdb/mnist/",
}

// Config captures the runtime knobs for a training run.
type Config struct {
	DataDir  string   `yaml:"data_dir"`
	Download bool     `yaml:"download"`
	Mirrors  []string `yaml:"mirrors"`

	Epochs        int     `yaml:"epochs"`
	BatchSize     int     `yaml:"batch_size"`
	TestBatchSize int     `yaml:"test_batch_size"`
	LearningRate  float64 `yaml:"learning_rate"`
	Dropout       float64 `yaml:"dropout"`
	LogEvery      int     `yaml:"log_every"`
	Seed          int64   `yaml:"seed"`
	TrainLimit    int     `yaml:"train_limit"`
	TestLimit     int     `yaml:"test_limit"`

	Device  string `yaml:"device"`
	PlotDir string `yaml:"plot_dir"`
	Plots   bool   `yaml:"plots"`

	// Synthetic trains on generated patterns instead of MNIST; nothing is
	// downloaded or read from DataDir.
	Synthetic bool `yaml:"synthetic"`
}

// Overrides captures CLI supplied values. Zero values leave the config
// untouched.
type Overrides struct {
	DataDir       string
	Epochs        int
	BatchSize     int
	TestBatchSize int
	LearningRate  float64
	LogEvery      int
	Seed          int64
	TrainLimit    int
	TestLimit     int
	Device        string
	PlotDir       string
	NoDownload    bool
	NoPlots       bool
	Synthetic     bool
}

// Default returns the classic configuration.
func Default() Config {
	return Config{
		DataDir:       "data",
		Download:      true,
		Mirrors:       append([]string(nil), DefaultMirrors...),
		Epochs:        15,
		BatchSize:     50,
		TestBatchSize: 1000,
		LearningRate:  1e-4,
		Dropout:       0.5,
		LogEvery:      1000,
		Seed:          1,
		Device:        DeviceAuto,
		PlotDir:       ".",
		Plots:         true,
	}
}

// Load reads a YAML file on top of Default.
//
// Keys that do not map to a Config field are rejected so typos surface
// instead of silently training with defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := decode(f, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.TestBatchSize > 0 {
		c.TestBatchSize = o.TestBatchSize
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.TrainLimit > 0 {
		c.TrainLimit = o.TrainLimit
	}
	if o.TestLimit > 0 {
		c.TestLimit = o.TestLimit
	}
	if o.Device != "" {
		c.Device = o.Device
	}
	if o.PlotDir != "" {
		c.PlotDir = o.PlotDir
	}
	if o.NoDownload {
		c.Download = false
	}
	if o.NoPlots {
		c.Plots = false
	}
	if o.Synthetic {
		c.Synthetic = true
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir must be set", ErrInvalid)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("%w: epochs must be > 0 (got %d)", ErrInvalid, c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be > 0 (got %d)", ErrInvalid, c.BatchSize)
	}
	if c.TestBatchSize <= 0 {
		return fmt.Errorf("%w: test_batch_size must be > 0 (got %d)", ErrInvalid, c.TestBatchSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("%w: learning_rate must be > 0 (got %g)", ErrInvalid, c.LearningRate)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return fmt.Errorf("%w: dropout must be in [0, 1) (got %g)", ErrInvalid, c.Dropout)
	}
	if c.TrainLimit < 0 || c.TestLimit < 0 {
		return fmt.Errorf("%w: sample limits must be >= 0", ErrInvalid)
	}
	switch c.Device {
	case DeviceAuto, DeviceCPU, DeviceGPU:
	default:
		return fmt.Errorf("%w: unknown device %q (want auto, cpu or gpu)", ErrInvalid, c.Device)
	}
	if c.Download && !c.Synthetic && len(c.Mirrors) == 0 {
		return fmt.Errorf("%w: download enabled but no mirrors configured", ErrInvalid)
	}
	if c.LogEvery <= 0 {
		c.LogEvery = Default().LogEvery
	}
	return nil
}
