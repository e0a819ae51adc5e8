// Command mnist trains a two-layer convolutional network on MNIST and
// reports its accuracy on the test split.
//
// Usage:
//
//	go run ./cmd/mnist -epochs 1 -train-limit 5000
//	go run ./cmd/mnist -config mnist.yaml -device cpu
//	go run ./cmd/mnist -synthetic -epochs 2
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/born-ml/born/backend/cpu"

	"github.com/born-ml/born-mnist/internal/config"
	"github.com/born-ml/born-mnist/internal/mnist"
	"github.com/born-ml/born-mnist/internal/train"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (defaults are used when empty)")
	dataDir := flag.String("data", "", "Directory holding the MNIST files")
	epochs := flag.Int("epochs", 0, "Number of passes over the training split")
	batchSize := flag.Int("batch", 0, "Training batch size")
	testBatch := flag.Int("test-batch", 0, "Evaluation batch size")
	lr := flag.Float64("lr", 0, "Adam learning rate")
	logEvery := flag.Int("log-every", 0, "Print progress every N steps")
	seed := flag.Int64("seed", 0, "PRNG seed for shuffling and dropout")
	trainLimit := flag.Int("train-limit", 0, "Use only the first N training samples")
	testLimit := flag.Int("test-limit", 0, "Use only the first N test samples")
	device := flag.String("device", "", "Compute device: auto, cpu or gpu")
	plotDir := flag.String("plot-dir", "", "Directory for the training curve images")
	noDownload := flag.Bool("no-download", false, "Never fetch missing dataset files")
	noPlots := flag.Bool("no-plots", false, "Skip writing training curves")
	synthetic := flag.Bool("synthetic", false, "Use generated patterns instead of MNIST (no download)")

	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	cfg.ApplyOverrides(config.Overrides{
		DataDir:       *dataDir,
		Epochs:        *epochs,
		BatchSize:     *batchSize,
		TestBatchSize: *testBatch,
		LearningRate:  *lr,
		LogEvery:      *logEvery,
		Seed:          *seed,
		TrainLimit:    *trainLimit,
		TestLimit:     *testLimit,
		Device:        *device,
		PlotDir:       *plotDir,
		NoDownload:    *noDownload,
		NoPlots:       *noPlots,
		Synthetic:     *synthetic,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := run(ctx, cfg, os.Stdout)
	if err != nil {
		if errors.Is(err, mnist.ErrNotFound) {
			log.Fatalf("training failed: %v (place the MNIST files under %s, drop -no-download or run with -synthetic)", err, cfg.DataDir)
		}
		log.Fatalf("training failed: %v", err)
	}
	log.Printf("done: steps=%d test_accuracy=%.2f test_loss=%.4f elapsed=%s",
		res.Steps, res.Test.Accuracy, res.Test.Loss, res.Duration)
}

// runCPU trains on the pure Go backend.
func runCPU(ctx context.Context, cfg config.Config, out io.Writer) (*train.Result, error) {
	return train.Run(ctx, cfg, cpu.New(), out)
}
