package train

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/born-mnist/internal/config"
	"github.com/born-ml/born-mnist/internal/metrics"
	"github.com/born-ml/born-mnist/internal/mnist"
	"github.com/born-ml/born-mnist/internal/model"
	"github.com/born-ml/born-mnist/internal/plot"
)

// Result summarises a finished run.
type Result struct {
	History  *metrics.History
	Test     Evaluation
	Steps    int
	Plots    []string
	Duration time.Duration
}

// Data is a pair of loaded splits.
type Data struct {
	Train *mnist.Dataset
	Test  *mnist.Dataset
}

// Sample counts of the generated splits when no limit is configured.
const (
	syntheticTrain = 1000
	syntheticTest  = 200
)

// LoadData fetches (when enabled) and decodes both splits described by cfg.
// With cfg.Synthetic both splits are generated and the data directory is
// not touched.
func LoadData(ctx context.Context, cfg config.Config) (Data, error) {
	if cfg.Synthetic {
		return Data{
			Train: mnist.Synthetic(sampleCount(cfg.TrainLimit, syntheticTrain)),
			Test:  mnist.Synthetic(sampleCount(cfg.TestLimit, syntheticTest)),
		}, nil
	}
	if cfg.Download {
		err := mnist.Fetch(ctx, mnist.Options{Dir: cfg.DataDir, Mirrors: cfg.Mirrors})
		if err != nil {
			return Data{}, err
		}
	}

	trainSet, err := mnist.Load(cfg.DataDir, mnist.Train, cfg.TrainLimit)
	if err != nil {
		return Data{}, err
	}
	testSet, err := mnist.Load(cfg.DataDir, mnist.Test, cfg.TestLimit)
	if err != nil {
		return Data{}, err
	}
	return Data{Train: trainSet, Test: testSet}, nil
}

func sampleCount(limit, fallback int) int {
	if limit > 0 {
		return limit
	}
	return fallback
}

// ModelConfig derives the network layout from cfg and the image geometry of
// ds.
func ModelConfig(cfg config.Config, ds *mnist.Dataset) (model.Config, error) {
	if ds.Rows != ds.Cols {
		return model.Config{}, fmt.Errorf("non-square images %dx%d", ds.Rows, ds.Cols)
	}
	mcfg := model.DefaultConfig()
	mcfg.ImageSize = ds.Rows
	mcfg.Dropout = float32(cfg.Dropout)
	mcfg.Classes = mnist.Classes
	if mcfg.ImageSize%4 != 0 {
		return model.Config{}, fmt.Errorf("image size %d is not divisible by 4", mcfg.ImageSize)
	}
	return mcfg, nil
}

// Run executes the full pipeline on base: load data, build the model, train
// for cfg.Epochs, evaluate on the test split and plot the curves.
//
// Parameters:
//   - ctx: cancels downloads and training between optimizer steps
//   - cfg: validated run configuration
//   - base: compute backend (CPU or WebGPU); Run wraps it with autodiff
//   - out: receives the model summary, progress lines and test accuracy
//
// Returns:
//   - The training history, test evaluation and written plot paths
//   - mnist.ErrNotFound when the dataset is missing and downloads are off
func Run[B tensor.Backend](ctx context.Context, cfg config.Config, base B, out io.Writer) (*Result, error) {
	data, err := LoadData(ctx, cfg)
	if err != nil {
		return nil, err
	}
	mcfg, err := ModelConfig(cfg, data.Train)
	if err != nil {
		return nil, err
	}
	return Fit(ctx, cfg, mcfg, base, data, out)
}

// Fit trains a fresh model on data.Train and evaluates it on data.Test.
//
// Parameters:
//   - cfg: epochs, batch sizes, learning rate, seed, log cadence and plots
//   - mcfg: network layout, usually from ModelConfig
//   - base: compute backend to wrap with autodiff
//   - data: both splits, each non-empty
//   - out: destination of the user-facing report
//
// Returns:
//   - Result after the last epoch and the test evaluation
//   - ctx.Err() (wrapped) when the run is canceled
func Fit[B tensor.Backend](
	ctx context.Context,
	cfg config.Config,
	mcfg model.Config,
	base B,
	data Data,
	out io.Writer,
) (*Result, error) {
	if data.Train == nil || data.Train.Len() == 0 {
		return nil, errors.New("train: empty training set")
	}
	if data.Test == nil || data.Test.Len() == 0 {
		return nil, errors.New("train: empty test set")
	}
	start := time.Now()

	backend := autodiff.New(base)
	//nolint:gosec // Dropout masks are not security-sensitive.
	net := model.New(mcfg, backend, rand.New(rand.NewSource(cfg.Seed)))

	fmt.Fprintf(out, "Device: %s\n", backend.Name())
	fmt.Fprintln(out, net)
	for _, p := range net.NamedParameters() {
		fmt.Fprintf(out, "%-13s %v\n", p.Name, p.Param.Tensor().Shape())
	}
	fmt.Fprintf(out, "Trainable parameters: %d\n", net.NumParameters())

	trainer := NewTrainer(backend, net, cfg.LearningRate, cfg.LogEvery, out)
	trainLoader := mnist.NewLoader(data.Train, cfg.BatchSize, true, cfg.Seed)
	testLoader := mnist.NewLoader(data.Test, cfg.TestBatchSize, false, cfg.Seed)

	log.Printf("train: samples=%d test_samples=%d batches_per_epoch=%d epochs=%d lr=%g",
		data.Train.Len(), data.Test.Len(), trainLoader.Len(), cfg.Epochs, trainer.LearningRate())

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		epochStart := time.Now()
		if err := trainer.TrainEpoch(ctx, trainLoader); err != nil {
			return nil, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		s := trainer.History().Summarize(trainLoader.Len())
		log.Printf("train: epoch=%d/%d steps=%d loss_mean=%.4f loss_std=%.4f accuracy_mean=%.2f elapsed=%s",
			epoch, cfg.Epochs, s.Steps, s.LossMean, s.LossStd, s.AccuracyMean,
			time.Since(epochStart).Round(time.Millisecond))
	}

	ev, err := trainer.Evaluate(ctx, testLoader)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	fmt.Fprintf(out, "\nTest set: Accuracy: %.2f%%\n", ev.Accuracy)

	res := &Result{
		History: trainer.History(),
		Test:    ev,
		Steps:   trainer.Steps(),
	}

	if cfg.Plots {
		paths, err := plot.Curves(res.History, cfg.PlotDir)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			fmt.Fprintf(out, "Saved plot %s\n", p)
		}
		res.Plots = paths
	}

	res.Duration = time.Since(start)
	return res, nil
}
