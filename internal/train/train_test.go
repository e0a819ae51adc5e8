package train

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/born-mnist/internal/config"
	"github.com/born-ml/born-mnist/internal/mnist"
	"github.com/born-ml/born-mnist/internal/model"
	"github.com/born-ml/born-mnist/internal/plot"
)

func smallModel() model.Config {
	return model.Config{
		ImageSize:     28,
		Conv1Channels: 4,
		Conv2Channels: 8,
		Kernel:        5,
		Hidden:        32,
		Classes:       10,
		Dropout:       0.5,
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Download = false
	cfg.Plots = false
	cfg.Epochs = 2
	cfg.BatchSize = 4
	cfg.TestBatchSize = 5
	cfg.LearningRate = 1e-3
	cfg.LogEvery = 1
	return cfg
}

func syntheticData(train, test int) Data {
	return Data{Train: mnist.Synthetic(train), Test: mnist.Synthetic(test)}
}

func TestFitOnSyntheticData(t *testing.T) {
	var out bytes.Buffer
	res, err := Fit(context.Background(), testConfig(), smallModel(), cpu.New(), syntheticData(20, 10), &out)
	require.NoError(t, err)

	assert.Equal(t, 10, res.Steps, "2 epochs x 5 batches")
	assert.Equal(t, 10, res.History.Steps())
	for i, acc := range res.History.Accuracy() {
		require.GreaterOrEqual(t, acc, 0.0, "step %d", i)
		require.LessOrEqual(t, acc, 100.0, "step %d", i)
	}
	for i, loss := range res.History.Loss() {
		require.False(t, math.IsNaN(loss) || math.IsInf(loss, 0), "step %d loss %v", i, loss)
	}

	assert.Equal(t, 10, res.Test.Total)
	assert.GreaterOrEqual(t, res.Test.Accuracy, 0.0)
	assert.LessOrEqual(t, res.Test.Accuracy, 100.0)
	assert.Empty(t, res.Plots)

	report := out.String()
	assert.Contains(t, report, "Net(\n")
	assert.Contains(t, report, "conv1.weight")
	assert.Contains(t, report, "Train Step: 0\tLoss: ")
	assert.Contains(t, report, "\nTest set: Accuracy: ")
}

func TestFitLogsEveryNSteps(t *testing.T) {
	cfg := testConfig()
	cfg.LogEvery = 3

	var out bytes.Buffer
	_, err := Fit(context.Background(), cfg, smallModel(), cpu.New(), syntheticData(20, 5), &out)
	require.NoError(t, err)

	assert.Equal(t, 4, strings.Count(out.String(), "Train Step: "), "steps 0, 3, 6 and 9")
	assert.Contains(t, out.String(), "Train Step: 9\t")
}

func TestFitReducesLossOnSeparableData(t *testing.T) {
	cfg := testConfig()
	cfg.Epochs = 8
	cfg.BatchSize = 10
	cfg.LearningRate = 3e-3
	mcfg := smallModel()
	mcfg.Dropout = 0

	res, err := Fit(context.Background(), cfg, mcfg, cpu.New(), syntheticData(40, 10), &bytes.Buffer{})
	require.NoError(t, err)

	loss := res.History.Loss()
	require.Len(t, loss, 32)
	first := (loss[0] + loss[1] + loss[2] + loss[3]) / 4
	last := (loss[28] + loss[29] + loss[30] + loss[31]) / 4
	assert.Less(t, last, first)
}

func TestFitWritesPlots(t *testing.T) {
	cfg := testConfig()
	cfg.Epochs = 1
	cfg.Plots = true
	cfg.PlotDir = t.TempDir()

	res, err := Fit(context.Background(), cfg, smallModel(), cpu.New(), syntheticData(8, 4), &bytes.Buffer{})
	require.NoError(t, err)

	require.Len(t, res.Plots, 2)
	assert.FileExists(t, filepath.Join(cfg.PlotDir, plot.LossFile))
	assert.FileExists(t, filepath.Join(cfg.PlotDir, plot.AccuracyFile))
}

func TestFitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Fit(ctx, testConfig(), smallModel(), cpu.New(), syntheticData(8, 4), &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFitRejectsEmptyData(t *testing.T) {
	_, err := Fit(context.Background(), testConfig(), smallModel(), cpu.New(), Data{Train: mnist.Synthetic(4)}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = Fit(context.Background(), testConfig(), smallModel(), cpu.New(), Data{Test: mnist.Synthetic(4)}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestEvaluateRestoresTrainingState(t *testing.T) {
	backend := autodiff.New(cpu.New())
	net := model.New(smallModel(), backend, rand.New(rand.NewSource(1)))
	trainer := NewTrainer(backend, net, 1e-3, 1, &bytes.Buffer{})

	backend.Tape().StartRecording()
	net.Train()

	ev, err := trainer.Evaluate(context.Background(), mnist.NewLoader(mnist.Synthetic(7), 3, false, 1))
	require.NoError(t, err)

	assert.Equal(t, 7, ev.Total)
	assert.LessOrEqual(t, ev.Correct, ev.Total)
	assert.True(t, net.Training())
	assert.True(t, backend.Tape().IsRecording())
	assert.Zero(t, backend.Tape().NumOps(), "evaluation must not record operations")
	assert.Zero(t, trainer.Steps())
}

func TestCorrectCountsArgmaxHits(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()
	defer backend.Tape().StopRecording()

	logits, err := tensor.FromSlice([]float32{
		0.1, 2.0, 0.3, // 1
		3.0, 0.0, 0.5, // 0
		0.2, 0.1, 0.9, // 2
		1.0, 4.0, 2.0, // 1
	}, tensor.Shape{4, 3}, backend)
	require.NoError(t, err)
	labels, err := tensor.FromSlice([]int32{1, 0, 1, 1}, tensor.Shape{4}, backend)
	require.NoError(t, err)

	assert.Equal(t, []int32{1, 0, 2, 1}, logits.Argmax(1).Data())
	assert.Equal(t, 3, correct(logits, labels))
}

func TestModelConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Dropout = 0.25

	mcfg, err := ModelConfig(cfg, mnist.Synthetic(1))
	require.NoError(t, err)
	assert.Equal(t, 28, mcfg.ImageSize)
	assert.Equal(t, 10, mcfg.Classes)
	assert.InDelta(t, 0.25, mcfg.Dropout, 1e-6)

	_, err = ModelConfig(cfg, &mnist.Dataset{Rows: 28, Cols: 20})
	assert.Error(t, err)

	_, err = ModelConfig(cfg, &mnist.Dataset{Rows: 30, Cols: 30})
	assert.Error(t, err)
}

// writeExtracted stores an uncompressed split the way other tooling leaves
// it after unpacking the archives.
func writeExtracted(t *testing.T, dir, prefix string, labels []byte) {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, binary.Write(&img, binary.BigEndian, [4]uint32{0x803, uint32(len(labels)), 28, 28}))
	for _, l := range labels {
		img.Write(bytes.Repeat([]byte{l * 20}, 28*28))
	}
	var lbl bytes.Buffer
	require.NoError(t, binary.Write(&lbl, binary.BigEndian, [2]uint32{0x801, uint32(len(labels))}))
	lbl.Write(labels)

	require.NoError(t, os.WriteFile(filepath.Join(dir, prefix+"-images-idx3-ubyte"), img.Bytes(), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, prefix+"-labels-idx1-ubyte"), lbl.Bytes(), 0o600))
}

func TestLoadDataFromDisk(t *testing.T) {
	dir := t.TempDir()
	writeExtracted(t, dir, "train", []byte{0, 1, 2, 3, 4, 5})
	writeExtracted(t, dir, "t10k", []byte{6, 7, 8})

	cfg := testConfig()
	cfg.DataDir = dir
	cfg.TrainLimit = 4

	data, err := LoadData(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, data.Train.Len())
	assert.Equal(t, 3, data.Test.Len())
	assert.Equal(t, []int32{6, 7, 8}, data.Test.Labels)
}

func TestLoadDataSynthetic(t *testing.T) {
	cfg := testConfig()
	cfg.Synthetic = true
	cfg.Download = true
	cfg.Mirrors = []string{"http://127.0.0.1:1/unreachable/"}
	cfg.DataDir = filepath.Join(t.TempDir(), "absent")

	data, err := LoadData(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, syntheticTrain, data.Train.Len())
	assert.Equal(t, syntheticTest, data.Test.Len())
	assert.NoDirExists(t, cfg.DataDir)

	cfg.TrainLimit, cfg.TestLimit = 30, 7
	data, err = LoadData(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 30, data.Train.Len())
	assert.Equal(t, 7, data.Test.Len())
}

func TestRunSynthetic(t *testing.T) {
	cfg := testConfig()
	cfg.Synthetic = true
	cfg.Epochs = 1
	cfg.TrainLimit, cfg.TestLimit = 8, 5

	var out bytes.Buffer
	res, err := Run(context.Background(), cfg, cpu.New(), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, 5, res.Test.Total)
	assert.Contains(t, out.String(), "Test set: Accuracy: ")
}

func TestRunWithoutDataset(t *testing.T) {
	cfg := testConfig()
	cfg.DataDir = t.TempDir()

	_, err := Run(context.Background(), cfg, cpu.New(), &bytes.Buffer{})
	assert.ErrorIs(t, err, mnist.ErrNotFound)
}
