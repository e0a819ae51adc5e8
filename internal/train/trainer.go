// Package train runs the optimisation loop and the held-out evaluation.
package train

import (
	"context"
	"fmt"
	"io"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/born-mnist/internal/metrics"
	"github.com/born-ml/born-mnist/internal/mnist"
	"github.com/born-ml/born-mnist/internal/model"
)

// Trainer owns a model, its optimizer and the recorded training curve.
//
// B is the compute backend (CPU, WebGPU); the trainer wraps it with
// autodiff so every forward pass can be differentiated.
type Trainer[B tensor.Backend] struct {
	backend   *autodiff.Backend[B]
	net       *model.Net[*autodiff.Backend[B]]
	optimizer optim.Optimizer
	history   metrics.History

	step     int
	logEvery int
	out      io.Writer
}

// NewTrainer creates a trainer using Adam (betas 0.9/0.999, eps 1e-8).
//
// Every logEvery optimizer steps, starting with the first, a progress line
// is written to out.
func NewTrainer[B tensor.Backend](
	backend *autodiff.Backend[B],
	net *model.Net[*autodiff.Backend[B]],
	lr float64,
	logEvery int,
	out io.Writer,
) *Trainer[B] {
	if logEvery <= 0 {
		logEvery = 1
	}
	return &Trainer[B]{
		backend: backend,
		net:     net,
		optimizer: optim.NewAdam(
			net.Parameters(),
			optim.AdamConfig{
				LR:    float32(lr),
				Betas: [2]float32{0.9, 0.999},
				Eps:   1e-8,
			},
			backend,
		),
		logEvery: logEvery,
		out:      out,
	}
}

// History returns the per-step loss and accuracy recorded so far.
func (t *Trainer[B]) History() *metrics.History {
	return &t.history
}

// Steps returns the number of optimizer steps taken.
func (t *Trainer[B]) Steps() int {
	return t.step
}

// LearningRate returns the optimizer's current learning rate.
func (t *Trainer[B]) LearningRate() float32 {
	return t.optimizer.GetLR()
}

// TrainEpoch runs one pass over loader. ctx is checked between steps.
func (t *Trainer[B]) TrainEpoch(ctx context.Context, loader *mnist.Loader) error {
	t.net.Train()
	tape := t.backend.Tape()
	tape.StartRecording()

	ds := loader.Dataset()
	for _, idx := range loader.Epoch() {
		if err := ctx.Err(); err != nil {
			tape.Clear()
			return err
		}

		batch, err := mnist.MakeBatch(ds, idx, t.backend)
		if err != nil {
			tape.Clear()
			return err
		}
		loss, acc := t.Step(batch)

		if t.step%t.logEvery == 0 {
			fmt.Fprintf(t.out, "Train Step: %d\tLoss: %.3f\tAccuracy: %.3f\n", t.step, loss, acc)
		}
		t.step++
	}
	return nil
}

// Step performs one optimizer update on batch and records it.
//
// Returns the batch loss and the batch accuracy in percent. The tape must
// be recording.
func (t *Trainer[B]) Step(batch *mnist.Batch[*autodiff.Backend[B]]) (loss, accuracy float64) {
	t.optimizer.ZeroGrad()

	logits := t.net.Forward(batch.Images)
	lossRaw := t.backend.CrossEntropy(logits.Raw(), batch.Labels.Raw())
	lossTensor := tensor.New[float32, *autodiff.Backend[B]](lossRaw, t.backend)
	loss = float64(lossRaw.AsFloat32()[0])

	accuracy = metrics.Percent(correct(logits, batch.Labels), batch.Size)

	grads := autodiff.Backward(lossTensor, t.backend)
	t.optimizer.Step(grads)

	t.backend.Tape().Clear()

	t.history.Record(loss, accuracy)
	return loss, accuracy
}

// Evaluation is the outcome of scoring a dataset.
type Evaluation struct {
	Correct  int
	Total    int
	Accuracy float64 // percent
	Loss     float64 // mean batch loss
}

// Evaluate scores every sample of loader with dropout disabled and without
// recording gradients. The previous mode and tape state are restored.
func (t *Trainer[B]) Evaluate(ctx context.Context, loader *mnist.Loader) (Evaluation, error) {
	tape := t.backend.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if wasRecording {
			tape.StartRecording()
		}
	}()

	wasTraining := t.net.Training()
	t.net.Eval()
	defer func() {
		if wasTraining {
			t.net.Train()
		}
	}()

	var (
		ev        Evaluation
		totalLoss float64
		batches   int
	)
	ds := loader.Dataset()
	for _, idx := range loader.Epoch() {
		if err := ctx.Err(); err != nil {
			return ev, err
		}
		batch, err := mnist.MakeBatch(ds, idx, t.backend)
		if err != nil {
			return ev, err
		}

		logits := t.net.Forward(batch.Images)
		lossRaw := t.backend.CrossEntropy(logits.Raw(), batch.Labels.Raw())
		totalLoss += float64(lossRaw.AsFloat32()[0])
		batches++

		ev.Correct += correct(logits, batch.Labels)
		ev.Total += batch.Size
	}

	ev.Accuracy = metrics.Percent(ev.Correct, ev.Total)
	if batches > 0 {
		ev.Loss = totalLoss / float64(batches)
	}
	return ev, nil
}

// correct counts rows of logits whose highest score is at the label.
func correct[B tensor.Backend](logits *tensor.Tensor[float32, B], labels *tensor.Tensor[int32, B]) int {
	return metrics.Correct(logits.Argmax(1).Data(), labels.Data())
}
