package model

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Dropout zeroes activations with probability p while training and scales
// the survivors by 1/(1-p), so evaluation needs no rescaling.
//
// The mask is an ordinary tensor multiplied into the input, which puts the
// multiplication on the gradient tape: dropped units receive zero gradient.
type Dropout[B tensor.Backend] struct {
	p        float32
	rng      *rand.Rand
	training bool
}

// NewDropout creates a dropout layer drawing masks from rng.
// It starts in training mode.
func NewDropout[B tensor.Backend](p float32, rng *rand.Rand) *Dropout[B] {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("dropout: probability must be in [0, 1), got %g", p))
	}
	return &Dropout[B]{p: p, rng: rng, training: true}
}

// Forward applies the random mask in training mode and is the identity
// otherwise.
func (d *Dropout[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !d.training || d.p == 0 {
		return input
	}

	scale := 1 / (1 - d.p)
	mask := make([]float32, input.NumElements())
	for i := range mask {
		if d.rng.Float32() >= d.p {
			mask[i] = scale
		}
	}

	m, err := tensor.FromSlice(mask, input.Shape(), input.Backend())
	if err != nil {
		panic(fmt.Sprintf("dropout: %v", err))
	}
	return input.Mul(m)
}

// Parameters returns nil; dropout has nothing to train.
func (d *Dropout[B]) Parameters() []*nn.Parameter[B] {
	return nil
}

// SetTraining switches between training and evaluation behaviour.
func (d *Dropout[B]) SetTraining(training bool) {
	d.training = training
}

// P returns the drop probability.
func (d *Dropout[B]) P() float32 {
	return d.p
}

func (d *Dropout[B]) String() string {
	return fmt.Sprintf("Dropout(p=%g)", d.p)
}
