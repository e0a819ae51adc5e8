// Package model defines the convolutional digit classifier.
package model

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Config describes the network layout.
type Config struct {
	ImageSize     int     // Input height and width.
	Conv1Channels int     // Feature maps after the first convolution.
	Conv2Channels int     // Feature maps after the second convolution.
	Kernel        int     // Square kernel size of both convolutions.
	Hidden        int     // Width of the fully connected hidden layer.
	Classes       int     // Number of output classes.
	Dropout       float32 // Drop probability before the output layer.
}

// DefaultConfig is the classic MNIST network: two 5x5 "same" convolutions
// with 32 and 64 maps, each followed by 2x2 max pooling, a 1024 unit hidden
// layer and 10 outputs.
func DefaultConfig() Config {
	return Config{
		ImageSize:     28,
		Conv1Channels: 32,
		Conv2Channels: 64,
		Kernel:        5,
		Hidden:        1024,
		Classes:       10,
		Dropout:       0.5,
	}
}

// features is the flattened size after the two pooling stages.
func (c Config) features() int {
	side := c.ImageSize / 4
	return c.Conv2Channels * side * side
}

// Net is a two-block CNN for single channel images.
//
// Architecture (default config):
//
//	Input: [batch, 1, 28, 28]
//	Conv1: 1 -> 32 channels, 5x5, padding 2 -> [batch, 32, 28, 28]
//	ReLU, MaxPool 2x2                        -> [batch, 32, 14, 14]
//	Conv2: 32 -> 64 channels, 5x5, padding 2 -> [batch, 64, 14, 14]
//	ReLU, MaxPool 2x2                        -> [batch, 64, 7, 7]
//	Flatten                                  -> [batch, 3136]
//	FC1: 3136 -> 1024, ReLU, Dropout(0.5)
//	FC2: 1024 -> 10 (class scores)
//
// Forward returns logits. Training pairs them with born's CrossEntropy,
// which applies log-softmax and the negative log-likelihood in one op.
type Net[B tensor.Backend] struct {
	cfg Config

	conv1 *nn.Conv2D[B]
	relu1 *nn.ReLU[B]
	pool1 *nn.MaxPool2D[B]
	conv2 *nn.Conv2D[B]
	relu2 *nn.ReLU[B]
	pool2 *nn.MaxPool2D[B]
	fc1   *nn.Linear[B]
	relu3 *nn.ReLU[B]
	drop  *Dropout[B]
	fc2   *nn.Linear[B]

	training bool
}

// New builds a network on backend. Weights use born's Xavier
// initialisation; rng only drives the dropout masks.
func New[B tensor.Backend](cfg Config, backend B, rng *rand.Rand) *Net[B] {
	if cfg.ImageSize%4 != 0 {
		panic(fmt.Sprintf("model: image size %d is not divisible by 4", cfg.ImageSize))
	}
	pad := cfg.Kernel / 2 // keeps the spatial size for odd kernels

	return &Net[B]{
		cfg:   cfg,
		conv1: nn.NewConv2D(1, cfg.Conv1Channels, cfg.Kernel, cfg.Kernel, 1, pad, true, backend),
		relu1: nn.NewReLU[B](),
		pool1: nn.NewMaxPool2D(2, 2, backend),
		conv2: nn.NewConv2D(cfg.Conv1Channels, cfg.Conv2Channels, cfg.Kernel, cfg.Kernel, 1, pad, true, backend),
		relu2: nn.NewReLU[B](),
		pool2: nn.NewMaxPool2D(2, 2, backend),
		fc1:   nn.NewLinear(cfg.features(), cfg.Hidden, backend),
		relu3: nn.NewReLU[B](),
		drop:  NewDropout[B](cfg.Dropout, rng),
		fc2:   nn.NewLinear(cfg.Hidden, cfg.Classes, backend),

		training: true,
	}
}

// Config returns the layout the network was built with.
func (m *Net[B]) Config() Config {
	return m.cfg
}

// Forward computes class scores.
//
// Input is [batch, side*side] or [batch, 1, side, side]; output is
// [batch, classes].
func (m *Net[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	side := m.cfg.ImageSize
	shape := input.Shape()
	switch len(shape) {
	case 2:
		input = input.Reshape(shape[0], 1, side, side)
	case 4:
	default:
		panic(fmt.Sprintf("model: expected 2D [batch, %d] or 4D [batch, 1, %d, %d] input, got %dD",
			side*side, side, side, len(shape)))
	}

	x := m.pool1.Forward(m.relu1.Forward(m.conv1.Forward(input)))
	x = m.pool2.Forward(m.relu2.Forward(m.conv2.Forward(x)))

	x = x.Reshape(x.Shape()[0], m.cfg.features())

	x = m.drop.Forward(m.relu3.Forward(m.fc1.Forward(x)))
	return m.fc2.Forward(x)
}

// Train enables dropout.
func (m *Net[B]) Train() {
	m.training = true
	m.drop.SetTraining(true)
}

// Eval disables dropout.
func (m *Net[B]) Eval() {
	m.training = false
	m.drop.SetTraining(false)
}

// Training reports whether the network is in training mode.
func (m *Net[B]) Training() bool {
	return m.training
}

// Parameters returns all trainable parameters in layer order.
func (m *Net[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 8)
	params = append(params, m.conv1.Parameters()...)
	params = append(params, m.conv2.Parameters()...)
	params = append(params, m.fc1.Parameters()...)
	params = append(params, m.fc2.Parameters()...)
	return params
}

// NamedParameter pairs a parameter with its qualified name.
type NamedParameter[B tensor.Backend] struct {
	Name  string
	Param *nn.Parameter[B]
}

// NamedParameters returns the parameters with layer qualified names such as
// "conv1.weight", in the same order as Parameters.
func (m *Net[B]) NamedParameters() []NamedParameter[B] {
	layers := []struct {
		name   string
		params []*nn.Parameter[B]
	}{
		{"conv1", m.conv1.Parameters()},
		{"conv2", m.conv2.Parameters()},
		{"fc1", m.fc1.Parameters()},
		{"fc2", m.fc2.Parameters()},
	}

	var out []NamedParameter[B]
	for _, l := range layers {
		for i, p := range l.params {
			suffix := "weight"
			if i == 1 {
				suffix = "bias"
			}
			out = append(out, NamedParameter[B]{Name: l.name + "." + suffix, Param: p})
		}
	}
	return out
}

// NumParameters counts trainable scalars.
func (m *Net[B]) NumParameters() int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Tensor().Shape().NumElements()
	}
	return total
}

// String returns the architecture summary.
func (m *Net[B]) String() string {
	var sb strings.Builder
	sb.WriteString("Net(\n")
	row := func(name, desc string) {
		fmt.Fprintf(&sb, "  (%s): %s\n", name, desc)
	}
	row("conv1", m.conv1.String())
	row("pool1", m.pool1.String())
	row("conv2", m.conv2.String())
	row("pool2", m.pool2.String())
	row("fc1", linearString(m.fc1))
	row("dropout", m.drop.String())
	row("fc2", linearString(m.fc2))
	sb.WriteString(")")
	return sb.String()
}

func linearString[B tensor.Backend](l *nn.Linear[B]) string {
	return fmt.Sprintf("Linear(in_features=%d, out_features=%d, bias=true)", l.InFeatures(), l.OutFeatures())
}
