// Package metrics records per-step training curves and classification
// accuracy.
package metrics

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// History is the per-step loss and accuracy of a training run.
type History struct {
	loss     []float64
	accuracy []float64 // percent
}

// Record appends one optimizer step.
func (h *History) Record(loss, accuracy float64) {
	h.loss = append(h.loss, loss)
	h.accuracy = append(h.accuracy, accuracy)
}

// Steps returns the number of recorded steps.
func (h *History) Steps() int {
	return len(h.loss)
}

// Loss returns the recorded loss values. The slice must not be modified.
func (h *History) Loss() []float64 {
	return h.loss
}

// Accuracy returns the recorded accuracies in percent. The slice must not
// be modified.
func (h *History) Accuracy() []float64 {
	return h.accuracy
}

// Summary describes the tail of a History.
type Summary struct {
	Steps        int
	Window       int
	LossMean     float64
	LossStd      float64
	LossMin      float64
	AccuracyMean float64
	AccuracyStd  float64
	AccuracyMax  float64
}

// Summarize aggregates the last window steps, or all of them when window
// is non-positive or larger than the history.
func (h *History) Summarize(window int) Summary {
	n := h.Steps()
	if n == 0 {
		return Summary{}
	}
	if window <= 0 || window > n {
		window = n
	}
	loss := h.loss[n-window:]
	acc := h.accuracy[n-window:]

	s := Summary{Steps: n, Window: window}
	s.LossMean, s.LossStd = stat.MeanStdDev(loss, nil)
	s.AccuracyMean, s.AccuracyStd = stat.MeanStdDev(acc, nil)
	s.LossMin = floats.Min(loss)
	s.AccuracyMax = floats.Max(acc)
	if window == 1 {
		// MeanStdDev divides by n-1.
		s.LossStd, s.AccuracyStd = 0, 0
	}
	return s
}

// MovingAverage smooths xs with a trailing window. Element i averages
// xs[max(0, i-window+1) : i+1].
func MovingAverage(xs []float64, window int) []float64 {
	if window <= 1 {
		return append([]float64(nil), xs...)
	}
	out := make([]float64, len(xs))
	for i := range xs {
		lo := max(0, i-window+1)
		out[i] = stat.Mean(xs[lo:i+1], nil)
	}
	return out
}

// Correct counts predictions that equal their label.
func Correct(predictions, labels []int32) int {
	n := 0
	for i, p := range predictions {
		if i < len(labels) && p == labels[i] {
			n++
		}
	}
	return n
}

// Percent returns 100*correct/total, clamped to [0, 100]. An empty total
// yields 0.
func Percent(correct, total int) float64 {
	if total <= 0 || correct <= 0 {
		return 0
	}
	if correct >= total {
		return 100
	}
	return 100 * float64(correct) / float64(total)
}
