package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRecord(t *testing.T) {
	var h History
	h.Record(2.3, 10)
	h.Record(1.1, 50)

	assert.Equal(t, 2, h.Steps())
	assert.Equal(t, []float64{2.3, 1.1}, h.Loss())
	assert.Equal(t, []float64{10, 50}, h.Accuracy())
}

func TestSummarize(t *testing.T) {
	var h History
	for i, loss := range []float64{4, 3, 2, 1} {
		h.Record(loss, float64(i*10))
	}

	all := h.Summarize(0)
	assert.Equal(t, 4, all.Steps)
	assert.Equal(t, 4, all.Window)
	assert.InDelta(t, 2.5, all.LossMean, 1e-12)
	assert.InDelta(t, 1.0, all.LossMin, 1e-12)
	assert.InDelta(t, 30, all.AccuracyMax, 1e-12)
	assert.Greater(t, all.LossStd, 0.0)

	tail := h.Summarize(2)
	assert.Equal(t, 2, tail.Window)
	assert.InDelta(t, 1.5, tail.LossMean, 1e-12)
	assert.InDelta(t, 25, tail.AccuracyMean, 1e-12)

	single := h.Summarize(1)
	assert.Zero(t, single.LossStd)
	assert.InDelta(t, 1.0, single.LossMean, 1e-12)
}

func TestSummarizeEmpty(t *testing.T) {
	var h History
	assert.Equal(t, Summary{}, h.Summarize(10))
}

func TestMovingAverage(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}

	assert.InDeltaSlice(t, []float64{1, 1.5, 2, 3, 4}, MovingAverage(xs, 3), 1e-12)
	assert.Equal(t, xs, MovingAverage(xs, 1))
	assert.Empty(t, MovingAverage(nil, 4))
}

func TestCorrectAndPercent(t *testing.T) {
	pred := []int32{1, 2, 3, 4}
	labels := []int32{1, 0, 3, 0}

	c := Correct(pred, labels)
	require.Equal(t, 2, c)
	assert.InDelta(t, 50.0, Percent(c, len(labels)), 1e-12)
}

func TestPercentBounds(t *testing.T) {
	assert.Zero(t, Percent(0, 0))
	assert.Zero(t, Percent(3, 0))
	assert.Zero(t, Percent(-1, 10))
	assert.InDelta(t, 100, Percent(10, 10), 1e-12)
	assert.InDelta(t, 100, Percent(11, 10), 1e-12)

	for total := 1; total <= 50; total++ {
		for correct := 0; correct <= total; correct++ {
			p := Percent(correct, total)
			require.GreaterOrEqual(t, p, 0.0)
			require.LessOrEqual(t, p, 100.0)
		}
	}
}
