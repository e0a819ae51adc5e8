package mnist

import (
	"sort"
	"testing"

	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatten(batches [][]int) []int {
	var out []int
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

func TestLoaderLen(t *testing.T) {
	ds := Synthetic(103)

	assert.Equal(t, 3, NewLoader(ds, 50, false, 1).Len())
	assert.Equal(t, 1, NewLoader(ds, 1000, false, 1).Len())
	assert.Equal(t, 103, NewLoader(ds, 1, false, 1).Len())
}

func TestLoaderEpochCoversEverySampleOnce(t *testing.T) {
	ds := Synthetic(103)
	loader := NewLoader(ds, 50, true, 7)

	batches := loader.Epoch()
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 50)
	assert.Len(t, batches[1], 50)
	assert.Len(t, batches[2], 3, "last batch holds the remainder")

	all := flatten(batches)
	sort.Ints(all)
	for i, v := range all {
		require.Equal(t, i, v)
	}
}

func TestLoaderWithoutShuffleKeepsOrder(t *testing.T) {
	loader := NewLoader(Synthetic(10), 4, false, 1)

	assert.Equal(t, [][]int{{0, 1, 2, 3}, {4, 5, 6, 7}, {8, 9}}, loader.Epoch())
	assert.Equal(t, [][]int{{0, 1, 2, 3}, {4, 5, 6, 7}, {8, 9}}, loader.Epoch())
}

func TestLoaderShuffleIsSeeded(t *testing.T) {
	ds := Synthetic(200)

	a := NewLoader(ds, 32, true, 42)
	b := NewLoader(ds, 32, true, 42)
	c := NewLoader(ds, 32, true, 43)

	first := a.Epoch()
	assert.Equal(t, first, b.Epoch())
	assert.NotEqual(t, first, c.Epoch())
	assert.NotEqual(t, first, a.Epoch(), "each epoch reshuffles")
}

func TestLoaderPanicsOnBadBatchSize(t *testing.T) {
	assert.Panics(t, func() { NewLoader(Synthetic(1), 0, false, 1) })
}

func TestMakeBatch(t *testing.T) {
	backend := cpu.New()
	ds := Synthetic(12)

	batch, err := MakeBatch(ds, []int{3, 7, 11}, backend)
	require.NoError(t, err)

	assert.Equal(t, 3, batch.Size)
	assert.True(t, batch.Images.Shape().Equal(tensor.Shape{3, 1, 28, 28}))
	assert.True(t, batch.Labels.Shape().Equal(tensor.Shape{3}))
	assert.Equal(t, []int32{3, 7, 1}, batch.Labels.Data())

	pixels := batch.Images.Data()
	assert.Equal(t, ds.Images[7], pixels[784:2*784])
}

func TestMakeBatchErrors(t *testing.T) {
	backend := cpu.New()
	ds := Synthetic(4)

	_, err := MakeBatch(ds, nil, backend)
	assert.Error(t, err)

	_, err = MakeBatch(ds, []int{0, 9}, backend)
	assert.ErrorContains(t, err, "out of range")
}
