package mnist

import (
	"fmt"
	"math/rand"
	"runtime"

	"github.com/born-ml/born/tensor"

	"github.com/born-ml/born-mnist/internal/parallel"
)

// batchCopy splits image copies once a batch holds a few hundred samples.
var batchCopy = parallel.Config{Workers: runtime.NumCPU(), MinChunk: 128}

// Loader yields mini-batch index sets over a Dataset.
type Loader struct {
	ds        *Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	order     []int
}

// NewLoader creates a loader. With shuffle set every call to Epoch returns
// a fresh permutation drawn from a generator seeded with seed.
func NewLoader(ds *Dataset, batchSize int, shuffle bool, seed int64) *Loader {
	if batchSize <= 0 {
		panic(fmt.Sprintf("mnist: invalid batch size %d", batchSize))
	}
	order := make([]int, ds.Len())
	for i := range order {
		order[i] = i
	}
	return &Loader{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		//nolint:gosec // Sample order is not security-sensitive.
		rng:   rand.New(rand.NewSource(seed)),
		order: order,
	}
}

// Dataset returns the underlying dataset.
func (l *Loader) Dataset() *Dataset {
	return l.ds
}

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int {
	return l.batchSize
}

// Len returns the number of batches per epoch. The last batch may be short.
func (l *Loader) Len() int {
	return (l.ds.Len() + l.batchSize - 1) / l.batchSize
}

// Epoch returns the sample indices of every batch for one pass over the
// dataset. Each index appears exactly once.
func (l *Loader) Epoch() [][]int {
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}

	batches := make([][]int, 0, l.Len())
	for lo := 0; lo < len(l.order); lo += l.batchSize {
		hi := min(lo+l.batchSize, len(l.order))
		idx := make([]int, hi-lo)
		copy(idx, l.order[lo:hi])
		batches = append(batches, idx)
	}
	return batches
}

// Batch is a mini-batch materialised as tensors on a backend.
type Batch[B tensor.Backend] struct {
	Images *tensor.Tensor[float32, B] // [n, 1, rows, cols]
	Labels *tensor.Tensor[int32, B]   // [n]
	Size   int
}

// MakeBatch copies the samples at idx into tensors allocated on backend.
//
// Parameters:
//   - ds: source dataset
//   - idx: sample indices, typically one entry of Loader.Epoch
//   - backend: backend owning the new tensors
//
// Returns:
//   - Batch with images shaped [len(idx), 1, rows, cols] and labels [len(idx)]
//   - Error for an empty idx or an index outside the dataset
func MakeBatch[B tensor.Backend](ds *Dataset, idx []int, backend B) (*Batch[B], error) {
	n := len(idx)
	if n == 0 {
		return nil, fmt.Errorf("mnist: empty batch")
	}
	size := ds.Rows * ds.Cols

	imagesRaw, err := tensor.NewRaw(tensor.Shape{n, 1, ds.Rows, ds.Cols}, tensor.Float32, backend.Device())
	if err != nil {
		return nil, fmt.Errorf("failed to create images tensor: %w", err)
	}
	labelsRaw, err := tensor.NewRaw(tensor.Shape{n}, tensor.Int32, backend.Device())
	if err != nil {
		return nil, fmt.Errorf("failed to create labels tensor: %w", err)
	}

	labels := labelsRaw.AsInt32()
	for k, i := range idx {
		if i < 0 || i >= ds.Len() {
			return nil, fmt.Errorf("mnist: sample index %d out of range [0, %d)", i, ds.Len())
		}
		labels[k] = ds.Labels[i]
	}

	images := imagesRaw.AsFloat32()
	parallel.For(n, batchCopy, func(k int) {
		copy(images[k*size:(k+1)*size], ds.Images[idx[k]])
	})

	return &Batch[B]{
		Images: tensor.New[float32, B](imagesRaw, backend),
		Labels: tensor.New[int32, B](labelsRaw, backend),
		Size:   n,
	}, nil
}
