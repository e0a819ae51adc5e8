package mnist

import (
	"fmt"
	"path/filepath"

	"github.com/petar/GoMNIST"

	"github.com/born-ml/born-mnist/internal/parallel"
)

// Dataset holds decoded images and labels of one split.
type Dataset struct {
	Images [][]float32 // [num_samples][rows*cols], values in [0, 1]
	Labels []int32     // [num_samples], values in [0, Classes)
	Rows   int
	Cols   int
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Subset returns a view of the first n samples. n <= 0 or n >= Len returns d.
func (d *Dataset) Subset(n int) *Dataset {
	if n <= 0 || n >= d.Len() {
		return d
	}
	return &Dataset{
		Images: d.Images[:n],
		Labels: d.Labels[:n],
		Rows:   d.Rows,
		Cols:   d.Cols,
	}
}

// Load decodes one split from dir.
//
// The gzip archives are read with GoMNIST; when they are absent the
// extracted IDX files are used. limit > 0 keeps only the first limit
// samples. Pixels are scaled from 0-255 to [0, 1].
//
// Parameters:
//   - dir: directory holding the archives or the extracted files
//   - split: Train or Test
//   - limit: maximum number of samples, 0 for all
//
// Returns:
//   - Dataset with normalised pixels and int32 labels
//   - ErrNotFound when neither form of the split exists
func Load(dir string, split Split, limit int) (*Dataset, error) {
	imgArchive, lblArchive := split.archives()

	var (
		rows, cols int
		images     [][]byte
		labels     []byte
	)

	gzImages := filepath.Join(dir, imgArchive.name)
	gzLabels := filepath.Join(dir, lblArchive.name)
	rawImages := filepath.Join(dir, imgArchive.extracted())
	rawLabels := filepath.Join(dir, lblArchive.extracted())

	switch {
	case exists(gzImages) && exists(gzLabels):
		set, err := GoMNIST.ReadSet(gzImages, gzLabels)
		if err != nil {
			return nil, fmt.Errorf("decode %s set: %w", split, err)
		}
		rows, cols = set.NRow, set.NCol
		images = make([][]byte, len(set.Images))
		for i, img := range set.Images {
			images[i] = img
		}
		labels = make([]byte, len(set.Labels))
		for i, l := range set.Labels {
			labels[i] = byte(l)
		}

	case exists(rawImages) && exists(rawLabels):
		var err error
		rows, cols, images, labels, err = readExtracted(rawImages, rawLabels)
		if err != nil {
			return nil, fmt.Errorf("decode %s set: %w", split, err)
		}

	default:
		return nil, fmt.Errorf("%w: %s set in %s", ErrNotFound, split, dir)
	}

	if len(images) != len(labels) {
		return nil, fmt.Errorf("%s set: image count (%d) != label count (%d)", split, len(images), len(labels))
	}

	n := len(images)
	if limit > 0 && limit < n {
		n = limit
	}
	return normalize(rows, cols, images[:n], labels[:n])
}

func normalize(rows, cols int, images [][]byte, labels []byte) (*Dataset, error) {
	size := rows * cols
	ds := &Dataset{
		Images: make([][]float32, len(images)),
		Labels: make([]int32, len(labels)),
		Rows:   rows,
		Cols:   cols,
	}

	for i, l := range labels {
		if int(l) >= Classes {
			return nil, fmt.Errorf("label out of range [0, %d) at sample %d: %d", Classes, i, l)
		}
		ds.Labels[i] = int32(l)
	}

	pixels := make([]float32, len(images)*size)
	parallel.Chunks(len(images), parallel.DefaultConfig(), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			img := pixels[i*size : (i+1)*size : (i+1)*size]
			for j, p := range images[i][:size] {
				img[j] = float32(p) / 255.0
			}
			ds.Images[i] = img
		}
	})
	return ds, nil
}

// Synthetic builds n 28x28 samples whose label is encoded as the vertical
// position of a bright band. It lets the pipeline run without the real
// dataset.
func Synthetic(n int) *Dataset {
	const side = 28
	ds := &Dataset{
		Images: make([][]float32, n),
		Labels: make([]int32, n),
		Rows:   side,
		Cols:   side,
	}
	for i := 0; i < n; i++ {
		digit := i % Classes
		img := make([]float32, side*side)
		start := digit * 2
		for row := start; row < start+8 && row < side; row++ {
			for col := 5; col < 23; col++ {
				img[row*side+col] = 0.8
			}
		}
		ds.Images[i] = img
		ds.Labels[i] = int32(digit)
	}
	return ds
}
