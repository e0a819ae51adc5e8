// Package mnist fetches, caches, decodes and batches the MNIST handwritten
// digit dataset.
//
// The four official gzip files are cached in a data directory. Decoding
// prefers the gzip files and falls back to already extracted IDX files, so
// a directory populated by other tooling works as well.
package mnist

import (
	"errors"
	"os"
	"path/filepath"
)

// Classes is the number of digit classes.
const Classes = 10

var (
	// ErrNotFound is returned when neither compressed nor extracted files
	// exist for a split.
	ErrNotFound = errors.New("mnist: dataset files not found")

	// ErrChecksum is returned when a file does not match its known digest.
	ErrChecksum = errors.New("mnist: checksum mismatch")
)

// Split selects the training or the held-out test set.
type Split int

const (
	Train Split = iota
	Test
)

func (s Split) String() string {
	if s == Test {
		return "test"
	}
	return "train"
}

// file is one of the four distributed archives.
type file struct {
	name   string
	sha256 string
}

var (
	trainImages = file{"train-images-idx3-ubyte.gz", "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609"}
	trainLabels = file{"train-labels-idx1-ubyte.gz", "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c"}
	testImages  = file{"t10k-images-idx3-ubyte.gz", "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6"}
	testLabels  = file{"t10k-labels-idx1-ubyte.gz", "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6"}
)

func (s Split) archives() (images, labels file) {
	if s == Test {
		return testImages, testLabels
	}
	return trainImages, trainLabels
}

// extracted is the archive name without its .gz suffix.
func (f file) extracted() string {
	return f.name[:len(f.name)-len(".gz")]
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Paths returns the compressed paths of a split inside dir.
func Paths(dir string, s Split) (images, labels string) {
	img, lbl := s.archives()
	return filepath.Join(dir, img.name), filepath.Join(dir, lbl.name)
}
