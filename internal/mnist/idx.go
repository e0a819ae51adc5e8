package mnist

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// IDX magic numbers.
const (
	imageMagic = 0x00000803
	labelMagic = 0x00000801
)

// readIDXImages decodes an uncompressed IDX3 image file.
//
//	magic number: 0x00000803
//	count, rows, cols: big-endian uint32
//	pixels: rows*cols unsigned bytes per image
//
// avail is the number of payload bytes after the header; a header that
// claims more is rejected before anything is allocated.
func readIDXImages(r io.Reader, avail int64) (rows, cols int, images [][]byte, err error) {
	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return 0, 0, nil, fmt.Errorf("read image header: %w", err)
	}
	if header[0] != imageMagic {
		return 0, 0, nil, fmt.Errorf("invalid image magic: got %#x, want %#x", header[0], imageMagic)
	}

	if header[2] == 0 || header[3] == 0 {
		return 0, 0, nil, fmt.Errorf("invalid image size %dx%d", header[2], header[3])
	}
	pixels := uint64(header[2]) * uint64(header[3])
	if avail < 0 || pixels > uint64(avail) || uint64(header[1]) > uint64(avail)/pixels {
		return 0, 0, nil, fmt.Errorf("header claims %d images of %dx%d but only %d bytes follow",
			header[1], header[2], header[3], avail)
	}

	count := int(header[1])
	rows, cols = int(header[2]), int(header[3])
	size := rows * cols

	// One backing array keeps 60k images to a single allocation.
	buf := make([]byte, count*size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, 0, nil, fmt.Errorf("read %d images: %w", count, err)
	}
	images = make([][]byte, count)
	for i := range images {
		images[i] = buf[i*size : (i+1)*size : (i+1)*size]
	}
	return rows, cols, images, nil
}

// readIDXLabels decodes an uncompressed IDX1 label file.
//
//	magic number: 0x00000801
//	count: big-endian uint32
//	labels: one unsigned byte each
func readIDXLabels(r io.Reader, avail int64) ([]byte, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("read label header: %w", err)
	}
	if header[0] != labelMagic {
		return nil, fmt.Errorf("invalid label magic: got %#x, want %#x", header[0], labelMagic)
	}

	if avail < 0 || uint64(header[1]) > uint64(avail) {
		return nil, fmt.Errorf("header claims %d labels but only %d bytes follow", header[1], avail)
	}

	labels := make([]byte, header[1])
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return labels, nil
}

func readExtracted(imagePath, labelPath string) (rows, cols int, images [][]byte, labels []byte, err error) {
	imgFile, err := os.Open(imagePath)
	if err != nil {
		return 0, 0, nil, nil, err
	}
	defer imgFile.Close()

	avail, err := payloadSize(imgFile, 16)
	if err != nil {
		return 0, 0, nil, nil, err
	}
	rows, cols, images, err = readIDXImages(imgFile, avail)
	if err != nil {
		return 0, 0, nil, nil, fmt.Errorf("%s: %w", imagePath, err)
	}

	lblFile, err := os.Open(labelPath)
	if err != nil {
		return 0, 0, nil, nil, err
	}
	defer lblFile.Close()

	avail, err = payloadSize(lblFile, 8)
	if err != nil {
		return 0, 0, nil, nil, err
	}
	labels, err = readIDXLabels(lblFile, avail)
	if err != nil {
		return 0, 0, nil, nil, fmt.Errorf("%s: %w", labelPath, err)
	}
	return rows, cols, images, labels, nil
}

// payloadSize returns the bytes of f following a header of the given size.
func payloadSize(f *os.File, header int64) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size() - header, nil
}
