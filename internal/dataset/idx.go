package dataset

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/born-ml/born/tensor"
)

// IDX magic numbers.
const (
	idxImagesMagic = 2051
	idxLabelsMagic = 2049
)

// LoadIDX reads an image/label pair in IDX format (as used by MNIST) into a dataset of
// [1, rows, cols] samples scaled to [0, 1]. maxSamples <= 0 loads everything.
func LoadIDX(imagesPath, labelsPath string, maxSamples int) (*Dataset, error) {
	images, imageCount, rows, cols, err := readIDXImages(imagesPath, maxSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to load images: %w", err)
	}
	labels, labelCount, err := readIDXLabels(labelsPath, maxSamples)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}
	if imageCount != labelCount {
		return nil, fmt.Errorf("image count (%d) != label count (%d)", imageCount, labelCount)
	}

	n := len(images)

	samples := make([][]float32, n)
	classes := make([]int32, n)
	for i := 0; i < n; i++ {
		samples[i] = make([]float32, len(images[i]))
		for j, px := range images[i] {
			samples[i][j] = float32(px) / 255.0
		}
		classes[i] = int32(labels[i])
	}
	return New(samples, classes, tensor.Shape{1, rows, cols})
}

// limit caps the header count at maxSamples when it is positive.
func limit(count uint32, maxSamples int) int {
	n := int(count)
	if maxSamples > 0 && n > maxSamples {
		n = maxSamples
	}
	return n
}

// readIDXImages reads at most maxSamples images of an IDX3 file and returns them with
// the count declared in the header.
//
//	magic number: 2051
//	number of images, rows, cols: 4 bytes each, big-endian
//	pixel data: unsigned bytes
func readIDXImages(filename string, maxSamples int) (images [][]byte, count, rows, cols int, err error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	defer file.Close()

	var header [4]uint32
	if err := binary.Read(file, binary.BigEndian, &header); err != nil {
		return nil, 0, 0, 0, fmt.Errorf("failed to read header: %w", err)
	}
	if header[0] != idxImagesMagic {
		return nil, 0, 0, 0, fmt.Errorf("invalid magic number: got %d, want %d", header[0], idxImagesMagic)
	}

	rows, cols = int(header[2]), int(header[3])
	images = make([][]byte, limit(header[1], maxSamples))
	for i := range images {
		images[i] = make([]byte, rows*cols)
		if _, err := io.ReadFull(file, images[i]); err != nil {
			return nil, 0, 0, 0, fmt.Errorf("failed to read image %d: %w", i, err)
		}
	}
	return images, int(header[1]), rows, cols, nil
}

// readIDXLabels reads at most maxSamples labels of an IDX1 file and returns them with
// the count declared in the header.
//
//	magic number: 2049
//	number of labels: 4 bytes, big-endian
//	label data: unsigned bytes
func readIDXLabels(filename string, maxSamples int) ([]byte, int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	var header [2]uint32
	if err := binary.Read(file, binary.BigEndian, &header); err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}
	if header[0] != idxLabelsMagic {
		return nil, 0, fmt.Errorf("invalid magic number: got %d, want %d", header[0], idxLabelsMagic)
	}

	labels := make([]byte, limit(header[1], maxSamples))
	if _, err := io.ReadFull(file, labels); err != nil {
		return nil, 0, fmt.Errorf("failed to read labels: %w", err)
	}
	return labels, int(header[1]), nil
}
