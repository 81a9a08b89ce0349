// Package dataset provides in-memory datasets with a swappable transform pipeline.
package dataset

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born/tensor"
)

// Dataset holds samples with a per-sample shape and an optional transform applied
// whenever samples are materialised.
type Dataset struct {
	samples   [][]float32 // [num_samples, prod(shape)]
	labels    []int32     // class indices, classification only
	targets   [][]float32 // regression targets, nil for classifiers
	shape     tensor.Shape
	transform Transform
}

// New creates a classification dataset. Every sample must hold prod(shape) values.
func New(samples [][]float32, labels []int32, shape tensor.Shape) (*Dataset, error) {
	if len(samples) != len(labels) {
		return nil, fmt.Errorf("samples (%d) and labels (%d) length mismatch", len(samples), len(labels))
	}
	if err := checkSamples(samples, shape); err != nil {
		return nil, err
	}
	return &Dataset{samples: samples, labels: labels, shape: shape.Clone()}, nil
}

// NewRegression creates a dataset with real-valued targets.
func NewRegression(samples, targets [][]float32, shape tensor.Shape) (*Dataset, error) {
	if len(samples) != len(targets) {
		return nil, fmt.Errorf("samples (%d) and targets (%d) length mismatch", len(samples), len(targets))
	}
	if err := checkSamples(samples, shape); err != nil {
		return nil, err
	}
	return &Dataset{samples: samples, targets: targets, shape: shape.Clone()}, nil
}

func checkSamples(samples [][]float32, shape tensor.Shape) error {
	size := shape.NumElements()
	for i, s := range samples {
		if len(s) != size {
			return fmt.Errorf("sample %d has %d values, shape %v needs %d", i, len(s), shape, size)
		}
	}
	return nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.samples) }

// Shape returns the per-sample shape.
func (d *Dataset) Shape() tensor.Shape { return d.shape }

// IsRegression reports whether the dataset carries real-valued targets.
func (d *Dataset) IsRegression() bool { return d.targets != nil }

// Labels returns the class indices.
func (d *Dataset) Labels() []int32 { return d.labels }

// Transform returns the current transform, nil for the identity.
func (d *Dataset) Transform() Transform { return d.transform }

// SetTransform replaces the transform.
func (d *Dataset) SetTransform(t Transform) { d.transform = t }

// Sample returns a transformed copy of sample i.
func (d *Dataset) Sample(i int) []float32 {
	x := append([]float32(nil), d.samples[i]...)
	if d.transform != nil {
		x = d.transform.Apply(x, d.shape)
	}
	return x
}

// WithTransform runs fn with t installed and restores the previous transform on every
// exit path, including panics.
func WithTransform(d *Dataset, t Transform, fn func() error) error {
	previous := d.transform
	d.transform = t
	defer func() { d.transform = previous }()
	return fn()
}

// Split returns the first (1-ratio) of the samples and the remainder.
func (d *Dataset) Split(ratio float64) (*Dataset, *Dataset) {
	cut := int(float64(d.Len()) * (1 - ratio))
	head := &Dataset{samples: d.samples[:cut], shape: d.shape, transform: d.transform}
	tail := &Dataset{samples: d.samples[cut:], shape: d.shape, transform: d.transform}
	if d.labels != nil {
		head.labels, tail.labels = d.labels[:cut], d.labels[cut:]
	}
	if d.targets != nil {
		head.targets, tail.targets = d.targets[:cut], d.targets[cut:]
	}
	return head, tail
}

// Batch is a mini-batch materialised on a backend.
type Batch[B tensor.Backend] struct {
	X       *tensor.Tensor[float32, B] // [size, shape...]
	Labels  *tensor.Tensor[int32, B]   // [size], nil for regression
	Targets *tensor.Tensor[float32, B] // [size, target_dim], nil for classification
	Size    int
}

// Y returns the raw targets in the form the network loss expects.
func (b *Batch[B]) Y() *tensor.RawTensor {
	if b.Targets != nil {
		return b.Targets.Raw()
	}
	return b.Labels.Raw()
}

// Batches splits the dataset into mini-batches with the current transform applied.
// The last batch may be smaller.
func Batches[B tensor.Backend](d *Dataset, batchSize int, shuffle bool, backend B) ([]*Batch[B], error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", batchSize)
	}

	indices := make([]int, d.Len())
	for i := range indices {
		indices[i] = i
	}
	if shuffle {
		rand.Shuffle(len(indices), func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
	}

	size := d.shape.NumElements()
	batches := make([]*Batch[B], 0, (d.Len()+batchSize-1)/batchSize)
	for start := 0; start < d.Len(); start += batchSize {
		end := min(start+batchSize, d.Len())
		n := end - start

		xShape := append(tensor.Shape{n}, d.shape...)
		x := tensor.Zeros[float32](xShape, backend)
		xData := x.Data()
		for j := start; j < end; j++ {
			copy(xData[(j-start)*size:(j-start+1)*size], d.Sample(indices[j]))
		}

		batch := &Batch[B]{X: x, Size: n}
		if d.targets != nil {
			dim := len(d.targets[0])
			targets := tensor.Zeros[float32](tensor.Shape{n, dim}, backend)
			tData := targets.Data()
			for j := start; j < end; j++ {
				copy(tData[(j-start)*dim:(j-start+1)*dim], d.targets[indices[j]])
			}
			batch.Targets = targets
		} else {
			labels := tensor.Zeros[int32](tensor.Shape{n}, backend)
			lData := labels.Data()
			for j := start; j < end; j++ {
				lData[j-start] = d.labels[indices[j]]
			}
			batch.Labels = labels
		}
		batches = append(batches, batch)
	}
	return batches, nil
}
