package dataset

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born/tensor"
)

// Transform maps one sample to another of the same shape. Implementations may modify
// x in place.
type Transform interface {
	Apply(x []float32, shape tensor.Shape) []float32
}

// TransformFunc adapts a function to Transform.
type TransformFunc func(x []float32, shape tensor.Shape) []float32

// Apply implements Transform.
func (f TransformFunc) Apply(x []float32, shape tensor.Shape) []float32 { return f(x, shape) }

// Compose chains transforms left to right. Nil entries are skipped.
func Compose(transforms ...Transform) Transform {
	return TransformFunc(func(x []float32, shape tensor.Shape) []float32 {
		for _, t := range transforms {
			if t != nil {
				x = t.Apply(x, shape)
			}
		}
		return x
	})
}

// AddNoise adds N(0, std²) noise to every value.
func AddNoise(std float64) Transform {
	return TransformFunc(func(x []float32, _ tensor.Shape) []float32 {
		if std == 0 {
			return x
		}
		for i := range x {
			x[i] += float32(rand.NormFloat64() * std)
		}
		return x
	})
}

// PixelShuffle overwrites a fraction of the pixels of every image with other pixels of
// the same image. The pairs of positions are drawn once, on first use, and reused for
// every later sample.
type PixelShuffle struct {
	percentage float64
	pairs      [][2]int // destination, source positions in the H×W plane
}

// NewPixelShuffle returns a shuffle touching percentage·H·W pixels.
func NewPixelShuffle(percentage float64) (*PixelShuffle, error) {
	if percentage < 0 || percentage > 1 {
		return nil, fmt.Errorf("percentage should be between 0 and 1, %v was given", percentage)
	}
	return &PixelShuffle{percentage: percentage}, nil
}

// Percentage returns the fraction of pixels moved.
func (p *PixelShuffle) Percentage() float64 { return p.percentage }

// Apply implements Transform. shape is [C, H, W] or [H, W]; every channel moves
// together.
func (p *PixelShuffle) Apply(x []float32, shape tensor.Shape) []float32 {
	plane := shape.NumElements()
	if len(shape) == 3 {
		plane = shape[1] * shape[2]
	}
	if p.pairs == nil {
		count := int(float64(plane) * p.percentage)
		p.pairs = make([][2]int, count)
		for i := range p.pairs {
			p.pairs[i] = [2]int{rand.Intn(plane), rand.Intn(plane)}
		}
	}

	out := append([]float32(nil), x...)
	for c := 0; c+plane <= len(x); c += plane {
		for _, pair := range p.pairs {
			out[c+pair[0]] = x[c+pair[1]]
		}
	}
	return out
}
