package layers

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/born/tensor"
)

// Dropout zeroes activations with probability rate during training and rescales the
// survivors by 1/(1-rate). It is the identity in evaluation mode.
type Dropout[B tensor.Backend] struct {
	mode
	stateless[B]
	rate float64
}

// NewDropout creates a dropout layer. rate must lie in [0, 1).
func NewDropout[B tensor.Backend](rate float64) *Dropout[B] {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("dropout: invalid rate %v", rate))
	}
	return &Dropout[B]{rate: rate}
}

// Rate returns the drop probability.
func (d *Dropout[B]) Rate() float64 { return d.rate }

// Forward implements Layer.
func (d *Dropout[B]) Forward(x *tensor.Tensor[float32, B]) Output[B] {
	if !d.Training() || d.rate == 0 {
		return Output[B]{Value: x, Divergence: noDivergence[B]()}
	}

	mask := tensor.Zeros[float32](x.Shape(), x.Backend())
	keep := float32(1 / (1 - d.rate))
	data := mask.Data()
	for i := range data {
		if rand.Float64() >= d.rate {
			data[i] = keep
		}
	}
	return Output[B]{Value: x.Mul(mask), Divergence: noDivergence[B]()}
}

// OutputShape implements Layer.
func (d *Dropout[B]) OutputShape(in tensor.Shape) tensor.Shape { return in.Clone() }

func (d *Dropout[B]) String() string { return fmt.Sprintf("Dropout(p=%g)", d.rate) }

// Flatten reshapes [N, ...] to [N, prod(...)].
type Flatten[B tensor.Backend] struct {
	mode
	stateless[B]
}

// NewFlatten creates a flatten layer.
func NewFlatten[B tensor.Backend]() *Flatten[B] { return &Flatten[B]{} }

// Forward implements Layer.
func (f *Flatten[B]) Forward(x *tensor.Tensor[float32, B]) Output[B] {
	n := x.Shape()[0]
	return Output[B]{Value: x.Reshape(n, x.NumElements()/n), Divergence: noDivergence[B]()}
}

// OutputShape implements Layer.
func (f *Flatten[B]) OutputShape(in tensor.Shape) tensor.Shape {
	return tensor.Shape{in[0], in.NumElements() / in[0]}
}

func (f *Flatten[B]) String() string { return "Flatten()" }
