// Package variational implements Gaussian variational posteriors over weight tensors.
package variational

import (
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/ops"
)

// Parameter is a factorised Gaussian posterior over one weight tensor.
//
// The posterior is parameterised by a mean and a raw scale; the standard deviation is
// softplus(rawScale), so it stays strictly positive whatever the optimizer does to the
// raw value. Both are Born parameters and are updated in place by the optimizer.
type Parameter[B tensor.Backend] struct {
	name     string
	shape    tensor.Shape
	mean     *nn.Parameter[B]
	rawScale *nn.Parameter[B]
	backend  B
}

// NewParameter allocates a posterior of the given shape.
func NewParameter[B tensor.Backend](name string, shape tensor.Shape, meanInit, scaleInit Initializer, backend B) *Parameter[B] {
	return &Parameter[B]{
		name:     name,
		shape:    shape.Clone(),
		mean:     nn.NewParameter(name+".mu", initialized(shape, meanInit, backend)),
		rawScale: nn.NewParameter(name+".rho", initialized(shape, scaleInit, backend)),
		backend:  backend,
	}
}

func initialized[B tensor.Backend](shape tensor.Shape, init Initializer, backend B) *tensor.Tensor[float32, B] {
	t := tensor.Zeros[float32](shape, backend)
	init.Fill(t.Data())
	return t
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string { return p.name }

// Shape returns the shape of a sampled weight.
func (p *Parameter[B]) Shape() tensor.Shape { return p.shape }

// Mean returns the posterior mean.
func (p *Parameter[B]) Mean() *tensor.Tensor[float32, B] { return p.mean.Tensor() }

// RawScale returns the unconstrained scale parameter.
func (p *Parameter[B]) RawScale() *tensor.Tensor[float32, B] { return p.rawScale.Tensor() }

// Sigma returns softplus(rawScale).
func (p *Parameter[B]) Sigma() *tensor.Tensor[float32, B] {
	return ops.Softplus(p.rawScale.Tensor())
}

// Sample draws mean + sigma * eps with fresh eps ~ N(0, 1).
//
// The noise is a constant on the tape, so gradients flow only into mean and raw scale.
func (p *Parameter[B]) Sample() *tensor.Tensor[float32, B] {
	eps := tensor.Randn[float32](p.shape, p.backend)
	return p.mean.Tensor().Add(p.Sigma().Mul(eps))
}

// LogProb returns the summed posterior log-density of w, shape [1].
func (p *Parameter[B]) LogProb(w *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return ops.LogNormal(w, p.mean.Tensor(), p.Sigma())
}

// Parameters returns the trainable mean and raw scale.
func (p *Parameter[B]) Parameters() []*nn.Parameter[B] {
	return []*nn.Parameter[B]{p.mean, p.rawScale}
}

// StateDict exports mean and raw scale keyed by their parameter names.
func (p *Parameter[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		p.mean.Name():     p.mean.Tensor().Raw(),
		p.rawScale.Name(): p.rawScale.Tensor().Raw(),
	}
}
