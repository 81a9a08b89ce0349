package layers

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// PoolKind selects max or average pooling.
type PoolKind int

// Pooling kinds.
const (
	MaxPool PoolKind = iota
	AvgPool
)

func (k PoolKind) String() string {
	if k == AvgPool {
		return "AvgPool2D"
	}
	return "MaxPool2D"
}

// Pool is a 2D pooling layer.
//
// Max pooling uses nn.MaxPool2D. Average pooling convolves every channel separately
// with a constant 1/k² kernel.
type Pool[B tensor.Backend] struct {
	mode
	stateless[B]
	kind       PoolKind
	kernelSize int
	stride     int
	max        *nn.MaxPool2D[B]
	avgKernel  *tensor.Tensor[float32, B]
}

// NewPool creates a pooling layer.
func NewPool[B tensor.Backend](kind PoolKind, kernelSize, stride int, backend B) *Pool[B] {
	if kernelSize <= 0 || stride <= 0 {
		panic(fmt.Sprintf("pool: invalid kernel=%d stride=%d", kernelSize, stride))
	}
	p := &Pool[B]{kind: kind, kernelSize: kernelSize, stride: stride}
	if kind == AvgPool {
		weight := 1 / float32(kernelSize*kernelSize)
		p.avgKernel = tensor.Full[float32](tensor.Shape{1, 1, kernelSize, kernelSize}, weight, backend)
	} else {
		p.max = nn.NewMaxPool2D(kernelSize, stride, backend)
	}
	return p
}

// Forward implements Layer.
func (p *Pool[B]) Forward(x *tensor.Tensor[float32, B]) Output[B] {
	if p.kind == MaxPool {
		return Output[B]{Value: p.max.Forward(x), Divergence: noDivergence[B]()}
	}

	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("AvgPool2D.Forward: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	n, c := shape[0], shape[1]
	flat := x.Reshape(n*c, 1, shape[2], shape[3])
	pooled := conv2d(flat, p.avgKernel, p.stride, 0)
	out := pooled.Shape()
	return Output[B]{Value: pooled.Reshape(n, c, out[2], out[3]), Divergence: noDivergence[B]()}
}

// OutputShape implements Layer.
func (p *Pool[B]) OutputShape(in tensor.Shape) tensor.Shape {
	return tensor.Shape{
		in[0],
		in[1],
		convSize(in[2], p.kernelSize, p.stride, 0),
		convSize(in[3], p.kernelSize, p.stride, 0),
	}
}

func (p *Pool[B]) String() string {
	return fmt.Sprintf("%s(kernel=%d, stride=%d)", p.kind, p.kernelSize, p.stride)
}
