package layers

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/divergence"
)

// Linear is a standard fully connected layer backed by nn.Linear.
type Linear[B tensor.Backend] struct {
	mode
	inner *nn.Linear[B]
}

// NewLinear creates a Xavier-initialised dense layer with bias.
func NewLinear[B tensor.Backend](inFeatures, outFeatures int, backend B) *Linear[B] {
	return &Linear[B]{inner: nn.NewLinear(inFeatures, outFeatures, backend)}
}

// Forward implements Layer.
func (l *Linear[B]) Forward(x *tensor.Tensor[float32, B]) Output[B] {
	return Output[B]{Value: l.inner.Forward(x), Divergence: noDivergence[B]()}
}

// OutputShape implements Layer.
func (l *Linear[B]) OutputShape(in tensor.Shape) tensor.Shape {
	return tensor.Shape{in[0], l.inner.OutFeatures()}
}

func (l *Linear[B]) Parameters() []*nn.Parameter[B] { return l.inner.Parameters() }

func (l *Linear[B]) StateDict() map[string]*tensor.RawTensor {
	return paramStateDict(l.Parameters())
}

func (l *Linear[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParams(l.Parameters(), stateDict)
}

func (l *Linear[B]) String() string {
	return fmt.Sprintf("Linear(in=%d, out=%d)", l.inner.InFeatures(), l.inner.OutFeatures())
}

// Conv2D is a bias-free convolution backed by nn.Conv2D.
type Conv2D[B tensor.Backend] struct {
	mode
	inner *nn.Conv2D[B]
}

// NewConv2D creates a convolution with square kernels and no bias.
func NewConv2D[B tensor.Backend](inChannels, outChannels, kernelSize, stride, padding int, backend B) *Conv2D[B] {
	return &Conv2D[B]{
		inner: nn.NewConv2D(inChannels, outChannels, kernelSize, kernelSize, stride, padding, false, backend),
	}
}

// Forward implements Layer.
func (c *Conv2D[B]) Forward(x *tensor.Tensor[float32, B]) Output[B] {
	return Output[B]{Value: c.inner.Forward(x), Divergence: noDivergence[B]()}
}

// OutputShape implements Layer.
func (c *Conv2D[B]) OutputShape(in tensor.Shape) tensor.Shape {
	size := c.inner.ComputeOutputSize(in[2], in[3])
	return tensor.Shape{in[0], c.inner.OutChannels(), size[0], size[1]}
}

func (c *Conv2D[B]) Parameters() []*nn.Parameter[B] { return c.inner.Parameters() }

func (c *Conv2D[B]) StateDict() map[string]*tensor.RawTensor {
	return paramStateDict(c.Parameters())
}

func (c *Conv2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParams(c.Parameters(), stateDict)
}

func (c *Conv2D[B]) String() string {
	k := c.inner.KernelSize()
	return fmt.Sprintf("Conv2D(in=%d, out=%d, kernel=%d, stride=%d, padding=%d)",
		c.inner.InChannels(), c.inner.OutChannels(), k[0], c.inner.Stride(), c.inner.Padding())
}

// noDivergence is the divergence of a deterministic layer.
func noDivergence[B tensor.Backend]() divergence.Result[B] {
	return divergence.Result[B]{Kind: divergence.None}
}
