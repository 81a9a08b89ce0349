package layers

import (
	"fmt"

	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/ops"
)

// BayesianConv2D is a 2D convolution with a Gaussian posterior over its kernels.
//
// Input: [batch, in_channels, height, width]
// Output: [batch, out_channels, out_h, out_w].
type BayesianConv2D[B tensor.Backend] struct {
	bayesian[B]
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int
}

// NewBayesianConv2D creates a Bayesian convolution with square kernels.
func NewBayesianConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelSize, stride, padding int,
	cfg BayesianConfig[B],
	backend B,
) *BayesianConv2D[B] {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("BayesianConv2D: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if kernelSize <= 0 || stride <= 0 || padding < 0 {
		panic(fmt.Sprintf("BayesianConv2D: invalid kernel=%d stride=%d padding=%d", kernelSize, stride, padding))
	}

	weightShape := tensor.Shape{outChannels, inChannels, kernelSize, kernelSize}
	return &BayesianConv2D[B]{
		bayesian:    newBayesian(weightShape, outChannels, cfg, backend),
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
	}
}

// Forward implements Layer.
func (c *BayesianConv2D[B]) Forward(x *tensor.Tensor[float32, B]) Output[B] {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("BayesianConv2D.Forward: expected 4D input [N,C,H,W], got %dD", len(shape)))
	}
	if shape[1] != c.inChannels {
		panic(fmt.Sprintf("BayesianConv2D.Forward: input channels %d != expected %d", shape[1], c.inChannels))
	}

	var weight, bias *tensor.Tensor[float32, B]
	if !c.localReparam || c.Training() {
		weight, bias = c.sample()
	}

	var out *tensor.Tensor[float32, B]
	if c.localReparam {
		out = c.localForward(x)
	} else {
		out = conv2d(x, weight, c.stride, c.padding)
		if bias != nil {
			out = out.Add(bias.Reshape(1, c.outChannels, 1, 1))
		}
	}

	return Output[B]{Value: out, Divergence: c.regularize(weight, bias)}
}

func (c *BayesianConv2D[B]) localForward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	mean := conv2d(x, c.weight.Mean(), c.stride, c.padding)
	variance := conv2d(ops.Square(x), ops.Square(c.weight.Sigma()), c.stride, c.padding)
	if c.bias != nil {
		mean = mean.Add(c.bias.Mean().Reshape(1, c.outChannels, 1, 1))
		variance = variance.Add(ops.Square(c.bias.Sigma()).Reshape(1, c.outChannels, 1, 1))
	}
	eps := tensor.Randn[float32](mean.Shape(), c.backend)
	return mean.Add(ops.Shift(variance, ops.Epsilon).Sqrt().Mul(eps))
}

// OutputShape implements Layer.
func (c *BayesianConv2D[B]) OutputShape(in tensor.Shape) tensor.Shape {
	return tensor.Shape{
		in[0],
		c.outChannels,
		convSize(in[2], c.kernelSize, c.stride, c.padding),
		convSize(in[3], c.kernelSize, c.stride, c.padding),
	}
}

func (c *BayesianConv2D[B]) String() string {
	return fmt.Sprintf("BayesianConv2D(in=%d, out=%d, kernel=%d, stride=%d, padding=%d, divergence=%s, local=%t)",
		c.inChannels, c.outChannels, c.kernelSize, c.stride, c.padding, c.kind, c.localReparam)
}
