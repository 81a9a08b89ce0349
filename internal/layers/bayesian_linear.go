package layers

import (
	"fmt"

	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/ops"
)

// BayesianLinear is a fully connected layer with a Gaussian posterior over its weights.
//
// Performs y = x @ W.T + b with W and b drawn from the posterior on every call.
// With local reparameterization the output is sampled directly from
// N(x @ mu.T + b_mu, x² @ sigma².T + sigma_b²); a full weight draw is still made for the
// divergence term.
type BayesianLinear[B tensor.Backend] struct {
	bayesian[B]
	inFeatures  int
	outFeatures int
}

// NewBayesianLinear creates a Bayesian layer mapping inFeatures to outFeatures.
func NewBayesianLinear[B tensor.Backend](inFeatures, outFeatures int, cfg BayesianConfig[B], backend B) *BayesianLinear[B] {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("BayesianLinear: invalid features in=%d, out=%d", inFeatures, outFeatures))
	}
	return &BayesianLinear[B]{
		bayesian:    newBayesian(tensor.Shape{outFeatures, inFeatures}, outFeatures, cfg, backend),
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
	}
}

// Forward implements Layer. Input shape: [batch, in_features].
func (l *BayesianLinear[B]) Forward(x *tensor.Tensor[float32, B]) Output[B] {
	shape := x.Shape()
	if len(shape) != 2 || shape[1] != l.inFeatures {
		panic(fmt.Sprintf("BayesianLinear.Forward: expected [batch, %d] input, got shape %v", l.inFeatures, shape))
	}

	var weight, bias *tensor.Tensor[float32, B]
	if !l.localReparam || l.Training() {
		weight, bias = l.sample()
	}

	var out *tensor.Tensor[float32, B]
	if l.localReparam {
		out = l.localForward(x)
	} else {
		out = x.MatMul(weight.Transpose(1, 0))
		if bias != nil {
			out = out.Add(bias.Reshape(1, l.outFeatures))
		}
	}

	return Output[B]{Value: out, Divergence: l.regularize(weight, bias)}
}

func (l *BayesianLinear[B]) localForward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	mean := x.MatMul(l.weight.Mean().Transpose(1, 0))
	variance := ops.Square(x).MatMul(ops.Square(l.weight.Sigma()).Transpose(1, 0))
	if l.bias != nil {
		mean = mean.Add(l.bias.Mean().Reshape(1, l.outFeatures))
		variance = variance.Add(ops.Square(l.bias.Sigma()).Reshape(1, l.outFeatures))
	}
	eps := tensor.Randn[float32](mean.Shape(), l.backend)
	return mean.Add(ops.Shift(variance, ops.Epsilon).Sqrt().Mul(eps))
}

// OutputShape implements Layer.
func (l *BayesianLinear[B]) OutputShape(in tensor.Shape) tensor.Shape {
	return tensor.Shape{in[0], l.outFeatures}
}

// InFeatures returns the input width.
func (l *BayesianLinear[B]) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output width.
func (l *BayesianLinear[B]) OutFeatures() int { return l.outFeatures }

func (l *BayesianLinear[B]) String() string {
	return fmt.Sprintf("BayesianLinear(in=%d, out=%d, bias=%t, divergence=%s, local=%t)",
		l.inFeatures, l.outFeatures, l.bias != nil, l.kind, l.localReparam)
}
