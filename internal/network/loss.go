package network

import (
	"fmt"
	"math"

	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/ops"
)

// crossEntropyBackend is implemented by backends with a fused softmax cross-entropy,
// such as the autodiff backend.
type crossEntropyBackend interface {
	CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor
}

// Loss returns the data term for a batch, shape [1].
//
// Classifiers expect int32 class indices [N] and logits [N, C] or [T, N, C]; stacked
// samples are averaged. Regressors expect float32 targets shaped like the output.
func (n *Network[B]) Loss(out *tensor.Tensor[float32, B], targets *tensor.RawTensor) *tensor.Tensor[float32, B] {
	if n.regression {
		return n.GaussianNLL(out, tensor.New[float32, B](targets, n.backend))
	}
	return n.CrossEntropy(out, targets)
}

// CrossEntropy is the mean negative log-likelihood of the labels.
func (n *Network[B]) CrossEntropy(logits *tensor.Tensor[float32, B], labels *tensor.RawTensor) *tensor.Tensor[float32, B] {
	ce, ok := any(n.backend).(crossEntropyBackend)
	if !ok {
		panic(fmt.Sprintf("network: backend %s does not support cross-entropy", n.backend.Name()))
	}

	shape := logits.Shape()
	if len(shape) == 2 {
		return tensor.New[float32, B](ce.CrossEntropy(logits.Raw(), labels), n.backend)
	}
	if len(shape) != 3 {
		panic(fmt.Sprintf("network: cross-entropy expects [N, C] or [T, N, C] logits, got %v", shape))
	}

	var total *tensor.Tensor[float32, B]
	for _, sample := range logits.Chunk(shape[0], 0) {
		loss := tensor.New[float32, B](ce.CrossEntropy(sample.Reshape(shape[1], shape[2]).Raw(), labels), n.backend)
		if total == nil {
			total = loss
		} else {
			total = total.Add(loss)
		}
	}
	return ops.Scale(total, 1/float32(shape[0]))
}

// GaussianNLL is -sum(log N(target; prediction, sigma²)) with sigma the learned noise
// scale.
func (n *Network[B]) GaussianNLL(prediction, target *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if n.noise == nil {
		panic("network: GaussianNLL needs a regression network")
	}
	sigma := ops.Expand(n.NoiseScale(), prediction.Shape())
	exponent := ops.Square(prediction.Sub(target)).Div(ops.Scale(ops.Square(sigma), 2))
	logCoeff := ops.Shift(ops.Scale(ops.SafeLog(sigma), -1), float32(-0.5*math.Log(2*math.Pi)))
	return ops.Sum(exponent.Sub(logCoeff))
}
