// Package layers implements the building blocks of Bayesian and deterministic networks.
//
// Every layer returns an Output that carries both the activation and the divergence term
// of the forward pass, so Bayesian and deterministic layers compose the same way.
package layers

import (
	"fmt"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/divergence"
)

// Output is the result of one layer forward pass.
type Output[B tensor.Backend] struct {
	Value      *tensor.Tensor[float32, B]
	Divergence divergence.Result[B]
}

// Layer is a single stage of a network.
type Layer[B tensor.Backend] interface {
	// Forward computes the layer output for a batch.
	Forward(x *tensor.Tensor[float32, B]) Output[B]
	// OutputShape maps an input shape (batch first) to the output shape without
	// touching any data.
	OutputShape(in tensor.Shape) tensor.Shape
	// Parameters returns the trainable parameters.
	Parameters() []*nn.Parameter[B]
	// SetTraining switches between training and evaluation behaviour.
	SetTraining(training bool)
	// StateDict exports the parameters keyed by name.
	StateDict() map[string]*tensor.RawTensor
	// LoadStateDict copies matching tensors into the parameters.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
	String() string
}

// mode tracks the training flag. Layers start in training mode.
type mode struct {
	eval bool
}

func (m *mode) SetTraining(training bool) { m.eval = !training }

// Training reports whether the layer is in training mode.
func (m *mode) Training() bool { return !m.eval }

// stateless is embedded by layers without parameters.
type stateless[B tensor.Backend] struct{}

func (stateless[B]) Parameters() []*nn.Parameter[B] { return nil }

func (stateless[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

func (stateless[B]) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }

func paramStateDict[B tensor.Backend](params []*nn.Parameter[B]) map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		stateDict[p.Name()] = p.Tensor().Raw()
	}
	return stateDict
}

func loadParams[B tensor.Backend](params []*nn.Parameter[B], stateDict map[string]*tensor.RawTensor) error {
	for _, p := range params {
		raw, ok := stateDict[p.Name()]
		if !ok {
			return fmt.Errorf("missing %s in state dict", p.Name())
		}
		if !raw.Shape().Equal(p.Tensor().Shape()) {
			return fmt.Errorf("%s shape mismatch: expected %v, got %v", p.Name(), p.Tensor().Shape(), raw.Shape())
		}
		copy(p.Tensor().Data(), raw.AsFloat32())
	}
	return nil
}

func conv2d[B tensor.Backend](x, kernel *tensor.Tensor[float32, B], stride, padding int) *tensor.Tensor[float32, B] {
	backend := x.Backend()
	return tensor.New[float32, B](backend.Conv2D(x.Raw(), kernel.Raw(), stride, padding), backend)
}

func convSize(in, kernel, stride, padding int) int {
	return (in+2*padding-kernel)/stride + 1
}
