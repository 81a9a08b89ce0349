package layers

import (
	"fmt"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// Activation applies an element-wise non-linearity.
type Activation[B tensor.Backend] struct {
	mode
	stateless[B]
	name    string
	forward func(*tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
}

// NewActivation returns the activation called name ("relu" or "sigmoid",
// case-insensitive). ok is false for any other name.
func NewActivation[B tensor.Backend](name string) (act *Activation[B], ok bool) {
	switch strings.ToLower(name) {
	case "relu":
		return &Activation[B]{name: "ReLU", forward: nn.NewReLU[B]().Forward}, true
	case "sigmoid":
		return &Activation[B]{name: "Sigmoid", forward: nn.NewSigmoid[B]().Forward}, true
	default:
		return nil, false
	}
}

// Forward implements Layer.
func (a *Activation[B]) Forward(x *tensor.Tensor[float32, B]) Output[B] {
	return Output[B]{Value: a.forward(x), Divergence: noDivergence[B]()}
}

// OutputShape implements Layer.
func (a *Activation[B]) OutputShape(in tensor.Shape) tensor.Shape { return in.Clone() }

func (a *Activation[B]) String() string { return fmt.Sprintf("%s()", a.name) }
