package network

import (
	"fmt"
	"strconv"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// modelType is the model type recorded in checkpoint headers.
const modelType = "BayesianNetwork"

// module adapts a Network to nn.Module so the Born checkpoint format can store it.
type module[B tensor.Backend] struct {
	*Network[B]
}

func (m module[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out, _ := m.Network.Forward(x)
	return out
}

// Save writes all parameters to a .born checkpoint.
func (n *Network[B]) Save(path string) error {
	metadata := map[string]string{
		"classes":    strconv.Itoa(n.classes),
		"regression": strconv.FormatBool(n.regression),
		"layers":     strconv.Itoa(len(n.layers)),
	}
	if err := nn.Save[B](module[B]{n}, path, modelType, metadata); err != nil {
		return fmt.Errorf("save network to %s: %w", path, err)
	}
	return nil
}

// Load restores parameters from a checkpoint written by Save. The network must have
// been built with the same topology.
func (n *Network[B]) Load(path string) error {
	if _, err := nn.Load[B](path, n.backend, module[B]{n}); err != nil {
		return fmt.Errorf("load network from %s: %w", path, err)
	}
	return nil
}
