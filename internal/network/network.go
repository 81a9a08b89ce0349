// Package network composes layers into a trainable model with stochastic evaluation.
package network

import (
	"fmt"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/divergence"
	"github.com/born-ml/bnn/internal/layers"
	"github.com/born-ml/bnn/internal/ops"
	"github.com/born-ml/bnn/internal/prior"
)

// Option configures a Network.
type Option func(*config)

type config struct {
	regression bool
}

// Regression switches the loss to a Gaussian negative log-likelihood with a learned
// noise scale. The class count then is the output dimension.
func Regression() Option {
	return func(c *config) { c.regression = true }
}

// Network is an ordered stack of layers.
//
// Forward returns the logits of one stochastic pass together with the summed
// divergence of all layers. EvalForward repeats the pass to expose the spread of the
// posterior predictive.
type Network[B tensor.Backend] struct {
	layers     []layers.Layer[B]
	classes    int
	regression bool
	noise      *nn.Parameter[B] // raw regression noise, softplus gives the scale
	training   bool
	backend    B
}

// New creates a network over the given layers, starting in training mode.
func New[B tensor.Backend](stack []layers.Layer[B], classes int, backend B, opts ...Option) *Network[B] {
	if len(stack) == 0 {
		panic("network: empty layer stack")
	}
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	n := &Network[B]{
		layers:     stack,
		classes:    classes,
		regression: cfg.regression,
		backend:    backend,
	}
	if cfg.regression {
		n.noise = nn.NewParameter("noise", tensor.Zeros[float32](tensor.Shape{1}, backend))
	}
	n.Train()
	return n
}

// Forward runs one stochastic pass.
func (n *Network[B]) Forward(x *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], divergence.Result[B]) {
	results := make([]divergence.Result[B], 0, len(n.layers))
	for _, l := range n.layers {
		out := l.Forward(x)
		x = out.Value
		results = append(results, out.Divergence)
	}
	return x, divergence.Total(results)
}

// EvalForward runs samples independent passes and stacks them to [samples, N, C].
// With a single sample the result is [N, C].
func (n *Network[B]) EvalForward(x *tensor.Tensor[float32, B], samples int) *tensor.Tensor[float32, B] {
	if samples <= 1 {
		out, _ := n.Forward(x)
		return out
	}

	outs := make([]*tensor.Tensor[float32, B], samples)
	for i := range outs {
		out, _ := n.Forward(x)
		shape := out.Shape()
		outs[i] = out.Reshape(1, shape[0], shape[1])
	}
	return tensor.Cat(outs, 0)
}

// Train puts every layer in training mode.
func (n *Network[B]) Train() { n.setTraining(true) }

// Eval puts every layer in evaluation mode.
func (n *Network[B]) Eval() { n.setTraining(false) }

func (n *Network[B]) setTraining(training bool) {
	n.training = training
	for _, l := range n.layers {
		l.SetTraining(training)
	}
}

// Training reports the current mode.
func (n *Network[B]) Training() bool { return n.training }

// Classes returns the output width.
func (n *Network[B]) Classes() int { return n.classes }

// IsRegression reports whether the Gaussian likelihood is used.
func (n *Network[B]) IsRegression() bool { return n.regression }

// Layers returns the layer stack.
func (n *Network[B]) Layers() []layers.Layer[B] { return n.layers }

// Backend returns the backend the network was built on.
func (n *Network[B]) Backend() B { return n.backend }

// SetPrior replaces the prior of every Bayesian layer.
func (n *Network[B]) SetPrior(p prior.Prior[B]) {
	for _, l := range n.layers {
		if b, ok := l.(interface{ SetPrior(prior.Prior[B]) }); ok {
			b.SetPrior(p)
		}
	}
}

// NoiseScale returns softplus of the learned regression noise. It is nil for
// classifiers.
func (n *Network[B]) NoiseScale() *tensor.Tensor[float32, B] {
	if n.noise == nil {
		return nil
	}
	return ops.Softplus(n.noise.Tensor())
}

// Parameters returns every trainable parameter.
func (n *Network[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, l := range n.layers {
		params = append(params, l.Parameters()...)
	}
	if n.noise != nil {
		params = append(params, n.noise)
	}
	return params
}

// StateDict exports all parameters, prefixed with their layer index
// (e.g., "0.weight.mu", "3.bias").
func (n *Network[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, l := range n.layers {
		for name, raw := range l.StateDict() {
			stateDict[fmt.Sprintf("%d.%s", i, name)] = raw
		}
	}
	if n.noise != nil {
		stateDict[n.noise.Name()] = n.noise.Tensor().Raw()
	}
	return stateDict
}

// LoadStateDict loads parameters exported by StateDict.
func (n *Network[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, l := range n.layers {
		prefix := fmt.Sprintf("%d.", i)
		layerState := make(map[string]*tensor.RawTensor)
		for key, raw := range stateDict {
			if name, ok := strings.CutPrefix(key, prefix); ok {
				layerState[name] = raw
			}
		}
		if len(l.Parameters()) == 0 {
			continue
		}
		if err := l.LoadStateDict(layerState); err != nil {
			return fmt.Errorf("failed to load layer %d: %w", i, err)
		}
	}
	if n.noise != nil {
		raw, ok := stateDict[n.noise.Name()]
		if !ok {
			return fmt.Errorf("missing %s in state dict", n.noise.Name())
		}
		copy(n.noise.Tensor().Data(), raw.AsFloat32())
	}
	return nil
}

func (n *Network[B]) String() string {
	var sb strings.Builder
	sb.WriteString("Network(\n")
	for i, l := range n.layers {
		fmt.Fprintf(&sb, "  (%d): %s\n", i, l)
	}
	sb.WriteString(")")
	return sb.String()
}
