// Package prior provides the fixed weight priors that Bayesian layers regularise towards.
//
// Priors are immutable once constructed and may be shared by any number of layers.
package prior

import (
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/errs"
	"github.com/born-ml/bnn/internal/ops"
)

// Prior is a fixed distribution over individual weights.
type Prior[B tensor.Backend] interface {
	// Sample draws a tensor of independent weights.
	Sample(shape tensor.Shape, backend B) *tensor.Tensor[float32, B]
	// LogProb returns the summed log-density of w, shape [1].
	LogProb(w *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
	// Prob returns the element-wise density of w.
	Prob(w *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]
	// LogDensity evaluates the log-density of a single value.
	LogDensity(x float64) float64
	String() string
}

// Gaussian is N(mu, sigma²).
type Gaussian[B tensor.Backend] struct {
	mu, sigma float64
}

// NewGaussian returns a Gaussian prior. sigma must be positive.
func NewGaussian[B tensor.Backend](mu, sigma float64) (*Gaussian[B], error) {
	if !(sigma > 0) {
		return nil, errs.Config("prior.sigma", sigma, "must be positive")
	}
	return &Gaussian[B]{mu: mu, sigma: sigma}, nil
}

// Mu returns the mean.
func (g *Gaussian[B]) Mu() float64 { return g.mu }

// Sigma returns the standard deviation.
func (g *Gaussian[B]) Sigma() float64 { return g.sigma }

// Sample implements Prior.
func (g *Gaussian[B]) Sample(shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	eps := tensor.Randn[float32](shape, backend)
	return ops.Shift(ops.Scale(eps, float32(g.sigma)), float32(g.mu))
}

// LogProb implements Prior.
func (g *Gaussian[B]) LogProb(w *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return ops.LogNormal(w, ops.Filled(w, float32(g.mu)), ops.Filled(w, float32(g.sigma)))
}

// Prob implements Prior.
func (g *Gaussian[B]) Prob(w *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return ops.NormalDensity(ops.Shift(w, float32(-g.mu)), float32(g.sigma))
}

// LogDensity implements Prior.
func (g *Gaussian[B]) LogDensity(x float64) float64 {
	return logNormal(x, g.mu, g.sigma)
}

func (g *Gaussian[B]) String() string {
	return fmt.Sprintf("Gaussian(mu=%g, sigma=%g)", g.mu, g.sigma)
}

// ScaledMixture is the zero-mean mixture pi·N(0, sigma1²) + (1-pi)·N(0, sigma2²).
type ScaledMixture[B tensor.Backend] struct {
	pi, sigma1, sigma2 float64
}

// NewScaledMixture returns a two-component mixture prior.
func NewScaledMixture[B tensor.Backend](pi, sigma1, sigma2 float64) (*ScaledMixture[B], error) {
	if pi < 0 || pi > 1 || math.IsNaN(pi) {
		return nil, errs.Config("prior.pi", pi, "must lie in [0, 1]")
	}
	if !(sigma1 > 0) {
		return nil, errs.Config("prior.sigma1", sigma1, "must be positive")
	}
	if !(sigma2 > 0) {
		return nil, errs.Config("prior.sigma2", sigma2, "must be positive")
	}
	return &ScaledMixture[B]{pi: pi, sigma1: sigma1, sigma2: sigma2}, nil
}

// Sample implements Prior. Each element picks its component independently.
func (m *ScaledMixture[B]) Sample(shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	out := tensor.Randn[float32](shape, backend)
	choice := tensor.Rand[float32](shape, backend).Data()
	data := out.Data()
	for i := range data {
		if float64(choice[i]) < m.pi {
			data[i] *= float32(m.sigma1)
		} else {
			data[i] *= float32(m.sigma2)
		}
	}
	return out
}

// Prob implements Prior.
func (m *ScaledMixture[B]) Prob(w *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	first := ops.Scale(ops.NormalDensity(w, float32(m.sigma1)), float32(m.pi))
	second := ops.Scale(ops.NormalDensity(w, float32(m.sigma2)), float32(1-m.pi))
	return first.Add(second)
}

// LogProb implements Prior.
func (m *ScaledMixture[B]) LogProb(w *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return ops.Sum(ops.SafeLog(m.Prob(w)))
}

// LogDensity implements Prior.
func (m *ScaledMixture[B]) LogDensity(x float64) float64 {
	p := m.pi*math.Exp(logNormal(x, 0, m.sigma1)) + (1-m.pi)*math.Exp(logNormal(x, 0, m.sigma2))
	return math.Log(p + ops.Epsilon)
}

func (m *ScaledMixture[B]) String() string {
	return fmt.Sprintf("ScaledMixture(pi=%g, sigma1=%g, sigma2=%g)", m.pi, m.sigma1, m.sigma2)
}

func logNormal(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return -math.Log(sigma+ops.Epsilon) - 0.5*math.Log(2*math.Pi) - 0.5*z*z
}

// Spec is the configuration form of a prior.
type Spec struct {
	Kind   string  `yaml:"kind" json:"kind"`
	Mu     float64 `yaml:"mu" json:"mu"`
	Sigma  float64 `yaml:"sigma" json:"sigma"`
	Pi     float64 `yaml:"pi" json:"pi"`
	Sigma1 float64 `yaml:"sigma1" json:"sigma1"`
	Sigma2 float64 `yaml:"sigma2" json:"sigma2"`
}

// Parse builds the prior described by spec. Kind is "gaussian" or "mixture".
func Parse[B tensor.Backend](spec Spec) (Prior[B], error) {
	switch strings.ToLower(strings.TrimSpace(spec.Kind)) {
	case "", "gaussian", "normal":
		g, err := NewGaussian[B](spec.Mu, spec.Sigma)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "mixture", "scaled_mixture":
		m, err := NewScaledMixture[B](spec.Pi, spec.Sigma1, spec.Sigma2)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, errs.Config("prior.kind", spec.Kind, "expected gaussian or mixture")
	}
}
