// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package bayes

import (
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/dataset"
	"github.com/born-ml/bnn/internal/divergence"
	"github.com/born-ml/bnn/internal/layers"
	"github.com/born-ml/bnn/internal/network"
	"github.com/born-ml/bnn/internal/prior"
	"github.com/born-ml/bnn/internal/topology"
	"github.com/born-ml/bnn/internal/variational"
	"github.com/born-ml/bnn/internal/wrapper"
)

// Divergence

// DivergenceKind selects the regulariser of Bayesian layers.
type DivergenceKind = divergence.Kind

// Divergence kinds.
const (
	None = divergence.None
	KL   = divergence.KL
	MMD  = divergence.MMD
)

// Divergence is the regulariser of one forward pass.
type Divergence[B tensor.Backend] = divergence.Result[B]

// Schedule weights the divergence of each mini-batch.
type Schedule = divergence.Schedule

// Divergence schedules.
const (
	Uniform  = divergence.Uniform
	Blundell = divergence.Blundell
	Constant = divergence.Constant
)

// Priors

// Prior is a distribution over weights.
type Prior[B tensor.Backend] = prior.Prior[B]

// PriorSpec is the declarative form of a prior.
type PriorSpec = prior.Spec

// NewGaussian creates a N(mu, sigma²) prior.
//
// Example:
//
//	p, err := bayes.NewGaussian[*autodiff.Backend[*cpu.Backend]](0, 1)
func NewGaussian[B tensor.Backend](mu, sigma float64) (*prior.Gaussian[B], error) {
	return prior.NewGaussian[B](mu, sigma)
}

// NewScaledMixture creates the two-component scale mixture pi·N(0, sigma1²) +
// (1-pi)·N(0, sigma2²).
func NewScaledMixture[B tensor.Backend](pi, sigma1, sigma2 float64) (*prior.ScaledMixture[B], error) {
	return prior.NewScaledMixture[B](pi, sigma1, sigma2)
}

// ParsePrior builds a prior from its declarative form.
func ParsePrior[B tensor.Backend](spec PriorSpec) (Prior[B], error) {
	return prior.Parse[B](spec)
}

// Variational parameters

// Initializer fills variational means or raw scales.
type Initializer = variational.Initializer

// NormalInit draws from N(0, 1).
func NormalInit() Initializer { return variational.Normal() }

// UniformInit draws from U(lo, hi).
func UniformInit(lo, hi float64) Initializer { return variational.Uniform(lo, hi) }

// ConstantInit fills with v.
func ConstantInit(v float64) Initializer { return variational.Constant(v) }

// Layers

// Layer is one stage of a network.
type Layer[B tensor.Backend] = layers.Layer[B]

// LayerConfig configures Bayesian layers.
type LayerConfig[B tensor.Backend] = layers.BayesianConfig[B]

// BayesianLinear is a fully connected layer with Gaussian weight posteriors.
type BayesianLinear[B tensor.Backend] = layers.BayesianLinear[B]

// NewBayesianLinear creates a Bayesian linear layer.
//
// Example:
//
//	layer := bayes.NewBayesianLinear(784, 128, cfg, backend)
//	out := layer.Forward(x)   // out.Value [N, 128], out.Divergence
func NewBayesianLinear[B tensor.Backend](inFeatures, outFeatures int, cfg LayerConfig[B], backend B) *BayesianLinear[B] {
	return layers.NewBayesianLinear(inFeatures, outFeatures, cfg, backend)
}

// BayesianConv2D is a square-kernel convolution with Gaussian weight posteriors.
type BayesianConv2D[B tensor.Backend] = layers.BayesianConv2D[B]

// NewBayesianConv2D creates a Bayesian convolution.
func NewBayesianConv2D[B tensor.Backend](inChannels, outChannels, kernelSize, stride, padding int, cfg LayerConfig[B], backend B) *BayesianConv2D[B] {
	return layers.NewBayesianConv2D(inChannels, outChannels, kernelSize, stride, padding, cfg, backend)
}

// Topology

// Entry is one element of a declarative topology.
type Entry = topology.Entry

// Builder turns topologies into layer stacks.
type Builder[B tensor.Backend] = topology.Builder[B]

// ParseTopology decodes a topology list as produced by YAML or JSON decoding.
func ParseTopology(values []any) ([]Entry, error) {
	return topology.ParseEntries(values)
}

// NewBuilder returns a builder emitting Bayesian linear and convolution layers.
func NewBuilder[B tensor.Backend](cfg LayerConfig[B], backend B, opts ...topology.Option) *Builder[B] {
	return topology.Bayesian(cfg, backend, opts...)
}

// NewDeterministicBuilder returns a builder emitting plain layers.
func NewDeterministicBuilder[B tensor.Backend](backend B, opts ...topology.Option) *Builder[B] {
	return topology.Deterministic(backend, opts...)
}

// Network

// Network is an ordered stack of layers.
type Network[B tensor.Backend] = network.Network[B]

// NewNetwork wraps a layer stack with classes outputs.
func NewNetwork[B tensor.Backend](stack []Layer[B], classes int, backend B, opts ...network.Option) *Network[B] {
	return network.New(stack, classes, backend, opts...)
}

// Harness

// Dataset is an in-memory dataset with a swappable transform.
type Dataset = dataset.Dataset

// Wrapper trains a network and measures its uncertainty.
type Wrapper[B wrapper.Backend] = wrapper.Wrapper[B]

// Sweeps lists the perturbation levels of the robustness tests.
type Sweeps = wrapper.Sweeps

// SweepResult is the outcome of one perturbation level.
type SweepResult = wrapper.SweepResult

// DefaultSweeps returns the standard perturbation grid.
func DefaultSweeps() Sweeps { return wrapper.DefaultSweeps() }

// NewWrapper creates a training and evaluation harness.
func NewWrapper[B wrapper.Backend](model *Network[B], train, test *Dataset, optimizer optim.Optimizer, backend B, opts ...wrapper.Option[B]) (*Wrapper[B], error) {
	return wrapper.New(model, train, test, optimizer, backend, opts...)
}
