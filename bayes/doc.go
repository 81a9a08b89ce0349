// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package bayes provides Bayesian neural network layers, a topology builder and an
// uncertainty harness on top of Born.
//
// # Overview
//
// This package contains:
//   - Layers: BayesianLinear, BayesianConv2D with KL or MMD regularisation
//   - Priors: Gaussian, ScaledMixture
//   - Builders: Bayesian and Deterministic topology builders
//   - Harness: Wrapper with training, robustness sweeps and calibration
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/born/autodiff"
//	    "github.com/born-ml/born/backend/cpu"
//	    "github.com/born-ml/born/optim"
//	    "github.com/born-ml/born/tensor"
//	    "github.com/born-ml/bnn/bayes"
//	)
//
//	func main() {
//	    backend := autodiff.New(cpu.New())
//
//	    prior, _ := bayes.NewGaussian[*autodiff.Backend[*cpu.Backend]](0, 1)
//	    cfg := bayes.LayerConfig[*autodiff.Backend[*cpu.Backend]]{Divergence: bayes.KL, Bias: true, Prior: prior}
//
//	    entries, _ := bayes.ParseTopology([]any{64, "relu"})
//	    stack, _ := bayes.NewBuilder(cfg, backend).Build(entries, tensor.Shape{2}, 3)
//	    model := bayes.NewNetwork(stack, 3, backend)
//
//	    optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 0.01}, backend)
//	    w, _ := bayes.NewWrapper(model, train, test, optimizer, backend)
//	    for epoch := 0; epoch < 20; epoch++ {
//	        w.TrainStep(10)
//	    }
//	    results, _ := w.FGSMTest(bayes.DefaultSweeps().Epsilons, 10)
//	}
//
// # Divergence
//
// Every Bayesian layer returns its regulariser alongside its output. KL layers return
// the log-prior and log-posterior of the sampled weights; MMD layers return the
// maximum mean discrepancy between the sampled weights and a prior sample. In
// evaluation mode the regulariser is exactly zero.
package bayes
