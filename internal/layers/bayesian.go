package layers

import (
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/divergence"
	"github.com/born-ml/bnn/internal/prior"
	"github.com/born-ml/bnn/internal/variational"
)

// BayesianConfig holds the construction options shared by Bayesian layers.
type BayesianConfig[B tensor.Backend] struct {
	Divergence   divergence.Kind
	LocalReparam bool
	Bias         bool
	MeanInit     variational.Initializer
	ScaleInit    variational.Initializer
	Prior        prior.Prior[B]
}

// bayesian is the posterior state common to Bayesian linear and conv layers.
type bayesian[B tensor.Backend] struct {
	mode
	kind         divergence.Kind
	localReparam bool
	weight       *variational.Parameter[B]
	bias         *variational.Parameter[B]
	prior        prior.Prior[B]
	backend      B
}

func newBayesian[B tensor.Backend](weightShape tensor.Shape, biasSize int, cfg BayesianConfig[B], backend B) bayesian[B] {
	if cfg.Prior == nil {
		panic("layers: Bayesian layer requires a prior")
	}
	if cfg.Divergence == divergence.None {
		cfg.Divergence = divergence.KL
	}
	meanInit, scaleInit := cfg.MeanInit, cfg.ScaleInit
	if meanInit == nil {
		meanInit = variational.Uniform(-0.2, 0.2)
	}
	if scaleInit == nil {
		scaleInit = variational.Constant(-5)
	}

	b := bayesian[B]{
		kind:         cfg.Divergence,
		localReparam: cfg.LocalReparam,
		weight:       variational.NewParameter("weight", weightShape, meanInit, scaleInit, backend),
		prior:        cfg.Prior,
		backend:      backend,
	}
	if cfg.Bias {
		b.bias = variational.NewParameter("bias", tensor.Shape{biasSize}, meanInit, scaleInit, backend)
	}
	return b
}

// Weight returns the weight posterior.
func (b *bayesian[B]) Weight() *variational.Parameter[B] { return b.weight }

// Bias returns the bias posterior, nil when the layer has no bias.
func (b *bayesian[B]) Bias() *variational.Parameter[B] { return b.bias }

// Prior returns the prior the layer regularises towards.
func (b *bayesian[B]) Prior() prior.Prior[B] { return b.prior }

// SetPrior replaces the prior reference. The prior itself is never modified.
func (b *bayesian[B]) SetPrior(p prior.Prior[B]) {
	if p == nil {
		panic("layers: SetPrior requires a prior")
	}
	b.prior = p
}

// DivergenceKind returns the regulariser selected at construction.
func (b *bayesian[B]) DivergenceKind() divergence.Kind { return b.kind }

func (b *bayesian[B]) Parameters() []*nn.Parameter[B] {
	params := b.weight.Parameters()
	if b.bias != nil {
		params = append(params, b.bias.Parameters()...)
	}
	return params
}

func (b *bayesian[B]) StateDict() map[string]*tensor.RawTensor {
	return paramStateDict(b.Parameters())
}

func (b *bayesian[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParams(b.Parameters(), stateDict)
}

// sample draws a full weight (and bias) from the posterior.
func (b *bayesian[B]) sample() (weight, bias *tensor.Tensor[float32, B]) {
	weight = b.weight.Sample()
	if b.bias != nil {
		bias = b.bias.Sample()
	}
	return weight, bias
}

// regularize scores a posterior draw against the prior. Evaluation mode reports exact
// zeros.
func (b *bayesian[B]) regularize(weight, bias *tensor.Tensor[float32, B]) divergence.Result[B] {
	if !b.Training() {
		return divergence.Zero(b.kind, b.backend)
	}

	switch b.kind {
	case divergence.MMD:
		mmd := divergence.Discrepancy(weight, b.prior.Sample(weight.Shape(), b.backend))
		if bias != nil {
			mmd = mmd.Add(divergence.Discrepancy(bias, b.prior.Sample(bias.Shape(), b.backend)))
		}
		return divergence.Result[B]{Kind: divergence.MMD, MMD: mmd}
	default:
		logPost := b.weight.LogProb(weight)
		logPrior := b.prior.LogProb(weight)
		if bias != nil {
			logPost = logPost.Add(b.bias.LogProb(bias))
			logPrior = logPrior.Add(b.prior.LogProb(bias))
		}
		return divergence.Result[B]{Kind: divergence.KL, LogPrior: logPrior, LogPosterior: logPost}
	}
}
