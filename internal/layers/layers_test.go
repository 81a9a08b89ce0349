package layers

import (
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/bnn/internal/divergence"
	"github.com/born-ml/bnn/internal/ops"
	"github.com/born-ml/bnn/internal/prior"
	"github.com/born-ml/bnn/internal/variational"
)

type testBackend = *autodiff.Backend[*cpu.Backend]

func testConfig(t *testing.T, kind divergence.Kind, local bool) BayesianConfig[testBackend] {
	t.Helper()
	p, err := prior.NewGaussian[testBackend](0, 1)
	require.NoError(t, err)
	return BayesianConfig[testBackend]{
		Divergence:   kind,
		LocalReparam: local,
		Bias:         true,
		MeanInit:     variational.Uniform(-0.2, 0.2),
		ScaleInit:    variational.Constant(-5),
		Prior:        p,
	}
}

func TestBayesianLinearShapes(t *testing.T) {
	backend := autodiff.New(cpu.New())
	for _, local := range []bool{false, true} {
		layer := NewBayesianLinear(4, 3, testConfig(t, divergence.KL, local), backend)
		x := tensor.Randn[float32](tensor.Shape{5, 4}, backend)

		out := layer.Forward(x)
		assert.Equal(t, tensor.Shape{5, 3}, out.Value.Shape())
		assert.Equal(t, tensor.Shape{5, 3}, layer.OutputShape(tensor.Shape{5, 4}))
		assert.Len(t, layer.Parameters(), 4)
	}
}

func TestBayesianLinearKLZeroInEval(t *testing.T) {
	backend := autodiff.New(cpu.New())
	for _, local := range []bool{false, true} {
		layer := NewBayesianLinear(4, 3, testConfig(t, divergence.KL, local), backend)
		x := tensor.Randn[float32](tensor.Shape{2, 4}, backend)

		train := layer.Forward(x).Divergence
		require.Equal(t, divergence.KL, train.Kind)
		assert.NotEqual(t, float32(0), train.LogPrior.Data()[0])
		assert.NotEqual(t, float32(0), train.LogPosterior.Data()[0])

		layer.SetTraining(false)
		eval := layer.Forward(x).Divergence
		require.Equal(t, divergence.KL, eval.Kind)
		assert.Equal(t, float32(0), eval.LogPrior.Data()[0])
		assert.Equal(t, float32(0), eval.LogPosterior.Data()[0])
	}
}

func TestBayesianLinearMMD(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer := NewBayesianLinear(6, 4, testConfig(t, divergence.MMD, false), backend)
	x := tensor.Randn[float32](tensor.Shape{3, 6}, backend)

	res := layer.Forward(x).Divergence
	require.Equal(t, divergence.MMD, res.Kind)
	assert.Nil(t, res.LogPrior)
	assert.GreaterOrEqual(t, ops.Value(res.MMD), -1e-5)

	layer.SetTraining(false)
	assert.Equal(t, float32(0), layer.Forward(x).Divergence.MMD.Data()[0])
}

func TestBayesianLinearGradientsReachPosterior(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer := NewBayesianLinear(3, 2, testConfig(t, divergence.KL, false), backend)
	x := tensor.Randn[float32](tensor.Shape{4, 3}, backend)

	backend.Tape().StartRecording()
	defer backend.Tape().Clear()

	out := layer.Forward(x)
	loss := ops.Sum(out.Value).Add(out.Divergence.Loss())
	grads := autodiff.Backward(loss, backend)

	for _, p := range layer.Parameters() {
		assert.Contains(t, grads, p.Tensor().Raw(), "no gradient for %s", p.Name())
	}
}

func TestBayesianConv2DShapes(t *testing.T) {
	backend := autodiff.New(cpu.New())
	for _, local := range []bool{false, true} {
		layer := NewBayesianConv2D(3, 8, 3, 1, 1, testConfig(t, divergence.KL, local), backend)
		x := tensor.Randn[float32](tensor.Shape{2, 3, 6, 6}, backend)

		out := layer.Forward(x)
		assert.Equal(t, tensor.Shape{2, 8, 6, 6}, out.Value.Shape())
		assert.Equal(t, tensor.Shape{2, 8, 6, 6}, layer.OutputShape(x.Shape()))
	}

	strided := NewBayesianConv2D(1, 2, 3, 2, 0, testConfig(t, divergence.MMD, false), backend)
	assert.Equal(t, tensor.Shape{1, 2, 3, 3}, strided.OutputShape(tensor.Shape{1, 1, 7, 7}))
}

func TestSetPriorReplacesReference(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer := NewBayesianLinear(2, 2, testConfig(t, divergence.KL, false), backend)
	original := layer.Prior()

	wide, err := prior.NewGaussian[testBackend](0, 10)
	require.NoError(t, err)
	layer.SetPrior(wide)

	assert.Same(t, wide, layer.Prior())
	assert.Equal(t, "Gaussian(mu=0, sigma=1)", original.String())
}

func TestStateDictRoundTrip(t *testing.T) {
	backend := autodiff.New(cpu.New())
	src := NewBayesianLinear(3, 2, testConfig(t, divergence.KL, false), backend)
	dst := NewBayesianLinear(3, 2, testConfig(t, divergence.KL, false), backend)

	sd := src.StateDict()
	assert.Len(t, sd, 4)
	require.NoError(t, dst.LoadStateDict(sd))
	assert.Equal(t, src.Weight().Mean().Data(), dst.Weight().Mean().Data())

	delete(sd, "bias.rho")
	assert.Error(t, dst.LoadStateDict(sd))

	wrong := NewBayesianLinear(4, 2, testConfig(t, divergence.KL, false), backend)
	assert.Error(t, wrong.LoadStateDict(src.StateDict()))
}

func TestAvgPool(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x, err := tensor.FromSlice([]float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}, tensor.Shape{1, 1, 4, 4}, backend)
	require.NoError(t, err)

	pool := NewPool(AvgPool, 2, 2, backend)
	out := pool.Forward(x).Value
	require.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
	assert.InDeltaSlice(t, []float32{3.5, 5.5, 11.5, 13.5}, out.Data(), 1e-5)
}

func TestMaxPoolShape(t *testing.T) {
	backend := autodiff.New(cpu.New())
	pool := NewPool(MaxPool, 2, 2, backend)
	x := tensor.Randn[float32](tensor.Shape{2, 3, 8, 8}, backend)

	assert.Equal(t, tensor.Shape{2, 3, 4, 4}, pool.Forward(x).Value.Shape())
	assert.Equal(t, tensor.Shape{2, 3, 4, 4}, pool.OutputShape(x.Shape()))
	assert.Equal(t, "MaxPool2D(kernel=2, stride=2)", pool.String())
}

func TestDropout(t *testing.T) {
	backend := autodiff.New(cpu.New())
	d := NewDropout[testBackend](0.5)
	x := tensor.Ones[float32](tensor.Shape{10, 10}, backend)

	for _, v := range d.Forward(x).Value.Data() {
		assert.Contains(t, []float32{0, 2}, v)
	}

	d.SetTraining(false)
	assert.Same(t, x, d.Forward(x).Value)
}

func TestFlattenAndActivation(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.Randn[float32](tensor.Shape{2, 3, 4, 4}, backend)

	f := NewFlatten[testBackend]()
	assert.Equal(t, tensor.Shape{2, 48}, f.Forward(x).Value.Shape())
	assert.Equal(t, tensor.Shape{2, 48}, f.OutputShape(x.Shape()))

	relu, ok := NewActivation[testBackend]("ReLU")
	require.True(t, ok)
	for _, v := range relu.Forward(x).Value.Data() {
		assert.GreaterOrEqual(t, v, float32(0))
	}

	_, ok = NewActivation[testBackend]("tanh")
	assert.False(t, ok)
}

func TestDeterministicLayers(t *testing.T) {
	backend := autodiff.New(cpu.New())

	conv := NewConv2D(3, 4, 3, 1, 0, backend)
	x := tensor.Randn[float32](tensor.Shape{1, 3, 5, 5}, backend)
	out := conv.Forward(x)
	assert.Equal(t, tensor.Shape{1, 4, 3, 3}, out.Value.Shape())
	assert.Equal(t, divergence.None, out.Divergence.Kind)
	assert.Equal(t, tensor.Shape{1, 4, 3, 3}, conv.OutputShape(x.Shape()))

	lin := NewLinear(36, 5, backend)
	assert.Equal(t, tensor.Shape{1, 5}, lin.Forward(out.Value.Reshape(1, 36)).Value.Shape())
	assert.Len(t, lin.StateDict(), 2)
}
