package divergence

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/bnn/internal/errs"
	"github.com/born-ml/bnn/internal/ops"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind("KL")
	require.NoError(t, err)
	assert.Equal(t, KL, k)

	k, err = ParseKind(" mmd ")
	require.NoError(t, err)
	assert.Equal(t, MMD, k)

	_, err = ParseKind("wasserstein")
	assert.True(t, errors.Is(err, errs.ErrInvalidConfiguration))
}

func TestZeroIsExact(t *testing.T) {
	backend := autodiff.New(cpu.New())

	kl := Zero(KL, backend)
	assert.Equal(t, KL, kl.Kind)
	assert.Equal(t, float32(0), kl.LogPrior.Data()[0])
	assert.Equal(t, float32(0), kl.LogPosterior.Data()[0])
	assert.Nil(t, kl.MMD)

	mmd := Zero(MMD, backend)
	assert.Nil(t, mmd.LogPrior)
	assert.Equal(t, float32(0), mmd.MMD.Data()[0])

	assert.Nil(t, Zero(None, backend).Loss())
}

func TestTotalSumsLayers(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer := func(prior, post float32) Result[*autodiff.Backend[*cpu.Backend]] {
		return Result[*autodiff.Backend[*cpu.Backend]]{
			Kind:         KL,
			LogPrior:     ops.Scalar(prior, backend),
			LogPosterior: ops.Scalar(post, backend),
		}
	}

	total := Total([]Result[*autodiff.Backend[*cpu.Backend]]{layer(-3, 1), {}, layer(-2, 0.5)})
	assert.Equal(t, KL, total.Kind)
	assert.InDelta(t, -5.0, ops.Value(total.LogPrior), 1e-6)
	assert.InDelta(t, 1.5, ops.Value(total.LogPosterior), 1e-6)
	assert.InDelta(t, 6.5, total.Value(), 1e-6)
}

func TestDiscrepancyOfIdenticalSamplesIsZero(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.Randn[float32](tensor.Shape{8, 5}, backend)

	assert.InDelta(t, 0.0, ops.Value(Discrepancy(x, x)), 1e-6)
}

func TestDiscrepancyIsNonNegative(t *testing.T) {
	backend := autodiff.New(cpu.New())
	rand.Seed(7)

	shapes := []tensor.Shape{{6, 4}, {10}, {3, 2, 3, 3}}
	for _, shape := range shapes {
		for i := 0; i < 5; i++ {
			x := tensor.Randn[float32](shape, backend)
			y := ops.Shift(tensor.Randn[float32](shape, backend), float32(i))
			got := ops.Value(Discrepancy(x, y))
			assert.GreaterOrEqual(t, got, -1e-5, "shape %v", shape)
		}
	}
}

func TestDiscrepancyGrowsWithShift(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.Randn[float32](tensor.Shape{16, 4}, backend)

	near := ops.Value(Discrepancy(x, ops.Shift(x, 0.1)))
	far := ops.Value(Discrepancy(x, ops.Shift(x, 3)))
	assert.Less(t, near, far)
}

func TestRadialKernelSelfPairs(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x, err := tensor.FromSlice([]float32{1, 2}, tensor.Shape{1, 2}, backend)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, ops.Value(RadialKernel(x, x)), 1e-6)
}

func TestRowsShapes(t *testing.T) {
	backend := autodiff.New(cpu.New())

	assert.Equal(t, tensor.Shape{4, 1}, Rows(tensor.Zeros[float32](tensor.Shape{4}, backend)).Shape())
	assert.Equal(t, tensor.Shape{8, 27}, Rows(tensor.Zeros[float32](tensor.Shape{8, 3, 3, 3}, backend)).Shape())
}

func TestScheduleWeights(t *testing.T) {
	const m = 10
	for _, s := range []Schedule{Uniform, Blundell} {
		var sum float64
		for i := 0; i < m; i++ {
			sum += s.Weight(i, m)
		}
		assert.InDelta(t, 1.0, sum, 1e-12, "schedule %s", s)
	}

	assert.InDelta(t, 512.0/1023.0, Blundell.Weight(0, m), 1e-12)
	assert.Equal(t, 1.0, Constant.Weight(3, m))
	assert.Greater(t, Blundell.Weight(0, 5000), 0.0)

	_, err := ParseSchedule("cosine")
	assert.True(t, errors.Is(err, errs.ErrInvalidConfiguration))
}
