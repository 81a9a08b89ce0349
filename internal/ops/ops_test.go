package ops

import (
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleShiftGradientOnMatrices(t *testing.T) {
	for _, shape := range []tensor.Shape{{4}, {1, 4}, {3, 4}, {2, 3, 2}} {
		backend := autodiff.New(cpu.New())
		x := tensor.Randn[float32](shape, backend)

		backend.Tape().StartRecording()
		loss := Sum(Shift(Scale(x, 2), 1))
		grads := autodiff.Backward(loss, backend)
		backend.Tape().Clear()

		grad, ok := grads[x.Raw()]
		require.True(t, ok, "shape %v: no gradient for input", shape)
		require.Equal(t, shape.NumElements(), grad.Shape().NumElements())
		for _, g := range grad.AsFloat32() {
			assert.InDelta(t, 2.0, float64(g), 1e-6, "shape %v", shape)
		}
	}
}

func TestSoftplusGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x, err := tensor.FromSlice([]float32{0, 0, 0, 0, 0, 0}, tensor.Shape{2, 3}, backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	grads := autodiff.Backward(Sum(Softplus(x)), backend)
	backend.Tape().Clear()

	// d/dx log(1 + e^x) at 0 is 1/2.
	for _, g := range grads[x.Raw()].AsFloat32() {
		assert.InDelta(t, 0.5, float64(g), 1e-6)
	}
}

func TestExpandFoldsGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	s, err := tensor.FromSlice([]float32{3}, tensor.Shape{1}, backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	wide := Expand(s, tensor.Shape{2, 3})
	require.Equal(t, tensor.Shape{2, 3}, wide.Shape())
	assert.Equal(t, []float32{3, 3, 3, 3, 3, 3}, wide.Data())

	grads := autodiff.Backward(Sum(wide), backend)
	backend.Tape().Clear()
	assert.InDelta(t, 6.0, float64(grads[s.Raw()].AsFloat32()[0]), 1e-6)
}
