package variational

import (
	"errors"
	"math"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/born-ml/bnn/internal/errs"
	"github.com/born-ml/bnn/internal/ops"
)

func TestSigmaIsPositive(t *testing.T) {
	backend := autodiff.New(cpu.New())

	for _, rho := range []float64{-10, -5, -1, 0, 1, 5, 10} {
		p := NewParameter("w", tensor.Shape{4, 3}, Normal(), Constant(rho), backend)
		for i, s := range p.Sigma().Data() {
			if s <= 0 {
				t.Errorf("rho=%v: sigma[%d] = %v, want > 0", rho, i, s)
			}
		}
	}
}

func TestSigmaMatchesSoftplus(t *testing.T) {
	backend := autodiff.New(cpu.New())
	p := NewParameter("w", tensor.Shape{2}, Constant(0), Constant(0.5), backend)

	want := math.Log1p(math.Exp(0.5))
	for _, s := range p.Sigma().Data() {
		assert.InDelta(t, want, float64(s), 1e-5)
	}
}

func TestSampleShapeAndSpread(t *testing.T) {
	backend := autodiff.New(cpu.New())
	p := NewParameter("w", tensor.Shape{50, 40}, Constant(3), Constant(-10), backend)

	w := p.Sample()
	require.Equal(t, tensor.Shape{50, 40}, w.Shape())
	for _, v := range w.Data() {
		assert.InDelta(t, 3.0, float64(v), 0.01)
	}

	a, b := p.Sample().Data(), p.Sample().Data()
	assert.NotEqual(t, a, b, "each sample must draw fresh noise")
}

func TestSampleGradientsReachMeanAndScale(t *testing.T) {
	for _, shape := range []tensor.Shape{{4}, {1, 4}, {3, 4}} {
		backend := autodiff.New(cpu.New())
		p := NewParameter("w", shape, Normal(), Constant(-3), backend)

		backend.Tape().StartRecording()
		w := p.Sample()
		loss := ops.Sum(w).Add(p.LogProb(w))
		grads := autodiff.Backward(loss, backend)
		backend.Tape().Clear()

		assert.Contains(t, grads, p.Mean().Raw(), "shape %v", shape)
		assert.Contains(t, grads, p.RawScale().Raw(), "shape %v", shape)
	}
}

func TestLogProbMatchesClosedForm(t *testing.T) {
	backend := autodiff.New(cpu.New())
	p := NewParameter("w", tensor.Shape{3}, Constant(0.5), Constant(0), backend)
	sigma := math.Log1p(1)

	values := []float32{-1, 0.5, 2}
	w, err := tensor.FromSlice(values, tensor.Shape{3}, backend)
	require.NoError(t, err)

	dist := distuv.Normal{Mu: 0.5, Sigma: sigma}
	var want float64
	for _, v := range values {
		want += dist.LogProb(float64(v))
	}

	got := p.LogProb(w)
	require.Equal(t, 1, got.NumElements())
	assert.InDelta(t, want, float64(got.Data()[0]), 1e-4)
}

func TestParametersAndStateDict(t *testing.T) {
	backend := autodiff.New(cpu.New())
	p := NewParameter("fc1.weight", tensor.Shape{2, 2}, Normal(), Constant(-5), backend)

	params := p.Parameters()
	require.Len(t, params, 2)
	assert.Equal(t, "fc1.weight.mu", params[0].Name())
	assert.Equal(t, "fc1.weight.rho", params[1].Name())

	sd := p.StateDict()
	assert.Contains(t, sd, "fc1.weight.mu")
	assert.Contains(t, sd, "fc1.weight.rho")
}

func TestParseInitializer(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, "normal"},
		{"normal", "Normal", "normal"},
		{"uniform list", []any{-0.2, 0.2}, "uniform(-0.2, 0.2)"},
		{"uniform ints", []any{1, -1}, "uniform(-1, 1)"},
		{"constant float", -5.0, "constant(-5)"},
		{"constant int", 3, "constant(3)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			init, err := ParseInitializer("mu_init", tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, init.String())
		})
	}
}

func TestParseInitializerRejects(t *testing.T) {
	for _, v := range []any{"xavier", []any{1.0}, []any{1.0, "a"}, map[string]any{"a": 1}, true} {
		_, err := ParseInitializer("rho_init", v)
		require.Error(t, err, "value %v", v)
		assert.True(t, errors.Is(err, errs.ErrInvalidConfiguration))

		var cfgErr *errs.ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "rho_init", cfgErr.Field)
	}
}

func TestUniformStaysInRange(t *testing.T) {
	ws := make([]float32, 1000)
	Uniform(-0.2, 0.2).Fill(ws)
	for _, w := range ws {
		if w < -0.2 || w > 0.2 {
			t.Fatalf("value %v outside [-0.2, 0.2]", w)
		}
	}
}
