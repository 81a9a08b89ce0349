package topology

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/bnn/internal/divergence"
	"github.com/born-ml/bnn/internal/errs"
	"github.com/born-ml/bnn/internal/layers"
	"github.com/born-ml/bnn/internal/prior"
)

type testBackend = *autodiff.Backend[*cpu.Backend]

func bayesianConfig(t *testing.T) layers.BayesianConfig[testBackend] {
	t.Helper()
	p, err := prior.NewGaussian[testBackend](0, 1)
	require.NoError(t, err)
	return layers.BayesianConfig[testBackend]{Divergence: divergence.KL, Bias: true, Prior: p}
}

func names(stack []layers.Layer[testBackend]) []string {
	out := make([]string, len(stack))
	for i, l := range stack {
		out[i] = l.String()
	}
	return out
}

func TestParseEntriesFromYAML(t *testing.T) {
	var raw []any
	require.NoError(t, yaml.Unmarshal([]byte(`[[16, 3, 1, 1], relu, [MP, 2, 2], 0.2, 10]`), &raw))

	entries, err := ParseEntries(raw)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		ConvSpec{Channels: 16, Kernel: 3, Stride: 1, Padding: 1},
		ActivationSpec{Name: "relu"},
		PoolSpec{Kind: layers.MaxPool, Kernel: 2, Stride: 2},
		DropoutSpec{Rate: 0.2},
		LinearWidth(10),
	}, entries)
}

func TestParseEntriesFromJSONNumbers(t *testing.T) {
	dec := json.NewDecoder(strings.NewReader(`[["AP", 2, 2], "Sigmoid", 0.5, 32]`))
	dec.UseNumber()
	var raw []any
	require.NoError(t, dec.Decode(&raw))

	entries, err := ParseEntries(raw)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		PoolSpec{Kind: layers.AvgPool, Kernel: 2, Stride: 2},
		ActivationSpec{Name: "sigmoid"},
		DropoutSpec{Rate: 0.5},
		LinearWidth(32),
	}, entries)
}

func TestParseEntriesRejectsUnsupported(t *testing.T) {
	tests := []struct {
		name  string
		value []any
		index int
	}{
		{"map", []any{map[string]any{"bad": 1}}, 0},
		{"bool", []any{10, true}, 1},
		{"unknown activation", []any{"relu", "tanh"}, 1},
		{"short tuple", []any{[]any{16, 3}}, 0},
		{"bad pool tag", []any{[]any{"XP", 2, 2}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEntries(tt.value)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrInvalidTopology))

			var topoErr *errs.TopologyError
			require.ErrorAs(t, err, &topoErr)
			assert.Equal(t, tt.index, topoErr.Index)
			assert.Equal(t, tt.value[tt.index], topoErr.Value)
		})
	}
}

func TestBuildConvNetwork(t *testing.T) {
	backend := autodiff.New(cpu.New())
	entries, err := ParseEntries([]any{[]any{16, 3, 1, 1}, "relu", []any{"MP", 2, 2}, 10})
	require.NoError(t, err)

	stack, err := Bayesian(bayesianConfig(t), backend).Build(entries, tensor.Shape{3, 32, 32}, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"BayesianConv2D(in=3, out=16, kernel=3, stride=1, padding=1, divergence=kl, local=false)",
		"ReLU()",
		"MaxPool2D(kernel=2, stride=2)",
		"Flatten()",
		"BayesianLinear(in=4096, out=10, bias=true, divergence=kl, local=false)",
		"BayesianLinear(in=10, out=2, bias=true, divergence=kl, local=false)",
	}, names(stack))

	x := tensor.Randn[float32](tensor.Shape{2, 3, 32, 32}, backend)
	for _, l := range stack {
		x = l.Forward(x).Value
	}
	assert.Equal(t, tensor.Shape{2, 2}, x.Shape())
}

func TestBuildDeterministicEndsWithFlatten(t *testing.T) {
	backend := autodiff.New(cpu.New())
	entries := []Entry{ConvSpec{Channels: 4, Kernel: 3, Stride: 1, Padding: 0}, PoolSpec{Kind: layers.AvgPool, Kernel: 2, Stride: 2}}

	stack, err := Deterministic(backend).Build(entries, tensor.Shape{1, 10, 10}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Conv2D(in=1, out=4, kernel=3, stride=1, padding=0)",
		"AvgPool2D(kernel=2, stride=2)",
		"Flatten()",
		"Linear(in=64, out=3)",
	}, names(stack))
}

func TestFlattenInsertedOnce(t *testing.T) {
	backend := autodiff.New(cpu.New())
	entries := []Entry{ConvSpec{Channels: 2, Kernel: 3, Stride: 1, Padding: 1}, LinearWidth(8), ActivationSpec{Name: "relu"}, LinearWidth(4)}

	stack, err := Deterministic(backend).Build(entries, tensor.Shape{1, 4, 4}, 2)
	require.NoError(t, err)

	flattens := 0
	for _, l := range stack {
		if l.String() == "Flatten()" {
			flattens++
		}
	}
	assert.Equal(t, 1, flattens)
	assert.Equal(t, "Flatten()", stack[1].String())
}

func TestDropoutRate(t *testing.T) {
	backend := autodiff.New(cpu.New())
	entries := []Entry{LinearWidth(8), DropoutSpec{Rate: 0.1}}

	stack, err := Deterministic(backend).Build(entries, tensor.Shape{4}, 2)
	require.NoError(t, err)
	assert.Equal(t, "Dropout(p=0.5)", stack[1].String())

	stack, err = Deterministic(backend, HonorDropoutRate()).Build(entries, tensor.Shape{4}, 2)
	require.NoError(t, err)
	assert.Equal(t, "Dropout(p=0.1)", stack[1].String())
}

func TestBuildRejectsMisplacedEntries(t *testing.T) {
	backend := autodiff.New(cpu.New())

	_, err := Deterministic(backend).Build([]Entry{LinearWidth(8), ConvSpec{Channels: 2, Kernel: 3, Stride: 1}}, tensor.Shape{1, 8, 8}, 2)
	var topoErr *errs.TopologyError
	require.ErrorAs(t, err, &topoErr)
	assert.Equal(t, 1, topoErr.Index)

	_, err = Deterministic(backend).Build([]Entry{PoolSpec{Kind: layers.MaxPool, Kernel: 2, Stride: 2}}, tensor.Shape{16}, 2)
	require.ErrorAs(t, err, &topoErr)
	assert.Equal(t, 0, topoErr.Index)

	_, err = Bayesian(layers.BayesianConfig[testBackend]{}, backend).Build(nil, tensor.Shape{4}, 2)
	assert.True(t, errors.Is(err, errs.ErrInvalidConfiguration))
}
