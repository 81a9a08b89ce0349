package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/bnn/internal/divergence"
	"github.com/born-ml/bnn/internal/errs"
	"github.com/born-ml/bnn/internal/prior"
	"github.com/born-ml/bnn/internal/topology"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	entries, err := cfg.Model.Entries()
	require.NoError(t, err)
	assert.Equal(t, []topology.Entry{topology.LinearWidth(32), topology.ActivationSpec{Name: "relu"}}, entries)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Training, cfg.Training)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "run.yaml", `
model:
  bayesian: true
  topology: [[16, 3, 1, 1], relu, [MP, 2, 2], 0.25, 64]
  divergence: mmd
  prior:
    kind: mixture
    pi: 0.5
    sigma1: 1
    sigma2: 0.01
  mean_init: normal
  scale_init: [-6, -4]
training:
  epochs: 3
  schedule: blundell
evaluation:
  sweeps:
    epsilons: [0, 0.1]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	entries, err := cfg.Model.Entries()
	require.NoError(t, err)
	assert.Equal(t, []topology.Entry{
		topology.ConvSpec{Channels: 16, Kernel: 3, Stride: 1, Padding: 1},
		topology.ActivationSpec{Name: "relu"},
		topology.PoolSpec{Kernel: 2, Stride: 2},
		topology.DropoutSpec{Rate: 0.25},
		topology.LinearWidth(64),
	}, entries)

	kind, err := cfg.Model.DivergenceKind()
	require.NoError(t, err)
	assert.Equal(t, divergence.MMD, kind)

	schedule, err := cfg.Training.DivergenceSchedule()
	require.NoError(t, err)
	assert.Equal(t, divergence.Blundell, schedule)

	mean, scale, err := cfg.Model.Initializers()
	require.NoError(t, err)
	assert.Equal(t, "normal", mean.String())
	assert.Contains(t, scale.String(), "uniform")

	assert.Equal(t, 3, cfg.Training.Epochs)
	assert.Equal(t, []float64{0, 0.1}, cfg.Evaluation.Sweeps.Epsilons)
	assert.Equal(t, Default().Evaluation.Sweeps.NoiseLevels, cfg.Evaluation.Sweeps.NoiseLevels)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "run.yaml", "training:\n  epochs: 3\n  batch_size: 8\n")
	t.Setenv(EnvEpochs, "7")
	t.Setenv(EnvDivergence, "MMD")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Training.Epochs)
	assert.Equal(t, 8, cfg.Training.BatchSize)
	assert.Equal(t, "MMD", cfg.Model.Divergence)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero epochs", func(c *Config) { c.Training.Epochs = 0 }},
		{"unknown source", func(c *Config) { c.Data.Source = "csv" }},
		{"idx without paths", func(c *Config) { c.Data.Source = "idx" }},
		{"shuffle above one", func(c *Config) { c.Evaluation.Sweeps.ShufflePercentages = []float64{1.5} }},
		{"unknown divergence", func(c *Config) { c.Model.Divergence = "js" }},
		{"unknown schedule", func(c *Config) { c.Training.Schedule = "cosine" }},
		{"bad initializer", func(c *Config) { c.Model.ScaleInit = "xavier" }},
		{"bad prior", func(c *Config) { c.Model.Prior = prior.Spec{Kind: "gaussian", Sigma: 0} }},
		{"bad topology", func(c *Config) { c.Model.Topology = []any{"tanh"} }},
		{"input range length", func(c *Config) { c.Evaluation.InputRange = []float64{0} }},
		{"inverted input range", func(c *Config) { c.Evaluation.InputRange = []float64{1, 0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t,
				errors.Is(err, errs.ErrInvalidConfiguration) || errors.Is(err, errs.ErrInvalidTopology),
				"unexpected error class: %v", err)
		})
	}
}

func TestInputRangeClip(t *testing.T) {
	cfg := Default()
	lo, hi := cfg.Evaluation.Clip("blobs")
	assert.True(t, math.IsInf(lo, -1) && math.IsInf(hi, 1), "blobs are unbounded")

	lo, hi = cfg.Evaluation.Clip("idx")
	assert.Equal(t, [2]float64{0, 1}, [2]float64{lo, hi})

	cfg.Evaluation.InputRange = []float64{-3, 3}
	require.NoError(t, cfg.Validate())
	lo, hi = cfg.Evaluation.Clip("idx")
	assert.Equal(t, [2]float64{-3, 3}, [2]float64{lo, hi})
}

func TestJSONTopologyKeepsNumbers(t *testing.T) {
	path := writeFile(t, "run.json", `{"model": {"topology": [128, "sigmoid", 0.5]}, "training": {"epochs": 2}}`)
	// JSON is a YAML subset; either decoder must keep widths and rates apart.
	cfg, err := Load(path)
	require.NoError(t, err)

	entries, err := cfg.Model.Entries()
	require.NoError(t, err)
	assert.Equal(t, []topology.Entry{
		topology.LinearWidth(128),
		topology.ActivationSpec{Name: "sigmoid"},
		topology.DropoutSpec{Rate: 0.5},
	}, entries)
}
