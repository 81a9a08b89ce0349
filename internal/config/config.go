// Package config loads experiment configuration.
//
// Values are resolved in priority order: environment variables, then the YAML or JSON
// file, then the defaults of Default.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/born/backend/cpu"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/bnn/internal/divergence"
	"github.com/born-ml/bnn/internal/errs"
	"github.com/born-ml/bnn/internal/prior"
	"github.com/born-ml/bnn/internal/topology"
	"github.com/born-ml/bnn/internal/variational"
	"github.com/born-ml/bnn/internal/wrapper"
)

// Environment variables overriding file values.
const (
	EnvEpochs     = "BNN_EPOCHS"
	EnvBatchSize  = "BNN_BATCH_SIZE"
	EnvLR         = "BNN_LEARNING_RATE"
	EnvSamples    = "BNN_SAMPLES"
	EnvDivergence = "BNN_DIVERGENCE"
	EnvSchedule   = "BNN_SCHEDULE"
	EnvDataSource = "BNN_DATA_SOURCE"
	EnvStorePath  = "BNN_STORE_PATH"
	EnvLogLevel   = "BNN_LOG_LEVEL"
)

// Config is a complete experiment description.
type Config struct {
	Data       DataConfig       `json:"data" yaml:"data"`
	Model      ModelConfig      `json:"model" yaml:"model"`
	Training   TrainingConfig   `json:"training" yaml:"training"`
	Evaluation EvaluationConfig `json:"evaluation" yaml:"evaluation"`
	Output     OutputConfig     `json:"output" yaml:"output"`
}

// DataConfig selects the dataset.
type DataConfig struct {
	Source         string      `json:"source" yaml:"source" validate:"oneof=blobs idx"`
	TrainImages    string      `json:"train_images" yaml:"train_images" validate:"required_if=Source idx"`
	TrainLabels    string      `json:"train_labels" yaml:"train_labels" validate:"required_if=Source idx"`
	TestImages     string      `json:"test_images" yaml:"test_images"`
	TestLabels     string      `json:"test_labels" yaml:"test_labels"`
	MaxSamples     int         `json:"max_samples" yaml:"max_samples" validate:"gte=0"`
	ValidationPart float64     `json:"validation_part" yaml:"validation_part" validate:"gt=0,lt=1"`
	Blobs          BlobsConfig `json:"blobs" yaml:"blobs"`
}

// BlobsConfig describes the synthetic Gaussian blobs dataset.
type BlobsConfig struct {
	Samples int     `json:"samples" yaml:"samples" validate:"gt=0"`
	Classes int     `json:"classes" yaml:"classes" validate:"gte=2"`
	Dim     int     `json:"dim" yaml:"dim" validate:"gt=0"`
	Spread  float64 `json:"spread" yaml:"spread" validate:"gt=0"`
	Seed    int64   `json:"seed" yaml:"seed"`
}

// ModelConfig describes the network.
type ModelConfig struct {
	Bayesian         bool       `json:"bayesian" yaml:"bayesian"`
	Topology         []any      `json:"topology" yaml:"topology"`
	Divergence       string     `json:"divergence" yaml:"divergence"`
	LocalReparam     bool       `json:"local_reparameterization" yaml:"local_reparameterization"`
	Bias             bool       `json:"bias" yaml:"bias"`
	Prior            prior.Spec `json:"prior" yaml:"prior"`
	MeanInit         any        `json:"mean_init" yaml:"mean_init"`
	ScaleInit        any        `json:"scale_init" yaml:"scale_init"`
	HonorDropoutRate bool       `json:"honor_dropout_rate" yaml:"honor_dropout_rate"`
}

// TrainingConfig drives the optimiser.
type TrainingConfig struct {
	Epochs       int     `json:"epochs" yaml:"epochs" validate:"gt=0"`
	BatchSize    int     `json:"batch_size" yaml:"batch_size" validate:"gt=0"`
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate" validate:"gt=0"`
	Samples      int     `json:"samples" yaml:"samples" validate:"gt=0"`
	Schedule     string  `json:"schedule" yaml:"schedule"`
	Checkpoint   string  `json:"checkpoint" yaml:"checkpoint"`
}

// EvaluationConfig drives the uncertainty, robustness and calibration runs.
type EvaluationConfig struct {
	Samples int            `json:"samples" yaml:"samples" validate:"gt=0"`
	Bins    int            `json:"bins" yaml:"bins" validate:"gt=0"`
	Sweeps  wrapper.Sweeps `json:"sweeps" yaml:"sweeps"`
	// InputRange bounds adversarial inputs as [lo, hi]. Empty means [0, 1] for idx
	// images and no clipping for blobs.
	InputRange []float64 `json:"input_range,omitempty" yaml:"input_range,omitempty" validate:"omitempty,len=2"`
}

// OutputConfig controls where results and logs go.
type OutputConfig struct {
	StorePath   string `json:"store_path" yaml:"store_path"`
	LogLevel    string `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string `json:"log_format" yaml:"log_format" validate:"oneof=text json"`
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`
}

// Default returns a small Bayesian classifier on synthetic blobs.
func Default() Config {
	return Config{
		Data: DataConfig{
			Source:         "blobs",
			ValidationPart: 0.2,
			Blobs: BlobsConfig{
				Samples: 500,
				Classes: 3,
				Dim:     2,
				Spread:  0.7,
				Seed:    1,
			},
		},
		Model: ModelConfig{
			Bayesian:   true,
			Topology:   []any{32, "relu"},
			Divergence: "kl",
			Bias:       true,
			Prior:      prior.Spec{Kind: "gaussian", Mu: 0, Sigma: 1},
			MeanInit:   []any{-0.2, 0.2},
			ScaleInit:  -5.0,
		},
		Training: TrainingConfig{
			Epochs:       20,
			BatchSize:    32,
			LearningRate: 0.01,
			Samples:      1,
			Schedule:     "uniform",
		},
		Evaluation: EvaluationConfig{
			Samples: 10,
			Bins:    10,
			Sweeps:  wrapper.DefaultSweeps(),
		},
		Output: OutputConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and validates the
// result. An empty or missing path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		// JSON numbers stay json.Number so integer widths and float dropout rates
		// remain distinguishable in the topology.
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if jsonErr := dec.Decode(cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(cfg *Config) {
	if v := os.Getenv(EnvEpochs); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Training.Epochs = i
		}
	}
	if v := os.Getenv(EnvBatchSize); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Training.BatchSize = i
		}
	}
	if v := os.Getenv(EnvLR); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Training.LearningRate = f
		}
	}
	if v := os.Getenv(EnvSamples); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Evaluation.Samples = i
		}
	}
	if v := os.Getenv(EnvDivergence); v != "" {
		cfg.Model.Divergence = v
	}
	if v := os.Getenv(EnvSchedule); v != "" {
		cfg.Training.Schedule = v
	}
	if v := os.Getenv(EnvDataSource); v != "" {
		cfg.Data.Source = v
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		cfg.Output.StorePath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Output.LogLevel = strings.ToLower(v)
	}
}

var validate = validator.New()

// Validate checks field ranges and that every named component can be built.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidConfiguration, err)
	}
	if r := c.Evaluation.InputRange; len(r) == 2 && !(r[0] < r[1]) {
		return errs.Config("input_range", r, "lower bound must be below upper bound")
	}
	if _, err := c.Model.Entries(); err != nil {
		return err
	}
	if _, err := c.Model.DivergenceKind(); err != nil {
		return err
	}
	if _, err := c.Training.DivergenceSchedule(); err != nil {
		return err
	}
	if _, _, err := c.Model.Initializers(); err != nil {
		return err
	}
	if c.Model.Bayesian {
		if _, err := prior.Parse[*cpu.Backend](c.Model.Prior); err != nil {
			return err
		}
	}
	return nil
}

// Entries parses the topology.
func (m ModelConfig) Entries() ([]topology.Entry, error) {
	return topology.ParseEntries(m.Topology)
}

// DivergenceKind parses the divergence name.
func (m ModelConfig) DivergenceKind() (divergence.Kind, error) {
	return divergence.ParseKind(m.Divergence)
}

// Initializers parses the mean and scale initialisers.
func (m ModelConfig) Initializers() (mean, scale variational.Initializer, err error) {
	if mean, err = variational.ParseInitializer("mean_init", m.MeanInit); err != nil {
		return nil, nil, err
	}
	if scale, err = variational.ParseInitializer("scale_init", m.ScaleInit); err != nil {
		return nil, nil, err
	}
	return mean, scale, nil
}

// DivergenceSchedule parses the per-batch divergence weighting.
func (t TrainingConfig) DivergenceSchedule() (divergence.Schedule, error) {
	return divergence.ParseSchedule(t.Schedule)
}

// Clip returns the adversarial input interval for the given data source.
func (e EvaluationConfig) Clip(source string) (lo, hi float64) {
	switch {
	case len(e.InputRange) == 2:
		return e.InputRange[0], e.InputRange[1]
	case source == "idx":
		return 0, 1
	default:
		return math.Inf(-1), math.Inf(1)
	}
}

// SlogLevel maps the configured level name.
func (o OutputConfig) SlogLevel() slog.Level {
	switch o.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
