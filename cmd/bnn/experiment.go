package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/optim"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/bnn/internal/config"
	"github.com/born-ml/bnn/internal/dataset"
	"github.com/born-ml/bnn/internal/layers"
	"github.com/born-ml/bnn/internal/network"
	"github.com/born-ml/bnn/internal/prior"
	"github.com/born-ml/bnn/internal/store"
	"github.com/born-ml/bnn/internal/telemetry"
	"github.com/born-ml/bnn/internal/topology"
	"github.com/born-ml/bnn/internal/uncertainty"
	"github.com/born-ml/bnn/internal/wrapper"
)

// session is the backend-independent view of an experiment used by the commands.
type session interface {
	ShuffleTest(levels []float64, samples int) ([]wrapper.SweepResult, error)
	WhiteNoiseTest(levels []float64, samples int) ([]wrapper.SweepResult, error)
	FGSMTest(epsilons []float64, samples int) ([]wrapper.SweepResult, error)
	ReliabilityDiagram(samples, bins int, scaling float64) (uncertainty.Reliability, error)
	TotalVariance(samples int) (*mat.Dense, error)
	TemperatureScaling(samples, bins int) (wrapper.TemperatureResult, error)

	prepare(checkpoint string) error
	serveMetrics() func()
	save(ctx context.Context) error
	result() *store.Report
}

// experiment is a configured model with its data and harness.
type experiment[B wrapper.Backend] struct {
	*wrapper.Wrapper[B]

	cfg     config.Config
	logger  *slog.Logger
	model   *network.Network[B]
	metrics *telemetry.Metrics
	report  *store.Report
}

type cpuBackend = *autodiff.Backend[*cpu.Backend]

var _ session = (*experiment[cpuBackend])(nil)

func newExperiment[B wrapper.Backend](command string, cfg config.Config, backend B, logger *slog.Logger) (*experiment[B], error) {
	runID := uuid.New()
	logger = logger.With("run", runID.String())

	train, test, err := loadData(cfg.Data)
	if err != nil {
		return nil, fmt.Errorf("load data: %w", err)
	}
	classes := numClasses(train, test)
	logger.Info("data loaded",
		"source", cfg.Data.Source,
		"train", train.Len(),
		"test", test.Len(),
		"shape", train.Shape(),
		"classes", classes)

	stack, err := buildStack(cfg.Model, backend, train, classes, logger)
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	model := network.New(stack, classes, backend)
	logger.Debug("model built", "layers", model.String())

	schedule, err := cfg.Training.DivergenceSchedule()
	if err != nil {
		return nil, err
	}
	metrics := telemetry.NewMetrics(prometheus.Labels{"run": runID.String()})
	optimizer := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: float32(cfg.Training.LearningRate)}, backend)
	lo, hi := cfg.Evaluation.Clip(cfg.Data.Source)
	w, err := wrapper.New(model, train, test, optimizer, backend,
		wrapper.WithBatchSize[B](cfg.Training.BatchSize),
		wrapper.WithInputRange[B](lo, hi),
		wrapper.WithTrainer[B](&wrapper.BayesByBackprop[B]{Schedule: schedule, Samples: cfg.Training.Samples}),
		wrapper.WithLogger[B](logger),
		wrapper.WithMetrics[B](metrics),
	)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return &experiment[B]{
		Wrapper: w,
		cfg:     cfg,
		logger:  logger,
		model:   model,
		metrics: metrics,
		report: &store.Report{
			ID:      runID,
			Command: command,
			Model:   model.String(),
			Config:  raw,
		},
	}, nil
}

func loadData(cfg config.DataConfig) (train, test *dataset.Dataset, err error) {
	switch cfg.Source {
	case "idx":
		all, err := dataset.LoadIDX(cfg.TrainImages, cfg.TrainLabels, cfg.MaxSamples)
		if err != nil {
			return nil, nil, err
		}
		if cfg.TestImages == "" {
			train, test = all.Split(cfg.ValidationPart)
			return train, test, nil
		}
		test, err = dataset.LoadIDX(cfg.TestImages, cfg.TestLabels, cfg.MaxSamples)
		return all, test, err
	default:
		b := cfg.Blobs
		all, err := dataset.Blobs(b.Samples, b.Classes, b.Dim, b.Spread, b.Seed)
		if err != nil {
			return nil, nil, err
		}
		train, test = all.Split(cfg.ValidationPart)
		return train, test, nil
	}
}

func numClasses(sets ...*dataset.Dataset) int {
	var top int32
	for _, d := range sets {
		for _, l := range d.Labels() {
			top = max(top, l)
		}
	}
	return int(top) + 1
}

func buildStack[B wrapper.Backend](cfg config.ModelConfig, backend B, train *dataset.Dataset, classes int, logger *slog.Logger) ([]layers.Layer[B], error) {
	entries, err := cfg.Entries()
	if err != nil {
		return nil, err
	}
	opts := []topology.Option{topology.WithLogger(logger)}
	if cfg.HonorDropoutRate {
		opts = append(opts, topology.HonorDropoutRate())
	}

	if !cfg.Bayesian {
		return topology.Deterministic(backend, opts...).Build(entries, train.Shape(), classes)
	}

	kind, err := cfg.DivergenceKind()
	if err != nil {
		return nil, err
	}
	p, err := prior.Parse[B](cfg.Prior)
	if err != nil {
		return nil, err
	}
	meanInit, scaleInit, err := cfg.Initializers()
	if err != nil {
		return nil, err
	}
	layerCfg := layers.BayesianConfig[B]{
		Divergence:   kind,
		LocalReparam: cfg.LocalReparam,
		Bias:         cfg.Bias,
		MeanInit:     meanInit,
		ScaleInit:    scaleInit,
		Prior:        p,
	}
	return topology.Bayesian(layerCfg, backend, opts...).Build(entries, train.Shape(), classes)
}

// prepare trains the model for the configured epochs, or loads it from checkpoint.
func (e *experiment[B]) prepare(checkpoint string) error {
	if checkpoint != "" {
		if err := e.model.Load(checkpoint); err != nil {
			return fmt.Errorf("load checkpoint: %w", err)
		}
		e.logger.Info("checkpoint loaded", "path", checkpoint)
		return nil
	}

	for epoch := 1; epoch <= e.cfg.Training.Epochs; epoch++ {
		res, eval, err := e.TrainStep(e.cfg.Evaluation.Samples)
		if err != nil {
			return err
		}
		e.report.Epochs = append(e.report.Epochs, res)
		e.report.Accuracy = eval.Accuracy
	}

	if path := e.cfg.Training.Checkpoint; path != "" {
		if err := e.model.Save(path); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
		e.logger.Info("checkpoint saved", "path", path)
	}
	return nil
}

func (e *experiment[B]) result() *store.Report { return e.report }

// serveMetrics exposes the run's metrics until the returned stop function is called.
func (e *experiment[B]) serveMetrics() func() {
	addr := e.cfg.Output.MetricsAddr
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	e.logger.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// save persists the report when a store is configured.
func (e *experiment[B]) save(ctx context.Context) error {
	path := e.cfg.Output.StorePath
	if path == "" {
		return nil
	}
	s, err := store.Open(path, e.logger)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Put(ctx, e.report); err != nil {
		return err
	}
	e.logger.Info("report stored", "id", e.report.ID, "store", path)
	return nil
}
