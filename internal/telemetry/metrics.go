// Package telemetry exposes training and evaluation results as Prometheus metrics.
//
// Every collector lives on a private registry so several runs in one process do not
// collide. A nil *Metrics is valid and records nothing.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "bnn"

const (
	trainingSubsystem   = "training"
	evaluationSubsystem = "evaluation"
)

// Metrics holds the collectors of one run.
type Metrics struct {
	registry *prometheus.Registry

	EpochsTotal     prometheus.Counter
	EpochLoss       prometheus.Gauge
	EpochDataLoss   prometheus.Gauge
	EpochDivergence prometheus.Gauge
	EpochSeconds    prometheus.Histogram

	TestAccuracy  prometheus.Gauge
	SweepAccuracy *prometheus.GaugeVec
	ECE           prometheus.Gauge
	MCE           prometheus.Gauge
	Temperature   prometheus.Gauge
}

// NewMetrics registers a fresh set of collectors. Constant labels, such as a run id,
// are attached to every series.
func NewMetrics(constLabels prometheus.Labels) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	gauge := func(subsystem, name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}

	return &Metrics{
		registry: reg,
		EpochsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Subsystem:   trainingSubsystem,
			Name:        "epochs_total",
			Help:        "Number of completed training epochs",
			ConstLabels: constLabels,
		}),
		EpochLoss:       gauge(trainingSubsystem, "loss", "Mean total loss per batch of the last epoch"),
		EpochDataLoss:   gauge(trainingSubsystem, "data_loss", "Mean likelihood loss per batch of the last epoch"),
		EpochDivergence: gauge(trainingSubsystem, "divergence", "Mean unweighted divergence per batch of the last epoch"),
		EpochSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   metricsNamespace,
			Subsystem:   trainingSubsystem,
			Name:        "epoch_duration_seconds",
			Help:        "Wall time of a training epoch in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.01, 4, 10),
			ConstLabels: constLabels,
		}),
		TestAccuracy: gauge(evaluationSubsystem, "accuracy", "Test-set accuracy of the last evaluation"),
		SweepAccuracy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Subsystem:   evaluationSubsystem,
			Name:        "sweep_accuracy",
			Help:        "Accuracy per robustness test and perturbation level",
			ConstLabels: constLabels,
		}, []string{"test", "level"}),
		ECE:         gauge(evaluationSubsystem, "expected_calibration_error", "Expected calibration error of the last reliability diagram"),
		MCE:         gauge(evaluationSubsystem, "maximum_calibration_error", "Maximum calibration error of the last reliability diagram"),
		Temperature: gauge(evaluationSubsystem, "temperature", "Fitted softmax temperature"),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEpoch records the summary of a finished epoch.
func (m *Metrics) ObserveEpoch(loss, dataLoss, divergence float64, d time.Duration) {
	if m == nil {
		return
	}
	m.EpochsTotal.Inc()
	m.EpochLoss.Set(loss)
	m.EpochDataLoss.Set(dataLoss)
	m.EpochDivergence.Set(divergence)
	m.EpochSeconds.Observe(d.Seconds())
}

// ObserveAccuracy records a test evaluation.
func (m *Metrics) ObserveAccuracy(acc float64) {
	if m == nil {
		return
	}
	m.TestAccuracy.Set(acc)
}

// ObserveSweep records the accuracy of one robustness level.
func (m *Metrics) ObserveSweep(test string, level, acc float64) {
	if m == nil {
		return
	}
	m.SweepAccuracy.WithLabelValues(test, strconv.FormatFloat(level, 'g', -1, 64)).Set(acc)
}

// ObserveCalibration records calibration errors.
func (m *Metrics) ObserveCalibration(ece, mce float64) {
	if m == nil {
		return
	}
	m.ECE.Set(ece)
	m.MCE.Set(mce)
}

// ObserveTemperature records a fitted temperature and the ECE it reached.
func (m *Metrics) ObserveTemperature(t, ece float64) {
	if m == nil {
		return
	}
	m.Temperature.Set(t)
	m.ECE.Set(ece)
}
