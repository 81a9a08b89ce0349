// Package wrapper trains a network and measures its uncertainty, robustness and
// calibration on a held-out set.
package wrapper

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/dataset"
	"github.com/born-ml/bnn/internal/network"
	"github.com/born-ml/bnn/internal/telemetry"
)

// DefaultBatchSize is used when no batch size option is given.
const DefaultBatchSize = 64

// Backend is what the wrapper needs from a backend: a gradient tape and a fused
// cross-entropy. The autodiff backend satisfies it.
type Backend interface {
	autodiff.BackwardCapable
	CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor
}

// Option configures a Wrapper.
type Option[B Backend] func(*Wrapper[B])

// WithBatchSize sets the mini-batch size for training and evaluation.
func WithBatchSize[B Backend](size int) Option[B] {
	return func(w *Wrapper[B]) { w.batchSize = size }
}

// WithTrainer replaces the default Bayes-by-backprop epoch.
func WithTrainer[B Backend](t Trainer[B]) Option[B] {
	return func(w *Wrapper[B]) { w.trainer = t }
}

// WithLogger sets the structured logger.
func WithLogger[B Backend](l *slog.Logger) Option[B] {
	return func(w *Wrapper[B]) { w.logger = l }
}

// WithMetrics records training and evaluation results into m.
func WithMetrics[B Backend](m *telemetry.Metrics) Option[B] {
	return func(w *Wrapper[B]) { w.metrics = m }
}

// WithInputRange sets the valid input interval adversarial examples are clipped to.
// The default is [0, 1], the range of normalised images. Pass infinite bounds for
// unbounded inputs.
func WithInputRange[B Backend](lo, hi float64) Option[B] {
	return func(w *Wrapper[B]) { w.inputRange = [2]float64{lo, hi} }
}

// Wrapper owns a model, its optimiser and a train/test split.
type Wrapper[B Backend] struct {
	model     *network.Network[B]
	train     *dataset.Dataset
	test      *dataset.Dataset
	optimizer optim.Optimizer
	backend   B
	trainer   Trainer[B]
	batchSize int
	logger    *slog.Logger
	metrics   *telemetry.Metrics

	inputRange [2]float64
}

// New creates a wrapper. The default trainer is Bayes-by-backprop with the uniform
// divergence schedule and one sample per step.
func New[B Backend](model *network.Network[B], train, test *dataset.Dataset, optimizer optim.Optimizer, backend B, opts ...Option[B]) (*Wrapper[B], error) {
	if model == nil || train == nil || test == nil || optimizer == nil {
		return nil, fmt.Errorf("wrapper: model, datasets and optimizer are required")
	}
	if train.Len() == 0 {
		return nil, fmt.Errorf("wrapper: empty training set")
	}

	w := &Wrapper[B]{
		model:     model,
		train:     train,
		test:      test,
		optimizer: optimizer,
		backend:   backend,
		trainer:   &BayesByBackprop[B]{Samples: 1},
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),

		inputRange: [2]float64{0, 1},
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.batchSize <= 0 {
		return nil, fmt.Errorf("wrapper: invalid batch size %d", w.batchSize)
	}
	if !(w.inputRange[0] < w.inputRange[1]) {
		return nil, fmt.Errorf("wrapper: invalid input range %v", w.inputRange)
	}
	return w, nil
}

// Model returns the wrapped network.
func (w *Wrapper[B]) Model() *network.Network[B] { return w.model }

// TrainSet returns the training data.
func (w *Wrapper[B]) TrainSet() *dataset.Dataset { return w.train }

// TestSet returns the held-out data.
func (w *Wrapper[B]) TestSet() *dataset.Dataset { return w.test }

// Optimizer returns the optimiser driving training.
func (w *Wrapper[B]) Optimizer() optim.Optimizer { return w.optimizer }

// Backend returns the autodiff backend.
func (w *Wrapper[B]) Backend() B { return w.backend }

// BatchSize returns the mini-batch size.
func (w *Wrapper[B]) BatchSize() int { return w.batchSize }

// InputRange returns the interval adversarial inputs are clipped to.
func (w *Wrapper[B]) InputRange() (lo, hi float64) { return w.inputRange[0], w.inputRange[1] }

// Logger returns the wrapper's logger.
func (w *Wrapper[B]) Logger() *slog.Logger { return w.logger }

// predictions are stacked per-sample outputs over a whole dataset.
type predictions struct {
	outputs [][][]float64 // [samples][n][classes]
	truth   []int         // class indices, classification only
	targets [][]float64   // regression targets
}

// noGrad stops the tape and returns a function restoring the previous state. Ops
// recorded before the call survive the restore.
func (w *Wrapper[B]) noGrad() func() {
	tape := w.backend.GetTape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	return func() {
		if wasRecording {
			tape.StartRecording()
			return
		}
		tape.Clear()
	}
}

// evalMode puts the model in evaluation mode and returns the restore function.
func (w *Wrapper[B]) evalMode() func() {
	wasTraining := w.model.Training()
	w.model.Eval()
	return func() {
		if wasTraining {
			w.model.Train()
		}
	}
}

// collect runs samples stochastic passes over every batch of the test set without
// recording gradients. Outputs are the raw network outputs.
func (w *Wrapper[B]) collect(samples int) (predictions, error) {
	defer w.evalMode()()
	defer w.noGrad()()

	batches, err := dataset.Batches(w.test, w.batchSize, false, w.backend)
	if err != nil {
		return predictions{}, err
	}
	var preds predictions
	for _, batch := range batches {
		appendBatch(&preds, w.model.EvalForward(batch.X, samples), batch)
	}
	return preds, nil
}

// appendBatch adds one batch of outputs ([N, C] or [T, N, C]) and its ground truth.
func appendBatch[B tensor.Backend](p *predictions, out *tensor.Tensor[float32, B], batch *dataset.Batch[B]) {
	stacked := stackedValues(out)
	if p.outputs == nil {
		p.outputs = make([][][]float64, len(stacked))
	}
	for t := range stacked {
		p.outputs[t] = append(p.outputs[t], stacked[t]...)
	}

	if batch.Targets != nil {
		dim := batch.Targets.Shape()[1]
		data := batch.Targets.Data()
		for i := 0; i < batch.Size; i++ {
			row := make([]float64, dim)
			for j := range row {
				row[j] = float64(data[i*dim+j])
			}
			p.targets = append(p.targets, row)
		}
		return
	}
	for _, label := range batch.Labels.Data() {
		p.truth = append(p.truth, int(label))
	}
}

// stackedValues copies a [N, C] or [T, N, C] tensor into [T][N][C] float64.
func stackedValues[B tensor.Backend](out *tensor.Tensor[float32, B]) [][][]float64 {
	shape := out.Shape()
	if len(shape) == 2 {
		shape = tensor.Shape{1, shape[0], shape[1]}
	}
	samples, n, classes := shape[0], shape[1], shape[2]
	data := out.Data()

	stacked := make([][][]float64, samples)
	for t := range stacked {
		stacked[t] = make([][]float64, n)
		for i := range stacked[t] {
			row := make([]float64, classes)
			base := (t*n + i) * classes
			for c := range row {
				row[c] = float64(data[base+c])
			}
			stacked[t][i] = row
		}
	}
	return stacked
}
