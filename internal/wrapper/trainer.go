package wrapper

import (
	"fmt"
	"math"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/dataset"
	"github.com/born-ml/bnn/internal/divergence"
	"github.com/born-ml/bnn/internal/ops"
	"github.com/born-ml/bnn/internal/uncertainty"
)

// EpochResult summarises one pass over the training set.
type EpochResult struct {
	Epoch      int
	Loss       float64 // mean total loss per batch
	DataLoss   float64 // mean likelihood term per batch
	Divergence float64 // mean unweighted divergence per batch
	Batches    int
	Duration   time.Duration
}

// Trainer runs one training epoch over the wrapper's data.
type Trainer[B Backend] interface {
	TrainEpoch(w *Wrapper[B]) (EpochResult, error)
}

// BayesByBackprop minimises the likelihood loss plus the weighted divergence,
//
//	loss_i = data_i + Schedule.Weight(i, M) * divergence_i / len(train)
//
// where i is the batch index and M the number of batches. With Samples > 1 the data
// term averages the cross-entropy over stacked stochastic passes.
type BayesByBackprop[B Backend] struct {
	Schedule divergence.Schedule
	Samples  int

	epoch int
}

// TrainEpoch runs one shuffled pass over the training set.
func (t *BayesByBackprop[B]) TrainEpoch(w *Wrapper[B]) (EpochResult, error) {
	start := time.Now()
	t.epoch++

	batches, err := dataset.Batches(w.train, w.batchSize, true, w.backend)
	if err != nil {
		return EpochResult{}, fmt.Errorf("train epoch %d: %w", t.epoch, err)
	}

	w.model.Train()
	tape := w.backend.GetTape()
	size := float64(w.train.Len())

	res := EpochResult{Epoch: t.epoch, Batches: len(batches)}
	for i, batch := range batches {
		tape.Clear()
		tape.StartRecording()
		w.optimizer.ZeroGrad()

		out, div := t.forward(w, batch.X)
		data := w.model.Loss(out, batch.Y())
		loss := data
		if reg := div.Loss(); reg != nil {
			weight := t.Schedule.Weight(i, len(batches)) / size
			loss = data.Add(ops.Scale(reg, float32(weight)))
		}

		lossValue := ops.Value(loss)
		if math.IsNaN(lossValue) || math.IsInf(lossValue, 0) {
			tape.StopRecording()
			tape.Clear()
			return res, fmt.Errorf("train epoch %d: non-finite loss at batch %d", t.epoch, i)
		}

		grads := autodiff.Backward(loss, w.backend)
		w.optimizer.Step(grads)
		tape.StopRecording()
		tape.Clear()
		res.Loss += lossValue
		res.DataLoss += ops.Value(data)
		res.Divergence += div.Value()
	}

	if n := float64(len(batches)); n > 0 {
		res.Loss /= n
		res.DataLoss /= n
		res.Divergence /= n
	}
	res.Duration = time.Since(start)
	return res, nil
}

// forward runs Samples passes, stacking outputs and averaging the divergence.
func (t *BayesByBackprop[B]) forward(w *Wrapper[B], x *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], divergence.Result[B]) {
	if t.Samples <= 1 {
		return w.model.Forward(x)
	}

	outs := make([]*tensor.Tensor[float32, B], t.Samples)
	results := make([]divergence.Result[B], t.Samples)
	for s := range outs {
		out, div := w.model.Forward(x)
		shape := out.Shape()
		outs[s] = out.Reshape(1, shape[0], shape[1])
		results[s] = div
	}
	return tensor.Cat(outs, 0), divergence.Total(results).Scale(1 / float32(t.Samples))
}

// Evaluation is the outcome of a test-set pass.
type Evaluation struct {
	Predictions []int
	Truth       []int
	Accuracy    float64 // classification only
	RMSE        float64 // regression only
}

// TrainEpoch runs one epoch with the configured trainer and records its metrics.
func (w *Wrapper[B]) TrainEpoch() (EpochResult, error) {
	res, err := w.trainer.TrainEpoch(w)
	if err != nil {
		return res, err
	}
	w.metrics.ObserveEpoch(res.Loss, res.DataLoss, res.Divergence, res.Duration)
	w.logger.Info("epoch finished",
		"epoch", res.Epoch,
		"loss", res.Loss,
		"data_loss", res.DataLoss,
		"divergence", res.Divergence,
		"duration", res.Duration)
	return res, nil
}

// TrainStep trains for one epoch and evaluates on the test set.
func (w *Wrapper[B]) TrainStep(samples int) (EpochResult, Evaluation, error) {
	res, err := w.TrainEpoch()
	if err != nil {
		return res, Evaluation{}, err
	}
	eval, err := w.TestEvaluation(samples, 1)
	return res, eval, err
}

// TestEvaluation predicts the test set from samples stochastic passes.
//
// Classifier logits are multiplied by temperature, turned into probabilities and
// averaged over samples before the argmax. Regression outputs are averaged and scored
// by RMSE.
func (w *Wrapper[B]) TestEvaluation(samples int, temperature float64) (Evaluation, error) {
	preds, err := w.collect(samples)
	if err != nil {
		return Evaluation{}, fmt.Errorf("test evaluation: %w", err)
	}

	if w.model.IsRegression() {
		eval := Evaluation{RMSE: rmse(uncertainty.MeanProbabilities(preds.outputs), preds.targets)}
		w.logger.Info("test evaluation", "samples", samples, "rmse", eval.RMSE)
		return eval, nil
	}

	scaled := scaleLogits(preds.outputs, temperature)
	pred, _ := uncertainty.TopOne(uncertainty.MeanProbabilities(uncertainty.Softmax(scaled)))
	eval := Evaluation{Predictions: pred, Truth: preds.truth, Accuracy: accuracy(pred, preds.truth)}

	w.metrics.ObserveAccuracy(eval.Accuracy)
	w.logger.Info("test evaluation", "samples", samples, "temperature", temperature, "accuracy", eval.Accuracy)
	return eval, nil
}

func scaleLogits(logits [][][]float64, factor float64) [][][]float64 {
	if factor == 1 {
		return logits
	}
	out := make([][][]float64, len(logits))
	for t := range logits {
		out[t] = make([][]float64, len(logits[t]))
		for n, row := range logits[t] {
			scaled := make([]float64, len(row))
			for c, v := range row {
				scaled[c] = v * factor
			}
			out[t][n] = scaled
		}
	}
	return out
}

// accuracy is the fraction of matching labels, the micro-averaged F1 for single-label
// classification.
func accuracy(pred, truth []int) float64 {
	if len(truth) == 0 {
		return 0
	}
	correct := 0
	for i := range truth {
		if pred[i] == truth[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}

func rmse(pred, target [][]float64) float64 {
	var sum float64
	var count int
	for i := range target {
		for j := range target[i] {
			d := pred[i][j] - target[i][j]
			sum += d * d
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}
