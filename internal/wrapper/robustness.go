package wrapper

import (
	"fmt"
	"math"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/dataset"
	"github.com/born-ml/bnn/internal/ops"
	"github.com/born-ml/bnn/internal/uncertainty"
)

// Sweeps lists the perturbation levels of the robustness tests.
type Sweeps struct {
	Epsilons           []float64 `yaml:"epsilons" json:"epsilons" validate:"dive,gte=0"`
	ShufflePercentages []float64 `yaml:"shuffle_percentages" json:"shuffle_percentages" validate:"dive,gte=0,lte=1"`
	NoiseLevels        []float64 `yaml:"noise_levels" json:"noise_levels" validate:"dive,gte=0"`
}

// DefaultSweeps returns the standard perturbation grid.
func DefaultSweeps() Sweeps {
	return Sweeps{
		Epsilons:           []float64{0, 0.001, 0.005, 0.01, 0.05, 0.1, 0.2, 0.3},
		ShufflePercentages: []float64{0, 0.1, 0.2, 0.5, 0.8},
		NoiseLevels:        []float64{0, 0.01, 0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8},
	}
}

// SweepResult holds the uncertainty of one perturbation level, split by whether the
// prediction was right.
type SweepResult struct {
	Level          float64   `json:"level"`
	Correct        []float64 `json:"correct"` // determinant scores of correct predictions
	Wrong          []float64 `json:"wrong"`
	CorrectEntropy []float64 `json:"correct_entropy"`
	WrongEntropy   []float64 `json:"wrong_entropy"`
	Accuracy       float64   `json:"accuracy"`
	LogMeanScore   float64   `json:"log_mean_score"` // -log(mean determinant score)
}

// ShuffleTest permutes a growing fraction of pixels in every test image, composed in
// front of the test set's current transform.
func (w *Wrapper[B]) ShuffleTest(levels []float64, samples int) ([]SweepResult, error) {
	results := make([]SweepResult, 0, len(levels))
	for _, level := range levels {
		shuffle, err := dataset.NewPixelShuffle(level)
		if err != nil {
			return results, fmt.Errorf("shuffle test: %w", err)
		}

		var res SweepResult
		err = dataset.WithTransform(w.test, dataset.Compose(shuffle, w.test.Transform()), func() error {
			preds, err := w.collect(samples)
			if err != nil {
				return err
			}
			res = summarise(level, preds)
			return nil
		})
		if err != nil {
			return results, fmt.Errorf("shuffle test at %g: %w", level, err)
		}
		w.record("shuffle", res)
		results = append(results, res)
	}
	return results, nil
}

// WhiteNoiseTest adds zero-mean Gaussian noise of growing standard deviation after the
// test set's current transform.
func (w *Wrapper[B]) WhiteNoiseTest(levels []float64, samples int) ([]SweepResult, error) {
	results := make([]SweepResult, 0, len(levels))
	for _, level := range levels {
		var res SweepResult
		err := dataset.WithTransform(w.test, dataset.Compose(w.test.Transform(), dataset.AddNoise(level)), func() error {
			preds, err := w.collect(samples)
			if err != nil {
				return err
			}
			res = summarise(level, preds)
			return nil
		})
		if err != nil {
			return results, fmt.Errorf("white noise test at %g: %w", level, err)
		}
		w.record("noise", res)
		results = append(results, res)
	}
	return results, nil
}

// FGSMTest perturbs every test batch along the sign of the input gradient of a single
// stochastic pass, then measures samples passes on the adversarial inputs.
func (w *Wrapper[B]) FGSMTest(epsilons []float64, samples int) ([]SweepResult, error) {
	defer w.evalMode()()

	results := make([]SweepResult, 0, len(epsilons))
	for _, eps := range epsilons {
		batches, err := dataset.Batches(w.test, w.batchSize, false, w.backend)
		if err != nil {
			return results, fmt.Errorf("fgsm test: %w", err)
		}

		var preds predictions
		for _, batch := range batches {
			x := batch.X
			if eps != 0 {
				x = FGSMRange(x, w.inputGradient(batch), eps, w.inputRange[0], w.inputRange[1])
			}
			out := w.predict(x, samples)
			appendBatch(&preds, out, batch)
		}

		res := summarise(eps, preds)
		w.record("fgsm", res)
		results = append(results, res)
	}
	return results, nil
}

// inputGradient differentiates the data loss of one pass with respect to the batch.
func (w *Wrapper[B]) inputGradient(batch *dataset.Batch[B]) *tensor.RawTensor {
	tape := w.backend.GetTape()
	wasRecording := tape.IsRecording()
	tape.Clear()
	tape.StartRecording()
	defer func() {
		tape.Clear()
		if !wasRecording {
			tape.StopRecording()
		}
	}()

	out := w.model.EvalForward(batch.X, 1)
	loss := w.model.Loss(out, batch.Y())
	grads := autodiff.Backward(loss, w.backend)
	return grads[batch.X.Raw()]
}

func (w *Wrapper[B]) predict(x *tensor.Tensor[float32, B], samples int) *tensor.Tensor[float32, B] {
	defer w.noGrad()()
	return w.model.EvalForward(x, samples)
}

// FGSM returns clip(x + eps*sign(grad), 0, 1). With eps == 0 or no gradient it returns
// x itself.
func FGSM[B tensor.Backend](x *tensor.Tensor[float32, B], grad *tensor.RawTensor, eps float64) *tensor.Tensor[float32, B] {
	return FGSMRange(x, grad, eps, 0, 1)
}

// FGSMRange is FGSM clipped to [lo, hi].
func FGSMRange[B tensor.Backend](x *tensor.Tensor[float32, B], grad *tensor.RawTensor, eps, lo, hi float64) *tensor.Tensor[float32, B] {
	if eps == 0 || grad == nil {
		return x
	}
	low, high := float32(lo), float32(hi)

	g := grad.AsFloat32()
	out := tensor.Zeros[float32](x.Shape(), x.Backend())
	data := out.Data()
	step := float32(eps)
	for i, v := range x.Data() {
		switch {
		case g[i] > 0:
			v += step
		case g[i] < 0:
			v -= step
		}
		data[i] = min(max(v, low), high)
	}
	return out
}

// summarise turns stacked logits into per-example uncertainty split by correctness.
func summarise(level float64, preds predictions) SweepResult {
	probs := uncertainty.Softmax(preds.outputs)
	pred, _ := uncertainty.TopOne(uncertainty.MeanProbabilities(probs))
	scores := uncertainty.Scores(uncertainty.EpistemicAleatoric(probs))
	entropy := uncertainty.PredictiveEntropy(probs)

	res := SweepResult{Level: level, Accuracy: accuracy(pred, preds.truth)}
	var total float64
	for i := range preds.truth {
		total += scores[i]
		if pred[i] == preds.truth[i] {
			res.Correct = append(res.Correct, scores[i])
			res.CorrectEntropy = append(res.CorrectEntropy, entropy[i])
		} else {
			res.Wrong = append(res.Wrong, scores[i])
			res.WrongEntropy = append(res.WrongEntropy, entropy[i])
		}
	}
	if n := len(preds.truth); n > 0 {
		res.LogMeanScore = -math.Log(total/float64(n) + ops.Epsilon)
	}
	return res
}

func (w *Wrapper[B]) record(test string, res SweepResult) {
	w.metrics.ObserveSweep(test, res.Level, res.Accuracy)
	w.logger.Info("robustness level",
		"test", test,
		"level", res.Level,
		"accuracy", res.Accuracy,
		"log_mean_score", res.LogMeanScore,
		"correct", len(res.Correct),
		"wrong", len(res.Wrong))
}
