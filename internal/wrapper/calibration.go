package wrapper

import (
	"fmt"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/bnn/internal/ops"
	"github.com/born-ml/bnn/internal/uncertainty"
)

const (
	temperatureLR       = 0.1
	temperatureMaxSteps = 100
)

// TemperatureResult is the outcome of temperature scaling.
type TemperatureResult struct {
	Temperature float64
	ECE         float64 // best expected calibration error reached
	InitialECE  float64 // single-sample ECE before scaling
	Steps       int
}

// ReliabilityDiagram buckets the test-set confidences of samples averaged passes.
// Probabilities are the softmax of the mean logits divided by scaling.
func (w *Wrapper[B]) ReliabilityDiagram(samples, bins int, scaling float64) (uncertainty.Reliability, error) {
	preds, err := w.collect(samples)
	if err != nil {
		return uncertainty.Reliability{}, fmt.Errorf("reliability diagram: %w", err)
	}
	r := reliability(preds, bins, scaling)
	w.metrics.ObserveCalibration(r.ECE, r.MCE)
	return r, nil
}

func reliability(preds predictions, bins int, scaling float64) uncertainty.Reliability {
	mean := uncertainty.MeanProbabilities(preds.outputs)
	probs := uncertainty.Softmax([][][]float64{mean})[0]
	pred, conf := uncertainty.TopOne(probs)
	for i := range conf {
		conf[i] /= scaling
	}
	return uncertainty.ReliabilityDiagram(conf, pred, preds.truth, bins)
}

// TotalVariance averages the per-example total predictive covariance of the test set.
func (w *Wrapper[B]) TotalVariance(samples int) (*mat.Dense, error) {
	preds, err := w.collect(samples)
	if err != nil {
		return nil, fmt.Errorf("total variance: %w", err)
	}
	decomposed := uncertainty.EpistemicAleatoric(uncertainty.Softmax(preds.outputs))
	totals := make([]*mat.Dense, len(decomposed))
	for i, d := range decomposed {
		totals[i] = d.Total
	}
	return uncertainty.TotalVariance(totals), nil
}

// TemperatureScaling fits a scalar temperature T with Adam on the single-sample top-1
// confidences p, minimising -sum(log(p/T + 1e-12)).
//
// After every step the ECE of samples passes with scaling T is measured; fitting stops
// at the first step that does not improve on the best ECE so far, which starts at the
// single-sample ECE.
func (w *Wrapper[B]) TemperatureScaling(samples, bins int) (TemperatureResult, error) {
	single, err := w.collect(1)
	if err != nil {
		return TemperatureResult{}, fmt.Errorf("temperature scaling: %w", err)
	}
	multi, err := w.collect(samples)
	if err != nil {
		return TemperatureResult{}, fmt.Errorf("temperature scaling: %w", err)
	}

	initial := reliability(single, bins, 1).ECE
	res := TemperatureResult{Temperature: 1, ECE: initial, InitialECE: initial}

	_, conf := uncertainty.TopOne(uncertainty.MeanProbabilities(uncertainty.Softmax(single.outputs)))
	if len(conf) == 0 {
		return res, nil
	}
	p := make([]float32, len(conf))
	for i, c := range conf {
		p[i] = float32(c)
	}

	temperature := nn.NewParameter("temperature", tensor.Ones[float32](tensor.Shape{1}, w.backend))
	optimizer := optim.NewAdam([]*nn.Parameter[B]{temperature}, optim.AdamConfig{LR: temperatureLR}, w.backend)

	tape := w.backend.GetTape()
	wasRecording := tape.IsRecording()
	defer func() {
		tape.Clear()
		if wasRecording {
			tape.StartRecording()
		} else {
			tape.StopRecording()
		}
	}()

	for step := 1; step <= temperatureMaxSteps; step++ {
		tape.Clear()
		tape.StartRecording()
		optimizer.ZeroGrad()

		confidences, err := tensor.FromSlice(p, tensor.Shape{len(p)}, w.backend)
		if err != nil {
			return res, fmt.Errorf("temperature scaling: %w", err)
		}
		loss := ops.Scale(ops.Sum(ops.SafeLog(confidences.Div(ops.Expand(temperature.Tensor(), confidences.Shape())))), -1)
		optimizer.Step(autodiff.Backward(loss, w.backend))
		tape.StopRecording()

		t := ops.Value(temperature.Tensor())
		if t <= 0 {
			break
		}
		ece := reliability(multi, bins, t).ECE
		res.Steps = step
		if ece >= res.ECE {
			break
		}
		res.ECE = ece
		res.Temperature = t
	}

	w.metrics.ObserveTemperature(res.Temperature, res.ECE)
	w.logger.Info("temperature scaling",
		"temperature", res.Temperature,
		"ece", res.ECE,
		"initial_ece", res.InitialECE,
		"steps", res.Steps)
	return res, nil
}
