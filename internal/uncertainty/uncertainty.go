// Package uncertainty derives uncertainty and calibration statistics from repeated
// stochastic predictions.
//
// Predictions are indexed [t][n][c]: sample, example, class.
package uncertainty

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const epsilon = 1e-12

// Softmax converts logits [t][n][c] to probabilities of the same shape.
func Softmax(logits [][][]float64) [][][]float64 {
	out := make([][][]float64, len(logits))
	for t, batch := range logits {
		out[t] = make([][]float64, len(batch))
		for n, row := range batch {
			out[t][n] = softmaxRow(row)
		}
	}
	return out
}

func softmaxRow(row []float64) []float64 {
	maxV := math.Inf(-1)
	for _, v := range row {
		maxV = math.Max(maxV, v)
	}
	p := make([]float64, len(row))
	var sum float64
	for i, v := range row {
		p[i] = math.Exp(v - maxV)
		sum += p[i]
	}
	for i := range p {
		p[i] /= sum
	}
	return p
}

// MeanProbabilities averages probabilities over samples, giving [n][c].
func MeanProbabilities(probs [][][]float64) [][]float64 {
	if len(probs) == 0 {
		return nil
	}
	mean := make([][]float64, len(probs[0]))
	for n := range mean {
		mean[n] = make([]float64, len(probs[0][n]))
		for t := range probs {
			for c, v := range probs[t][n] {
				mean[n][c] += v
			}
		}
		for c := range mean[n] {
			mean[n][c] /= float64(len(probs))
		}
	}
	return mean
}

// PredictiveEntropy returns, per example, the Shannon entropy of the sample-mean
// distribution divided by log(C), so values lie in [0, 1].
func PredictiveEntropy(probs [][][]float64) []float64 {
	mean := MeanProbabilities(probs)
	out := make([]float64, len(mean))
	for n, p := range mean {
		if len(p) < 2 {
			continue
		}
		var h float64
		for _, v := range p {
			h -= v * math.Log(v+epsilon)
		}
		out[n] = h / math.Log(float64(len(p)))
	}
	return out
}

// Decomposition is the per-example split of predictive variance.
type Decomposition struct {
	Aleatoric *mat.Dense // mean over samples of diag(p) - p pᵀ
	Epistemic *mat.Dense // mean over samples of (p - p̄)(p - p̄)ᵀ
	Total     *mat.Dense // Aleatoric + Epistemic
	Score     float64    // DeterminantScore(Total)
}

// EpistemicAleatoric decomposes the predictive covariance of every example.
func EpistemicAleatoric(probs [][][]float64) []Decomposition {
	if len(probs) == 0 {
		return nil
	}
	mean := MeanProbabilities(probs)
	samples := float64(len(probs))

	out := make([]Decomposition, len(mean))
	for n, pHat := range mean {
		classes := len(pHat)
		al := mat.NewDense(classes, classes, nil)
		ep := mat.NewDense(classes, classes, nil)

		var outer mat.Dense
		for t := range probs {
			p := mat.NewVecDense(classes, append([]float64(nil), probs[t][n]...))

			outer.Outer(1, p, p)
			al.Sub(al, &outer)
			for c := 0; c < classes; c++ {
				al.Set(c, c, al.At(c, c)+p.AtVec(c))
			}

			d := mat.NewVecDense(classes, nil)
			d.SubVec(p, mat.NewVecDense(classes, pHat))
			outer.Outer(1, d, d)
			ep.Add(ep, &outer)
		}
		al.Scale(1/samples, al)
		ep.Scale(1/samples, ep)

		total := mat.NewDense(classes, classes, nil)
		total.Add(al, ep)
		out[n] = Decomposition{Aleatoric: al, Epistemic: ep, Total: total, Score: DeterminantScore(total)}
	}
	return out
}

// DeterminantScore maps a (C, C) covariance to [0, 1] through
// (det(total + I/C) - mn) / (mx - mn) with mn = C^-C and mx = mn·2^(C-1).
func DeterminantScore(total mat.Matrix) float64 {
	classes, _ := total.Dims()
	if classes < 2 {
		return 0
	}
	shifted := mat.NewDense(classes, classes, nil)
	shifted.Copy(total)
	for c := 0; c < classes; c++ {
		shifted.Set(c, c, shifted.At(c, c)+1/float64(classes))
	}

	mn := math.Pow(float64(classes), -float64(classes))
	mx := mn * math.Pow(2, float64(classes-1))
	score := (mat.Det(shifted) - mn) / (mx - mn)
	return math.Min(1, math.Max(0, score))
}

// Scores extracts the determinant scores of a decomposition.
func Scores(d []Decomposition) []float64 {
	out := make([]float64, len(d))
	for i := range d {
		out[i] = d[i].Score
	}
	return out
}

// TotalVariance is the element-wise mean of (C, C) matrices.
func TotalVariance(matrices []*mat.Dense) *mat.Dense {
	if len(matrices) == 0 {
		return nil
	}
	r, c := matrices[0].Dims()
	sum := mat.NewDense(r, c, nil)
	for _, m := range matrices {
		sum.Add(sum, m)
	}
	sum.Scale(1/float64(len(matrices)), sum)
	return sum
}
