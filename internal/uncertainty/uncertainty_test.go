package uncertainty

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSoftmaxRowsSumToOne(t *testing.T) {
	probs := Softmax([][][]float64{{{1, 2, 3}, {1000, 1000, 1000}}})
	for _, row := range probs[0] {
		var sum float64
		for _, v := range row {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-12)
	}
	assert.InDeltaSlice(t, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}, probs[0][1], 1e-12)
}

func TestPredictiveEntropyRange(t *testing.T) {
	probs := [][][]float64{
		{{1, 0}, {0.5, 0.5}},
		{{1, 0}, {0.5, 0.5}},
	}
	h := PredictiveEntropy(probs)
	require.Len(t, h, 2)
	assert.InDelta(t, 0.0, h[0], 1e-9)
	assert.InDelta(t, 1.0, h[1], 1e-9)
}

func TestPredictiveEntropyOfMean(t *testing.T) {
	// Two confident but disagreeing samples average to a uniform prediction.
	probs := [][][]float64{{{1, 0}}, {{0, 1}}}
	assert.InDelta(t, 1.0, PredictiveEntropy(probs)[0], 1e-9)
}

func TestEpistemicZeroForSingleSample(t *testing.T) {
	probs := Softmax([][][]float64{{{0.3, -1.2, 2.0}, {0, 0, 0}}})

	for _, d := range EpistemicAleatoric(probs) {
		r, c := d.Epistemic.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				assert.Equal(t, 0.0, d.Epistemic.At(i, j))
			}
		}
		assert.True(t, mat.Equal(d.Aleatoric, d.Total))
	}
}

func TestAleatoricMatchesClosedForm(t *testing.T) {
	p := []float64{0.2, 0.8}
	d := EpistemicAleatoric([][][]float64{{p}})[0]

	want := mat.NewDense(2, 2, []float64{
		0.2 - 0.04, -0.16,
		-0.16, 0.8 - 0.64,
	})
	assert.True(t, mat.EqualApprox(want, d.Aleatoric, 1e-12))
}

func TestEpistemicDisagreement(t *testing.T) {
	d := EpistemicAleatoric([][][]float64{{{1, 0}}, {{0, 1}}})[0]

	want := mat.NewDense(2, 2, []float64{0.25, -0.25, -0.25, 0.25})
	assert.True(t, mat.EqualApprox(want, d.Epistemic, 1e-12))
	assert.True(t, mat.EqualApprox(mat.NewDense(2, 2, nil), d.Aleatoric, 1e-12))
}

func TestDeterminantScoreBounds(t *testing.T) {
	const classes = 3
	// A one-hot prediction has zero covariance: the minimum.
	assert.InDelta(t, 0.0, DeterminantScore(mat.NewDense(classes, classes, nil)), 1e-12)

	// Maximal disagreement between one-hot samples.
	probs := [][][]float64{{{1, 0, 0}}, {{0, 1, 0}}, {{0, 0, 1}}}
	score := EpistemicAleatoric(probs)[0].Score
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)

	huge := mat.NewDense(classes, classes, nil)
	for i := 0; i < classes; i++ {
		huge.Set(i, i, 10)
	}
	assert.Equal(t, 1.0, DeterminantScore(huge))
}

func TestReliabilityBucketBoundary(t *testing.T) {
	// 0.5 sits exactly on the upper edge of bucket 5 of 10 and must land there.
	r := ReliabilityDiagram([]float64{0.5, 0.5}, []int{1, 0}, []int{1, 1}, 10)

	assert.Equal(t, 0.5, r.Confidence[4])
	assert.Equal(t, 0.5, r.Accuracy[4])
	assert.Equal(t, 0.0, r.Confidence[5])
	assert.Equal(t, 0.0, r.ECE)
	assert.InDelta(t, -2*math.Log(0.5+1e-12), r.NLL, 1e-12)
}

func TestReliabilityPerfectCalibration(t *testing.T) {
	conf := []float64{1, 1, 0.75, 0.75, 0.75, 0.75}
	pred := []int{0, 1, 2, 2, 2, 2}
	truth := []int{0, 1, 2, 2, 2, 0}

	r := ReliabilityDiagram(conf, pred, truth, 4)
	assert.InDelta(t, 0.0, r.ECE, 1e-12)
	assert.InDelta(t, 0.0, r.MCE, 1e-12)
	assert.Len(t, r.Gaps, 2)
}

func TestReliabilityMiscalibrated(t *testing.T) {
	r := ReliabilityDiagram([]float64{0.9, 0.9}, []int{0, 0}, []int{1, 1}, 10)

	assert.InDelta(t, 0.9, r.ECE, 1e-12)
	assert.InDelta(t, 0.9, r.MCE, 1e-12)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 0, 0, 0.9, 0}, r.Confidence)
}

func TestTopOneAndTotalVariance(t *testing.T) {
	pred, conf := TopOne([][]float64{{0.1, 0.7, 0.2}, {0.6, 0.3, 0.1}})
	assert.Equal(t, []int{1, 0}, pred)
	assert.Equal(t, []float64{0.7, 0.6}, conf)

	a := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	b := mat.NewDense(2, 2, []float64{3, 2, 2, 3})
	assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{2, 1, 1, 2}), TotalVariance([]*mat.Dense{a, b})))
	assert.Nil(t, TotalVariance(nil))
}
