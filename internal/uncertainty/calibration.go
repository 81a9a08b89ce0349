package uncertainty

import "math"

// Reliability summarises how well confidences match accuracies.
type Reliability struct {
	Confidence []float64 // mean confidence per bucket, 0 for empty buckets
	Accuracy   []float64 // accuracy per bucket, 0 for empty buckets
	Gaps       []float64 // |accuracy - confidence| of non-empty buckets
	ECE        float64
	MCE        float64
	NLL        float64 // -sum(log p) over top-1 confidences
}

// ReliabilityDiagram buckets top-1 confidences into bins equal-width buckets.
//
// Bucket b (1-based) holds (b-1)/bins < conf <= b/bins. Empty buckets report (0, 0) and
// do not contribute to the calibration errors.
func ReliabilityDiagram(conf []float64, pred, truth []int, bins int) Reliability {
	r := Reliability{
		Confidence: make([]float64, bins),
		Accuracy:   make([]float64, bins),
	}
	for _, p := range conf {
		r.NLL -= math.Log(p + epsilon)
	}
	if len(conf) == 0 || bins <= 0 {
		return r
	}

	total := float64(len(conf))
	for b := 1; b <= bins; b++ {
		lo, hi := float64(b-1)/float64(bins), float64(b)/float64(bins)

		var size, correct int
		var confSum float64
		for i, p := range conf {
			if p > lo && p <= hi {
				size++
				confSum += p
				if pred[i] == truth[i] {
					correct++
				}
			}
		}
		if size == 0 {
			continue
		}

		acc := float64(correct) / float64(size)
		mean := confSum / float64(size)
		gap := math.Abs(acc - mean)

		r.Confidence[b-1] = mean
		r.Accuracy[b-1] = acc
		r.Gaps = append(r.Gaps, gap)
		r.ECE += float64(size) / total * gap
		r.MCE = math.Max(r.MCE, gap)
	}
	return r
}

// TopOne returns the arg-max class and its probability for every example of [n][c]
// probabilities.
func TopOne(probs [][]float64) (pred []int, conf []float64) {
	pred = make([]int, len(probs))
	conf = make([]float64, len(probs))
	for n, p := range probs {
		best := 0
		for c := range p {
			if p[c] > p[best] {
				best = c
			}
		}
		pred[n] = best
		if len(p) > 0 {
			conf[n] = p[best]
		}
	}
	return pred, conf
}
