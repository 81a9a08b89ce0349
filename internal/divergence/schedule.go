package divergence

import (
	"math"
	"strings"

	"github.com/born-ml/bnn/internal/errs"
)

// Schedule spreads the divergence of one epoch over its minibatches.
type Schedule int

// Weighting schedules.
const (
	Uniform  Schedule = iota // 1/M for every batch
	Blundell                 // 2^(M-i) / (2^M - 1), front-loaded
	Constant                 // 1 for every batch
)

func (s Schedule) String() string {
	switch s {
	case Blundell:
		return "blundell"
	case Constant:
		return "constant"
	default:
		return "uniform"
	}
}

// ParseSchedule accepts "uniform", "blundell" or "constant".
func ParseSchedule(s string) (Schedule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "uniform":
		return Uniform, nil
	case "blundell":
		return Blundell, nil
	case "constant":
		return Constant, nil
	default:
		return Uniform, errs.Config("schedule", s, "expected uniform, blundell or constant")
	}
}

// Weight returns the factor for batch i (zero-based) out of m batches.
//
// The blundell weights are computed as 2^-(i+1) / (1 - 2^-m), which equals
// 2^(m-i-1) / (2^m - 1) without overflowing for long epochs.
func (s Schedule) Weight(i, m int) float64 {
	if m <= 0 {
		return 0
	}
	switch s {
	case Blundell:
		return math.Exp2(-float64(i+1)) / (1 - math.Exp2(-float64(m)))
	case Constant:
		return 1
	default:
		return 1 / float64(m)
	}
}
