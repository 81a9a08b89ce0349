// Package divergence holds the regularisation terms produced by Bayesian layers.
//
// A layer reports either a KL estimate, split into the posterior and prior
// log-densities of one weight draw, or a kernel MMD between a weight draw and a prior
// draw. Both travel in a single Result tagged with its Kind.
package divergence

import (
	"strings"

	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/errs"
	"github.com/born-ml/bnn/internal/ops"
)

// Kind selects the regulariser of a layer.
type Kind int

// Divergence kinds.
const (
	None Kind = iota // Deterministic layer, nothing to regularise
	KL               // Monte-Carlo KL to the prior
	MMD              // Radial-kernel maximum mean discrepancy to the prior
)

func (k Kind) String() string {
	switch k {
	case KL:
		return "kl"
	case MMD:
		return "mmd"
	default:
		return "none"
	}
}

// ParseKind accepts "kl" or "mmd", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kl":
		return KL, nil
	case "mmd":
		return MMD, nil
	default:
		return None, errs.Config("divergence", s, "expected kl or mmd")
	}
}

// Result is the divergence contribution of one forward pass.
//
// KL results carry LogPrior and LogPosterior, MMD results carry MMD. Fields that do not
// belong to the kind are nil. All populated tensors have shape [1].
type Result[B tensor.Backend] struct {
	Kind         Kind
	LogPrior     *tensor.Tensor[float32, B]
	LogPosterior *tensor.Tensor[float32, B]
	MMD          *tensor.Tensor[float32, B]
}

// Zero returns a result of the given kind whose populated scalars are exactly 0.
func Zero[B tensor.Backend](kind Kind, backend B) Result[B] {
	switch kind {
	case KL:
		return Result[B]{Kind: KL, LogPrior: ops.Zero(backend), LogPosterior: ops.Zero(backend)}
	case MMD:
		return Result[B]{Kind: MMD, MMD: ops.Zero(backend)}
	default:
		return Result[B]{}
	}
}

// Add combines two results. Missing terms are treated as zero.
func (r Result[B]) Add(other Result[B]) Result[B] {
	out := Result[B]{Kind: r.Kind}
	if out.Kind == None {
		out.Kind = other.Kind
	}
	out.LogPrior = addTerm(r.LogPrior, other.LogPrior)
	out.LogPosterior = addTerm(r.LogPosterior, other.LogPosterior)
	out.MMD = addTerm(r.MMD, other.MMD)
	return out
}

func addTerm[B tensor.Backend](a, b *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	default:
		return a.Add(b)
	}
}

// Total sums the per-layer results of a network.
func Total[B tensor.Backend](results []Result[B]) Result[B] {
	var total Result[B]
	for _, r := range results {
		total = total.Add(r)
	}
	return total
}

// Loss returns the scalar regulariser: logPosterior - logPrior for KL terms plus the
// MMD sum. It is nil when the result carries nothing.
func (r Result[B]) Loss() *tensor.Tensor[float32, B] {
	var kl *tensor.Tensor[float32, B]
	if r.LogPosterior != nil && r.LogPrior != nil {
		kl = r.LogPosterior.Sub(r.LogPrior)
	}
	return addTerm(kl, r.MMD)
}

// Value is Loss as a float64, 0 when empty.
func (r Result[B]) Value() float64 {
	loss := r.Loss()
	if loss == nil {
		return 0
	}
	return ops.Value(loss)
}

// Scale multiplies every populated term by c.
func (r Result[B]) Scale(c float32) Result[B] {
	out := Result[B]{Kind: r.Kind}
	if r.LogPrior != nil {
		out.LogPrior = ops.Scale(r.LogPrior, c)
	}
	if r.LogPosterior != nil {
		out.LogPosterior = ops.Scale(r.LogPosterior, c)
	}
	if r.MMD != nil {
		out.MMD = ops.Scale(r.MMD, c)
	}
	return out
}
