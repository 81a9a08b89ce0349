package divergence

import (
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/ops"
)

// Rows reshapes a weight tensor to [shape[0], rest]. One-dimensional tensors become a
// column [n, 1].
func Rows[B tensor.Backend](t *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := t.Shape()
	if len(shape) == 1 {
		return t.Reshape(shape[0], 1)
	}
	return t.Reshape(shape[0], t.NumElements()/shape[0])
}

// RadialKernel returns mean_ij exp(-||x_i - y_j||² / dim) for row sets x [n, dim] and
// y [m, dim].
func RadialKernel[B tensor.Backend](x, y *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	xs, ys := x.Shape(), y.Shape()
	if len(xs) != 2 || len(ys) != 2 || xs[1] != ys[1] {
		panic("divergence: RadialKernel expects [n, dim] and [m, dim] inputs")
	}
	dim := xs[1]

	xx := ops.RowSums(ops.Square(x))                   // [n, 1]
	yy := ops.RowSums(ops.Square(y)).Reshape(1, ys[0]) // [1, m]
	cross := x.MatMul(y.Transpose(1, 0))               // [n, m]
	dist := xx.Add(yy).Sub(ops.Scale(cross, 2))        // [n, m]
	return ops.Mean(ops.Scale(dist, -1/float32(dim)).Exp())
}

// Discrepancy is the biased MMD estimate k(x,x) + k(y,y) - 2k(x,y) between two tensors
// of the same shape, compared row-wise.
func Discrepancy[B tensor.Backend](x, y *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	xr, yr := Rows(x), Rows(y)
	return RadialKernel(xr, xr).Add(RadialKernel(yr, yr)).Sub(ops.Scale(RadialKernel(xr, yr), 2))
}
