// Package ops collects the small tensor compositions shared by the Bayesian layers.
//
// Every helper is built only from element-wise arithmetic, Exp, Log, Sqrt, Reshape and
// MatMul, so each step is recorded on the autodiff tape and gradients reach the
// variational parameters.
package ops

import (
	"github.com/born-ml/born/tensor"
)

// Epsilon guards every log and division against non-finite results.
const Epsilon = 1e-12

// Scalar returns a [1]-shaped tensor holding v.
func Scalar[B tensor.Backend](v float32, backend B) *tensor.Tensor[float32, B] {
	return tensor.Full[float32](tensor.Shape{1}, v, backend)
}

// Sum reduces all elements of t to a [1]-shaped tensor.
//
// The reduction is expressed as [1, n] @ [n, 1] so it is differentiable on any
// autodiff backend.
func Sum[B tensor.Backend](t *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	n := t.NumElements()
	ones := tensor.Ones[float32](tensor.Shape{n, 1}, t.Backend())
	return t.Reshape(1, n).MatMul(ones).Reshape(1)
}

// Mean reduces all elements of t to their average, shape [1].
func Mean[B tensor.Backend](t *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return Scale(Sum(t), 1/float32(t.NumElements()))
}

// RowSums sums a [rows, cols] tensor along its columns, returning [rows, 1].
func RowSums[B tensor.Backend](t *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	cols := t.Shape()[1]
	ones := tensor.Ones[float32](tensor.Shape{cols, 1}, t.Backend())
	return t.MatMul(ones)
}

// Filled returns a constant tensor shaped like t.
func Filled[B tensor.Backend](t *tensor.Tensor[float32, B], c float32) *tensor.Tensor[float32, B] {
	return tensor.Full[float32](t.Shape(), c, t.Backend())
}

// Expand broadcasts a one-element tensor to shape. The copy is a [1, 1] @ [1, n]
// product, so the gradient folds back to the single element.
func Expand[B tensor.Backend](t *tensor.Tensor[float32, B], shape tensor.Shape) *tensor.Tensor[float32, B] {
	n := shape.NumElements()
	ones := tensor.Ones[float32](tensor.Shape{1, n}, t.Backend())
	return t.Reshape(1, 1).MatMul(ones).Reshape(shape...)
}

// Scale multiplies every element by c.
//
// The constant has the full shape of t: the tape cannot fold a [rows, cols] gradient
// back onto a [1] operand.
func Scale[B tensor.Backend](t *tensor.Tensor[float32, B], c float32) *tensor.Tensor[float32, B] {
	return t.Mul(Filled(t, c))
}

// Shift adds c to every element.
func Shift[B tensor.Backend](t *tensor.Tensor[float32, B], c float32) *tensor.Tensor[float32, B] {
	return t.Add(Filled(t, c))
}

// Square returns t ⊙ t.
func Square[B tensor.Backend](t *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return t.Mul(t)
}

// Softplus computes log(1 + exp(t)), which is strictly positive.
func Softplus[B tensor.Backend](t *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return Shift(t.Exp(), 1).Log()
}

// SafeLog computes log(t + Epsilon).
func SafeLog[B tensor.Backend](t *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return Shift(t, Epsilon).Log()
}

// Zero returns a [1]-shaped zero.
func Zero[B tensor.Backend](backend B) *tensor.Tensor[float32, B] {
	return Scalar(0, backend)
}

// Values copies the tensor contents into a fresh float64 slice.
func Values[B tensor.Backend](t *tensor.Tensor[float32, B]) []float64 {
	data := t.Data()
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

// Value returns the single element of a one-element tensor.
func Value[B tensor.Backend](t *tensor.Tensor[float32, B]) float64 {
	return float64(t.Data()[0])
}

// LogNormal returns the summed Normal(mu, sigma) log-density of x, shape [1].
//
// mu and sigma must have the shape of x.
func LogNormal[B tensor.Backend](x, mu, sigma *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	diff := x.Sub(mu)
	exponent := Square(diff).Div(Scale(Square(sigma), 2))
	logCoeff := Shift(Scale(SafeLog(sigma), -1), -halfLog2Pi)
	return Sum(logCoeff.Sub(exponent))
}

// NormalDensity returns the element-wise Normal(0, sigma) density of x.
func NormalDensity[B tensor.Backend](x *tensor.Tensor[float32, B], sigma float32) *tensor.Tensor[float32, B] {
	norm := float32(1 / (float64(sigma) * sqrt2Pi))
	return Scale(Scale(Square(x), -1/(2*sigma*sigma)).Exp(), norm)
}
