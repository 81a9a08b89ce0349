package variational

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/born-ml/bnn/internal/errs"
)

// Initializer fills a freshly allocated weight buffer.
type Initializer interface {
	Fill(ws []float32)
	String() string
}

type normal struct{}

// Normal draws every value from N(0, 1).
func Normal() Initializer { return normal{} }

func (normal) Fill(ws []float32) {
	for i := range ws {
		ws[i] = float32(rand.NormFloat64())
	}
}

func (normal) String() string { return "normal" }

type uniform struct {
	lower, upper float64
}

// Uniform draws every value from U(lower, upper). Swapped bounds are reordered.
func Uniform(lower, upper float64) Initializer {
	if lower > upper {
		lower, upper = upper, lower
	}
	return uniform{lower: lower, upper: upper}
}

func (u uniform) Fill(ws []float32) {
	for i := range ws {
		ws[i] = float32(rand.Float64()*(u.upper-u.lower) + u.lower)
	}
}

func (u uniform) String() string { return fmt.Sprintf("uniform(%g, %g)", u.lower, u.upper) }

type constant struct {
	value float64
}

// Constant fills every value with v.
func Constant(v float64) Initializer { return constant{value: v} }

func (c constant) Fill(ws []float32) {
	for i := range ws {
		ws[i] = float32(c.value)
	}
}

func (c constant) String() string { return fmt.Sprintf("constant(%g)", c.value) }

// ParseInitializer decodes an initializer from a configuration value.
//
// nil or "normal" selects Normal, a two-element numeric list selects Uniform and a
// bare number selects Constant. Anything else is an *errs.ConfigError.
func ParseInitializer(field string, v any) (Initializer, error) {
	switch val := v.(type) {
	case nil:
		return Normal(), nil
	case Initializer:
		return val, nil
	case string:
		if strings.EqualFold(strings.TrimSpace(val), "normal") {
			return Normal(), nil
		}
	case []any:
		if len(val) == 2 {
			lo, okLo := number(val[0])
			hi, okHi := number(val[1])
			if okLo && okHi {
				return Uniform(lo, hi), nil
			}
		}
	case []float64:
		if len(val) == 2 {
			return Uniform(val[0], val[1]), nil
		}
	case [2]float64:
		return Uniform(val[0], val[1]), nil
	default:
		if c, ok := number(val); ok {
			return Constant(c), nil
		}
	}
	return nil, errs.Config(field, v, "expected nil, \"normal\", a number or a [low, high] pair")
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
