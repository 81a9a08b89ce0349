// Package topology turns declarative layer lists into layer stacks.
//
// A topology is an ordered list whose entries describe a convolution
// ([channels, kernel, stride, padding]), a pooling stage (["MP"|"AP", kernel, stride]),
// an activation ("relu" or "sigmoid"), a dropout stage (any float) or a linear layer
// (any integer, the layer width).
package topology

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/bnn/internal/errs"
	"github.com/born-ml/bnn/internal/layers"
)

// Entry is one element of a topology. The set of implementations is closed.
type Entry interface {
	entry()
	String() string
}

// ConvSpec describes a convolution with square kernels.
type ConvSpec struct {
	Channels int
	Kernel   int
	Stride   int
	Padding  int
}

// PoolSpec describes a pooling stage.
type PoolSpec struct {
	Kind   layers.PoolKind
	Kernel int
	Stride int
}

// ActivationSpec names an activation.
type ActivationSpec struct {
	Name string
}

// DropoutSpec is a dropout stage. Rate is only honoured with HonorDropoutRate.
type DropoutSpec struct {
	Rate float64
}

// LinearWidth is a linear layer of the given output width.
type LinearWidth int

func (ConvSpec) entry()       {}
func (PoolSpec) entry()       {}
func (ActivationSpec) entry() {}
func (DropoutSpec) entry()    {}
func (LinearWidth) entry()    {}

func (c ConvSpec) String() string {
	return fmt.Sprintf("conv(%d, %d, %d, %d)", c.Channels, c.Kernel, c.Stride, c.Padding)
}

func (p PoolSpec) String() string {
	tag := "MP"
	if p.Kind == layers.AvgPool {
		tag = "AP"
	}
	return fmt.Sprintf("pool(%s, %d, %d)", tag, p.Kernel, p.Stride)
}

func (a ActivationSpec) String() string { return a.Name }

func (d DropoutSpec) String() string { return fmt.Sprintf("dropout(%g)", d.Rate) }

func (l LinearWidth) String() string { return fmt.Sprintf("linear(%d)", int(l)) }

// ParseEntries decodes a topology as produced by a YAML or JSON decoder.
//
// Unsupported values fail with an *errs.TopologyError naming the index and value.
func ParseEntries(values []any) ([]Entry, error) {
	entries := make([]Entry, 0, len(values))
	for i, v := range values {
		e, err := parseEntry(v)
		if err != nil {
			return nil, &errs.TopologyError{Index: i, Value: v, Reason: err.Error()}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseEntry(v any) (Entry, error) {
	switch val := v.(type) {
	case Entry:
		return val, nil
	case string:
		name := strings.ToLower(strings.TrimSpace(val))
		if name == "relu" || name == "sigmoid" {
			return ActivationSpec{Name: name}, nil
		}
		return nil, fmt.Errorf("unknown activation %q", val)
	case int:
		return LinearWidth(val), nil
	case int64:
		return LinearWidth(val), nil
	case float32:
		return DropoutSpec{Rate: float64(val)}, nil
	case float64:
		return DropoutSpec{Rate: val}, nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return LinearWidth(n), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, err
		}
		return DropoutSpec{Rate: f}, nil
	case []any:
		return parseTuple(val)
	case []int:
		tuple := make([]any, len(val))
		for i, n := range val {
			tuple[i] = n
		}
		return parseTuple(tuple)
	default:
		return nil, fmt.Errorf("unsupported entry type %T", v)
	}
}

func parseTuple(tuple []any) (Entry, error) {
	if len(tuple) == 3 {
		if tag, ok := tuple[0].(string); ok {
			kernel, okK := integer(tuple[1])
			stride, okS := integer(tuple[2])
			if !okK || !okS {
				return nil, fmt.Errorf("pool kernel and stride must be integers")
			}
			switch strings.ToUpper(tag) {
			case "MP":
				return PoolSpec{Kind: layers.MaxPool, Kernel: kernel, Stride: stride}, nil
			case "AP":
				return PoolSpec{Kind: layers.AvgPool, Kernel: kernel, Stride: stride}, nil
			default:
				return nil, fmt.Errorf("unknown pool tag %q", tag)
			}
		}
	}
	if len(tuple) == 4 {
		var dims [4]int
		for i, v := range tuple {
			n, ok := integer(v)
			if !ok {
				return nil, fmt.Errorf("conv descriptor must hold 4 integers")
			}
			dims[i] = n
		}
		return ConvSpec{Channels: dims[0], Kernel: dims[1], Stride: dims[2], Padding: dims[3]}, nil
	}
	return nil, fmt.Errorf("expected [channels, kernel, stride, padding] or [MP|AP, kernel, stride]")
}

func integer(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}
