package topology

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/born/tensor"

	"github.com/born-ml/bnn/internal/errs"
	"github.com/born-ml/bnn/internal/layers"
)

// Option configures a Builder.
type Option func(*options)

type options struct {
	honorDropoutRate bool
	logger           *slog.Logger
}

// HonorDropoutRate makes dropout entries use their own rate instead of 0.5.
func HonorDropoutRate() Option {
	return func(o *options) { o.honorDropoutRate = true }
}

// WithLogger sets the logger used to report the built stack.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// defaultDropoutRate is applied to every dropout entry unless HonorDropoutRate is set.
const defaultDropoutRate = 0.5

// Builder assembles layer stacks from topology entries.
type Builder[B tensor.Backend] struct {
	bayesian bool
	cfg      layers.BayesianConfig[B]
	opts     options
	backend  B
}

// Bayesian returns a builder whose convolutions and linear layers are Bayesian.
func Bayesian[B tensor.Backend](cfg layers.BayesianConfig[B], backend B, opts ...Option) *Builder[B] {
	return newBuilder(true, cfg, backend, opts)
}

// Deterministic returns a builder of standard convolutions and linear layers.
func Deterministic[B tensor.Backend](backend B, opts ...Option) *Builder[B] {
	return newBuilder(false, layers.BayesianConfig[B]{}, backend, opts)
}

func newBuilder[B tensor.Backend](bayesian bool, cfg layers.BayesianConfig[B], backend B, opts []Option) *Builder[B] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Builder[B]{bayesian: bayesian, cfg: cfg, opts: o, backend: backend}
}

// Build creates the layers described by entries for inputs of inputShape (without the
// batch dimension: [C, H, W] for images, [features] otherwise). A closing linear layer
// to classes is always appended.
//
// Shapes are tracked analytically, so flatten widths never need to be spelled out.
// A flatten is inserted before the first linear layer that follows a spatial stage and
// after the loop when the stack still ends spatially.
func (b *Builder[B]) Build(entries []Entry, inputShape tensor.Shape, classes int) ([]layers.Layer[B], error) {
	if classes <= 0 {
		return nil, errs.Config("classes", classes, "must be positive")
	}
	if len(inputShape) != 1 && len(inputShape) != 3 {
		return nil, errs.Config("input_shape", inputShape, "expected [features] or [channels, height, width]")
	}
	if b.bayesian && b.cfg.Prior == nil {
		return nil, errs.Config("prior", nil, "Bayesian layers need a prior")
	}

	shape := append(tensor.Shape{1}, inputShape...)
	stack := make([]layers.Layer[B], 0, len(entries)+2)
	push := func(l layers.Layer[B]) {
		stack = append(stack, l)
		shape = l.OutputShape(shape)
	}
	flatten := func() {
		if len(shape) == 4 {
			push(layers.NewFlatten[B]())
		}
	}

	for i, e := range entries {
		invalid := func(reason string, args ...any) error {
			return &errs.TopologyError{Index: i, Value: e, Reason: fmt.Sprintf(reason, args...)}
		}

		switch spec := e.(type) {
		case PoolSpec:
			if len(shape) != 4 {
				return nil, invalid("pooling needs a spatial input, have %v", shape)
			}
			if spec.Kernel <= 0 || spec.Stride <= 0 || spec.Kernel > shape[2] || spec.Kernel > shape[3] {
				return nil, invalid("pool kernel %d stride %d do not fit input %v", spec.Kernel, spec.Stride, shape)
			}
			push(layers.NewPool(spec.Kind, spec.Kernel, spec.Stride, b.backend))

		case ActivationSpec:
			act, ok := layers.NewActivation[B](spec.Name)
			if !ok {
				return nil, invalid("unknown activation %q", spec.Name)
			}
			push(act)

		case DropoutSpec:
			rate := defaultDropoutRate
			if b.opts.honorDropoutRate {
				rate = spec.Rate
			}
			if rate < 0 || rate >= 1 {
				return nil, invalid("dropout rate %g outside [0, 1)", rate)
			}
			push(layers.NewDropout[B](rate))

		case ConvSpec:
			if len(shape) != 4 {
				return nil, invalid("convolution needs a spatial input, have %v", shape)
			}
			if spec.Channels <= 0 || spec.Kernel <= 0 || spec.Stride <= 0 || spec.Padding < 0 ||
				spec.Kernel > shape[2]+2*spec.Padding || spec.Kernel > shape[3]+2*spec.Padding {
				return nil, invalid("convolution %v does not fit input %v", spec, shape)
			}
			push(b.conv(shape[1], spec))

		case LinearWidth:
			if spec <= 0 {
				return nil, invalid("linear width must be positive")
			}
			flatten()
			push(b.linear(shape[1], int(spec)))

		default:
			return nil, invalid("unsupported entry type %T", e)
		}
	}

	flatten()
	push(b.linear(shape[1], classes))

	b.opts.logger.Debug("topology built", "layers", len(stack), "bayesian", b.bayesian, "output", shape)
	return stack, nil
}

func (b *Builder[B]) conv(inChannels int, spec ConvSpec) layers.Layer[B] {
	if b.bayesian {
		return layers.NewBayesianConv2D(inChannels, spec.Channels, spec.Kernel, spec.Stride, spec.Padding, b.cfg, b.backend)
	}
	return layers.NewConv2D(inChannels, spec.Channels, spec.Kernel, spec.Stride, spec.Padding, b.backend)
}

func (b *Builder[B]) linear(in, out int) layers.Layer[B] {
	if b.bayesian {
		return layers.NewBayesianLinear(in, out, b.cfg, b.backend)
	}
	return layers.NewLinear(in, out, b.backend)
}
