package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/forge/internal/tensor"
)

// ActivationFunc names an element-wise activation.
type ActivationFunc string

// Supported activations.
const (
	ReLU    ActivationFunc = "relu"
	Sigmoid ActivationFunc = "sigmoid"
	Tanh    ActivationFunc = "tanh"
	SiLU    ActivationFunc = "silu" // x * sigmoid(x), also called Swish
	GELU    ActivationFunc = "gelu" // tanh approximation
)

// geluCoeff is sqrt(2/pi).
const geluCoeff = 0.7978845608028654

// Activation applies an element-wise function and has no parameters.
//
//	relu := nn.NewActivation(nn.ReLU)     // max(0, x)
//	sig := nn.NewActivation(nn.Sigmoid)   // 1 / (1 + exp(-x))
//	tanh := nn.NewActivation(nn.Tanh)     // values in (-1, 1)
type Activation struct {
	blockState

	fn ActivationFunc
}

// NewActivation creates an activation block.
func NewActivation(fn ActivationFunc) *Activation {
	return &Activation{fn: fn}
}

// Kind implements Block.
func (a *Activation) Kind() string { return "Activation" }

// Func returns the activation function name.
func (a *Activation) Func() ActivationFunc { return a.fn }

// Initialize implements Block.
func (a *Activation) Initialize(_ *tensor.Manager, dtype tensor.DataType, inputShapes ...tensor.Shape) error {
	switch a.fn {
	case ReLU, Sigmoid, Tanh, SiLU, GELU:
	default:
		return fmt.Errorf("activation: unknown function %q", a.fn)
	}
	a.markInitialized(dtype, inputShapes)
	return nil
}

// Forward implements Block.
func (a *Activation) Forward(ctx *ForwardContext, inputs tensor.NDList) (tensor.NDList, error) {
	x, err := singleInput("activation", inputs)
	if err != nil {
		return nil, err
	}
	y, err := allocate(ctx, x, x.Shape())
	if err != nil {
		return nil, err
	}

	src, dst := x.AsFloat32(), y.AsFloat32()
	switch a.fn {
	case ReLU:
		for i, v := range src {
			if v > 0 {
				dst[i] = v
			}
		}
	case Sigmoid:
		for i, v := range src {
			dst[i] = float32(sigmoid(float64(v)))
		}
	case Tanh:
		for i, v := range src {
			dst[i] = float32(math.Tanh(float64(v)))
		}
	case SiLU:
		for i, v := range src {
			dst[i] = float32(float64(v) * sigmoid(float64(v)))
		}
	case GELU:
		for i, v := range src {
			x := float64(v)
			dst[i] = float32(0.5 * x * (1 + math.Tanh(geluInner(x))))
		}
	default:
		return nil, fmt.Errorf("activation: unknown function %q", a.fn)
	}

	ctx.save(a, tensor.NDList{y, x})
	return tensor.NDList{y}, nil
}

// Backward implements Block. ReLU, Sigmoid and Tanh derive from the saved
// output, SiLU and GELU from the saved input.
func (a *Activation) Backward(ctx *ForwardContext, grads tensor.NDList) (tensor.NDList, error) {
	saved, err := ctx.restore(a)
	if err != nil {
		return nil, err
	}
	dy, err := singleInput("activation backward", grads)
	if err != nil {
		return nil, err
	}
	y, x := saved[0], saved[1]
	if dy.NumElements() != y.NumElements() {
		return nil, fmt.Errorf("%w: activation gradient shape %v", tensor.ErrShapeMismatch, dy.Shape())
	}

	dx, err := allocate(ctx, y, y.Shape())
	if err != nil {
		return nil, err
	}
	out, in, g, d := y.AsFloat32(), x.AsFloat32(), dy.AsFloat32(), dx.AsFloat32()
	switch a.fn {
	case ReLU:
		for i := range d {
			if out[i] > 0 {
				d[i] = g[i]
			}
		}
	case Sigmoid:
		for i := range d {
			d[i] = g[i] * out[i] * (1 - out[i])
		}
	case Tanh:
		for i := range d {
			d[i] = g[i] * (1 - out[i]*out[i])
		}
	case SiLU:
		for i := range d {
			v := float64(in[i])
			s := sigmoid(v)
			d[i] = g[i] * float32(s*(1+v*(1-s)))
		}
	case GELU:
		for i := range d {
			v := float64(in[i])
			t := math.Tanh(geluInner(v))
			grad := 0.5*(1+t) + 0.5*v*(1-t*t)*geluCoeff*(1+3*0.044715*v*v)
			d[i] = g[i] * float32(grad)
		}
	}
	return tensor.NDList{dx}, nil
}

func sigmoid(v float64) float64 {
	return 1.0 / (1.0 + math.Exp(-v))
}

func geluInner(x float64) float64 {
	return geluCoeff * (x + 0.044715*x*x*x)
}

// Parameters implements Block.
func (a *Activation) Parameters() *ParameterMap {
	return NewParameterMap()
}

// OutputShapes implements Block.
func (a *Activation) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	out := make([]tensor.Shape, len(inputShapes))
	for i, s := range inputShapes {
		out[i] = s.Clone()
	}
	return out, nil
}

// Config implements Block.
func (a *Activation) Config() BlockConfig {
	return BlockConfig{Kind: a.Kind(), Attrs: map[string]any{"fn": string(a.fn)}}
}

func decodeActivation(cfg BlockConfig) (Block, error) {
	fn, err := cfg.String("fn")
	if err != nil {
		return nil, err
	}
	return NewActivation(ActivationFunc(fn)), nil
}
