package nn

import (
	"fmt"

	"github.com/born-ml/forge/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input tensor with shape [..., in_features]
//   - W is the weight matrix with shape [units, in_features]
//   - b is the bias vector with shape [units]
//   - y is the output tensor with shape [..., units]
//
// in_features is inferred from the last input dimension on Initialize.
// Weights use the configured initializer (Xavier by default); biases start
// at zero.
//
// Example:
//
//	layer := nn.NewLinear(128, true)
//	err := layer.Initialize(manager, tensor.Float32, tensor.Shape{32, 784})
//	out, err := layer.Forward(ctx, tensor.NDList{x}) // shape: [32, 128]
type Linear struct {
	blockState

	units       int
	hasBias     bool
	inFeatures  int
	weight      *Parameter // [units, in_features]
	bias        *Parameter // [units]
	initializer Initializer
}

// NewLinear creates an uninitialized Linear layer with the given number of
// output units.
func NewLinear(units int, bias bool) *Linear {
	return &Linear{units: units, hasBias: bias}
}

// Kind implements Block.
func (l *Linear) Kind() string { return "Linear" }

// SetInitializer sets the weight initializer used by Initialize.
func (l *Linear) SetInitializer(init Initializer) {
	l.initializer = init
}

// Initialize implements Block.
func (l *Linear) Initialize(m *tensor.Manager, dtype tensor.DataType, inputShapes ...tensor.Shape) error {
	if l.units <= 0 {
		return fmt.Errorf("linear: units must be positive, got %d", l.units)
	}
	if len(inputShapes) != 1 || len(inputShapes[0]) == 0 {
		return fmt.Errorf("linear: expected one input shape with at least one dimension, got %v", inputShapes)
	}
	in := inputShapes[0][len(inputShapes[0])-1]
	if in <= 0 {
		return fmt.Errorf("linear: input features must be known, got shape %v", inputShapes[0])
	}
	if l.initializer == nil {
		l.initializer = NewXavier(0)
	}

	weight, err := newParameter(m, "weight", tensor.Shape{l.units, in}, dtype, l.initializer)
	if err != nil {
		return err
	}
	var bias *Parameter
	if l.hasBias {
		bias, err = newParameter(m, "bias", tensor.Shape{l.units}, dtype, NewConstant(0))
		if err != nil {
			return err
		}
	}

	l.inFeatures = in
	l.weight = weight
	l.bias = bias
	l.markInitialized(dtype, inputShapes)
	return nil
}

// Forward computes y = x @ W.T + b.
func (l *Linear) Forward(ctx *ForwardContext, inputs tensor.NDList) (tensor.NDList, error) {
	if !l.initialized {
		return nil, fmt.Errorf("linear: not initialized")
	}
	x, err := singleInput("linear", inputs)
	if err != nil {
		return nil, err
	}
	shape := x.Shape()
	if len(shape) == 0 || shape[len(shape)-1] != l.inFeatures {
		return nil, fmt.Errorf("%w: linear expects %d input features, got shape %v",
			tensor.ErrShapeMismatch, l.inFeatures, shape)
	}
	w, err := l.weight.values()
	if err != nil {
		return nil, err
	}

	rows := x.NumElements() / l.inFeatures
	outShape := append(shape[:len(shape)-1].Clone(), l.units)
	y, err := allocate(ctx, x, outShape)
	if err != nil {
		return nil, err
	}
	out := y.AsFloat32()
	tensor.Gemm(false, true, rows, l.units, l.inFeatures, 1, x.AsFloat32(), w, 0, out)

	if l.bias != nil {
		b, err := l.bias.values()
		if err != nil {
			return nil, err
		}
		for r := 0; r < rows; r++ {
			tensor.Axpy(1, b, out[r*l.units:(r+1)*l.units])
		}
	}

	ctx.save(l, tensor.NDList{x})
	return tensor.NDList{y}, nil
}

// Backward accumulates dW = dy.T @ x and db = sum(dy) and returns dx = dy @ W.
func (l *Linear) Backward(ctx *ForwardContext, grads tensor.NDList) (tensor.NDList, error) {
	saved, err := ctx.restore(l)
	if err != nil {
		return nil, err
	}
	dy, err := singleInput("linear backward", grads)
	if err != nil {
		return nil, err
	}
	x := saved[0]
	rows := x.NumElements() / l.inFeatures
	if dy.NumElements() != rows*l.units {
		return nil, fmt.Errorf("%w: linear gradient shape %v", tensor.ErrShapeMismatch, dy.Shape())
	}

	w, err := l.weight.values()
	if err != nil {
		return nil, err
	}
	gw, err := l.weight.gradBuffer()
	if err != nil {
		return nil, err
	}
	dyData := dy.AsFloat32()
	tensor.Gemm(true, false, l.units, l.inFeatures, rows, 1, dyData, x.AsFloat32(), 1, gw)

	if l.bias != nil {
		gb, err := l.bias.gradBuffer()
		if err != nil {
			return nil, err
		}
		for r := 0; r < rows; r++ {
			tensor.Axpy(1, dyData[r*l.units:(r+1)*l.units], gb)
		}
	}

	dx, err := allocate(ctx, x, x.Shape())
	if err != nil {
		return nil, err
	}
	tensor.Gemm(false, false, rows, l.inFeatures, l.units, 1, dyData, w, 0, dx.AsFloat32())
	return tensor.NDList{dx}, nil
}

// Parameters implements Block.
func (l *Linear) Parameters() *ParameterMap {
	params := NewParameterMap()
	if l.weight != nil {
		params.Set("weight", l.weight)
	}
	if l.bias != nil {
		params.Set("bias", l.bias)
	}
	return params
}

// OutputShapes implements Block.
func (l *Linear) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	if len(inputShapes) != 1 || len(inputShapes[0]) == 0 {
		return nil, fmt.Errorf("linear: expected one input shape, got %v", inputShapes)
	}
	in := inputShapes[0]
	out := append(in[:len(in)-1].Clone(), l.units)
	return []tensor.Shape{out}, nil
}

// Config implements Block.
func (l *Linear) Config() BlockConfig {
	return BlockConfig{
		Kind: l.Kind(),
		Attrs: map[string]any{
			"units": l.units,
			"bias":  l.hasBias,
		},
	}
}

// Units returns the number of output features.
func (l *Linear) Units() int {
	return l.units
}

// InFeatures returns the inferred number of input features, or 0 before
// Initialize.
func (l *Linear) InFeatures() int {
	return l.inFeatures
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *Parameter {
	return l.weight
}

// Bias returns the bias parameter, or nil.
func (l *Linear) Bias() *Parameter {
	return l.bias
}

func decodeLinear(cfg BlockConfig) (Block, error) {
	units, err := cfg.Int("units")
	if err != nil {
		return nil, err
	}
	return NewLinear(units, cfg.Bool("bias")), nil
}
