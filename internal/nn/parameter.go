package nn

import (
	"fmt"

	"github.com/born-ml/forge/internal/tensor"
)

// Parameter represents a trainable tensor in a block.
//
// The gradient is allocated lazily on the first Backward and is zeroed in
// place by ZeroGrad so it can be reused across training steps.
type Parameter struct {
	name   string
	tensor *tensor.RawTensor
	grad   *tensor.RawTensor
}

// NewParameter creates a parameter wrapping t.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return &Parameter{name: name, tensor: t}
}

// Name returns the local parameter name, e.g. "weight".
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter value.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// Shape returns the shape of the parameter value.
func (p *Parameter) Shape() tensor.Shape {
	return p.tensor.Shape()
}

// DType returns the data type of the parameter value.
func (p *Parameter) DType() tensor.DataType {
	return p.tensor.DType()
}

// SetTensor replaces the value. The shape must match; the previous value is
// released and any gradient is dropped.
func (p *Parameter) SetTensor(t *tensor.RawTensor) error {
	if p.tensor != nil && !p.tensor.Shape().Equal(t.Shape()) {
		return fmt.Errorf("%w: parameter %s is %v, got %v",
			tensor.ErrShapeMismatch, p.name, p.tensor.Shape(), t.Shape())
	}
	if old := p.tensor; old != nil && old != t {
		if owner := old.Manager(); owner != nil {
			owner.Detach(old)
		}
		old.Release()
	}
	p.tensor = t
	p.releaseGrad()
	return nil
}

// Grad returns the accumulated gradient, or nil before the first Backward.
func (p *Parameter) Grad() *tensor.RawTensor {
	return p.grad
}

// ZeroGrad clears the accumulated gradient in place.
func (p *Parameter) ZeroGrad() {
	if p.grad == nil {
		return
	}
	clear(p.grad.AsFloat32())
}

// gradBuffer returns the gradient storage, allocating it next to the value.
func (p *Parameter) gradBuffer() ([]float32, error) {
	if p.grad == nil {
		g, err := tensor.NewLike(p.tensor, p.tensor.Shape(), tensor.Float32)
		if err != nil {
			return nil, fmt.Errorf("allocate gradient for %s: %w", p.name, err)
		}
		p.grad = g
	}
	return p.grad.AsFloat32(), nil
}

func (p *Parameter) releaseGrad() {
	if p.grad == nil {
		return
	}
	if owner := p.grad.Manager(); owner != nil {
		owner.Detach(p.grad)
	}
	p.grad.Release()
	p.grad = nil
}

// values returns the float32 view of the value or an error naming the
// actual type.
func (p *Parameter) values() ([]float32, error) {
	if p.tensor.DType() != tensor.Float32 {
		return nil, fmt.Errorf("parameter %s is %s; the go engine computes in float32", p.name, p.tensor.DType())
	}
	return p.tensor.AsFloat32(), nil
}

// AccumulateGrad adds values to the gradient, allocating it if needed.
func (p *Parameter) AccumulateGrad(values []float32) error {
	if len(values) != p.tensor.NumElements() {
		return fmt.Errorf("%w: gradient for %s has %d values, want %d",
			tensor.ErrShapeMismatch, p.name, len(values), p.tensor.NumElements())
	}
	g, err := p.gradBuffer()
	if err != nil {
		return err
	}
	tensor.Axpy(1, values, g)
	return nil
}
