// Package optim implements optimization algorithms for training Forge blocks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Optimizer state is keyed by qualified parameter name, so an optimizer can
// be configured before the block it trains is initialized.
//
// Example usage:
//
//	optimizer := optim.NewAdam(optim.AdamConfig{LR: 0.001})
//
//	for _, batch := range batches {
//	    // forward, loss and backward accumulate parameter gradients
//	    if err := optimizer.Step(block.Parameters()); err != nil {
//	        return err
//	    }
//	    optim.ZeroGrad(block.Parameters())
//	}
package optim

import (
	"fmt"

	"github.com/born-ml/forge/internal/nn"
	"github.com/born-ml/forge/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
//
// Optimizers update parameters in place from their accumulated gradients
// to minimize the loss function during training.
type Optimizer interface {
	// Name returns a short identifier used in logs.
	Name() string

	// Step applies one update to every parameter that has a gradient.
	// Parameters without a gradient are skipped.
	Step(params *nn.ParameterMap) error

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR updates the learning rate.
	SetLR(lr float32)
}

// ZeroGrad clears the gradients of all parameters.
func ZeroGrad(params *nn.ParameterMap) {
	for pair := params.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.ZeroGrad()
	}
}

// Parse returns the optimizer named "sgd" or "adam" with the given learning
// rate; zero selects the optimizer's default.
func Parse(name string, lr float32) (Optimizer, error) {
	switch name {
	case "", "sgd":
		return NewSGD(SGDConfig{LR: lr}), nil
	case "adam":
		return NewAdam(AdamConfig{LR: lr}), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", name)
	}
}

// update holds the float32 views for one parameter step.
type update struct {
	name  string
	value []float32
	grad  []float32
}

// collect returns the parameters that have float32 gradients.
func collect(params *nn.ParameterMap) ([]update, error) {
	var out []update
	for pair := params.Oldest(); pair != nil; pair = pair.Next() {
		p := pair.Value
		if p.Grad() == nil {
			// Parameter didn't participate in the backward pass, skip
			continue
		}
		t := p.Tensor()
		if t.DType() != tensor.Float32 {
			return nil, fmt.Errorf("optimizer: parameter %s is %s, float32 required", pair.Key, t.DType())
		}
		out = append(out, update{
			name:  pair.Key,
			value: t.AsFloat32(),
			grad:  p.Grad().AsFloat32(),
		})
	}
	return out, nil
}
