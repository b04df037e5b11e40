package optim

import (
	"github.com/born-ml/forge/internal/nn"
	"github.com/born-ml/forge/internal/tensor"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Example:
//
//	optimizer := optim.NewSGD(optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
type SGD struct {
	lr         float32
	momentum   float32
	velocities map[string][]float32
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
func NewSGD(config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[string][]float32),
	}
}

// Name implements Optimizer.
func (s *SGD) Name() string { return "sgd" }

// Step performs a single optimization step.
func (s *SGD) Step(params *nn.ParameterMap) error {
	updates, err := collect(params)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if s.momentum == 0 {
			// param -= lr * grad
			tensor.Axpy(-s.lr, u.grad, u.value)
			continue
		}

		velocity, ok := s.velocities[u.name]
		if !ok {
			velocity = make([]float32, len(u.value))
			s.velocities[u.name] = velocity
		}
		// velocity = momentum * velocity + grad
		tensor.Scal(s.momentum, velocity)
		tensor.Axpy(1, u.grad, velocity)
		// param -= lr * velocity
		tensor.Axpy(-s.lr, velocity, u.value)
	}
	return nil
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
//
// Useful for learning rate scheduling during training.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}
