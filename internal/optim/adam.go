package optim

import (
	"math"

	"github.com/born-ml/forge/internal/nn"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient       // First moment
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²      // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
type Adam struct {
	lr    float32
	beta1 float32
	beta2 float32
	eps   float32
	t     int                  // Timestep for bias correction
	m     map[string][]float32 // First moment estimates
	v     map[string][]float32 // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float32    // Learning rate (default: 0.001)
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer with defaults for unset fields.
func NewAdam(config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam{
		lr:    config.LR,
		beta1: config.Betas[0],
		beta2: config.Betas[1],
		eps:   config.Eps,
		m:     make(map[string][]float32),
		v:     make(map[string][]float32),
	}
}

// Name implements Optimizer.
func (a *Adam) Name() string { return "adam" }

// Step performs a single optimization step using Adam algorithm.
func (a *Adam) Step(params *nn.ParameterMap) error {
	updates, err := collect(params)
	if err != nil {
		return err
	}
	a.t++

	bc1 := 1 - float32(math.Pow(float64(a.beta1), float64(a.t)))
	bc2 := 1 - float32(math.Pow(float64(a.beta2), float64(a.t)))

	for _, u := range updates {
		m, ok := a.m[u.name]
		if !ok {
			m = make([]float32, len(u.value))
			a.m[u.name] = m
		}
		v, ok := a.v[u.name]
		if !ok {
			v = make([]float32, len(u.value))
			a.v[u.name] = v
		}

		for i, g := range u.grad {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g
			v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
			mHat := m[i] / bc1
			vHat := v[i] / bc2
			u.value[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
	return nil
}

// GetLR returns the current learning rate.
func (a *Adam) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam) SetLR(lr float32) {
	a.lr = lr
}

// Steps returns the number of updates applied so far.
func (a *Adam) Steps() int {
	return a.t
}
