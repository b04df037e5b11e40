package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/forge/internal/tensor"
)

// Initializer fills a freshly allocated float32 parameter.
type Initializer interface {
	Initialize(t *tensor.RawTensor)
}

// XavierInitializer implements Xavier/Glorot uniform initialization.
//
// Values are drawn from U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out))),
// where fan_out is the leading dimension and fan_in the product of the rest.
type XavierInitializer struct {
	rng *rand.Rand
}

// NewXavier creates a Xavier initializer. A zero seed uses the global source.
func NewXavier(seed int64) *XavierInitializer {
	return &XavierInitializer{rng: newRand(seed)}
}

// Initialize implements Initializer.
func (x *XavierInitializer) Initialize(t *tensor.RawTensor) {
	fanIn, fanOut := fans(t.Shape())
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	data := t.AsFloat32()
	for i := range data {
		data[i] = float32((x.float64()*2.0 - 1.0) * bound)
	}
}

func (x *XavierInitializer) float64() float64 {
	if x.rng == nil {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		return rand.Float64()
	}
	return x.rng.Float64()
}

// NormalInitializer draws values from N(0, Sigma²).
type NormalInitializer struct {
	Sigma float64
	rng   *rand.Rand
}

// NewNormal creates a normal initializer. A zero seed uses the global source.
func NewNormal(sigma float64, seed int64) *NormalInitializer {
	return &NormalInitializer{Sigma: sigma, rng: newRand(seed)}
}

// Initialize implements Initializer.
func (n *NormalInitializer) Initialize(t *tensor.RawTensor) {
	data := t.AsFloat32()
	for i := range data {
		var v float64
		if n.rng == nil {
			//nolint:gosec // Using math/rand for weight initialization (not security-critical)
			v = rand.NormFloat64()
		} else {
			v = n.rng.NormFloat64()
		}
		data[i] = float32(v * n.Sigma)
	}
}

// ConstantInitializer fills every element with Value.
type ConstantInitializer struct {
	Value float32
}

// NewConstant creates a constant initializer.
func NewConstant(v float32) *ConstantInitializer {
	return &ConstantInitializer{Value: v}
}

// Initialize implements Initializer.
func (c *ConstantInitializer) Initialize(t *tensor.RawTensor) {
	data := t.AsFloat32()
	for i := range data {
		data[i] = c.Value
	}
}

// ParseInitializer returns the initializer named "xavier", "normal" or
// "zeros".
func ParseInitializer(name string, seed int64) (Initializer, error) {
	switch name {
	case "", "xavier":
		return NewXavier(seed), nil
	case "normal":
		return NewNormal(0.01, seed), nil
	case "zeros":
		return NewConstant(0), nil
	default:
		return nil, fmt.Errorf("unknown initializer %q", name)
	}
}

// initializable is implemented by blocks that accept a weight initializer.
type initializable interface {
	SetInitializer(init Initializer)
}

// SetInitializer applies init to b and every nested block that has weights.
// It must be called before Initialize.
func SetInitializer(b Block, init Initializer) {
	if ib, ok := b.(initializable); ok {
		ib.SetInitializer(init)
	}
	if seq, ok := b.(*Sequential); ok {
		for pair := seq.children.Oldest(); pair != nil; pair = pair.Next() {
			SetInitializer(pair.Value, init)
		}
	}
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		return nil
	}
	//nolint:gosec // Using math/rand for weight initialization (not security-critical)
	return rand.New(rand.NewSource(seed))
}

func fans(shape tensor.Shape) (fanIn, fanOut int) {
	switch len(shape) {
	case 0:
		return 1, 1
	case 1:
		return shape[0], shape[0]
	default:
		fanOut = shape[0]
		fanIn = 1
		for _, d := range shape[1:] {
			fanIn *= d
		}
		return fanIn, fanOut
	}
}

// newParameter allocates a float32 parameter in m, fills it with init and
// casts it to dtype.
func newParameter(m *tensor.Manager, name string, shape tensor.Shape, dtype tensor.DataType, init Initializer) (*Parameter, error) {
	t, err := m.Create(shape, tensor.Float32)
	if err != nil {
		return nil, fmt.Errorf("allocate %s: %w", name, err)
	}
	init.Initialize(t)

	if dtype != tensor.Float32 {
		converted, err := tensor.Cast(t, dtype)
		m.Detach(t)
		t.Release()
		if err != nil {
			return nil, err
		}
		if err := m.Attach(converted); err != nil {
			return nil, err
		}
		t = converted
	}
	t.SetName(name)
	return NewParameter(name, t), nil
}
