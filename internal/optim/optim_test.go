package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/forge/internal/nn"
	"github.com/born-ml/forge/internal/optim"
	"github.com/born-ml/forge/internal/tensor"
)

// newParams builds a single-parameter map with value x and gradient g.
func newParams(t *testing.T, x, g []float32) (*nn.ParameterMap, *nn.Parameter) {
	t.Helper()
	m := tensor.NewManager(tensor.CPUDevice())
	t.Cleanup(func() { _ = m.Close() })

	raw, err := m.FromFloat32(x, tensor.Shape{len(x)})
	require.NoError(t, err)
	p := nn.NewParameter("x", raw)
	if g != nil {
		require.NoError(t, p.AccumulateGrad(g))
	}
	params := nn.NewParameterMap()
	params.Set("x", p)
	return params, p
}

// TestSGD_SimpleUpdate tests SGD without momentum.
func TestSGD_SimpleUpdate(t *testing.T) {
	params, p := newParams(t, []float32{2.0}, []float32{1.0})

	sgd := optim.NewSGD(optim.SGDConfig{LR: 0.1})
	require.NoError(t, sgd.Step(params))

	// Expected: x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0 = 1.9
	assert.InDelta(t, 1.9, p.Tensor().AsFloat32()[0], 1e-6)
}

// TestSGD_WithMomentum tests SGD with momentum over two steps.
func TestSGD_WithMomentum(t *testing.T) {
	params, p := newParams(t, []float32{1.0}, []float32{1.0})

	sgd := optim.NewSGD(optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	require.NoError(t, sgd.Step(params)) // v = 1, x = 0.9
	require.NoError(t, sgd.Step(params)) // v = 1.9, x = 0.71

	assert.InDelta(t, 0.71, p.Tensor().AsFloat32()[0], 1e-6)
}

// TestSGD_SkipsMissingGradients tests that parameters without gradients
// are left unchanged.
func TestSGD_SkipsMissingGradients(t *testing.T) {
	params, p := newParams(t, []float32{3.0}, nil)

	require.NoError(t, optim.NewSGD(optim.SGDConfig{}).Step(params))
	assert.Equal(t, float32(3.0), p.Tensor().AsFloat32()[0])
}

// TestAdam_FirstStep tests that the first Adam step moves by about lr.
func TestAdam_FirstStep(t *testing.T) {
	params, p := newParams(t, []float32{1.0, -1.0}, []float32{0.5, -2.0})

	adam := optim.NewAdam(optim.AdamConfig{LR: 0.01})
	require.NoError(t, adam.Step(params))

	got := p.Tensor().AsFloat32()
	assert.InDelta(t, 0.99, got[0], 1e-5)
	assert.InDelta(t, -0.99, got[1], 1e-5)
	assert.Equal(t, 1, adam.Steps())
}

// TestZeroGrad tests clearing gradients through the helper.
func TestZeroGrad(t *testing.T) {
	params, p := newParams(t, []float32{1.0}, []float32{4.0})
	optim.ZeroGrad(params)
	assert.Equal(t, []float32{0}, p.Grad().AsFloat32())
}

// TestParse tests optimizer lookup by name.
func TestParse(t *testing.T) {
	o, err := optim.Parse("adam", 0)
	require.NoError(t, err)
	assert.Equal(t, "adam", o.Name())
	assert.InDelta(t, 0.001, o.GetLR(), 1e-9)

	o, err = optim.Parse("sgd", 0.5)
	require.NoError(t, err)
	o.SetLR(0.25)
	assert.Equal(t, float32(0.25), o.GetLR())

	_, err = optim.Parse("lbfgs", 0)
	assert.Error(t, err)
}

// TestStep_RejectsNonFloat32 tests the precision check.
func TestStep_RejectsNonFloat32(t *testing.T) {
	params, p := newParams(t, []float32{1.0}, []float32{1.0})
	half, err := tensor.Cast(p.Tensor(), tensor.Float16)
	require.NoError(t, err)
	require.NoError(t, p.SetTensor(half))
	require.NoError(t, p.AccumulateGrad([]float32{1.0}))

	err = optim.NewSGD(optim.SGDConfig{}).Step(params)
	assert.ErrorContains(t, err, "float16")
}
