package nn

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/forge/internal/tensor"
)

func newTestManager(t *testing.T) *tensor.Manager {
	t.Helper()
	m := tensor.NewManager(tensor.CPUDevice())
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newMLP() *Sequential {
	return NewSequential(
		NewLinear(4, true),
		NewActivation(ReLU),
		NewLinear(2, true),
	)
}

// TestLinear_Forward tests y = x @ W.T + b with constant weights.
func TestLinear_Forward(t *testing.T) {
	m := newTestManager(t)
	l := NewLinear(2, true)
	l.SetInitializer(NewConstant(0.5))
	require.NoError(t, l.Initialize(m, tensor.Float32, tensor.Shape{1, 3}))
	copy(l.Bias().Tensor().AsFloat32(), []float32{1, -1})

	x, err := m.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)

	out, err := l.Forward(NewForwardContext(m, false), tensor.NDList{x})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, tensor.Shape{2, 2}, out[0].Shape())
	assert.Equal(t, []float32{4, 2, 8.5, 6.5}, out[0].AsFloat32())
}

// TestLinear_ShapeMismatch tests that wrong feature sizes are rejected.
func TestLinear_ShapeMismatch(t *testing.T) {
	m := newTestManager(t)
	l := NewLinear(2, false)
	require.NoError(t, l.Initialize(m, tensor.Float32, tensor.Shape{1, 3}))

	x, err := m.Create(tensor.Shape{2, 4}, tensor.Float32)
	require.NoError(t, err)
	_, err = l.Forward(NewForwardContext(m, false), tensor.NDList{x})
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)
}

// TestLinear_Backward checks the analytic weight gradient against finite
// differences of an L2 loss.
func TestLinear_Backward(t *testing.T) {
	m := newTestManager(t)
	l := NewLinear(2, true)
	l.SetInitializer(NewNormal(0.5, 7))
	require.NoError(t, l.Initialize(m, tensor.Float32, tensor.Shape{1, 3}))

	x, err := m.FromFloat32([]float32{0.1, -0.2, 0.3, 0.4, 0.5, -0.6}, tensor.Shape{2, 3})
	require.NoError(t, err)
	y, err := m.FromFloat32([]float32{1, 0, 0, 1}, tensor.Shape{2, 2})
	require.NoError(t, err)
	loss := NewL2Loss()

	lossAt := func() float32 {
		out, err := l.Forward(NewForwardContext(m, false), tensor.NDList{x})
		require.NoError(t, err)
		v, _, err := loss.Evaluate(m, tensor.NDList{y}, out)
		require.NoError(t, err)
		return v
	}

	ctx := NewForwardContext(m, true)
	out, err := l.Forward(ctx, tensor.NDList{x})
	require.NoError(t, err)
	_, grads, err := loss.Evaluate(m, tensor.NDList{y}, out)
	require.NoError(t, err)
	dx, err := l.Backward(ctx, grads)
	require.NoError(t, err)
	assert.Equal(t, x.Shape(), dx[0].Shape())

	w := l.Weight().Tensor().AsFloat32()
	gw := l.Weight().Grad().AsFloat32()
	const eps = 1e-3
	for i := range w {
		orig := w[i]
		w[i] = orig + eps
		plus := lossAt()
		w[i] = orig - eps
		minus := lossAt()
		w[i] = orig
		numeric := (plus - minus) / (2 * eps)
		assert.InDelta(t, numeric, gw[i], 1e-3, "weight gradient %d", i)
	}

	l.Weight().ZeroGrad()
	for _, v := range l.Weight().Grad().AsFloat32() {
		assert.Zero(t, v)
	}
}

// TestBackward_RequiresTrainingForward tests the missing-activation error.
func TestBackward_RequiresTrainingForward(t *testing.T) {
	m := newTestManager(t)
	net := newMLP()
	require.NoError(t, net.Initialize(m, tensor.Float32, tensor.Shape{1, 3}))

	x, err := m.Create(tensor.Shape{1, 3}, tensor.Float32)
	require.NoError(t, err)
	ctx := NewForwardContext(m, false)
	out, err := net.Forward(ctx, tensor.NDList{x})
	require.NoError(t, err)

	_, err = net.Backward(ctx, out)
	assert.Error(t, err)
}

// TestActivation tests forward values and derivatives.
func TestActivation(t *testing.T) {
	m := newTestManager(t)
	x, err := m.FromFloat32([]float32{-1, 0, 2}, tensor.Shape{3})
	require.NoError(t, err)
	ones, err := m.FromFloat32([]float32{1, 1, 1}, tensor.Shape{3})
	require.NoError(t, err)

	relu := NewActivation(ReLU)
	require.NoError(t, relu.Initialize(m, tensor.Float32, tensor.Shape{3}))
	ctx := NewForwardContext(m, true)
	out, err := relu.Forward(ctx, tensor.NDList{x})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 2}, out[0].AsFloat32())
	dx, err := relu.Backward(ctx, tensor.NDList{ones})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 1}, dx[0].AsFloat32())

	sig := NewActivation(Sigmoid)
	require.NoError(t, sig.Initialize(m, tensor.Float32, tensor.Shape{3}))
	out, err = sig.Forward(ctx, tensor.NDList{x})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out[0].AsFloat32()[1], 1e-6)
	dx, err = sig.Backward(ctx, tensor.NDList{ones})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, dx[0].AsFloat32()[1], 1e-6)

	tanh := NewActivation(Tanh)
	require.NoError(t, tanh.Initialize(m, tensor.Float32, tensor.Shape{3}))
	out, err = tanh.Forward(ctx, tensor.NDList{x})
	require.NoError(t, err)
	assert.InDelta(t, math.Tanh(2), out[0].AsFloat32()[2], 1e-6)

	silu := NewActivation(SiLU)
	require.NoError(t, silu.Initialize(m, tensor.Float32, tensor.Shape{3}))
	out, err = silu.Forward(ctx, tensor.NDList{x})
	require.NoError(t, err)
	assert.InDelta(t, 2/(1+math.Exp(-2)), out[0].AsFloat32()[2], 1e-6)
	dx, err = silu.Backward(ctx, tensor.NDList{ones})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, dx[0].AsFloat32()[1], 1e-6)

	gelu := NewActivation(GELU)
	require.NoError(t, gelu.Initialize(m, tensor.Float32, tensor.Shape{3}))
	out, err = gelu.Forward(ctx, tensor.NDList{x})
	require.NoError(t, err)
	assert.InDelta(t, 0, out[0].AsFloat32()[1], 1e-6)
	assert.InDelta(t, 1+math.Tanh(math.Sqrt(2/math.Pi)*(2+0.044715*8)), out[0].AsFloat32()[2], 1e-5)
	dx, err = gelu.Backward(ctx, tensor.NDList{ones})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, dx[0].AsFloat32()[1], 1e-6)

	assert.Error(t, NewActivation("softsign").Initialize(m, tensor.Float32, tensor.Shape{3}))
}

// TestSequential_Structure tests child naming, parameter order and shapes.
func TestSequential_Structure(t *testing.T) {
	m := newTestManager(t)
	net := newMLP()
	assert.False(t, net.IsInitialized())
	assert.Nil(t, net.DescribeInput())

	require.NoError(t, net.Initialize(m, tensor.Float32, tensor.Shape{1, 3}))
	assert.True(t, net.IsInitialized())
	assert.Equal(t, []string{"01Linear", "02Activation", "03Linear"}, net.ChildNames())

	var names []string
	params := net.Parameters()
	for p := params.Oldest(); p != nil; p = p.Next() {
		names = append(names, p.Key)
	}
	want := []string{"01Linear.weight", "01Linear.bias", "03Linear.weight", "03Linear.bias"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("parameter names (-want +got):\n%s", diff)
	}

	first, _ := params.Get("01Linear.weight")
	assert.Equal(t, tensor.Shape{4, 3}, first.Shape())

	shapes, err := net.OutputShapes([]tensor.Shape{{5, 3}})
	require.NoError(t, err)
	assert.Equal(t, []tensor.Shape{{5, 2}}, shapes)

	desc := net.DescribeInput()
	require.Len(t, desc, 1)
	assert.Equal(t, "data", desc[0].Name)
	assert.Equal(t, tensor.Shape{tensor.UnknownDim, 3}, desc[0].Shape)
	assert.Equal(t, "data: float32(?, 3)", desc[0].String())
}

// TestSequential_Float16Parameters tests initialization in another precision.
func TestSequential_Float16Parameters(t *testing.T) {
	m := newTestManager(t)
	net := newMLP()
	require.NoError(t, net.Initialize(m, tensor.Float16, tensor.Shape{1, 3}))

	params := net.Parameters()
	for p := params.Oldest(); p != nil; p = p.Next() {
		assert.Equal(t, tensor.Float16, p.Value.DType(), p.Key)
	}

	x, err := m.Create(tensor.Shape{1, 3}, tensor.Float32)
	require.NoError(t, err)
	_, err = net.Forward(NewForwardContext(m, false), tensor.NDList{x})
	assert.ErrorContains(t, err, "float16")
}

// TestGraph_RoundTrip tests that an encoded graph rebuilds the same layout.
func TestGraph_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	net := newMLP()
	require.NoError(t, net.Initialize(m, tensor.Float32, tensor.Shape{1, 3}))

	data, err := EncodeGraph(net, []string{"logits"})
	require.NoError(t, err)

	g, block, err := DecodeGraph(data)
	require.NoError(t, err)
	assert.Equal(t, GraphFormatVersion, g.Version)
	assert.Equal(t, []string{"logits"}, g.Outputs)
	assert.Equal(t, net.DescribeInput(), g.Inputs)
	assert.False(t, block.IsInitialized())
	assert.Equal(t, net.Config(), normalize(t, block.Config()))

	require.NoError(t, block.Initialize(m, tensor.Float32, tensor.Shape{1, 3}))
	assert.Equal(t, net.Parameters().Len(), block.Parameters().Len())
}

// normalize re-encodes a config so attribute types match a fresh build.
func normalize(t *testing.T, cfg BlockConfig) BlockConfig {
	t.Helper()
	for i := range cfg.Children {
		cfg.Children[i] = normalize(t, cfg.Children[i])
	}
	if cfg.Kind == "Linear" {
		units, err := cfg.Int("units")
		require.NoError(t, err)
		cfg.Attrs["units"] = units
	}
	return cfg
}

// TestDecodeBlock_Unknown tests the registry error.
func TestDecodeBlock_Unknown(t *testing.T) {
	_, err := DecodeBlock(BlockConfig{Kind: "Conv9d"})
	assert.ErrorIs(t, err, ErrUnknownBlock)

	_, _, err = DecodeGraph([]byte(`{"version": 99, "block": {"kind": "Linear"}}`))
	assert.Error(t, err)

	assert.Contains(t, RegisteredKinds(), "Sequential")
}

// TestLosses tests loss values and gradients.
func TestLosses(t *testing.T) {
	m := newTestManager(t)
	pred, err := m.FromFloat32([]float32{0, 0, 0, 0}, tensor.Shape{2, 2})
	require.NoError(t, err)

	labels, err := m.FromFloat32([]float32{2, 0, 0, 2}, tensor.Shape{2, 2})
	require.NoError(t, err)
	v, grads, err := NewL2Loss().Evaluate(m, tensor.NDList{labels}, tensor.NDList{pred})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 1e-6)
	assert.Equal(t, []float32{-0.5, 0, 0, -0.5}, grads[0].AsFloat32())

	classes, err := m.FromFloat32([]float32{0, 1}, tensor.Shape{2})
	require.NoError(t, err)
	v, grads, err = NewSoftmaxCrossEntropyLoss().Evaluate(m, tensor.NDList{classes}, tensor.NDList{pred})
	require.NoError(t, err)
	assert.InDelta(t, math.Ln2, v, 1e-6)
	assert.InDeltaSlice(t, []float32{-0.25, 0.25, 0.25, -0.25}, grads[0].AsFloat32(), 1e-6)

	bad, err := m.FromFloat32([]float32{5, 0}, tensor.Shape{2})
	require.NoError(t, err)
	_, _, err = NewSoftmaxCrossEntropyLoss().Evaluate(m, tensor.NDList{bad}, tensor.NDList{pred})
	assert.Error(t, err)
}
