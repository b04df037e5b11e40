package engine

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/forge/internal/logging"
	"github.com/born-ml/forge/internal/model"
	"github.com/born-ml/forge/internal/tensor"
)

func resetInstance() {
	instanceOnce = sync.Once{}
	instance, instanceErr = nil, nil
}

func TestInstance_Default(t *testing.T) {
	resetInstance()
	t.Cleanup(resetInstance)

	e, err := Instance()
	require.NoError(t, err)
	assert.Equal(t, "go", e.Name())

	again, err := Instance()
	require.NoError(t, err)
	assert.Equal(t, e, again)
}

func TestInstance_Unknown(t *testing.T) {
	resetInstance()
	t.Cleanup(resetInstance)
	t.Setenv("FORGE_ENGINE", "mxnet")

	_, err := Instance()
	assert.ErrorIs(t, err, ErrUnknownEngine)

	_, err = NewModel("m")
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestRegistry(t *testing.T) {
	assert.Contains(t, Names(), "go")
	_, err := Get("nope")
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestGoEngine_NewModel(t *testing.T) {
	e := GoEngine{}
	m, err := e.NewModel("m", tensor.CPUDevice(), model.WithLogger(logging.Noop()))
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, "m", m.Name())
	assert.True(t, m.Device().IsCPU())

	_, err = e.NewModel("m", tensor.GPUDevice(0))
	assert.ErrorIs(t, err, ErrUnsupportedDevice)
}

func TestGoEngine_DefaultDevice(t *testing.T) {
	e := GoEngine{}
	assert.Equal(t, tensor.CPUDevice(), e.DefaultDevice())

	t.Setenv("FORGE_DEVICE", "cuda:1")
	assert.Equal(t, tensor.CPUDevice(), e.DefaultDevice())
}

func TestGoEngine_Devices(t *testing.T) {
	devices := GoEngine{}.Devices()
	require.Len(t, devices, 1)
	assert.True(t, devices[0].Device.IsCPU())
	assert.Positive(t, devices[0].Cores)
	assert.NotEmpty(t, devices[0].Description)
}

func TestGoEngine_DefaultDeviceWarns(t *testing.T) {
	var buf bytes.Buffer
	saved := logger
	logger = logging.NewText(&buf, slog.LevelDebug).WithComponent("engine")
	t.Cleanup(func() { logger = saved })
	t.Setenv("FORGE_DEVICE", "cuda:0")

	d := GoEngine{}.DefaultDevice()
	assert.True(t, d.IsCPU())
	assert.Contains(t, buf.String(), "device not available in the go engine")
	assert.Contains(t, buf.String(), "component=engine")
	assert.Contains(t, buf.String(), "value=cuda:0")
}

func TestInstance_LogsSelection(t *testing.T) {
	resetInstance()
	t.Cleanup(resetInstance)
	var buf bytes.Buffer
	saved := logger
	logger = logging.NewText(&buf, slog.LevelDebug).WithComponent("engine")
	t.Cleanup(func() { logger = saved })

	_, err := Instance()
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "engine selected")
	assert.Contains(t, buf.String(), "engine=go")
}
