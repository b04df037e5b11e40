package engine

import (
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid/v2"

	"github.com/born-ml/forge/internal/envconfig"
	"github.com/born-ml/forge/internal/model"
	"github.com/born-ml/forge/internal/tensor"
)

// Version is the Forge runtime version.
const Version = "0.3.0"

func init() {
	Register(GoEngine{})
}

// GoEngine runs blocks with the pure Go kernels of the tensor package. It
// computes on the host CPU only.
type GoEngine struct{}

// Name implements Engine.
func (GoEngine) Name() string { return "go" }

// Version implements Engine.
func (GoEngine) Version() string { return Version }

// DefaultDevice implements Engine. A FORGE_DEVICE naming anything but the
// CPU is ignored with a warning.
func (GoEngine) DefaultDevice() tensor.Device {
	s := envconfig.Device()
	if s == "" {
		return tensor.CPUDevice()
	}
	d, err := tensor.ParseDevice(s)
	if err != nil || !d.IsCPU() {
		logger.Warn("device not available in the go engine, using cpu", "key", "FORGE_DEVICE", "value", s)
		return tensor.CPUDevice()
	}
	return d
}

// Devices implements Engine.
func (GoEngine) Devices() []DeviceInfo {
	cores := cpuid.CPU.PhysicalCores
	if cores == 0 {
		cores = runtime.NumCPU()
	}
	brand := cpuid.CPU.BrandName
	if brand == "" {
		brand = runtime.GOARCH
	}
	return []DeviceInfo{{
		Device:      tensor.CPUDevice(),
		Description: brand,
		Cores:       cores,
		Features:    SIMDFeatures(),
	}}
}

// SIMDFeatures returns the vector extensions of the host CPU relevant to
// the float32 kernels.
func SIMDFeatures() []string {
	var out []string
	for _, f := range []struct {
		name string
		id   cpuid.FeatureID
	}{
		{"sse4.2", cpuid.SSE42},
		{"avx", cpuid.AVX},
		{"avx2", cpuid.AVX2},
		{"fma3", cpuid.FMA3},
		{"f16c", cpuid.F16C},
		{"avx512f", cpuid.AVX512F},
		{"asimd", cpuid.ASIMD},
	} {
		if cpuid.CPU.Supports(f.id) {
			out = append(out, f.name)
		}
	}
	return out
}

// NewModel implements Engine.
func (e GoEngine) NewModel(name string, device tensor.Device, opts ...model.Option) (*model.Model, error) {
	if !device.IsCPU() {
		return nil, fmt.Errorf("%s engine: %w: %s", e.Name(), ErrUnsupportedDevice, device)
	}
	return model.New(name, device, opts...), nil
}
