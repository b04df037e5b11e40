package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceType identifies a family of compute targets.
type DeviceType int

// Supported device types.
const (
	CPU DeviceType = iota
	CUDA
	Vulkan
	Metal
	WebGPU
)

// String returns the lowercase device type name.
func (t DeviceType) String() string {
	switch t {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	case Vulkan:
		return "vulkan"
	case Metal:
		return "metal"
	case WebGPU:
		return "webgpu"
	default:
		return "unknown"
	}
}

// Device is a concrete compute target: a device type plus an index for
// accelerators. CPU devices always have ID 0.
type Device struct {
	Type DeviceType
	ID   int
}

// CPUDevice returns the host CPU device.
func CPUDevice() Device {
	return Device{Type: CPU}
}

// GPUDevice returns the CUDA accelerator with the given index.
func GPUDevice(id int) Device {
	return Device{Type: CUDA, ID: id}
}

// IsCPU reports whether d is the host CPU.
func (d Device) IsCPU() bool {
	return d.Type == CPU
}

// String renders "cpu" or "<type>:<id>".
func (d Device) String() string {
	if d.Type == CPU {
		return "cpu"
	}
	return d.Type.String() + ":" + strconv.Itoa(d.ID)
}

// ParseDevice parses "cpu", "gpu", "cuda:1", "metal:0" and similar strings.
// A missing index defaults to 0; "gpu" is an alias for "cuda".
func ParseDevice(s string) (Device, error) {
	name, idx, hasIdx := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	id := 0
	if hasIdx {
		n, err := strconv.Atoi(idx)
		if err != nil || n < 0 {
			return Device{}, fmt.Errorf("invalid device index in %q", s)
		}
		id = n
	}

	switch name {
	case "cpu", "":
		if id != 0 {
			return Device{}, fmt.Errorf("cpu device does not take an index: %q", s)
		}
		return CPUDevice(), nil
	case "gpu", "cuda":
		return Device{Type: CUDA, ID: id}, nil
	case "vulkan":
		return Device{Type: Vulkan, ID: id}, nil
	case "metal":
		return Device{Type: Metal, ID: id}, nil
	case "webgpu":
		return Device{Type: WebGPU, ID: id}, nil
	default:
		return Device{}, fmt.Errorf("unknown device %q", s)
	}
}
