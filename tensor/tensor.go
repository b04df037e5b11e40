// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/forge/internal/tensor"
)

// DataType identifies the element type of a tensor.
type DataType = tensor.DataType

// Supported data types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Int32   = tensor.Int32
	Int64   = tensor.Int64
	Uint8   = tensor.Uint8
	Bool    = tensor.Bool
	Float16 = tensor.Float16
	Int8    = tensor.Int8
)

// ParseDataType converts a name such as "float32" to a DataType.
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}

// Shape holds tensor dimensions.
type Shape = tensor.Shape

// UnknownDim marks a dynamic dimension in a descriptor.
const UnknownDim = tensor.UnknownDim

// DeviceType identifies a kind of compute device.
type DeviceType = tensor.DeviceType

// Device types.
const (
	CPU    = tensor.CPU
	CUDA   = tensor.CUDA
	Vulkan = tensor.Vulkan
	Metal  = tensor.Metal
	WebGPU = tensor.WebGPU
)

// Device is a device type and index.
type Device = tensor.Device

// CPUDevice returns the CPU device.
func CPUDevice() Device {
	return tensor.CPUDevice()
}

// GPUDevice returns the CUDA device with the given index.
func GPUDevice(id int) Device {
	return tensor.GPUDevice(id)
}

// ParseDevice parses "cpu", "gpu", "cuda:1" and similar names.
func ParseDevice(s string) (Device, error) {
	return tensor.ParseDevice(s)
}

// RawTensor is a typed, reference-counted buffer.
type RawTensor = tensor.RawTensor

// NDList is an ordered list of tensors.
type NDList = tensor.NDList

// NewRaw allocates a zero-filled tensor that is not owned by any manager.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromFloat32 creates an unowned Float32 tensor holding a copy of data.
func FromFloat32(data []float32, shape Shape, device Device) (*RawTensor, error) {
	return tensor.FromFloat32(data, shape, device)
}

// Manager owns tensors and child managers.
type Manager = tensor.Manager

// ManagerOption configures NewManager.
type ManagerOption = tensor.ManagerOption

// NewManager creates a root manager for device.
func NewManager(device Device, opts ...ManagerOption) *Manager {
	return tensor.NewManager(device, opts...)
}

// WithName names a manager in logs.
func WithName(name string) ManagerOption {
	return tensor.WithName(name)
}

// WithMemoryLimit caps the bytes held by a manager tree. 0 means unlimited.
func WithMemoryLimit(bytes int64) ManagerOption {
	return tensor.WithMemoryLimit(bytes)
}

// Cast returns a copy of src converted to dtype.
func Cast(src *RawTensor, dtype DataType) (*RawTensor, error) {
	return tensor.Cast(src, dtype)
}

// CanCast reports whether a conversion is defined.
func CanCast(from, to DataType) bool {
	return tensor.CanCast(from, to)
}

// CastError reports an undefined conversion.
type CastError = tensor.CastError

// MatMul multiplies two Float32 matrices.
func MatMul(a, b *RawTensor) (*RawTensor, error) {
	return tensor.MatMul(a, b)
}

// SoftmaxRows applies softmax over the last axis.
func SoftmaxRows(t *RawTensor) (*RawTensor, error) {
	return tensor.SoftmaxRows(t)
}

// Errors returned by tensor operations.
var (
	ErrManagerClosed     = tensor.ErrManagerClosed
	ErrMemoryLimit       = tensor.ErrMemoryLimit
	ErrUnsupportedCast   = tensor.ErrUnsupportedCast
	ErrShapeMismatch     = tensor.ErrShapeMismatch
	ErrUnsupportedDevice = tensor.ErrUnsupportedDevice
)
