package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// tensorBuffer is a reference-counted byte buffer shared between clones.
type tensorBuffer struct {
	data     []byte
	refCount atomic.Int32
	mu       sync.Mutex
}

func newTensorBuffer(size int) *tensorBuffer {
	buf := &tensorBuffer{
		data: make([]byte, size),
	}
	buf.refCount.Store(1)
	return buf
}

func (tb *tensorBuffer) addRef() {
	tb.refCount.Add(1)
}

// release drops one reference and frees the bytes when none remain.
// It reports whether the buffer was freed.
func (tb *tensorBuffer) release() bool {
	if tb.refCount.Add(-1) == 0 {
		tb.mu.Lock()
		defer tb.mu.Unlock()
		tb.data = nil
		return true
	}
	return false
}

// RawTensor is the low-level tensor representation: a row-major byte buffer
// with shape, data type and device information.
type RawTensor struct {
	buffer   *tensorBuffer
	shape    Shape
	dtype    DataType
	device   Device
	name     string
	owner    *Manager
	released atomic.Bool
}

// NewRaw creates a new zero-filled RawTensor with the given shape and type.
// The tensor is not owned by any Manager.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("invalid data type %d", int(dtype))
	}

	return &RawTensor{
		buffer: newTensorBuffer(shape.NumElements() * dtype.Size()),
		shape:  shape.Clone(),
		dtype:  dtype,
		device: device,
	}, nil
}

// FromFloat32 creates a Float32 tensor holding a copy of data.
func FromFloat32(data []float32, shape Shape, device Device) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, shape.NumElements(), len(data))
	}
	raw, err := NewRaw(shape, Float32, device)
	if err != nil {
		return nil, err
	}
	copy(raw.AsFloat32(), data)
	return raw, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// Name returns the optional tensor name.
func (r *RawTensor) Name() string {
	return r.name
}

// SetName sets the tensor name used in descriptors and checkpoints.
func (r *RawTensor) SetName(name string) {
	r.name = name
}

// Manager returns the manager that owns the tensor, or nil.
func (r *RawTensor) Manager() *Manager {
	return r.owner
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.buffer.data
}

// Released reports whether Release has been called on this handle.
func (r *RawTensor) Released() bool {
	return r.released.Load()
}

func (r *RawTensor) mustBe(dt DataType) []byte {
	if r.dtype != dt {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.dtype, dt))
	}
	if r.Released() {
		panic("tensor has been released")
	}
	return r.buffer.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	data := r.mustBe(Float32)
	//nolint:gosec // unsafe.Slice for zero-copy access, bounded by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64.
func (r *RawTensor) AsFloat64() []float64 {
	data := r.mustBe(Float64)
	//nolint:gosec // unsafe.Slice for zero-copy access, bounded by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsFloat16Bits interprets the data as IEEE 754 half precision bit patterns.
func (r *RawTensor) AsFloat16Bits() []uint16 {
	data := r.mustBe(Float16)
	//nolint:gosec // unsafe.Slice for zero-copy access, bounded by NumElements()
	return unsafe.Slice((*uint16)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsInt32 interprets the data as []int32.
func (r *RawTensor) AsInt32() []int32 {
	data := r.mustBe(Int32)
	//nolint:gosec // unsafe.Slice for zero-copy access, bounded by NumElements()
	return unsafe.Slice((*int32)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsInt64 interprets the data as []int64.
func (r *RawTensor) AsInt64() []int64 {
	data := r.mustBe(Int64)
	//nolint:gosec // unsafe.Slice for zero-copy access, bounded by NumElements()
	return unsafe.Slice((*int64)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsInt8 interprets the data as []int8.
func (r *RawTensor) AsInt8() []int8 {
	data := r.mustBe(Int8)
	//nolint:gosec // unsafe.Slice for zero-copy access, bounded by NumElements()
	return unsafe.Slice((*int8)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsUint8 interprets the data as []uint8.
func (r *RawTensor) AsUint8() []uint8 {
	return r.mustBe(Uint8)[:r.NumElements()]
}

// AsBool interprets the data as []bool.
func (r *RawTensor) AsBool() []bool {
	data := r.mustBe(Bool)
	//nolint:gosec // unsafe.Slice for zero-copy access, bounded by NumElements()
	return unsafe.Slice((*bool)(unsafe.Pointer(&data[0])), r.NumElements())
}

// Clone returns a new handle sharing the same buffer (reference counted).
// The clone is not owned by any manager.
func (r *RawTensor) Clone() *RawTensor {
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  r.shape.Clone(),
		dtype:  r.dtype,
		device: r.device,
		name:   r.name,
	}
}

// Copy returns a deep copy with its own buffer.
func (r *RawTensor) Copy() *RawTensor {
	buf := newTensorBuffer(len(r.buffer.data))
	copy(buf.data, r.buffer.data)
	return &RawTensor{
		buffer: buf,
		shape:  r.shape.Clone(),
		dtype:  r.dtype,
		device: r.device,
		name:   r.name,
	}
}

// Reshape returns a view sharing the buffer with a new shape of equal size.
func (r *RawTensor) Reshape(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("cannot reshape %v to %v", r.shape, shape)
	}
	view := r.Clone()
	view.shape = shape.Clone()
	return view, nil
}

// Release drops this handle's reference to the buffer. It is idempotent per
// handle; the bytes are freed once every clone has been released.
func (r *RawTensor) Release() {
	if r.released.Swap(true) {
		return
	}
	r.buffer.release()
}

// String returns a short description such as "float32(2, 3)@cpu".
func (r *RawTensor) String() string {
	prefix := ""
	if r.name != "" {
		prefix = r.name + ": "
	}
	return fmt.Sprintf("%s%s%s@%s", prefix, r.dtype, r.shape, r.device)
}
