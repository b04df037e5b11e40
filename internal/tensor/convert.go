package tensor

import (
	"math"

	"github.com/x448/float16"
)

// Cast returns a new tensor holding the values of src converted to dtype.
// The result is not owned by any manager.
//
// Conversions between numeric types are defined: floating values are
// truncated toward zero and saturated when the target is an integer type
// (NaN becomes 0), and integers saturate at the target bounds. Any conversion
// involving Bool other than the identity fails with a *CastError.
func Cast(src *RawTensor, dtype DataType) (*RawTensor, error) {
	if src.dtype == dtype {
		return src.Copy(), nil
	}
	if !CanCast(src.dtype, dtype) {
		return nil, &CastError{From: src.dtype, To: dtype}
	}

	dst, err := NewRaw(src.shape, dtype, src.device)
	if err != nil {
		return nil, err
	}
	dst.name = src.name

	if src.dtype.IsFloating() {
		writeFloats(dst, readFloats(src))
	} else {
		writeInts(dst, readInts(src))
	}
	return dst, nil
}

// CanCast reports whether a conversion from one type to another is defined.
func CanCast(from, to DataType) bool {
	if from == to {
		return true
	}
	if !from.Valid() || !to.Valid() {
		return false
	}
	return from != Bool && to != Bool
}

func readFloats(t *RawTensor) []float64 {
	out := make([]float64, t.NumElements())
	switch t.dtype {
	case Float32:
		for i, v := range t.AsFloat32() {
			out[i] = float64(v)
		}
	case Float64:
		copy(out, t.AsFloat64())
	case Float16:
		for i, bits := range t.AsFloat16Bits() {
			out[i] = float64(float16.Frombits(bits).Float32())
		}
	}
	return out
}

func readInts(t *RawTensor) []int64 {
	out := make([]int64, t.NumElements())
	switch t.dtype {
	case Int8:
		for i, v := range t.AsInt8() {
			out[i] = int64(v)
		}
	case Uint8:
		for i, v := range t.AsUint8() {
			out[i] = int64(v)
		}
	case Int32:
		for i, v := range t.AsInt32() {
			out[i] = int64(v)
		}
	case Int64:
		copy(out, t.AsInt64())
	}
	return out
}

func writeFloats(t *RawTensor, vals []float64) {
	switch t.dtype {
	case Float32:
		dst := t.AsFloat32()
		for i, v := range vals {
			dst[i] = float32(v)
		}
	case Float64:
		copy(t.AsFloat64(), vals)
	case Float16:
		dst := t.AsFloat16Bits()
		for i, v := range vals {
			dst[i] = float16.Fromfloat32(float32(v)).Bits()
		}
	case Int8:
		dst := t.AsInt8()
		for i, v := range vals {
			dst[i] = int8(floatToInt(v, math.MinInt8, math.MaxInt8))
		}
	case Uint8:
		dst := t.AsUint8()
		for i, v := range vals {
			dst[i] = uint8(floatToInt(v, 0, math.MaxUint8))
		}
	case Int32:
		dst := t.AsInt32()
		for i, v := range vals {
			dst[i] = int32(floatToInt(v, math.MinInt32, math.MaxInt32))
		}
	case Int64:
		dst := t.AsInt64()
		for i, v := range vals {
			dst[i] = floatToInt(v, math.MinInt64, math.MaxInt64)
		}
	}
}

func writeInts(t *RawTensor, vals []int64) {
	switch t.dtype {
	case Float32:
		dst := t.AsFloat32()
		for i, v := range vals {
			dst[i] = float32(v)
		}
	case Float64:
		dst := t.AsFloat64()
		for i, v := range vals {
			dst[i] = float64(v)
		}
	case Float16:
		dst := t.AsFloat16Bits()
		for i, v := range vals {
			dst[i] = float16.Fromfloat32(float32(v)).Bits()
		}
	case Int8:
		dst := t.AsInt8()
		for i, v := range vals {
			dst[i] = int8(clampInt(v, math.MinInt8, math.MaxInt8))
		}
	case Uint8:
		dst := t.AsUint8()
		for i, v := range vals {
			dst[i] = uint8(clampInt(v, 0, math.MaxUint8))
		}
	case Int32:
		dst := t.AsInt32()
		for i, v := range vals {
			dst[i] = int32(clampInt(v, math.MinInt32, math.MaxInt32))
		}
	case Int64:
		copy(t.AsInt64(), vals)
	}
}

func floatToInt(v float64, lo, hi int64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Trunc(v)
	if v >= float64(hi) {
		return hi
	}
	if v <= float64(lo) {
		return lo
	}
	return int64(v)
}

func clampInt(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
