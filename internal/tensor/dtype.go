// Package tensor provides the core tensor types, resource managers and
// numeric kernels used by the Forge runtime.
package tensor

import (
	"fmt"
	"strings"
)

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
//
// The numeric values are persisted in checkpoints, so new types are appended.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
	Bool
	Float16
	Int8
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Float16:
		return 2
	case Uint8, Int8, Bool:
		return 1
	default:
		panic(fmt.Sprintf("unknown data type %d", int(dt)))
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	case Float16:
		return "float16"
	case Int8:
		return "int8"
	default:
		return "unknown"
	}
}

// IsFloating reports whether the type stores floating point values.
func (dt DataType) IsFloating() bool {
	return dt == Float16 || dt == Float32 || dt == Float64
}

// IsInteger reports whether the type stores signed or unsigned integers.
func (dt DataType) IsInteger() bool {
	return dt == Int8 || dt == Uint8 || dt == Int32 || dt == Int64
}

// Valid reports whether dt is one of the declared data types.
func (dt DataType) Valid() bool {
	return dt >= Float32 && dt <= Int8
}

// ParseDataType converts a name such as "float16" or "fp16" to a DataType.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float32", "fp32", "f32":
		return Float32, nil
	case "float64", "fp64", "f64":
		return Float64, nil
	case "float16", "fp16", "f16", "half":
		return Float16, nil
	case "int32", "i32":
		return Int32, nil
	case "int64", "i64":
		return Int64, nil
	case "int8", "i8":
		return Int8, nil
	case "uint8", "u8":
		return Uint8, nil
	case "bool", "boolean":
		return Bool, nil
	default:
		return 0, fmt.Errorf("unknown data type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (dt DataType) MarshalText() ([]byte, error) {
	if !dt.Valid() {
		return nil, fmt.Errorf("unknown data type %d", int(dt))
	}
	return []byte(dt.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (dt *DataType) UnmarshalText(text []byte) error {
	parsed, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*dt = parsed
	return nil
}
