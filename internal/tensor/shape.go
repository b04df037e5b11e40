package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// UnknownDim marks a dimension whose size is only known at runtime
// (typically the batch axis in input descriptors).
const UnknownDim = -1

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
// Unknown dimensions count as zero elements.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		if dim < 0 {
			return 0
		}
		n *= dim
	}
	return n
}

// Validate checks if the shape is concrete (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// HasUnknown reports whether any dimension is UnknownDim.
func (s Shape) HasUnknown() bool {
	for _, dim := range s {
		if dim == UnknownDim {
			return true
		}
	}
	return false
}

// Compatible reports whether a concrete shape matches a descriptor shape,
// treating UnknownDim in the descriptor as a wildcard.
func (s Shape) Compatible(concrete Shape) bool {
	if len(s) != len(concrete) {
		return false
	}
	for i := range s {
		if s[i] != UnknownDim && s[i] != concrete[i] {
			return false
		}
	}
	return true
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// String renders the shape as "(2, 3)" with "?" for unknown dimensions.
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, dim := range s {
		if dim == UnknownDim {
			parts[i] = "?"
			continue
		}
		parts[i] = strconv.Itoa(dim)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// WithBatch returns a copy of the shape with the leading dimension replaced.
func (s Shape) WithBatch(batch int) Shape {
	out := s.Clone()
	if len(out) > 0 {
		out[0] = batch
	}
	return out
}
