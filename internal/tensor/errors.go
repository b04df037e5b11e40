package tensor

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrManagerClosed     = errors.New("manager is closed")
	ErrMemoryLimit       = errors.New("memory limit exceeded")
	ErrUnsupportedCast   = errors.New("unsupported data type conversion")
	ErrShapeMismatch     = errors.New("shape mismatch")
	ErrUnsupportedDevice = errors.New("unsupported device")
)

// CastError describes a conversion that has no defined semantics.
type CastError struct {
	From DataType
	To   DataType
}

// Error implements the error interface.
func (e *CastError) Error() string {
	return fmt.Sprintf("cannot cast %s to %s", e.From, e.To)
}

// Unwrap returns ErrUnsupportedCast.
func (e *CastError) Unwrap() error { return ErrUnsupportedCast }
