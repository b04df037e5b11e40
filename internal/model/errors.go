package model

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/born-ml/forge/internal/tensor"
)

// Error kinds reported by Model operations. Callers match them with
// errors.Is; the wrapped cause carries the details.
var (
	// ErrIO reports storage that could not be read or written.
	ErrIO = errors.New("model i/o failure")

	// ErrMalformedModel reports persisted data that is not a valid graph or
	// parameter set.
	ErrMalformedModel = errors.New("malformed model")

	// ErrModelClosed reports use of a Model after Close.
	ErrModelClosed = errors.New("model is closed")

	// ErrModelLoaded reports a second Load on the same Model.
	ErrModelLoaded = errors.New("model is already loaded")

	// ErrNoBlock reports an operation that needs a block on a Model without one.
	ErrNoBlock = errors.New("model has no block")

	// ErrArtifactType reports a cached artifact of another type than requested.
	ErrArtifactType = errors.New("artifact type mismatch")

	// ErrInvalidArtifactName reports an artifact name that is not a plain
	// file name.
	ErrInvalidArtifactName = errors.New("invalid artifact name")

	// ErrUnsupportedCast is returned by Cast for a conversion with no
	// defined semantics.
	ErrUnsupportedCast = tensor.ErrUnsupportedCast
)

// ArtifactTypeError describes a cached artifact requested as another type.
type ArtifactTypeError struct {
	Name string
	Want reflect.Type
	Got  reflect.Type
}

// Error implements the error interface.
func (e *ArtifactTypeError) Error() string {
	return fmt.Sprintf("artifact %q is cached as %v, requested as %v", e.Name, e.Got, e.Want)
}

// Unwrap returns ErrArtifactType.
func (e *ArtifactTypeError) Unwrap() error { return ErrArtifactType }

func ioError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrIO, err)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedModel, fmt.Sprintf(format, args...))
}
