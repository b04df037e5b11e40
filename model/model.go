// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"io"
	"log/slog"

	"github.com/born-ml/forge/internal/logging"
	"github.com/born-ml/forge/internal/model"
	"github.com/born-ml/forge/internal/tensor"
)

// Model holds a block, its parameters, properties and artifacts.
type Model = model.Model

// Option configures New.
type Option = model.Option

// New creates an empty model on device.
func New(name string, device tensor.Device, opts ...Option) *Model {
	return model.New(name, device, opts...)
}

// WithLogger sets the model logger.
func WithLogger(l *Logger) Option {
	return model.WithLogger(l)
}

// WithMemoryLimit caps the bytes held by the model manager.
func WithMemoryLimit(bytes int64) Option {
	return model.WithMemoryLimit(bytes)
}

// WithDataType sets the initial data type.
func WithDataType(dt tensor.DataType) Option {
	return model.WithDataType(dt)
}

// Logger is the structured logger used by models.
type Logger = logging.Logger

// NewTextLogger logs human-readable lines to w.
func NewTextLogger(w io.Writer, debug bool) *Logger {
	return logging.NewText(w, level(debug))
}

// NewJSONLogger logs JSON lines to w.
func NewJSONLogger(w io.Writer, debug bool) *Logger {
	return logging.NewJSON(w, level(debug))
}

// NoopLogger discards every record.
func NoopLogger() *Logger {
	return logging.Noop()
}

// Loading and saving

// LoadOptions selects what Load reads.
type LoadOptions = model.LoadOptions

// Load option keys and model properties.
const (
	PropertyEpoch        = model.PropertyEpoch
	OptionEpoch          = model.OptionEpoch
	OptionFormat         = model.OptionFormat
	OptionVerifyChecksum = model.OptionVerifyChecksum
	OptionDataType       = model.OptionDataType
)

// Artifacts

// GetArtifact returns the artifact name parsed by load, loading it at most
// once per model.
func GetArtifact[T any](m *Model, name string, load func(io.Reader) (T, error)) (T, error) {
	return model.GetArtifact(m, name, load)
}

// ArtifactTypeError reports a cached artifact of another type.
type ArtifactTypeError = model.ArtifactTypeError

// Inference

// Translator converts between domain values and block tensors.
type Translator[I, O any] = model.Translator[I, O]

// Preparer is implemented by translators that need one-time setup.
type Preparer = model.Preparer

// TranslatorContext is passed to every Translator call.
type TranslatorContext = model.TranslatorContext

// Predictor runs inference through a Translator.
type Predictor[I, O any] = model.Predictor[I, O]

// NewPredictor creates a Predictor for m.
func NewPredictor[I, O any](m *Model, t Translator[I, O]) (*Predictor[I, O], error) {
	return model.NewPredictor(m, t)
}

// Training

// TrainingConfig selects loss, optimizer, initializer and devices.
type TrainingConfig = model.TrainingConfig

// DefaultTrainingConfig returns L2 loss, SGD and Xavier initialization.
func DefaultTrainingConfig() TrainingConfig {
	return model.DefaultTrainingConfig()
}

// FitConfig controls Trainer.Fit.
type FitConfig = model.FitConfig

// TrainingResult summarizes a Fit call.
type TrainingResult = model.TrainingResult

// Trainer updates a model's parameters.
type Trainer = model.Trainer

// Errors returned by models.
var (
	ErrIO                  = model.ErrIO
	ErrMalformedModel      = model.ErrMalformedModel
	ErrModelClosed         = model.ErrModelClosed
	ErrModelLoaded         = model.ErrModelLoaded
	ErrNoBlock             = model.ErrNoBlock
	ErrArtifactType        = model.ErrArtifactType
	ErrInvalidArtifactName = model.ErrInvalidArtifactName
	ErrUnsupportedCast     = model.ErrUnsupportedCast
)

func level(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
