package model

import (
	"context"

	"github.com/born-ml/forge/internal/tensor"
)

// Translator converts domain values of type I to block inputs and block
// outputs to values of type O.
//
// Tensors created in ProcessInput should be allocated in ctx.Manager. The
// manager is closed when the call returns, so ProcessOutput must copy any
// tensor it keeps in O.
type Translator[I, O any] interface {
	ProcessInput(ctx *TranslatorContext, input I) (tensor.NDList, error)
	ProcessOutput(ctx *TranslatorContext, output tensor.NDList) (O, error)
}

// Preparer is implemented by translators that need one-time setup, such as
// reading label artifacts, before their first use.
type Preparer interface {
	Prepare(ctx *TranslatorContext) error
}

// TranslatorContext is passed to every Translator call.
type TranslatorContext struct {
	context.Context

	// Model is the model the predictor runs.
	Model *Model

	// Manager owns the tensors of the current call.
	Manager *tensor.Manager

	attachments map[string]any
}

func newTranslatorContext(ctx context.Context, m *Model, mgr *tensor.Manager) *TranslatorContext {
	return &TranslatorContext{Context: ctx, Model: m, Manager: mgr}
}

// Attachment returns a value stored by SetAttachment during the same call.
func (c *TranslatorContext) Attachment(key string) (any, bool) {
	v, ok := c.attachments[key]
	return v, ok
}

// SetAttachment stores a value for later stages of the same call, for
// example the original image size for ProcessOutput.
func (c *TranslatorContext) SetAttachment(key string, v any) {
	if c.attachments == nil {
		c.attachments = make(map[string]any)
	}
	c.attachments[key] = v
}
