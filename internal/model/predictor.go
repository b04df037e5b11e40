package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/born-ml/forge/internal/logging"
	"github.com/born-ml/forge/internal/nn"
	"github.com/born-ml/forge/internal/tensor"
)

// Predictor runs inference on a Model through a Translator.
//
// A Predictor borrows the model manager; it must not be used after the
// model is closed. It is not safe for concurrent use.
type Predictor[I, O any] struct {
	model      *Model
	translator Translator[I, O]
	logger     *logging.Logger

	mu       sync.Mutex
	prepared bool
	closed   bool
}

// NewPredictor creates a Predictor for m. The model must have an
// initialized block.
func NewPredictor[I, O any](m *Model, t Translator[I, O]) (*Predictor[I, O], error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if m.block == nil {
		return nil, fmt.Errorf("new predictor: %w", ErrNoBlock)
	}
	if !m.block.IsInitialized() {
		return nil, fmt.Errorf("new predictor: block %s is not initialized", m.block.Kind())
	}
	return &Predictor[I, O]{
		model:      m,
		translator: t,
		logger:     m.logger.WithComponent("predictor"),
	}, nil
}

// Predict translates input, runs the block and translates its output.
// Every tensor of the call lives in a sub-manager closed on return.
func (p *Predictor[I, O]) Predict(ctx context.Context, input I) (O, error) {
	var zero O
	if err := p.begin(ctx); err != nil {
		return zero, err
	}
	return p.predict(ctx, input)
}

// BatchPredict runs Predict for each input in order. Cancellation of ctx
// is checked between inputs; the first error stops the batch.
func (p *Predictor[I, O]) BatchPredict(ctx context.Context, inputs []I) ([]O, error) {
	if err := p.begin(ctx); err != nil {
		return nil, err
	}
	out := make([]O, 0, len(inputs))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o, err := p.predict(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out = append(out, o)
	}
	return out, nil
}

// Close marks the predictor closed. It is safe to call Close multiple times.
func (p *Predictor[I, O]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Predictor[I, O]) begin(ctx context.Context) error {
	if err := p.model.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("predictor is closed")
	}
	if p.prepared {
		return nil
	}
	if prep, ok := p.translator.(Preparer); ok {
		scratch, err := p.model.manager.NewSubManager()
		if err != nil {
			return err
		}
		defer scratch.Close()
		if err := prep.Prepare(newTranslatorContext(ctx, p.model, scratch)); err != nil {
			return fmt.Errorf("prepare translator: %w", err)
		}
	}
	p.prepared = true
	return nil
}

func (p *Predictor[I, O]) predict(ctx context.Context, input I) (O, error) {
	var zero O
	scratch, err := p.model.manager.NewSubManager()
	if err != nil {
		return zero, err
	}
	defer scratch.Close()

	tctx := newTranslatorContext(ctx, p.model, scratch)
	in, err := p.translator.ProcessInput(tctx, input)
	if err != nil {
		return zero, fmt.Errorf("process input: %w", err)
	}
	if err := checkInputs(p.model.DescribeInput(), in); err != nil {
		return zero, err
	}
	out, err := p.model.block.Forward(nn.NewForwardContext(scratch, false), in)
	if err != nil {
		return zero, fmt.Errorf("forward: %w", err)
	}
	result, err := p.translator.ProcessOutput(tctx, out)
	if err != nil {
		return zero, fmt.Errorf("process output: %w", err)
	}
	p.logger.Debug("prediction done", "inputs", in.Shapes(), "outputs", out.Shapes())
	return result, nil
}

// checkInputs matches tensors against the model input descriptors.
func checkInputs(descs []nn.DataDesc, in tensor.NDList) error {
	if descs == nil {
		return nil
	}
	if len(descs) != len(in) {
		return fmt.Errorf("%w: model takes %d inputs, got %d", tensor.ErrShapeMismatch, len(descs), len(in))
	}
	for i, d := range descs {
		if !d.Shape.Compatible(in[i].Shape()) {
			return fmt.Errorf("%w: input %s expects %v, got %v", tensor.ErrShapeMismatch, d.Name, d.Shape, in[i].Shape())
		}
	}
	return nil
}
