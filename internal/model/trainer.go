package model

import (
	"context"
	"fmt"
	"strconv"

	"github.com/born-ml/forge/internal/dataset"
	"github.com/born-ml/forge/internal/logging"
	"github.com/born-ml/forge/internal/nn"
	"github.com/born-ml/forge/internal/optim"
	"github.com/born-ml/forge/internal/tensor"
)

// TrainingConfig selects how a Trainer updates a model. Zero fields take
// the defaults of DefaultTrainingConfig.
type TrainingConfig struct {
	Loss        nn.Loss
	Optimizer   optim.Optimizer
	Initializer nn.Initializer
	// Devices lists the devices to train on. Empty means the model device.
	Devices []tensor.Device
}

// DefaultTrainingConfig returns L2 loss, SGD with learning rate 0.01 and
// Xavier initialization.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		Loss:        nn.NewL2Loss(),
		Optimizer:   optim.NewSGD(optim.SGDConfig{LR: 0.01}),
		Initializer: nn.NewXavier(0),
	}
}

func (c TrainingConfig) withDefaults() TrainingConfig {
	d := DefaultTrainingConfig()
	if c.Loss == nil {
		c.Loss = d.Loss
	}
	if c.Optimizer == nil {
		c.Optimizer = d.Optimizer
	}
	if c.Initializer == nil {
		c.Initializer = d.Initializer
	}
	return c
}

// FitConfig controls Trainer.Fit.
type FitConfig struct {
	Epochs    int
	BatchSize int
	DropLast  bool

	// Sampler creates the index sampler for one epoch over size records.
	// Nil visits records in order.
	Sampler func(size int64) dataset.Sampler

	// Validation is evaluated after every epoch when set.
	Validation dataset.Dataset
}

// TrainingResult summarizes the last epoch of a Fit.
type TrainingResult struct {
	Epoch          int
	TrainLoss      float32
	ValidationLoss float32
	Steps          int64
}

// Trainer fits the block of a Model. It borrows the model manager and must
// not be used after the model is closed. It is not safe for concurrent use.
type Trainer struct {
	model  *Model
	config TrainingConfig
	logger *logging.Logger
	steps  int64
	closed bool
}

// NewTrainer creates a Trainer for the model block. The initializer is
// applied to a block that is not initialized yet.
func (m *Model) NewTrainer(cfg TrainingConfig) (*Trainer, error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	if m.block == nil {
		return nil, fmt.Errorf("new trainer: %w", ErrNoBlock)
	}
	cfg = cfg.withDefaults()
	for _, d := range cfg.Devices {
		if d != m.device {
			return nil, fmt.Errorf("new trainer: %w: %s (model is on %s)", tensor.ErrUnsupportedDevice, d, m.device)
		}
	}
	if !m.block.IsInitialized() {
		nn.SetInitializer(m.block, cfg.Initializer)
	}

	logger := m.logger.WithComponent("trainer")
	logger.Debug("trainer created", "loss", cfg.Loss.Name(), "optimizer", cfg.Optimizer.Name(), "lr", cfg.Optimizer.GetLR())
	return &Trainer{model: m, config: cfg, logger: logger}, nil
}

// Model returns the model being trained.
func (t *Trainer) Model() *Model {
	return t.model
}

// Config returns the effective training configuration.
func (t *Trainer) Config() TrainingConfig {
	return t.config
}

// Steps returns the number of optimizer steps taken.
func (t *Trainer) Steps() int64 {
	return t.steps
}

func (t *Trainer) check() error {
	if err := t.model.checkOpen(); err != nil {
		return err
	}
	if t.closed {
		return fmt.Errorf("trainer is closed")
	}
	return nil
}

// Initialize allocates the block parameters for the given input shapes in
// the model manager, using the model data type. An initialized block is
// left untouched.
func (t *Trainer) Initialize(inputShapes ...tensor.Shape) error {
	if err := t.check(); err != nil {
		return err
	}
	b := t.model.block
	if b.IsInitialized() {
		return nil
	}
	if err := b.Initialize(t.model.manager, t.model.dataType, inputShapes...); err != nil {
		return fmt.Errorf("initialize %s: %w", b.Kind(), err)
	}
	t.logger.Debug("block initialized", "inputs", inputShapes, "parameters", b.Parameters().Len())
	return nil
}

// TrainBatch runs forward, loss, backward and one optimizer step on b and
// returns the loss before the update.
func (t *Trainer) TrainBatch(b *dataset.Batch) (float32, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	if err := t.Initialize(b.Data.Shapes()...); err != nil {
		return 0, err
	}

	scratch, err := t.model.manager.NewSubManager()
	if err != nil {
		return 0, err
	}
	defer scratch.Close()

	block := t.model.block
	fctx := nn.NewForwardContext(scratch, true)
	preds, err := block.Forward(fctx, b.Data)
	if err != nil {
		return 0, fmt.Errorf("forward: %w", err)
	}
	loss, grads, err := t.config.Loss.Evaluate(scratch, b.Labels, preds)
	if err != nil {
		return 0, fmt.Errorf("loss: %w", err)
	}
	if _, err := block.Backward(fctx, grads); err != nil {
		return 0, fmt.Errorf("backward: %w", err)
	}

	params := block.Parameters()
	if err := t.config.Optimizer.Step(params); err != nil {
		return 0, fmt.Errorf("optimizer step: %w", err)
	}
	optim.ZeroGrad(params)
	t.steps++
	return loss, nil
}

// EvaluateBatch returns the loss on b without updating parameters.
func (t *Trainer) EvaluateBatch(b *dataset.Batch) (float32, error) {
	if err := t.check(); err != nil {
		return 0, err
	}
	if !t.model.block.IsInitialized() {
		return 0, fmt.Errorf("evaluate: block %s is not initialized", t.model.block.Kind())
	}
	scratch, err := t.model.manager.NewSubManager()
	if err != nil {
		return 0, err
	}
	defer scratch.Close()

	preds, err := t.model.block.Forward(nn.NewForwardContext(scratch, false), b.Data)
	if err != nil {
		return 0, fmt.Errorf("forward: %w", err)
	}
	loss, _, err := t.config.Loss.Evaluate(scratch, b.Labels, preds)
	if err != nil {
		return 0, fmt.Errorf("loss: %w", err)
	}
	return loss, nil
}

// Fit trains for cfg.Epochs passes over ds. After every epoch it logs the
// mean batch loss and advances the model's Epoch property, so a following
// Save numbers the parameter file accordingly. Cancellation of ctx is
// checked between batches.
func (t *Trainer) Fit(ctx context.Context, ds dataset.Dataset, cfg FitConfig) (TrainingResult, error) {
	var res TrainingResult
	if err := t.check(); err != nil {
		return res, err
	}
	if cfg.Epochs <= 0 {
		return res, fmt.Errorf("fit: epochs must be positive, got %d", cfg.Epochs)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Sampler == nil {
		cfg.Sampler = func(size int64) dataset.Sampler { return dataset.NewSequenceSampler(size) }
	}

	start := 0
	if v, ok := t.model.props[PropertyEpoch]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return res, fmt.Errorf("fit: invalid %s property %q", PropertyEpoch, v)
		}
		start = n
	}

	for e := 0; e < cfg.Epochs; e++ {
		epoch := start + e + 1
		loss, batches, err := t.runEpoch(ctx, ds, cfg, true)
		if err != nil {
			return res, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		t.logger.LogEpoch(ctx, epoch, batches, loss)
		res = TrainingResult{Epoch: epoch, TrainLoss: loss, Steps: t.steps}

		if cfg.Validation != nil {
			vloss, _, err := t.runEpoch(ctx, cfg.Validation, cfg, false)
			if err != nil {
				return res, fmt.Errorf("epoch %d validation: %w", epoch, err)
			}
			res.ValidationLoss = vloss
			t.logger.InfoContext(ctx, "validation", "epoch", epoch, "loss", vloss)
		}
		t.model.props[PropertyEpoch] = strconv.Itoa(epoch)
	}
	return res, nil
}

func (t *Trainer) runEpoch(ctx context.Context, ds dataset.Dataset, cfg FitConfig, train bool) (float32, int, error) {
	sampler := dataset.Sampler(dataset.NewSequenceSampler(ds.Len()))
	if train {
		sampler = cfg.Sampler(ds.Len())
	}
	bs, err := dataset.NewBatchSampler(sampler, cfg.BatchSize, train && cfg.DropLast)
	if err != nil {
		return 0, 0, err
	}

	var total float64
	batches := 0
	for b, err := range dataset.Batches(t.model.manager, ds, bs, nil) {
		if err != nil {
			return 0, batches, err
		}
		if err := ctx.Err(); err != nil {
			_ = b.Close()
			return 0, batches, err
		}
		var loss float32
		if train {
			loss, err = t.TrainBatch(b)
		} else {
			loss, err = t.EvaluateBatch(b)
		}
		_ = b.Close()
		if err != nil {
			return 0, batches, err
		}
		total += float64(loss)
		batches++
	}
	if batches == 0 {
		return 0, 0, nil
	}
	return float32(total / float64(batches)), batches, nil
}

// Close marks the trainer closed. The model and its parameters are not
// affected. It is safe to call Close multiple times.
func (t *Trainer) Close() error {
	t.closed = true
	return nil
}
