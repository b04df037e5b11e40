// Package model implements the Model lifecycle: a named network with its
// block, parameters, properties and side artifacts, plus the Predictor and
// Trainer built on top of it.
//
// A Model moves through three states:
//
//	UNINITIALIZED --New/Load--> READY --Cast/SetProperty/SetBlock--> READY --Close--> CLOSED
//
// CLOSED is terminal. Methods that return an error report ErrModelClosed
// afterwards; accessors without an error result panic with ErrModelClosed.
//
// A Model is meant for a single owner. GetArtifact is the exception: it is
// safe for concurrent use and runs the loader at most once per name.
package model

import (
	"fmt"
	"maps"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/born-ml/forge/internal/envconfig"
	"github.com/born-ml/forge/internal/logging"
	"github.com/born-ml/forge/internal/nn"
	"github.com/born-ml/forge/internal/tensor"
)

// Option configures a Model created by New.
type Option func(*options)

type options struct {
	logger      *logging.Logger
	memoryLimit int64
	dataType    tensor.DataType
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMemoryLimit caps the tensor bytes the model manager tree may hold.
// It overrides FORGE_MEMORY_LIMIT.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) { o.memoryLimit = bytes }
}

// WithDataType sets the initial parameter data type (default Float32).
func WithDataType(dt tensor.DataType) Option {
	return func(o *options) { o.dataType = dt }
}

// Model is a named network together with its parameters, metadata and
// bundled artifacts. All tensors belonging to the model are owned by its
// NDManager; Predictors and Trainers borrow that manager and must not be
// used after the model is closed.
type Model struct {
	name     string
	device   tensor.Device
	manager  *tensor.Manager
	logger   *logging.Logger
	block    nn.Block
	dataType tensor.DataType
	props    map[string]string

	// modelDir is where artifacts are resolved; empty until Load or Save.
	modelDir string
	graph    *nn.Graph
	loaded   bool

	artifactMu sync.Mutex
	artifacts  map[string]any
	flight     singleflight.Group

	closed atomic.Bool
}

// New creates an empty model named name whose tensors live on device.
func New(name string, device tensor.Device, opts ...Option) *Model {
	o := options{
		memoryLimit: int64(envconfig.MemoryLimit()), //nolint:gosec // G115: byte budgets fit in int64
		dataType:    tensor.Float32,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	logger := o.logger.WithModel(name)

	return &Model{
		name:   name,
		device: device,
		manager: tensor.NewManager(device,
			tensor.WithName(name),
			tensor.WithMemoryLimit(o.memoryLimit),
			tensor.WithLogger(logger.Logger),
		),
		logger:    logger,
		dataType:  o.dataType,
		props:     make(map[string]string),
		artifacts: make(map[string]any),
	}
}

func (m *Model) checkOpen() error {
	if m.closed.Load() {
		return fmt.Errorf("%w: %s", ErrModelClosed, m.name)
	}
	return nil
}

func (m *Model) mustBeOpen() {
	if err := m.checkOpen(); err != nil {
		panic(err)
	}
}

// Name returns the identifier used at construction, load or save time.
func (m *Model) Name() string {
	m.mustBeOpen()
	return m.name
}

// Device returns the device the model's tensors live on.
func (m *Model) Device() tensor.Device {
	m.mustBeOpen()
	return m.device
}

// Block returns the model's network, or nil if none has been set.
func (m *Model) Block() nn.Block {
	m.mustBeOpen()
	return m.block
}

// SetBlock replaces the model's network. The previous block's parameters
// stay owned by the model manager until Close.
func (m *Model) SetBlock(b nn.Block) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("set block: %w", ErrNoBlock)
	}
	m.block = b
	m.graph = nil
	return nil
}

// NDManager returns the manager owning every tensor of the model. It is
// closed together with the model.
func (m *Model) NDManager() *tensor.Manager {
	m.mustBeOpen()
	return m.manager
}

// Logger returns the model-scoped logger.
func (m *Model) Logger() *logging.Logger {
	return m.logger
}

// Property returns the value stored under key. The boolean is false when
// the key is unset.
func (m *Model) Property(key string) (string, bool) {
	m.mustBeOpen()
	v, ok := m.props[key]
	return v, ok
}

// SetProperty stores value under key, replacing any previous value.
func (m *Model) SetProperty(key, value string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	m.props[key] = value
	return nil
}

// Properties returns a copy of all properties.
func (m *Model) Properties() map[string]string {
	m.mustBeOpen()
	return maps.Clone(m.props)
}

// PropertyKeys returns the property keys in sorted order.
func (m *Model) PropertyKeys() []string {
	m.mustBeOpen()
	keys := make([]string, 0, len(m.props))
	for k := range m.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DataType returns the data type of the parameter storage.
func (m *Model) DataType() tensor.DataType {
	m.mustBeOpen()
	return m.dataType
}

// SetDataType sets the data type tag used when the block is initialized.
// It does not convert existing parameters; use Cast for that.
func (m *Model) SetDataType(dt tensor.DataType) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if !dt.Valid() {
		return fmt.Errorf("set data type: invalid data type %d", int(dt))
	}
	m.dataType = dt
	return nil
}

// Cast converts every parameter to dt in place.
//
// The conversion is all-or-nothing: every parameter is converted before
// any is replaced, so on error the model is unchanged. Narrowing casts are
// lossy (see tensor.Cast). A conversion with no defined semantics, such as
// any involving Bool, fails with ErrUnsupportedCast.
func (m *Model) Cast(dt tensor.DataType) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if !tensor.CanCast(m.dataType, dt) {
		return fmt.Errorf("cast model %s: %w", m.name, &tensor.CastError{From: m.dataType, To: dt})
	}
	if m.block == nil {
		m.dataType = dt
		return nil
	}

	params := m.block.Parameters()
	converted := make([]*tensor.RawTensor, 0, params.Len())
	rollback := func() {
		for _, t := range converted {
			m.manager.Detach(t)
			t.Release()
		}
	}
	for pair := params.Oldest(); pair != nil; pair = pair.Next() {
		c, err := tensor.Cast(pair.Value.Tensor(), dt)
		if err != nil {
			rollback()
			return fmt.Errorf("cast %s: %w", pair.Key, err)
		}
		if err := m.manager.Attach(c); err != nil {
			c.Release()
			rollback()
			return fmt.Errorf("cast %s: %w", pair.Key, err)
		}
		converted = append(converted, c)
	}

	i := 0
	for pair := params.Oldest(); pair != nil; pair = pair.Next() {
		// Shapes are unchanged, so SetTensor cannot fail here.
		_ = pair.Value.SetTensor(converted[i])
		i++
	}
	m.logger.Debug("model cast", "from", m.dataType, "to", dt, "parameters", len(converted))
	m.dataType = dt
	return nil
}

// DescribeInput returns the named input descriptors of the block in
// positional order. The batch dimension is reported as tensor.UnknownDim.
// It returns nil when the input layout is not known yet.
func (m *Model) DescribeInput() []nn.DataDesc {
	m.mustBeOpen()
	if m.block != nil {
		if descs := m.block.DescribeInput(); descs != nil {
			return descs
		}
	}
	if m.graph != nil {
		return cloneDescs(m.graph.Inputs)
	}
	return nil
}

// DescribeOutput returns the named output descriptors of the block in
// positional order, derived from the input descriptors.
func (m *Model) DescribeOutput() []nn.DataDesc {
	m.mustBeOpen()
	inputs := m.DescribeInput()
	if m.block == nil || inputs == nil {
		return nil
	}

	shapes := make([]tensor.Shape, len(inputs))
	for i, d := range inputs {
		shapes[i] = concrete(d.Shape)
	}
	outShapes, err := m.block.OutputShapes(shapes)
	if err != nil {
		m.logger.Debug("describe output failed", "error", err)
		return nil
	}

	var names []string
	if m.graph != nil {
		names = m.graph.Outputs
	}
	descs := make([]nn.DataDesc, len(outShapes))
	for i, s := range outShapes {
		descs[i] = nn.DataDesc{
			Name:  outputName(names, i, len(outShapes)),
			Shape: s.WithBatch(tensor.UnknownDim),
			DType: m.dataType,
		}
	}
	return descs
}

// Close releases every tensor of the model and drops cached artifacts.
// It is safe to call Close multiple times.
func (m *Model) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	err := m.manager.Close()

	m.artifactMu.Lock()
	clear(m.artifacts)
	m.artifactMu.Unlock()

	m.logger.Debug("model closed")
	return err
}

// concrete replaces unknown dimensions with 1 so a descriptor shape can be
// used to initialize or probe a block.
func concrete(s tensor.Shape) tensor.Shape {
	out := s.Clone()
	for i, d := range out {
		if d == tensor.UnknownDim {
			out[i] = 1
		}
	}
	return out
}

func outputName(names []string, i, n int) string {
	if i < len(names) && names[i] != "" {
		return names[i]
	}
	if n == 1 {
		return "output"
	}
	return fmt.Sprintf("output%d", i)
}

func cloneDescs(descs []nn.DataDesc) []nn.DataDesc {
	if descs == nil {
		return nil
	}
	out := make([]nn.DataDesc, len(descs))
	for i, d := range descs {
		out[i] = nn.DataDesc{Name: d.Name, Shape: d.Shape.Clone(), DType: d.DType}
	}
	return out
}
