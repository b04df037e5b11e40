// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/forge/internal/nn"
	"github.com/born-ml/forge/internal/tensor"
)

// Block is a neural network component with parameters.
type Block = nn.Block

// BlockConfig is the serializable architecture of a block.
type BlockConfig = nn.BlockConfig

// BlockFactory rebuilds a block from its configuration.
type BlockFactory = nn.BlockFactory

// DataDesc names and shapes one block input or output.
type DataDesc = nn.DataDesc

// ForwardContext carries per-pass state.
type ForwardContext = nn.ForwardContext

// NewForwardContext creates a context allocating intermediates in m.
func NewForwardContext(m *tensor.Manager, training bool) *ForwardContext {
	return nn.NewForwardContext(m, training)
}

// Parameter represents a trainable tensor in a block.
type Parameter = nn.Parameter

// ParameterMap holds parameters in insertion order.
type ParameterMap = nn.ParameterMap

// NewParameter creates a parameter wrapping t.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return nn.NewParameter(name, t)
}

// Layers

// Linear represents a fully connected (dense) layer.
type Linear = nn.Linear

// NewLinear creates a linear layer with units outputs. The input size is
// taken from the first Initialize call.
//
// Example:
//
//	layer := nn.NewLinear(10, true)
func NewLinear(units int, bias bool) *Linear {
	return nn.NewLinear(units, bias)
}

// Activation applies an element-wise function.
type Activation = nn.Activation

// ActivationFunc names an element-wise activation.
type ActivationFunc = nn.ActivationFunc

// Supported activations.
const (
	ReLU    = nn.ReLU
	Sigmoid = nn.Sigmoid
	Tanh    = nn.Tanh
	SiLU    = nn.SiLU
	GELU    = nn.GELU
)

// NewActivation creates an activation block.
func NewActivation(fn ActivationFunc) *Activation {
	return nn.NewActivation(fn)
}

// Sequential chains blocks, feeding each output to the next block.
type Sequential = nn.Sequential

// NewSequential creates a container holding blocks in order.
func NewSequential(blocks ...Block) *Sequential {
	return nn.NewSequential(blocks...)
}

// Initialization

// Initializer fills a new parameter tensor.
type Initializer = nn.Initializer

// NewXavier returns a Xavier (Glorot) uniform initializer.
func NewXavier(seed int64) Initializer {
	return nn.NewXavier(seed)
}

// NewNormal returns an initializer drawing from N(0, sigma^2).
func NewNormal(sigma float64, seed int64) Initializer {
	return nn.NewNormal(sigma, seed)
}

// NewConstant returns an initializer that fills every element with v.
func NewConstant(v float32) Initializer {
	return nn.NewConstant(v)
}

// ParseInitializer resolves "xavier", "normal" or "zeros".
func ParseInitializer(name string, seed int64) (Initializer, error) {
	return nn.ParseInitializer(name, seed)
}

// SetInitializer applies init to every block under b that accepts one.
func SetInitializer(b Block, init Initializer) {
	nn.SetInitializer(b, init)
}

// Loss functions

// Loss computes a scalar loss and its gradient.
type Loss = nn.Loss

// NewL2Loss returns the mean squared error loss.
func NewL2Loss() Loss {
	return nn.NewL2Loss()
}

// NewSoftmaxCrossEntropyLoss returns cross entropy over softmax outputs.
func NewSoftmaxCrossEntropyLoss() Loss {
	return nn.NewSoftmaxCrossEntropyLoss()
}

// ParseLoss resolves a loss by name.
func ParseLoss(name string) (Loss, error) {
	return nn.ParseLoss(name)
}

// Graph files

// Graph is the decoded content of a graph file.
type Graph = nn.Graph

// GraphFormatVersion is the version written into graph files.
const GraphFormatVersion = nn.GraphFormatVersion

// ErrUnknownBlock is returned when a graph references an unregistered kind.
var ErrUnknownBlock = nn.ErrUnknownBlock

// RegisterBlock makes a block kind available to DecodeBlock.
func RegisterBlock(kind string, factory BlockFactory) {
	nn.RegisterBlock(kind, factory)
}

// RegisteredKinds returns the sorted registered block kinds.
func RegisteredKinds() []string {
	return nn.RegisteredKinds()
}

// DecodeBlock rebuilds an uninitialized block from cfg.
func DecodeBlock(cfg BlockConfig) (Block, error) {
	return nn.DecodeBlock(cfg)
}

// EncodeGraph serializes the architecture of b.
func EncodeGraph(b Block, outputs []string) ([]byte, error) {
	return nn.EncodeGraph(b, outputs)
}

// DecodeGraph parses a graph file and rebuilds its root block.
func DecodeGraph(data []byte) (*Graph, Block, error) {
	return nn.DecodeGraph(data)
}
