// Package nn implements the neural network building blocks executed by the
// Forge Go engine.
//
// This package provides:
//   - Block interface: the contract every network component satisfies
//   - Parameter: trainable tensors with gradients
//   - Linear, Activation and Sequential blocks
//   - A block registry and JSON graph codec for persistence
//   - Initializers (Xavier, Normal, Constant) and losses (L2, softmax cross-entropy)
//
// Blocks are lazily initialized: input feature sizes are inferred from the
// shapes passed to Initialize, so a network can be declared before its input
// dimensions are known.
package nn

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/born-ml/forge/internal/tensor"
)

// DataDesc describes one named input or output of a block.
// A dimension of tensor.UnknownDim marks a size fixed only at runtime.
type DataDesc struct {
	Name  string          `json:"name"`
	Shape tensor.Shape    `json:"shape"`
	DType tensor.DataType `json:"dtype"`
}

// String renders the descriptor as "data: float32(?, 4)".
func (d DataDesc) String() string {
	return fmt.Sprintf("%s: %s%s", d.Name, d.DType, d.Shape)
}

// ParameterMap holds parameters keyed by qualified name in a stable order.
type ParameterMap = orderedmap.OrderedMap[string, *Parameter]

// NewParameterMap returns an empty ParameterMap.
func NewParameterMap() *ParameterMap {
	return orderedmap.New[string, *Parameter]()
}

// Block is the base interface for all network components.
//
// A block is created uninitialized. Initialize allocates its parameters in
// the given manager once input shapes are known. Forward computes outputs;
// Backward consumes output gradients, accumulates parameter gradients and
// returns input gradients using activations recorded during a training
// Forward with the same ForwardContext.
//
//	net := nn.NewSequential(
//	    nn.NewLinear(16, true),
//	    nn.NewActivation(nn.ReLU),
//	    nn.NewLinear(3, true),
//	)
//	err := net.Initialize(manager, tensor.Float32, tensor.Shape{1, 8})
type Block interface {
	// Kind returns the registry name of the block, e.g. "Linear".
	Kind() string

	// Initialize allocates parameters for the given input shapes.
	Initialize(m *tensor.Manager, dtype tensor.DataType, inputShapes ...tensor.Shape) error

	// IsInitialized reports whether Initialize has completed.
	IsInitialized() bool

	// Forward computes the block outputs.
	Forward(ctx *ForwardContext, inputs tensor.NDList) (tensor.NDList, error)

	// Backward propagates output gradients and returns input gradients.
	Backward(ctx *ForwardContext, grads tensor.NDList) (tensor.NDList, error)

	// Parameters returns all parameters keyed by qualified name.
	// Blocks without parameters return an empty map.
	Parameters() *ParameterMap

	// OutputShapes computes output shapes for the given input shapes.
	OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error)

	// DescribeInput returns the expected inputs, or nil if unknown.
	DescribeInput() []DataDesc

	// Config returns the serializable architecture of the block.
	Config() BlockConfig
}

// ForwardContext carries per-pass state: the manager for intermediate
// tensors, the training flag, and activations saved for Backward.
type ForwardContext struct {
	Manager  *tensor.Manager
	Training bool

	saved map[Block]tensor.NDList
}

// NewForwardContext creates a context allocating intermediates in m.
func NewForwardContext(m *tensor.Manager, training bool) *ForwardContext {
	return &ForwardContext{
		Manager:  m,
		Training: training,
		saved:    make(map[Block]tensor.NDList),
	}
}

func (c *ForwardContext) save(b Block, list tensor.NDList) {
	if c.Training {
		c.saved[b] = list
	}
}

func (c *ForwardContext) restore(b Block) (tensor.NDList, error) {
	list, ok := c.saved[b]
	if !ok {
		return nil, fmt.Errorf("%s: backward without a training forward pass", b.Kind())
	}
	return list, nil
}

// blockState holds what every block records on Initialize.
type blockState struct {
	initialized bool
	dtype       tensor.DataType
	inputShapes []tensor.Shape
}

func (s *blockState) markInitialized(dtype tensor.DataType, inputShapes []tensor.Shape) {
	s.initialized = true
	s.dtype = dtype
	s.inputShapes = make([]tensor.Shape, len(inputShapes))
	for i, shape := range inputShapes {
		s.inputShapes[i] = shape.Clone()
	}
}

// IsInitialized reports whether Initialize has completed.
func (s *blockState) IsInitialized() bool {
	return s.initialized
}

// DescribeInput derives descriptors from the shapes seen on Initialize,
// with the batch dimension marked unknown.
func (s *blockState) DescribeInput() []DataDesc {
	if !s.initialized {
		return nil
	}
	descs := make([]DataDesc, len(s.inputShapes))
	for i, shape := range s.inputShapes {
		name := "data"
		if len(s.inputShapes) > 1 {
			name = fmt.Sprintf("data%d", i)
		}
		descs[i] = DataDesc{Name: name, Shape: shape.WithBatch(tensor.UnknownDim), DType: s.dtype}
	}
	return descs
}

func singleInput(kind string, inputs tensor.NDList) (*tensor.RawTensor, error) {
	if len(inputs) != 1 {
		return nil, fmt.Errorf("%s: expected 1 input, got %d", kind, len(inputs))
	}
	x := inputs[0]
	if x.DType() != tensor.Float32 {
		return nil, fmt.Errorf("%s: float32 input required, got %s", kind, x.DType())
	}
	return x, nil
}

func allocate(ctx *ForwardContext, like *tensor.RawTensor, shape tensor.Shape) (*tensor.RawTensor, error) {
	if ctx.Manager != nil {
		return ctx.Manager.Create(shape, tensor.Float32)
	}
	return tensor.NewLike(like, shape, tensor.Float32)
}
