package nn

import (
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/born-ml/forge/internal/tensor"
)

// Sequential is a container block that chains child blocks.
//
// Each child's output becomes the next child's input. Children are named
// "<index><kind>" with a two-digit, one-based index ("01Linear",
// "02Activation") and parameters are qualified as "<child>.<param>".
//
// Example:
//
//	net := nn.NewSequential(
//	    nn.NewLinear(128, true),
//	    nn.NewActivation(nn.ReLU),
//	    nn.NewLinear(10, true),
//	)
//
// This is equivalent to:
//
//	h1 := linear1.Forward(input)
//	h2 := relu.Forward(h1)
//	output := linear2.Forward(h2)
type Sequential struct {
	blockState

	children *orderedmap.OrderedMap[string, Block]
}

// NewSequential creates a Sequential container.
func NewSequential(blocks ...Block) *Sequential {
	s := &Sequential{children: orderedmap.New[string, Block]()}
	for _, b := range blocks {
		s.Add(b)
	}
	return s
}

// Kind implements Block.
func (s *Sequential) Kind() string { return "Sequential" }

// Add appends a block and returns the container for chaining.
func (s *Sequential) Add(b Block) *Sequential {
	name := fmt.Sprintf("%02d%s", s.children.Len()+1, b.Kind())
	s.children.Set(name, b)
	return s
}

// Len returns the number of children.
func (s *Sequential) Len() int {
	return s.children.Len()
}

// Child returns the child with the given name.
func (s *Sequential) Child(name string) (Block, bool) {
	return s.children.Get(name)
}

// ChildNames returns the child names in order.
func (s *Sequential) ChildNames() []string {
	names := make([]string, 0, s.children.Len())
	for pair := s.children.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Initialize initializes each child with the output shapes of the previous one.
func (s *Sequential) Initialize(m *tensor.Manager, dtype tensor.DataType, inputShapes ...tensor.Shape) error {
	shapes := inputShapes
	for pair := s.children.Oldest(); pair != nil; pair = pair.Next() {
		if err := pair.Value.Initialize(m, dtype, shapes...); err != nil {
			return fmt.Errorf("initialize %s: %w", pair.Key, err)
		}
		next, err := pair.Value.OutputShapes(shapes)
		if err != nil {
			return fmt.Errorf("output shapes of %s: %w", pair.Key, err)
		}
		shapes = next
	}
	s.markInitialized(dtype, inputShapes)
	return nil
}

// Forward applies all children in sequence.
func (s *Sequential) Forward(ctx *ForwardContext, inputs tensor.NDList) (tensor.NDList, error) {
	out := inputs
	for pair := s.children.Oldest(); pair != nil; pair = pair.Next() {
		next, err := pair.Value.Forward(ctx, out)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pair.Key, err)
		}
		out = next
	}
	return out, nil
}

// Backward propagates gradients through the children in reverse order.
func (s *Sequential) Backward(ctx *ForwardContext, grads tensor.NDList) (tensor.NDList, error) {
	g := grads
	for pair := s.children.Newest(); pair != nil; pair = pair.Prev() {
		next, err := pair.Value.Backward(ctx, g)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pair.Key, err)
		}
		g = next
	}
	return g, nil
}

// Parameters returns all child parameters qualified by child name.
func (s *Sequential) Parameters() *ParameterMap {
	params := NewParameterMap()
	for pair := s.children.Oldest(); pair != nil; pair = pair.Next() {
		childParams := pair.Value.Parameters()
		for p := childParams.Oldest(); p != nil; p = p.Next() {
			params.Set(pair.Key+"."+p.Key, p.Value)
		}
	}
	return params
}

// OutputShapes implements Block.
func (s *Sequential) OutputShapes(inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	shapes := inputShapes
	for pair := s.children.Oldest(); pair != nil; pair = pair.Next() {
		next, err := pair.Value.OutputShapes(shapes)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pair.Key, err)
		}
		shapes = next
	}
	return shapes, nil
}

// Config implements Block.
func (s *Sequential) Config() BlockConfig {
	cfg := BlockConfig{Kind: s.Kind()}
	for pair := s.children.Oldest(); pair != nil; pair = pair.Next() {
		cfg.Children = append(cfg.Children, pair.Value.Config())
	}
	return cfg
}

func decodeSequential(cfg BlockConfig) (Block, error) {
	s := NewSequential()
	for i, childCfg := range cfg.Children {
		child, err := DecodeBlock(childCfg)
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", i+1, err)
		}
		s.Add(child)
	}
	return s, nil
}
