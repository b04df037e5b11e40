package nn

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownBlock is returned when a graph references an unregistered kind.
var ErrUnknownBlock = errors.New("unknown block kind")

// GraphFormatVersion is the version written into graph files.
const GraphFormatVersion = 1

// BlockConfig is the serializable architecture of a block: its kind, its
// scalar attributes and, for containers, its children in order.
type BlockConfig struct {
	Kind     string         `json:"kind"`
	Attrs    map[string]any `json:"attrs,omitempty"`
	Children []BlockConfig  `json:"children,omitempty"`
}

// Int returns an integer attribute. JSON numbers decode as float64, so both
// representations are accepted.
func (c BlockConfig) Int(key string) (int, error) {
	switch v := c.Attrs[key].(type) {
	case int:
		return v, nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%s: attribute %q is not an integer: %v", c.Kind, key, v)
		}
		return int(v), nil
	case nil:
		return 0, fmt.Errorf("%s: missing attribute %q", c.Kind, key)
	default:
		return 0, fmt.Errorf("%s: attribute %q has type %T", c.Kind, key, v)
	}
}

// Bool returns a boolean attribute, false if absent.
func (c BlockConfig) Bool(key string) bool {
	v, _ := c.Attrs[key].(bool)
	return v
}

// String returns a string attribute.
func (c BlockConfig) String(key string) (string, error) {
	v, ok := c.Attrs[key].(string)
	if !ok {
		return "", fmt.Errorf("%s: missing string attribute %q", c.Kind, key)
	}
	return v, nil
}

// BlockFactory rebuilds an uninitialized block from its configuration.
type BlockFactory func(cfg BlockConfig) (Block, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]BlockFactory{}
)

func init() {
	RegisterBlock("Linear", decodeLinear)
	RegisterBlock("Activation", decodeActivation)
	RegisterBlock("Sequential", decodeSequential)
}

// RegisterBlock makes a block kind available to DecodeBlock. Registering
// the same kind twice replaces the factory.
func RegisterBlock(kind string, factory BlockFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = factory
}

// RegisteredKinds returns the sorted registered block kinds.
func RegisteredKinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// DecodeBlock rebuilds an uninitialized block from cfg.
func DecodeBlock(cfg BlockConfig) (Block, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlock, cfg.Kind)
	}
	return factory(cfg)
}

// Graph is the persisted network description: the block architecture plus
// the input descriptors it was initialized with.
type Graph struct {
	Version int         `json:"version"`
	Block   BlockConfig `json:"block"`
	Inputs  []DataDesc  `json:"inputs,omitempty"`
	Outputs []string    `json:"outputs,omitempty"`
}

// EncodeGraph serializes the architecture of b.
func EncodeGraph(b Block, outputs []string) ([]byte, error) {
	g := Graph{
		Version: GraphFormatVersion,
		Block:   b.Config(),
		Inputs:  b.DescribeInput(),
		Outputs: outputs,
	}
	return json.MarshalIndent(g, "", "  ")
}

// DecodeGraph parses a graph and rebuilds its (uninitialized) block.
func DecodeGraph(data []byte) (*Graph, Block, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, nil, fmt.Errorf("parse graph: %w", err)
	}
	if g.Version < 1 || g.Version > GraphFormatVersion {
		return nil, nil, fmt.Errorf("unsupported graph version %d", g.Version)
	}
	b, err := DecodeBlock(g.Block)
	if err != nil {
		return nil, nil, err
	}
	return &g, b, nil
}
