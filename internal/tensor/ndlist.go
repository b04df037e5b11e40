package tensor

import "strings"

// NDList is an ordered list of tensors passed between blocks, translators
// and losses. Position matters: element i binds to input i of a graph.
type NDList []*RawTensor

// Head returns the first tensor or nil for an empty list.
func (l NDList) Head() *RawTensor {
	if len(l) == 0 {
		return nil
	}
	return l[0]
}

// Shapes returns the shapes of all tensors in order.
func (l NDList) Shapes() []Shape {
	shapes := make([]Shape, len(l))
	for i, t := range l {
		shapes[i] = t.Shape()
	}
	return shapes
}

// Release releases every tensor in the list.
func (l NDList) Release() {
	for _, t := range l {
		if t != nil {
			t.Release()
		}
	}
}

// String joins the tensor descriptions.
func (l NDList) String() string {
	parts := make([]string, len(l))
	for i, t := range l {
		parts[i] = t.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
