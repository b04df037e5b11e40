package dataset

import (
	"errors"
	"fmt"

	"github.com/born-ml/forge/internal/tensor"
)

// ErrIndexOutOfRange is returned by Dataset.Get for an index outside [0, Len()).
var ErrIndexOutOfRange = errors.New("index out of range")

// Record is one dataset element: model inputs and, for supervised data,
// the matching labels.
type Record struct {
	Data   tensor.NDList
	Labels tensor.NDList
}

// Dataset is a random-access collection of records.
type Dataset interface {
	// Len returns the number of records.
	Len() int64

	// Get creates the tensors of record index in m.
	Get(m *tensor.Manager, index int64) (Record, error)
}

// ArrayDataset serves float32 feature rows and optional label rows held in
// memory.
type ArrayDataset struct {
	features [][]float32
	labels   [][]float32
}

// NewArrayDataset creates a dataset from equally sized feature rows. labels
// may be nil; otherwise it needs one equally sized row per feature row.
func NewArrayDataset(features, labels [][]float32) (*ArrayDataset, error) {
	if err := checkRows("features", features); err != nil {
		return nil, err
	}
	if labels != nil {
		if len(labels) != len(features) {
			return nil, fmt.Errorf("%w: %d feature rows, %d label rows", tensor.ErrShapeMismatch, len(features), len(labels))
		}
		if err := checkRows("labels", labels); err != nil {
			return nil, err
		}
	}
	return &ArrayDataset{features: features, labels: labels}, nil
}

func checkRows(what string, rows [][]float32) error {
	for i, row := range rows {
		if len(row) == 0 {
			return fmt.Errorf("%s row %d is empty", what, i)
		}
		if len(row) != len(rows[0]) {
			return fmt.Errorf("%w: %s row %d has %d values, row 0 has %d",
				tensor.ErrShapeMismatch, what, i, len(row), len(rows[0]))
		}
	}
	return nil
}

// Len implements Dataset.
func (d *ArrayDataset) Len() int64 {
	return int64(len(d.features))
}

// Get implements Dataset.
func (d *ArrayDataset) Get(m *tensor.Manager, index int64) (Record, error) {
	if index < 0 || index >= d.Len() {
		return Record{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, d.Len())
	}
	row := d.features[index]
	x, err := m.FromFloat32(row, tensor.Shape{len(row)})
	if err != nil {
		return Record{}, err
	}
	rec := Record{Data: tensor.NDList{x}}
	if d.labels != nil {
		label := d.labels[index]
		y, err := m.FromFloat32(label, tensor.Shape{len(label)})
		if err != nil {
			return Record{}, err
		}
		rec.Labels = tensor.NDList{y}
	}
	return rec, nil
}
