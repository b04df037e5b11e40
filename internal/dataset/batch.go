package dataset

import (
	"fmt"
	"iter"

	"github.com/born-ml/forge/internal/parallel"
	"github.com/born-ml/forge/internal/tensor"
)

// Batch is a group of records stacked along a new leading dimension. Its
// tensors live in Manager, which the consumer closes when done.
type Batch struct {
	Manager *tensor.Manager
	Data    tensor.NDList
	Labels  tensor.NDList
	Indices []int64
}

// Size returns the number of records in the batch.
func (b *Batch) Size() int {
	return len(b.Indices)
}

// Close releases every tensor of the batch.
func (b *Batch) Close() error {
	return b.Manager.Close()
}

// Batchifier combines the per-record lists at one position into batch
// tensors.
type Batchifier interface {
	Batchify(m *tensor.Manager, lists []tensor.NDList) (tensor.NDList, error)
}

// StackBatchifier stacks tensors of identical shape and type, turning n
// tensors of shape (d...) into one tensor of shape (n, d...).
type StackBatchifier struct{}

// Batchify implements Batchifier.
func (StackBatchifier) Batchify(m *tensor.Manager, lists []tensor.NDList) (tensor.NDList, error) {
	if len(lists) == 0 {
		return nil, nil
	}
	width := len(lists[0])
	out := make(tensor.NDList, 0, width)
	for j := 0; j < width; j++ {
		first := lists[0][j]
		shape := append(tensor.Shape{len(lists)}, first.Shape()...)
		stacked, err := m.Create(shape, first.DType())
		if err != nil {
			return nil, err
		}
		for i, list := range lists {
			if len(list) != width {
				return nil, fmt.Errorf("%w: record %d has %d tensors, record 0 has %d",
					tensor.ErrShapeMismatch, i, len(list), width)
			}
			if t := list[j]; t.DType() != first.DType() || !t.Shape().Equal(first.Shape()) {
				return nil, fmt.Errorf("%w: cannot stack %s with %s", tensor.ErrShapeMismatch, t, first)
			}
		}
		dst := stacked.Data()
		size := first.ByteSize()
		parallel.For(len(lists), func(i int) {
			copy(dst[i*size:(i+1)*size], lists[i][j].Data()[:size])
		}, parallel.DefaultConfig())
		out = append(out, stacked)
	}
	return out, nil
}

// GetBatch loads the records at indices into a new sub-manager of parent
// and stacks them with bf (StackBatchifier if nil).
func GetBatch(parent *tensor.Manager, ds Dataset, indices []int64, bf Batchifier) (*Batch, error) {
	if bf == nil {
		bf = StackBatchifier{}
	}
	m, err := parent.NewSubManager()
	if err != nil {
		return nil, err
	}

	data := make([]tensor.NDList, 0, len(indices))
	labels := make([]tensor.NDList, 0, len(indices))
	for _, idx := range indices {
		rec, err := ds.Get(m, idx)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("record %d: %w", idx, err)
		}
		data = append(data, rec.Data)
		if len(rec.Labels) > 0 {
			labels = append(labels, rec.Labels)
		}
	}
	if len(labels) != 0 && len(labels) != len(data) {
		_ = m.Close()
		return nil, fmt.Errorf("batch mixes labelled and unlabelled records")
	}

	b := &Batch{Manager: m, Indices: indices}
	if b.Data, err = bf.Batchify(m, data); err != nil {
		_ = m.Close()
		return nil, err
	}
	if b.Labels, err = bf.Batchify(m, labels); err != nil {
		_ = m.Close()
		return nil, err
	}

	// The per-record tensors are no longer needed once stacked.
	for _, lists := range [][]tensor.NDList{data, labels} {
		for _, list := range lists {
			for _, t := range list {
				m.Detach(t)
				t.Release()
			}
		}
	}
	return b, nil
}

// Batches iterates over the batches produced by bs. Each batch must be
// closed by the consumer. Iteration stops after the first error.
//
//	bs, _ := dataset.NewBatchSampler(dataset.NewSequenceSampler(ds.Len()), 32, false)
//	for batch, err := range dataset.Batches(manager, ds, bs, nil) {
//	    if err != nil {
//	        return err
//	    }
//	    train(batch)
//	    batch.Close()
//	}
func Batches(parent *tensor.Manager, ds Dataset, bs *BatchSampler, bf Batchifier) iter.Seq2[*Batch, error] {
	return func(yield func(*Batch, error) bool) {
		for bs.HasNext() {
			indices, err := bs.Next()
			if err != nil {
				yield(nil, err)
				return
			}
			b, err := GetBatch(parent, ds, indices, bf)
			if !yield(b, err) || err != nil {
				return
			}
		}
	}
}
