// Package dataset provides the samplers, datasets and batching used to feed
// blocks during training and batch inference.
//
// A Sampler is a single-pass cursor over dataset indices. Samplers are not
// restartable and not safe for concurrent use: create a new one per pass
// and per consumer.
package dataset

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"math/rand"
)

// ErrNoMoreElements is returned by Next once a sampler is exhausted.
var ErrNoMoreElements = errors.New("no more elements")

// Sampler enumerates dataset indices in [0, Size()).
type Sampler interface {
	// HasNext reports whether Next will return another index.
	HasNext() bool

	// Next returns the next index or ErrNoMoreElements.
	Next() (int64, error)

	// Size returns the bound the sampler was created with.
	Size() int64
}

// SequenceSampler visits 0, 1, ..., size-1 once in ascending order.
type SequenceSampler struct {
	size    int64
	current int64
}

// NewSequenceSampler creates a sampler over [0, size). A negative size is
// treated as 0.
func NewSequenceSampler(size int64) *SequenceSampler {
	return &SequenceSampler{size: max(size, 0)}
}

// NewUnboundedSequenceSampler creates a sampler for sources of unknown
// length. Its size is math.MaxInt64.
func NewUnboundedSequenceSampler() *SequenceSampler {
	return &SequenceSampler{size: math.MaxInt64}
}

// HasNext implements Sampler.
func (s *SequenceSampler) HasNext() bool {
	return s.current < s.size
}

// Next implements Sampler.
func (s *SequenceSampler) Next() (int64, error) {
	if !s.HasNext() {
		return 0, ErrNoMoreElements
	}
	i := s.current
	s.current++
	return i, nil
}

// Size implements Sampler.
func (s *SequenceSampler) Size() int64 {
	return s.size
}

// RandomSampler visits every index in [0, size) once in a random order.
type RandomSampler struct {
	perm    []int
	current int
}

// NewRandomSampler creates a shuffled sampler. A seed of 0 draws from the
// global source; any other seed gives a reproducible order.
func NewRandomSampler(size int64, seed int64) (*RandomSampler, error) {
	if size < 0 {
		size = 0
	}
	if uint64(size) > uint64(math.MaxInt32) {
		return nil, fmt.Errorf("random sampler: size %d is too large to permute", size)
	}
	var perm []int
	if seed == 0 {
		perm = rand.Perm(int(size)) //nolint:gosec // shuffling, not security-critical
	} else {
		perm = rand.New(rand.NewSource(seed)).Perm(int(size)) //nolint:gosec // deterministic seed for reproducibility
	}
	return &RandomSampler{perm: perm}, nil
}

// HasNext implements Sampler.
func (s *RandomSampler) HasNext() bool {
	return s.current < len(s.perm)
}

// Next implements Sampler.
func (s *RandomSampler) Next() (int64, error) {
	if !s.HasNext() {
		return 0, ErrNoMoreElements
	}
	i := s.perm[s.current]
	s.current++
	return int64(i), nil
}

// Size implements Sampler.
func (s *RandomSampler) Size() int64 {
	return int64(len(s.perm))
}

// All returns an iterator over the remaining indices of s.
//
//	for i := range dataset.All(dataset.NewSequenceSampler(3)) {
//	    fmt.Println(i) // 0, 1, 2
//	}
func All(s Sampler) iter.Seq[int64] {
	return func(yield func(int64) bool) {
		for s.HasNext() {
			i, err := s.Next()
			if err != nil || !yield(i) {
				return
			}
		}
	}
}

// BatchSampler groups the indices of an underlying sampler into batches.
type BatchSampler struct {
	sampler   Sampler
	batchSize int
	dropLast  bool
	pending   []int64
}

// NewBatchSampler creates a BatchSampler. When dropLast is set a final batch
// smaller than batchSize is discarded.
func NewBatchSampler(s Sampler, batchSize int, dropLast bool) (*BatchSampler, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	return &BatchSampler{sampler: s, batchSize: batchSize, dropLast: dropLast}, nil
}

// HasNext reports whether another batch is available.
func (b *BatchSampler) HasNext() bool {
	b.fill()
	if b.dropLast {
		return len(b.pending) == b.batchSize
	}
	return len(b.pending) > 0
}

// Next returns the next batch of indices or ErrNoMoreElements.
func (b *BatchSampler) Next() ([]int64, error) {
	if !b.HasNext() {
		return nil, ErrNoMoreElements
	}
	batch := b.pending
	b.pending = nil
	return batch, nil
}

// BatchSize returns the configured batch size.
func (b *BatchSampler) BatchSize() int {
	return b.batchSize
}

func (b *BatchSampler) fill() {
	for len(b.pending) < b.batchSize && b.sampler.HasNext() {
		i, err := b.sampler.Next()
		if err != nil {
			return
		}
		b.pending = append(b.pending, i)
	}
}
