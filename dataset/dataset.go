// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package dataset provides samplers and datasets that drive training and
// batch inference.
//
// A Sampler yields record indices. SequenceSampler visits 0..size-1 once
// in ascending order and cannot be restarted:
//
//	s := dataset.NewSequenceSampler(3)
//	for s.HasNext() {
//	    i, _ := s.Next() // 0, 1, 2
//	}
//	_, err := s.Next() // dataset.ErrNoMoreElements
//
// BatchSampler groups indices, and Batches stacks the records of each group
// into tensors.
package dataset

import (
	"iter"

	"github.com/born-ml/forge/internal/dataset"
	"github.com/born-ml/forge/internal/tensor"
)

// Samplers

// Sampler yields record indices.
type Sampler = dataset.Sampler

// SequenceSampler visits indices in ascending order.
type SequenceSampler = dataset.SequenceSampler

// NewSequenceSampler visits 0..size-1. Negative sizes give an empty sampler.
func NewSequenceSampler(size int64) *SequenceSampler {
	return dataset.NewSequenceSampler(size)
}

// NewUnboundedSequenceSampler visits every non-negative int64.
func NewUnboundedSequenceSampler() *SequenceSampler {
	return dataset.NewUnboundedSequenceSampler()
}

// RandomSampler visits a random permutation of 0..size-1.
type RandomSampler = dataset.RandomSampler

// NewRandomSampler creates a RandomSampler. Seed 0 picks a random seed.
func NewRandomSampler(size, seed int64) (*RandomSampler, error) {
	return dataset.NewRandomSampler(size, seed)
}

// BatchSampler groups the indices of another sampler.
type BatchSampler = dataset.BatchSampler

// NewBatchSampler creates a BatchSampler over s.
func NewBatchSampler(s Sampler, batchSize int, dropLast bool) (*BatchSampler, error) {
	return dataset.NewBatchSampler(s, batchSize, dropLast)
}

// All returns an iterator over the remaining indices of s.
func All(s Sampler) iter.Seq[int64] {
	return dataset.All(s)
}

// Datasets

// Dataset is a random-access collection of records.
type Dataset = dataset.Dataset

// Record is one dataset entry.
type Record = dataset.Record

// ArrayDataset serves float32 rows.
type ArrayDataset = dataset.ArrayDataset

// NewArrayDataset creates a dataset from feature rows and optional label
// rows.
func NewArrayDataset(features, labels [][]float32) (*ArrayDataset, error) {
	return dataset.NewArrayDataset(features, labels)
}

// Batches

// Batch is a group of stacked records.
type Batch = dataset.Batch

// Batchifier combines records into batch tensors.
type Batchifier = dataset.Batchifier

// StackBatchifier stacks records along a new leading dimension.
type StackBatchifier = dataset.StackBatchifier

// GetBatch loads and stacks the records at indices.
func GetBatch(parent *tensor.Manager, ds Dataset, indices []int64, bf Batchifier) (*Batch, error) {
	return dataset.GetBatch(parent, ds, indices, bf)
}

// Batches iterates over the batches produced by bs.
func Batches(parent *tensor.Manager, ds Dataset, bs *BatchSampler, bf Batchifier) iter.Seq2[*Batch, error] {
	return dataset.Batches(parent, ds, bs, bf)
}

// Errors returned by samplers and datasets.
var (
	ErrNoMoreElements  = dataset.ErrNoMoreElements
	ErrIndexOutOfRange = dataset.ErrIndexOutOfRange
)
