// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the tensor types used by Forge models.
//
// # Overview
//
// A RawTensor is a typed byte buffer with a shape, a data type and a device.
// Tensors are owned by a Manager, a tree of resource scopes: closing a
// manager releases every tensor it owns and closes its children.
//
//   - DataType: Float32, Float64, Int32, Int64, Uint8, Bool, Float16, Int8
//   - Shape: dimensions, with UnknownDim (-1) allowed in descriptors only
//   - Device: cpu, cuda:N and other accelerator names
//   - NDList: an ordered list of tensors passed between blocks
//
// # Basic Usage
//
//	import "github.com/born-ml/forge/tensor"
//
//	func main() {
//	    m := tensor.NewManager(tensor.CPUDevice(), tensor.WithMemoryLimit(64<<20))
//	    defer m.Close()
//
//	    x, _ := m.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
//	    y, _ := tensor.Cast(x, tensor.Float16)
//	    defer y.Release()
//	}
//
// # Sub-managers
//
// Short-lived work such as a single prediction runs in a sub-manager so that
// intermediate tensors are freed together:
//
//	scratch, _ := m.NewSubManager()
//	defer scratch.Close()
package tensor
