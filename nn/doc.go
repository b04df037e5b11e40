// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the blocks that make up a Forge model.
//
// # Overview
//
// This package contains:
//   - Block: the contract every layer implements
//   - Layers: Linear, Activation (ReLU, Sigmoid, Tanh, SiLU, GELU)
//   - Containers: Sequential
//   - Loss functions: L2Loss, SoftmaxCrossEntropyLoss
//   - Initialization: Xavier, Normal, Constant
//   - Graph files: EncodeGraph, DecodeGraph and the block registry
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/forge/nn"
//	    "github.com/born-ml/forge/tensor"
//	)
//
//	func main() {
//	    m := tensor.NewManager(tensor.CPUDevice())
//	    defer m.Close()
//
//	    net := nn.NewSequential(
//	        nn.NewLinear(128, true),
//	        nn.NewActivation(nn.ReLU),
//	        nn.NewLinear(10, true),
//	    )
//	    nn.SetInitializer(net, nn.NewXavier(42))
//	    if err := net.Initialize(m, tensor.Float32, tensor.Shape{1, 784}); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Custom blocks
//
// Blocks registered with RegisterBlock can be rebuilt from graph files:
//
//	nn.RegisterBlock("Scale", func(cfg nn.BlockConfig) (nn.Block, error) {
//	    return newScale(cfg)
//	})
package nn
