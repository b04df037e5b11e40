// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimization algorithms for training Forge models.
//
// # Overview
//
// This package contains:
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation with bias correction
//   - Optimizer interface for custom optimizers
//
// Optimizers are usually handed to a trainer through model.TrainingConfig:
//
//	cfg := model.DefaultTrainingConfig()
//	cfg.Optimizer = optim.NewAdam(optim.AdamConfig{LR: 0.001})
//	trainer, err := m.NewTrainer(cfg)
//
// # Manual Training Loop
//
//	for _, batch := range batches {
//	    // 1. Forward pass and loss
//	    // 2. Backward pass accumulates parameter gradients
//
//	    // 3. Update parameters
//	    if err := optimizer.Step(block.Parameters()); err != nil {
//	        return err
//	    }
//
//	    // 4. Zero gradients
//	    optim.ZeroGrad(block.Parameters())
//	}
package optim
