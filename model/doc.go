// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package model provides the Model lifecycle: loading and saving, metadata,
// side artifacts, precision casting, and predictor and trainer factories.
//
// # Lifecycle
//
// A Model starts empty. Load reads a graph file and a parameter file from a
// model directory, or SetBlock installs a block built in code. Close
// releases every tensor the model owns; a closed model rejects further use.
//
//	m, err := engine.NewModel("mlp")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	if err := m.Load("models/mlp", model.LoadOptions{}); err != nil {
//	    log.Fatal(err)
//	}
//
// # Inference
//
//	p, err := model.NewPredictor[[]float32, translate.Classifications](m, &translate.ClassificationTranslator{TopK: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//	top, err := p.Predict(ctx, features)
//
// # Artifacts
//
// Any other file in the model directory is an artifact. GetArtifact parses
// it at most once and caches the result:
//
//	labels, err := model.GetArtifact(m, "synset.txt", translate.ReadSynset)
package model
