// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine selects the compute engine that creates models.
//
// The engine is chosen once per process from FORGE_ENGINE (default "go"):
//
//	m, err := engine.NewModel("classifier")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
package engine

import (
	"github.com/born-ml/forge/internal/engine"
	"github.com/born-ml/forge/internal/model"
)

// Engine creates models for a family of devices.
type Engine = engine.Engine

// DeviceInfo describes one device an engine can use.
type DeviceInfo = engine.DeviceInfo

// GoEngine is the pure-Go CPU engine.
type GoEngine = engine.GoEngine

// Register adds an engine to the registry.
func Register(e Engine) {
	engine.Register(e)
}

// Get returns the registered engine called name.
func Get(name string) (Engine, error) {
	return engine.Get(name)
}

// Names returns the sorted names of registered engines.
func Names() []string {
	return engine.Names()
}

// Instance returns the process-wide engine.
func Instance() (Engine, error) {
	return engine.Instance()
}

// NewModel creates a model with the process-wide engine on its default
// device.
func NewModel(name string, opts ...model.Option) (*model.Model, error) {
	return engine.NewModel(name, opts...)
}

// Errors returned by engines.
var (
	ErrUnknownEngine     = engine.ErrUnknownEngine
	ErrUnsupportedDevice = engine.ErrUnsupportedDevice
)
