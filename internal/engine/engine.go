// Package engine resolves the compute engine that creates Forge models.
//
// Engines register themselves by name. Instance returns the process-wide
// engine selected by FORGE_ENGINE, resolved once on first use.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/born-ml/forge/internal/envconfig"
	"github.com/born-ml/forge/internal/logging"
	"github.com/born-ml/forge/internal/model"
	"github.com/born-ml/forge/internal/tensor"
)

// Common errors.
var (
	ErrUnknownEngine     = errors.New("unknown engine")
	ErrUnsupportedDevice = tensor.ErrUnsupportedDevice
)

// DeviceInfo describes a device an engine can compute on.
type DeviceInfo struct {
	Device      tensor.Device
	Description string
	Cores       int
	Features    []string
}

// Engine creates models bound to one of its devices.
type Engine interface {
	// Name returns the registry name, e.g. "go".
	Name() string

	// Version returns the engine version.
	Version() string

	// DefaultDevice returns the device used when none is requested.
	DefaultDevice() tensor.Device

	// Devices lists the devices the engine can use.
	Devices() []DeviceInfo

	// NewModel creates an empty model on device.
	NewModel(name string, device tensor.Device, opts ...model.Option) (*model.Model, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Engine{}

	instanceOnce sync.Once
	instance     Engine
	instanceErr  error

	logger = logging.Default().WithComponent("engine")
)

// Register makes e available under e.Name(), replacing any engine of the
// same name.
func Register(e Engine) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[e.Name()] = e
}

// Get returns the engine registered under name.
func Get(name string) (Engine, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	return e, nil
}

// Names returns the sorted names of all registered engines.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Instance returns the process-wide engine named by FORGE_ENGINE. The
// choice is made on the first call and kept for the life of the process.
func Instance() (Engine, error) {
	instanceOnce.Do(func() {
		name := envconfig.Engine()
		instance, instanceErr = Get(name)
		if instanceErr == nil {
			logger.Debug("engine selected", "engine", name, "version", instance.Version())
		}
	})
	return instance, instanceErr
}

// NewModel creates a model with the process-wide engine on its default
// device.
func NewModel(name string, opts ...model.Option) (*model.Model, error) {
	e, err := Instance()
	if err != nil {
		return nil, err
	}
	return e.NewModel(name, e.DefaultDevice(), opts...)
}
