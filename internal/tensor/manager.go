package tensor

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// memoryBudget is shared by every manager in one tree.
type memoryBudget struct {
	limit int64
	sem   *semaphore.Weighted // nil if unlimited
	used  atomic.Int64
}

func newMemoryBudget(limit int64) *memoryBudget {
	b := &memoryBudget{limit: limit}
	if limit > 0 {
		b.sem = semaphore.NewWeighted(limit)
	}
	return b
}

func (b *memoryBudget) tryAcquire(bytes int64) bool {
	if bytes <= 0 {
		return true
	}
	if b.sem != nil && !b.sem.TryAcquire(bytes) {
		return false
	}
	b.used.Add(bytes)
	return true
}

func (b *memoryBudget) release(bytes int64) {
	if bytes <= 0 {
		return
	}
	if b.sem != nil {
		b.sem.Release(bytes)
	}
	b.used.Add(-bytes)
}

// ManagerOption configures a root Manager.
type ManagerOption func(*managerConfig)

type managerConfig struct {
	name        string
	memoryLimit int64
	logger      *slog.Logger
}

// WithName sets a human-readable manager name used in logs.
func WithName(name string) ManagerOption {
	return func(c *managerConfig) { c.name = name }
}

// WithMemoryLimit caps the bytes all managers in the tree may hold.
// Zero or negative means unlimited.
func WithMemoryLimit(bytes int64) ManagerOption {
	return func(c *managerConfig) { c.memoryLimit = bytes }
}

// WithLogger sets the logger for lifecycle events.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(c *managerConfig) { c.logger = logger }
}

// Manager owns tensors and child managers. Closing a manager releases every
// tensor it owns and closes its children, so a manager must outlive every
// object that borrows it.
//
// Managers form a tree sharing a single memory budget:
//
//	root := tensor.NewManager(tensor.CPUDevice(), tensor.WithMemoryLimit(64<<20))
//	defer root.Close()
//	scratch, _ := root.NewSubManager()
//	x, _ := scratch.Create(tensor.Shape{2, 3}, tensor.Float32)
//	scratch.Close() // releases x
type Manager struct {
	uid    string
	name   string
	device Device
	parent *Manager
	budget *memoryBudget
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	used     int64
	tensors  map[*RawTensor]struct{}
	children map[string]*Manager
}

// NewManager creates a root manager for the given device.
func NewManager(device Device, opts ...ManagerOption) *Manager {
	cfg := managerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	return &Manager{
		uid:      uuid.NewString(),
		name:     cfg.name,
		device:   device,
		budget:   newMemoryBudget(cfg.memoryLimit),
		logger:   cfg.logger,
		tensors:  make(map[*RawTensor]struct{}),
		children: make(map[string]*Manager),
	}
}

// UID returns the unique identifier of the manager.
func (m *Manager) UID() string {
	return m.uid
}

// Name returns the manager name (may be empty).
func (m *Manager) Name() string {
	return m.name
}

// Device returns the device tensors are allocated on.
func (m *Manager) Device() Device {
	return m.device
}

// Parent returns the parent manager or nil for a root.
func (m *Manager) Parent() *Manager {
	return m.parent
}

// IsOpen reports whether Close has not been called yet.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

// NewSubManager creates a child manager sharing device and memory budget.
func (m *Manager) NewSubManager() (*Manager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}

	child := &Manager{
		uid:      uuid.NewString(),
		name:     m.name,
		device:   m.device,
		parent:   m,
		budget:   m.budget,
		logger:   m.logger,
		tensors:  make(map[*RawTensor]struct{}),
		children: make(map[string]*Manager),
	}
	m.children[child.uid] = child
	return child, nil
}

// Create allocates a zero-filled tensor owned by this manager.
func (m *Manager) Create(shape Shape, dtype DataType) (*RawTensor, error) {
	raw, err := NewRaw(shape, dtype, m.device)
	if err != nil {
		return nil, err
	}
	if err := m.adopt(raw); err != nil {
		raw.Release()
		return nil, err
	}
	return raw, nil
}

// FromFloat32 allocates a Float32 tensor holding a copy of data.
func (m *Manager) FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	raw, err := FromFloat32(data, shape, m.device)
	if err != nil {
		return nil, err
	}
	if err := m.adopt(raw); err != nil {
		raw.Release()
		return nil, err
	}
	return raw, nil
}

// Attach transfers ownership of t to this manager. On error t stays with
// its previous owner.
func (m *Manager) Attach(t *RawTensor) error {
	if t == nil {
		return fmt.Errorf("attach: nil tensor")
	}
	if t.owner == m {
		return nil
	}
	old := t.owner
	if old != nil {
		old.forget(t)
	}
	if err := m.adopt(t); err != nil {
		if old != nil {
			if rerr := old.adopt(t); rerr != nil {
				m.logger.Warn("attach: tensor left without owner", "uid", m.uid, "error", rerr)
			}
		}
		return err
	}
	return nil
}

// AttachAll attaches every tensor in the list.
func (m *Manager) AttachAll(list NDList) error {
	for _, t := range list {
		if err := m.Attach(t); err != nil {
			return err
		}
	}
	return nil
}

// Detach removes t from this manager without releasing it. The caller
// becomes responsible for calling Release.
func (m *Manager) Detach(t *RawTensor) {
	if t == nil || t.owner != m {
		return
	}
	m.forget(t)
}

// NumTensors returns the number of tensors owned directly by the manager.
func (m *Manager) NumTensors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tensors)
}

// MemoryUsage returns the bytes held by this manager and its descendants.
func (m *Manager) MemoryUsage() int64 {
	m.mu.Lock()
	total := m.used
	children := make([]*Manager, 0, len(m.children))
	for _, c := range m.children {
		children = append(children, c)
	}
	m.mu.Unlock()

	for _, c := range children {
		total += c.MemoryUsage()
	}
	return total
}

// Close releases all owned tensors and closes child managers.
// It is safe to call Close multiple times.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	children := make([]*Manager, 0, len(m.children))
	for _, c := range m.children {
		children = append(children, c)
	}
	owned := make([]*RawTensor, 0, len(m.tensors))
	for t := range m.tensors {
		owned = append(owned, t)
	}
	used := m.used
	m.used = 0
	m.tensors = nil
	m.children = nil
	m.mu.Unlock()

	for _, c := range children {
		_ = c.Close()
	}
	for _, t := range owned {
		t.owner = nil
		t.Release()
	}
	m.budget.release(used)

	if m.parent != nil {
		m.parent.removeChild(m.uid)
	}

	m.logger.Debug("manager closed", "uid", m.uid, "name", m.name, "tensors", len(owned), "children", len(children))
	return nil
}

func (m *Manager) adopt(t *RawTensor) error {
	bytes := int64(t.ByteSize())

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	if !m.budget.tryAcquire(bytes) {
		return fmt.Errorf("%w: need %d bytes, %d of %d in use",
			ErrMemoryLimit, bytes, m.budget.used.Load(), m.budget.limit)
	}
	m.tensors[t] = struct{}{}
	m.used += bytes
	t.owner = m
	return nil
}

func (m *Manager) forget(t *RawTensor) {
	bytes := int64(t.ByteSize())

	m.mu.Lock()
	if _, ok := m.tensors[t]; ok {
		delete(m.tensors, t)
		m.used -= bytes
		m.budget.release(bytes)
	}
	m.mu.Unlock()
	t.owner = nil
}

func (m *Manager) removeChild(uid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.children != nil {
		delete(m.children, uid)
	}
}
