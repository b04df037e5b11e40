package tensor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestManager_CreateAndClose tests that Close releases owned tensors.
func TestManager_CreateAndClose(t *testing.T) {
	m := NewManager(CPUDevice(), WithName("test"))

	x, err := m.Create(Shape{2, 3}, Float32)
	require.NoError(t, err)
	assert.Same(t, m, x.Manager())
	assert.Equal(t, 1, m.NumTensors())
	assert.Equal(t, int64(24), m.MemoryUsage())

	require.NoError(t, m.Close())
	assert.True(t, x.Released())
	assert.False(t, m.IsOpen())
	assert.Nil(t, x.Manager())

	// Second close is a no-op.
	require.NoError(t, m.Close())
}

// TestManager_ClosedRejectsAllocation tests use-after-close.
func TestManager_ClosedRejectsAllocation(t *testing.T) {
	m := NewManager(CPUDevice())
	require.NoError(t, m.Close())

	_, err := m.Create(Shape{1}, Float32)
	assert.ErrorIs(t, err, ErrManagerClosed)

	_, err = m.NewSubManager()
	assert.ErrorIs(t, err, ErrManagerClosed)
}

// TestManager_SubManagerLifecycle tests that closing a parent closes children.
func TestManager_SubManagerLifecycle(t *testing.T) {
	root := NewManager(CPUDevice())
	child, err := root.NewSubManager()
	require.NoError(t, err)
	grandchild, err := child.NewSubManager()
	require.NoError(t, err)

	assert.Same(t, root, child.Parent())
	assert.NotEqual(t, root.UID(), child.UID())

	y, err := grandchild.FromFloat32([]float32{1, 2}, Shape{2})
	require.NoError(t, err)
	assert.Equal(t, int64(8), root.MemoryUsage())

	require.NoError(t, root.Close())
	assert.False(t, child.IsOpen())
	assert.False(t, grandchild.IsOpen())
	assert.True(t, y.Released())
}

// TestManager_ChildCloseDetachesFromParent tests that a closed child no longer
// counts against its parent.
func TestManager_ChildCloseDetachesFromParent(t *testing.T) {
	root := NewManager(CPUDevice())
	defer root.Close()

	child, err := root.NewSubManager()
	require.NoError(t, err)
	_, err = child.Create(Shape{4}, Float64)
	require.NoError(t, err)
	assert.Equal(t, int64(32), root.MemoryUsage())

	require.NoError(t, child.Close())
	assert.Equal(t, int64(0), root.MemoryUsage())
	assert.True(t, root.IsOpen())
}

// TestManager_Attach tests ownership transfer between managers.
func TestManager_Attach(t *testing.T) {
	root := NewManager(CPUDevice())
	defer root.Close()
	scratch, err := root.NewSubManager()
	require.NoError(t, err)

	x, err := scratch.Create(Shape{2}, Float32)
	require.NoError(t, err)

	require.NoError(t, root.Attach(x))
	assert.Same(t, root, x.Manager())
	assert.Equal(t, 0, scratch.NumTensors())

	require.NoError(t, scratch.Close())
	assert.False(t, x.Released(), "attached tensor must survive the old owner")
}

// TestManager_Detach tests that detached tensors survive Close.
func TestManager_Detach(t *testing.T) {
	m := NewManager(CPUDevice())
	x, err := m.Create(Shape{3}, Int32)
	require.NoError(t, err)

	m.Detach(x)
	require.NoError(t, m.Close())
	assert.False(t, x.Released())
	x.Release()
	assert.True(t, x.Released())
}

// TestManager_MemoryLimit tests the shared memory budget.
func TestManager_MemoryLimit(t *testing.T) {
	root := NewManager(CPUDevice(), WithMemoryLimit(64))
	defer root.Close()

	_, err := root.Create(Shape{8}, Float32) // 32 bytes
	require.NoError(t, err)

	child, err := root.NewSubManager()
	require.NoError(t, err)
	_, err = child.Create(Shape{8}, Float32) // 32 bytes, exactly at the limit
	require.NoError(t, err)

	_, err = child.Create(Shape{1}, Float32)
	require.ErrorIs(t, err, ErrMemoryLimit)

	require.NoError(t, child.Close())
	_, err = root.Create(Shape{8}, Float32)
	require.NoError(t, err, "closing a child must return its bytes to the budget")
}

// TestManager_ConcurrentSubManagers tests concurrent child creation and close.
func TestManager_ConcurrentSubManagers(t *testing.T) {
	root := NewManager(CPUDevice())
	defer root.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := root.NewSubManager()
			if err != nil {
				return
			}
			_, _ = sub.Create(Shape{4}, Float32)
			_ = sub.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), root.MemoryUsage())
}

// TestManager_AttachFailureKeepsOwner tests that a rejected transfer leaves
// the tensor with its previous manager.
func TestManager_AttachFailureKeepsOwner(t *testing.T) {
	src := NewManager(CPUDevice())
	defer src.Close()
	x, err := src.Create(Shape{4}, Float32)
	require.NoError(t, err)

	small := NewManager(CPUDevice(), WithMemoryLimit(8))
	defer small.Close()
	assert.ErrorIs(t, small.Attach(x), ErrMemoryLimit)
	assert.Same(t, src, x.Manager())
	assert.Equal(t, 1, src.NumTensors())
	assert.Equal(t, int64(16), src.MemoryUsage())
	assert.Zero(t, small.MemoryUsage())

	closed := NewManager(CPUDevice())
	require.NoError(t, closed.Close())
	assert.ErrorIs(t, closed.Attach(x), ErrManagerClosed)
	assert.Same(t, src, x.Manager())

	require.NoError(t, src.Close())
	assert.True(t, x.Released())
}
