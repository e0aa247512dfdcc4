package gpu

import (
	"github.com/ggems/ggems/internal/metrics"
	"go.uber.org/zap"
)

// Buffer is a device memory object owned by the module that allocated it.
type Buffer struct {
	Context int
	Flags   MemFlags

	handle   BufferHandle
	released bool
}

// Handle returns the backend buffer handle.
func (b *Buffer) Handle() BufferHandle {
	return b.handle
}

// Allocate creates a buffer of size bytes on the active context, optionally
// initialised from initialData, and adds size to that context's RAM ledger.
// The ledger is left untouched when the backend refuses the allocation.
func (m *Manager) Allocate(initialData []byte, size uint64, flags MemFlags) (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, err := m.requireActive(ComponentMemory, "Allocate")
	if err != nil {
		return nil, err
	}

	handle, err := m.backend.CreateBuffer(ctx.Handle, flags, size, initialData)
	if err := check(ComponentMemory, "Allocate", err); err != nil {
		return nil, err
	}

	b := &Buffer{Context: ctx.Index, Flags: flags, handle: handle}
	m.buffers[handle] = b
	m.ram[ctx.Index] += size
	m.updateRAMGauge(ctx.Index)
	metrics.BufferAllocations.WithLabelValues(contextLabel(ctx.Index)).Inc()

	m.logger.Debug("Buffer allocated",
		zap.Int("context", ctx.Index),
		zap.Uint64("size", size),
		zap.Uint64("used", m.ram[ctx.Index]),
	)
	return b, nil
}

// Deallocate subtracts size from the active context's RAM ledger and releases
// the buffer. size must be the size given to Allocate; it is not verified.
// The ledger is updated before the backend release, so when the release fails
// the buffer stays live but its bytes are no longer counted. Do not retry
// Deallocate after an error: a second call subtracts size again. Close releases
// the buffer.
func (m *Manager) Deallocate(buf *Buffer, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, err := m.requireActive(ComponentMemory, "Deallocate")
	if err != nil {
		return err
	}
	if buf == nil || buf.released {
		return configError(ComponentMemory, "Deallocate", "buffer is not allocated")
	}

	if size > m.ram[ctx.Index] {
		m.logger.Warn("RAM ledger underflow, clamping to zero",
			zap.Int("context", ctx.Index),
			zap.Uint64("size", size),
			zap.Uint64("used", m.ram[ctx.Index]),
		)
		m.ram[ctx.Index] = 0
	} else {
		m.ram[ctx.Index] -= size
	}
	m.updateRAMGauge(ctx.Index)

	err = m.backend.ReleaseBuffer(buf.handle)
	if err := check(ComponentMemory, "Deallocate", err); err != nil {
		return err
	}
	buf.released = true
	delete(m.buffers, buf.handle)
	metrics.BufferDeallocations.WithLabelValues(contextLabel(ctx.Index)).Inc()
	return nil
}

// CleanBuffer zeroes the first size bytes of buf.
func (m *Manager) CleanBuffer(buf *Buffer, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, err := m.requireLiveBuffer("CleanBuffer", buf)
	if err != nil {
		return err
	}
	return check(ComponentMemory, "CleanBuffer", m.backend.FillBuffer(m.queues[ctx.Index], buf.handle, size))
}

// MapBuffer maps the first size bytes of buf for host reading and writing.
// The mapping stays valid until UnmapBuffer.
func (m *Manager) MapBuffer(buf *Buffer, size uint64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, err := m.requireLiveBuffer("MapBuffer", buf)
	if err != nil {
		return nil, err
	}
	mapped, err := m.backend.MapBuffer(m.queues[ctx.Index], buf.handle, size)
	if err := check(ComponentMemory, "MapBuffer", err); err != nil {
		return nil, err
	}
	return mapped, nil
}

// UnmapBuffer releases a mapping returned by MapBuffer.
func (m *Manager) UnmapBuffer(buf *Buffer, mapped []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, err := m.requireLiveBuffer("UnmapBuffer", buf)
	if err != nil {
		return err
	}
	return check(ComponentMemory, "UnmapBuffer", m.backend.UnmapBuffer(m.queues[ctx.Index], buf.handle, mapped))
}

// requireLiveBuffer must be called with m.mu held.
func (m *Manager) requireLiveBuffer(operation string, buf *Buffer) (*Context, error) {
	ctx, err := m.requireActive(ComponentMemory, operation)
	if err != nil {
		return nil, err
	}
	if buf == nil || buf.released {
		return nil, configError(ComponentMemory, operation, "buffer is not allocated")
	}
	return ctx, nil
}

// UsedRAM returns the RAM ledger entry of a context, in bytes.
func (m *Manager) UsedRAM(contextID int) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireContextID("UsedRAM", contextID); err != nil {
		return 0, err
	}
	return m.ram[contextID], nil
}

// UsagePercent returns 100 * used / global memory size for a context.
func (m *Manager) UsagePercent(contextID int) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireContextID("UsagePercent", contextID); err != nil {
		return 0, err
	}
	return m.usagePercent(contextID), nil
}

func (m *Manager) usagePercent(contextID int) float64 {
	capacity := m.contexts[contextID].Device.GlobalMemSize
	if capacity == 0 {
		return 0
	}
	return 100 * float64(m.ram[contextID]) / float64(capacity)
}

func (m *Manager) requireContextID(operation string, contextID int) error {
	if err := m.requireReady(ComponentMemory, operation); err != nil {
		return err
	}
	if contextID < 0 || contextID >= len(m.contexts) {
		return configError(ComponentMemory, operation, "context index %d out of range, %d contexts available", contextID, len(m.contexts))
	}
	return nil
}

func (m *Manager) updateRAMGauge(contextID int) {
	metrics.RAMUsedBytes.WithLabelValues(contextLabel(contextID)).Set(float64(m.ram[contextID]))
}
