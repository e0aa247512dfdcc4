package gpu

import (
	"go.uber.org/zap"
)

// Context binds exactly one device to an execution domain.
type Context struct {
	Index  int
	Handle ContextHandle
	Device *Device
}

// createContexts creates one context per device and sorts it into the CPU or GPU subset.
func (m *Manager) createContexts() error {
	for i := range m.devices {
		dev := &m.devices[i]
		handle, err := m.backend.CreateContext(dev.Handle)
		if err := check(ComponentContexts, "CreateContext", err); err != nil {
			return err
		}
		ctx := &Context{Index: len(m.contexts), Handle: handle, Device: dev}
		m.contexts = append(m.contexts, ctx)

		switch dev.Type {
		case DeviceTypeCPU:
			m.cpuContexts = append(m.cpuContexts, ctx.Index)
		case DeviceTypeGPU:
			m.gpuContexts = append(m.gpuContexts, ctx.Index)
		}
		m.logger.Debug("Context created",
			zap.Int("context", ctx.Index),
			zap.String("device", dev.Name),
			zap.Stringer("type", dev.Type),
		)
	}
	return nil
}

// ActivateContext marks contexts[index] as the active context. Activation is
// permanent: any later call fails whatever the index.
func (m *Manager) ActivateContext(index uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireReady(ComponentContexts, "ActivateContext"); err != nil {
		return err
	}
	if m.active >= 0 {
		return configError(ComponentContexts, "ActivateContext", "a context has already been activated (context %d)", m.active)
	}
	if int(index) >= len(m.contexts) {
		return configError(ComponentContexts, "ActivateContext", "context index %d out of range, %d contexts available", index, len(m.contexts))
	}
	m.active = int(index)

	ctx := m.contexts[index]
	m.logger.Info("Context activated",
		zap.Uint32("context", index),
		zap.String("device", ctx.Device.Name),
		zap.Stringer("type", ctx.Device.Type),
	)
	return nil
}

// GlobalContextID returns the index of the context with the given handle, or -1.
func (m *Manager) GlobalContextID(handle ContextHandle) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.globalContextID(handle)
}

func (m *Manager) globalContextID(handle ContextHandle) int {
	for i, c := range m.contexts {
		if c.Handle == handle {
			return i
		}
	}
	return -1
}

// ActiveContext returns the activated context.
func (m *Manager) ActiveContext() (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requireActive(ComponentContexts, "ActiveContext")
}

// ActiveContextID returns the index of the activated context.
func (m *Manager) ActiveContextID() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, err := m.requireActive(ComponentContexts, "ActiveContextID")
	if err != nil {
		return -1, err
	}
	return m.globalContextID(ctx.Handle), nil
}

// IsActivated reports whether a context has been activated.
func (m *Manager) IsActivated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active >= 0
}

// Contexts returns every context in creation order.
func (m *Manager) Contexts() []*Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Context(nil), m.contexts...)
}

// CPUContexts returns the indices of the contexts bound to CPU devices.
func (m *Manager) CPUContexts() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.cpuContexts...)
}

// GPUContexts returns the indices of the contexts bound to GPU devices.
func (m *Manager) GPUContexts() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.gpuContexts...)
}

// ContextDevices asks the backend for the devices bound to contexts[index] and
// checks the one device per context rule.
func (m *Manager) ContextDevices(index int) (DeviceHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireReady(ComponentContexts, "ContextDevices"); err != nil {
		return 0, err
	}
	if index < 0 || index >= len(m.contexts) {
		return 0, configError(ComponentContexts, "ContextDevices", "context index %d out of range, %d contexts available", index, len(m.contexts))
	}
	return m.contextDevice(m.contexts[index])
}

func (m *Manager) contextDevice(ctx *Context) (DeviceHandle, error) {
	devices, err := m.backend.ContextDevices(ctx.Handle)
	if err := check(ComponentContexts, "ContextDevices", err); err != nil {
		return 0, err
	}
	if len(devices) != 1 {
		return 0, configError(ComponentContexts, "ContextDevices", "one device by context only, context %d has %d", ctx.Index, len(devices))
	}
	return devices[0], nil
}
