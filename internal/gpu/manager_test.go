package gpu

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func threeDevicePlatforms() []HostPlatform {
	return []HostPlatform{
		{
			Vendor: "Vendor A",
			Devices: []Device{
				{Type: DeviceTypeGPU, Name: "GPU A"},
				{Type: DeviceTypeCPU, Name: "CPU A"},
			},
		},
		{
			Vendor:  "Vendor B",
			Devices: []Device{{Type: DeviceTypeAccelerator, Name: "Accelerator B"}},
		},
	}
}

func TestManager_OneContextPerDevice(t *testing.T) {
	testCases := []struct {
		name      string
		platforms []HostPlatform
		cpu       []int
		gpu       []int
	}{
		{"default platform", nil, []int{0}, []int{1}},
		{"two platforms", threeDevicePlatforms(), []int{1}, []int{0}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, _ := newTestManager(t, tc.platforms, Options{})

			devices := m.Devices()
			contexts := m.Contexts()
			require.Len(t, contexts, len(devices))
			for _, d := range devices {
				var refs []*Context
				for _, c := range contexts {
					if c.Device.Handle == d.Handle {
						refs = append(refs, c)
					}
				}
				require.Len(t, refs, 1, "device %d", d.Index)
				assert.Equal(t, d.Type, refs[0].Device.Type)

				handle, err := m.ContextDevices(refs[0].Index)
				require.NoError(t, err)
				assert.Equal(t, d.Handle, handle)
			}
			assert.Equal(t, tc.cpu, m.CPUContexts())
			assert.Equal(t, tc.gpu, m.GPUContexts())
		})
	}
}

func TestManager_Enumeration(t *testing.T) {
	m, _ := newTestManager(t, threeDevicePlatforms(), Options{})

	platforms := m.Platforms()
	require.Len(t, platforms, 2)
	assert.Equal(t, "Vendor A", platforms[0].Vendor)
	assert.Equal(t, []int{0, 1}, platforms[0].Devices)
	assert.Equal(t, []int{2}, platforms[1].Devices)

	devices := m.Devices()
	require.Len(t, devices, 3)
	assert.Equal(t, 1, devices[2].Platform)
	assert.Equal(t, 2, devices[2].Index)
	assert.Equal(t, "Accelerator B", devices[2].Name)
}

func TestManager_ActivateContextOnce(t *testing.T) {
	testCases := []struct {
		name   string
		second uint32
	}{
		{"same index", 1},
		{"other index", 0},
		{"out of range index", 7},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, _ := newTestManager(t, nil, Options{})
			assert.False(t, m.IsActivated())
			require.NoError(t, m.ActivateContext(1))
			assert.True(t, m.IsActivated())

			err := m.ActivateContext(tc.second)
			ce := requireConfigError(t, err, ComponentContexts)
			assert.Contains(t, ce.Reason, "already been activated")

			id, err := m.ActiveContextID()
			require.NoError(t, err)
			assert.Equal(t, 1, id)
		})
	}

	t.Run("out of range does not activate", func(t *testing.T) {
		m, _ := newTestManager(t, nil, Options{})
		err := m.ActivateContext(2)
		ce := requireConfigError(t, err, ComponentContexts)
		assert.Equal(t, "context index 2 out of range, 2 contexts available", ce.Reason)
		assert.False(t, m.IsActivated())
		assert.NoError(t, m.ActivateContext(0))
	})
}

func TestManager_GlobalContextID(t *testing.T) {
	m, _ := newTestManager(t, nil, Options{})
	for _, c := range m.Contexts() {
		assert.Equal(t, c.Index, m.GlobalContextID(c.Handle))
	}
	assert.Equal(t, -1, m.GlobalContextID(ContextHandle(987654)))
}

func TestManager_AllocateDeallocateRoundTrip(t *testing.T) {
	testCases := []struct {
		name    string
		context uint32
		sizes   []uint64
	}{
		{"single byte on cpu", 0, []uint64{1}},
		{"page on gpu", 1, []uint64{4096}},
		{"several buffers on gpu", 1, []uint64{16, 1 << 20, 333}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, _ := newActiveManager(t, nil, tc.context)
			id := int(tc.context)

			prior, err := m.UsedRAM(id)
			require.NoError(t, err)

			buffers := make([]*Buffer, 0, len(tc.sizes))
			expected := prior
			for _, size := range tc.sizes {
				buf, err := m.Allocate(nil, size, MemReadWrite)
				require.NoError(t, err)
				expected += size
				used, err := m.UsedRAM(id)
				require.NoError(t, err)
				assert.Equal(t, expected, used)
				buffers = append(buffers, buf)
			}

			for i, buf := range buffers {
				require.NoError(t, m.Deallocate(buf, tc.sizes[i]))
			}
			used, err := m.UsedRAM(id)
			require.NoError(t, err)
			assert.Equal(t, prior, used)
		})
	}
}

func TestManager_CompileKernelOptionsConflict(t *testing.T) {
	custom, additional := "-cl-std=CL1.2", "-DFOO"

	testCases := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"valid path", matMulSourcePath},
		{"missing path", func(t *testing.T) string { return "does-not-exist.cl" }},
		{"empty path", func(t *testing.T) string { return "" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, _ := newActiveManager(t, nil, 1)
			_, err := m.CompileKernel(tc.path(t), "matmul", &custom, &additional)
			ce := requireConfigError(t, err, ComponentCompiler)
			assert.Equal(t, "custom and additional options can not be set at the same time", ce.Reason)
			assert.Empty(t, m.Kernels())
		})
	}

	t.Run("before initialization", func(t *testing.T) {
		m := NewManager(NewHostBackend(nil, nil), Options{}, zaptest.NewLogger(t))
		_, err := m.CompileKernel("does-not-exist.cl", "matmul", &custom, &additional)
		requireConfigError(t, err, ComponentCompiler)
	})
}

func TestManager_CompileKernelMissingSource(t *testing.T) {
	m, _ := newActiveManager(t, nil, 1)

	_, err := m.CompileKernel("does-not-exist.cl", "matmul", nil, nil)
	var ioErr *IOError
	require.True(t, errors.As(err, &ioErr), "expected IOError, got %T", err)
	assert.Equal(t, ComponentCompiler, ioErr.Component)
	assert.Equal(t, "does-not-exist.cl", ioErr.Path)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	// no program reached the backend
	assert.Empty(t, m.programs)
	assert.Empty(t, m.Kernels())
}

func TestManager_UsagePercent(t *testing.T) {
	m, _ := newActiveManager(t, smallPlatform(1000), 0)

	pct, err := m.UsagePercent(0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pct)

	buf, err := m.Allocate(nil, 250, MemReadWrite)
	require.NoError(t, err)
	pct, err = m.UsagePercent(0)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, pct, 1e-9)

	require.NoError(t, m.Deallocate(buf, 250))
	pct, err = m.UsagePercent(0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pct)

	_, err = m.UsagePercent(1)
	requireConfigError(t, err, ComponentMemory)
}

func TestManager_EndToEnd(t *testing.T) {
	backend := NewHostBackend(nil, zaptest.NewLogger(t))
	m := NewManager(backend, Options{}, zaptest.NewLogger(t))
	require.NoError(t, m.Initialize())

	assert.Len(t, m.Contexts(), 2)
	assert.Len(t, m.queues, 2)
	assert.Len(t, m.events, 2)
	assert.Equal(t, []uint64{0, 0}, m.ram)

	require.NoError(t, m.ActivateContext(1))
	buf, err := m.Allocate(nil, 4096, MemReadWrite)
	require.NoError(t, err)
	used, err := m.UsedRAM(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), used)

	require.NoError(t, m.Deallocate(buf, 4096))
	used, err = m.UsedRAM(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), used)

	requireConfigError(t, m.ActivateContext(0), ComponentContexts)

	require.NoError(t, m.Close())
	assert.Equal(t, 0, backend.LiveBuffers())
	assert.Empty(t, backend.contexts)
	assert.Empty(t, backend.queues)
	assert.Empty(t, backend.events)
}

func TestManager_Lifecycle(t *testing.T) {
	t.Run("operations before initialization", func(t *testing.T) {
		m := NewManager(NewHostBackend(nil, nil), Options{}, nil)
		ce := requireConfigError(t, m.ActivateContext(0), ComponentContexts)
		assert.Equal(t, "manager not initialized", ce.Reason)

		_, err := m.Allocate(nil, 16, MemReadWrite)
		requireConfigError(t, err, ComponentMemory)
		_, err = m.UsedRAM(0)
		requireConfigError(t, err, ComponentMemory)
	})

	t.Run("initialize is idempotent", func(t *testing.T) {
		m, _ := newTestManager(t, nil, Options{})
		contexts := m.Contexts()
		require.NoError(t, m.Initialize())
		assert.Equal(t, contexts, m.Contexts())
	})

	t.Run("closed manager", func(t *testing.T) {
		m, _ := newActiveManager(t, nil, 0)
		require.NoError(t, m.Close())
		require.NoError(t, m.Close())

		ce := requireConfigError(t, m.Initialize(), ComponentManager)
		assert.Equal(t, "manager is closed", ce.Reason)
		_, err := m.Allocate(nil, 16, MemReadWrite)
		ce = requireConfigError(t, err, ComponentMemory)
		assert.Equal(t, "manager is closed", ce.Reason)
	})

	t.Run("default work group size", func(t *testing.T) {
		m := NewManager(NewHostBackend(nil, nil), Options{FastMath: true}, nil)
		assert.Equal(t, DefaultWorkGroupSize, m.Options().WorkGroupSize)
		assert.Equal(t, "host", m.Backend().Name())
	})
}

func TestManager_InitializeFailures(t *testing.T) {
	testCases := []struct {
		name      string
		platforms []HostPlatform
		op        string
		status    Status
		component string
	}{
		{"platform query", nil, OpPlatforms, StatusOutOfHostMemory, ComponentEnumerator},
		{"no platform", []HostPlatform{}, "", StatusPlatformNotFoundKHR, ComponentEnumerator},
		{"platform without devices", []HostPlatform{{Vendor: "Empty"}}, "", StatusDeviceNotFound, ComponentEnumerator},
		{"device query", nil, OpDeviceInfo, StatusInvalidDevice, ComponentEnumerator},
		{"context creation", nil, OpCreateContext, StatusOutOfResources, ComponentContexts},
		{"queue creation", nil, OpCreateQueue, StatusInvalidQueueProperties, ComponentQueues},
		{"event creation", nil, OpCreateEvent, StatusOutOfHostMemory, ComponentQueues},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			backend := NewHostBackend(tc.platforms, zaptest.NewLogger(t))
			if tc.op != "" {
				backend.FailNext(tc.op, tc.status)
			}
			m := NewManager(backend, Options{}, zaptest.NewLogger(t))

			err := m.Initialize()
			re := requireRuntimeError(t, err, tc.status)
			assert.Equal(t, tc.component, re.Component)
			assert.NotEqual(t, CategoryUnknown, re.Message.Category)
			assert.NoError(t, m.Close())
		})
	}
}

func TestManager_PartialInitializeKeepsResources(t *testing.T) {
	backend := NewHostBackend(nil, zaptest.NewLogger(t))
	backend.FailNext(OpCreateEvent, StatusOutOfHostMemory)
	m := NewManager(backend, Options{}, zaptest.NewLogger(t))

	require.Error(t, m.Initialize())
	// contexts and queues created before the failure stay allocated
	assert.Len(t, backend.contexts, 2)
	assert.Len(t, backend.queues, 2)

	// a failed initialization is final and does not duplicate the registries
	requireConfigError(t, m.Initialize(), ComponentManager)
	assert.Len(t, m.Contexts(), 2)
	assert.Len(t, m.queues, 2)
	assert.Empty(t, m.events)
	assert.Equal(t, []int{0}, m.CPUContexts())
	assert.Equal(t, []int{1}, m.GPUContexts())
	assert.Len(t, backend.contexts, 2)
	assert.Len(t, backend.queues, 2)
	requireConfigError(t, m.ActivateContext(0), ComponentContexts)

	require.NoError(t, m.Close())
	assert.Empty(t, backend.contexts)
	assert.Empty(t, backend.queues)
}

// emptyTopologyBackend reports no platform, or platforms without devices,
// without returning an error status.
type emptyTopologyBackend struct {
	*HostBackend
	noPlatforms bool
}

func (b *emptyTopologyBackend) Platforms() ([]PlatformHandle, error) {
	if b.noPlatforms {
		return nil, nil
	}
	return b.HostBackend.Platforms()
}

func (b *emptyTopologyBackend) Devices(PlatformHandle) ([]DeviceHandle, error) {
	return nil, nil
}

func TestManager_InitializeEmptyTopology(t *testing.T) {
	testCases := []struct {
		name        string
		noPlatforms bool
		operation   string
	}{
		{"no platform", true, "Platforms"},
		{"no device", false, "Devices"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &emptyTopologyBackend{
				HostBackend: NewHostBackend(nil, zaptest.NewLogger(t)),
				noPlatforms: tc.noPlatforms,
			}
			m := NewManager(backend, Options{}, zaptest.NewLogger(t))

			ce := requireConfigError(t, m.Initialize(), ComponentEnumerator)
			assert.Equal(t, tc.operation, ce.Operation)
			assert.Empty(t, m.Contexts())
			assert.NoError(t, m.Close())
		})
	}
}
