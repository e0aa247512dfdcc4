package gpu

import (
	"testing"

	"github.com/ggems/ggems/kernels"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// hostFixture is a host backend with one context, queue and event on its first device.
type hostFixture struct {
	backend *HostBackend
	device  DeviceHandle
	context ContextHandle
	queue   QueueHandle
	event   EventHandle
}

func newHostFixture(t *testing.T, platforms []HostPlatform) *hostFixture {
	t.Helper()
	h := NewHostBackend(platforms, zaptest.NewLogger(t))
	ps, err := h.Platforms()
	require.NoError(t, err)
	ds, err := h.Devices(ps[0])
	require.NoError(t, err)
	c, err := h.CreateContext(ds[0])
	require.NoError(t, err)
	q, err := h.CreateQueue(c, ds[0], true)
	require.NoError(t, err)
	e, err := h.CreateEvent(c)
	require.NoError(t, err)
	return &hostFixture{backend: h, device: ds[0], context: c, queue: q, event: e}
}

func (f *hostFixture) kernel(t *testing.T, source, name string) KernelHandle {
	t.Helper()
	p, err := f.backend.CreateProgram(f.context, source)
	require.NoError(t, err)
	require.NoError(t, f.backend.BuildProgram(p, f.device, baseBuildOptions))
	k, err := f.backend.CreateKernel(p, name)
	require.NoError(t, err)
	return k
}

func (f *hostFixture) buffer(t *testing.T, data []byte) BufferHandle {
	t.Helper()
	b, err := f.backend.CreateBuffer(f.context, MemReadWrite|MemCopyHostPtr, uint64(len(data)), data)
	require.NoError(t, err)
	return b
}

func TestHostBackend_Enumeration(t *testing.T) {
	h := NewHostBackend(nil, nil)
	assert.Equal(t, "host", h.Name())

	platforms, err := h.Platforms()
	require.NoError(t, err)
	require.Len(t, platforms, 1)

	vendor, err := h.PlatformVendor(platforms[0])
	require.NoError(t, err)
	assert.Equal(t, "GGEMS Host Platform", vendor)

	devices, err := h.Devices(platforms[0])
	require.NoError(t, err)
	require.Len(t, devices, 2)

	cpu, err := h.DeviceInfo(devices[0])
	require.NoError(t, err)
	assert.Equal(t, DeviceTypeCPU, cpu.Type)
	assert.Contains(t, cpu.Name, "CPU")
	assert.True(t, cpu.Available)
	assert.Len(t, cpu.MaxWorkItemSizes, 3)

	gpu, err := h.DeviceInfo(devices[1])
	require.NoError(t, err)
	assert.Equal(t, DeviceTypeGPU, gpu.Type)
	assert.Equal(t, uint64(4<<30), gpu.GlobalMemSize)
	assert.Equal(t, uint64(1024), gpu.MaxWorkGroupSize)

	_, err = h.DeviceInfo(DeviceHandle(9999))
	assert.ErrorIs(t, err, StatusInvalidDevice)
}

func TestHostBackend_EmptyTopology(t *testing.T) {
	t.Run("no platform", func(t *testing.T) {
		h := NewHostBackend([]HostPlatform{}, nil)
		_, err := h.Platforms()
		assert.ErrorIs(t, err, StatusPlatformNotFoundKHR)
	})

	t.Run("platform without devices", func(t *testing.T) {
		h := NewHostBackend([]HostPlatform{{Vendor: "Empty"}}, nil)
		platforms, err := h.Platforms()
		require.NoError(t, err)
		_, err = h.Devices(platforms[0])
		assert.ErrorIs(t, err, StatusDeviceNotFound)
	})
}

func TestWithHostDefaults(t *testing.T) {
	d := withHostDefaults(Device{GlobalMemSize: 1000, MaxMemAllocSize: 4000})
	assert.Equal(t, DeviceTypeCPU, d.Type)
	assert.Equal(t, "Host CPU", d.Name)
	assert.Equal(t, uint64(250), d.MaxMemAllocSize)
	assert.Equal(t, uint64(256), d.MaxWorkGroupSize)
	assert.Equal(t, VectorWidths{Native: 4, Preferred: 4}, d.VectorFloat)

	kept := withHostDefaults(Device{Type: DeviceTypeGPU, Name: "Mine", MaxWorkGroupSize: 32})
	assert.Equal(t, "Mine", kept.Name)
	assert.Equal(t, uint64(32), kept.MaxWorkGroupSize)
	assert.Equal(t, []uint64{32, 32, 32}, kept.MaxWorkItemSizes)
}

func TestHostBackend_FailNext(t *testing.T) {
	h := NewHostBackend(nil, nil)
	platforms, err := h.Platforms()
	require.NoError(t, err)
	devices, err := h.Devices(platforms[0])
	require.NoError(t, err)

	h.FailNext(OpCreateContext, StatusOutOfHostMemory)
	_, err = h.CreateContext(devices[0])
	assert.ErrorIs(t, err, StatusOutOfHostMemory)

	// consumed
	_, err = h.CreateContext(devices[0])
	assert.NoError(t, err)
}

func TestHostBackend_BuildProgram(t *testing.T) {
	testCases := []struct {
		name    string
		source  string
		options string
		status  Status
		log     string
	}{
		{
			name:    "valid source",
			source:  kernels.MatMul,
			options: baseBuildOptions + " " + fastMathOption,
		},
		{
			name:    "error pragma",
			source:  "__kernel void f(void)\n#error no double support\n{\n}\n",
			options: baseBuildOptions,
			status:  StatusBuildProgramFailure,
			log:     "<source>:2: error: no double support",
		},
		{
			name:    "unbalanced braces",
			source:  "__kernel void f(void) {\n",
			options: baseBuildOptions,
			status:  StatusBuildProgramFailure,
			log:     "unbalanced braces (1 opened, 0 closed)",
		},
		{
			name:    "invalid option",
			source:  kernels.MatMul,
			options: "-cl-std=CL1.2 fast",
			status:  StatusInvalidBuildOptions,
			log:     "invalid build option 'fast'",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newHostFixture(t, nil)
			p, err := f.backend.CreateProgram(f.context, tc.source)
			require.NoError(t, err)

			err = f.backend.BuildProgram(p, f.device, tc.options)
			log, logErr := f.backend.BuildLog(p, f.device)
			require.NoError(t, logErr)
			if tc.status == StatusSuccess {
				assert.NoError(t, err)
				assert.Empty(t, log)
				return
			}
			assert.ErrorIs(t, err, tc.status)
			assert.Contains(t, log, tc.log)
		})
	}
}

func TestHostBackend_CreateKernel(t *testing.T) {
	f := newHostFixture(t, nil)
	p, err := f.backend.CreateProgram(f.context, kernels.MatMul)
	require.NoError(t, err)

	_, err = f.backend.CreateKernel(p, "matmul")
	assert.ErrorIs(t, err, StatusInvalidProgramExecutable)

	require.NoError(t, f.backend.BuildProgram(p, f.device, baseBuildOptions))
	_, err = f.backend.CreateKernel(p, "matmull")
	assert.ErrorIs(t, err, StatusInvalidKernelName)

	k, err := f.backend.CreateKernel(p, "matmul")
	require.NoError(t, err)
	assert.Equal(t, 6, f.backend.kernels[k].arity)
}

func TestHostBackend_SetKernelArg(t *testing.T) {
	f := newHostFixture(t, nil)
	k := f.kernel(t, kernels.Transform, "transform_points")
	b := f.buffer(t, make([]byte, 64))

	testCases := []struct {
		name   string
		index  uint32
		value  any
		status Status
	}{
		{"buffer", 0, b, StatusSuccess},
		{"scalar", 2, uint32(3), StatusSuccess},
		{"index out of range", 3, uint32(3), StatusInvalidArgIndex},
		{"unknown buffer", 1, BufferHandle(4242), StatusInvalidMemObject},
		{"variable size value", 2, "three", StatusInvalidArgValue},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.backend.SetKernelArg(k, tc.index, tc.value)
			if tc.status == StatusSuccess {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.status)
		})
	}
}

func TestHostBackend_EnqueueNDRange(t *testing.T) {
	f := newHostFixture(t, nil)
	k := f.kernel(t, kernels.Transform, "transform_points")

	_, _, err := f.backend.EventProfiling(f.event)
	assert.ErrorIs(t, err, StatusProfilingInfoNotAvailable)

	err = f.backend.EnqueueNDRange(f.queue, k, 8, 0, f.event)
	assert.ErrorIs(t, err, StatusInvalidKernelArgs)

	matrix := f.buffer(t, Float32Bytes([]float32{1, 0, 0, 1, 0, 1, 0, 2, 0, 0, 1, 3, 0, 0, 0, 1}))
	points := f.buffer(t, Float32Bytes([]float32{1, 1, 1, 2, 2, 2}))
	require.NoError(t, f.backend.SetKernelArg(k, 0, matrix))
	require.NoError(t, f.backend.SetKernelArg(k, 1, points))
	require.NoError(t, f.backend.SetKernelArg(k, 2, uint32(2)))

	assert.ErrorIs(t, f.backend.EnqueueNDRange(f.queue, k, 0, 0, f.event), StatusInvalidGlobalWorkSize)
	assert.ErrorIs(t, f.backend.EnqueueNDRange(f.queue, k, 8, 3, f.event), StatusInvalidWorkGroupSize)
	assert.ErrorIs(t, f.backend.EnqueueNDRange(f.queue, k, 16384, 16384, f.event), StatusInvalidWorkGroupSize)
	assert.ErrorIs(t, f.backend.EnqueueNDRange(QueueHandle(4242), k, 8, 0, f.event), StatusInvalidCommandQueue)

	require.NoError(t, f.backend.EnqueueNDRange(f.queue, k, 64, 64, f.event))
	require.NoError(t, f.backend.Finish(f.queue))

	mapped, err := f.backend.MapBuffer(f.queue, points, 24)
	require.NoError(t, err)
	got, err := BytesToFloat32(mapped)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3, 4, 3, 4, 5}, got)
	require.NoError(t, f.backend.UnmapBuffer(f.queue, points, mapped))

	start, end, err := f.backend.EventProfiling(f.event)
	require.NoError(t, err)
	assert.LessOrEqual(t, start, end)
}

func TestHostBackend_ProfilingDisabled(t *testing.T) {
	f := newHostFixture(t, nil)
	q, err := f.backend.CreateQueue(f.context, f.device, false)
	require.NoError(t, err)

	k := f.kernel(t, "__kernel void noop(void) {}", "noop")
	require.NoError(t, f.backend.EnqueueNDRange(q, k, 1, 0, f.event))

	_, _, err = f.backend.EventProfiling(f.event)
	assert.ErrorIs(t, err, StatusProfilingInfoNotAvailable)
}

func TestHostBackend_CreateBuffer(t *testing.T) {
	testCases := []struct {
		name   string
		flags  MemFlags
		size   uint64
		host   []byte
		status Status
	}{
		{"read write", MemReadWrite, 512, nil, StatusSuccess},
		{"copy host data", MemReadOnly | MemCopyHostPtr, 4, []byte{1, 2, 3, 4}, StatusSuccess},
		{"zero size", MemReadWrite, 0, nil, StatusInvalidBufferSize},
		{"larger than max allocation", MemReadWrite, 1001, nil, StatusInvalidBufferSize},
		{"host data without flag", MemReadWrite, 4, []byte{1, 2, 3, 4}, StatusInvalidHostPtr},
		{"flag without host data", MemCopyHostPtr, 4, nil, StatusInvalidHostPtr},
		{"host data too short", MemUseHostPtr, 8, []byte{1, 2, 3, 4}, StatusInvalidHostPtr},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newHostFixture(t, smallPlatform(1000))
			_, err := f.backend.CreateBuffer(f.context, tc.flags, tc.size, tc.host)
			if tc.status == StatusSuccess {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.status)
		})
	}

	t.Run("global memory exhausted", func(t *testing.T) {
		f := newHostFixture(t, smallPlatform(1000))
		first, err := f.backend.CreateBuffer(f.context, MemReadWrite, 600, nil)
		require.NoError(t, err)
		_, err = f.backend.CreateBuffer(f.context, MemReadWrite, 600, nil)
		assert.ErrorIs(t, err, StatusMemObjectAllocationFailure)

		require.NoError(t, f.backend.ReleaseBuffer(first))
		assert.Equal(t, 0, f.backend.LiveBuffers())
		_, err = f.backend.CreateBuffer(f.context, MemReadWrite, 600, nil)
		assert.NoError(t, err)
	})
}

func TestHostBackend_MapFill(t *testing.T) {
	f := newHostFixture(t, nil)
	b := f.buffer(t, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	mapped, err := f.backend.MapBuffer(f.queue, b, 8)
	require.NoError(t, err)
	mapped[0] = 42

	assert.ErrorIs(t, f.backend.UnmapBuffer(f.queue, b, make([]byte, 8)), StatusInvalidValue)
	require.NoError(t, f.backend.UnmapBuffer(f.queue, b, mapped))
	assert.ErrorIs(t, f.backend.UnmapBuffer(f.queue, b, mapped), StatusInvalidValue)

	require.NoError(t, f.backend.FillBuffer(f.queue, b, 4))
	_, err = f.backend.MapBuffer(f.queue, b, 9)
	assert.ErrorIs(t, err, StatusInvalidValue)

	mapped, err = f.backend.MapBuffer(f.queue, b, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 5, 6, 7, 8}, mapped)
}

func TestHostBackend_Release(t *testing.T) {
	f := newHostFixture(t, nil)
	k := f.kernel(t, kernels.MatMul, "matmul")

	assert.NoError(t, f.backend.ReleaseKernel(k))
	assert.ErrorIs(t, f.backend.ReleaseKernel(k), StatusInvalidKernel)
	assert.NoError(t, f.backend.ReleaseEvent(f.event))
	assert.ErrorIs(t, f.backend.ReleaseEvent(f.event), StatusInvalidEvent)
	assert.NoError(t, f.backend.ReleaseQueue(f.queue))
	assert.ErrorIs(t, f.backend.ReleaseQueue(f.queue), StatusInvalidCommandQueue)
	assert.NoError(t, f.backend.ReleaseContext(f.context))
	assert.ErrorIs(t, f.backend.ReleaseContext(f.context), StatusInvalidContext)
}
