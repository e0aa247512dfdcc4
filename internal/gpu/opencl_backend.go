//go:build opencl
// +build opencl

package gpu

/*
#cgo !darwin LDFLAGS: -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif
#include <stdlib.h>
*/
import "C"

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"go.uber.org/zap"
)

type clEvent struct {
	ev C.cl_event
}

// OpenCLBackend drives the system OpenCL 1.2 runtime through cgo.
type OpenCLBackend struct {
	logger *zap.Logger
	next   uintptr

	platforms map[PlatformHandle]C.cl_platform_id
	devices   map[DeviceHandle]C.cl_device_id
	contexts  map[ContextHandle]C.cl_context
	queues    map[QueueHandle]C.cl_command_queue
	events    map[EventHandle]*clEvent
	programs  map[ProgramHandle]C.cl_program
	kernels   map[KernelHandle]C.cl_kernel
	buffers   map[BufferHandle]C.cl_mem
}

// NewOpenCLBackend fails when the runtime reports no platform.
func NewOpenCLBackend(logger *zap.Logger) (Backend, error) {
	var count C.cl_uint
	if err := clStatus(C.clGetPlatformIDs(0, nil, &count)); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, StatusPlatformNotFoundKHR
	}
	return &OpenCLBackend{
		logger:    logger,
		platforms: make(map[PlatformHandle]C.cl_platform_id),
		devices:   make(map[DeviceHandle]C.cl_device_id),
		contexts:  make(map[ContextHandle]C.cl_context),
		queues:    make(map[QueueHandle]C.cl_command_queue),
		events:    make(map[EventHandle]*clEvent),
		programs:  make(map[ProgramHandle]C.cl_program),
		kernels:   make(map[KernelHandle]C.cl_kernel),
		buffers:   make(map[BufferHandle]C.cl_mem),
	}, nil
}

func clStatus(status C.cl_int) error {
	if status == C.CL_SUCCESS {
		return nil
	}
	return Status(status)
}

func (o *OpenCLBackend) handle() uintptr {
	o.next++
	return o.next
}

func (o *OpenCLBackend) Name() string { return "opencl" }

func (o *OpenCLBackend) Platforms() ([]PlatformHandle, error) {
	var count C.cl_uint
	if err := clStatus(C.clGetPlatformIDs(0, nil, &count)); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	ids := make([]C.cl_platform_id, int(count))
	if err := clStatus(C.clGetPlatformIDs(count, &ids[0], nil)); err != nil {
		return nil, err
	}
	handles := make([]PlatformHandle, 0, len(ids))
	for _, id := range ids {
		h := PlatformHandle(o.handle())
		o.platforms[h] = id
		handles = append(handles, h)
	}
	return handles, nil
}

func (o *OpenCLBackend) PlatformVendor(p PlatformHandle) (string, error) {
	id, ok := o.platforms[p]
	if !ok {
		return "", StatusInvalidPlatform
	}
	var size C.size_t
	if err := clStatus(C.clGetPlatformInfo(id, C.CL_PLATFORM_VENDOR, 0, nil, &size)); err != nil {
		return "", err
	}
	if size == 0 {
		return "", nil
	}
	buf := make([]byte, int(size))
	if err := clStatus(C.clGetPlatformInfo(id, C.CL_PLATFORM_VENDOR, size, unsafe.Pointer(&buf[0]), nil)); err != nil {
		return "", err
	}
	return trimNull(buf), nil
}

func (o *OpenCLBackend) Devices(p PlatformHandle) ([]DeviceHandle, error) {
	pid, ok := o.platforms[p]
	if !ok {
		return nil, StatusInvalidPlatform
	}
	var count C.cl_uint
	if err := clStatus(C.clGetDeviceIDs(pid, C.CL_DEVICE_TYPE_ALL, 0, nil, &count)); err != nil {
		return nil, err
	}
	ids := make([]C.cl_device_id, int(count))
	if count > 0 {
		if err := clStatus(C.clGetDeviceIDs(pid, C.CL_DEVICE_TYPE_ALL, count, &ids[0], nil)); err != nil {
			return nil, err
		}
	}
	handles := make([]DeviceHandle, 0, len(ids))
	for _, id := range ids {
		handles = append(handles, o.deviceHandle(id))
	}
	return handles, nil
}

func (o *OpenCLBackend) deviceHandle(id C.cl_device_id) DeviceHandle {
	for h, known := range o.devices {
		if known == id {
			return h
		}
	}
	h := DeviceHandle(o.handle())
	o.devices[h] = id
	return h
}

// deviceQuery accumulates the first failing status of a sequence of clGetDeviceInfo calls.
type deviceQuery struct {
	id  C.cl_device_id
	err error
}

func (q *deviceQuery) raw(param C.cl_device_info, size uintptr, ptr unsafe.Pointer) {
	if q.err != nil {
		return
	}
	q.err = clStatus(C.clGetDeviceInfo(q.id, param, C.size_t(size), ptr, nil))
}

func (q *deviceQuery) uint(param C.cl_device_info) uint32 {
	var v C.cl_uint
	q.raw(param, unsafe.Sizeof(v), unsafe.Pointer(&v))
	return uint32(v)
}

func (q *deviceQuery) ulong(param C.cl_device_info) uint64 {
	var v C.cl_ulong
	q.raw(param, unsafe.Sizeof(v), unsafe.Pointer(&v))
	return uint64(v)
}

func (q *deviceQuery) size(param C.cl_device_info) uint64 {
	var v C.size_t
	q.raw(param, unsafe.Sizeof(v), unsafe.Pointer(&v))
	return uint64(v)
}

func (q *deviceQuery) bool(param C.cl_device_info) bool {
	var v C.cl_bool
	q.raw(param, unsafe.Sizeof(v), unsafe.Pointer(&v))
	return v == C.CL_TRUE
}

func (q *deviceQuery) string(param C.cl_device_info) string {
	if q.err != nil {
		return ""
	}
	var size C.size_t
	if q.err = clStatus(C.clGetDeviceInfo(q.id, param, 0, nil, &size)); q.err != nil || size == 0 {
		return ""
	}
	buf := make([]byte, int(size))
	q.err = clStatus(C.clGetDeviceInfo(q.id, param, size, unsafe.Pointer(&buf[0]), nil))
	return trimNull(buf)
}

func (q *deviceQuery) vector(native, preferred C.cl_device_info) VectorWidths {
	return VectorWidths{Native: q.uint(native), Preferred: q.uint(preferred)}
}

func (o *OpenCLBackend) DeviceInfo(d DeviceHandle) (Device, error) {
	id, ok := o.devices[d]
	if !ok {
		return Device{}, StatusInvalidDevice
	}
	q := &deviceQuery{id: id}

	var rawType C.cl_device_type
	q.raw(C.CL_DEVICE_TYPE, unsafe.Sizeof(rawType), unsafe.Pointer(&rawType))

	dev := Device{
		Handle:                 d,
		Type:                   mapDeviceType(rawType),
		Name:                   q.string(C.CL_DEVICE_NAME),
		Vendor:                 q.string(C.CL_DEVICE_VENDOR),
		Version:                q.string(C.CL_DEVICE_VERSION),
		DriverVersion:          q.string(C.CL_DRIVER_VERSION),
		OpenCLCVersion:         q.string(C.CL_DEVICE_OPENCL_C_VERSION),
		AddressBits:            q.uint(C.CL_DEVICE_ADDRESS_BITS),
		Available:              q.bool(C.CL_DEVICE_AVAILABLE),
		CompilerAvailable:      q.bool(C.CL_DEVICE_COMPILER_AVAILABLE),
		GlobalMemCacheSize:     q.ulong(C.CL_DEVICE_GLOBAL_MEM_CACHE_SIZE),
		GlobalMemCacheLineSize: q.uint(C.CL_DEVICE_GLOBAL_MEM_CACHELINE_SIZE),
		GlobalMemSize:          q.ulong(C.CL_DEVICE_GLOBAL_MEM_SIZE),
		LocalMemSize:           q.ulong(C.CL_DEVICE_LOCAL_MEM_SIZE),
		MemBaseAddrAlign:       q.uint(C.CL_DEVICE_MEM_BASE_ADDR_ALIGN),
		PrintfBufferSize:       q.size(C.CL_DEVICE_PRINTF_BUFFER_SIZE),
		ImageSupport:           q.bool(C.CL_DEVICE_IMAGE_SUPPORT),
		ImageMaxArraySize:      q.size(C.CL_DEVICE_IMAGE_MAX_ARRAY_SIZE),
		ImageMaxBufferSize:     q.size(C.CL_DEVICE_IMAGE_MAX_BUFFER_SIZE),
		Image2DMaxWidth:        q.size(C.CL_DEVICE_IMAGE2D_MAX_WIDTH),
		Image2DMaxHeight:       q.size(C.CL_DEVICE_IMAGE2D_MAX_HEIGHT),
		Image3DMaxWidth:        q.size(C.CL_DEVICE_IMAGE3D_MAX_WIDTH),
		Image3DMaxHeight:       q.size(C.CL_DEVICE_IMAGE3D_MAX_HEIGHT),
		Image3DMaxDepth:        q.size(C.CL_DEVICE_IMAGE3D_MAX_DEPTH),
		MaxClockFrequency:      q.uint(C.CL_DEVICE_MAX_CLOCK_FREQUENCY),
		MaxComputeUnits:        q.uint(C.CL_DEVICE_MAX_COMPUTE_UNITS),
		MaxConstantBufferSize:  q.ulong(C.CL_DEVICE_MAX_CONSTANT_BUFFER_SIZE),
		MaxMemAllocSize:        q.ulong(C.CL_DEVICE_MAX_MEM_ALLOC_SIZE),
		MaxReadImageArgs:       q.uint(C.CL_DEVICE_MAX_READ_IMAGE_ARGS),
		MaxWriteImageArgs:      q.uint(C.CL_DEVICE_MAX_WRITE_IMAGE_ARGS),
		MaxParameterSize:       q.size(C.CL_DEVICE_MAX_PARAMETER_SIZE),
		MaxSamplers:            q.uint(C.CL_DEVICE_MAX_SAMPLERS),
		MaxWorkItemDimensions:  q.uint(C.CL_DEVICE_MAX_WORK_ITEM_DIMENSIONS),
		MaxWorkGroupSize:       q.size(C.CL_DEVICE_MAX_WORK_GROUP_SIZE),
		VectorChar:             q.vector(C.CL_DEVICE_NATIVE_VECTOR_WIDTH_CHAR, C.CL_DEVICE_PREFERRED_VECTOR_WIDTH_CHAR),
		VectorShort:            q.vector(C.CL_DEVICE_NATIVE_VECTOR_WIDTH_SHORT, C.CL_DEVICE_PREFERRED_VECTOR_WIDTH_SHORT),
		VectorInt:              q.vector(C.CL_DEVICE_NATIVE_VECTOR_WIDTH_INT, C.CL_DEVICE_PREFERRED_VECTOR_WIDTH_INT),
		VectorLong:             q.vector(C.CL_DEVICE_NATIVE_VECTOR_WIDTH_LONG, C.CL_DEVICE_PREFERRED_VECTOR_WIDTH_LONG),
		VectorHalf:             q.vector(C.CL_DEVICE_NATIVE_VECTOR_WIDTH_HALF, C.CL_DEVICE_PREFERRED_VECTOR_WIDTH_HALF),
		VectorFloat:            q.vector(C.CL_DEVICE_NATIVE_VECTOR_WIDTH_FLOAT, C.CL_DEVICE_PREFERRED_VECTOR_WIDTH_FLOAT),
		VectorDouble:           q.vector(C.CL_DEVICE_NATIVE_VECTOR_WIDTH_DOUBLE, C.CL_DEVICE_PREFERRED_VECTOR_WIDTH_DOUBLE),
	}
	if q.err == nil && dev.MaxWorkItemDimensions > 0 {
		sizes := make([]C.size_t, dev.MaxWorkItemDimensions)
		q.raw(C.CL_DEVICE_MAX_WORK_ITEM_SIZES, uintptr(len(sizes))*unsafe.Sizeof(sizes[0]), unsafe.Pointer(&sizes[0]))
		for _, s := range sizes {
			dev.MaxWorkItemSizes = append(dev.MaxWorkItemSizes, uint64(s))
		}
	}
	if q.err != nil {
		return Device{}, q.err
	}
	return dev, nil
}

func mapDeviceType(dt C.cl_device_type) DeviceType {
	switch {
	case dt&C.CL_DEVICE_TYPE_GPU != 0:
		return DeviceTypeGPU
	case dt&C.CL_DEVICE_TYPE_CPU != 0:
		return DeviceTypeCPU
	case dt&C.CL_DEVICE_TYPE_ACCELERATOR != 0:
		return DeviceTypeAccelerator
	default:
		return DeviceTypeUnknown
	}
}

func trimNull(buf []byte) string {
	return string(bytes.TrimRight(buf, "\x00"))
}

func (o *OpenCLBackend) CreateContext(d DeviceHandle) (ContextHandle, error) {
	id, ok := o.devices[d]
	if !ok {
		return 0, StatusInvalidDevice
	}
	var status C.cl_int
	ctx := C.clCreateContext(nil, 1, &id, nil, nil, &status)
	if err := clStatus(status); err != nil {
		return 0, err
	}
	h := ContextHandle(o.handle())
	o.contexts[h] = ctx
	return h, nil
}

func (o *OpenCLBackend) ContextDevices(c ContextHandle) ([]DeviceHandle, error) {
	ctx, ok := o.contexts[c]
	if !ok {
		return nil, StatusInvalidContext
	}
	var count C.cl_uint
	if err := clStatus(C.clGetContextInfo(ctx, C.CL_CONTEXT_NUM_DEVICES, C.size_t(unsafe.Sizeof(count)), unsafe.Pointer(&count), nil)); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	ids := make([]C.cl_device_id, int(count))
	size := C.size_t(uintptr(count) * unsafe.Sizeof(ids[0]))
	if err := clStatus(C.clGetContextInfo(ctx, C.CL_CONTEXT_DEVICES, size, unsafe.Pointer(&ids[0]), nil)); err != nil {
		return nil, err
	}
	handles := make([]DeviceHandle, 0, len(ids))
	for _, id := range ids {
		handles = append(handles, o.deviceHandle(id))
	}
	return handles, nil
}

func (o *OpenCLBackend) CreateQueue(c ContextHandle, d DeviceHandle, profiling bool) (QueueHandle, error) {
	ctx, ok := o.contexts[c]
	if !ok {
		return 0, StatusInvalidContext
	}
	dev, ok := o.devices[d]
	if !ok {
		return 0, StatusInvalidDevice
	}
	var props C.cl_command_queue_properties
	if profiling {
		props = C.CL_QUEUE_PROFILING_ENABLE
	}
	var status C.cl_int
	q := C.clCreateCommandQueue(ctx, dev, props, &status)
	if err := clStatus(status); err != nil {
		return 0, err
	}
	h := QueueHandle(o.handle())
	o.queues[h] = q
	return h, nil
}

// CreateEvent reserves an event slot; the cl_event itself comes from the next dispatch.
func (o *OpenCLBackend) CreateEvent(c ContextHandle) (EventHandle, error) {
	if _, ok := o.contexts[c]; !ok {
		return 0, StatusInvalidContext
	}
	h := EventHandle(o.handle())
	o.events[h] = &clEvent{}
	return h, nil
}

func (o *OpenCLBackend) EventProfiling(e EventHandle) (uint64, uint64, error) {
	slot, ok := o.events[e]
	if !ok {
		return 0, 0, StatusInvalidEvent
	}
	if slot.ev == nil {
		return 0, 0, StatusProfilingInfoNotAvailable
	}
	var start, end C.cl_ulong
	if err := clStatus(C.clGetEventProfilingInfo(slot.ev, C.CL_PROFILING_COMMAND_START, C.size_t(unsafe.Sizeof(start)), unsafe.Pointer(&start), nil)); err != nil {
		return 0, 0, err
	}
	if err := clStatus(C.clGetEventProfilingInfo(slot.ev, C.CL_PROFILING_COMMAND_END, C.size_t(unsafe.Sizeof(end)), unsafe.Pointer(&end), nil)); err != nil {
		return 0, 0, err
	}
	return uint64(start), uint64(end), nil
}

func (o *OpenCLBackend) CreateProgram(c ContextHandle, source string) (ProgramHandle, error) {
	ctx, ok := o.contexts[c]
	if !ok {
		return 0, StatusInvalidContext
	}
	src := C.CString(source)
	defer C.free(unsafe.Pointer(src))
	length := C.size_t(len(source))

	var status C.cl_int
	p := C.clCreateProgramWithSource(ctx, 1, &src, &length, &status)
	if err := clStatus(status); err != nil {
		return 0, err
	}
	h := ProgramHandle(o.handle())
	o.programs[h] = p
	return h, nil
}

func (o *OpenCLBackend) BuildProgram(p ProgramHandle, d DeviceHandle, options string) error {
	prog, ok := o.programs[p]
	if !ok {
		return StatusInvalidProgram
	}
	dev, ok := o.devices[d]
	if !ok {
		return StatusInvalidDevice
	}
	opts := C.CString(options)
	defer C.free(unsafe.Pointer(opts))
	return clStatus(C.clBuildProgram(prog, 1, &dev, opts, nil, nil))
}

func (o *OpenCLBackend) BuildLog(p ProgramHandle, d DeviceHandle) (string, error) {
	prog, ok := o.programs[p]
	if !ok {
		return "", StatusInvalidProgram
	}
	dev, ok := o.devices[d]
	if !ok {
		return "", StatusInvalidDevice
	}
	var size C.size_t
	if err := clStatus(C.clGetProgramBuildInfo(prog, dev, C.CL_PROGRAM_BUILD_LOG, 0, nil, &size)); err != nil {
		return "", err
	}
	if size == 0 {
		return "", nil
	}
	buf := make([]byte, int(size))
	if err := clStatus(C.clGetProgramBuildInfo(prog, dev, C.CL_PROGRAM_BUILD_LOG, size, unsafe.Pointer(&buf[0]), nil)); err != nil {
		return "", err
	}
	return trimNull(buf), nil
}

func (o *OpenCLBackend) CreateKernel(p ProgramHandle, name string) (KernelHandle, error) {
	prog, ok := o.programs[p]
	if !ok {
		return 0, StatusInvalidProgram
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var status C.cl_int
	k := C.clCreateKernel(prog, cname, &status)
	if err := clStatus(status); err != nil {
		return 0, err
	}
	h := KernelHandle(o.handle())
	o.kernels[h] = k
	return h, nil
}

func (o *OpenCLBackend) SetKernelArg(k KernelHandle, index uint32, value any) error {
	kern, ok := o.kernels[k]
	if !ok {
		return StatusInvalidKernel
	}
	if b, ok := value.(BufferHandle); ok {
		mem, ok := o.buffers[b]
		if !ok {
			return StatusInvalidMemObject
		}
		return clStatus(C.clSetKernelArg(kern, C.cl_uint(index), C.size_t(unsafe.Sizeof(mem)), unsafe.Pointer(&mem)))
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, value); err != nil {
		return StatusInvalidArgValue
	}
	raw := buf.Bytes()
	return clStatus(C.clSetKernelArg(kern, C.cl_uint(index), C.size_t(len(raw)), unsafe.Pointer(&raw[0])))
}

func (o *OpenCLBackend) EnqueueNDRange(q QueueHandle, k KernelHandle, global, local uint64, e EventHandle) error {
	queue, ok := o.queues[q]
	if !ok {
		return StatusInvalidCommandQueue
	}
	kern, ok := o.kernels[k]
	if !ok {
		return StatusInvalidKernel
	}
	slot, ok := o.events[e]
	if !ok {
		return StatusInvalidEvent
	}

	gws := C.size_t(global)
	var lws *C.size_t
	if local > 0 {
		l := C.size_t(local)
		lws = &l
	}
	var ev C.cl_event
	if err := clStatus(C.clEnqueueNDRangeKernel(queue, kern, 1, nil, &gws, lws, 0, nil, &ev)); err != nil {
		return err
	}
	if slot.ev != nil {
		C.clReleaseEvent(slot.ev)
	}
	slot.ev = ev
	return nil
}

func (o *OpenCLBackend) Finish(q QueueHandle) error {
	queue, ok := o.queues[q]
	if !ok {
		return StatusInvalidCommandQueue
	}
	return clStatus(C.clFinish(queue))
}

// CreateBuffer copies host data at creation; Go memory can not be retained by
// the runtime, so MemUseHostPtr is served as MemCopyHostPtr.
func (o *OpenCLBackend) CreateBuffer(c ContextHandle, flags MemFlags, size uint64, host []byte) (BufferHandle, error) {
	ctx, ok := o.contexts[c]
	if !ok {
		return 0, StatusInvalidContext
	}
	var ptr unsafe.Pointer
	if flags.Has(MemUseHostPtr) {
		flags = flags&^MemUseHostPtr | MemCopyHostPtr
	}
	if len(host) > 0 {
		if uint64(len(host)) < size {
			return 0, StatusInvalidHostPtr
		}
		ptr = unsafe.Pointer(&host[0])
	}

	var status C.cl_int
	mem := C.clCreateBuffer(ctx, C.cl_mem_flags(flags), C.size_t(size), ptr, &status)
	if err := clStatus(status); err != nil {
		return 0, err
	}
	h := BufferHandle(o.handle())
	o.buffers[h] = mem
	return h, nil
}

func (o *OpenCLBackend) MapBuffer(q QueueHandle, b BufferHandle, size uint64) ([]byte, error) {
	queue, ok := o.queues[q]
	if !ok {
		return nil, StatusInvalidCommandQueue
	}
	mem, ok := o.buffers[b]
	if !ok {
		return nil, StatusInvalidMemObject
	}
	var status C.cl_int
	ptr := C.clEnqueueMapBuffer(queue, mem, C.CL_TRUE, C.CL_MAP_READ|C.CL_MAP_WRITE, 0, C.size_t(size), 0, nil, nil, &status)
	if err := clStatus(status); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), int(size)), nil
}

func (o *OpenCLBackend) UnmapBuffer(q QueueHandle, b BufferHandle, mapped []byte) error {
	queue, ok := o.queues[q]
	if !ok {
		return StatusInvalidCommandQueue
	}
	mem, ok := o.buffers[b]
	if !ok {
		return StatusInvalidMemObject
	}
	if len(mapped) == 0 {
		return StatusInvalidValue
	}
	if err := clStatus(C.clEnqueueUnmapMemObject(queue, mem, unsafe.Pointer(&mapped[0]), 0, nil, nil)); err != nil {
		return err
	}
	return clStatus(C.clFinish(queue))
}

func (o *OpenCLBackend) FillBuffer(q QueueHandle, b BufferHandle, size uint64) error {
	queue, ok := o.queues[q]
	if !ok {
		return StatusInvalidCommandQueue
	}
	mem, ok := o.buffers[b]
	if !ok {
		return StatusInvalidMemObject
	}
	var zero C.cl_uchar
	if err := clStatus(C.clEnqueueFillBuffer(queue, mem, unsafe.Pointer(&zero), 1, 0, C.size_t(size), 0, nil, nil)); err != nil {
		return err
	}
	return clStatus(C.clFinish(queue))
}

func (o *OpenCLBackend) ReleaseKernel(k KernelHandle) error {
	kern, ok := o.kernels[k]
	if !ok {
		return StatusInvalidKernel
	}
	delete(o.kernels, k)
	return clStatus(C.clReleaseKernel(kern))
}

func (o *OpenCLBackend) ReleaseProgram(p ProgramHandle) error {
	prog, ok := o.programs[p]
	if !ok {
		return StatusInvalidProgram
	}
	delete(o.programs, p)
	return clStatus(C.clReleaseProgram(prog))
}

func (o *OpenCLBackend) ReleaseBuffer(b BufferHandle) error {
	mem, ok := o.buffers[b]
	if !ok {
		return StatusInvalidMemObject
	}
	delete(o.buffers, b)
	return clStatus(C.clReleaseMemObject(mem))
}

func (o *OpenCLBackend) ReleaseEvent(e EventHandle) error {
	slot, ok := o.events[e]
	if !ok {
		return StatusInvalidEvent
	}
	delete(o.events, e)
	if slot.ev == nil {
		return nil
	}
	return clStatus(C.clReleaseEvent(slot.ev))
}

func (o *OpenCLBackend) ReleaseQueue(q QueueHandle) error {
	queue, ok := o.queues[q]
	if !ok {
		return StatusInvalidCommandQueue
	}
	delete(o.queues, q)
	return clStatus(C.clReleaseCommandQueue(queue))
}

func (o *OpenCLBackend) ReleaseContext(c ContextHandle) error {
	ctx, ok := o.contexts[c]
	if !ok {
		return StatusInvalidContext
	}
	delete(o.contexts, c)
	return clStatus(C.clReleaseContext(ctx))
}
