package gpu

import (
	"encoding/binary"
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Operation names accepted by HostBackend.FailNext.
const (
	OpPlatforms      = "Platforms"
	OpPlatformVendor = "PlatformVendor"
	OpDevices        = "Devices"
	OpDeviceInfo     = "DeviceInfo"
	OpCreateContext  = "CreateContext"
	OpContextDevices = "ContextDevices"
	OpCreateQueue    = "CreateQueue"
	OpCreateEvent    = "CreateEvent"
	OpEventProfiling = "EventProfiling"
	OpCreateProgram  = "CreateProgram"
	OpBuildProgram   = "BuildProgram"
	OpCreateKernel   = "CreateKernel"
	OpSetKernelArg   = "SetKernelArg"
	OpEnqueueNDRange = "EnqueueNDRange"
	OpFinish         = "Finish"
	OpCreateBuffer   = "CreateBuffer"
	OpMapBuffer      = "MapBuffer"
	OpUnmapBuffer    = "UnmapBuffer"
	OpFillBuffer     = "FillBuffer"
	OpReleaseBuffer  = "ReleaseBuffer"
)

// HostPlatform describes one simulated platform and its devices.
type HostPlatform struct {
	Vendor  string
	Devices []Device
}

// DefaultHostPlatforms returns one platform exposing a CPU device followed by a GPU device.
func DefaultHostPlatforms() []HostPlatform {
	return []HostPlatform{
		{
			Vendor: "GGEMS Host Platform",
			Devices: []Device{
				{
					Type:              DeviceTypeCPU,
					Name:              fmt.Sprintf("Host CPU (%s)", runtime.GOARCH),
					Vendor:            "GGEMS",
					GlobalMemSize:     8 << 30,
					MaxMemAllocSize:   2 << 30,
					MaxComputeUnits:   uint32(runtime.NumCPU()),
					MaxClockFrequency: 2400,
					MaxWorkGroupSize:  8192,
				},
				{
					Type:              DeviceTypeGPU,
					Name:              "Host GPU",
					Vendor:            "GGEMS",
					GlobalMemSize:     4 << 30,
					MaxMemAllocSize:   1 << 30,
					MaxComputeUnits:   40,
					MaxClockFrequency: 1500,
					MaxWorkGroupSize:  1024,
				},
			},
		},
	}
}

// withHostDefaults fills every capability the platform description left empty.
func withHostDefaults(d Device) Device {
	if d.Type == DeviceTypeUnknown {
		d.Type = DeviceTypeCPU
	}
	if d.Name == "" {
		d.Name = "Host " + d.Type.String()
	}
	if d.Vendor == "" {
		d.Vendor = "GGEMS"
	}
	if d.Version == "" {
		d.Version = "OpenCL 1.2 host"
	}
	if d.DriverVersion == "" {
		d.DriverVersion = runtime.Version()
	}
	if d.OpenCLCVersion == "" {
		d.OpenCLCVersion = "OpenCL C 1.2"
	}
	if d.AddressBits == 0 {
		d.AddressBits = 64
	}
	d.Available = true
	d.CompilerAvailable = true
	if d.GlobalMemSize == 0 {
		d.GlobalMemSize = 1 << 30
	}
	if d.MaxMemAllocSize == 0 || d.MaxMemAllocSize > d.GlobalMemSize {
		d.MaxMemAllocSize = d.GlobalMemSize / 4
	}
	if d.LocalMemSize == 0 {
		d.LocalMemSize = 64 << 10
	}
	if d.GlobalMemCacheSize == 0 {
		d.GlobalMemCacheSize = 256 << 10
	}
	if d.GlobalMemCacheLineSize == 0 {
		d.GlobalMemCacheLineSize = 64
	}
	if d.MemBaseAddrAlign == 0 {
		d.MemBaseAddrAlign = 1024
	}
	if d.PrintfBufferSize == 0 {
		d.PrintfBufferSize = 1 << 20
	}
	if d.MaxComputeUnits == 0 {
		d.MaxComputeUnits = 1
	}
	if d.MaxClockFrequency == 0 {
		d.MaxClockFrequency = 1000
	}
	if d.MaxConstantBufferSize == 0 {
		d.MaxConstantBufferSize = 64 << 10
	}
	if d.MaxParameterSize == 0 {
		d.MaxParameterSize = 1024
	}
	if d.MaxWorkGroupSize == 0 {
		d.MaxWorkGroupSize = 256
	}
	if d.MaxWorkItemDimensions == 0 {
		d.MaxWorkItemDimensions = 3
	}
	if len(d.MaxWorkItemSizes) == 0 {
		d.MaxWorkItemSizes = []uint64{d.MaxWorkGroupSize, d.MaxWorkGroupSize, d.MaxWorkGroupSize}
	}
	if d.VectorFloat == (VectorWidths{}) {
		d.VectorChar = VectorWidths{Native: 16, Preferred: 16}
		d.VectorShort = VectorWidths{Native: 8, Preferred: 8}
		d.VectorInt = VectorWidths{Native: 4, Preferred: 4}
		d.VectorLong = VectorWidths{Native: 2, Preferred: 2}
		d.VectorHalf = VectorWidths{Native: 0, Preferred: 0}
		d.VectorFloat = VectorWidths{Native: 4, Preferred: 4}
		d.VectorDouble = VectorWidths{Native: 2, Preferred: 2}
	}
	return d
}

type hostContext struct {
	devices []DeviceHandle
	used    uint64
}

type hostQueue struct {
	context   ContextHandle
	device    DeviceHandle
	profiling bool
}

type hostEvent struct {
	context    ContextHandle
	profiling  bool
	complete   bool
	start, end uint64
}

type hostProgram struct {
	context ContextHandle
	source  string
	options string
	built   bool
	log     string
}

type hostKernel struct {
	program ProgramHandle
	name    string
	arity   int
	args    map[uint32]any
}

type hostBuffer struct {
	context ContextHandle
	flags   MemFlags
	data    []byte
	mapped  bool
}

// HostBackend simulates an OpenCL runtime in process memory.
// Buffers are byte slices, kernels run as registered Go functions.
type HostBackend struct {
	logger *zap.Logger
	mu     sync.Mutex

	next      uintptr
	platforms []PlatformHandle
	vendors   map[PlatformHandle]string
	byPlat    map[PlatformHandle][]DeviceHandle
	devices   map[DeviceHandle]Device

	contexts map[ContextHandle]*hostContext
	queues   map[QueueHandle]*hostQueue
	events   map[EventHandle]*hostEvent
	programs map[ProgramHandle]*hostProgram
	kernels  map[KernelHandle]*hostKernel
	buffers  map[BufferHandle]*hostBuffer

	hostKernels map[string]HostKernel
	faults      map[string]Status
	now         func() time.Time
}

// NewHostBackend creates a host backend exposing the given platforms.
// A nil platform list yields the default CPU + GPU platform.
func NewHostBackend(platforms []HostPlatform, logger *zap.Logger) *HostBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if platforms == nil {
		platforms = DefaultHostPlatforms()
	}
	h := &HostBackend{
		logger:      logger,
		vendors:     make(map[PlatformHandle]string),
		byPlat:      make(map[PlatformHandle][]DeviceHandle),
		devices:     make(map[DeviceHandle]Device),
		contexts:    make(map[ContextHandle]*hostContext),
		queues:      make(map[QueueHandle]*hostQueue),
		events:      make(map[EventHandle]*hostEvent),
		programs:    make(map[ProgramHandle]*hostProgram),
		kernels:     make(map[KernelHandle]*hostKernel),
		buffers:     make(map[BufferHandle]*hostBuffer),
		hostKernels: make(map[string]HostKernel),
		faults:      make(map[string]Status),
		now:         time.Now,
	}
	for _, p := range platforms {
		ph := PlatformHandle(h.handle())
		h.platforms = append(h.platforms, ph)
		h.vendors[ph] = p.Vendor
		for _, d := range p.Devices {
			dh := DeviceHandle(h.handle())
			h.byPlat[ph] = append(h.byPlat[ph], dh)
			h.devices[dh] = withHostDefaults(d)
		}
	}
	registerBuiltinKernels(h)
	return h
}

func (h *HostBackend) handle() uintptr {
	h.next++
	return h.next
}

// RegisterKernel binds a Go implementation to a kernel entry point name.
func (h *HostBackend) RegisterKernel(name string, fn HostKernel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hostKernels[name] = fn
}

// FailNext makes the next call of op return status.
func (h *HostBackend) FailNext(op string, status Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults[op] = status
}

// LiveBuffers returns the number of buffers not yet released.
func (h *HostBackend) LiveBuffers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.buffers)
}

// fault must be called with h.mu held.
func (h *HostBackend) fault(op string) error {
	if s, ok := h.faults[op]; ok {
		delete(h.faults, op)
		h.logger.Debug("Injected backend failure", zap.String("op", op), zap.Int32("status", int32(s)))
		return s
	}
	return nil
}

func (h *HostBackend) Name() string { return "host" }

func (h *HostBackend) Platforms() ([]PlatformHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpPlatforms); err != nil {
		return nil, err
	}
	if len(h.platforms) == 0 {
		return nil, StatusPlatformNotFoundKHR
	}
	return append([]PlatformHandle(nil), h.platforms...), nil
}

func (h *HostBackend) PlatformVendor(p PlatformHandle) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpPlatformVendor); err != nil {
		return "", err
	}
	v, ok := h.vendors[p]
	if !ok {
		return "", StatusInvalidPlatform
	}
	return v, nil
}

func (h *HostBackend) Devices(p PlatformHandle) ([]DeviceHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpDevices); err != nil {
		return nil, err
	}
	if _, ok := h.vendors[p]; !ok {
		return nil, StatusInvalidPlatform
	}
	devs := h.byPlat[p]
	if len(devs) == 0 {
		return nil, StatusDeviceNotFound
	}
	return append([]DeviceHandle(nil), devs...), nil
}

func (h *HostBackend) DeviceInfo(d DeviceHandle) (Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpDeviceInfo); err != nil {
		return Device{}, err
	}
	dev, ok := h.devices[d]
	if !ok {
		return Device{}, StatusInvalidDevice
	}
	dev.Handle = d
	dev.MaxWorkItemSizes = append([]uint64(nil), dev.MaxWorkItemSizes...)
	return dev, nil
}

func (h *HostBackend) CreateContext(d DeviceHandle) (ContextHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpCreateContext); err != nil {
		return 0, err
	}
	if _, ok := h.devices[d]; !ok {
		return 0, StatusInvalidDevice
	}
	c := ContextHandle(h.handle())
	h.contexts[c] = &hostContext{devices: []DeviceHandle{d}}
	return c, nil
}

func (h *HostBackend) ContextDevices(c ContextHandle) ([]DeviceHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpContextDevices); err != nil {
		return nil, err
	}
	ctx, ok := h.contexts[c]
	if !ok {
		return nil, StatusInvalidContext
	}
	return append([]DeviceHandle(nil), ctx.devices...), nil
}

func (h *HostBackend) CreateQueue(c ContextHandle, d DeviceHandle, profiling bool) (QueueHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpCreateQueue); err != nil {
		return 0, err
	}
	ctx, ok := h.contexts[c]
	if !ok {
		return 0, StatusInvalidContext
	}
	if !containsDevice(ctx.devices, d) {
		return 0, StatusInvalidDevice
	}
	q := QueueHandle(h.handle())
	h.queues[q] = &hostQueue{context: c, device: d, profiling: profiling}
	return q, nil
}

func (h *HostBackend) CreateEvent(c ContextHandle) (EventHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpCreateEvent); err != nil {
		return 0, err
	}
	if _, ok := h.contexts[c]; !ok {
		return 0, StatusInvalidContext
	}
	e := EventHandle(h.handle())
	h.events[e] = &hostEvent{context: c}
	return e, nil
}

func (h *HostBackend) EventProfiling(e EventHandle) (uint64, uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpEventProfiling); err != nil {
		return 0, 0, err
	}
	ev, ok := h.events[e]
	if !ok {
		return 0, 0, StatusInvalidEvent
	}
	if !ev.profiling || !ev.complete {
		return 0, 0, StatusProfilingInfoNotAvailable
	}
	return ev.start, ev.end, nil
}

var (
	kernelDecl   = regexp.MustCompile(`__kernel\s+void\s+(\w+)\s*\(([^)]*)\)`)
	errorPragmas = regexp.MustCompile(`(?m)^\s*#error\b(.*)$`)
)

func (h *HostBackend) CreateProgram(c ContextHandle, source string) (ProgramHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpCreateProgram); err != nil {
		return 0, err
	}
	if _, ok := h.contexts[c]; !ok {
		return 0, StatusInvalidContext
	}
	if source == "" {
		return 0, StatusInvalidValue
	}
	p := ProgramHandle(h.handle())
	h.programs[p] = &hostProgram{context: c, source: source}
	return p, nil
}

func (h *HostBackend) BuildProgram(p ProgramHandle, d DeviceHandle, options string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	prog, ok := h.programs[p]
	if !ok {
		return StatusInvalidProgram
	}
	ctx, ok := h.contexts[prog.context]
	if !ok {
		return StatusInvalidContext
	}
	if !containsDevice(ctx.devices, d) {
		return StatusInvalidDevice
	}
	if err := h.fault(OpBuildProgram); err != nil {
		prog.log = fmt.Sprintf("error: build aborted (%s)", err)
		return err
	}
	for _, opt := range strings.Fields(options) {
		if !strings.HasPrefix(opt, "-") {
			prog.log = fmt.Sprintf("error: invalid build option '%s'", opt)
			return StatusInvalidBuildOptions
		}
	}

	var problems []string
	for i, line := range strings.Split(prog.source, "\n") {
		if m := errorPragmas.FindStringSubmatch(line); m != nil {
			problems = append(problems, fmt.Sprintf("<source>:%d: error: %s", i+1, strings.TrimSpace(m[1])))
		}
	}
	if open, closed := strings.Count(prog.source, "{"), strings.Count(prog.source, "}"); open != closed {
		problems = append(problems, fmt.Sprintf("<source>: error: unbalanced braces (%d opened, %d closed)", open, closed))
	}
	if len(problems) > 0 {
		prog.built = false
		prog.log = strings.Join(problems, "\n")
		return StatusBuildProgramFailure
	}
	prog.built = true
	prog.options = options
	prog.log = ""
	return nil
}

func (h *HostBackend) BuildLog(p ProgramHandle, d DeviceHandle) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	prog, ok := h.programs[p]
	if !ok {
		return "", StatusInvalidProgram
	}
	return prog.log, nil
}

func (h *HostBackend) CreateKernel(p ProgramHandle, name string) (KernelHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpCreateKernel); err != nil {
		return 0, err
	}
	prog, ok := h.programs[p]
	if !ok {
		return 0, StatusInvalidProgram
	}
	if !prog.built {
		return 0, StatusInvalidProgramExecutable
	}
	for _, m := range kernelDecl.FindAllStringSubmatch(prog.source, -1) {
		if m[1] != name {
			continue
		}
		k := KernelHandle(h.handle())
		h.kernels[k] = &hostKernel{
			program: p,
			name:    name,
			arity:   countParams(m[2]),
			args:    make(map[uint32]any),
		}
		return k, nil
	}
	return 0, StatusInvalidKernelName
}

func countParams(list string) int {
	list = strings.TrimSpace(list)
	if list == "" || list == "void" {
		return 0
	}
	return strings.Count(list, ",") + 1
}

func (h *HostBackend) SetKernelArg(k KernelHandle, index uint32, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpSetKernelArg); err != nil {
		return err
	}
	kern, ok := h.kernels[k]
	if !ok {
		return StatusInvalidKernel
	}
	if int(index) >= kern.arity {
		return StatusInvalidArgIndex
	}
	switch v := value.(type) {
	case BufferHandle:
		if _, ok := h.buffers[v]; !ok {
			return StatusInvalidMemObject
		}
	default:
		if binary.Size(value) <= 0 {
			return StatusInvalidArgValue
		}
	}
	kern.args[index] = value
	return nil
}

func (h *HostBackend) EnqueueNDRange(q QueueHandle, k KernelHandle, global, local uint64, e EventHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpEnqueueNDRange); err != nil {
		return err
	}
	queue, ok := h.queues[q]
	if !ok {
		return StatusInvalidCommandQueue
	}
	kern, ok := h.kernels[k]
	if !ok {
		return StatusInvalidKernel
	}
	if h.programs[kern.program].context != queue.context {
		return StatusInvalidContext
	}
	ev, ok := h.events[e]
	if !ok {
		return StatusInvalidEvent
	}
	if global == 0 {
		return StatusInvalidGlobalWorkSize
	}
	if local != 0 && (global%local != 0 || local > h.devices[queue.device].MaxWorkGroupSize) {
		return StatusInvalidWorkGroupSize
	}
	for i := 0; i < kern.arity; i++ {
		if _, ok := kern.args[uint32(i)]; !ok {
			return StatusInvalidKernelArgs
		}
	}

	start := uint64(h.now().UnixNano())
	if fn, ok := h.hostKernels[kern.name]; ok {
		call := &KernelCall{
			Name:    kern.name,
			Global:  global,
			Local:   local,
			Options: h.programs[kern.program].options,
			args:    kern.args,
			buffers: h.buffers,
		}
		if err := fn(call); err != nil {
			h.logger.Error("Host kernel failed", zap.String("kernel", kern.name), zap.Error(err))
			ev.complete = false
			return StatusOutOfResources
		}
	}
	end := uint64(h.now().UnixNano())
	ev.profiling = queue.profiling
	ev.complete = true
	ev.start, ev.end = start, end
	return nil
}

// Finish returns immediately; host dispatch completes inside EnqueueNDRange.
func (h *HostBackend) Finish(q QueueHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpFinish); err != nil {
		return err
	}
	if _, ok := h.queues[q]; !ok {
		return StatusInvalidCommandQueue
	}
	return nil
}

func (h *HostBackend) CreateBuffer(c ContextHandle, flags MemFlags, size uint64, host []byte) (BufferHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpCreateBuffer); err != nil {
		return 0, err
	}
	ctx, ok := h.contexts[c]
	if !ok {
		return 0, StatusInvalidContext
	}
	dev := h.devices[ctx.devices[0]]
	if size == 0 || size > dev.MaxMemAllocSize {
		return 0, StatusInvalidBufferSize
	}
	wantsHost := flags.Has(MemUseHostPtr) || flags.Has(MemCopyHostPtr)
	if wantsHost != (host != nil) || (host != nil && uint64(len(host)) < size) {
		return 0, StatusInvalidHostPtr
	}
	if ctx.used+size > dev.GlobalMemSize {
		return 0, StatusMemObjectAllocationFailure
	}
	data := make([]byte, size)
	copy(data, host)
	b := BufferHandle(h.handle())
	h.buffers[b] = &hostBuffer{context: c, flags: flags, data: data}
	ctx.used += size
	return b, nil
}

func (h *HostBackend) MapBuffer(q QueueHandle, b BufferHandle, size uint64) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpMapBuffer); err != nil {
		return nil, err
	}
	if _, ok := h.queues[q]; !ok {
		return nil, StatusInvalidCommandQueue
	}
	buf, ok := h.buffers[b]
	if !ok {
		return nil, StatusInvalidMemObject
	}
	if size == 0 || size > uint64(len(buf.data)) {
		return nil, StatusInvalidValue
	}
	buf.mapped = true
	return buf.data[:size:size], nil
}

func (h *HostBackend) UnmapBuffer(q QueueHandle, b BufferHandle, mapped []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpUnmapBuffer); err != nil {
		return err
	}
	if _, ok := h.queues[q]; !ok {
		return StatusInvalidCommandQueue
	}
	buf, ok := h.buffers[b]
	if !ok {
		return StatusInvalidMemObject
	}
	if !buf.mapped || len(mapped) == 0 || &mapped[0] != &buf.data[0] {
		return StatusInvalidValue
	}
	buf.mapped = false
	return nil
}

func (h *HostBackend) FillBuffer(q QueueHandle, b BufferHandle, size uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpFillBuffer); err != nil {
		return err
	}
	if _, ok := h.queues[q]; !ok {
		return StatusInvalidCommandQueue
	}
	buf, ok := h.buffers[b]
	if !ok {
		return StatusInvalidMemObject
	}
	if size > uint64(len(buf.data)) {
		return StatusInvalidValue
	}
	clear(buf.data[:size])
	return nil
}

func (h *HostBackend) ReleaseKernel(k KernelHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.kernels[k]; !ok {
		return StatusInvalidKernel
	}
	delete(h.kernels, k)
	return nil
}

func (h *HostBackend) ReleaseProgram(p ProgramHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.programs[p]; !ok {
		return StatusInvalidProgram
	}
	delete(h.programs, p)
	return nil
}

func (h *HostBackend) ReleaseBuffer(b BufferHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fault(OpReleaseBuffer); err != nil {
		return err
	}
	buf, ok := h.buffers[b]
	if !ok {
		return StatusInvalidMemObject
	}
	if ctx, ok := h.contexts[buf.context]; ok {
		ctx.used -= uint64(len(buf.data))
	}
	delete(h.buffers, b)
	return nil
}

func (h *HostBackend) ReleaseEvent(e EventHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.events[e]; !ok {
		return StatusInvalidEvent
	}
	delete(h.events, e)
	return nil
}

func (h *HostBackend) ReleaseQueue(q QueueHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.queues[q]; !ok {
		return StatusInvalidCommandQueue
	}
	delete(h.queues, q)
	return nil
}

func (h *HostBackend) ReleaseContext(c ContextHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.contexts[c]; !ok {
		return StatusInvalidContext
	}
	delete(h.contexts, c)
	return nil
}

func containsDevice(devices []DeviceHandle, d DeviceHandle) bool {
	for _, x := range devices {
		if x == d {
			return true
		}
	}
	return false
}
