package gpu

// Opaque handles issued by a Backend. Zero is never a valid handle.
type (
	PlatformHandle uintptr
	DeviceHandle   uintptr
	ContextHandle  uintptr
	QueueHandle    uintptr
	EventHandle    uintptr
	ProgramHandle  uintptr
	KernelHandle   uintptr
	BufferHandle   uintptr
)

// MemFlags mirrors the cl_mem_flags bit field.
type MemFlags uint64

const (
	MemReadWrite    MemFlags = 1 << 0
	MemWriteOnly    MemFlags = 1 << 1
	MemReadOnly     MemFlags = 1 << 2
	MemUseHostPtr   MemFlags = 1 << 3
	MemAllocHostPtr MemFlags = 1 << 4
	MemCopyHostPtr  MemFlags = 1 << 5
)

func (f MemFlags) Has(flag MemFlags) bool {
	return f&flag != 0
}

// Backend defines the compute runtime the Manager drives.
// It maps one to one onto the OpenCL 1.2 host API so the manager logic
// can run against the real runtime or the in-process host simulation.
//
// Implementation notes:
//   - Failures are reported as Status values so the manager can decode them
//   - Backends are not required to be safe for concurrent use; the Manager serialises calls
//   - Every Create call has a matching Release call
type Backend interface {
	// Name identifies the backend in logs and reports.
	Name() string

	Platforms() ([]PlatformHandle, error)
	PlatformVendor(p PlatformHandle) (string, error)
	// Devices lists every device of the platform regardless of type.
	Devices(p PlatformHandle) ([]DeviceHandle, error)
	// DeviceInfo queries the full capability descriptor of a device.
	// Index and Platform are filled in by the caller.
	DeviceInfo(d DeviceHandle) (Device, error)

	CreateContext(d DeviceHandle) (ContextHandle, error)
	ContextDevices(c ContextHandle) ([]DeviceHandle, error)
	CreateQueue(c ContextHandle, d DeviceHandle, profiling bool) (QueueHandle, error)
	// CreateEvent returns an event slot that records the most recent dispatch it is passed to.
	CreateEvent(c ContextHandle) (EventHandle, error)
	// EventProfiling returns the start and end timestamps in nanoseconds.
	EventProfiling(e EventHandle) (start, end uint64, err error)

	CreateProgram(c ContextHandle, source string) (ProgramHandle, error)
	BuildProgram(p ProgramHandle, d DeviceHandle, options string) error
	BuildLog(p ProgramHandle, d DeviceHandle) (string, error)
	CreateKernel(p ProgramHandle, name string) (KernelHandle, error)
	// SetKernelArg accepts a BufferHandle or a fixed size numeric value.
	SetKernelArg(k KernelHandle, index uint32, value any) error
	EnqueueNDRange(q QueueHandle, k KernelHandle, global, local uint64, e EventHandle) error
	Finish(q QueueHandle) error

	CreateBuffer(c ContextHandle, flags MemFlags, size uint64, host []byte) (BufferHandle, error)
	// MapBuffer performs a blocking read/write map of the first size bytes.
	MapBuffer(q QueueHandle, b BufferHandle, size uint64) ([]byte, error)
	UnmapBuffer(q QueueHandle, b BufferHandle, mapped []byte) error
	// FillBuffer sets the first size bytes of the buffer to zero.
	FillBuffer(q QueueHandle, b BufferHandle, size uint64) error

	ReleaseKernel(k KernelHandle) error
	ReleaseProgram(p ProgramHandle) error
	ReleaseBuffer(b BufferHandle) error
	ReleaseEvent(e EventHandle) error
	ReleaseQueue(q QueueHandle) error
	ReleaseContext(c ContextHandle) error
}
