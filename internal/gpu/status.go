package gpu

import "fmt"

// Status is a raw status code returned by a compute backend call.
// Zero means success; all failures are negative, following the OpenCL numbering.
type Status int32

// Category groups status codes into the diagnostic classes reported to callers.
type Category string

const (
	CategoryNone        Category = "none"
	CategoryDevice      Category = "device"
	CategoryResource    Category = "resource"
	CategoryInvalidArg  Category = "invalid-argument"
	CategoryCompilation Category = "compilation"
	CategoryImage       Category = "image"
	CategoryExtension   Category = "extension"
	CategoryUnknown     Category = "unknown"
)

const (
	StatusSuccess                            Status = 0
	StatusDeviceNotFound                     Status = -1
	StatusDeviceNotAvailable                 Status = -2
	StatusCompilerNotAvailable               Status = -3
	StatusMemObjectAllocationFailure         Status = -4
	StatusOutOfResources                     Status = -5
	StatusOutOfHostMemory                    Status = -6
	StatusProfilingInfoNotAvailable          Status = -7
	StatusMemCopyOverlap                     Status = -8
	StatusImageFormatMismatch                Status = -9
	StatusImageFormatNotSupported            Status = -10
	StatusBuildProgramFailure                Status = -11
	StatusMapFailure                         Status = -12
	StatusMisalignedSubBufferOffset          Status = -13
	StatusExecStatusErrorForEventsInWaitList Status = -14
	StatusCompileProgramFailure              Status = -15
	StatusLinkerNotAvailable                 Status = -16
	StatusLinkProgramFailure                 Status = -17
	StatusDevicePartitionFailed              Status = -18
	StatusKernelArgInfoNotAvailable          Status = -19

	StatusInvalidValue                 Status = -30
	StatusInvalidDeviceType            Status = -31
	StatusInvalidPlatform              Status = -32
	StatusInvalidDevice                Status = -33
	StatusInvalidContext               Status = -34
	StatusInvalidQueueProperties       Status = -35
	StatusInvalidCommandQueue          Status = -36
	StatusInvalidHostPtr               Status = -37
	StatusInvalidMemObject             Status = -38
	StatusInvalidImageFormatDescriptor Status = -39
	StatusInvalidImageSize             Status = -40
	StatusInvalidSampler               Status = -41
	StatusInvalidBinary                Status = -42
	StatusInvalidBuildOptions          Status = -43
	StatusInvalidProgram               Status = -44
	StatusInvalidProgramExecutable     Status = -45
	StatusInvalidKernelName            Status = -46
	StatusInvalidKernelDefinition      Status = -47
	StatusInvalidKernel                Status = -48
	StatusInvalidArgIndex              Status = -49
	StatusInvalidArgValue              Status = -50
	StatusInvalidArgSize               Status = -51
	StatusInvalidKernelArgs            Status = -52
	StatusInvalidWorkDimension         Status = -53
	StatusInvalidWorkGroupSize         Status = -54
	StatusInvalidWorkItemSize          Status = -55
	StatusInvalidGlobalOffset          Status = -56
	StatusInvalidEventWaitList         Status = -57
	StatusInvalidEvent                 Status = -58
	StatusInvalidOperation             Status = -59
	StatusInvalidGLObject              Status = -60
	StatusInvalidBufferSize            Status = -61
	StatusInvalidMipLevel              Status = -62
	StatusInvalidGlobalWorkSize        Status = -63
	StatusInvalidProperty              Status = -64
	StatusInvalidImageDescriptor       Status = -65
	StatusInvalidCompilerOptions       Status = -66
	StatusInvalidLinkerOptions         Status = -67
	StatusInvalidDevicePartitionCount  Status = -68
	StatusInvalidPipeSize              Status = -69
	StatusInvalidDeviceQueue           Status = -70

	StatusInvalidGLSharegroupReferenceKHR Status = -1000
	StatusPlatformNotFoundKHR             Status = -1001
	StatusInvalidD3D10DeviceKHR           Status = -1002
	StatusInvalidD3D10ResourceKHR         Status = -1003
	StatusD3D10ResourceAlreadyAcquiredKHR Status = -1004
	StatusD3D10ResourceNotAcquiredKHR     Status = -1005
	StatusInvalidD3D11DeviceKHR           Status = -1006
	StatusInvalidD3D11ResourceKHR         Status = -1007
	StatusD3D11ResourceAlreadyAcquiredKHR Status = -1008
	StatusD3D11ResourceNotAcquiredKHR     Status = -1009

	StatusNVidiaIllegalAccess Status = -9999
)

// Message is the decoded, human readable form of a Status.
type Message struct {
	Code        Status
	Name        string
	Category    Category
	Description string
}

func (m Message) String() string {
	if m.Description == "" {
		return fmt.Sprintf("%s (%d)", m.Name, m.Code)
	}
	return fmt.Sprintf("%s (%d): %s", m.Name, m.Code, m.Description)
}

type entry struct {
	name        string
	category    Category
	description string
}

var statusTable = map[Status]entry{
	StatusSuccess: {"CL_SUCCESS", CategoryNone, ""},

	StatusDeviceNotFound:                     {"CL_DEVICE_NOT_FOUND", CategoryDevice, "no device matching the requested device type was found"},
	StatusDeviceNotAvailable:                 {"CL_DEVICE_NOT_AVAILABLE", CategoryDevice, "a device was listed by the platform but is currently not available"},
	StatusCompilerNotAvailable:               {"CL_COMPILER_NOT_AVAILABLE", CategoryCompilation, "program built from source but the device reports no compiler"},
	StatusMemObjectAllocationFailure:         {"CL_MEM_OBJECT_ALLOCATION_FAILURE", CategoryResource, "failed to allocate memory for a buffer object"},
	StatusOutOfResources:                     {"CL_OUT_OF_RESOURCES", CategoryResource, "failed to allocate resources required by the implementation on the device"},
	StatusOutOfHostMemory:                    {"CL_OUT_OF_HOST_MEMORY", CategoryResource, "failed to allocate resources required by the implementation on the host"},
	StatusProfilingInfoNotAvailable:          {"CL_PROFILING_INFO_NOT_AVAILABLE", CategoryDevice, "queue has no profiling enabled, the event command is not complete, or the event is a user event"},
	StatusMemCopyOverlap:                     {"CL_MEM_COPY_OVERLAP", CategoryInvalidArg, "source and destination regions of a copy overlap"},
	StatusImageFormatMismatch:                {"CL_IMAGE_FORMAT_MISMATCH", CategoryImage, "source and destination images do not use the same image format"},
	StatusImageFormatNotSupported:            {"CL_IMAGE_FORMAT_NOT_SUPPORTED", CategoryImage, "the image format is not supported"},
	StatusBuildProgramFailure:                {"CL_BUILD_PROGRAM_FAILURE", CategoryCompilation, "failed to build the program executable"},
	StatusMapFailure:                         {"CL_MAP_FAILURE", CategoryResource, "failed to map the requested region into the host address space"},
	StatusMisalignedSubBufferOffset:          {"CL_MISALIGNED_SUB_BUFFER_OFFSET", CategoryInvalidArg, "sub-buffer offset is not aligned to the device base address alignment"},
	StatusExecStatusErrorForEventsInWaitList: {"CL_EXEC_STATUS_ERROR_FOR_EVENTS_IN_WAIT_LIST", CategoryDevice, "an event in the wait list terminated with a negative execution status"},
	StatusCompileProgramFailure:              {"CL_COMPILE_PROGRAM_FAILURE", CategoryCompilation, "failed to compile the program source"},
	StatusLinkerNotAvailable:                 {"CL_LINKER_NOT_AVAILABLE", CategoryCompilation, "the device reports no linker"},
	StatusLinkProgramFailure:                 {"CL_LINK_PROGRAM_FAILURE", CategoryCompilation, "failed to link the compiled binaries or libraries"},
	StatusDevicePartitionFailed:              {"CL_DEVICE_PARTITION_FAILED", CategoryDevice, "the device could not be further partitioned"},
	StatusKernelArgInfoNotAvailable:          {"CL_KERNEL_ARG_INFO_NOT_AVAILABLE", CategoryCompilation, "argument information is not available for the kernel"},

	StatusInvalidValue:                 {"CL_INVALID_VALUE", CategoryInvalidArg, "two or more coupled parameters had errors"},
	StatusInvalidDeviceType:            {"CL_INVALID_DEVICE_TYPE", CategoryInvalidArg, "an invalid device type was given"},
	StatusInvalidPlatform:              {"CL_INVALID_PLATFORM", CategoryInvalidArg, "an invalid platform was given"},
	StatusInvalidDevice:                {"CL_INVALID_DEVICE", CategoryInvalidArg, "device is invalid or not associated with the platform"},
	StatusInvalidContext:               {"CL_INVALID_CONTEXT", CategoryInvalidArg, "context is not a valid context"},
	StatusInvalidQueueProperties:       {"CL_INVALID_QUEUE_PROPERTIES", CategoryInvalidArg, "queue properties are valid but not supported by the device"},
	StatusInvalidCommandQueue:          {"CL_INVALID_COMMAND_QUEUE", CategoryInvalidArg, "command queue is not a valid command queue"},
	StatusInvalidHostPtr:               {"CL_INVALID_HOST_PTR", CategoryInvalidArg, "host pointer and copy/use host pointer flags are inconsistent"},
	StatusInvalidMemObject:             {"CL_INVALID_MEM_OBJECT", CategoryInvalidArg, "memory object is not valid"},
	StatusInvalidImageFormatDescriptor: {"CL_INVALID_IMAGE_FORMAT_DESCRIPTOR", CategoryImage, "texture format does not map to a supported image format"},
	StatusInvalidImageSize:             {"CL_INVALID_IMAGE_SIZE", CategoryImage, "image dimensions are not supported by the device"},
	StatusInvalidSampler:               {"CL_INVALID_SAMPLER", CategoryInvalidArg, "sampler is not a valid sampler object"},
	StatusInvalidBinary:                {"CL_INVALID_BINARY", CategoryCompilation, "program binary is unfit for the selected device"},
	StatusInvalidBuildOptions:          {"CL_INVALID_BUILD_OPTIONS", CategoryCompilation, "build options are invalid"},
	StatusInvalidProgram:               {"CL_INVALID_PROGRAM", CategoryCompilation, "program is not a valid program object"},
	StatusInvalidProgramExecutable:     {"CL_INVALID_PROGRAM_EXECUTABLE", CategoryCompilation, "no successfully built executable for the queue device"},
	StatusInvalidKernelName:            {"CL_INVALID_KERNEL_NAME", CategoryCompilation, "kernel name not found in program"},
	StatusInvalidKernelDefinition:      {"CL_INVALID_KERNEL_DEFINITION", CategoryCompilation, "kernel signature differs between the devices the program was built for"},
	StatusInvalidKernel:                {"CL_INVALID_KERNEL", CategoryInvalidArg, "kernel is not a valid kernel object"},
	StatusInvalidArgIndex:              {"CL_INVALID_ARG_INDEX", CategoryInvalidArg, "argument index is not valid"},
	StatusInvalidArgValue:              {"CL_INVALID_ARG_VALUE", CategoryInvalidArg, "argument value is not valid"},
	StatusInvalidArgSize:               {"CL_INVALID_ARG_SIZE", CategoryInvalidArg, "argument size does not match the declared argument type"},
	StatusInvalidKernelArgs:            {"CL_INVALID_KERNEL_ARGS", CategoryInvalidArg, "kernel argument values have not been specified"},
	StatusInvalidWorkDimension:         {"CL_INVALID_WORK_DIMENSION", CategoryInvalidArg, "work dimension is not between 1 and 3"},
	StatusInvalidWorkGroupSize:         {"CL_INVALID_WORK_GROUP_SIZE", CategoryInvalidArg, "global size is not divisible by the local size, or the local size exceeds the device limit"},
	StatusInvalidWorkItemSize:          {"CL_INVALID_WORK_ITEM_SIZE", CategoryInvalidArg, "local size exceeds the device maximum work item sizes"},
	StatusInvalidGlobalOffset:          {"CL_INVALID_GLOBAL_OFFSET", CategoryInvalidArg, "global offset plus global size overflows the device size_t"},
	StatusInvalidEventWaitList:         {"CL_INVALID_EVENT_WAIT_LIST", CategoryInvalidArg, "event wait list and its length are inconsistent"},
	StatusInvalidEvent:                 {"CL_INVALID_EVENT", CategoryInvalidArg, "event objects are not valid"},
	StatusInvalidOperation:             {"CL_INVALID_OPERATION", CategoryInvalidArg, "operation is not valid in the current state"},
	StatusInvalidGLObject:              {"CL_INVALID_GL_OBJECT", CategoryImage, "texture is not a usable GL texture object"},
	StatusInvalidBufferSize:            {"CL_INVALID_BUFFER_SIZE", CategoryInvalidArg, "buffer size is zero or exceeds the device maximum allocation size"},
	StatusInvalidMipLevel:              {"CL_INVALID_MIP_LEVEL", CategoryImage, "non-zero mipmap level is not supported"},
	StatusInvalidGlobalWorkSize:        {"CL_INVALID_GLOBAL_WORK_SIZE", CategoryInvalidArg, "global work size is missing, zero, or out of range"},
	StatusInvalidProperty:              {"CL_INVALID_PROPERTY", CategoryInvalidArg, "a property is invalid for this function"},
	StatusInvalidImageDescriptor:       {"CL_INVALID_IMAGE_DESCRIPTOR", CategoryImage, "image descriptor is missing or invalid"},
	StatusInvalidCompilerOptions:       {"CL_INVALID_COMPILER_OPTIONS", CategoryCompilation, "compiler options are invalid"},
	StatusInvalidLinkerOptions:         {"CL_INVALID_LINKER_OPTIONS", CategoryCompilation, "linker options are invalid"},
	StatusInvalidDevicePartitionCount:  {"CL_INVALID_DEVICE_PARTITION_COUNT", CategoryDevice, "requested sub-device partition counts exceed device limits"},
	StatusInvalidPipeSize:              {"CL_INVALID_PIPE_SIZE", CategoryInvalidArg, "pipe packet size or packet count is invalid"},
	StatusInvalidDeviceQueue:           {"CL_INVALID_DEVICE_QUEUE", CategoryInvalidArg, "queue_t argument is not a valid device queue"},

	StatusInvalidGLSharegroupReferenceKHR: {"CL_INVALID_GL_SHAREGROUP_REFERENCE_KHR", CategoryExtension, "CL and GL are not on the same device"},
	StatusPlatformNotFoundKHR:             {"CL_PLATFORM_NOT_FOUND_KHR", CategoryExtension, "no valid ICDs found"},
	StatusInvalidD3D10DeviceKHR:           {"CL_INVALID_D3D10_DEVICE_KHR", CategoryExtension, "Direct3D 10 device is not compatible with the context devices"},
	StatusInvalidD3D10ResourceKHR:         {"CL_INVALID_D3D10_RESOURCE_KHR", CategoryExtension, "resource is not a Direct3D 10 buffer or texture"},
	StatusD3D10ResourceAlreadyAcquiredKHR: {"CL_D3D10_RESOURCE_ALREADY_ACQUIRED_KHR", CategoryExtension, "memory object is already acquired"},
	StatusD3D10ResourceNotAcquiredKHR:     {"CL_D3D10_RESOURCE_NOT_ACQUIRED_KHR", CategoryExtension, "memory object is not acquired"},
	StatusInvalidD3D11DeviceKHR:           {"CL_INVALID_D3D11_DEVICE_KHR", CategoryExtension, "Direct3D 11 device is not compatible with the context devices"},
	StatusInvalidD3D11ResourceKHR:         {"CL_INVALID_D3D11_RESOURCE_KHR", CategoryExtension, "resource is not a Direct3D 11 buffer or texture"},
	StatusD3D11ResourceAlreadyAcquiredKHR: {"CL_D3D11_RESOURCE_ALREADY_ACQUIRED_KHR", CategoryExtension, "memory object is already acquired"},
	StatusD3D11ResourceNotAcquiredKHR:     {"CL_D3D11_RESOURCE_NOT_ACQUIRED_KHR", CategoryExtension, "memory object is not acquired"},

	StatusNVidiaIllegalAccess: {"NVIDIA_ILLEGAL_ACCESS", CategoryExtension, "illegal read or write to a buffer"},
}

// Decode maps any status code to its diagnostic message. Codes outside the
// table decode to the unknown category.
func Decode(s Status) Message {
	e, ok := statusTable[s]
	if !ok {
		return Message{Code: s, Name: "UNKNOWN_ERROR", Category: CategoryUnknown, Description: "unknown backend status code"}
	}
	return Message{Code: s, Name: e.name, Category: e.category, Description: e.description}
}

// Error implements error so backends can return a Status directly.
func (s Status) Error() string {
	return Decode(s).String()
}

// Name returns the symbolic name of the status code.
func (s Status) Name() string {
	return Decode(s).Name
}

// IsSuccess reports whether s is the success code.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}
