package gpu

import "strings"

// DeviceType is the kind of compute unit behind a device.
type DeviceType int

const (
	DeviceTypeUnknown DeviceType = iota
	DeviceTypeCPU
	DeviceTypeGPU
	DeviceTypeAccelerator
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeCPU:
		return "CPU"
	case DeviceTypeGPU:
		return "GPU"
	case DeviceTypeAccelerator:
		return "ACCELERATOR"
	default:
		return "UNKNOWN"
	}
}

// ParseDeviceType accepts "cpu", "gpu" and "accelerator" in any case.
func ParseDeviceType(s string) DeviceType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu":
		return DeviceTypeCPU
	case "gpu":
		return DeviceTypeGPU
	case "accelerator", "acc":
		return DeviceTypeAccelerator
	default:
		return DeviceTypeUnknown
	}
}

// VectorWidths holds native and preferred vector widths for one scalar type.
type VectorWidths struct {
	Native    uint32 `json:"native"`
	Preferred uint32 `json:"preferred"`
}

// Device is the capability descriptor of one device, captured once at discovery.
type Device struct {
	Index    int          `json:"index"`
	Platform int          `json:"platform"`
	Handle   DeviceHandle `json:"-"`
	Type     DeviceType   `json:"type"`
	Name     string       `json:"name"`
	Vendor   string       `json:"vendor"`
	Version  string       `json:"version"`

	DriverVersion  string `json:"driverVersion"`
	OpenCLCVersion string `json:"openclCVersion"`
	AddressBits    uint32 `json:"addressBits"`

	Available         bool `json:"available"`
	CompilerAvailable bool `json:"compilerAvailable"`

	GlobalMemCacheSize     uint64 `json:"globalMemCacheSize"`
	GlobalMemCacheLineSize uint32 `json:"globalMemCacheLineSize"`
	GlobalMemSize          uint64 `json:"globalMemSize"`
	LocalMemSize           uint64 `json:"localMemSize"`
	MemBaseAddrAlign       uint32 `json:"memBaseAddrAlign"`
	PrintfBufferSize       uint64 `json:"printfBufferSize"`

	ImageSupport       bool   `json:"imageSupport"`
	ImageMaxArraySize  uint64 `json:"imageMaxArraySize"`
	ImageMaxBufferSize uint64 `json:"imageMaxBufferSize"`
	Image2DMaxWidth    uint64 `json:"image2DMaxWidth"`
	Image2DMaxHeight   uint64 `json:"image2DMaxHeight"`
	Image3DMaxWidth    uint64 `json:"image3DMaxWidth"`
	Image3DMaxHeight   uint64 `json:"image3DMaxHeight"`
	Image3DMaxDepth    uint64 `json:"image3DMaxDepth"`

	MaxClockFrequency     uint32   `json:"maxClockFrequency"` // MHz
	MaxComputeUnits       uint32   `json:"maxComputeUnits"`
	MaxConstantBufferSize uint64   `json:"maxConstantBufferSize"`
	MaxMemAllocSize       uint64   `json:"maxMemAllocSize"`
	MaxReadImageArgs      uint32   `json:"maxReadImageArgs"`
	MaxWriteImageArgs     uint32   `json:"maxWriteImageArgs"`
	MaxParameterSize      uint64   `json:"maxParameterSize"`
	MaxSamplers           uint32   `json:"maxSamplers"`
	MaxWorkItemDimensions uint32   `json:"maxWorkItemDimensions"`
	MaxWorkGroupSize      uint64   `json:"maxWorkGroupSize"`
	MaxWorkItemSizes      []uint64 `json:"maxWorkItemSizes"`

	VectorChar   VectorWidths `json:"vectorChar"`
	VectorShort  VectorWidths `json:"vectorShort"`
	VectorInt    VectorWidths `json:"vectorInt"`
	VectorLong   VectorWidths `json:"vectorLong"`
	VectorHalf   VectorWidths `json:"vectorHalf"`
	VectorFloat  VectorWidths `json:"vectorFloat"`
	VectorDouble VectorWidths `json:"vectorDouble"`
}

// IsCPU reports whether the device is a CPU.
func (d *Device) IsCPU() bool { return d.Type == DeviceTypeCPU }

// IsGPU reports whether the device is a GPU.
func (d *Device) IsGPU() bool { return d.Type == DeviceTypeGPU }

// Platform is a vendor compute stack and the indices of its devices.
type Platform struct {
	Index   int            `json:"index"`
	Handle  PlatformHandle `json:"-"`
	Vendor  string         `json:"vendor"`
	Devices []int          `json:"devices"`
}
