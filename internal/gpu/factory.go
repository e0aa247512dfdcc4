package gpu

import (
	"github.com/ggems/ggems/internal/config"
	"go.uber.org/zap"
)

// NewBackend creates the backend selected by cfg.Compute.Backend.
// When OpenCL is requested but unavailable, it falls back to the host backend.
func NewBackend(cfg *config.Config, logger *zap.Logger) Backend {
	if cfg.Compute.Backend == config.BackendOpenCL {
		backend, err := NewOpenCLBackend(logger)
		if err == nil {
			logger.Info("Using OpenCL backend")
			return backend
		}
		logger.Warn("OpenCL backend not available, falling back to host backend", zap.Error(err))
	}

	logger.Info("Using host backend")
	return NewHostBackend(HostPlatformsFromConfig(cfg), logger)
}

// HostPlatformsFromConfig converts the host section of cfg. It returns nil
// when no platform is configured so the default platform is used.
func HostPlatformsFromConfig(cfg *config.Config) []HostPlatform {
	if len(cfg.Host.Platforms) == 0 {
		return nil
	}
	platforms := make([]HostPlatform, 0, len(cfg.Host.Platforms))
	for _, p := range cfg.Host.Platforms {
		platform := HostPlatform{Vendor: p.Vendor}
		for _, d := range p.Devices {
			platform.Devices = append(platform.Devices, Device{
				Type:              ParseDeviceType(d.Type),
				Name:              d.Name,
				Vendor:            d.Vendor,
				GlobalMemSize:     uint64(d.GlobalMemSize),
				MaxMemAllocSize:   uint64(d.MaxMemAllocSize),
				LocalMemSize:      uint64(d.LocalMemSize),
				MaxComputeUnits:   d.MaxComputeUnits,
				MaxClockFrequency: d.MaxClockFrequency,
				MaxWorkGroupSize:  d.MaxWorkGroupSize,
			})
		}
		platforms = append(platforms, platform)
	}
	return platforms
}

// OptionsFromConfig returns the manager options of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		FastMath:        cfg.Compute.FastMath,
		DoublePrecision: cfg.Compute.DoublePrecision,
		WorkGroupSize:   cfg.Compute.WorkGroupSize,
	}
}

// VerbosityFromConfig returns the reporters enabled in cfg.
func VerbosityFromConfig(cfg *config.Config) Verbosity {
	return Verbosity{
		Platform:         cfg.Verbose.Platform,
		Device:           cfg.Verbose.Device,
		Context:          cfg.Verbose.Context,
		Queue:            cfg.Verbose.Queue,
		ActivatedContext: cfg.Verbose.ActivatedContext,
		BuildOptions:     cfg.Verbose.BuildOptions,
		RAM:              cfg.Verbose.RAM,
	}
}
