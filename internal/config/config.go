package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// ByteSize is a size in bytes that accepts plain integers or strings such as "4GiB" in YAML.
type ByteSize uint64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var n uint64
	if err := value.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

type HostDevice struct {
	Name              string   `yaml:"name"`
	Type              string   `yaml:"type"`
	Vendor            string   `yaml:"vendor"`
	GlobalMemSize     ByteSize `yaml:"globalMemSize"`
	MaxMemAllocSize   ByteSize `yaml:"maxMemAllocSize"`
	LocalMemSize      ByteSize `yaml:"localMemSize"`
	MaxComputeUnits   uint32   `yaml:"maxComputeUnits"`
	MaxClockFrequency uint32   `yaml:"maxClockFrequency"`
	MaxWorkGroupSize  uint64   `yaml:"maxWorkGroupSize"`
}

type HostPlatform struct {
	Vendor  string       `yaml:"vendor"`
	Devices []HostDevice `yaml:"devices"`
}

type Config struct {
	Logger struct {
		Verbosity string `yaml:"verbosity"`
		File      string `yaml:"file"`
	} `yaml:"logger"`
	Compute struct {
		Backend         string `yaml:"backend"`
		ContextIndex    uint32 `yaml:"contextIndex"`
		FastMath        bool   `yaml:"fastMath"`
		DoublePrecision bool   `yaml:"doublePrecision"`
		WorkGroupSize   uint64 `yaml:"workGroupSize"`
		KernelDir       string `yaml:"kernelDir"`
	} `yaml:"compute"`
	Verbose struct {
		Platform         bool `yaml:"platform"`
		Device           bool `yaml:"device"`
		Context          bool `yaml:"context"`
		Queue            bool `yaml:"queue"`
		ActivatedContext bool `yaml:"activatedContext"`
		BuildOptions     bool `yaml:"buildOptions"`
		RAM              bool `yaml:"ram"`
	} `yaml:"verbose"`
	Host struct {
		Platforms []HostPlatform `yaml:"platforms"`
	} `yaml:"host"`
	Metrics struct {
		ListenAddress string `yaml:"listenAddress"`
	} `yaml:"metrics"`
}

const (
	BackendHost   = "host"
	BackendOpenCL = "opencl"
)

// Default returns a configuration that runs on the host backend with one CPU and one GPU device.
func Default() *Config {
	var config Config
	config.Logger.Verbosity = "info"
	config.Compute.Backend = BackendHost
	config.Compute.WorkGroupSize = 64
	config.Compute.KernelDir = "kernels"
	config.Verbose.Platform = true
	config.Verbose.Context = true
	config.Verbose.ActivatedContext = true
	config.Verbose.RAM = true
	return &config
}

// LoadConfig reads a YAML file on top of Default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the fields that have a closed set of values.
func (c *Config) Validate() error {
	c.Compute.Backend = strings.ToLower(strings.TrimSpace(c.Compute.Backend))
	switch c.Compute.Backend {
	case BackendHost, BackendOpenCL:
	default:
		return fmt.Errorf("compute.backend must be %q or %q, got %q", BackendHost, BackendOpenCL, c.Compute.Backend)
	}
	for pi, p := range c.Host.Platforms {
		for di, d := range p.Devices {
			switch strings.ToLower(d.Type) {
			case "cpu", "gpu", "accelerator":
			default:
				return fmt.Errorf("host.platforms[%d].devices[%d].type must be cpu, gpu or accelerator, got %q", pi, di, d.Type)
			}
			if d.MaxMemAllocSize > d.GlobalMemSize && d.GlobalMemSize != 0 {
				return fmt.Errorf("host.platforms[%d].devices[%d]: maxMemAllocSize %s exceeds globalMemSize %s", pi, di, d.MaxMemAllocSize, d.GlobalMemSize)
			}
		}
	}
	return nil
}
