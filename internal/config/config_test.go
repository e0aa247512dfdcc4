package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ggems/ggems/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		config, err := LoadConfig("../../fixtures/tests/config/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, config)

		assert.Equal(t, "debug", config.Logger.Verbosity)
		assert.Equal(t, "/tmp/ggems-test.log", config.Logger.File)
		assert.Equal(t, BackendOpenCL, config.Compute.Backend)
		assert.Equal(t, uint32(1), config.Compute.ContextIndex)
		assert.True(t, config.Compute.FastMath)
		assert.True(t, config.Compute.DoublePrecision)
		assert.Equal(t, uint64(128), config.Compute.WorkGroupSize)
		assert.Equal(t, "/opt/ggems/kernels", config.Compute.KernelDir)

		assert.True(t, config.Verbose.Platform)
		assert.True(t, config.Verbose.Device)
		assert.False(t, config.Verbose.Context)
		assert.True(t, config.Verbose.Queue)
		assert.False(t, config.Verbose.ActivatedContext)
		assert.True(t, config.Verbose.BuildOptions)
		assert.False(t, config.Verbose.RAM)

		require.Len(t, config.Host.Platforms, 1)
		platform := config.Host.Platforms[0]
		assert.Equal(t, "Test Vendor", platform.Vendor)
		require.Len(t, platform.Devices, 2)
		assert.Equal(t, "cpu", platform.Devices[0].Type)
		assert.Equal(t, ByteSize(1000), platform.Devices[0].GlobalMemSize)
		assert.Equal(t, uint32(4), platform.Devices[0].MaxComputeUnits)
		assert.Equal(t, ByteSize(2<<30), platform.Devices[1].GlobalMemSize)
		assert.Equal(t, ByteSize(512<<20), platform.Devices[1].MaxMemAllocSize)
		assert.Equal(t, uint64(256), platform.Devices[1].MaxWorkGroupSize)

		assert.Equal(t, ":9090", config.Metrics.ListenAddress)
	})

	t.Run("missing fields keep defaults", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("compute:\n  fastMath: true\n"), 0644))

		config, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.True(t, config.Compute.FastMath)
		assert.Equal(t, BackendHost, config.Compute.Backend)
		assert.Equal(t, uint64(64), config.Compute.WorkGroupSize)
		assert.Equal(t, "info", config.Logger.Verbosity)
		assert.True(t, config.Verbose.RAM)
	})

	t.Run("non-existent file", func(t *testing.T) {
		_, err := LoadConfig("non-existent-file.yaml")
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		dir, err := os.Getwd()
		require.NoError(t, err)

		configPath := filepath.Join(dir, "..", "..", "fixtures", "tests", "invalid_config", "config.yaml")
		_, err = LoadConfig(configPath)
		assert.Error(t, err)
	})

	t.Run("template is valid", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(configPath, fixtures.ConfigTemplate, 0644))

		config, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, BackendHost, config.Compute.Backend)
		require.Len(t, config.Host.Platforms, 1)
		assert.Len(t, config.Host.Platforms[0].Devices, 2)
	})
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "default",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Compute.Backend = "cuda" },
			wantErr: "compute.backend",
		},
		{
			name: "unknown device type",
			mutate: func(c *Config) {
				c.Host.Platforms = []HostPlatform{{Devices: []HostDevice{{Type: "fpga"}}}}
			},
			wantErr: "type must be cpu, gpu or accelerator",
		},
		{
			name: "allocation larger than memory",
			mutate: func(c *Config) {
				c.Host.Platforms = []HostPlatform{{Devices: []HostDevice{{Type: "gpu", GlobalMemSize: 1024, MaxMemAllocSize: 2048}}}}
			},
			wantErr: "exceeds globalMemSize",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := Default()
			tc.mutate(config)
			err := config.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestByteSize(t *testing.T) {
	testCases := []struct {
		input    string
		expected ByteSize
		wantErr  bool
	}{
		{"4096", 4096, false},
		{"1KiB", 1024, false},
		{"4GiB", 4 << 30, false},
		{"1 MB", 1000 * 1000, false},
		{"lots", 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			var b ByteSize
			err := yaml.Unmarshal([]byte(tc.input), &b)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, b)
		})
	}

	assert.Equal(t, "4.0 GiB", ByteSize(4<<30).String())
}

func TestLoadKernelCatalog(t *testing.T) {
	t.Run("valid catalog", func(t *testing.T) {
		catalog, err := LoadKernelCatalog("../../fixtures/tests/config/kernels.yaml")
		require.NoError(t, err)
		require.Len(t, catalog.Kernels, 2)

		matmul, err := catalog.Lookup("matmul", zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "matmul", matmul.Entry)
		assert.Equal(t, filepath.Join("..", "..", "kernels", "matmul.cl"), matmul.Path)
		assert.Nil(t, matmul.CustomOptions)

		transform, err := catalog.Lookup("transform", zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "transform_points", transform.Entry)
		require.NotNil(t, transform.CustomOptions)
		assert.Equal(t, "-cl-std=CL1.2", *transform.CustomOptions)
	})

	t.Run("unknown kernel", func(t *testing.T) {
		catalog := &KernelCatalog{Kernels: map[string]KernelSource{}}
		_, err := catalog.Lookup("missing", zap.NewNop())
		assert.ErrorContains(t, err, "kernel not found in kernel catalog: missing")
	})

	t.Run("missing path", func(t *testing.T) {
		catalogPath := filepath.Join(t.TempDir(), "kernels.yaml")
		require.NoError(t, os.WriteFile(catalogPath, []byte("kernels:\n  broken:\n    entry: broken\n"), 0644))
		_, err := LoadKernelCatalog(catalogPath)
		assert.ErrorContains(t, err, "path is required")
	})

	t.Run("non-existent file", func(t *testing.T) {
		catalog, err := LoadKernelCatalog("non-existent-file.yaml")
		assert.Error(t, err)
		assert.Nil(t, catalog)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		catalogPath := filepath.Join(t.TempDir(), "kernels.yaml")
		require.NoError(t, os.WriteFile(catalogPath, []byte("invalid-yaml"), 0644))
		catalog, err := LoadKernelCatalog(catalogPath)
		assert.Error(t, err)
		assert.Nil(t, catalog)
	})
}
