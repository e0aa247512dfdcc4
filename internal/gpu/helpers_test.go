package gpu

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ggems/ggems/kernels"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTestManager initializes a manager over a host backend exposing platforms
// (nil for the default CPU + GPU platform) and closes it at the end of the test.
func newTestManager(t *testing.T, platforms []HostPlatform, opts Options) (*Manager, *HostBackend) {
	t.Helper()
	backend := NewHostBackend(platforms, zaptest.NewLogger(t))
	m := NewManager(backend, opts, zaptest.NewLogger(t))
	require.NoError(t, m.Initialize())
	t.Cleanup(func() { _ = m.Close() })
	return m, backend
}

// newActiveManager is newTestManager with context index activated.
func newActiveManager(t *testing.T, platforms []HostPlatform, index uint32) (*Manager, *HostBackend) {
	t.Helper()
	m, backend := newTestManager(t, platforms, Options{})
	require.NoError(t, m.ActivateContext(index))
	return m, backend
}

func writeKernelFile(t *testing.T, name, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(source), 0644))
	return path
}

func matMulSourcePath(t *testing.T) string {
	return writeKernelFile(t, "matmul.cl", kernels.MatMul)
}

// smallPlatform exposes one GPU whose global memory is capacity bytes.
func smallPlatform(capacity uint64) []HostPlatform {
	return []HostPlatform{{
		Vendor: "Test Vendor",
		Devices: []Device{
			{Type: DeviceTypeGPU, Name: "Small GPU", GlobalMemSize: capacity, MaxMemAllocSize: capacity},
		},
	}}
}

func requireConfigError(t *testing.T, err error, component string) *ConfigurationError {
	t.Helper()
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce), "expected ConfigurationError, got %T: %v", err, err)
	require.Equal(t, component, ce.Component)
	return ce
}

func requireRuntimeError(t *testing.T, err error, status Status) *BackendRuntimeError {
	t.Helper()
	var re *BackendRuntimeError
	require.True(t, errors.As(err, &re), "expected BackendRuntimeError, got %T: %v", err, err)
	require.Equal(t, status, re.Status)
	return re
}
