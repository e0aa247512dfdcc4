package gpu

import (
	"errors"
	"fmt"
	"os"

	"github.com/ggems/ggems/internal/metrics"
	"go.uber.org/zap"
)

// Kernel is a compiled entry point retained by the manager until Close.
type Kernel struct {
	Name    string
	Source  string
	Options string
	Context int

	manager  *Manager
	program  ProgramHandle
	handle   KernelHandle
	released bool
}

// Handle returns the backend kernel handle.
func (k *Kernel) Handle() KernelHandle {
	return k.handle
}

// SetArg binds value to argument index. value is a *Buffer, a BufferHandle or
// a fixed size numeric scalar.
func (k *Kernel) SetArg(index uint32, value any) error {
	m := k.manager
	m.mu.Lock()
	defer m.mu.Unlock()

	if k.released {
		return configError(ComponentCompiler, "SetArg", "kernel %q has been released", k.Name)
	}
	if b, ok := value.(*Buffer); ok {
		if b == nil || b.released {
			return configError(ComponentCompiler, "SetArg", "argument %d of %q is a released buffer", index, k.Name)
		}
		value = b.handle
	}
	err := m.backend.SetKernelArg(k.handle, index, value)
	return check(ComponentCompiler, fmt.Sprintf("SetArg(%s, %d)", k.Name, index), err)
}

// SetArgs binds values to consecutive arguments starting at zero.
func (k *Kernel) SetArgs(values ...any) error {
	for i, v := range values {
		if err := k.SetArg(uint32(i), v); err != nil {
			return err
		}
	}
	return nil
}

// CompileKernel reads the kernel source at path and compiles entryPoint
// against the active context. customOptions replaces the default build
// options; additionalOptions is appended to them. The two are exclusive.
func (m *Manager) CompileKernel(path, entryPoint string, customOptions, additionalOptions *string) (*Kernel, error) {
	if customOptions != nil && additionalOptions != nil {
		return nil, configError(ComponentCompiler, "CompileKernel", "custom and additional options can not be set at the same time")
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Component: ComponentCompiler, Operation: "CompileKernel", Path: path, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.compile(path, string(source), entryPoint, customOptions, additionalOptions)
}

// CompileKernelSource compiles entryPoint from an in-memory source, named name in logs.
func (m *Manager) CompileKernelSource(name, source, entryPoint string, customOptions, additionalOptions *string) (*Kernel, error) {
	if customOptions != nil && additionalOptions != nil {
		return nil, configError(ComponentCompiler, "CompileKernelSource", "custom and additional options can not be set at the same time")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.compile(name, source, entryPoint, customOptions, additionalOptions)
}

// compile must be called with m.mu held.
func (m *Manager) compile(name, source, entryPoint string, customOptions, additionalOptions *string) (*Kernel, error) {
	ctx, err := m.requireActive(ComponentCompiler, "CompileKernel")
	if err != nil {
		return nil, err
	}

	options := m.buildOptions
	switch {
	case customOptions != nil:
		options = *customOptions
	case additionalOptions != nil:
		options = m.buildOptions + " " + *additionalOptions
	}

	device, err := m.contextDevice(ctx)
	if err != nil {
		return nil, err
	}

	program, err := m.backend.CreateProgram(ctx.Handle, source)
	if err := check(ComponentCompiler, "CreateProgram", err); err != nil {
		metrics.KernelCompilations.WithLabelValues("failure").Inc()
		return nil, err
	}
	m.programs = append(m.programs, program)

	if err := m.backend.BuildProgram(program, device, options); err != nil {
		metrics.KernelCompilations.WithLabelValues("failure").Inc()
		return nil, m.buildFailure(name, entryPoint, program, device, options, err)
	}

	handle, err := m.backend.CreateKernel(program, entryPoint)
	if err := check(ComponentCompiler, fmt.Sprintf("CreateKernel(%s)", entryPoint), err); err != nil {
		metrics.KernelCompilations.WithLabelValues("failure").Inc()
		return nil, err
	}

	k := &Kernel{
		Name:    entryPoint,
		Source:  name,
		Options: options,
		Context: ctx.Index,
		manager: m,
		program: program,
		handle:  handle,
	}
	m.kernels = append(m.kernels, k)
	metrics.KernelCompilations.WithLabelValues("success").Inc()
	m.logger.Info("Kernel compiled",
		zap.String("kernel", entryPoint),
		zap.String("source", name),
		zap.Int("context", ctx.Index),
		zap.String("options", options),
	)
	return k, nil
}

func (m *Manager) buildFailure(name, entryPoint string, program ProgramHandle, device DeviceHandle, options string, err error) error {
	status := statusUnknown
	var s Status
	if errors.As(err, &s) {
		status = s
	}
	msg := Decode(status)
	if status == statusUnknown {
		msg.Description = err.Error()
	}

	log, logErr := m.backend.BuildLog(program, device)
	if logErr != nil {
		m.logger.Warn("Build log unavailable", zap.String("kernel", entryPoint), zap.Error(logErr))
	}
	m.logger.Error("Kernel build failed",
		zap.String("kernel", entryPoint),
		zap.String("source", name),
		zap.String("options", options),
		zap.String("status", msg.Name),
		zap.String("buildLog", log),
	)
	return &BackendCompilationError{
		Component: ComponentCompiler,
		Operation: "BuildProgram",
		Kernel:    entryPoint,
		Status:    status,
		Message:   msg,
		Log:       log,
	}
}

// Kernels returns every kernel compiled so far.
func (m *Manager) Kernels() []*Kernel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Kernel(nil), m.kernels...)
}

// BuildOptions returns the default build options fixed at initialization.
func (m *Manager) BuildOptions() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buildOptions
}
