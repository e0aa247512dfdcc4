package gpu

import (
	"errors"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	baseBuildOptions = "-cl-std=CL1.2 -cl-kernel-arg-info -w -Werror"
	fastMathOption   = "-cl-fast-relaxed-math"
	doubleOption     = "-D" + doublePrecisionMacro

	doublePrecisionMacro = "GGEMS_DOUBLE_PRECISION"

	// DefaultWorkGroupSize is used when Options leaves the size unset.
	DefaultWorkGroupSize uint64 = 64
)

// Options fixes the manager settings decided at initialization.
type Options struct {
	FastMath        bool
	DoublePrecision bool
	WorkGroupSize   uint64
}

// Manager owns every compute resource of the process: devices, contexts,
// queues, events, compiled kernels and the RAM ledger.
// Exactly one context can be activated for the lifetime of a Manager.
type Manager struct {
	backend Backend
	opts    Options
	logger  *zap.Logger
	mu      sync.Mutex

	initialized bool
	failed      bool
	closed      bool

	platforms []Platform
	devices   []Device

	contexts    []*Context
	cpuContexts []int
	gpuContexts []int
	active      int

	queues []QueueHandle
	events []EventHandle

	buildOptions string
	kernels      []*Kernel
	programs     []ProgramHandle

	buffers map[BufferHandle]*Buffer
	ram     []uint64
}

// NewManager creates a manager driving backend. Initialize must be called before use.
func NewManager(backend Backend, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.WorkGroupSize == 0 {
		opts.WorkGroupSize = DefaultWorkGroupSize
	}
	return &Manager{
		backend: backend,
		opts:    opts,
		logger: logger.Named("gpu").With(
			zap.String("session", uuid.NewString()),
			zap.String("backend", backend.Name()),
		),
		active:  -1,
		buffers: make(map[BufferHandle]*Buffer),
	}
}

// Initialize discovers platforms and devices, then creates one context, queue
// and event per device and zeroes the RAM ledger. Calling it again after a
// success is a no-op. A failure part way through leaves already created
// resources in place and is final: later calls return a ConfigurationError and
// only Close remains useful.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return configError(ComponentManager, "Initialize", "manager is closed")
	}
	if m.initialized {
		return nil
	}
	if m.failed {
		return configError(ComponentManager, "Initialize", "a previous initialization failed, close the manager")
	}

	if err := m.initialize(); err != nil {
		m.failed = true
		return err
	}

	m.initialized = true
	m.logger.Info("Compute manager initialized",
		zap.Int("platforms", len(m.platforms)),
		zap.Int("devices", len(m.devices)),
		zap.Int("cpuContexts", len(m.cpuContexts)),
		zap.Int("gpuContexts", len(m.gpuContexts)),
		zap.String("buildOptions", m.buildOptions),
	)
	return nil
}

func (m *Manager) initialize() error {
	platforms, devices, err := enumerate(m.backend)
	if err != nil {
		return err
	}
	m.platforms = platforms
	m.devices = devices
	m.buildOptions = defaultBuildOptions(m.opts)

	if err := m.createContexts(); err != nil {
		return err
	}
	if err := m.createQueues(); err != nil {
		return err
	}
	if err := m.createEvents(); err != nil {
		return err
	}
	m.initializeRAM()
	return nil
}

func defaultBuildOptions(opts Options) string {
	options := baseBuildOptions
	if opts.FastMath {
		options += " " + fastMathOption
	}
	if opts.DoublePrecision {
		options += " " + doubleOption
	}
	return options
}

// initializeRAM zeroes the ledger entry of every context.
func (m *Manager) initializeRAM() {
	m.ram = make([]uint64, len(m.contexts))
	for i := range m.ram {
		m.updateRAMGauge(i)
	}
}

// requireReady must be called with m.mu held.
func (m *Manager) requireReady(component, operation string) error {
	if m.closed {
		return configError(component, operation, "manager is closed")
	}
	if !m.initialized {
		return configError(component, operation, "manager not initialized")
	}
	return nil
}

// requireActive must be called with m.mu held.
func (m *Manager) requireActive(component, operation string) (*Context, error) {
	if err := m.requireReady(component, operation); err != nil {
		return nil, err
	}
	if m.active < 0 {
		return nil, configError(component, operation, "no context activated")
	}
	return m.contexts[m.active], nil
}

// Options returns the settings the manager was created with.
func (m *Manager) Options() Options {
	return m.opts
}

// Backend returns the backend driven by the manager.
func (m *Manager) Backend() Backend {
	return m.backend
}

// Close releases kernels, programs, live buffers, events, queues and contexts, in that order.
// Every release is attempted; the errors are joined.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	release := func(component, op string, err error) {
		if err := check(component, op, err); err != nil {
			errs = append(errs, err)
		}
	}

	for _, k := range m.kernels {
		release(ComponentCompiler, "ReleaseKernel", m.backend.ReleaseKernel(k.handle))
		k.released = true
	}
	for _, p := range m.programs {
		release(ComponentCompiler, "ReleaseProgram", m.backend.ReleaseProgram(p))
	}
	if len(m.buffers) > 0 {
		m.logger.Warn("Releasing buffers that were never deallocated", zap.Int("count", len(m.buffers)))
	}
	for h, b := range m.buffers {
		release(ComponentMemory, "ReleaseBuffer", m.backend.ReleaseBuffer(h))
		b.released = true
	}
	for _, e := range m.events {
		release(ComponentQueues, "ReleaseEvent", m.backend.ReleaseEvent(e))
	}
	for _, q := range m.queues {
		release(ComponentQueues, "ReleaseQueue", m.backend.ReleaseQueue(q))
	}
	for _, c := range m.contexts {
		release(ComponentContexts, "ReleaseContext", m.backend.ReleaseContext(c.Handle))
	}

	m.kernels, m.programs = nil, nil
	m.buffers = make(map[BufferHandle]*Buffer)
	m.events, m.queues = nil, nil
	for i := range m.ram {
		m.ram[i] = 0
		m.updateRAMGauge(i)
	}

	m.logger.Info("Compute manager closed", zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}

func contextLabel(id int) string {
	return strconv.Itoa(id)
}
