package gpu

import (
	"time"

	"github.com/ggems/ggems/internal/metrics"
	"go.uber.org/zap"
)

// createQueues creates one profiling-enabled command queue per context.
func (m *Manager) createQueues() error {
	for _, ctx := range m.contexts {
		device, err := m.contextDevice(ctx)
		if err != nil {
			return err
		}
		q, err := m.backend.CreateQueue(ctx.Handle, device, true)
		if err := check(ComponentQueues, "CreateQueue", err); err != nil {
			return err
		}
		m.queues = append(m.queues, q)
	}
	return nil
}

// createEvents creates the timing event of every context.
func (m *Manager) createEvents() error {
	for _, ctx := range m.contexts {
		e, err := m.backend.CreateEvent(ctx.Handle)
		if err := check(ComponentQueues, "CreateEvent", err); err != nil {
			return err
		}
		m.events = append(m.events, e)
	}
	return nil
}

// CommandQueue returns the queue of the active context.
func (m *Manager) CommandQueue() (QueueHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, err := m.requireActive(ComponentQueues, "CommandQueue")
	if err != nil {
		return 0, err
	}
	return m.queues[ctx.Index], nil
}

// Event returns the timing event of the active context.
func (m *Manager) Event() (EventHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, err := m.requireActive(ComponentQueues, "Event")
	if err != nil {
		return 0, err
	}
	return m.events[ctx.Index], nil
}

// EnqueueKernel dispatches k over global work items and blocks until the queue drains.
// A zero local size lets the backend choose the work-group size.
func (m *Manager) EnqueueKernel(k *Kernel, global, local uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, err := m.requireActive(ComponentQueues, "EnqueueKernel")
	if err != nil {
		return err
	}
	if k == nil || k.released {
		return configError(ComponentQueues, "EnqueueKernel", "kernel is not valid")
	}
	if k.Context != ctx.Index {
		return configError(ComponentQueues, "EnqueueKernel", "kernel %q was compiled for context %d, active context is %d", k.Name, k.Context, ctx.Index)
	}

	queue, event := m.queues[ctx.Index], m.events[ctx.Index]
	err = m.backend.EnqueueNDRange(queue, k.handle, global, local, event)
	if err := check(ComponentQueues, "EnqueueNDRange", err); err != nil {
		return err
	}
	return check(ComponentQueues, "Finish", m.backend.Finish(queue))
}

// DisplayElapsedTime reads the profiling timestamps of the active context's
// event, logs the duration of the last dispatch under name and returns it.
func (m *Manager) DisplayElapsedTime(name string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, err := m.requireActive(ComponentQueues, "DisplayElapsedTime")
	if err != nil {
		return 0, err
	}
	start, end, err := m.backend.EventProfiling(m.events[ctx.Index])
	if err := check(ComponentQueues, "EventProfiling", err); err != nil {
		return 0, err
	}

	elapsed := time.Duration(end - start)
	metrics.KernelDuration.WithLabelValues(name).Observe(float64(elapsed) / float64(time.Millisecond))
	m.logger.Info("Elapsed time",
		zap.String("kernel", name),
		zap.Int("context", ctx.Index),
		zap.Duration("elapsed", elapsed),
	)
	return elapsed, nil
}

// WorkGroupSize returns the configured work-group size capped by the active device limit.
func (m *Manager) WorkGroupSize() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, err := m.requireActive(ComponentQueues, "WorkGroupSize")
	if err != nil {
		return 0, err
	}
	return m.workGroupSize(ctx), nil
}

func (m *Manager) workGroupSize(ctx *Context) uint64 {
	size := m.opts.WorkGroupSize
	if limit := ctx.Device.MaxWorkGroupSize; limit > 0 && size > limit {
		size = limit
	}
	return size
}

// BestWorkItem rounds n up to a whole number of work groups. Kernels must
// ignore work items past n. Zero items still get one work group.
func (m *Manager) BestWorkItem(n uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctx, err := m.requireActive(ComponentQueues, "BestWorkItem")
	if err != nil {
		return 0, err
	}
	wg := m.workGroupSize(ctx)
	if n == 0 {
		return wg, nil
	}
	return wg * ((n + wg - 1) / wg), nil
}
