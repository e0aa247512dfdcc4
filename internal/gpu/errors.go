package gpu

import (
	"errors"
	"fmt"
	"math"
)

// Component names attached to every manager error.
const (
	ComponentEnumerator = "enumerator"
	ComponentContexts   = "context-registry"
	ComponentQueues     = "queue-pool"
	ComponentCompiler   = "kernel-compiler"
	ComponentMemory     = "memory-allocator"
	ComponentManager    = "manager"
)

// statusUnknown tags backend failures that did not carry a Status.
const statusUnknown Status = math.MinInt32

// ConfigurationError reports a misuse of the manager lifecycle or its inputs.
type ConfigurationError struct {
	Component string
	Operation string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Operation, e.Reason)
}

// IOError reports a kernel source that could not be read.
type IOError struct {
	Component string
	Operation string
	Path      string
	Err       error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %s: %s: %v", e.Component, e.Operation, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// BackendCompilationError reports a failed program build together with its build log.
type BackendCompilationError struct {
	Component string
	Operation string
	Kernel    string
	Status    Status
	Message   Message
	Log       string
}

func (e *BackendCompilationError) Error() string {
	msg := fmt.Sprintf("%s: %s: building %q failed: %s", e.Component, e.Operation, e.Kernel, e.Message)
	if e.Log != "" {
		msg += "\nbuild log:\n" + e.Log
	}
	return msg
}

func (e *BackendCompilationError) Unwrap() error { return e.Status }

// BackendRuntimeError reports any other backend call that did not succeed.
type BackendRuntimeError struct {
	Component string
	Operation string
	Status    Status
	Message   Message
	Err       error
}

func (e *BackendRuntimeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Operation, e.Message)
}

func (e *BackendRuntimeError) Unwrap() error { return e.Err }

func configError(component, operation, format string, args ...any) error {
	return &ConfigurationError{
		Component: component,
		Operation: operation,
		Reason:    fmt.Sprintf(format, args...),
	}
}

// check converts a backend error into a BackendRuntimeError.
func check(component, operation string, err error) error {
	if err == nil {
		return nil
	}
	var status Status
	if errors.As(err, &status) {
		if status.IsSuccess() {
			return nil
		}
		return &BackendRuntimeError{
			Component: component,
			Operation: operation,
			Status:    status,
			Message:   Decode(status),
			Err:       err,
		}
	}
	msg := Decode(statusUnknown)
	msg.Description = err.Error()
	return &BackendRuntimeError{
		Component: component,
		Operation: operation,
		Status:    statusUnknown,
		Message:   msg,
		Err:       err,
	}
}

// StatusOf extracts the backend status carried by err, if any.
func StatusOf(err error) (Status, bool) {
	var rt *BackendRuntimeError
	if errors.As(err, &rt) {
		return rt.Status, true
	}
	var ce *BackendCompilationError
	if errors.As(err, &ce) {
		return ce.Status, true
	}
	var s Status
	if errors.As(err, &s) {
		return s, true
	}
	return 0, false
}
