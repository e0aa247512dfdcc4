//go:build !opencl
// +build !opencl

package gpu

import (
	"errors"

	"go.uber.org/zap"
)

// ErrOpenCLNotBuilt is returned when the binary was built without the opencl tag.
var ErrOpenCLNotBuilt = errors.New("OpenCL support not compiled in, rebuild with -tags opencl")

func NewOpenCLBackend(logger *zap.Logger) (Backend, error) {
	return nil, ErrOpenCLNotBuilt
}
