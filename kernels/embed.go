// Package kernels provides the OpenCL C sources shipped with ggems.
package kernels

import (
	"embed"
	"fmt"
)

//go:embed *.cl
var sources embed.FS

// MatMul contains the row-major matrix multiplication kernels matmul
// (float32 inputs) and matmul_half (half precision inputs).
//
//go:embed matmul.cl
var MatMul string

// Transform contains the 4x4 point transformation kernel. It works on doubles
// when built with -DGGEMS_DOUBLE_PRECISION.
//
//go:embed transform.cl
var Transform string

// Source returns the embedded source file name, e.g. "matmul.cl".
func Source(name string) (string, error) {
	data, err := sources.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("embedded kernel %s: %w", name, err)
	}
	return string(data), nil
}

// Names lists the embedded kernel source files.
func Names() []string {
	entries, _ := sources.ReadDir(".")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
