package gpu

import (
	"fmt"
	"strings"
)

// HostKernel is the Go implementation of a kernel entry point for the host backend.
type HostKernel func(call *KernelCall) error

// KernelCall carries the arguments of one host dispatch.
type KernelCall struct {
	Name   string
	Global uint64
	Local  uint64
	// Options are the build options of the kernel's program.
	Options string

	args    map[uint32]any
	buffers map[BufferHandle]*hostBuffer
}

// Defined reports whether macro was defined with -D in the build options.
func (c *KernelCall) Defined(macro string) bool {
	for _, opt := range strings.Fields(c.Options) {
		name, ok := strings.CutPrefix(opt, "-D")
		if !ok {
			continue
		}
		if name, _, _ = strings.Cut(name, "="); name == macro {
			return true
		}
	}
	return false
}

// Buffer returns the backing bytes of the buffer bound at index.
func (c *KernelCall) Buffer(index uint32) ([]byte, error) {
	h, ok := c.args[index].(BufferHandle)
	if !ok {
		return nil, fmt.Errorf("argument %d of %s is not a buffer", index, c.Name)
	}
	buf, ok := c.buffers[h]
	if !ok {
		return nil, fmt.Errorf("argument %d of %s refers to a released buffer", index, c.Name)
	}
	return buf.data, nil
}

// Uint32 returns the scalar bound at index.
func (c *KernelCall) Uint32(index uint32) (uint32, error) {
	switch v := c.args[index].(type) {
	case uint32:
		return v, nil
	case int32:
		if v < 0 {
			return 0, fmt.Errorf("argument %d of %s is negative", index, c.Name)
		}
		return uint32(v), nil
	default:
		return 0, fmt.Errorf("argument %d of %s is %T, want uint32", index, c.Name, v)
	}
}

func registerBuiltinKernels(h *HostBackend) {
	h.hostKernels["matmul"] = hostMatMul
	h.hostKernels["matmul_half"] = hostMatMulHalf
	h.hostKernels["transform_points"] = hostTransformPoints
}

// hostMatMul implements C = A * B with A m×k, B k×n and C m×n in row-major float32.
// Arguments: A, B, C, m, k, n.
func hostMatMul(call *KernelCall) error {
	return matMul(call, 4, BytesToFloat32)
}

// hostMatMulHalf is hostMatMul with A and B stored as half precision.
func hostMatMulHalf(call *KernelCall) error {
	return matMul(call, 2, BytesToHalf)
}

func matMul(call *KernelCall, width int, decode func([]byte) ([]float32, error)) error {
	dims := make([]int, 3)
	for i := range dims {
		v, err := call.Uint32(uint32(3 + i))
		if err != nil {
			return err
		}
		dims[i] = int(v)
	}
	m, k, n := dims[0], dims[1], dims[2]

	rawA, err := call.Buffer(0)
	if err != nil {
		return err
	}
	rawB, err := call.Buffer(1)
	if err != nil {
		return err
	}
	rawC, err := call.Buffer(2)
	if err != nil {
		return err
	}
	a, err := decode(rawA[:min(len(rawA), width*m*k)])
	if err != nil {
		return err
	}
	b, err := decode(rawB[:min(len(rawB), width*k*n)])
	if err != nil {
		return err
	}

	if len(a) != m*k {
		return fmt.Errorf("matrix A size mismatch: expected %d, got %d", m*k, len(a))
	}
	if len(b) != k*n {
		return fmt.Errorf("matrix B size mismatch: expected %d, got %d", k*n, len(b))
	}
	if len(rawC) < 4*m*n {
		return fmt.Errorf("matrix C size mismatch: expected %d bytes, got %d", 4*m*n, len(rawC))
	}

	// One work item per output element; items past m*n are padding.
	items := min(call.Global, uint64(m*n))
	result := make([]float32, m*n)
	for id := uint64(0); id < items; id++ {
		i, j := int(id)/n, int(id)%n
		sum := float32(0.0)
		for l := 0; l < k; l++ {
			sum += a[i*k+l] * b[l*n+j]
		}
		result[i*n+j] = sum
	}
	copy(rawC, Float32Bytes(result[:items]))
	return nil
}

// hostTransformPoints applies a row-major 4x4 matrix to xyz points in place.
// Reals are doubles when the program defines GGEMS_DOUBLE_PRECISION.
// Arguments: matrix, points, count.
func hostTransformPoints(call *KernelCall) error {
	double := call.Defined(doublePrecisionMacro)
	width := int(RealSize(double))

	rawM, err := call.Buffer(0)
	if err != nil {
		return err
	}
	rawP, err := call.Buffer(1)
	if err != nil {
		return err
	}
	count, err := call.Uint32(2)
	if err != nil {
		return err
	}
	if len(rawM) < 16*width {
		return fmt.Errorf("matrix buffer holds %d bytes, want %d", len(rawM), 16*width)
	}
	if len(rawP) < 3*width*int(count) {
		return fmt.Errorf("points buffer holds %d bytes, want %d", len(rawP), 3*width*int(count))
	}
	mat, err := RealValues(rawM[:16*width], double)
	if err != nil {
		return err
	}
	pts, err := RealValues(rawP[:3*width*int(count)], double)
	if err != nil {
		return err
	}

	items := min(call.Global, uint64(count))
	for id := uint64(0); id < items; id++ {
		x, y, z := pts[3*id], pts[3*id+1], pts[3*id+2]
		pts[3*id] = mat[0]*x + mat[1]*y + mat[2]*z + mat[3]
		pts[3*id+1] = mat[4]*x + mat[5]*y + mat[6]*z + mat[7]
		pts[3*id+2] = mat[8]*x + mat[9]*y + mat[10]*z + mat[11]
	}
	copy(rawP, RealBytes(pts, double))
	return nil
}
