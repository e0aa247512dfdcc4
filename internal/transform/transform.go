// Package transform keeps the placement of a geometry as a 4x4 matrix on the
// active compute context and applies it to points with the transform_points kernel.
package transform

import (
	"fmt"
	"math"

	"github.com/ggems/ggems/internal/gpu"
	"github.com/ggems/ggems/kernels"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Geometry composes rotation * translation * local axis and mirrors the result
// in a device buffer. The buffer is refreshed lazily on the next Buffer or
// TransformPoints call after a setter ran. Device values are doubles when the
// manager builds kernels in double precision and floats otherwise.
type Geometry struct {
	manager *gpu.Manager
	logger  *zap.Logger
	double  bool

	position [3]float64
	angles   [3]float64

	translation *mat.Dense
	rotation    *mat.Dense
	axis        *mat.Dense

	buffer *gpu.Buffer
	dirty  bool
}

// New allocates the matrix buffer on the active context of manager.
func New(manager *gpu.Manager, logger *zap.Logger) (*Geometry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	double := manager.Options().DoublePrecision
	buf, err := manager.Allocate(nil, MatrixSize(double), gpu.MemReadWrite)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate transformation matrix: %w", err)
	}
	return &Geometry{
		manager:     manager,
		logger:      logger.Named("transform"),
		double:      double,
		translation: identity(),
		rotation:    identity(),
		axis:        identity(),
		buffer:      buf,
		dirty:       true,
	}, nil
}

// MatrixSize is the size in bytes of the device matrix, 16 reals.
func MatrixSize(doublePrecision bool) uint64 {
	return 16 * gpu.RealSize(doublePrecision)
}

func identity() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

// SetTranslation places the geometry at (x, y, z).
func (g *Geometry) SetTranslation(x, y, z float64) {
	g.position = [3]float64{x, y, z}
	g.translation = mat.NewDense(4, 4, []float64{
		1, 0, 0, x,
		0, 1, 0, y,
		0, 0, 1, z,
		0, 0, 0, 1,
	})
	g.dirty = true
}

// SetRotation rotates the geometry by rx, ry and rz radians about the x, y and
// z axes, applied in that order.
func (g *Geometry) SetRotation(rx, ry, rz float64) {
	g.angles = [3]float64{rx, ry, rz}

	cx, sx := math.Cos(rx), math.Sin(rx)
	cy, sy := math.Cos(ry), math.Sin(ry)
	cz, sz := math.Cos(rz), math.Sin(rz)
	rotX := mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, cx, -sx, 0,
		0, sx, cx, 0,
		0, 0, 0, 1,
	})
	rotY := mat.NewDense(4, 4, []float64{
		cy, 0, sy, 0,
		0, 1, 0, 0,
		-sy, 0, cy, 0,
		0, 0, 0, 1,
	})
	rotZ := mat.NewDense(4, 4, []float64{
		cz, -sz, 0, 0,
		sz, cz, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})

	var yx mat.Dense
	yx.Mul(rotY, rotX)
	g.rotation = mat.NewDense(4, 4, nil)
	g.rotation.Mul(rotZ, &yx)
	g.dirty = true
}

// SetLocalAxis sets the 3x3 orientation of the geometry's local frame, row-major.
func (g *Geometry) SetLocalAxis(axis [3][3]float64) {
	g.axis = mat.NewDense(4, 4, []float64{
		axis[0][0], axis[0][1], axis[0][2], 0,
		axis[1][0], axis[1][1], axis[1][2], 0,
		axis[2][0], axis[2][1], axis[2][2], 0,
		0, 0, 0, 1,
	})
	g.dirty = true
}

// Position returns the last translation.
func (g *Geometry) Position() [3]float64 { return g.position }

// Rotation returns the last rotation angles in radians.
func (g *Geometry) Rotation() [3]float64 { return g.angles }

// Matrix returns the composed host-side transformation.
func (g *Geometry) Matrix() *mat.Dense {
	var ta, m mat.Dense
	ta.Mul(g.translation, g.axis)
	m.Mul(g.rotation, &ta)
	return &m
}

// Buffer returns the device matrix buffer, refreshed if needed.
func (g *Geometry) Buffer() (*gpu.Buffer, error) {
	if err := g.update(); err != nil {
		return nil, err
	}
	return g.buffer, nil
}

func (g *Geometry) update() error {
	if g.buffer == nil {
		return fmt.Errorf("transformation matrix has been released")
	}
	if !g.dirty {
		return nil
	}

	m := g.Matrix()
	values := make([]float64, 0, 16)
	for i := 0; i < 4; i++ {
		values = append(values, m.RawRowView(i)...)
	}

	mapped, err := g.manager.MapBuffer(g.buffer, MatrixSize(g.double))
	if err != nil {
		return fmt.Errorf("failed to map transformation matrix: %w", err)
	}
	copy(mapped, gpu.RealBytes(values, g.double))
	if err := g.manager.UnmapBuffer(g.buffer, mapped); err != nil {
		return fmt.Errorf("failed to unmap transformation matrix: %w", err)
	}

	g.dirty = false
	g.logger.Debug("Transformation matrix updated",
		zap.Float64s("position", g.position[:]),
		zap.Float64s("rotation", g.angles[:]),
	)
	return nil
}

// CompileKernel compiles the embedded transform_points kernel on the active context.
func CompileKernel(manager *gpu.Manager) (*gpu.Kernel, error) {
	return manager.CompileKernelSource("transform.cl", kernels.Transform, "transform_points", nil, nil)
}

// TransformPoints applies the transformation to xyz triplets on the device and
// returns the transformed copy. The kernel must come from CompileKernel on the
// same manager so that its precision matches the matrix.
func (g *Geometry) TransformPoints(kernel *gpu.Kernel, points []float64) ([]float64, error) {
	if len(points)%3 != 0 {
		return nil, fmt.Errorf("points length %d is not a multiple of 3", len(points))
	}
	if len(points) == 0 {
		return nil, nil
	}
	if err := g.update(); err != nil {
		return nil, err
	}

	count := uint64(len(points) / 3)
	size := uint64(len(points)) * gpu.RealSize(g.double)
	buf, err := g.manager.Allocate(gpu.RealBytes(points, g.double), size, gpu.MemReadWrite|gpu.MemCopyHostPtr)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate points: %w", err)
	}
	defer func() {
		if err := g.manager.Deallocate(buf, size); err != nil {
			g.logger.Error("Failed to release points buffer", zap.Error(err))
		}
	}()

	if err := kernel.SetArgs(g.buffer, buf, uint32(count)); err != nil {
		return nil, err
	}
	global, err := g.manager.BestWorkItem(count)
	if err != nil {
		return nil, err
	}
	local, err := g.manager.WorkGroupSize()
	if err != nil {
		return nil, err
	}
	if err := g.manager.EnqueueKernel(kernel, global, local); err != nil {
		return nil, err
	}

	mapped, err := g.manager.MapBuffer(buf, size)
	if err != nil {
		return nil, err
	}
	out, err := gpu.RealValues(mapped, g.double)
	if unmapErr := g.manager.UnmapBuffer(buf, mapped); unmapErr != nil && err == nil {
		err = unmapErr
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the matrix buffer.
func (g *Geometry) Close() error {
	if g.buffer == nil {
		return nil
	}
	err := g.manager.Deallocate(g.buffer, MatrixSize(g.double))
	g.buffer = nil
	return err
}
