package transform

import (
	"math"
	"testing"

	"github.com/ggems/ggems/internal/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/mat"
)

func newManager(t *testing.T) *gpu.Manager {
	t.Helper()
	return newManagerWith(t, gpu.Options{})
}

func newManagerWith(t *testing.T, opts gpu.Options) *gpu.Manager {
	t.Helper()
	backend := gpu.NewHostBackend(nil, zaptest.NewLogger(t))
	m := gpu.NewManager(backend, opts, zaptest.NewLogger(t))
	require.NoError(t, m.Initialize())
	require.NoError(t, m.ActivateContext(0))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newGeometry(t *testing.T, m *gpu.Manager) *Geometry {
	t.Helper()
	g, err := New(m, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestNew(t *testing.T) {
	t.Run("allocates the matrix", func(t *testing.T) {
		m := newManager(t)
		g := newGeometry(t, m)

		used, err := m.UsedRAM(0)
		require.NoError(t, err)
		assert.Equal(t, uint64(64), used)
		assert.Equal(t, MatrixSize(false), used)
		assert.True(t, mat.Equal(identity(), g.Matrix()))
	})

	t.Run("allocates doubles in double precision", func(t *testing.T) {
		m := newManagerWith(t, gpu.Options{DoublePrecision: true})
		newGeometry(t, m)

		used, err := m.UsedRAM(0)
		require.NoError(t, err)
		assert.Equal(t, uint64(128), used)
	})

	t.Run("requires an active context", func(t *testing.T) {
		backend := gpu.NewHostBackend(nil, zaptest.NewLogger(t))
		m := gpu.NewManager(backend, gpu.Options{}, zaptest.NewLogger(t))
		require.NoError(t, m.Initialize())
		defer m.Close()

		_, err := New(m, nil)
		var ce *gpu.ConfigurationError
		assert.ErrorAs(t, err, &ce)
	})
}

func TestMatrix(t *testing.T) {
	testCases := []struct {
		name     string
		setup    func(g *Geometry)
		point    [3]float64
		expected [3]float64
	}{
		{
			name:     "identity",
			setup:    func(*Geometry) {},
			point:    [3]float64{1, 2, 3},
			expected: [3]float64{1, 2, 3},
		},
		{
			name:     "translation",
			setup:    func(g *Geometry) { g.SetTranslation(10, -5, 2) },
			point:    [3]float64{1, 2, 3},
			expected: [3]float64{11, -3, 5},
		},
		{
			name:     "rotation about z",
			setup:    func(g *Geometry) { g.SetRotation(0, 0, math.Pi/2) },
			point:    [3]float64{1, 0, 0},
			expected: [3]float64{0, 1, 0},
		},
		{
			name:     "rotation about x",
			setup:    func(g *Geometry) { g.SetRotation(math.Pi/2, 0, 0) },
			point:    [3]float64{0, 1, 0},
			expected: [3]float64{0, 0, 1},
		},
		{
			name: "translation then rotation",
			setup: func(g *Geometry) {
				g.SetTranslation(1, 0, 0)
				g.SetRotation(0, 0, math.Pi/2)
			},
			point:    [3]float64{0, 0, 0},
			expected: [3]float64{0, 1, 0},
		},
		{
			name: "local axis swaps x and y",
			setup: func(g *Geometry) {
				g.SetLocalAxis([3][3]float64{{0, 1, 0}, {1, 0, 0}, {0, 0, 1}})
			},
			point:    [3]float64{1, 2, 3},
			expected: [3]float64{2, 1, 3},
		},
	}

	m := newManager(t)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := newGeometry(t, m)
			tc.setup(g)

			var out mat.VecDense
			out.MulVec(g.Matrix(), mat.NewVecDense(4, []float64{tc.point[0], tc.point[1], tc.point[2], 1}))
			for i := 0; i < 3; i++ {
				assert.InDelta(t, tc.expected[i], out.AtVec(i), 1e-12)
			}
			assert.Equal(t, 1.0, out.AtVec(3))
		})
	}
}

func TestBuffer(t *testing.T) {
	testCases := []struct {
		name   string
		double bool
		delta  float64
	}{
		{"single precision", false, 1e-6},
		{"double precision", true, 1e-15},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := newManagerWith(t, gpu.Options{DoublePrecision: tc.double})
			g := newGeometry(t, m)
			g.SetTranslation(1, 2, 3)
			g.SetRotation(0.1, 0.2, 0.3)

			buf, err := g.Buffer()
			require.NoError(t, err)

			mapped, err := m.MapBuffer(buf, MatrixSize(tc.double))
			require.NoError(t, err)
			values, err := gpu.RealValues(mapped, tc.double)
			require.NoError(t, err)
			require.NoError(t, m.UnmapBuffer(buf, mapped))

			require.Len(t, values, 16)
			expected := g.Matrix()
			for i := 0; i < 4; i++ {
				for j := 0; j < 4; j++ {
					assert.InDelta(t, expected.At(i, j), values[4*i+j], tc.delta)
				}
			}
			assert.Equal(t, [3]float64{1, 2, 3}, g.Position())
			assert.Equal(t, [3]float64{0.1, 0.2, 0.3}, g.Rotation())
		})
	}
}

func TestTransformPoints(t *testing.T) {
	m := newManager(t)
	kernel, err := CompileKernel(m)
	require.NoError(t, err)

	g := newGeometry(t, m)
	g.SetTranslation(1, 0, 0)
	g.SetRotation(0, 0, math.Pi/2)

	t.Run("applies the matrix", func(t *testing.T) {
		points := []float64{0, 0, 0, 1, 0, 0, 0, 0, 5}
		out, err := g.TransformPoints(kernel, points)
		require.NoError(t, err)
		expected := []float64{0, 1, 0, 0, 2, 0, 0, 1, 5}
		require.Len(t, out, len(expected))
		for i := range expected {
			assert.InDelta(t, expected[i], out[i], 1e-6)
		}
		assert.Equal(t, []float64{0, 0, 0, 1, 0, 0, 0, 0, 5}, points)
	})

	t.Run("releases the points buffer", func(t *testing.T) {
		used, err := m.UsedRAM(0)
		require.NoError(t, err)
		assert.Equal(t, MatrixSize(false), used)
	})

	t.Run("follows updates", func(t *testing.T) {
		g.SetTranslation(0, 0, 0)
		g.SetRotation(0, 0, 0)
		out, err := g.TransformPoints(kernel, []float64{4, 5, 6})
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{4, 5, 6}, out, 1e-6)
	})

	t.Run("rejects partial points", func(t *testing.T) {
		_, err := g.TransformPoints(kernel, []float64{1, 2})
		assert.ErrorContains(t, err, "not a multiple of 3")
	})

	t.Run("empty input", func(t *testing.T) {
		out, err := g.TransformPoints(kernel, nil)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestTransformPointsDoublePrecision(t *testing.T) {
	m := newManagerWith(t, gpu.Options{DoublePrecision: true})
	kernel, err := CompileKernel(m)
	require.NoError(t, err)

	g := newGeometry(t, m)
	g.SetTranslation(1e-3, 0, 0)

	out, err := g.TransformPoints(kernel, []float64{1e8, 0, 0})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.InDelta(t, 1e8+1e-3, out[0], 1e-7)

	used, err := m.UsedRAM(0)
	require.NoError(t, err)
	assert.Equal(t, MatrixSize(true), used)
}

func TestClose(t *testing.T) {
	m := newManager(t)
	g, err := New(m, nil)
	require.NoError(t, err)

	require.NoError(t, g.Close())
	used, err := m.UsedRAM(0)
	require.NoError(t, err)
	assert.Zero(t, used)

	require.NoError(t, g.Close())
	_, err = g.Buffer()
	assert.ErrorContains(t, err, "released")
}
