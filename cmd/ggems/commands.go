package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/ggems/ggems/fixtures"
	"github.com/ggems/ggems/internal/config"
	"github.com/ggems/ggems/internal/gpu"
	"github.com/ggems/ggems/kernels"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// selftestTolerance bounds the relative error between device and gonum results.
const selftestTolerance = 1e-4

func devicesCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List platforms, devices, contexts and RAM usage",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "Run every reporter regardless of the verbose section"},
			&cli.BoolFlag{Name: "activate", Usage: "Activate compute.contextIndex before reporting"},
		},
		Action: func(c *cli.Context) error {
			w := c.App.Writer
			fmt.Fprintln(w, figure.NewFigure("GGEMS", "", true).String())

			verbosity := gpu.VerbosityFromConfig(st.cfg)
			if c.Bool("all") {
				verbosity = gpu.AllReports()
			}
			return run(st, func(m *gpu.Manager) error {
				if c.Bool("activate") {
					if err := m.ActivateContext(st.cfg.Compute.ContextIndex); err != nil {
						return err
					}
				}
				return m.Report(w, verbosity)
			})
		},
	}
}

func selftestCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "selftest",
		Usage: "Multiply two matrices on the configured context and check the result",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "size", Value: 64, Usage: "Edge length of the square matrices"},
			&cli.BoolFlag{Name: "half", Usage: "Upload the operands as half precision floats"},
		},
		Action: func(c *cli.Context) error {
			size := c.Int("size")
			if size <= 0 {
				return fmt.Errorf("size must be positive, got %d", size)
			}
			return run(st, func(m *gpu.Manager) error {
				return selftest(c.App.Writer, m, st.cfg.Compute.ContextIndex, size, c.Bool("half"), st.log)
			})
		},
	}
}

// selftestMatrix returns a deterministic n×n matrix with small values.
// Every value is a multiple of 1/8 in [-1, 1] and is exact in half precision.
func selftestMatrix(n, seed int) []float32 {
	data := make([]float32, n*n)
	for i := range data {
		data[i] = float32((i*seed)%17-8) / 8
	}
	return data
}

// selftest multiplies two matrices on the device and compares the product with
// gonum. With half set the operands are uploaded as float16 and multiplied by
// matmul_half; the product stays float32.
func selftest(w io.Writer, m *gpu.Manager, contextIndex uint32, n int, half bool, log *zap.Logger) error {
	if err := m.ActivateContext(contextIndex); err != nil {
		return err
	}
	entry, pack, width := "matmul", gpu.Float32Bytes, 4
	if half {
		entry, pack, width = "matmul_half", gpu.HalfBytes, 2
	}
	kernel, err := m.CompileKernelSource("matmul.cl", kernels.MatMul, entry, nil, nil)
	if err != nil {
		return err
	}

	a, b := selftestMatrix(n, 3), selftestMatrix(n, 7)
	operandSize := uint64(width * n * n)
	bufA, err := m.Allocate(pack(a), operandSize, gpu.MemReadOnly|gpu.MemCopyHostPtr)
	if err != nil {
		return err
	}
	defer release(m, bufA, operandSize, log)
	bufB, err := m.Allocate(pack(b), operandSize, gpu.MemReadOnly|gpu.MemCopyHostPtr)
	if err != nil {
		return err
	}
	defer release(m, bufB, operandSize, log)
	size := uint64(4 * n * n)
	bufC, err := m.Allocate(nil, size, gpu.MemWriteOnly)
	if err != nil {
		return err
	}
	defer release(m, bufC, size, log)

	dim := uint32(n)
	if err := kernel.SetArgs(bufA, bufB, bufC, dim, dim, dim); err != nil {
		return err
	}
	global, err := m.BestWorkItem(uint64(n * n))
	if err != nil {
		return err
	}
	local, err := m.WorkGroupSize()
	if err != nil {
		return err
	}
	if err := m.EnqueueKernel(kernel, global, local); err != nil {
		return err
	}
	elapsed, err := m.DisplayElapsedTime(entry)
	if err != nil {
		return err
	}

	mapped, err := m.MapBuffer(bufC, size)
	if err != nil {
		return err
	}
	got, err := gpu.BytesToFloat32(mapped)
	if unmapErr := m.UnmapBuffer(bufC, mapped); unmapErr != nil && err == nil {
		err = unmapErr
	}
	if err != nil {
		return err
	}

	var want mat.Dense
	want.Mul(
		mat.NewDense(n, n, gpu.Float32ToFloat64(a)),
		mat.NewDense(n, n, gpu.Float32ToFloat64(b)),
	)
	maxErr := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			expected := want.At(i, j)
			diff := math.Abs(float64(got[i*n+j]) - expected)
			if scale := math.Abs(expected); scale > 1 {
				diff /= scale
			}
			maxErr = math.Max(maxErr, diff)
		}
	}

	fmt.Fprintf(w, "%s %dx%d in %s, max relative error %.2e\n", entry, n, n, elapsed, maxErr)
	if err := m.PrintRAMStatus(w); err != nil {
		return err
	}
	if maxErr > selftestTolerance {
		color.New(color.FgRed, color.Bold).Fprintln(w, "FAIL")
		return fmt.Errorf("selftest failed: max relative error %.2e exceeds %.0e", maxErr, selftestTolerance)
	}
	color.New(color.FgGreen, color.Bold).Fprintln(w, "PASS")
	return nil
}

func release(m *gpu.Manager, buf *gpu.Buffer, size uint64, log *zap.Logger) {
	if err := m.Deallocate(buf, size); err != nil {
		log.Error("Failed to release buffer", zap.Error(err))
	}
}

func compileCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:      "compile",
		Usage:     "Compile a kernel file on the configured context",
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "entry", Usage: "Kernel entry point, defaults to the file name"},
			&cli.StringFlag{Name: "kernel", Usage: "Name of a kernel in the catalog instead of a file"},
			&cli.StringFlag{Name: "catalog", Value: "kernels.yaml", Usage: "Kernel catalog used with --kernel", EnvVars: []string{"GGEMS_KERNELS"}},
			&cli.StringFlag{Name: "options", Usage: "Replace the default build options"},
			&cli.StringFlag{Name: "add-options", Usage: "Append to the default build options"},
		},
		Action: func(c *cli.Context) error {
			src, err := compileSource(c, st.cfg.Compute.KernelDir, st.log)
			if err != nil {
				return err
			}
			return run(st, func(m *gpu.Manager) error {
				if err := m.ActivateContext(st.cfg.Compute.ContextIndex); err != nil {
					return err
				}
				k, err := m.CompileKernel(src.Path, src.Entry, src.CustomOptions, src.AdditionalOptions)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "compiled %s from %s\n", k.Name, src.Path)
				return m.PrintBuildOptions(c.App.Writer)
			})
		},
	}
}

// compileSource resolves the kernel to build from the catalog or the
// positional argument. A relative file missing from the working directory is
// looked up in kernelDir. Option flags override the catalog entry.
func compileSource(c *cli.Context, kernelDir string, log *zap.Logger) (config.KernelSource, error) {
	var src config.KernelSource
	switch {
	case c.IsSet("kernel"):
		catalog, err := config.LoadKernelCatalog(c.String("catalog"))
		if err != nil {
			return src, fmt.Errorf("failed to load kernel catalog: %w", err)
		}
		src, err = catalog.Lookup(c.String("kernel"), log)
		if err != nil {
			return src, err
		}
	case c.Args().Len() == 1:
		src.Path = c.Args().First()
		if _, err := os.Stat(src.Path); err != nil && !filepath.IsAbs(src.Path) && kernelDir != "" {
			src.Path = filepath.Join(kernelDir, src.Path)
		}
		name := filepath.Base(src.Path)
		src.Entry = name[:len(name)-len(filepath.Ext(name))]
	default:
		return src, errors.New("compile needs a kernel file or --kernel")
	}

	if c.IsSet("entry") {
		src.Entry = c.String("entry")
	}
	if c.IsSet("options") {
		opts := c.String("options")
		src.CustomOptions = &opts
	}
	if c.IsSet("add-options") {
		opts := c.String("add-options")
		src.AdditionalOptions = &opts
	}
	return src, nil
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write config.yaml and kernels.yaml templates",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Value: ".", Usage: "Directory to write the templates to"},
			&cli.BoolFlag{Name: "force", Usage: "Overwrite existing files"},
		},
		Action: func(c *cli.Context) error {
			return writeTemplates(c.App.Writer, c.String("dir"), c.Bool("force"))
		},
	}
}

func writeTemplates(w io.Writer, dir string, force bool) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	files := []struct {
		name string
		data []byte
	}{
		{"config.yaml", fixtures.ConfigTemplate},
		{"kernels.yaml", fixtures.KernelCatalogTemplate},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
		if err := os.WriteFile(path, f.data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(w, "wrote %s\n", path)
	}
	return nil
}
