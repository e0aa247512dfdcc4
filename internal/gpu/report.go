package gpu

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// Verbosity selects the diagnostic reporters run by Report.
type Verbosity struct {
	Platform         bool
	Device           bool
	Context          bool
	Queue            bool
	ActivatedContext bool
	BuildOptions     bool
	RAM              bool
}

// AllReports enables every reporter.
func AllReports() Verbosity {
	return Verbosity{true, true, true, true, true, true, true}
}

func tableRender(w io.Writer, header string, columns []string, rows [][]string) {
	fmt.Fprintln(w, " ", header)
	table := tablewriter.NewWriter(w)
	if len(columns) > 0 {
		table.SetHeader(columns)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderLine(false)
	}
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(rows)
	table.Render()
	fmt.Fprintln(w)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func u64(v uint64) string { return strconv.FormatUint(v, 10) }
func u32(v uint32) string { return strconv.FormatUint(uint64(v), 10) }

func vector(v VectorWidths) string {
	return fmt.Sprintf("%d / %d", v.Native, v.Preferred)
}

// PrintPlatformInfos writes the discovered platforms.
func (m *Manager) PrintPlatformInfos(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireReady(ComponentEnumerator, "PrintPlatformInfos"); err != nil {
		return err
	}

	rows := make([][]string, 0, len(m.platforms))
	for _, p := range m.platforms {
		ids := make([]string, len(p.Devices))
		for i, d := range p.Devices {
			ids[i] = strconv.Itoa(d)
		}
		rows = append(rows, []string{strconv.Itoa(p.Index), p.Vendor, strings.Join(ids, ",")})
	}
	tableRender(w, "PLATFORMS", []string{"PLATFORM", "VENDOR", "DEVICES"}, rows)
	return nil
}

// PrintDeviceInfos writes the full capability descriptor of every device.
func (m *Manager) PrintDeviceInfos(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireReady(ComponentEnumerator, "PrintDeviceInfos"); err != nil {
		return err
	}

	for _, d := range m.devices {
		sizes := make([]string, len(d.MaxWorkItemSizes))
		for i, s := range d.MaxWorkItemSizes {
			sizes[i] = u64(s)
		}
		rows := [][]string{
			{"Type", d.Type.String()},
			{"Name", d.Name},
			{"Vendor", d.Vendor},
			{"Version", d.Version},
			{"Driver version", d.DriverVersion},
			{"OpenCL C version", d.OpenCLCVersion},
			{"Platform", strconv.Itoa(d.Platform)},
			{"Address bits", u32(d.AddressBits)},
			{"Available", yesNo(d.Available)},
			{"Compiler available", yesNo(d.CompilerAvailable)},
			{"Global memory cache", humanize.IBytes(d.GlobalMemCacheSize)},
			{"Global memory cache line", humanize.IBytes(uint64(d.GlobalMemCacheLineSize))},
			{"Global memory", humanize.IBytes(d.GlobalMemSize)},
			{"Local memory", humanize.IBytes(d.LocalMemSize)},
			{"Memory base address align", u32(d.MemBaseAddrAlign)},
			{"Printf buffer", humanize.IBytes(d.PrintfBufferSize)},
			{"Image support", yesNo(d.ImageSupport)},
			{"Image max array size", u64(d.ImageMaxArraySize)},
			{"Image max buffer size", u64(d.ImageMaxBufferSize)},
			{"Image 2D max (w x h)", fmt.Sprintf("%d x %d", d.Image2DMaxWidth, d.Image2DMaxHeight)},
			{"Image 3D max (w x h x d)", fmt.Sprintf("%d x %d x %d", d.Image3DMaxWidth, d.Image3DMaxHeight, d.Image3DMaxDepth)},
			{"Max clock frequency", fmt.Sprintf("%d MHz", d.MaxClockFrequency)},
			{"Max compute units", u32(d.MaxComputeUnits)},
			{"Max constant buffer", humanize.IBytes(d.MaxConstantBufferSize)},
			{"Max memory allocation", humanize.IBytes(d.MaxMemAllocSize)},
			{"Max read / write image args", fmt.Sprintf("%d / %d", d.MaxReadImageArgs, d.MaxWriteImageArgs)},
			{"Max parameter size", humanize.IBytes(d.MaxParameterSize)},
			{"Max samplers", u32(d.MaxSamplers)},
			{"Max work item dimensions", u32(d.MaxWorkItemDimensions)},
			{"Max work group size", u64(d.MaxWorkGroupSize)},
			{"Max work item sizes", strings.Join(sizes, " x ")},
			{"Vector width char (native / preferred)", vector(d.VectorChar)},
			{"Vector width short (native / preferred)", vector(d.VectorShort)},
			{"Vector width int (native / preferred)", vector(d.VectorInt)},
			{"Vector width long (native / preferred)", vector(d.VectorLong)},
			{"Vector width half (native / preferred)", vector(d.VectorHalf)},
			{"Vector width float (native / preferred)", vector(d.VectorFloat)},
			{"Vector width double (native / preferred)", vector(d.VectorDouble)},
		}
		tableRender(w, fmt.Sprintf("DEVICE %d", d.Index), nil, rows)
	}
	return nil
}

// PrintBuildOptions writes the default kernel build options.
func (m *Manager) PrintBuildOptions(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireReady(ComponentCompiler, "PrintBuildOptions"); err != nil {
		return err
	}
	tableRender(w, "BUILD OPTIONS", nil, [][]string{{m.buildOptions}})
	return nil
}

// PrintContextInfos writes every context with its device. It fails if a
// context reports more than one device.
func (m *Manager) PrintContextInfos(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireReady(ComponentContexts, "PrintContextInfos"); err != nil {
		return err
	}

	rows := make([][]string, 0, len(m.contexts))
	for _, c := range m.contexts {
		if _, err := m.contextDevice(c); err != nil {
			return err
		}
		active := ""
		if c.Index == m.active {
			active = "*"
		}
		rows = append(rows, []string{
			strconv.Itoa(c.Index),
			c.Device.Type.String(),
			c.Device.Name,
			strconv.Itoa(c.Device.Index),
			active,
		})
	}
	tableRender(w, fmt.Sprintf("CONTEXTS (%d CPU, %d GPU)", len(m.cpuContexts), len(m.gpuContexts)),
		[]string{"CONTEXT", "TYPE", "DEVICE", "DEVICE ID", "ACTIVE"}, rows)
	return nil
}

// PrintCommandQueueInfos writes the queue of every context.
func (m *Manager) PrintCommandQueueInfos(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireReady(ComponentQueues, "PrintCommandQueueInfos"); err != nil {
		return err
	}

	rows := make([][]string, 0, len(m.queues))
	for i := range m.queues {
		c := m.contexts[i]
		rows = append(rows, []string{strconv.Itoa(i), strconv.Itoa(c.Index), c.Device.Name, "enabled"})
	}
	tableRender(w, "COMMAND QUEUES", []string{"QUEUE", "CONTEXT", "DEVICE", "PROFILING"}, rows)
	return nil
}

// PrintActivatedContextInfos writes the activated context, if any.
func (m *Manager) PrintActivatedContextInfos(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireReady(ComponentContexts, "PrintActivatedContextInfos"); err != nil {
		return err
	}

	if m.active < 0 {
		tableRender(w, "ACTIVATED CONTEXT", nil, [][]string{{"no context activated"}})
		return nil
	}
	c := m.contexts[m.active]
	rows := [][]string{
		{"Context", strconv.Itoa(c.Index)},
		{"Device", c.Device.Name},
		{"Type", c.Device.Type.String()},
		{"Vendor", c.Device.Vendor},
		{"Version", c.Device.Version},
		{"Compute units", u32(c.Device.MaxComputeUnits)},
		{"Work group size", u64(m.workGroupSize(c))},
	}
	tableRender(w, "ACTIVATED CONTEXT", nil, rows)
	return nil
}

// PrintRAMStatus writes the RAM ledger of every context.
func (m *Manager) PrintRAMStatus(w io.Writer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireReady(ComponentMemory, "PrintRAMStatus"); err != nil {
		return err
	}

	rows := make([][]string, 0, len(m.contexts))
	for _, c := range m.contexts {
		rows = append(rows, []string{
			strconv.Itoa(c.Index),
			c.Device.Name,
			fmt.Sprintf("%d / %d bytes", m.ram[c.Index], c.Device.GlobalMemSize),
			humanize.IBytes(m.ram[c.Index]),
			fmt.Sprintf("%.2f %%", m.usagePercent(c.Index)),
		})
	}
	tableRender(w, "RAM MANAGER", []string{"CONTEXT", "DEVICE", "USED / MAX", "USED", "USAGE"}, rows)
	return nil
}

// Report runs the reporters enabled in v.
func (m *Manager) Report(w io.Writer, v Verbosity) error {
	reporters := []struct {
		enabled bool
		print   func(io.Writer) error
	}{
		{v.Platform, m.PrintPlatformInfos},
		{v.Device, m.PrintDeviceInfos},
		{v.BuildOptions, m.PrintBuildOptions},
		{v.Context, m.PrintContextInfos},
		{v.Queue, m.PrintCommandQueueInfos},
		{v.ActivatedContext, m.PrintActivatedContextInfos},
		{v.RAM, m.PrintRAMStatus},
	}
	for _, r := range reporters {
		if !r.enabled {
			continue
		}
		if err := r.print(w); err != nil {
			return err
		}
	}
	return nil
}
