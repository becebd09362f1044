// ColorStdoutWriter prints human-friendly, colorized telemetry to STDOUT.
package sim

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"nexus-sim/internal/telemetry"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

// ColorStdoutWriter prints events using ANSI colors. The first write prints
// an overview of the service registry.
type ColorStdoutWriter struct {
	registry      telemetry.Registry
	out           io.Writer
	mu            sync.Mutex
	once          sync.Once
	serviceColors map[string]string
	colorIdx      int
}

var servicePalette = []string{colorBlue, colorMagenta, colorCyan, colorGreen, colorYellow}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter(reg telemetry.Registry) *ColorStdoutWriter {
	return newColorWriter(reg, os.Stdout)
}

func newColorWriter(reg telemetry.Registry, out io.Writer) *ColorStdoutWriter {
	return &ColorStdoutWriter{
		registry:      reg,
		out:           out,
		serviceColors: make(map[string]string),
	}
}

func (w *ColorStdoutWriter) serviceColor(id string) string {
	if c, ok := w.serviceColors[id]; ok {
		return c
	}
	c := servicePalette[w.colorIdx%len(servicePalette)]
	w.serviceColors[id] = c
	w.colorIdx++
	return c
}

func statusColor(s telemetry.Status) string {
	switch s {
	case telemetry.StatusCritical:
		return colorRed
	case telemetry.StatusWarning:
		return colorYellow
	}
	return colorGreen
}

func (w *ColorStdoutWriter) printOverview() {
	if len(w.registry) == 0 {
		return
	}
	fmt.Fprintln(w.out, "Services:")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tPosition\n")
	for _, s := range w.registry {
		col := w.serviceColor(s.ID)
		fmt.Fprintf(tw, "%s%s%s\t(%.2f, %.2f, %.2f)\n", col, s.ID, colorReset, s.Position.X, s.Position.Y, s.Position.Z)
	}
	tw.Flush()
	fmt.Fprintln(w.out)
}

// Write outputs a single event in colorized format.
func (w *ColorStdoutWriter) Write(ev telemetry.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.once.Do(w.printOverview)

	fmt.Fprintf(w.out, "%s[%s]%s ", colorGray, ev.Timestamp.Format(time.RFC3339), colorReset)
	fmt.Fprintf(w.out, "%s%-8s%s ", statusColor(ev.Status), ev.Status, colorReset)
	fmt.Fprintf(w.out, "%s[%s]%s ", w.serviceColor(ev.ServiceID), ev.ServiceID, colorReset)
	fmt.Fprintf(w.out, "latency=%dms error=%.2f%% traffic=%d ", ev.LatencyMS, ev.ErrorRate*100, ev.TrafficVolume)
	fmt.Fprintf(w.out, "%s%s%s\n", colorGray, ev.Message, colorReset)
	return nil
}

// WriteBatch outputs multiple events.
func (w *ColorStdoutWriter) WriteBatch(evs []telemetry.Event) error {
	for _, ev := range evs {
		_ = w.Write(ev)
	}
	return nil
}
