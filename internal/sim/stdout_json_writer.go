package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"nexus-sim/internal/telemetry"
)

// JSONStdoutWriter prints events as JSON lines.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// Write outputs an event in JSON format.
func (w *JSONStdoutWriter) Write(ev telemetry.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}

// WriteBatch outputs multiple events in JSON format.
func (w *JSONStdoutWriter) WriteBatch(evs []telemetry.Event) error {
	for _, ev := range evs {
		if err := w.Write(ev); err != nil {
			return err
		}
	}
	return nil
}
