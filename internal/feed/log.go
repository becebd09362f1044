package feed

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"nexus-sim/internal/telemetry"
)

// LogWriter appends events to a JSONL file, zstd-compressed when the path
// ends in ".zst".
type LogWriter struct {
	mu   sync.Mutex
	file *os.File
	zw   *zstd.Encoder
	enc  *json.Encoder
}

// NewLogWriter creates (or truncates) path.
func NewLogWriter(path string) (*LogWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	lw := &LogWriter{file: f}
	var out io.Writer = f
	if isZstd(path) {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		lw.zw = zw
		out = zw
	}
	lw.enc = json.NewEncoder(out)
	return lw, nil
}

func isZstd(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// Write logs a single event.
func (w *LogWriter) Write(ev telemetry.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(ev)
}

// WriteBatch logs multiple events.
func (w *LogWriter) WriteBatch(evs []telemetry.Event) error {
	for _, ev := range evs {
		if err := w.Write(ev); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes the compressor, if any, and closes the file.
func (w *LogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var err error
	if w.zw != nil {
		err = w.zw.Close()
	}
	if e := w.file.Close(); e != nil && err == nil {
		err = e
	}
	return err
}
