package sim

import (
	"context"
	"errors"

	"nexus-sim/internal/telemetry"
)

// EventWriter is an interface to support different event outputs.
type EventWriter interface {
	Write(telemetry.Event) error
}

// BatchWriter is implemented by writers that handle a slice in one call.
type BatchWriter interface {
	WriteBatch([]telemetry.Event) error
}

// WriteAll hands evs to w, in one call when w is a BatchWriter.
func WriteAll(w EventWriter, evs []telemetry.Event) error {
	if bw, ok := w.(BatchWriter); ok {
		return bw.WriteBatch(evs)
	}
	var errs []error
	for _, ev := range evs {
		if err := w.Write(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MultiWriter fans events out to multiple writers. Every writer sees every
// event; errors are joined.
type MultiWriter struct {
	writers []EventWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...EventWriter) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// Write sends an event to all writers.
func (mw *MultiWriter) Write(ev telemetry.Event) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.Write(ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteBatch sends multiple events to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(evs []telemetry.Event) error {
	var errs []error
	for _, w := range mw.writers {
		if err := WriteAll(w, evs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriterHandler adapts an EventWriter to a Handler.
func WriterHandler(w EventWriter) Handler {
	return func(_ context.Context, ev telemetry.Event) error {
		return w.Write(ev)
	}
}

// WriterBatchHandler adapts an EventWriter to a BatchHandler.
func WriterBatchHandler(w EventWriter) BatchHandler {
	return func(_ context.Context, evs []telemetry.Event) error {
		return WriteAll(w, evs)
	}
}
