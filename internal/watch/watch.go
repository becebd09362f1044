package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"nexus-sim/internal/broadcast"
)

// Run subscribes to url and renders the stream: a full-screen TUI when out
// is a terminal, one line per message otherwise.
func Run(ctx context.Context, url string, out *os.File) error {
	if !term.IsTerminal(int(out.Fd())) {
		lp := NewLinePrinter(out)
		return Subscribe(ctx, url, lp.Handle)
	}
	return runTUI(ctx, url, out)
}

func runTUI(ctx context.Context, url string, out *os.File) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newTUIModel(url), tea.WithAltScreen(), tea.WithOutput(out), tea.WithContext(ctx))
	go pump(ctx, url, p)

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// pump feeds the subscription into the program.
func pump(ctx context.Context, url string, p teaProgram) {
	err := Subscribe(ctx, url, func(msg broadcast.Message) {
		p.Send(streamMsg{msg})
	})
	p.Send(disconnectedMsg{err: err})
}

// LinePrinter writes one plain line per message.
type LinePrinter struct {
	w io.Writer
}

// NewLinePrinter creates a printer writing to w.
func NewLinePrinter(w io.Writer) *LinePrinter {
	return &LinePrinter{w: w}
}

// Handle prints msg.
func (p *LinePrinter) Handle(msg broadcast.Message) {
	switch v := msg.(type) {
	case broadcast.ConnectionAck:
		fmt.Fprintf(p.w, "%s connected client_id=%s\n", stamp(v.Timestamp), v.ClientID)
	case broadcast.StateUpdate:
		parts := make([]string, 0, len(v.Services))
		for _, s := range v.Services {
			parts = append(parts, s.ServiceID+"="+string(s.Status))
		}
		fmt.Fprintf(p.w, "%s state integrity=%.1f incidents=%d %s\n",
			stamp(v.Timestamp), v.SystemIntegrity, v.ActiveIncidents, strings.Join(parts, " "))
	case broadcast.Alert:
		fmt.Fprintf(p.w, "%s alert severity=%s service=%s %q analysis=%q\n",
			stamp(v.Timestamp), v.Severity, v.ServiceID, v.Message, v.Analysis)
	case broadcast.RemediationResult:
		fmt.Fprintf(p.w, "%s remediation success=%t service=%s action=%s\n",
			stamp(v.Timestamp), v.Success, v.ServiceID, v.Action)
	}
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
