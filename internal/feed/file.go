package feed

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"nexus-sim/internal/logging"
)

// FileSource replays an event log written by LogWriter. A Speed > 0 keeps the
// recorded spacing between events divided by Speed; otherwise events are
// delivered as fast as the handler accepts them.
type FileSource struct {
	Path  string
	Speed float64
}

// Run replays the file once.
func (s FileSource) Run(ctx context.Context, handle Handler) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	var r io.Reader = f
	if isZstd(s.Path) {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return err
		}
		defer zr.Close()
		r = zr
	}
	return Replay(ctx, r, s.Speed, handle)
}

// Replay delivers every event in r. Malformed lines are logged and skipped.
func Replay(ctx context.Context, r io.Reader, speed float64, handle Handler) error {
	log := logging.FromContext(ctx)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	var prev time.Time
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		ev, err := Decode(sc.Bytes())
		if err != nil {
			log.Warn("skipping malformed event", "line", line, "err", err)
			continue
		}
		if !prev.IsZero() && speed > 0 {
			diff := ev.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				t := time.NewTimer(diff)
				select {
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				case <-t.C:
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handle(ctx, ev); err != nil {
			log.Error("replay handler failed", "line", line, "service_id", ev.ServiceID, "err", err)
		}
		prev = ev.Timestamp
	}
	return sc.Err()
}
