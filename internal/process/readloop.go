package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/loykin/vpnr/internal/logline"
	"github.com/loykin/vpnr/internal/metrics"
)

const (
	initialLineBuffer = 64 * 1024
	// Longer lines are cut; the rest of the line is read and dropped.
	maxLineLength = 1024 * 1024
)

// readLoop classifies engine output until EOF, a read error, or ctx ends.
func (p *Process) readLoop(ctx context.Context) {
	p.mu.Lock()
	out := p.out
	p.mu.Unlock()

	// A silent engine would otherwise hold the loop past cancellation.
	release := context.AfterFunc(ctx, func() {
		_ = out.SetReadDeadline(time.Now())
	})
	defer release()

	r := bufio.NewReaderSize(out, initialLineBuffer)
	for {
		line, err := readLine(r, maxLineLength)
		if err == nil || line != "" {
			p.handleLine(line)
		}
		if ctx.Err() != nil {
			p.cancel(ctx)
			return
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			p.sink.LogException("Error reading from output of engine process", err)
			p.abort()
			return
		}
	}
}

// readLine returns the next line without its terminator, keeping at most
// limit bytes of it.
func readLine(r *bufio.Reader, limit int) (string, error) {
	var buf []byte
	truncated := false
	for {
		frag, more, err := r.ReadLine()
		if err != nil {
			return string(buf), err
		}
		if room := limit - len(buf); len(frag) > room {
			frag = frag[:room]
			truncated = true
		}
		buf = append(buf, frag...)
		if !more {
			if truncated {
				slog.Warn("Engine output line truncated", "limit", limit)
			}
			return string(buf), nil
		}
	}
}

func (p *Process) cancel(ctx context.Context) {
	p.mu.Lock()
	p.cancelled = true
	p.mu.Unlock()
	p.sink.LogException("Engine supervision cancelled", fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx)))
	p.abort()
}

func (p *Process) handleLine(line string) {
	if path, ok := logline.DumpPath(line); ok {
		p.mu.Lock()
		p.dumpPath = path
		p.mu.Unlock()
	}
	p.tee(line)

	e := logline.Parse(line)
	switch e.Kind {
	case logline.KindStructured:
		p.sink.LogMessage(e.Severity, e.Verbosity, e.Message)
		p.sink.AddExtraHints(e.Message)
		metrics.IncLine(e.Kind.String(), e.Severity.String())
	case logline.KindPlain:
		p.sink.LogPlain(logline.PlainTag, e.Message)
		metrics.IncLine(e.Kind.String(), e.Severity.String())
	}
}

func (p *Process) tee(line string) {
	p.mu.Lock()
	raw := p.raw
	p.mu.Unlock()
	if raw == nil {
		return
	}
	if _, err := raw.Write([]byte(line + "\n")); err != nil {
		// one failure is enough; stop copying
		p.mu.Lock()
		p.raw = nil
		p.mu.Unlock()
		_ = raw.Close()
		p.sink.LogException("Writing engine output log", err)
	}
}
