package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/loykin/vpnr"
	"github.com/loykin/vpnr/internal/env"
	"github.com/loykin/vpnr/internal/logline"
	"github.com/loykin/vpnr/pkg/client"
)

type command struct{}

// Classify prints one line per event found in the input.
func (c command) Classify(stdin io.Reader, out io.Writer, args []string) error {
	in := stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(filepath.Clean(args[0]))
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if p, ok := logline.DumpPath(line); ok {
			_, _ = fmt.Fprintf(out, "DUMP %s\n", p)
			continue
		}
		e := vpnr.ParseLine(line)
		switch e.Kind {
		case logline.KindEmpty:
		case logline.KindPlain:
			_, _ = fmt.Fprintf(out, "PLAIN %s\n", e.Message)
		default:
			_, _ = fmt.Fprintf(out, "%s %d %s\n", e.Severity, e.Verbosity, e.Message)
		}
	}
	return sc.Err()
}

// LibPath prints the library search path for the engine.
func (c command) LibPath(out io.Writer, f LibPathFlags) error {
	if f.Exe == "" {
		return fmt.Errorf("--exe is required")
	}
	existing := f.Existing
	if existing == "" && !f.NoEnv {
		existing = os.Getenv(env.LibraryPathVar())
	}
	_, err := fmt.Fprintf(out, "%s=%s\n", env.LibraryPathVar(), vpnr.LibraryPath(f.Exe, f.NativeDir, existing))
	return err
}

// Status queries a running vpnr through its HTTP surface.
func (c command) Status(ctx context.Context, out io.Writer, f StatusFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	api, err := client.New(client.Config{
		BaseURL:  f.APIUrl,
		Timeout:  f.APITimeout,
		Insecure: f.Insecure,
		CACert:   f.CACert,
	})
	if err != nil {
		return err
	}
	st, err := api.Status(ctx)
	if client.IsNotFound(err) {
		return fmt.Errorf("no vpnr status endpoint at %s: %w", f.APIUrl, err)
	}
	if err != nil {
		return err
	}
	if err := printJSON(out, st); err != nil {
		return err
	}
	if f.Logs > 0 {
		logs, err := api.Logs(ctx, f.Logs)
		if err != nil {
			return err
		}
		for _, it := range logs.Items {
			_, _ = fmt.Fprintf(out, "%s %-7s %s\n", it.Time.Format("2006-01-02 15:04:05"), it.Severity, it.Text)
		}
	}
	return nil
}

func (c command) Version(out io.Writer) {
	_, _ = fmt.Fprintf(out, "vpnr %s\n", version)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
