package process

import (
	"bufio"
	"fmt"
	"os"

	"github.com/loykin/vpnr/internal/metrics"
	"github.com/loykin/vpnr/internal/status"
)

// DumpTimeLayout prefixes every line of a crash dump log.
const DumpTimeLayout = "2006-01-02 15:04:05"

func (p *Process) renderDump(dumpPath string) {
	path := dumpPath + ".log"
	if err := WriteDump(path, p.sink.Snapshot()); err != nil {
		metrics.IncDump("failed")
		p.sink.LogError("Writing crash dump log: " + err.Error())
		return
	}
	metrics.IncDump("written")
	p.sink.LogError(fmt.Sprintf("The engine crashed unexpectedly. A crash dump was written to %s and its log to %s", dumpPath, path))
}

// WriteDump writes items to path, one "YYYY-MM-DD HH:MM:SS text" line each.
func WriteDump(path string, items []status.Item) error {
	// #nosec G304 -- the engine chose the dump location
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, it := range items {
		if _, err := fmt.Fprintf(w, "%s %s\n", it.Time.Format(DumpTimeLayout), it.Text); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
