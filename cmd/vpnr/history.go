package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/loykin/vpnr"
)

// History prints recent run events, oldest first.
func (c command) History(ctx context.Context, out io.Writer, f HistoryFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	dsns := f.DSNs
	if len(dsns) == 0 {
		cfg, err := vpnr.LoadConfig(f.ConfigPath)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		dsns = cfg.History.DSNs
	}
	if len(dsns) == 0 {
		return errors.New("no history store configured: set history.dsns or pass --dsn")
	}

	events, err := vpnr.RecentHistory(ctx, dsns, f.Limit)
	if err != nil {
		return err
	}
	if f.JSON {
		if events == nil {
			events = []vpnr.HistoryEvent{}
		}
		return printJSON(out, events)
	}
	for _, e := range events {
		r := e.Record
		line := fmt.Sprintf("%s %-5s %s run=%s pid=%d",
			e.OccurredAt.Local().Format("2006-01-02 15:04:05"), e.Type, r.Name, r.RunID, r.PID)
		if e.Type == "stop" {
			line += fmt.Sprintf(" outcome=%s code=%d", r.Outcome, r.ExitCode)
			if r.Replaced {
				line += " replaced"
			}
			if r.DumpPath != "" {
				line += " dump=" + r.DumpPath
			}
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}
