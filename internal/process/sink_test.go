package process

import (
	"strings"
	"sync"
	"time"

	"github.com/loykin/vpnr/internal/logline"
	"github.com/loykin/vpnr/internal/status"
)

// call is one recorded Sink invocation.
type call struct {
	kind      string // message, plain, info, error, state, hints
	severity  logline.Severity
	verbosity int
	text      string
	state     status.State
}

// recSink records every call in order. Snapshot returns items when set.
type recSink struct {
	mu        sync.Mutex
	calls     []call
	items     []status.Item
	onMessage func()
}

func (s *recSink) add(c call) {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()
}

func (s *recSink) LogMessage(sev logline.Severity, verbosity int, msg string) {
	s.mu.Lock()
	hook := s.onMessage
	s.onMessage = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	s.add(call{kind: "message", severity: sev, verbosity: verbosity, text: msg})
}

func (s *recSink) LogPlain(tag, line string) {
	s.add(call{kind: "plain", severity: logline.SeverityInfo, text: tag + line})
}

func (s *recSink) LogInfo(msg string) { s.add(call{kind: "info", text: msg}) }

func (s *recSink) LogError(msg string) {
	s.add(call{kind: "error", severity: logline.SeverityError, text: msg})
}

func (s *recSink) LogException(what string, err error) {
	s.LogError(what + ": " + err.Error())
}

func (s *recSink) UpdateState(st status.State) { s.add(call{kind: "state", state: st}) }

func (s *recSink) AddExtraHints(msg string) { s.add(call{kind: "hints", text: msg}) }

func (s *recSink) Snapshot() []status.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items != nil {
		return append([]status.Item(nil), s.items...)
	}
	out := make([]status.Item, 0, len(s.calls))
	for _, c := range s.calls {
		if c.kind == "state" || c.kind == "hints" {
			continue
		}
		out = append(out, status.Item{Time: time.Now(), Severity: c.severity, Text: c.text})
	}
	return out
}

func (s *recSink) all() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

func (s *recSink) kinds(kind string) []call {
	var out []call
	for _, c := range s.all() {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (s *recSink) hasError(substr string) bool {
	for _, c := range s.kinds("error") {
		if strings.Contains(c.text, substr) {
			return true
		}
	}
	return false
}

// countingOwner counts SessionStopped calls.
type countingOwner struct {
	mu sync.Mutex
	n  int
}

func (o *countingOwner) SessionStopped() {
	o.mu.Lock()
	o.n++
	o.mu.Unlock()
}

func (o *countingOwner) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.n
}
