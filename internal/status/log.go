package status

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/vpnr/internal/logline"
)

// DefaultCapacity is the number of items Log keeps before dropping the oldest.
const DefaultCapacity = 1000

// Log is the in-memory Sink: a bounded ring of items, the last state, and
// listeners for both. Every item is mirrored to slog.
type Log struct {
	mu    sync.RWMutex
	ring  []Item
	head  int // index of the oldest item
	size  int
	state State

	nextID         int
	logListeners   map[int]func(Item)
	stateListeners map[int]func(State)

	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Log)

// WithCapacity bounds the buffer; values below 1 keep DefaultCapacity.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.ring = make([]Item, n)
		}
	}
}

// WithLogger mirrors items to lg instead of slog.Default().
func WithLogger(lg *slog.Logger) Option {
	return func(l *Log) { l.logger = lg }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

func NewLog(opts ...Option) *Log {
	l := &Log{
		ring:           make([]Item, DefaultCapacity),
		logListeners:   make(map[int]func(Item)),
		stateListeners: make(map[int]func(State)),
		now:            time.Now,
		state:          State{Code: "NOPROCESS", Level: LevelNotConnected},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Log) LogMessage(sev logline.Severity, verbosity int, msg string) {
	l.add(sev, verbosity, msg)
}

func (l *Log) LogPlain(tag, line string) {
	l.add(logline.SeverityInfo, 1, tag+line)
}

func (l *Log) LogInfo(msg string) { l.add(logline.SeverityInfo, 1, msg) }

func (l *Log) LogError(msg string) { l.add(logline.SeverityError, 1, msg) }

func (l *Log) LogException(what string, err error) {
	if err == nil {
		l.LogError(what)
		return
	}
	l.LogError(fmt.Sprintf("%s: %v", what, err))
}

func (l *Log) UpdateState(s State) {
	if s.At.IsZero() {
		s.At = l.now()
	}
	l.mu.Lock()
	l.state = s
	fns := make([]func(State), 0, len(l.stateListeners))
	for _, fn := range l.stateListeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	l.log().Debug("state changed", "code", s.Code, "level", s.Level.String(), "message", s.Message)
	for _, fn := range fns {
		fn(s)
	}
}

// LastState returns the most recent state update.
func (l *Log) LastState() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Log) AddExtraHints(msg string) {
	for _, h := range hintsFor(msg) {
		l.LogError(h)
	}
}

func (l *Log) Snapshot() []Item {
	return l.Tail(0)
}

// Tail returns the newest limit items, oldest first. limit <= 0 returns all.
func (l *Log) Tail(limit int) []Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := l.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Item, n)
	start := l.head + l.size - n
	for i := 0; i < n; i++ {
		out[i] = l.ring[(start+i)%len(l.ring)]
	}
	return out
}

// Len reports how many items are buffered.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Clear drops all buffered items. The last state is kept.
func (l *Log) Clear() {
	l.mu.Lock()
	l.head, l.size = 0, 0
	clear(l.ring)
	l.mu.Unlock()
}

// OnLog registers fn for every new item. The returned func removes it.
func (l *Log) OnLog(fn func(Item)) (remove func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.logListeners[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.logListeners, id)
		l.mu.Unlock()
	}
}

// OnState registers fn for every state update. The returned func removes it.
func (l *Log) OnState(fn func(State)) (remove func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.stateListeners[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.stateListeners, id)
		l.mu.Unlock()
	}
}

func (l *Log) add(sev logline.Severity, verbosity int, text string) {
	it := Item{Time: l.now(), Severity: sev, Verbosity: verbosity, Text: text}

	l.mu.Lock()
	if l.size < len(l.ring) {
		l.ring[(l.head+l.size)%len(l.ring)] = it
		l.size++
	} else {
		l.ring[l.head] = it
		l.head = (l.head + 1) % len(l.ring)
	}
	fns := make([]func(Item), 0, len(l.logListeners))
	for _, fn := range l.logListeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	l.log().Log(context.Background(), slogLevel(sev), text, "verbosity", verbosity, "source", "engine")
	for _, fn := range fns {
		fn(it)
	}
}

func (l *Log) log() *slog.Logger {
	if l.logger != nil {
		return l.logger
	}
	return slog.Default()
}

func slogLevel(s logline.Severity) slog.Level {
	switch s {
	case logline.SeverityError:
		return slog.LevelError
	case logline.SeverityWarning:
		return slog.LevelWarn
	case logline.SeverityVerbose:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

var _ Sink = (*Log)(nil)
