// Package logline decodes the engine's structured output grammar:
//
//	<seconds>.<fraction> <hex-flags> <message>
//
// Any other non-empty line is plain output.
package logline

import (
	"regexp"
	"strconv"
	"strings"
)

// Engine message flag bits. The low nibble carries the verbosity level.
const (
	FlagFatal    uint64 = 1 << 4
	FlagNonFatal uint64 = 1 << 5
	FlagWarn     uint64 = 1 << 6
	FlagDebug    uint64 = 1 << 7

	VerbosityMask uint64 = 0x0F
)

// DumpPathPrefix marks a line announcing where the engine wrote a crash dump.
const DumpPathPrefix = "Dump path: "

// ManagementPrefix starts messages echoing management-channel traffic.
const ManagementPrefix = "MANAGEMENT: CMD"

// ManagementVerbosity is the minimum verbosity given to management traffic.
const ManagementVerbosity = 4

// PlainTag prefixes unstructured engine output when it is forwarded.
const PlainTag = "P:"

var grammar = regexp.MustCompile(`^(\d+)\.(\d+) ([0-9a-f]+) (.*)$`)

// Kind tells structured lines from plain ones.
type Kind int

const (
	KindEmpty Kind = iota
	KindPlain
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindStructured:
		return "structured"
	default:
		return "empty"
	}
}

// Entry is one classified line.
type Entry struct {
	Kind      Kind
	Seconds   int64 // engine timestamp, zero for plain lines
	Micros    string
	Flags     uint64
	Verbosity int
	Severity  Severity
	Message   string // structured message, or the raw line for plain output
}

// Parse classifies line. Trailing CR/LF is ignored. Empty lines return
// KindEmpty; lines outside the grammar (including a flags field that does not
// fit in 64 bits) are KindPlain with the text unmodified.
func Parse(line string) Entry {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Entry{Kind: KindEmpty}
	}
	m := grammar.FindStringSubmatch(line)
	if m == nil {
		return plain(line)
	}
	flags, err := strconv.ParseUint(m[3], 16, 64)
	if err != nil {
		return plain(line)
	}
	secs, _ := strconv.ParseInt(m[1], 10, 64)
	msg := m[4]
	verbosity := int(flags & VerbosityMask)
	if strings.HasPrefix(msg, ManagementPrefix) && verbosity < ManagementVerbosity {
		verbosity = ManagementVerbosity
	}
	return Entry{
		Kind:      KindStructured,
		Seconds:   secs,
		Micros:    m[2],
		Flags:     flags,
		Verbosity: verbosity,
		Severity:  SeverityOf(flags),
		Message:   msg,
	}
}

func plain(line string) Entry {
	return Entry{Kind: KindPlain, Severity: SeverityInfo, Message: line}
}

// DumpPath returns the path announced by a dump marker line.
func DumpPath(line string) (string, bool) {
	if !strings.HasPrefix(line, DumpPathPrefix) {
		return "", false
	}
	return strings.TrimRight(line[len(DumpPathPrefix):], "\r\n"), true
}

// PlainText renders a plain line the way it is forwarded to the status log.
func PlainText(line string) string { return PlainTag + line }
