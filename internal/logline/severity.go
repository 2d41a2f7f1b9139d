package logline

import (
	"fmt"
	"strings"
)

// Severity orders classified output from least to most severe.
type Severity int

const (
	SeverityVerbose Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

// SeverityOf maps flag bits to a severity. Bits are checked in order FATAL,
// NONFATAL, WARN, DEBUG; the first set bit wins.
func SeverityOf(flags uint64) Severity {
	switch {
	case flags&FlagFatal != 0:
		return SeverityError
	case flags&FlagNonFatal != 0:
		return SeverityWarning
	case flags&FlagWarn != 0:
		return SeverityWarning
	case flags&FlagDebug != 0:
		return SeverityVerbose
	default:
		return SeverityInfo
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityVerbose:
		return "VERBOSE"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ParseSeverity accepts the String form, case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VERBOSE", "DEBUG":
		return SeverityVerbose, nil
	case "INFO":
		return SeverityInfo, nil
	case "WARNING", "WARN":
		return SeverityWarning, nil
	case "ERROR":
		return SeverityError, nil
	}
	return SeverityInfo, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
