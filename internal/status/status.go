// Package status holds what the supervisor reports: classified log items,
// named connection states and the bounded in-memory log used for crash dumps.
package status

import (
	"time"

	"github.com/loykin/vpnr/internal/logline"
)

// ConnectionLevel is the coarse connection state shown to users.
type ConnectionLevel int

const (
	LevelUnknown ConnectionLevel = iota
	LevelConnected
	LevelVPNPaused
	LevelConnectingServerReplied
	LevelConnectingNoServerReplyYet
	LevelNoNetwork
	LevelNotConnected
	LevelStart
	LevelAuthFailed
	LevelWaitingForUserInput
)

var levelNames = map[ConnectionLevel]string{
	LevelUnknown:                    "UNKNOWN_LEVEL",
	LevelConnected:                  "LEVEL_CONNECTED",
	LevelVPNPaused:                  "LEVEL_VPNPAUSED",
	LevelConnectingServerReplied:    "LEVEL_CONNECTING_SERVER_REPLIED",
	LevelConnectingNoServerReplyYet: "LEVEL_CONNECTING_NO_SERVER_REPLY_YET",
	LevelNoNetwork:                  "LEVEL_NONETWORK",
	LevelNotConnected:               "LEVEL_NOTCONNECTED",
	LevelStart:                      "LEVEL_START",
	LevelAuthFailed:                 "LEVEL_AUTH_FAILED",
	LevelWaitingForUserInput:        "LEVEL_WAITING_FOR_USER_INPUT",
}

func (l ConnectionLevel) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return levelNames[LevelUnknown]
}

func (l ConnectionLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *ConnectionLevel) UnmarshalText(b []byte) error {
	for k, v := range levelNames {
		if v == string(b) {
			*l = k
			return nil
		}
	}
	*l = LevelUnknown
	return nil
}

// State is a named state update.
type State struct {
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	ResourceID string          `json:"resource_id"`
	Level      ConnectionLevel `json:"level"`
	At         time.Time       `json:"at"`
}

// NoProcess is the state reported once an engine run has fully drained.
func NoProcess() State {
	return State{
		Code:       "NOPROCESS",
		Message:    "No process running.",
		ResourceID: "state_noprocess",
		Level:      LevelNotConnected,
	}
}

// Item is one entry of the in-memory log.
type Item struct {
	Time      time.Time        `json:"time"`
	Severity  logline.Severity `json:"severity"`
	Verbosity int              `json:"verbosity"`
	Text      string           `json:"text"`
}

// Sink receives everything an engine run reports.
type Sink interface {
	// LogMessage records a classified engine message.
	LogMessage(sev logline.Severity, verbosity int, msg string)
	// LogPlain records unstructured output under tag.
	LogPlain(tag, line string)
	LogInfo(msg string)
	LogError(msg string)
	// LogException records err with a short description of what failed.
	LogException(what string, err error)
	UpdateState(s State)
	// AddExtraHints scans an engine message for known problems.
	AddExtraHints(msg string)
	// Snapshot returns the buffered items, oldest first.
	Snapshot() []Item
}
