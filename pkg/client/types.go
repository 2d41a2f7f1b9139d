package client

import "time"

// Outcome is how a finished engine run ended.
type Outcome struct {
	Kind  string `json:"kind"` // success, failure or unknown
	Code  int    `json:"code"`
	Error string `json:"error,omitempty"`
}

// Session is the state of the current or most recent engine run.
type Session struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	Replace   bool      `json:"replace_connection"`
	Cancelled bool      `json:"cancelled"`
	DumpPath  string    `json:"dump_path,omitempty"`
	Outcome   *Outcome  `json:"outcome,omitempty"`
}

// ConnectionState is the last state reported to the status log.
type ConnectionState struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	ResourceID string    `json:"resource_id"`
	Level      string    `json:"level"`
	At         time.Time `json:"at"`
}

// StatusResponse is returned by GET {base}/status.
type StatusResponse struct {
	Running bool            `json:"running"`
	Session *Session        `json:"session,omitempty"`
	State   ConnectionState `json:"state"`
}

// LogItem is one status log entry.
type LogItem struct {
	Time      time.Time `json:"time"`
	Severity  string    `json:"severity"`
	Verbosity int       `json:"verbosity"`
	Text      string    `json:"text"`
}

// LogsResponse is returned by GET {base}/logs.
type LogsResponse struct {
	Items []LogItem `json:"items"`
	Total int       `json:"total"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
