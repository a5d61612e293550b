package model

import "time"

// LogLevel is the severity of a trace log entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
	LogLevelSuccess LogLevel = "success"
)

// LogEntry is a display log record of a pipeline run.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Details   string
}

// APICall is a display record of a backend API call made by a pipeline run.
type APICall struct {
	ID        string
	Method    string
	Endpoint  string
	Status    int
	Duration  time.Duration
	Timestamp time.Time
	Request   map[string]any
	Response  map[string]any
}

// Trace groups the display records of a pipeline run.
type Trace struct {
	Logs     []LogEntry
	APICalls []APICall
}
