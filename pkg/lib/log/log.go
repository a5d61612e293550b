// Package log provides the logging interface for the meshforge SDK.
//
// The SDK client is silent by default. Pass a [Logger] in lib.Config to see
// the requests it makes and the job streams it follows:
//
//	client, _ := lib.New(lib.Config{
//	    Logger: log.NewLogrus(logrus.NewEntry(logrus.StandardLogger())),
//	})
//
// Any other logging library can be used implementing [Logger].
package log

import (
	"github.com/sirupsen/logrus"

	"github.com/slok/meshforge/internal/log"
	loglogrus "github.com/slok/meshforge/internal/log/logrus"
)

// Logger is the interface the SDK logs through.
//
// Structured values are passed with [Kv], only the format methods need a
// meaningful implementation for most uses.
type Logger = log.Logger

// Kv are structured logging key-value pairs.
type Kv = log.Kv

// Noop discards all the log output, used when lib.Config has no logger.
var Noop = log.Noop

// NewLogrus returns a Logger backed by a logrus entry.
func NewLogrus(l *logrus.Entry) Logger {
	return loglogrus.NewLogrus(l)
}
