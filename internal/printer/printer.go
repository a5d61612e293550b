package printer

import (
	"io"
	"time"

	"github.com/slok/meshforge/internal/model"
)

// Printer knows how to print generation and pipeline job information in different formats.
type Printer interface {
	PrintGeneration(res model.GenerationResult) error
	PrintCapabilities(caps model.Capabilities) error
	PrintJobList(jobs []model.Job) error
	PrintJob(job model.Job) error
	// PrintJobProgress prints a single job state of a followed job.
	PrintJobProgress(job model.Job) error
	PrintTrace(jobID string, tr model.Trace) error
	PrintMessage(msg string) error
}

// New returns the printer of a format (table or json).
func New(format string, w io.Writer) Printer {
	if format == FormatJSON {
		return NewJSONPrinter(w)
	}
	return NewTablePrinter(w)
}

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// FormatTimestamp returns a formatted timestamp string in UTC.
// Format: "2006-01-02 15:04:05 UTC".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
