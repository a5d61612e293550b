package printer

import (
	"encoding/json"
	"io"

	"github.com/slok/meshforge/internal/api"
	"github.com/slok/meshforge/internal/model"
)

// JSONPrinter prints generation and job information in JSON format, using the
// same representation as the HTTP API.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintGeneration prints a generation result in JSON format.
func (j *JSONPrinter) PrintGeneration(res model.GenerationResult) error {
	return j.encode(api.GenerateResponseFromModel(res))
}

// PrintCapabilities prints the generation API capabilities in JSON format.
func (j *JSONPrinter) PrintCapabilities(caps model.Capabilities) error {
	return j.encode(api.CapabilitiesFromModel(caps))
}

// PrintJobList prints jobs in JSON format.
func (j *JSONPrinter) PrintJobList(jobs []model.Job) error {
	items := make([]api.Job, 0, len(jobs))
	for _, jb := range jobs {
		items = append(items, api.JobFromModel(jb))
	}
	return j.encode(items)
}

// PrintJob prints the job in JSON format.
func (j *JSONPrinter) PrintJob(job model.Job) error {
	return j.encode(api.JobFromModel(job))
}

// PrintJobProgress prints the job as a single JSON line, so followed jobs can
// be consumed as a JSON stream.
func (j *JSONPrinter) PrintJobProgress(job model.Job) error {
	return json.NewEncoder(j.writer).Encode(api.JobFromModel(job))
}

// PrintTrace prints the job trace in JSON format.
func (j *JSONPrinter) PrintTrace(jobID string, tr model.Trace) error {
	return j.encode(api.TraceFromModel(jobID, tr))
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
