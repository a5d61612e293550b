package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/slok/meshforge/internal/model"
)

// TablePrinter prints generation and job information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintGeneration prints a generation result.
func (t *TablePrinter) PrintGeneration(res model.GenerationResult) error {
	fmt.Fprintf(t.writer, "Artifact:     %s\n", res.Artifact)
	fmt.Fprintf(t.writer, "Thumbnail:    %s\n", res.Thumbnail)
	fmt.Fprintf(t.writer, "Quality:      %s\n", res.Quality)
	fmt.Fprintf(t.writer, "File size:    %s\n", res.FileSize)
	fmt.Fprintf(t.writer, "Processing:   %s\n", res.ProcessingTime.Round(time.Millisecond))
	fmt.Fprintf(t.writer, "Vertices:     %s\n", humanize.Comma(int64(res.Metrics.Vertices)))
	fmt.Fprintf(t.writer, "Faces:        %s\n", humanize.Comma(int64(res.Metrics.Faces)))
	fmt.Fprintf(t.writer, "Materials:    %d\n", res.Metrics.Materials)
	fmt.Fprintf(t.writer, "Textures:     %d\n", res.Metrics.Textures)

	return nil
}

// PrintCapabilities prints the generation API capabilities.
func (t *TablePrinter) PrintCapabilities(caps model.Capabilities) error {
	types := make([]string, 0, len(caps.Types))
	for _, tp := range caps.Types {
		types = append(types, string(tp))
	}
	qualities := make([]string, 0, len(caps.Quality))
	for _, q := range caps.Quality {
		qualities = append(qualities, string(q))
	}

	fmt.Fprintf(t.writer, "Types:            %s\n", strings.Join(types, ", "))
	fmt.Fprintf(t.writer, "Image formats:    %s\n", strings.Join(caps.Formats, ", "))
	fmt.Fprintf(t.writer, "Quality:          %s\n", strings.Join(qualities, ", "))
	fmt.Fprintf(t.writer, "Max images:       %d\n", caps.Limits.MaxImages)
	fmt.Fprintf(t.writer, "Max image size:   %s\n", humanize.IBytes(uint64(caps.Limits.MaxImageSizeBytes)))
	fmt.Fprintf(t.writer, "Max prompt:       %d characters\n", caps.Limits.MaxPromptLength)

	return nil
}

// PrintJobList prints jobs in a table format.
func (t *TablePrinter) PrintJobList(jobs []model.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tPROGRESS\tSTAGE\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\t%s\t%s\n",
			j.ID,
			j.Request.Type,
			j.Status,
			j.Progress(),
			currentStageName(j),
			humanize.Time(j.CreatedAt),
		)
	}

	return nil
}

// PrintJob prints the detailed job state.
func (t *TablePrinter) PrintJob(job model.Job) error {
	fmt.Fprintf(t.writer, "ID:         %s\n", job.ID)
	fmt.Fprintf(t.writer, "Type:       %s\n", job.Request.Type)
	if job.Request.Prompt != "" {
		fmt.Fprintf(t.writer, "Prompt:     %s\n", job.Request.Prompt)
	}
	if n := len(job.Request.Images); n > 0 {
		fmt.Fprintf(t.writer, "Images:     %d\n", n)
	}
	fmt.Fprintf(t.writer, "Quality:    %s\n", job.Request.Quality)
	fmt.Fprintf(t.writer, "Status:     %s\n", job.Status)
	fmt.Fprintf(t.writer, "Progress:   %.1f%%\n", job.Progress())
	fmt.Fprintf(t.writer, "Created:    %s\n", FormatTimestamp(job.CreatedAt))
	if job.FinishedAt != nil {
		fmt.Fprintf(t.writer, "Finished:   %s\n", FormatTimestamp(*job.FinishedAt))
	}
	if job.Error != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", job.Error)
	}

	if a := job.Artifact; a != nil {
		fmt.Fprintf(t.writer, "Model:      %s\n", a.ModelURL)
		fmt.Fprintf(t.writer, "Mesh:       %s vertices, %s triangles\n", humanize.Comma(int64(a.Vertices)), humanize.Comma(int64(a.Triangles)))
		fmt.Fprintf(t.writer, "File:       %s (%s)\n", a.FileSize, a.Format)
	}

	if len(job.Stages) == 0 {
		return nil
	}

	fmt.Fprintln(t.writer)
	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "STAGE\tSTATUS\tPROGRESS\tDURATION\tDETAILS")
	for _, s := range job.Stages {
		duration := "-"
		if s.Duration > 0 {
			duration = s.Duration.Round(100 * time.Millisecond).String()
		}
		details := s.Details
		if details == "" {
			details = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.0f%%\t%s\t%s\n", s.Name, s.Status, s.Progress, duration, details)
	}

	return nil
}

// PrintJobProgress prints a one line summary of the job state.
func (t *TablePrinter) PrintJobProgress(job model.Job) error {
	stage := currentStageName(job)
	if i := job.CurrentStage; i >= 0 && i < len(job.Stages) && !job.Status.IsTerminal() {
		stage = fmt.Sprintf("%s (%.0f%%)", stage, job.Stages[i].Progress)
	}

	_, err := fmt.Fprintf(t.writer, "%5.1f%%  %-9s  %s\n", job.Progress(), job.Status, stage)
	return err
}

// PrintTrace prints the job logs and API calls.
func (t *TablePrinter) PrintTrace(jobID string, tr model.Trace) error {
	fmt.Fprintf(t.writer, "Job: %s\n\n", jobID)

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tLEVEL\tMESSAGE\tDETAILS")
	for _, l := range tr.Logs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.Timestamp.UTC().Format(time.TimeOnly), l.Level, l.Message, l.Details)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(tr.APICalls) == 0 {
		return nil
	}

	fmt.Fprintln(t.writer)
	tw = tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMETHOD\tENDPOINT\tSTATUS\tDURATION")
	for _, c := range tr.APICalls {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", c.Timestamp.UTC().Format(time.TimeOnly), c.Method, c.Endpoint, c.Status, c.Duration)
	}
	return tw.Flush()
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func currentStageName(j model.Job) string {
	if j.Status == model.JobStatusCompleted {
		return "-"
	}
	if i := j.CurrentStage; i >= 0 && i < len(j.Stages) {
		return j.Stages[i].Name
	}
	return "-"
}
