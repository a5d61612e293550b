package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/meshforge/internal/api"
	"github.com/slok/meshforge/internal/model"
)

// JobListCommand lists the pipeline jobs of a server.
type JobListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	statusFilter string
	limit        int
	format       string
}

// NewJobListCommand returns the job list command.
func NewJobListCommand(rootCmd *RootCommand, jobCmd *kingpin.CmdClause) *JobListCommand {
	c := &JobListCommand{rootCmd: rootCmd}

	c.Cmd = jobCmd.Command("list", "List pipeline jobs, newest first.")
	c.Cmd.Flag("status", "Filter by status (pending, running, completed, cancelled, failed).").StringVar(&c.statusFilter)
	c.Cmd.Flag("limit", "Maximum number of jobs (0 is the server default).").Default("0").IntVar(&c.limit)
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c JobListCommand) Name() string { return c.Cmd.FullCommand() }

func (c JobListCommand) Run(ctx context.Context) error {
	status := model.JobStatus(strings.ToLower(c.statusFilter))
	if status != "" && !model.ValidJobStatus(status) {
		return fmt.Errorf("invalid status filter: %s (must be: pending, running, completed, cancelled, failed)", c.statusFilter)
	}

	client, err := c.rootCmd.newAPIClient()
	if err != nil {
		return err
	}

	jobs, err := client.ListJobs(ctx, api.ListJobsRequest{Status: status, Limit: c.limit})
	if err != nil {
		return fmt.Errorf("could not list jobs: %w", err)
	}

	if err := c.rootCmd.newPrinter(c.format).PrintJobList(jobs); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}
