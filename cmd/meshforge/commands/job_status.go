package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

// JobStatusCommand prints a pipeline job.
type JobStatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id     string
	format string
}

// NewJobStatusCommand returns the job status command.
func NewJobStatusCommand(rootCmd *RootCommand, jobCmd *kingpin.CmdClause) *JobStatusCommand {
	c := &JobStatusCommand{rootCmd: rootCmd}

	c.Cmd = jobCmd.Command("status", "Get the detailed state of a pipeline job.")
	c.Cmd.Arg("id", "Job ID.").Required().StringVar(&c.id)
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c JobStatusCommand) Name() string { return c.Cmd.FullCommand() }

func (c JobStatusCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newAPIClient()
	if err != nil {
		return err
	}

	job, err := client.GetJob(ctx, c.id)
	if err != nil {
		return fmt.Errorf("could not get job: %w", err)
	}

	if err := c.rootCmd.newPrinter(c.format).PrintJob(*job); err != nil {
		return fmt.Errorf("could not print job: %w", err)
	}

	return nil
}
