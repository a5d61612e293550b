package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

// JobCancelCommand cancels a pipeline job.
type JobCancelCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id     string
	format string
}

// NewJobCancelCommand returns the job cancel command.
func NewJobCancelCommand(rootCmd *RootCommand, jobCmd *kingpin.CmdClause) *JobCancelCommand {
	c := &JobCancelCommand{rootCmd: rootCmd}

	c.Cmd = jobCmd.Command("cancel", "Cancel an unfinished pipeline job.")
	c.Cmd.Arg("id", "Job ID.").Required().StringVar(&c.id)
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c JobCancelCommand) Name() string { return c.Cmd.FullCommand() }

func (c JobCancelCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newAPIClient()
	if err != nil {
		return err
	}

	job, err := client.CancelJob(ctx, c.id)
	if err != nil {
		return fmt.Errorf("could not cancel job: %w", err)
	}

	if err := c.rootCmd.newPrinter(c.format).PrintMessage(fmt.Sprintf("Job %s %s", job.ID, job.Status)); err != nil {
		return fmt.Errorf("could not print result: %w", err)
	}

	return nil
}
