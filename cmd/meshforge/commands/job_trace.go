package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

// JobTraceCommand prints the logs and backend API calls of a pipeline job.
type JobTraceCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	id     string
	format string
}

// NewJobTraceCommand returns the job trace command.
func NewJobTraceCommand(rootCmd *RootCommand, jobCmd *kingpin.CmdClause) *JobTraceCommand {
	c := &JobTraceCommand{rootCmd: rootCmd}

	c.Cmd = jobCmd.Command("trace", "Show the logs and API calls of a pipeline job.")
	c.Cmd.Arg("id", "Job ID.").Required().StringVar(&c.id)
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c JobTraceCommand) Name() string { return c.Cmd.FullCommand() }

func (c JobTraceCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newAPIClient()
	if err != nil {
		return err
	}

	tr, err := client.GetJobTrace(ctx, c.id)
	if err != nil {
		return fmt.Errorf("could not get job trace: %w", err)
	}

	if err := c.rootCmd.newPrinter(c.format).PrintTrace(c.id, *tr); err != nil {
		return fmt.Errorf("could not print trace: %w", err)
	}

	return nil
}
