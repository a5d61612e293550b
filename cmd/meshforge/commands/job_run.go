package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/meshforge/internal/api"
	"github.com/slok/meshforge/internal/model"
	"github.com/slok/meshforge/internal/printer"
)

// JobRunCommand starts a pipeline job and follows it until it ends.
type JobRunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	genType        string
	prompt         string
	quality        string
	images         []string
	idempotencyKey string
	detach         bool
	format         string
}

// NewJobRunCommand returns the job run command.
func NewJobRunCommand(rootCmd *RootCommand, jobCmd *kingpin.CmdClause) *JobRunCommand {
	c := &JobRunCommand{rootCmd: rootCmd}

	c.Cmd = jobCmd.Command("run", "Start a pipeline job and follow its progress.")
	addGenerationFlags(c.Cmd, &c.genType, &c.prompt, &c.quality, &c.images, &c.idempotencyKey)
	c.Cmd.Flag("detach", "Return after starting the job instead of following it.").Short('d').BoolVar(&c.detach)
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c JobRunCommand) Name() string { return c.Cmd.FullCommand() }

func (c JobRunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	client, err := c.rootCmd.newAPIClient()
	if err != nil {
		return err
	}

	uploads, closeUploads, err := openUploads(c.images)
	if err != nil {
		return err
	}
	defer closeUploads()

	job, err := client.CreateJob(ctx, api.UploadRequest{
		Type:           model.GenerationType(c.genType),
		Prompt:         c.prompt,
		Quality:        model.Quality(c.quality),
		Images:         uploads,
		IdempotencyKey: c.idempotencyKey,
	})
	if err != nil {
		return fmt.Errorf("could not create job: %w", err)
	}

	p := c.rootCmd.newPrinter(c.format)
	if c.detach {
		if err := p.PrintJob(*job); err != nil {
			return fmt.Errorf("could not print job: %w", err)
		}
		return nil
	}

	logger.Infof("Following job %s", job.ID)
	last := *job
	err = client.WatchJob(ctx, job.ID, func(j model.Job) error {
		last = j
		return p.PrintJobProgress(j)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			logger.Infof("Stopped following job %s, it keeps running on the server", job.ID)
			return nil
		}
		return fmt.Errorf("could not follow job: %w", err)
	}

	if c.format != printer.FormatJSON {
		fmt.Fprintln(c.rootCmd.Stdout)
		if err := p.PrintJob(last); err != nil {
			return fmt.Errorf("could not print job: %w", err)
		}
	}

	if last.Status != model.JobStatusCompleted {
		return fmt.Errorf("job %s ended with status %s", last.ID, last.Status)
	}

	return nil
}
