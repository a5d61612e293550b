package commands

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/meshforge/internal/app/pipeline"
	"github.com/slok/meshforge/internal/generator/fake"
	"github.com/slok/meshforge/internal/model"
	"github.com/slok/meshforge/internal/printer"
	"github.com/slok/meshforge/internal/simulator"
	"github.com/slok/meshforge/internal/storage/memory"
)

// SimulateCommand runs a pipeline job locally, printing its progress.
type SimulateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	genType        string
	prompt         string
	quality        string
	images         []string
	pipelineConfig string
	tickInterval   time.Duration
	seed           uint64
	format         string
}

// NewSimulateCommand returns the simulate command.
func NewSimulateCommand(rootCmd *RootCommand, app *kingpin.Application) *SimulateCommand {
	c := &SimulateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("simulate", "Run a simulated generation pipeline locally and print its progress.")
	c.Cmd.Flag("type", "Generation type.").Default(string(model.GenerationTypeText)).EnumVar(&c.genType, string(model.GenerationTypeText), string(model.GenerationTypeSingleImage), string(model.GenerationTypeMultiImage))
	c.Cmd.Flag("prompt", "Text prompt.").Default("A low poly red fox").StringVar(&c.prompt)
	c.Cmd.Flag("quality", "Output quality (low, medium, high).").StringVar(&c.quality)
	c.Cmd.Flag("image", "Image file (repeatable).").StringsVar(&c.images)
	c.Cmd.Flag("pipeline-config", "Path to the pipeline YAML configuration.").StringVar(&c.pipelineConfig)
	c.Cmd.Flag("tick-interval", "Overrides the simulation tick interval.").DurationVar(&c.tickInterval)
	c.Cmd.Flag("seed", "Random seed for reproducible runs (0 is random).").Uint64Var(&c.seed)
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c SimulateCommand) Name() string { return c.Cmd.FullCommand() }

func (c SimulateCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	pipelineCfg, err := loadPipelineConfig(ctx, c.pipelineConfig)
	if err != nil {
		return err
	}
	if c.tickInterval > 0 {
		pipelineCfg.Simulation.TickInterval = c.tickInterval
	}

	images, err := imageInputs(c.images)
	if err != nil {
		return err
	}

	var simRand model.RandSource
	var genRand model.RandSource
	if c.seed != 0 {
		simRand = rand.New(rand.NewPCG(c.seed, 1))
		genRand = rand.New(rand.NewPCG(c.seed, 2))
	}

	repo, err := memory.NewRepository(memory.RepositoryConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}

	est, err := fake.NewGenerator(fake.GeneratorConfig{
		Tuning:  pipelineCfg.Generator,
		NoDelay: true,
		Rand:    genRand,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("could not create generator: %w", err)
	}

	sim, err := simulator.New(simulator.Config{
		Tuning: pipelineCfg.Simulation,
		Rand:   simRand,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create simulator: %w", err)
	}

	svc, err := pipeline.NewService(pipeline.ServiceConfig{
		Repository: repo,
		Simulator:  sim,
		Estimator:  est,
		Stages:     pipelineCfg.Stages,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create pipeline service: %w", err)
	}
	defer func() { _ = svc.Shutdown(context.Background()) }()

	job, err := svc.Start(ctx, pipeline.StartRequest{
		Generation: model.GenerationRequest{
			Type:    model.GenerationType(c.genType),
			Prompt:  c.prompt,
			Quality: model.Quality(c.quality),
			Images:  images,
		},
	})
	if err != nil {
		return fmt.Errorf("could not start simulation: %w", err)
	}

	updates, unsubscribe, err := svc.Subscribe(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("could not follow simulation: %w", err)
	}
	defer unsubscribe()

	p := c.rootCmd.newPrinter(c.format)
	var last model.Job
	for {
		select {
		case <-ctx.Done():
			if _, err := svc.Cancel(context.Background(), job.ID); err != nil {
				logger.Warningf("Could not cancel simulation: %s", err)
			}
			return nil
		case j, ok := <-updates:
			if !ok {
				return c.finish(last)
			}
			last = j
			if err := p.PrintJobProgress(j); err != nil {
				return fmt.Errorf("could not print progress: %w", err)
			}
		}
	}
}

func (c SimulateCommand) finish(last model.Job) error {
	if last.Status != model.JobStatusCompleted {
		return fmt.Errorf("simulation ended with status %s", last.Status)
	}
	if c.format == printer.FormatJSON {
		return nil
	}

	fmt.Fprintln(c.rootCmd.Stdout)
	if err := c.rootCmd.newPrinter(c.format).PrintJob(last); err != nil {
		return fmt.Errorf("could not print result: %w", err)
	}
	return nil
}
