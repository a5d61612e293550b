package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/slok/meshforge/cmd/meshforge/commands"
	"github.com/slok/meshforge/internal/log"
	loglogrus "github.com/slok/meshforge/internal/log/logrus"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	app := kingpin.New("meshforge", "Mock 3D model generation server and client.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	// Setup commands (registers flags).
	serveCmd := commands.NewServeCommand(rootCmd, app)
	simulateCmd := commands.NewSimulateCommand(rootCmd, app)
	generateCmd := commands.NewGenerateCommand(rootCmd, app)
	capabilitiesCmd := commands.NewCapabilitiesCommand(rootCmd, app)

	// Job subcommands share a parent command.
	jobCmd := commands.NewJobCommand(app)
	jobRunCmd := commands.NewJobRunCommand(rootCmd, jobCmd)
	jobListCmd := commands.NewJobListCommand(rootCmd, jobCmd)
	jobStatusCmd := commands.NewJobStatusCommand(rootCmd, jobCmd)
	jobCancelCmd := commands.NewJobCancelCommand(rootCmd, jobCmd)
	jobTraceCmd := commands.NewJobTraceCommand(rootCmd, jobCmd)

	cmds := map[string]commands.Command{
		serveCmd.Name():        serveCmd,
		simulateCmd.Name():     simulateCmd,
		generateCmd.Name():     generateCmd,
		capabilitiesCmd.Name(): capabilitiesCmd,
		jobRunCmd.Name():       jobRunCmd,
		jobListCmd.Name():      jobListCmd,
		jobStatusCmd.Name():    jobStatusCmd,
		jobCancelCmd.Name():    jobCancelCmd,
		jobTraceCmd.Name():     jobTraceCmd,
	}

	// Parse command.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set standard input/output.
	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// Client commands print their results, logging would mix with them.
	// Users can still enable logging with --debug.
	if cmdName != serveCmd.Name() && !rootCmd.Debug {
		rootCmd.NoLog = true
	}

	// Set logger.
	rootCmd.Logger = getLogger(*rootCmd)

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// getLogger returns the application logger.
func getLogger(config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	// If logger not disabled use logrus logger.
	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr // By default logger goes to stderr (so it can split stdout prints).
	logrusLogEntry := logrus.NewEntry(logrusLog)

	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	if config.Debug {
		level = logrus.DebugLevel
	}
	logrusLogEntry.Logger.SetLevel(level)

	// Log format.
	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !config.NoColor,
			DisableColors: config.NoColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	logger.Debugf("Debug level is enabled") // Will log only when debug enabled.

	return logger
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
