package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/meshforge/internal/api"
	"github.com/slok/meshforge/internal/conventions"
	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/printer"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug      bool
	NoLog      bool
	NoColor    bool
	LoggerType string
	LogLevel   string
	DBPath     string
	ServerURL  string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)
	app.Flag("log-level", "Selects the log level.").Default("info").EnumVar(&c.LogLevel, "debug", "info", "warn", "error")

	defaultDBPath := conventions.DBPath(conventions.DataDir(homedir.HomeDir()))
	app.Flag("db-path", "Path to the SQLite database file.").Default(defaultDBPath).StringVar(&c.DBPath)
	app.Flag("server", "URL of the meshforge server used by the client commands.").Default(api.DefaultServerURL).StringVar(&c.ServerURL)

	return c
}

// NewJobCommand returns the parent command of the pipeline job commands.
func NewJobCommand(app *kingpin.Application) *kingpin.CmdClause {
	return app.Command("job", "Manage simulated generation pipeline jobs.")
}

func (r RootCommand) newAPIClient() (*api.Client, error) {
	c, err := api.NewClient(api.ClientConfig{
		ServerURL: r.ServerURL,
		Logger:    r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create API client: %w", err)
	}
	return c, nil
}

func (r RootCommand) newPrinter(format string) printer.Printer {
	return printer.New(format, r.Stdout)
}

func addFormatFlag(cmd *kingpin.CmdClause, format *string) {
	cmd.Flag("format", "Output format (table, json).").Default(printer.FormatTable).EnumVar(format, printer.FormatTable, printer.FormatJSON)
}
