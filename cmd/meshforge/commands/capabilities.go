package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

// CapabilitiesCommand prints what a running server supports.
type CapabilitiesCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	format string
}

// NewCapabilitiesCommand returns the capabilities command.
func NewCapabilitiesCommand(rootCmd *RootCommand, app *kingpin.Application) *CapabilitiesCommand {
	c := &CapabilitiesCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("capabilities", "Show the generation API capabilities of the server.")
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c CapabilitiesCommand) Name() string { return c.Cmd.FullCommand() }

func (c CapabilitiesCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newAPIClient()
	if err != nil {
		return err
	}

	caps, err := client.Capabilities(ctx)
	if err != nil {
		return fmt.Errorf("could not get capabilities: %w", err)
	}

	if err := c.rootCmd.newPrinter(c.format).PrintCapabilities(*caps); err != nil {
		return fmt.Errorf("could not print capabilities: %w", err)
	}

	return nil
}
