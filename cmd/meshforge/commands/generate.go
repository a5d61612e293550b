package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/meshforge/internal/api"
	"github.com/slok/meshforge/internal/model"
)

// GenerateCommand requests a one shot generation to a running server.
type GenerateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	genType        string
	prompt         string
	quality        string
	images         []string
	idempotencyKey string
	format         string
}

// NewGenerateCommand returns the generate command.
func NewGenerateCommand(rootCmd *RootCommand, app *kingpin.Application) *GenerateCommand {
	c := &GenerateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("generate", "Generate a 3D model from a text prompt or images.")
	addGenerationFlags(c.Cmd, &c.genType, &c.prompt, &c.quality, &c.images, &c.idempotencyKey)
	addFormatFlag(c.Cmd, &c.format)

	return c
}

func (c GenerateCommand) Name() string { return c.Cmd.FullCommand() }

func (c GenerateCommand) Run(ctx context.Context) error {
	client, err := c.rootCmd.newAPIClient()
	if err != nil {
		return err
	}

	uploads, closeUploads, err := openUploads(c.images)
	if err != nil {
		return err
	}
	defer closeUploads()

	res, err := client.Generate(ctx, api.UploadRequest{
		Type:           model.GenerationType(c.genType),
		Prompt:         c.prompt,
		Quality:        model.Quality(c.quality),
		Images:         uploads,
		IdempotencyKey: c.idempotencyKey,
	})
	if err != nil {
		return fmt.Errorf("could not generate model: %w", err)
	}

	if err := c.rootCmd.newPrinter(c.format).PrintGeneration(*res); err != nil {
		return fmt.Errorf("could not print generation: %w", err)
	}

	return nil
}

func addGenerationFlags(cmd *kingpin.CmdClause, genType, prompt, quality *string, images *[]string, idempotencyKey *string) {
	cmd.Flag("type", "Generation type (text, single_image, multi_image).").Short('t').Default(string(model.GenerationTypeText)).StringVar(genType)
	cmd.Flag("prompt", "Text prompt.").Short('p').StringVar(prompt)
	cmd.Flag("quality", "Output quality (low, medium, high).").StringVar(quality)
	cmd.Flag("image", "Image file to upload (repeatable).").Short('i').StringsVar(images)
	cmd.Flag("idempotency-key", "Idempotency key sent with the request.").StringVar(idempotencyKey)
}
