package lib

import (
	"context"
	"fmt"
)

// Generate runs a synchronous 3D generation and returns its result.
//
// The call blocks while the server simulates the generation work, use a
// context with a deadline to bound it. Invalid options return an error
// matching [ErrNotValid] with the problems in [APIError].Details.
func (c *Client) Generate(ctx context.Context, opts GenerateOpts) (*GenerationResult, error) {
	res, err := c.api.Generate(ctx, toUploadRequest(opts))
	if err != nil {
		return nil, fmt.Errorf("could not generate model: %w", mapError(err))
	}

	r := fromInternalGenerationResult(*res)
	return &r, nil
}

// Capabilities returns the generation types, formats and limits the server supports.
func (c *Client) Capabilities(ctx context.Context) (*Capabilities, error) {
	caps, err := c.api.Capabilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get capabilities: %w", mapError(err))
	}

	cs := fromInternalCapabilities(*caps)
	return &cs, nil
}
