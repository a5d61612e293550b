package lib

import (
	"fmt"
	"net/http"

	"github.com/slok/meshforge/internal/api"
	"github.com/slok/meshforge/internal/log"
)

// DefaultServerURL is the server the client connects to when none is configured.
const DefaultServerURL = api.DefaultServerURL

// Config configures the SDK client.
//
// All fields are optional. An empty Config{} connects to a local server on
// the default port.
type Config struct {
	// ServerURL is the meshforge server base URL.
	// Default: http://127.0.0.1:3000.
	ServerURL string

	// HTTPClient is used for all the requests.
	// Default: a client with a 60s timeout. Job event streams ignore the
	// timeout and are bounded by their context.
	HTTPClient *http.Client

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Client is the main SDK entry point for generating 3D models and managing
// pipeline jobs on a meshforge server.
//
// Create a Client with [New]. A Client is safe for concurrent use.
type Client struct {
	api    *api.Client
	logger log.Logger
}

// New creates a new SDK client.
//
//	client, err := lib.New(lib.Config{ServerURL: "http://127.0.0.1:3000"})
//	if err != nil {
//	    return err
//	}
func New(cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c, err := api.NewClient(api.ClientConfig{
		ServerURL:  cfg.ServerURL,
		HTTPClient: cfg.HTTPClient,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		api:    c,
		logger: cfg.Logger,
	}, nil
}
