package meshforge

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slok/meshforge/test/integration/testutils"
)

// FastPipelineConfig runs every stage in a single short tick.
const FastPipelineConfig = `
simulation:
  tick_interval: 20ms
  min_increment: 100
  max_increment: 100
  min_stage_duration: 1s
  max_stage_duration: 1s
`

// SlowPipelineConfig keeps the jobs running long enough to act on them.
const SlowPipelineConfig = `
simulation:
  tick_interval: 1h
`

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary    string
	RedisAddr string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		return fmt.Errorf("meshforge binary path is required (MESHFORGE_INTEGRATION_BINARY)")
	}

	// go test changes the CWD to the test package directory, relative paths would be ambiguous.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("MESHFORGE_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("meshforge binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "MESHFORGE_INTEGRATION"
		envBinary     = "MESHFORGE_INTEGRATION_BINARY"
		envRedisAddr  = "MESHFORGE_INTEGRATION_REDIS_ADDR"
	)

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	c := Config{
		Binary:    os.Getenv(envBinary),
		RedisAddr: os.Getenv(envRedisAddr),
	}

	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// Server is a meshforge server running as a separate process.
type Server struct {
	URL        string
	MetricsURL string
	stop       func()
}

// Stop stops the server process and waits for it.
func (s Server) Stop() { s.stop() }

// ServerOpts customize the started server.
type ServerOpts struct {
	// PipelineConfig is the pipeline YAML content, FastPipelineConfig by default.
	PipelineConfig string
	// DBPath is used with the sqlite storage.
	DBPath string
	// Args are extra serve flags (e.g. --storage sqlite).
	Args []string
}

// StartServer runs `meshforge serve` on free local ports and waits until it is ready.
// The server is stopped on test cleanup.
func StartServer(t *testing.T, config Config, opts ServerOpts) Server {
	t.Helper()

	if opts.PipelineConfig == "" {
		opts.PipelineConfig = FastPipelineConfig
	}
	if opts.DBPath == "" {
		opts.DBPath = filepath.Join(t.TempDir(), "meshforge.db")
	}

	cfgPath := WritePipelineConfig(t, opts.PipelineConfig)

	addr := freeAddr(t)
	metricsAddr := freeAddr(t)

	args := []string{
		"--db-path", opts.DBPath,
		"serve",
		"--listen", addr,
		"--metrics-listen", metricsAddr,
		"--pipeline-config", cfgPath,
		"--no-delay",
	}
	args = append(args, opts.Args...)

	ctx, cancel := context.WithCancel(context.Background())
	cmd, stderr, err := testutils.StartMeshforge(ctx, nil, config.Binary, args, true)
	require.NoError(t, err)

	srv := Server{
		URL:        "http://" + addr,
		MetricsURL: "http://" + metricsAddr,
	}

	stopped := false
	srv.stop = func() {
		if stopped {
			return
		}
		stopped = true
		_ = cmd.Process.Signal(os.Interrupt)
		done := make(chan struct{})
		go func() {
			_ = cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			cancel()
			<-done
		}
		cancel()
	}
	t.Cleanup(srv.stop)

	if err := waitReady(srv.URL, 10*time.Second); err != nil {
		srv.stop()
		t.Fatalf("server not ready: %s: %s", err, stderr.String())
	}

	return srv
}

// RunCmd runs a meshforge client command against the server.
func RunCmd(ctx context.Context, config Config, serverURL string, args ...string) (stdout, stderr []byte, err error) {
	args = append([]string{"--server", serverURL}, args...)
	return testutils.RunMeshforgeArgs(ctx, nil, config.Binary, args, true)
}

// RunLocalCmd runs a meshforge command that doesn't need a server.
func RunLocalCmd(ctx context.Context, config Config, args ...string) (stdout, stderr []byte, err error) {
	return testutils.RunMeshforgeArgs(ctx, nil, config.Binary, args, true)
}

// WritePipelineConfig writes a pipeline YAML config in a temp dir and returns its path.
func WritePipelineConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}

func waitReady(url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/readyz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("timeout after %s", timeout)
}
