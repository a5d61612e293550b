package lib

import (
	"testing"

	"github.com/stretchr/testify/require"

	sdklib "github.com/slok/meshforge/pkg/lib"
	intmf "github.com/slok/meshforge/test/integration/meshforge"
)

// NewTestClient starts a meshforge server process and returns an SDK client connected to it.
func NewTestClient(t *testing.T, opts intmf.ServerOpts) *sdklib.Client {
	t.Helper()

	config := intmf.NewConfig(t)
	srv := intmf.StartServer(t, config, opts)

	client, err := sdklib.New(sdklib.Config{ServerURL: srv.URL})
	require.NoError(t, err)

	return client
}
