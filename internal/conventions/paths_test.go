package conventions_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/meshforge/internal/conventions"
)

func TestPaths(t *testing.T) {
	tests := map[string]struct {
		path    func() string
		expPath string
	}{
		"Data dir should be inside the home.": {
			path:    func() string { return conventions.DataDir("/home/user") },
			expPath: "/home/user/.meshforge",
		},
		"DB should be inside the data dir.": {
			path:    func() string { return conventions.DBPath("/home/user/.meshforge") },
			expPath: "/home/user/.meshforge/meshforge.db",
		},
		"Pipeline config should be inside the data dir.": {
			path:    func() string { return conventions.PipelineConfigPath("/data") },
			expPath: "/data/pipeline.yaml",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expPath, test.path())
		})
	}
}
