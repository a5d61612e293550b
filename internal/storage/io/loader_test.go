package io

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/meshforge/internal/model"
)

func TestPipelineYAMLRepository_GetPipelineConfig(t *testing.T) {
	tests := map[string]struct {
		fs     fstest.MapFS
		path   string
		expCfg model.PipelineConfig
		expErr bool
		errMsg string
	}{
		"Empty config should load the default stages.": {
			fs: fstest.MapFS{
				"empty.yaml": &fstest.MapFile{Data: []byte("---\n")},
			},
			path:   "empty.yaml",
			expCfg: model.PipelineConfig{Stages: model.DefaultStageDefinitions()},
		},
		"Full config should load successfully.": {
			fs: fstest.MapFS{
				"pipeline.yaml": &fstest.MapFile{
					Data: []byte(`
stages:
  - id: scan
    name: Scan
    description: Scanning the input
  - id: export
    name: Export
simulation:
  tick_interval: 250ms
  min_increment: 20
  max_increment: 40
  min_stage_duration: 1s
  max_stage_duration: 3s
generator:
  text:
    base_vertices: 1000
    vertices_per_unit: 10
    vertex_jitter: 100
    face_ratio: 2
    face_jitter: 50
  multi_image_delay:
    base: 1s
    jitter: 500ms
    per_image: 100ms
`),
				},
			},
			path: "pipeline.yaml",
			expCfg: model.PipelineConfig{
				Stages: []model.StageDefinition{
					{ID: "scan", Name: "Scan", Description: "Scanning the input"},
					{ID: "export", Name: "Export"},
				},
				Simulation: model.SimulationTuning{
					TickInterval:     250 * time.Millisecond,
					MinIncrement:     20,
					MaxIncrement:     40,
					MinStageDuration: time.Second,
					MaxStageDuration: 3 * time.Second,
				},
				Generator: model.GeneratorTuning{
					Text: model.MeshFormula{
						BaseVertices:    1000,
						VerticesPerUnit: 10,
						VertexJitter:    100,
						FaceRatio:       2,
						FaceJitter:      50,
					},
					MultiImageDelay: model.DelayFormula{
						Base:     time.Second,
						Jitter:   500 * time.Millisecond,
						PerImage: 100 * time.Millisecond,
					},
				},
			},
		},
		"Duplicated stages should fail.": {
			fs: fstest.MapFS{
				"dup.yaml": &fstest.MapFile{Data: []byte(`
stages:
  - {id: mesh, name: Mesh}
  - {id: mesh, name: Mesh again}
`)},
			},
			path:   "dup.yaml",
			expErr: true,
			errMsg: "stages",
		},
		"Stage without name should fail.": {
			fs: fstest.MapFS{
				"noname.yaml": &fstest.MapFile{Data: []byte(`
stages:
  - {id: mesh}
`)},
			},
			path:   "noname.yaml",
			expErr: true,
			errMsg: "name is required",
		},
		"Inverted increments should fail.": {
			fs: fstest.MapFS{
				"inc.yaml": &fstest.MapFile{Data: []byte(`
simulation:
  min_increment: 50
  max_increment: 10
`)},
			},
			path:   "inc.yaml",
			expErr: true,
			errMsg: "simulation",
		},
		"Negative formulas should fail.": {
			fs: fstest.MapFS{
				"neg.yaml": &fstest.MapFile{Data: []byte(`
generator:
  single_image:
    base_vertices: -1
`)},
			},
			path:   "neg.yaml",
			expErr: true,
			errMsg: "single_image",
		},
		"Negative delays should fail.": {
			fs: fstest.MapFS{
				"neg.yaml": &fstest.MapFile{Data: []byte(`
generator:
  text_delay:
    base: -1s
`)},
			},
			path:   "neg.yaml",
			expErr: true,
			errMsg: "text_delay",
		},
		"Missing file should return error.": {
			fs:     fstest.MapFS{},
			path:   "nonexistent.yaml",
			expErr: true,
			errMsg: "reading pipeline config file",
		},
		"Invalid YAML should return error.": {
			fs: fstest.MapFS{
				"invalid.yaml": &fstest.MapFile{Data: []byte(`invalid: yaml: content: {}`)},
			},
			path:   "invalid.yaml",
			expErr: true,
			errMsg: "parsing YAML",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			repo := NewPipelineYAMLRepository(tc.fs)
			cfg, err := repo.GetPipelineConfig(context.Background(), tc.path)

			if tc.expErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errMsg)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.expCfg, cfg)
		})
	}
}

func TestPipelineYAMLRepository_GetPipelineConfig_ContextCancellation(t *testing.T) {
	fs := fstest.MapFS{
		"test.yaml": &fstest.MapFile{Data: []byte("stages: []\n")},
	}

	repo := NewPipelineYAMLRepository(fs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.GetPipelineConfig(ctx, "test.yaml")
	require.Error(t, err)
	assert.Equal(t, context.Canceled, err)
}
