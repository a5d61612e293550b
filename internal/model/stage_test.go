package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/meshforge/internal/model"
)

func TestNewStages(t *testing.T) {
	stages := model.NewStages(model.DefaultStageDefinitions())

	ids := make([]string, 0, len(stages))
	for _, s := range stages {
		ids = append(ids, s.ID)
		assert.Equal(t, model.StageStatusPending, s.Status)
		assert.Zero(t, s.Progress)
	}

	assert.Equal(t, []string{"ingest", "preflight", "reconstruct", "mesh", "texture", "optimize", "evaluate", "export"}, ids)
}

func TestValidateStageDefinitions(t *testing.T) {
	tests := map[string]struct {
		defs   []model.StageDefinition
		expErr bool
	}{
		"Default stages should be valid": {
			defs: model.DefaultStageDefinitions(),
		},

		"No stages should be valid": {
			defs: nil,
		},

		"Missing ID should fail": {
			defs:   []model.StageDefinition{{Name: "Ingest"}},
			expErr: true,
		},

		"Missing name should fail": {
			defs:   []model.StageDefinition{{ID: "ingest"}},
			expErr: true,
		},

		"Duplicated IDs should fail": {
			defs:   []model.StageDefinition{{ID: "a", Name: "A"}, {ID: "a", Name: "A2"}},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := model.ValidateStageDefinitions(test.defs)
			if test.expErr {
				assert.ErrorIs(t, err, model.ErrNotValid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOverallProgress(t *testing.T) {
	tests := map[string]struct {
		stages      []model.Stage
		expProgress float64
	}{
		"No stages are complete": {
			stages:      nil,
			expProgress: 100,
		},

		"Progress should be the mean of stage progress": {
			stages: []model.Stage{
				{Progress: 100},
				{Progress: 50},
				{Progress: 0},
				{Progress: 10},
			},
			expProgress: 40,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.InDelta(t, test.expProgress, model.OverallProgress(test.stages), 1e-9)
		})
	}
}

func TestJobProgress(t *testing.T) {
	j := model.Job{Status: model.JobStatusCompleted, Stages: []model.Stage{{Progress: 10}}}
	assert.Equal(t, 100.0, j.Progress())

	j.Status = model.JobStatusRunning
	assert.Equal(t, 10.0, j.Progress())
}
