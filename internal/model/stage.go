package model

import (
	"fmt"
	"strings"
	"time"
)

// StageStatus represents the state of a pipeline stage.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusError     StageStatus = "error"
)

// IsTerminal returns true when the stage will not change anymore.
func (s StageStatus) IsTerminal() bool {
	return s == StageStatusCompleted || s == StageStatusError
}

// Stage is a single named unit of the simulated generation pipeline.
type Stage struct {
	ID          string
	Name        string
	Description string
	Status      StageStatus
	// Progress is the completion percentage in the [0, 100] range.
	Progress float64
	// Duration is the elapsed time reported when the stage completes.
	Duration time.Duration
	Details  string
}

// StageDefinition is the static description of a stage, used as a template to
// create new pending stages.
type StageDefinition struct {
	ID          string
	Name        string
	Description string
}

// NewStages creates pending stages from their definitions, keeping the order.
func NewStages(defs []StageDefinition) []Stage {
	stages := make([]Stage, 0, len(defs))
	for _, d := range defs {
		stages = append(stages, Stage{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Status:      StageStatusPending,
		})
	}
	return stages
}

// CloneStages returns a copy of the stages.
func CloneStages(stages []Stage) []Stage {
	if stages == nil {
		return nil
	}
	c := make([]Stage, len(stages))
	copy(c, stages)
	return c
}

// ValidateStageDefinitions checks stage definitions have unique, non empty IDs and names.
func ValidateStageDefinitions(defs []StageDefinition) error {
	seen := make(map[string]struct{}, len(defs))
	for i, d := range defs {
		if strings.TrimSpace(d.ID) == "" {
			return fmt.Errorf("stage %d id is required: %w", i, ErrNotValid)
		}
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("stage %q name is required: %w", d.ID, ErrNotValid)
		}
		if _, ok := seen[d.ID]; ok {
			return fmt.Errorf("stage %q is duplicated: %w", d.ID, ErrNotValid)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}

// OverallProgress returns the pipeline completion percentage where every stage has the same weight.
func OverallProgress(stages []Stage) float64 {
	if len(stages) == 0 {
		return 100
	}

	total := 0.0
	for _, s := range stages {
		total += s.Progress
	}
	return total / float64(len(stages))
}

// DefaultStageDefinitions returns the stages of the 3D generation pipeline.
func DefaultStageDefinitions() []StageDefinition {
	return []StageDefinition{
		{ID: "ingest", Name: "Ingest", Description: "Processing input data and validation"},
		{ID: "preflight", Name: "Preflight", Description: "Analyzing and preparing for reconstruction"},
		{ID: "reconstruct", Name: "Reconstruct", Description: "3D reconstruction and point cloud generation"},
		{ID: "mesh", Name: "Mesh", Description: "Generating polygonal mesh from point cloud"},
		{ID: "texture", Name: "Texture", Description: "UV mapping and texture generation"},
		{ID: "optimize", Name: "Optimize", Description: "Mesh optimization and compression"},
		{ID: "evaluate", Name: "Evaluate", Description: "Quality assessment and metrics calculation"},
		{ID: "export", Name: "Export", Description: "Generating final output formats"},
	}
}
