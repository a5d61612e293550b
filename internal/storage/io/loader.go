package io

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slok/meshforge/internal/model"
)

// PipelineYAMLRepository loads pipeline configuration from YAML files.
type PipelineYAMLRepository struct {
	fs fs.FS
}

// NewPipelineYAMLRepository creates a new YAML pipeline config repository.
func NewPipelineYAMLRepository(filesystem fs.FS) *PipelineYAMLRepository {
	return &PipelineYAMLRepository{fs: filesystem}
}

// GetPipelineConfig loads a pipeline configuration from a YAML file and returns a validated
// domain model. Omitted stages are replaced by the default stages, omitted tuning values are
// left as zero so the consumers apply their defaults.
func (r *PipelineYAMLRepository) GetPipelineConfig(ctx context.Context, path string) (model.PipelineConfig, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.PipelineConfig{}, fmt.Errorf("reading pipeline config file: %w", err)
	}

	if ctx.Err() != nil {
		return model.PipelineConfig{}, ctx.Err()
	}

	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.PipelineConfig{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return model.PipelineConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg.toModel(), nil
}

// PipelineConfig represents the YAML structure for pipeline configuration.
type PipelineConfig struct {
	Stages     []StageConfig    `yaml:"stages"`
	Simulation SimulationConfig `yaml:"simulation"`
	Generator  GeneratorConfig  `yaml:"generator"`
}

// StageConfig represents the YAML structure of a pipeline stage.
type StageConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// SimulationConfig represents the YAML structure of the simulation tuning.
type SimulationConfig struct {
	TickInterval     time.Duration `yaml:"tick_interval"`
	MinIncrement     float64       `yaml:"min_increment"`
	MaxIncrement     float64       `yaml:"max_increment"`
	MinStageDuration time.Duration `yaml:"min_stage_duration"`
	MaxStageDuration time.Duration `yaml:"max_stage_duration"`
}

// GeneratorConfig represents the YAML structure of the generator formulas.
type GeneratorConfig struct {
	Text             MeshFormulaConfig `yaml:"text"`
	SingleImage      MeshFormulaConfig `yaml:"single_image"`
	MultiImage       MeshFormulaConfig `yaml:"multi_image"`
	TextDelay        DelayConfig       `yaml:"text_delay"`
	SingleImageDelay DelayConfig       `yaml:"single_image_delay"`
	MultiImageDelay  DelayConfig       `yaml:"multi_image_delay"`
}

// MeshFormulaConfig represents the YAML structure of a mesh statistics formula.
type MeshFormulaConfig struct {
	BaseVertices    float64 `yaml:"base_vertices"`
	VerticesPerUnit float64 `yaml:"vertices_per_unit"`
	VertexJitter    float64 `yaml:"vertex_jitter"`
	FaceRatio       float64 `yaml:"face_ratio"`
	FaceJitter      float64 `yaml:"face_jitter"`
}

// DelayConfig represents the YAML structure of an artificial delay formula.
type DelayConfig struct {
	Base     time.Duration `yaml:"base"`
	Jitter   time.Duration `yaml:"jitter"`
	PerImage time.Duration `yaml:"per_image"`
}

func (c PipelineConfig) validate() error {
	defs := make([]model.StageDefinition, 0, len(c.Stages))
	for _, s := range c.Stages {
		defs = append(defs, model.StageDefinition{ID: s.ID, Name: s.Name, Description: s.Description})
	}
	if err := model.ValidateStageDefinitions(defs); err != nil {
		return fmt.Errorf("stages: %w", err)
	}

	if err := c.Simulation.validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}

	if err := c.Generator.validate(); err != nil {
		return fmt.Errorf("generator: %w", err)
	}

	return nil
}

func (c SimulationConfig) validate() error {
	if c.TickInterval < 0 {
		return fmt.Errorf("tick_interval can't be negative, got: %s", c.TickInterval)
	}
	if c.MinIncrement < 0 || c.MaxIncrement < 0 {
		return fmt.Errorf("increments can't be negative")
	}
	if c.MaxIncrement > 0 && c.MaxIncrement < c.MinIncrement {
		return fmt.Errorf("max_increment (%v) must be greater or equal than min_increment (%v)", c.MaxIncrement, c.MinIncrement)
	}
	if c.MinStageDuration < 0 || c.MaxStageDuration < 0 {
		return fmt.Errorf("stage durations can't be negative")
	}
	if c.MaxStageDuration > 0 && c.MaxStageDuration < c.MinStageDuration {
		return fmt.Errorf("max_stage_duration (%s) must be greater or equal than min_stage_duration (%s)", c.MaxStageDuration, c.MinStageDuration)
	}
	return nil
}

func (c GeneratorConfig) validate() error {
	formulas := map[string]MeshFormulaConfig{
		"text":         c.Text,
		"single_image": c.SingleImage,
		"multi_image":  c.MultiImage,
	}
	for name, f := range formulas {
		if f.BaseVertices < 0 || f.VerticesPerUnit < 0 || f.VertexJitter < 0 || f.FaceRatio < 0 || f.FaceJitter < 0 {
			return fmt.Errorf("%s: formula values can't be negative", name)
		}
	}

	delays := map[string]DelayConfig{
		"text_delay":         c.TextDelay,
		"single_image_delay": c.SingleImageDelay,
		"multi_image_delay":  c.MultiImageDelay,
	}
	for name, d := range delays {
		if d.Base < 0 || d.Jitter < 0 || d.PerImage < 0 {
			return fmt.Errorf("%s: delays can't be negative", name)
		}
	}

	return nil
}

func (c PipelineConfig) toModel() model.PipelineConfig {
	cfg := model.PipelineConfig{
		Simulation: model.SimulationTuning{
			TickInterval:     c.Simulation.TickInterval,
			MinIncrement:     c.Simulation.MinIncrement,
			MaxIncrement:     c.Simulation.MaxIncrement,
			MinStageDuration: c.Simulation.MinStageDuration,
			MaxStageDuration: c.Simulation.MaxStageDuration,
		},
		Generator: model.GeneratorTuning{
			Text:             c.Generator.Text.toModel(),
			SingleImage:      c.Generator.SingleImage.toModel(),
			MultiImage:       c.Generator.MultiImage.toModel(),
			TextDelay:        c.Generator.TextDelay.toModel(),
			SingleImageDelay: c.Generator.SingleImageDelay.toModel(),
			MultiImageDelay:  c.Generator.MultiImageDelay.toModel(),
		},
	}

	if len(c.Stages) == 0 {
		cfg.Stages = model.DefaultStageDefinitions()
		return cfg
	}

	for _, s := range c.Stages {
		cfg.Stages = append(cfg.Stages, model.StageDefinition{ID: s.ID, Name: s.Name, Description: s.Description})
	}
	return cfg
}

func (c MeshFormulaConfig) toModel() model.MeshFormula {
	return model.MeshFormula{
		BaseVertices:    c.BaseVertices,
		VerticesPerUnit: c.VerticesPerUnit,
		VertexJitter:    c.VertexJitter,
		FaceRatio:       c.FaceRatio,
		FaceJitter:      c.FaceJitter,
	}
}

func (c DelayConfig) toModel() model.DelayFormula {
	return model.DelayFormula{Base: c.Base, Jitter: c.Jitter, PerImage: c.PerImage}
}
