package model

import "time"

// SimulationTuning are the knobs of the stage progress simulation.
// Zero values mean "use the default".
type SimulationTuning struct {
	TickInterval     time.Duration
	MinIncrement     float64
	MaxIncrement     float64
	MinStageDuration time.Duration
	MaxStageDuration time.Duration
}

// MeshFormula computes mesh statistics as:
//
//	vertices = BaseVertices + units*VerticesPerUnit + rand*VertexJitter
//	faces    = vertices*FaceRatio + rand*FaceJitter
//
// Units depend on the generation type (prompt length, image count...).
type MeshFormula struct {
	BaseVertices    float64
	VerticesPerUnit float64
	VertexJitter    float64
	FaceRatio       float64
	FaceJitter      float64
}

// DelayFormula computes the artificial processing time as Base + rand*Jitter + images*PerImage.
type DelayFormula struct {
	Base     time.Duration
	Jitter   time.Duration
	PerImage time.Duration
}

// GeneratorTuning are the knobs of the mock artifact generator.
// Zero values mean "use the default".
type GeneratorTuning struct {
	Text             MeshFormula
	SingleImage      MeshFormula
	MultiImage       MeshFormula
	TextDelay        DelayFormula
	SingleImageDelay DelayFormula
	MultiImageDelay  DelayFormula
}

// PipelineConfig is the customizable setup of the generation pipeline.
type PipelineConfig struct {
	Stages     []StageDefinition
	Simulation SimulationTuning
	Generator  GeneratorTuning
}
