package generator

import (
	"context"

	"github.com/slok/meshforge/internal/model"
)

// Generator is the interface for 3D artifact generation backends.
// Requests are expected to be already validated.
type Generator interface {
	Generate(ctx context.Context, req model.GenerationRequest) (*model.GenerationResult, error)
}

// Estimator is implemented by generators that can predict the mesh statistics of a
// request without running the generation.
type Estimator interface {
	Estimate(req model.GenerationRequest) model.GenerationMetrics
	FileSize(vertices int) string
}
