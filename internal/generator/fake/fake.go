package fake

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/model"
)

const (
	// DefaultArtifact is the artifact name every fake generation returns.
	DefaultArtifact = "sample_model.glb"
	// DefaultThumbnail is the thumbnail every fake generation returns.
	DefaultThumbnail = "/mock/thumbnail.jpg"

	// defaultPromptComplexity is used when a text request comes without prompt.
	defaultPromptComplexity = 50
)

// DefaultTuning returns the default formulas of the fake generator.
func DefaultTuning() model.GeneratorTuning {
	return model.GeneratorTuning{
		Text: model.MeshFormula{
			BaseVertices:    8000,
			VerticesPerUnit: 100,
			VertexJitter:    5000,
			FaceRatio:       1.8,
			FaceJitter:      2000,
		},
		SingleImage: model.MeshFormula{
			BaseVertices: 6000,
			VertexJitter: 4000,
			FaceRatio:    1.9,
			FaceJitter:   2000,
		},
		MultiImage: model.MeshFormula{
			BaseVertices:    15000,
			VerticesPerUnit: 2000,
			VertexJitter:    8000,
			FaceRatio:       2.1,
			FaceJitter:      3000,
		},
		TextDelay:        model.DelayFormula{Base: 2 * time.Second, Jitter: 3 * time.Second},
		SingleImageDelay: model.DelayFormula{Base: 1500 * time.Millisecond, Jitter: 2 * time.Second},
		MultiImageDelay:  model.DelayFormula{Base: 3 * time.Second, Jitter: 2 * time.Second, PerImage: 500 * time.Millisecond},
	}
}

// GeneratorConfig is the configuration for the fake generator.
type GeneratorConfig struct {
	// Tuning formulas, zero value formulas use the defaults.
	Tuning model.GeneratorTuning
	// DelayScale multiplies the artificial processing delay, by default 1.
	DelayScale float64
	// NoDelay disables the artificial processing delay.
	NoDelay bool
	Rand    model.RandSource
	Logger  log.Logger
}

func (c *GeneratorConfig) defaults() error {
	def := DefaultTuning()
	if c.Tuning.Text == (model.MeshFormula{}) {
		c.Tuning.Text = def.Text
	}
	if c.Tuning.SingleImage == (model.MeshFormula{}) {
		c.Tuning.SingleImage = def.SingleImage
	}
	if c.Tuning.MultiImage == (model.MeshFormula{}) {
		c.Tuning.MultiImage = def.MultiImage
	}
	if c.Tuning.TextDelay == (model.DelayFormula{}) {
		c.Tuning.TextDelay = def.TextDelay
	}
	if c.Tuning.SingleImageDelay == (model.DelayFormula{}) {
		c.Tuning.SingleImageDelay = def.SingleImageDelay
	}
	if c.Tuning.MultiImageDelay == (model.DelayFormula{}) {
		c.Tuning.MultiImageDelay = def.MultiImageDelay
	}

	if c.DelayScale < 0 {
		return fmt.Errorf("delay scale can't be negative")
	}
	if c.DelayScale == 0 {
		c.DelayScale = 1
	}

	if c.Rand == nil {
		c.Rand = model.GlobalRand
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "generator.Fake"})
	return nil
}

// Generator is a fake implementation of the generator.Generator interface.
// It fabricates plausible mesh statistics after an artificial delay, nothing is
// really generated.
type Generator struct {
	tuning     model.GeneratorTuning
	delayScale float64
	noDelay    bool
	logger     log.Logger

	mu   sync.Mutex
	rand model.RandSource
}

// NewGenerator creates a new fake generator.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Generator{
		tuning:     cfg.Tuning,
		delayScale: cfg.DelayScale,
		noDelay:    cfg.NoDelay,
		logger:     cfg.Logger,
		rand:       cfg.Rand,
	}, nil
}

// Generate fabricates a generation result. The artificial delay honors context cancellation.
func (g *Generator) Generate(ctx context.Context, req model.GenerationRequest) (*model.GenerationResult, error) {
	processing := g.processingTime(req)
	if !g.noDelay {
		wait := time.Duration(float64(processing) * g.delayScale)
		if err := sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("generation interrupted: %w", err)
		}
	}

	metrics := g.Estimate(req)
	quality := req.Quality
	if quality == "" {
		quality = model.DefaultQuality
	}

	g.logger.WithCtxValues(ctx).Debugf("Fake %s generation with %d vertices", req.Type, metrics.Vertices)

	return &model.GenerationResult{
		Artifact:       DefaultArtifact,
		Metrics:        metrics,
		Thumbnail:      DefaultThumbnail,
		ProcessingTime: processing,
		Quality:        quality,
		FileSize:       g.FileSize(metrics.Vertices),
	}, nil
}

// Estimate returns the mesh statistics the request would produce.
func (g *Generator) Estimate(req model.GenerationRequest) model.GenerationMetrics {
	formula, units := g.formula(req)

	verts := math.Floor(formula.BaseVertices + units*formula.VerticesPerUnit + g.float()*formula.VertexJitter)
	faces := math.Floor(verts*formula.FaceRatio + g.float()*formula.FaceJitter)

	return model.GenerationMetrics{
		Vertices:  int(verts),
		Faces:     int(faces),
		Materials: int(math.Floor(g.float()*4)) + 1,
		Textures:  int(math.Floor(g.float()*3)) + 1,
	}
}

// FileSize returns the human readable file size of a mesh with the given vertices.
func (g *Generator) FileSize(vertices int) string {
	kb := int(math.Floor(float64(vertices)/1000*120 + g.float()*200))
	return formatKB(kb)
}

func (g *Generator) formula(req model.GenerationRequest) (model.MeshFormula, float64) {
	switch req.Type {
	case model.GenerationTypeMultiImage:
		return g.tuning.MultiImage, float64(len(req.Images))
	case model.GenerationTypeSingleImage:
		return g.tuning.SingleImage, float64(len(req.Images))
	default:
		complexity := utf8.RuneCountInString(req.Prompt)
		if complexity == 0 {
			complexity = defaultPromptComplexity
		}
		return g.tuning.Text, float64(complexity)
	}
}

func (g *Generator) processingTime(req model.GenerationRequest) time.Duration {
	var d model.DelayFormula
	switch req.Type {
	case model.GenerationTypeMultiImage:
		d = g.tuning.MultiImageDelay
	case model.GenerationTypeSingleImage:
		d = g.tuning.SingleImageDelay
	default:
		d = g.tuning.TextDelay
	}

	return d.Base + time.Duration(g.float()*float64(d.Jitter)) + time.Duration(len(req.Images))*d.PerImage
}

func (g *Generator) float() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rand.Float64()
}

func formatKB(kb int) string {
	if kb > 1024 {
		return fmt.Sprintf("%.1f MB", float64(kb)/1024)
	}
	return fmt.Sprintf("%d KB", kb)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
