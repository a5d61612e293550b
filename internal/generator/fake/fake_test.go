package fake_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/meshforge/internal/generator/fake"
	"github.com/slok/meshforge/internal/log"
	"github.com/slok/meshforge/internal/model"
)

type constRand float64

func (c constRand) Float64() float64 { return float64(c) }

func images(n int) []model.ImageInput {
	imgs := make([]model.ImageInput, 0, n)
	for i := 0; i < n; i++ {
		imgs = append(imgs, model.ImageInput{Field: "image", Filename: "img.png", ContentType: "image/png", Size: 1024})
	}
	return imgs
}

func TestNewGenerator(t *testing.T) {
	tests := map[string]struct {
		config fake.GeneratorConfig
		expErr bool
	}{
		"Default config should work.": {
			config: fake.GeneratorConfig{},
		},
		"Negative delay scale should fail.": {
			config: fake.GeneratorConfig{DelayScale: -1},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			gen, err := fake.NewGenerator(test.config)
			if test.expErr {
				assert.Error(t, err)
			} else if assert.NoError(t, err) {
				assert.NotNil(t, gen)
			}
		})
	}
}

func TestGeneratorEstimate(t *testing.T) {
	tests := map[string]struct {
		tuning     model.GeneratorTuning
		req        model.GenerationRequest
		expMetrics model.GenerationMetrics
	}{
		"Text generation should scale with the prompt length.": {
			req: model.GenerationRequest{Type: model.GenerationTypeText, Prompt: strings.Repeat("a", 10)},
			expMetrics: model.GenerationMetrics{
				Vertices:  11500, // 8000 + 10*100 + 0.5*5000.
				Faces:     21700, // 11500*1.8 + 0.5*2000.
				Materials: 3,
				Textures:  2,
			},
		},
		"Text generation without prompt should use the default complexity.": {
			req: model.GenerationRequest{Type: model.GenerationTypeText},
			expMetrics: model.GenerationMetrics{
				Vertices:  15500, // 8000 + 50*100 + 0.5*5000.
				Faces:     28900, // 15500*1.8 + 0.5*2000.
				Materials: 3,
				Textures:  2,
			},
		},
		"Single image generation should not depend on the input.": {
			req: model.GenerationRequest{Type: model.GenerationTypeSingleImage, Images: images(1)},
			expMetrics: model.GenerationMetrics{
				Vertices:  8000,  // 6000 + 0.5*4000.
				Faces:     16200, // 8000*1.9 + 0.5*2000.
				Materials: 3,
				Textures:  2,
			},
		},
		"Multi image generation should scale with the images.": {
			req: model.GenerationRequest{Type: model.GenerationTypeMultiImage, Images: images(4)},
			expMetrics: model.GenerationMetrics{
				Vertices:  27000, // 15000 + 4*2000 + 0.5*8000.
				Faces:     58200, // 27000*2.1 + 0.5*3000.
				Materials: 3,
				Textures:  2,
			},
		},
		"Custom formulas should be used.": {
			tuning: model.GeneratorTuning{
				Text: model.MeshFormula{BaseVertices: 100, VerticesPerUnit: 1, FaceRatio: 2},
			},
			req: model.GenerationRequest{Type: model.GenerationTypeText, Prompt: "chair"},
			expMetrics: model.GenerationMetrics{
				Vertices:  105,
				Faces:     210,
				Materials: 3,
				Textures:  2,
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			gen, err := fake.NewGenerator(fake.GeneratorConfig{
				Tuning: test.tuning,
				Rand:   constRand(0.5),
				Logger: log.Noop,
			})
			require.NoError(t, err)

			got := gen.Estimate(test.req)
			assert.Equal(t, test.expMetrics, got)
		})
	}
}

func TestGeneratorFileSize(t *testing.T) {
	tests := map[string]struct {
		vertices int
		expSize  string
	}{
		"Small meshes should be reported in KB.": {
			vertices: 1000, // 1*120 + 0.5*200.
			expSize:  "220 KB",
		},
		"Big meshes should be reported in MB.": {
			vertices: 11500, // 11.5*120 + 0.5*200 = 1480 KB.
			expSize:  "1.4 MB",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			gen, err := fake.NewGenerator(fake.GeneratorConfig{Rand: constRand(0.5)})
			require.NoError(t, err)

			assert.Equal(t, test.expSize, gen.FileSize(test.vertices))
		})
	}
}

func TestGeneratorLongerPromptsHaveMoreVertices(t *testing.T) {
	gen, err := fake.NewGenerator(fake.GeneratorConfig{Rand: constRand(0.3)})
	require.NoError(t, err)

	prev := 0
	for _, l := range []int{1, 10, 100, 250, 500} {
		m := gen.Estimate(model.GenerationRequest{Type: model.GenerationTypeText, Prompt: strings.Repeat("x", l)})
		assert.Greater(t, m.Vertices, prev)
		assert.Greater(t, m.Faces, m.Vertices)
		prev = m.Vertices
	}
}

func TestGeneratorGenerate(t *testing.T) {
	tests := map[string]struct {
		req               model.GenerationRequest
		expQuality        model.Quality
		expProcessingTime time.Duration
	}{
		"Text generation should use the text delay.": {
			req:               model.GenerationRequest{Type: model.GenerationTypeText, Prompt: "a red chair", Quality: model.QualityHigh},
			expQuality:        model.QualityHigh,
			expProcessingTime: 3500 * time.Millisecond, // 2s + 0.5*3s.
		},
		"Missing quality should use the default.": {
			req:               model.GenerationRequest{Type: model.GenerationTypeSingleImage, Images: images(1)},
			expQuality:        model.QualityMedium,
			expProcessingTime: 2500 * time.Millisecond, // 1.5s + 0.5*2s.
		},
		"Multi image generation delay should grow with the images.": {
			req:               model.GenerationRequest{Type: model.GenerationTypeMultiImage, Images: images(4), Quality: model.QualityLow},
			expQuality:        model.QualityLow,
			expProcessingTime: 6 * time.Second, // 3s + 0.5*2s + 4*0.5s.
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			assert := assert.New(t)

			gen, err := fake.NewGenerator(fake.GeneratorConfig{
				Rand:       constRand(0.5),
				DelayScale: 0.0001,
			})
			require.NoError(err)

			start := time.Now()
			res, err := gen.Generate(context.Background(), test.req)
			require.NoError(err)

			assert.Less(time.Since(start), time.Second)
			assert.Equal(fake.DefaultArtifact, res.Artifact)
			assert.Equal(fake.DefaultThumbnail, res.Thumbnail)
			assert.Equal(test.expQuality, res.Quality)
			assert.Equal(test.expProcessingTime, res.ProcessingTime)
			assert.Positive(res.Metrics.Vertices)
			assert.Positive(res.Metrics.Faces)
			assert.NotEmpty(res.FileSize)
		})
	}
}

func TestGeneratorGenerateCancelled(t *testing.T) {
	gen, err := fake.NewGenerator(fake.GeneratorConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = gen.Generate(ctx, model.GenerationRequest{Type: model.GenerationTypeText, Prompt: "chair"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGeneratorGenerateNoDelay(t *testing.T) {
	gen, err := fake.NewGenerator(fake.GeneratorConfig{NoDelay: true})
	require.NoError(t, err)

	start := time.Now()
	res, err := gen.Generate(context.Background(), model.GenerationRequest{Type: model.GenerationTypeText, Prompt: "chair"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.GreaterOrEqual(t, res.ProcessingTime, 2*time.Second)
}
