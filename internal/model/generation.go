package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// GenerationType is the kind of input a 3D generation starts from.
type GenerationType string

const (
	GenerationTypeText        GenerationType = "text"
	GenerationTypeSingleImage GenerationType = "single_image"
	GenerationTypeMultiImage  GenerationType = "multi_image"
)

// IsImage returns true for the image based generation types.
func (t GenerationType) IsImage() bool {
	return t == GenerationTypeSingleImage || t == GenerationTypeMultiImage
}

// Mode returns the short pipeline mode name (text, image, multi) of the generation type.
func (t GenerationType) Mode() string {
	switch t {
	case GenerationTypeSingleImage:
		return "image"
	case GenerationTypeMultiImage:
		return "multi"
	default:
		return "text"
	}
}

// Quality is the requested output quality.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// DefaultQuality is used when a request doesn't set the quality.
const DefaultQuality = QualityMedium

// ImageInput describes an uploaded image.
type ImageInput struct {
	// Field is the form field the image was uploaded with (e.g. image_0).
	Field       string
	Filename    string
	ContentType string
	Size        int64
}

// GenerationRequest is a request to generate a 3D model.
type GenerationRequest struct {
	Type    GenerationType
	Prompt  string
	Quality Quality
	Images  []ImageInput
}

// GenerationLimits are the input constraints of the generation API.
type GenerationLimits struct {
	MaxPromptLength   int
	MaxImages         int
	MaxImageSizeBytes int64
	ImageContentTypes []string
}

// DefaultGenerationLimits returns the generation API limits.
func DefaultGenerationLimits() GenerationLimits {
	return GenerationLimits{
		MaxPromptLength:   500,
		MaxImages:         8,
		MaxImageSizeBytes: 10 * 1024 * 1024,
		ImageContentTypes: []string{"image/jpeg", "image/jpg", "image/png", "image/webp"},
	}
}

// WithDefaults returns the limits with the zero fields set to the default limits.
func (l GenerationLimits) WithDefaults() GenerationLimits {
	def := DefaultGenerationLimits()
	if l.MaxPromptLength == 0 {
		l.MaxPromptLength = def.MaxPromptLength
	}
	if l.MaxImages == 0 {
		l.MaxImages = def.MaxImages
	}
	if l.MaxImageSizeBytes == 0 {
		l.MaxImageSizeBytes = def.MaxImageSizeBytes
	}
	if len(l.ImageContentTypes) == 0 {
		l.ImageContentTypes = def.ImageContentTypes
	}
	return l
}

// Validate validates the generation request, collecting every problem found.
// On success it sets the default quality if missing.
func (r *GenerationRequest) Validate(limits GenerationLimits) error {
	var details []string

	switch r.Type {
	case GenerationTypeText, GenerationTypeSingleImage, GenerationTypeMultiImage:
	case "":
		details = append(details, "type is required")
	default:
		details = append(details, fmt.Sprintf("type %q is not supported (must be text, single_image or multi_image)", r.Type))
	}

	promptLen := utf8.RuneCountInString(r.Prompt)
	if r.Type == GenerationTypeText && strings.TrimSpace(r.Prompt) == "" {
		details = append(details, "prompt is required for text generation")
	}
	if promptLen > limits.MaxPromptLength {
		details = append(details, fmt.Sprintf("prompt must be at most %d characters (got %d)", limits.MaxPromptLength, promptLen))
	}

	switch r.Quality {
	case "":
		r.Quality = DefaultQuality
	case QualityLow, QualityMedium, QualityHigh:
	default:
		details = append(details, fmt.Sprintf("quality %q is not supported (must be low, medium or high)", r.Quality))
	}

	if r.Type.IsImage() {
		switch {
		case len(r.Images) == 0:
			details = append(details, fmt.Sprintf("at least one image is required for %s generation", r.Type))
		case r.Type == GenerationTypeSingleImage && len(r.Images) > 1:
			details = append(details, fmt.Sprintf("single_image generation accepts exactly one image (got %d)", len(r.Images)))
		case len(r.Images) > limits.MaxImages:
			details = append(details, fmt.Sprintf("at most %d images are allowed (got %d)", limits.MaxImages, len(r.Images)))
		}

		for _, img := range r.Images {
			if img.Size > limits.MaxImageSizeBytes {
				details = append(details, fmt.Sprintf("%s (%s): file size %d bytes exceeds the maximum of %d bytes", img.Field, img.Filename, img.Size, limits.MaxImageSizeBytes))
			}
			if !slices.Contains(limits.ImageContentTypes, strings.ToLower(img.ContentType)) {
				details = append(details, fmt.Sprintf("%s (%s): content type %q is not supported", img.Field, img.Filename, img.ContentType))
			}
		}
	}

	if len(details) > 0 {
		return &ValidationError{Message: "invalid input parameters", Details: details}
	}

	return nil
}

// GenerationMetrics are the mesh statistics of a generated model.
type GenerationMetrics struct {
	Vertices  int
	Faces     int
	Materials int
	Textures  int
}

// GenerationResult is the output of a 3D generation.
type GenerationResult struct {
	Artifact       string
	Metrics        GenerationMetrics
	Thumbnail      string
	ProcessingTime time.Duration
	Quality        Quality
	FileSize       string
}

// Capabilities describes what the generation API supports.
type Capabilities struct {
	Types   []GenerationType
	Formats []string
	Quality []Quality
	Limits  GenerationLimits
}

// DefaultCapabilities returns the generation API capabilities for the given limits.
func DefaultCapabilities(limits GenerationLimits) Capabilities {
	return Capabilities{
		Types:   []GenerationType{GenerationTypeText, GenerationTypeSingleImage, GenerationTypeMultiImage},
		Formats: []string{"jpg", "jpeg", "png", "webp"},
		Quality: []Quality{QualityLow, QualityMedium, QualityHigh},
		Limits:  limits,
	}
}
