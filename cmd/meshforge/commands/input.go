package commands

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/slok/meshforge/internal/api"
	"github.com/slok/meshforge/internal/model"
	storageio "github.com/slok/meshforge/internal/storage/io"
)

// loadPipelineConfig loads the pipeline YAML configuration, an empty path returns
// the zero configuration so every component uses its defaults.
func loadPipelineConfig(ctx context.Context, path string) (model.PipelineConfig, error) {
	if path == "" {
		return model.PipelineConfig{}, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return model.PipelineConfig{}, fmt.Errorf("invalid pipeline config path: %w", err)
	}

	repo := storageio.NewPipelineYAMLRepository(os.DirFS(filepath.Dir(abs)))
	cfg, err := repo.GetPipelineConfig(ctx, filepath.Base(abs))
	if err != nil {
		return model.PipelineConfig{}, fmt.Errorf("could not load pipeline config %s: %w", path, err)
	}

	return cfg, nil
}

// openUploads opens the image files to upload. The returned func closes them.
func openUploads(paths []string) ([]api.Upload, func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	uploads := make([]api.Upload, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("could not open image: %w", err)
		}
		files = append(files, f)

		uploads = append(uploads, api.Upload{
			Filename:    filepath.Base(p),
			ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(p))),
			Content:     f,
		})
	}

	return uploads, closeAll, nil
}

// imageInputs describes local image files the same way the server does with uploads.
func imageInputs(paths []string) ([]model.ImageInput, error) {
	images := make([]model.ImageInput, 0, len(paths))
	for i, p := range paths {
		img, err := imageInput(fmt.Sprintf("image_%d", i), p)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func imageInput(field, path string) (model.ImageInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.ImageInput{}, fmt.Errorf("could not open image: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return model.ImageInput{}, fmt.Errorf("could not stat image: %w", err)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return model.ImageInput{}, fmt.Errorf("could not read image: %w", err)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(head[:n])
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)

	return model.ImageInput{
		Field:       field,
		Filename:    filepath.Base(path),
		ContentType: mediaType,
		Size:        info.Size(),
	}, nil
}
